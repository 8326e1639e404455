package production

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vaidashi/bakery-production/internal/config"
	"github.com/vaidashi/bakery-production/internal/models"
	"github.com/vaidashi/bakery-production/internal/notify"
	"github.com/vaidashi/bakery-production/internal/repository"
	"github.com/vaidashi/bakery-production/internal/timer"
	apperrors "github.com/vaidashi/bakery-production/pkg/errors"
	"github.com/vaidashi/bakery-production/pkg/logger"
)

// Subscriber is told about every board change
type Subscriber interface {
	BoardChanged(view BoardView)
}

// TickSubscriber is told about the countdowns on every tick
type TickSubscriber interface {
	TimersTicked(timers []timer.Status)
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces the wall clock
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithMetrics registers the engine's metrics on registry
func WithMetrics(registry prometheus.Registerer) Option {
	return func(e *Engine) {
		e.metrics = NewMetrics(registry)
	}
}

// Engine is the production queue. It owns the local board, runs every
// operator action through the coordinator and keeps the countdowns in step
// with the board.
type Engine struct {
	cfg         config.ProductionConfig
	store       repository.Store
	notifier    notify.Notifier
	logger      logger.Logger
	clock       func() time.Time
	metrics     *Metrics
	coord       *Coordinator
	scheduler   *timer.Scheduler
	subMu       sync.RWMutex
	subscribers []Subscriber
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
	mu          sync.Mutex
}

// NewEngine creates an engine with an empty board. Call Start or Resync to
// load the store's state.
func NewEngine(cfg config.ProductionConfig, store repository.Store, notifier notify.Notifier, logger logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		logger:   logger,
		clock:    defaultClock,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.metrics == nil {
		e.metrics = NewMetrics(prometheus.NewRegistry())
	}

	if e.notifier == nil {
		e.notifier = notify.NewLogNotifier(logger)
	}

	e.scheduler = timer.NewScheduler(cfg.TickInterval, e.clock, logger)
	e.coord = NewCoordinator(NewBoard(dayOf(e.clock())), store, cfg.WriteAttempts, e.clock, e.metrics, logger, e.refresh)

	return e
}

// database timestamps keep microseconds, so the board does too
func defaultClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Subscribe registers s for board changes, and for ticks when s is also a TickSubscriber
func (e *Engine) Subscribe(s Subscriber) {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	e.subscribers = append(e.subscribers, s)
}

// Start loads the board, starts the countdown ticker and the periodic resync
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	err := e.Resync(ctx)

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.running = true
	e.scheduler.Start(e.onTick)

	if e.cfg.ResyncInterval > 0 {
		e.wg.Add(1)

		go func() {
			defer e.wg.Done()
			e.resyncLoop()
		}()
	}

	e.logger.Info("Production engine started", "resyncInterval", e.cfg.ResyncInterval)
	return err
}

// Stop stops the ticker and the resync loop
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}

	e.cancel()
	e.wg.Wait()
	e.scheduler.Stop()
	e.running = false

	e.logger.Info("Production engine stopped")
}

func (e *Engine) resyncLoop() {
	ticker := time.NewTicker(e.cfg.ResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(e.ctx, e.cfg.ResyncInterval)
			_ = e.Resync(ctx)
			cancel()
		}
	}
}

// CreateOrder validates in and adds a queued order
func (e *Engine) CreateOrder(ctx context.Context, in models.NewOrderInput) (*models.Order, error) {
	if err := in.Validate(); err != nil {
		appErr := apperrors.NewInvalidInputError(err.Error())
		e.report(ctx, appErr, "")
		return nil, appErr
	}

	seq := 0

	if in.Shape == models.ShapeCustom {
		next, err := e.store.NextLabelSequence(ctx)

		if err != nil {
			appErr := apperrors.NewRemoteWriteError("Could not reserve a label for the custom order", err)
			e.report(ctx, appErr, "")
			return nil, appErr
		}

		seq = next
	}

	order := models.NewOrder(in, seq, e.clock())
	cmd := &createOrder{order: order}

	if err := e.execute(ctx, cmd, fmt.Sprintf("%s added to the queue", order.BatchLabel)); err != nil {
		return nil, err
	}

	return order.Clone(), nil
}

// DeleteOrder removes an order for good
func (e *Engine) DeleteOrder(ctx context.Context, id string) error {
	return e.execute(ctx, &deleteOrder{orderID: id, bakeDuration: e.cfg.BakeDuration}, "Order deleted")
}

// StartMixing moves a queued order into mixer, if the mixer has room
func (e *Engine) StartMixing(ctx context.Context, orderID string, mixer int) error {
	cmd := &startMixing{orderID: orderID, mixer: mixer, capacity: e.cfg.MixerCapacity}
	return e.execute(ctx, cmd, fmt.Sprintf("Moved to Mixer #%d", mixer))
}

// CancelMixing puts a mixing order back in the queue
func (e *Engine) CancelMixing(ctx context.Context, orderID string) error {
	return e.execute(ctx, &cancelMixing{orderID: orderID}, "Put back in the queue")
}

// CompleteMixing sends the order and every order consolidated with it to
// the oven queue. The batch is nil when nothing moved.
func (e *Engine) CompleteMixing(ctx context.Context, orderID string) (*OvenReadyBatch, error) {
	cmd := &completeMixing{orderID: orderID}

	if err := e.execute(ctx, cmd, "Ready for the oven"); err != nil {
		return nil, err
	}

	return cmd.batch, nil
}

// StartBaking puts a batch, possibly a composite id, into oven
func (e *Engine) StartBaking(ctx context.Context, batchID string, oven int) error {
	cmd := &startBaking{batchID: batchID, oven: oven, bakeDuration: e.cfg.BakeDuration}
	return e.execute(ctx, cmd, fmt.Sprintf("Loaded into Oven #%d", oven))
}

// CompleteBaking finishes every batch in oven and returns how many there were
func (e *Engine) CompleteBaking(ctx context.Context, oven int) (int, error) {
	cmd := &completeBaking{oven: oven, dailyTarget: e.cfg.DailyTarget}

	if err := e.execute(ctx, cmd, fmt.Sprintf("Oven #%d emptied", oven)); err != nil {
		return 0, err
	}

	return cmd.completed, nil
}

// UpdateOrderStatus sets an order's stage directly
func (e *Engine) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) error {
	return e.execute(ctx, &updateStatus{orderID: orderID, status: status, bakeDuration: e.cfg.BakeDuration}, fmt.Sprintf("Order moved to %s", status))
}

// SetProducedQuantity sets the produced quantity, clamped at the stage floor
func (e *Engine) SetProducedQuantity(ctx context.Context, orderID string, quantity int) (*models.Order, error) {
	cmd := &setQuantity{orderID: orderID, value: models.IntPtr(quantity)}

	if err := e.execute(ctx, cmd, ""); err != nil {
		return nil, err
	}

	return cmd.after.Clone(), nil
}

// AdjustProducedQuantity changes the produced quantity by delta
func (e *Engine) AdjustProducedQuantity(ctx context.Context, orderID string, delta int) (*models.Order, error) {
	cmd := &setQuantity{orderID: orderID, delta: delta}

	if err := e.execute(ctx, cmd, ""); err != nil {
		return nil, err
	}

	return cmd.after.Clone(), nil
}

// UpdateNotes replaces an order's notes
func (e *Engine) UpdateNotes(ctx context.Context, orderID, notes string) error {
	return e.execute(ctx, &updateNotes{orderID: orderID, notes: notes}, "")
}

// RecordPrint counts a printed label
func (e *Engine) RecordPrint(ctx context.Context, orderID string) error {
	return e.execute(ctx, &recordPrint{orderID: orderID}, "")
}

// StartMixerCountdown starts the standalone ready countdown of mixer
func (e *Engine) StartMixerCountdown(ctx context.Context, mixer int) error {
	return e.execute(ctx, &startMixerCountdown{mixer: mixer}, "")
}

// CancelMixerCountdown stops the standalone countdown of mixer
func (e *Engine) CancelMixerCountdown(ctx context.Context, mixer int) error {
	return e.execute(ctx, &cancelMixerCountdown{mixer: mixer}, "")
}

// execute runs cmd and turns the outcome into a notification. success is
// the message for a committed command; empty means stay quiet.
func (e *Engine) execute(ctx context.Context, cmd Command, success string) error {
	err := e.coord.Execute(ctx, cmd)

	if err != nil {
		e.logger.Warn("Command failed", "command", cmd.Name(), "error", err)
		e.report(ctx, err, cmd.Name())
		return err
	}

	e.logger.Info("Command committed", "command", cmd.Name())

	if success != "" {
		e.notify(ctx, notify.SeveritySuccess, success, "")
	}

	return nil
}

func (e *Engine) report(ctx context.Context, err error, command string) {
	var appErr *apperrors.AppError
	message := err.Error()

	if errors.As(err, &appErr) {
		message = appErr.Error()
	}

	switch {
	case errors.Is(err, apperrors.ErrCapacityExceeded):
		e.notify(ctx, notify.SeverityWarning, message, "Finish or cancel an order in that mixer first")
	case errors.Is(err, apperrors.ErrRemoteWrite):
		cause := ""
		if appErr != nil {
			if c, ok := appErr.Context["cause"].(string); ok {
				cause = c
			}
		}
		e.notify(ctx, notify.SeverityError, message, cause)
	case errors.Is(err, apperrors.ErrNotFound):
		e.notify(ctx, notify.SeverityError, message, "It may have been removed on another screen")
	default:
		e.notify(ctx, notify.SeverityError, message, command)
	}
}

func (e *Engine) notify(ctx context.Context, severity notify.Severity, message, description string) {
	e.notifier.Notify(ctx, notify.Notification{
		Severity:    severity,
		Message:     message,
		Description: description,
		At:          e.clock(),
	})
}

// refresh runs after every visible board change
func (e *Engine) refresh() {
	var specs map[timer.Kind][]timer.Spec

	e.coord.Read(func(b *Board) {
		specs = e.timerSpecs(b)
		e.metrics.observeBoard(b)
	})

	for _, kind := range []timer.Kind{timer.KindMixing, timer.KindMixerReady, timer.KindOven} {
		e.scheduler.Sync(kind, specs[kind])
	}

	e.subMu.RLock()
	subscribers := append([]Subscriber(nil), e.subscribers...)
	e.subMu.RUnlock()

	if len(subscribers) == 0 {
		return
	}

	view := e.Board()

	for _, s := range subscribers {
		s.BoardChanged(view)
	}
}

package timer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vaidashi/bakery-production/pkg/logger"
)

// TickHandler receives the events produced by one tick
type TickHandler func(ctx context.Context, now time.Time, events []Event)

// Scheduler owns every live countdown and ticks them on one ticker
type Scheduler struct {
	interval   time.Duration
	clock      func() time.Time
	logger     logger.Logger
	countdowns map[string]*Countdown
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	running    bool
	mu         sync.Mutex
	runMu      sync.Mutex
}

// NewScheduler creates a scheduler. A nil clock means time.Now.
func NewScheduler(interval time.Duration, clock func() time.Time, logger logger.Logger) *Scheduler {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return &Scheduler{
		interval:   interval,
		clock:      clock,
		logger:     logger,
		countdowns: make(map[string]*Countdown),
	}
}

// Set adds or replaces one countdown
func (s *Scheduler) Set(spec Spec) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.put(spec, s.clock())
}

// Cancel removes a countdown. Unknown keys are ignored.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.countdowns, key)
}

// Sync makes the countdowns of kind match specs exactly. A countdown whose
// start and duration did not change keeps its fired-event state.
func (s *Scheduler) Sync(kind Kind, specs []Spec) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	wanted := make(map[string]bool, len(specs))

	for _, spec := range specs {
		spec.Kind = kind
		wanted[spec.Key] = true

		if existing, ok := s.countdowns[spec.Key]; ok && existing.sameRun(spec) {
			existing.Label = spec.Label
			continue
		}

		s.put(spec, now)
	}

	for key, c := range s.countdowns {
		if c.Kind == kind && !wanted[key] {
			delete(s.countdowns, key)
		}
	}
}

// Tick advances every countdown and returns the events that fired
func (s *Scheduler) Tick() (time.Time, []Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()

	var events []Event

	for _, key := range s.keys() {
		events = append(events, s.countdowns[key].Advance(now)...)
	}

	return now, events
}

// Snapshot returns the status of every countdown, sorted by key
func (s *Scheduler) Snapshot() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	out := make([]Status, 0, len(s.countdowns))

	for _, key := range s.keys() {
		out = append(out, s.countdowns[key].Status(now))
	}

	return out
}

// Get returns the status of one countdown
func (s *Scheduler) Get(key string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.countdowns[key]

	if !ok {
		return Status{}, false
	}

	return c.Status(s.clock()), true
}

// Start starts the ticker. handler runs on the ticker goroutine.
func (s *Scheduler) Start(handler TickHandler) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.running {
		return
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		s.run(handler)
	}()

	s.logger.Info("Timer scheduler started", "interval", s.interval)
}

// Stop stops the ticker and waits for the last tick to finish
func (s *Scheduler) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if !s.running {
		return
	}

	s.cancel()
	s.wg.Wait()
	s.running = false

	s.logger.Info("Timer scheduler stopped")
}

func (s *Scheduler) run(handler TickHandler) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			now, events := s.Tick()

			if handler != nil {
				handler(s.ctx, now, events)
			}
		}
	}
}

func (s *Scheduler) put(spec Spec, now time.Time) {
	s.countdowns[spec.Key] = NewCountdown(spec, now)
}

func (s *Scheduler) keys() []string {
	keys := make([]string, 0, len(s.countdowns))

	for key := range s.countdowns {
		keys = append(keys, key)
	}

	sort.Strings(keys)
	return keys
}

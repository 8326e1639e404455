package production

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/vaidashi/bakery-production/internal/repository"
	apperrors "github.com/vaidashi/bakery-production/pkg/errors"
	"github.com/vaidashi/bakery-production/pkg/logger"
	"github.com/vaidashi/bakery-production/pkg/retry"
)

// Command outcomes
const (
	OutcomeCommitted  = "committed"
	OutcomeRejected   = "rejected"
	OutcomeRolledBack = "rolled_back"
)

// Coordinator runs commands one at a time. The board shows a command's
// effect as soon as Apply returns; if the store write then fails the command
// is compensated and the board is back to its state before Apply.
type Coordinator struct {
	execMu  sync.Mutex
	mu      sync.RWMutex
	board   *Board
	store   repository.Store
	retry   *retry.RetryConfig
	clock   func() time.Time
	metrics *Metrics
	logger  logger.Logger
	changed func()
}

// NewCoordinator creates a coordinator around board. changed is called after
// every visible board change, without any lock held.
func NewCoordinator(board *Board, store repository.Store, writeAttempts int, clock func() time.Time, metrics *Metrics, logger logger.Logger, changed func()) *Coordinator {
	if changed == nil {
		changed = func() {}
	}

	return &Coordinator{
		board: board,
		store: store,
		retry: &retry.RetryConfig{
			MaxAttempts:     writeAttempts,
			BackoffStrategy: retry.NewWriteBackoff(),
			Logger:          logger,
			RetryableErrors: []error{
				apperrors.ErrTemporaryFailure,
				apperrors.ErrTimeout,
			},
		},
		clock:   clock,
		metrics: metrics,
		logger:  logger,
		changed: changed,
	}
}

// Execute applies cmd, persists it and compensates on failure. Validation
// failures come back unchanged. A failed write comes back as the store's
// capacity error when the store rejected the mixer, otherwise as a remote
// write error; in both cases the board has been restored.
func (c *Coordinator) Execute(ctx context.Context, cmd Command) error {
	c.execMu.Lock()
	defer c.execMu.Unlock()

	now := c.clock()

	c.mu.Lock()
	snapshot := c.board.Clone()

	if err := cmd.Apply(c.board, now); err != nil {
		*c.board = *snapshot
		c.mu.Unlock()

		c.metrics.commandDone(cmd.Name(), OutcomeRejected)
		return err
	}
	c.mu.Unlock()

	c.changed()

	err := retry.Retry(ctx, func() error {
		return cmd.Persist(ctx, c.store)
	}, c.retry)

	if err == nil {
		if cm, ok := cmd.(committer); ok {
			c.mu.Lock()
			cm.Commit(c.board)
			c.mu.Unlock()
		}

		c.metrics.commandDone(cmd.Name(), OutcomeCommitted)
		return nil
	}

	c.mu.Lock()
	cmd.Compensate(c.board)

	if !reflect.DeepEqual(c.board, snapshot) {
		c.logger.Error("Compensation left the board changed, restoring snapshot", "command", cmd.Name())
		*c.board = *snapshot
	}
	c.mu.Unlock()

	c.changed()
	c.metrics.commandDone(cmd.Name(), OutcomeRolledBack)

	c.logger.Warn("Store write failed, change rolled back", "command", cmd.Name(), "error", err)

	var appErr *apperrors.AppError

	if errors.Is(err, apperrors.ErrCapacityExceeded) && errors.As(err, &appErr) {
		return appErr
	}

	return apperrors.NewRemoteWriteError(fmt.Sprintf("%s could not be saved and was undone", describe(cmd)), err)
}

// Mutate runs fn against the board outside the command protocol, for changes
// that come from the store itself. fn reports whether it changed anything.
func (c *Coordinator) Mutate(fn func(b *Board, now time.Time) bool) bool {
	c.execMu.Lock()
	defer c.execMu.Unlock()

	c.mu.Lock()
	changed := fn(c.board, c.clock())
	c.mu.Unlock()

	if changed {
		c.changed()
	}

	return changed
}

// Read runs fn with the board read-locked. fn must not keep references.
func (c *Coordinator) Read(fn func(b *Board)) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	fn(c.board)
}

// Snapshot returns a deep copy of the board
func (c *Coordinator) Snapshot() *Board {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.board.Clone()
}

func describe(cmd Command) string {
	if d, ok := cmd.(interface{ Describe() string }); ok {
		return d.Describe()
	}
	return cmd.Name()
}

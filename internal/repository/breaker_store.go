package repository

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"github.com/vaidashi/bakery-production/internal/models"
	apperrors "github.com/vaidashi/bakery-production/pkg/errors"
	"github.com/vaidashi/bakery-production/pkg/logger"
)

// BreakerConfig holds the circuit breaker settings for the store
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultBreakerConfig returns the settings used in production
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "order-store",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakerStore guards a Store with a circuit breaker. Business rejections
// such as a full mixer or a missing row do not count as failures.
type BreakerStore struct {
	next   Store
	cb     *gobreaker.CircuitBreaker
	logger logger.Logger
}

// NewBreakerStore wraps next
func NewBreakerStore(next Store, cfg BreakerConfig, logger logger.Logger) *BreakerStore {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, apperrors.ErrCapacityExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &BreakerStore{
		next:   next,
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: logger,
	}
}

// State returns the breaker state
func (s *BreakerStore) State() gobreaker.State {
	return s.cb.State()
}

func (s *BreakerStore) ListOrders(ctx context.Context, status *models.OrderStatus) ([]*models.Order, error) {
	result, err := s.execute(func() (interface{}, error) {
		return s.next.ListOrders(ctx, status)
	})

	if err != nil {
		return nil, err
	}

	return result.([]*models.Order), nil
}

func (s *BreakerStore) InsertOrder(ctx context.Context, order *models.Order) error {
	_, err := s.execute(func() (interface{}, error) {
		return nil, s.next.InsertOrder(ctx, order)
	})
	return err
}

func (s *BreakerStore) UpdateOrders(ctx context.Context, orders ...*models.Order) error {
	_, err := s.execute(func() (interface{}, error) {
		return nil, s.next.UpdateOrders(ctx, orders...)
	})
	return err
}

func (s *BreakerStore) AssignMixer(ctx context.Context, order *models.Order, capacity int) error {
	_, err := s.execute(func() (interface{}, error) {
		return nil, s.next.AssignMixer(ctx, order, capacity)
	})
	return err
}

func (s *BreakerStore) CompleteBaking(ctx context.Context, orders []*models.Order, day time.Time, increment, target int) (int, error) {
	result, err := s.execute(func() (interface{}, error) {
		return s.next.CompleteBaking(ctx, orders, day, increment, target)
	})

	if err != nil {
		return 0, err
	}

	return result.(int), nil
}

func (s *BreakerStore) DeleteOrder(ctx context.Context, id string) error {
	_, err := s.execute(func() (interface{}, error) {
		return nil, s.next.DeleteOrder(ctx, id)
	})
	return err
}

func (s *BreakerStore) DailyCompleted(ctx context.Context, day time.Time) (int, error) {
	result, err := s.execute(func() (interface{}, error) {
		return s.next.DailyCompleted(ctx, day)
	})

	if err != nil {
		return 0, err
	}

	return result.(int), nil
}

func (s *BreakerStore) NextLabelSequence(ctx context.Context) (int, error) {
	result, err := s.execute(func() (interface{}, error) {
		return s.next.NextLabelSequence(ctx)
	})

	if err != nil {
		return 0, err
	}

	return result.(int), nil
}

func (s *BreakerStore) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := s.cb.Execute(fn)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		s.logger.Warn("Order store unavailable", "breaker", s.cb.Name(), "state", s.cb.State().String())
		return nil, apperrors.NewAppError(apperrors.ErrServiceUnavailable, "order store unavailable", http.StatusServiceUnavailable, false)
	}

	return result, err
}

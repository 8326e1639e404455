package repository

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/vaidashi/bakery-production/internal/models"
	apperrors "github.com/vaidashi/bakery-production/pkg/errors"
	"github.com/vaidashi/bakery-production/pkg/logger"
)

func newBreakerStore(next Store) *BreakerStore {
	cfg := DefaultBreakerConfig()
	cfg.FailureThreshold = 2

	return NewBreakerStore(next, cfg, logger.NewLoggerWithOutput("error", "test", io.Discard))
}

func TestBreakerStoreOpensAfterFailures(t *testing.T) {
	mem := NewMemoryStore()
	mem.FailOn(OpList, errors.New("connection refused"))
	store := newBreakerStore(mem)

	for i := 0; i < 2; i++ {
		_, err := store.ListOrders(context.Background(), nil)
		assert.Error(t, err)
	}

	assert.Equal(t, gobreaker.StateOpen, store.State())

	mem.ClearFailures()
	_, err := store.ListOrders(context.Background(), nil)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavailable)
}

func TestBreakerStoreIgnoresBusinessRejections(t *testing.T) {
	mem := NewMemoryStore()
	mem.Seed(mixingOrder("ord1", 1))
	store := newBreakerStore(mem)

	for i := 0; i < 3; i++ {
		err := store.AssignMixer(context.Background(), mixingOrder("ord2", 1), 1)
		assert.Error(t, err)

		err = store.UpdateOrders(context.Background(), &models.Order{ID: "missing"})
		assert.ErrorIs(t, err, ErrNotFound)
	}

	assert.Equal(t, gobreaker.StateClosed, store.State())
}

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaidashi/bakery-production/internal/models"
	apperrors "github.com/vaidashi/bakery-production/pkg/errors"
)

func TestMemoryStoreAssignMixerEnforcesCapacity(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"ord1", "ord2"} {
		store.Seed(mixingOrder(id, 1))
	}

	next := mixingOrder("ord3", 1)
	next.Status = models.OrderStatusQueued
	store.Seed(next)

	next.Status = models.OrderStatusMixing
	err := store.AssignMixer(ctx, next, 2)
	assert.True(t, errors.Is(err, apperrors.ErrCapacityExceeded))
	assert.Equal(t, models.OrderStatusQueued, store.Order("ord3").Status)

	require.NoError(t, store.AssignMixer(ctx, next, 3))
	assert.Equal(t, models.OrderStatusMixing, store.Order("ord3").Status)
}

func TestMemoryStoreUpdateIsAllOrNothing(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(mixingOrder("ord1", 1))

	changed := mixingOrder("ord1", 1)
	changed.Status = models.OrderStatusBaking

	err := store.UpdateOrders(context.Background(), changed, mixingOrder("missing", 1))

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, models.OrderStatusMixing, store.Order("ord1").Status)
	assert.Empty(t, store.Messages())
}

func TestMemoryStoreInjectedFailures(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(mixingOrder("ord1", 1))
	boom := errors.New("connection reset")

	store.FailTimes(OpUpdate, 1, boom)

	assert.ErrorIs(t, store.UpdateOrders(context.Background(), mixingOrder("ord1", 1)), boom)
	assert.NoError(t, store.UpdateOrders(context.Background(), mixingOrder("ord1", 1)))

	store.FailOn(OpList, boom)
	_, err := store.ListOrders(context.Background(), nil)
	assert.ErrorIs(t, err, boom)

	store.ClearFailures()
	_, err = store.ListOrders(context.Background(), nil)
	assert.NoError(t, err)
}

func TestMemoryStoreDailyCounterIsCapped(t *testing.T) {
	store := NewMemoryStore()
	day := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	completed, err := store.CompleteBaking(context.Background(), nil, day, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, completed)

	completed, err = store.CompleteBaking(context.Background(), nil, day, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, completed)

	other, err := store.DailyCompleted(context.Background(), day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Zero(t, other)
}

func TestMemoryStoreKeepsFirstCompletedAt(t *testing.T) {
	store := NewMemoryStore()
	first := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

	done := mixingOrder("ord1", 1)
	done.Status = models.OrderStatusDone
	done.CompletedAt = models.TimePtr(first)
	store.Seed(done)

	again := done.Clone()
	again.CompletedAt = models.TimePtr(first.Add(time.Hour))
	require.NoError(t, store.UpdateOrders(context.Background(), again))

	assert.True(t, store.Order("ord1").CompletedAt.Equal(first))
}

func TestMemoryStoreOutbox(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.InsertOrder(ctx, mixingOrder("ord1", 1)))
	require.NoError(t, store.DeleteOrder(ctx, "ord1"))

	pending, err := store.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, models.EventOrderCreated, pending[0].EventType)
	assert.Equal(t, models.EventOrderDeleted, pending[1].EventType)

	require.NoError(t, store.MarkAsProcessing(ctx, pending[0].ID))
	require.NoError(t, store.MarkAsCompleted(ctx, pending[0].ID))

	pending, err = store.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

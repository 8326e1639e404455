package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaidashi/bakery-production/internal/database"
	"github.com/vaidashi/bakery-production/internal/models"
	apperrors "github.com/vaidashi/bakery-production/pkg/errors"
	"github.com/vaidashi/bakery-production/pkg/logger"
	"github.com/vaidashi/bakery-production/pkg/retry"
)

func newMockRepo(t *testing.T) (*OrderRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.NewLoggerWithOutput("error", "test", io.Discard)
	wrapped := database.Wrap(sqlx.NewDb(db, "postgres"), log)

	return NewOrderRepository(wrapped, NewOutboxRepository(wrapped, log), log), mock
}

func mixingOrder(id string, mixer int) *models.Order {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	return &models.Order{
		ID:                id,
		BatchLabel:        models.WithMixerSuffix("ROUND VANILLA 18CM", mixer),
		Flavor:            models.FlavorVanilla,
		Shape:             models.ShapeRound,
		SizeCM:            18,
		RequestedQuantity: 1,
		Status:            models.OrderStatusMixing,
		AssignedMixer:     models.IntPtr(mixer),
		EstimatedMinutes:  47,
		PrintCount:        1,
		CreatedAt:         now,
		StartedAt:         models.TimePtr(now),
		UpdatedAt:         now,
	}
}

func TestAssignMixerRejectsFullMixer(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(mixerLockQuery).WithArgs(mixerLockBase + 1).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(mixerOccupancyQuery).WithArgs(1, "ord1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectRollback()

	err := repo.AssignMixer(context.Background(), mixingOrder("ord1", 1), 5)

	assert.True(t, errors.Is(err, apperrors.ErrCapacityExceeded))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignMixerWritesOrderAndEvent(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(mixerLockQuery).WithArgs(mixerLockBase + 2).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(mixerOccupancyQuery).WithArgs(2, "ord1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectExec(updateOrderQuery).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(insertOutboxQuery).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectCommit()

	err := repo.AssignMixer(context.Background(), mixingOrder("ord1", 2), 5)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrdersRollsBackOnMissingRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(updateOrderQuery).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(insertOutboxQuery).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(updateOrderQuery).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.UpdateOrders(context.Background(), mixingOrder("ord1", 1), mixingOrder("ord2", 1))

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteBakingBumpsCounter(t *testing.T) {
	repo, mock := newMockRepo(t)
	day := time.Date(2026, 10, 18, 15, 0, 0, 0, time.UTC)

	order := mixingOrder("ord1", 1)
	order.Status = models.OrderStatusDone

	mock.ExpectBegin()
	mock.ExpectExec(updateOrderQuery).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(insertOutboxQuery).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery(bumpDailyQuery).WithArgs("2026-10-18", 2, 40).
		WillReturnRows(sqlmock.NewRows([]string{"completed"}).AddRow(7))
	mock.ExpectCommit()

	completed, err := repo.CompleteBaking(context.Background(), []*models.Order{order}, day, 2, 40)

	require.NoError(t, err)
	assert.Equal(t, 7, completed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOrder(t *testing.T) {
	t.Run("writes delete event", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectExec(deleteOrderQuery).WithArgs("ord1").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(insertOutboxQuery).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
		mock.ExpectCommit()

		assert.NoError(t, repo.DeleteOrder(context.Background(), "ord1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectExec(deleteOrderQuery).WithArgs("nope").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		assert.ErrorIs(t, repo.DeleteOrder(context.Background(), "nope"), ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListOrdersByStatus(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)

	columns := []string{
		"id", "batch_label", "flavor", "shape", "size_cm", "requested_quantity", "produced_quantity",
		"is_priority", "notes", "status", "assigned_mixer", "assigned_oven", "estimated_minutes", "print_count",
		"created_at", "started_at", "bake_started_at", "completed_at", "updated_at",
	}

	rows := sqlmock.NewRows(columns).
		AddRow("ord1", "ROUND VANILLA 18CM (Mixer #2)", "vanilla", "round", 18, 2, nil,
			true, "", "mixing", 2, nil, 49, 1, created, created, nil, nil, created)

	status := models.OrderStatusMixing
	mock.ExpectQuery(listOrdersByStatusQuery).WithArgs("mixing").WillReturnRows(rows)

	orders, err := repo.ListOrders(context.Background(), &status)

	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.FlavorVanilla, orders[0].Flavor)
	assert.Nil(t, orders[0].ProducedQuantity)
	require.NotNil(t, orders[0].AssignedMixer)
	assert.Equal(t, 2, *orders[0].AssignedMixer)
	assert.True(t, orders[0].IsPriority)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyCompletedWithoutRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(dailyCompletedQuery).WithArgs("2026-10-18").
		WillReturnRows(sqlmock.NewRows([]string{"completed"}))

	completed, err := repo.DailyCompleted(context.Background(), time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.Zero(t, completed)
}

func TestDBErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		temporary bool
		timeout   bool
	}{
		{"bad connection", driver.ErrBadConn, true, false},
		{"connection failure", &pq.Error{Code: "08006"}, true, false},
		{"serialization failure", &pq.Error{Code: "40001"}, true, false},
		{"deadlock", &pq.Error{Code: "40P01"}, true, false},
		{"deadline", context.DeadlineExceeded, false, true},
		{"syntax error", &pq.Error{Code: "42601"}, false, false},
		{"unique violation", &pq.Error{Code: "23505"}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := dbError(tt.err, "failed to begin transaction")

			assert.ErrorIs(t, err, ErrDatabase)
			assert.Equal(t, tt.temporary, errors.Is(err, apperrors.ErrTemporaryFailure))
			assert.Equal(t, tt.timeout, errors.Is(err, apperrors.ErrTimeout))
			assert.Equal(t, tt.temporary || tt.timeout, apperrors.IsRetryable(err))
		})
	}
}

func TestUpdateOrdersRetriedAfterDeadlockOnBegin(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin().WillReturnError(&pq.Error{Code: "40P01", Message: "deadlock detected"})
	mock.ExpectBegin()
	mock.ExpectExec(updateOrderQuery).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(insertOutboxQuery).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))
	mock.ExpectCommit()

	attempts := 0
	err := retry.Retry(context.Background(), func() error {
		attempts++
		return repo.UpdateOrders(context.Background(), mixingOrder("ord1", 1))
	}, &retry.RetryConfig{
		MaxAttempts:     3,
		BackoffStrategy: &retry.ExponentialBackoff{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 1},
		RetryableErrors: []error{apperrors.ErrTemporaryFailure, apperrors.ErrTimeout},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrdersNotRetriedOnConstraintViolation(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(updateOrderQuery).WillReturnError(&pq.Error{Code: "23514", Message: "check violation"})
	mock.ExpectRollback()

	err := repo.UpdateOrders(context.Background(), mixingOrder("ord1", 1))

	assert.ErrorIs(t, err, ErrDatabase)
	assert.False(t, apperrors.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

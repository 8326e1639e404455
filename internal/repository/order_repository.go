package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/vaidashi/bakery-production/internal/database"
	"github.com/vaidashi/bakery-production/internal/models"
	apperrors "github.com/vaidashi/bakery-production/pkg/errors"
	"github.com/vaidashi/bakery-production/pkg/logger"
)

const orderColumns = `id, batch_label, flavor, shape, size_cm, requested_quantity, produced_quantity,
		is_priority, notes, status, assigned_mixer, assigned_oven, estimated_minutes, print_count,
		created_at, started_at, bake_started_at, completed_at, updated_at`

const (
	listOrdersQuery = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at ASC, id ASC`

	listOrdersByStatusQuery = `SELECT ` + orderColumns + ` FROM orders WHERE status = $1 ORDER BY created_at ASC, id ASC`

	insertOrderQuery = `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	updateOrderQuery = `
		UPDATE orders
		SET batch_label = $1, produced_quantity = $2, notes = $3, status = $4,
			assigned_mixer = $5, assigned_oven = $6, print_count = $7, started_at = $8,
			bake_started_at = $9, completed_at = COALESCE(completed_at, $10), updated_at = $11
		WHERE id = $12
	`

	mixerLockQuery = `SELECT pg_advisory_xact_lock($1)`

	mixerOccupancyQuery = `SELECT COUNT(*) FROM orders WHERE status = 'mixing' AND assigned_mixer = $1 AND id <> $2`

	deleteOrderQuery = `DELETE FROM orders WHERE id = $1`

	bumpDailyQuery = `
		INSERT INTO daily_production (day, completed) VALUES ($1, LEAST($2, $3))
		ON CONFLICT (day) DO UPDATE SET completed = LEAST(daily_production.completed + $2, $3)
		RETURNING completed
	`

	dailyCompletedQuery = `SELECT completed FROM daily_production WHERE day = $1`

	nextLabelSeqQuery = `SELECT nextval('custom_label_seq')`
)

// mixerLockBase keeps the advisory lock keys for mixers out of the way of
// anything else that might take advisory locks on the same database.
const mixerLockBase = 7_310_000

// OrderRepository handles database operations for orders
type OrderRepository struct {
	db     *database.Database
	outbox *OutboxRepository
	logger logger.Logger
}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(db *database.Database, outbox *OutboxRepository, logger logger.Logger) *OrderRepository {
	return &OrderRepository{
		db:     db,
		outbox: outbox,
		logger: logger,
	}
}

// ListOrders retrieves orders, oldest first
func (r *OrderRepository) ListOrders(ctx context.Context, status *models.OrderStatus) ([]*models.Order, error) {
	var orders []*models.Order
	var err error

	if status != nil {
		err = r.db.DB.SelectContext(ctx, &orders, listOrdersByStatusQuery, *status)
	} else {
		err = r.db.DB.SelectContext(ctx, &orders, listOrdersQuery)
	}

	if err != nil {
		r.logger.Error("Failed to list orders", "error", err)
		return nil, dbError(err, "")
	}

	return orders, nil
}

// InsertOrder inserts a new order and its created event
func (r *OrderRepository) InsertOrder(ctx context.Context, order *models.Order) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(
			ctx,
			insertOrderQuery,
			order.ID,
			order.BatchLabel,
			order.Flavor,
			order.Shape,
			order.SizeCM,
			order.RequestedQuantity,
			order.ProducedQuantity,
			order.IsPriority,
			order.Notes,
			order.Status,
			order.AssignedMixer,
			order.AssignedOven,
			order.EstimatedMinutes,
			order.PrintCount,
			order.CreatedAt,
			order.StartedAt,
			order.BakeStartedAt,
			order.CompletedAt,
			order.UpdatedAt,
		)

		if err != nil {
			r.logger.Error("Failed to create order", "error", err, "orderID", order.ID)
			return dbError(err, "")
		}

		return r.writeEvent(ctx, tx, models.EventOrderCreated, order)
	})
}

// UpdateOrders writes the given orders in one transaction
func (r *OrderRepository) UpdateOrders(ctx context.Context, orders ...*models.Order) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, order := range orders {
			if err := r.updateInTx(ctx, tx, order); err != nil {
				return err
			}
		}

		return nil
	})
}

// AssignMixer moves order into a mixer, re-checking capacity against the
// committed rows while holding the mixer's advisory lock.
func (r *OrderRepository) AssignMixer(ctx context.Context, order *models.Order, capacity int) error {
	if order.AssignedMixer == nil {
		return fmt.Errorf("%w: order %s has no mixer", ErrDatabase, order.ID)
	}

	mixer := *order.AssignedMixer

	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, mixerLockQuery, mixerLockBase+mixer); err != nil {
			return dbError(err, "")
		}

		var occupied int
		err := tx.GetContext(ctx, &occupied, mixerOccupancyQuery, mixer, order.ID)

		if err != nil {
			return dbError(err, "")
		}

		if occupied >= capacity {
			r.logger.Warn("Mixer full at commit time", "mixer", mixer, "orderID", order.ID, "occupied", occupied)
			return apperrors.NewCapacityExceededError(fmt.Sprintf("Mixer #%d is full", mixer))
		}

		return r.updateInTx(ctx, tx, order)
	})
}

// CompleteBaking writes the finished orders and bumps the daily counter
func (r *OrderRepository) CompleteBaking(ctx context.Context, orders []*models.Order, day time.Time, increment, target int) (int, error) {
	var completed int

	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, order := range orders {
			if err := r.updateInTx(ctx, tx, order); err != nil {
				return err
			}
		}

		err := tx.GetContext(ctx, &completed, bumpDailyQuery, dayOf(day), increment, target)

		if err != nil {
			return dbError(err, "")
		}

		return nil
	})

	if err != nil {
		return 0, err
	}

	return completed, nil
}

// DeleteOrder deletes an order by its ID
func (r *OrderRepository) DeleteOrder(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, deleteOrderQuery, id)

		if err != nil {
			r.logger.Error("Failed to delete order", "error", err, "orderID", id)
			return dbError(err, "")
		}

		rowsAffected, err := result.RowsAffected()

		if err != nil {
			return dbError(err, "")
		}

		if rowsAffected == 0 {
			return ErrNotFound
		}

		msg, err := models.NewOrderDeletedEvent(id)

		if err != nil {
			return fmt.Errorf("failed to build delete event: %w", err)
		}

		return r.outbox.CreateInTx(ctx, tx, msg)
	})
}

// DailyCompleted returns the number of batches completed on day
func (r *OrderRepository) DailyCompleted(ctx context.Context, day time.Time) (int, error) {
	var completed int
	err := r.db.DB.GetContext(ctx, &completed, dailyCompletedQuery, dayOf(day))

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		r.logger.Error("Failed to read daily counter", "error", err)
		return 0, dbError(err, "")
	}

	return completed, nil
}

// NextLabelSequence returns the next custom label number
func (r *OrderRepository) NextLabelSequence(ctx context.Context) (int, error) {
	var seq int
	err := r.db.DB.GetContext(ctx, &seq, nextLabelSeqQuery)

	if err != nil {
		return 0, dbError(err, "")
	}

	return seq, nil
}

func (r *OrderRepository) updateInTx(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	result, err := tx.ExecContext(
		ctx,
		updateOrderQuery,
		order.BatchLabel,
		order.ProducedQuantity,
		order.Notes,
		order.Status,
		order.AssignedMixer,
		order.AssignedOven,
		order.PrintCount,
		order.StartedAt,
		order.BakeStartedAt,
		order.CompletedAt,
		order.UpdatedAt,
		order.ID,
	)

	if err != nil {
		r.logger.Error("Failed to update order", "error", err, "orderID", order.ID)
		return dbError(err, "")
	}

	rowsAffected, err := result.RowsAffected()

	if err != nil {
		return dbError(err, "")
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return r.writeEvent(ctx, tx, models.EventOrderUpdated, order)
}

func (r *OrderRepository) writeEvent(ctx context.Context, tx *sqlx.Tx, eventType string, order *models.Order) error {
	msg, err := models.NewOrderChangedEvent(eventType, order)

	if err != nil {
		return fmt.Errorf("failed to build %s event: %w", eventType, err)
	}

	return r.outbox.CreateInTx(ctx, tx, msg)
}

// inTx runs fn inside a transaction, rolling back on any error
func (r *OrderRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := r.db.DB.BeginTxx(ctx, nil)

	if err != nil {
		return dbError(err, "failed to begin transaction")
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Error("Failed to rollback transaction", "error", rbErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return dbError(err, "failed to commit transaction")
	}

	return nil
}

// dbError wraps err as ErrDatabase. Dropped connections, serialization
// failures and deadlocks come back as temporary errors and deadlines as
// timeouts, so the coordinator retries the write.
func dbError(err error, action string) error {
	wrapped := fmt.Errorf("%w: %v", ErrDatabase, err)

	if action != "" {
		wrapped = fmt.Errorf("%w: %s: %v", ErrDatabase, action, err)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewAppError(fmt.Errorf("%w: %w", apperrors.ErrTimeout, wrapped), wrapped.Error(), http.StatusGatewayTimeout, true)
	case isTransient(err):
		return apperrors.NewAppError(fmt.Errorf("%w: %w", apperrors.ErrTemporaryFailure, wrapped), wrapped.Error(), http.StatusServiceUnavailable, true)
	}

	return wrapped
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var pqErr *pq.Error

	if errors.As(err, &pqErr) {
		// 08: connection exception, 40: serialization failure or deadlock
		switch pqErr.Code.Class() {
		case "08", "40":
			return true
		}
	}

	return false
}

func dayOf(t time.Time) string {
	return t.Format("2006-01-02")
}

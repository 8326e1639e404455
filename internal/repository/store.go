package repository

import (
	"context"
	"errors"
	"time"

	"github.com/vaidashi/bakery-production/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrDatabase = errors.New("database error")
)

// Store is the remote source of truth for orders. Every write is atomic: it
// either lands completely, together with its change event, or not at all.
type Store interface {
	// ListOrders returns orders ordered by creation time, optionally filtered by status
	ListOrders(ctx context.Context, status *models.OrderStatus) ([]*models.Order, error)
	InsertOrder(ctx context.Context, order *models.Order) error
	// UpdateOrders overwrites the mutable fields of every given order
	UpdateOrders(ctx context.Context, orders ...*models.Order) error
	// AssignMixer writes order and re-checks mixer capacity under a per-mixer
	// lock. It fails with errors.ErrCapacityExceeded when the mixer is full.
	AssignMixer(ctx context.Context, order *models.Order, capacity int) error
	// CompleteBaking writes the finished orders and bumps the day's counter,
	// capped at target. It returns the counter after the increment.
	CompleteBaking(ctx context.Context, orders []*models.Order, day time.Time, increment, target int) (int, error)
	DeleteOrder(ctx context.Context, id string) error
	DailyCompleted(ctx context.Context, day time.Time) (int, error)
	// NextLabelSequence hands out the sequence number for custom batch labels
	NextLabelSequence(ctx context.Context) (int, error)
}

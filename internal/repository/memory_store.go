package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vaidashi/bakery-production/internal/models"
	apperrors "github.com/vaidashi/bakery-production/pkg/errors"
)

// Store operations, used to target injected failures
const (
	OpList           = "list"
	OpInsert         = "insert"
	OpUpdate         = "update"
	OpAssignMixer    = "assign_mixer"
	OpCompleteBaking = "complete_baking"
	OpDelete         = "delete"
	OpDaily          = "daily"
	OpSequence       = "sequence"
)

type injectedFailure struct {
	err       error
	remaining int // < 0 fails forever
}

// MemoryStore is an in-process Store. It keeps the same atomicity as the
// Postgres store, records outbox messages and can be told to fail.
type MemoryStore struct {
	mu       sync.Mutex
	orders   map[string]*models.Order
	daily    map[string]int
	seq      int
	outbox   []*models.OutboxMessage
	nextMsg  int64
	failures map[string]*injectedFailure
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:   make(map[string]*models.Order),
		daily:    make(map[string]int),
		failures: make(map[string]*injectedFailure),
	}
}

// Seed puts orders in the store without producing change events
func (s *MemoryStore) Seed(orders ...*models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range orders {
		s.orders[o.ID] = o.Clone()
	}
}

// FailOn makes every call to op fail with err until cleared
func (s *MemoryStore) FailOn(op string, err error) {
	s.FailTimes(op, -1, err)
}

// FailTimes makes the next n calls to op fail with err
func (s *MemoryStore) FailTimes(op string, n int, err error) {
	if n == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[op] = &injectedFailure{err: err, remaining: n}
}

// ClearFailures removes every injected failure
func (s *MemoryStore) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures = make(map[string]*injectedFailure)
}

// Order returns a copy of the stored order, or nil
func (s *MemoryStore) Order(id string) *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.orders[id].Clone()
}

// ListOrders retrieves orders, oldest first
func (s *MemoryStore) ListOrders(ctx context.Context, status *models.OrderStatus) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(OpList); err != nil {
		return nil, err
	}

	orders := make([]*models.Order, 0, len(s.orders))

	for _, o := range s.orders {
		if status != nil && o.Status != *status {
			continue
		}
		orders = append(orders, o.Clone())
	}

	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})

	return orders, nil
}

// InsertOrder stores a new order
func (s *MemoryStore) InsertOrder(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(OpInsert); err != nil {
		return err
	}

	if _, exists := s.orders[order.ID]; exists {
		return fmt.Errorf("%w: duplicate order id %s", ErrDatabase, order.ID)
	}

	s.orders[order.ID] = order.Clone()
	return s.record(models.EventOrderCreated, order)
}

// UpdateOrders overwrites every given order or none of them
func (s *MemoryStore) UpdateOrders(ctx context.Context, orders ...*models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(OpUpdate); err != nil {
		return err
	}

	return s.updateAll(orders)
}

// AssignMixer writes order after checking the mixer's committed occupancy
func (s *MemoryStore) AssignMixer(ctx context.Context, order *models.Order, capacity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(OpAssignMixer); err != nil {
		return err
	}

	if order.AssignedMixer == nil {
		return fmt.Errorf("%w: order %s has no mixer", ErrDatabase, order.ID)
	}

	occupied := 0

	for id, o := range s.orders {
		if id != order.ID && o.Status == models.OrderStatusMixing && o.AssignedMixer != nil && *o.AssignedMixer == *order.AssignedMixer {
			occupied++
		}
	}

	if occupied >= capacity {
		return apperrors.NewCapacityExceededError(fmt.Sprintf("Mixer #%d is full", *order.AssignedMixer))
	}

	return s.updateAll([]*models.Order{order})
}

// CompleteBaking writes the finished orders and bumps the day's counter
func (s *MemoryStore) CompleteBaking(ctx context.Context, orders []*models.Order, day time.Time, increment, target int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(OpCompleteBaking); err != nil {
		return 0, err
	}

	if err := s.updateAll(orders); err != nil {
		return 0, err
	}

	key := dayOf(day)
	completed := s.daily[key] + increment

	if completed > target {
		completed = target
	}

	s.daily[key] = completed
	return completed, nil
}

// DeleteOrder removes an order
func (s *MemoryStore) DeleteOrder(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(OpDelete); err != nil {
		return err
	}

	if _, exists := s.orders[id]; !exists {
		return ErrNotFound
	}

	msg, err := models.NewOrderDeletedEvent(id)

	if err != nil {
		return err
	}

	delete(s.orders, id)
	s.append(msg)
	return nil
}

// DailyCompleted returns the counter for day
func (s *MemoryStore) DailyCompleted(ctx context.Context, day time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(OpDaily); err != nil {
		return 0, err
	}

	return s.daily[dayOf(day)], nil
}

// NextLabelSequence returns the next custom label number
func (s *MemoryStore) NextLabelSequence(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(OpSequence); err != nil {
		return 0, err
	}

	s.seq++
	return s.seq, nil
}

// GetPendingMessages returns pending outbox messages in insertion order
func (s *MemoryStore) GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*models.OutboxMessage

	for _, m := range s.outbox {
		if m.Status != models.OutboxStatusPending {
			continue
		}

		c := *m
		pending = append(pending, &c)

		if len(pending) == limit {
			break
		}
	}

	return pending, nil
}

// MarkAsProcessing flags a message as in flight
func (s *MemoryStore) MarkAsProcessing(ctx context.Context, id int64) error {
	return s.markMessage(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxStatusProcessing
		m.ProcessingAttempts++
	})
}

// MarkAsCompleted flags a message as published
func (s *MemoryStore) MarkAsCompleted(ctx context.Context, id int64) error {
	return s.markMessage(id, func(m *models.OutboxMessage) {
		now := time.Now().UTC()
		m.Status = models.OutboxStatusCompleted
		m.ProcessedAt = &now
	})
}

// MarkForRetry puts a message back in the pending set
func (s *MemoryStore) MarkForRetry(ctx context.Context, id int64, errorMessage string) error {
	return s.markMessage(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxStatusPending
		m.LastError = &errorMessage
	})
}

// MarkAsFailed gives up on a message
func (s *MemoryStore) MarkAsFailed(ctx context.Context, id int64, errorMessage string) error {
	return s.markMessage(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxStatusFailed
		m.LastError = &errorMessage
	})
}

// Messages returns a copy of every recorded outbox message
func (s *MemoryStore) Messages() []models.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.OutboxMessage, len(s.outbox))

	for i, m := range s.outbox {
		out[i] = *m
	}

	return out
}

func (s *MemoryStore) markMessage(id int64, fn func(m *models.OutboxMessage)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.outbox {
		if m.ID == id {
			fn(m)
			return nil
		}
	}

	return ErrNotFound
}

// updateAll checks every order exists before touching any of them
func (s *MemoryStore) updateAll(orders []*models.Order) error {
	for _, o := range orders {
		if _, exists := s.orders[o.ID]; !exists {
			return ErrNotFound
		}
	}

	for _, o := range orders {
		stored := o.Clone()

		if prev := s.orders[o.ID]; prev.CompletedAt != nil {
			stored.CompletedAt = prev.CompletedAt
		}

		s.orders[o.ID] = stored

		if err := s.record(models.EventOrderUpdated, stored); err != nil {
			return err
		}
	}

	return nil
}

func (s *MemoryStore) record(eventType string, order *models.Order) error {
	msg, err := models.NewOrderChangedEvent(eventType, order)

	if err != nil {
		return err
	}

	s.append(msg)
	return nil
}

func (s *MemoryStore) append(msg *models.OutboxMessage) {
	s.nextMsg++
	msg.ID = s.nextMsg
	s.outbox = append(s.outbox, msg)
}

func (s *MemoryStore) failure(op string) error {
	f, ok := s.failures[op]

	if !ok {
		return nil
	}

	if f.remaining > 0 {
		f.remaining--

		if f.remaining == 0 {
			delete(s.failures, op)
		}
	}

	return f.err
}

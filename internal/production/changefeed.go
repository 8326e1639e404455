package production

import (
	"context"
	"fmt"
	"time"

	"github.com/vaidashi/bakery-production/internal/models"
	"github.com/vaidashi/bakery-production/internal/notify"
	"github.com/vaidashi/bakery-production/internal/timer"
)

// Change feed results
const (
	ChangeApplied   = "applied"
	ChangeStale     = "stale"
	ChangeIdentical = "identical"
	ChangeUnknown   = "unknown"
)

// ApplyChange folds one change from the store into the board. Changes older
// than what the board holds, or identical to it, are ignored. It returns
// whether the board changed.
func (e *Engine) ApplyChange(ctx context.Context, change models.OrderChange) (bool, error) {
	var result string

	switch change.Op {
	case models.ChangeUpsert:
		if change.Order == nil || change.Order.ID == "" {
			return false, fmt.Errorf("upsert change without an order")
		}
	case models.ChangeDelete:
		if change.ID == "" {
			return false, fmt.Errorf("delete change without an id")
		}
	default:
		return false, fmt.Errorf("unknown change op %q", change.Op)
	}

	applied := e.coord.Mutate(func(b *Board, now time.Time) bool {
		result = applyChange(b, change)

		if result != ChangeApplied {
			return false
		}

		reconcileOvens(b, e.cfg.BakeDuration, now)
		return true
	})

	e.metrics.changeApplied(string(change.Op), result)

	if applied {
		e.logger.Debug("Applied change from store", "op", change.Op, "orderID", change.ID)
	}

	return applied, nil
}

func applyChange(b *Board, change models.OrderChange) string {
	switch change.Op {
	case models.ChangeUpsert:
		incoming := change.Order
		local, exists := b.Orders[incoming.ID]

		if exists {
			if incoming.UpdatedAt.Before(local.UpdatedAt) {
				return ChangeStale
			}

			if local.Equal(incoming) {
				return ChangeIdentical
			}
		}

		b.Orders[incoming.ID] = incoming.Clone()
		return ChangeApplied

	case models.ChangeDelete:
		if _, exists := b.Orders[change.ID]; !exists {
			return ChangeIdentical
		}

		delete(b.Orders, change.ID)
		return ChangeApplied
	}

	return ChangeUnknown
}

// Resync replaces the board's orders and daily counter with the store's.
// It runs at startup and periodically as a safety net under the change feed.
func (e *Engine) Resync(ctx context.Context) error {
	orders, err := e.store.ListOrders(ctx, nil)

	if err != nil {
		e.logger.Error("Failed to resync orders", "error", err)
		e.notify(ctx, notify.SeverityWarning, "Could not refresh orders", err.Error())
		return err
	}

	now := e.clock()
	daily, err := e.store.DailyCompleted(ctx, now)

	if err != nil {
		e.logger.Error("Failed to resync daily counter", "error", err)
		return err
	}

	e.coord.Mutate(func(b *Board, now time.Time) bool {
		fresh := make(map[string]*models.Order, len(orders))

		for _, o := range orders {
			fresh[o.ID] = o
		}

		b.Orders = fresh
		b.Day = dayOf(now)
		b.DailyCompleted = daily
		reconcileOvens(b, e.cfg.BakeDuration, now)

		return true
	})

	e.logger.Info("Board resynced from store", "orders", len(orders), "dailyCompleted", daily)
	return nil
}

// reconcileOvens rebuilds each oven from the baking orders assigned to it.
// Existing batches keep their grouping minus members that left; orders new
// to an oven are grouped by flavor, shape and size. An oven left with no
// orders goes idle.
func reconcileOvens(b *Board, bake time.Duration, now time.Time) {
	members := make(map[int][]*models.Order, OvenCount)

	for _, o := range b.OrderList() {
		if o.Status == models.OrderStatusBaking && o.AssignedOven != nil && ValidOven(*o.AssignedOven) {
			members[*o.AssignedOven] = append(members[*o.AssignedOven], o)
		}
	}

	for i := range b.Ovens {
		n := i + 1
		oven := &b.Ovens[i]
		inOven := members[n]

		if len(inOven) == 0 {
			if oven.IsActive || len(oven.Batches) > 0 {
				*oven = idleOven(n)
			}
			continue
		}

		present := make(map[string]*models.Order, len(inOven))
		for _, o := range inOven {
			present[o.ID] = o
		}

		placed := make(map[string]bool, len(inOven))
		var batches []OvenBatch

		for _, batch := range oven.Batches {
			var kept []*models.Order

			for _, id := range batch.OrderIDs {
				if o, ok := present[id]; ok && !placed[id] {
					placed[id] = true
					kept = append(kept, o)
				}
			}

			if len(kept) > 0 {
				batches = append(batches, ovenBatch(kept))
			}
		}

		var leftovers []*models.Order
		for _, o := range inOven {
			if !placed[o.ID] {
				leftovers = append(leftovers, o)
			}
		}

		for _, g := range groupOrders(leftovers, ovenKey) {
			var grouped []*models.Order
			for _, id := range g.ids {
				grouped = append(grouped, present[id])
			}
			batches = append(batches, ovenBatch(grouped))
		}

		oven.Batches = batches

		if !oven.IsActive || oven.StartedAt == nil {
			start := earliestBakeStart(inOven, now)
			left := int(timer.Remaining(start, bake, now) / time.Second)

			oven.IsActive = true
			oven.StartedAt = &start
			oven.TimeRemaining = &left
		}
	}
}

func ovenBatch(orders []*models.Order) OvenBatch {
	batch := OvenBatch{}

	for _, o := range orders {
		batch.OrderIDs = append(batch.OrderIDs, o.ID)
		batch.Labels = appendUnique(batch.Labels, models.StripResourceSuffix(o.BatchLabel))
	}

	batch.ID = BatchID(batch.OrderIDs)
	return batch
}

func earliestBakeStart(orders []*models.Order, fallback time.Time) time.Time {
	var earliest *time.Time

	for _, o := range orders {
		if o.BakeStartedAt != nil && (earliest == nil || o.BakeStartedAt.Before(*earliest)) {
			earliest = o.BakeStartedAt
		}
	}

	if earliest == nil {
		return fallback
	}

	return *earliest
}

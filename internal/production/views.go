package production

import (
	"time"

	"github.com/vaidashi/bakery-production/internal/models"
	"github.com/vaidashi/bakery-production/internal/timer"
)

// MixerView is one mixer as the display shows it
type MixerView struct {
	Number             int                      `json:"number"`
	Occupancy          int                      `json:"occupancy"`
	Capacity           int                      `json:"capacity"`
	Items              []ConsolidatedMixingItem `json:"items"`
	CountdownStartedAt *time.Time               `json:"countdown_started_at,omitempty"`
}

// BoardView is a point-in-time copy of everything the display needs
type BoardView struct {
	Orders         []*models.Order  `json:"orders"`
	Mixers         []MixerView      `json:"mixers"`
	Ovens          []Oven           `json:"ovens"`
	OvenQueue      []OvenReadyBatch `json:"oven_queue"`
	DailyCompleted int              `json:"daily_completed"`
	DailyTarget    int              `json:"daily_target"`
	Day            string           `json:"day"`
	Timers         []timer.Status   `json:"timers"`
	GeneratedAt    time.Time        `json:"generated_at"`
}

// Board returns a snapshot of the whole board
func (e *Engine) Board() BoardView {
	b := e.coord.Snapshot()
	now := e.clock()
	orders := b.OrderList()

	return BoardView{
		Orders:         orders,
		Mixers:         e.mixerViews(b, orders),
		Ovens:          e.ovenViews(b, now),
		OvenQueue:      OvenQueue(orders),
		DailyCompleted: b.DailyCompleted,
		DailyTarget:    e.cfg.DailyTarget,
		Day:            b.Day,
		Timers:         e.scheduler.Snapshot(),
		GeneratedAt:    now,
	}
}

// Order returns a copy of one order
func (e *Engine) Order(id string) (*models.Order, error) {
	var (
		order *models.Order
		err   error
	)

	e.coord.Read(func(b *Board) {
		var o *models.Order
		if o, err = lookup(b, id); err == nil {
			order = o.Clone()
		}
	})

	return order, err
}

// Orders returns the orders oldest first, optionally only those in status
func (e *Engine) Orders(status *models.OrderStatus) []*models.Order {
	b := e.coord.Snapshot()
	orders := b.OrderList()

	if status == nil {
		return orders
	}

	filtered := make([]*models.Order, 0, len(orders))

	for _, o := range orders {
		if o.Status == *status {
			filtered = append(filtered, o)
		}
	}

	return filtered
}

// Mixers returns each mixer with its consolidated items
func (e *Engine) Mixers() []MixerView {
	b := e.coord.Snapshot()
	return e.mixerViews(b, b.OrderList())
}

// Ovens returns both ovens with a live TimeRemaining
func (e *Engine) Ovens() []Oven {
	return e.ovenViews(e.coord.Snapshot(), e.clock())
}

// OvenQueue returns the batches that finished mixing and wait for an oven
func (e *Engine) OvenQueue() []OvenReadyBatch {
	return OvenQueue(e.coord.Snapshot().OrderList())
}

// DailyCompleted returns today's completed batches and the target
func (e *Engine) DailyCompleted() (int, int) {
	var completed int

	e.coord.Read(func(b *Board) {
		completed = b.DailyCompleted
	})

	return completed, e.cfg.DailyTarget
}

func (e *Engine) mixerViews(b *Board, orders []*models.Order) []MixerView {
	views := make([]MixerView, 0, MixerCount)

	for n := 1; n <= MixerCount; n++ {
		view := MixerView{
			Number:    n,
			Occupancy: Occupancy(b.Orders, n),
			Capacity:  e.cfg.MixerCapacity,
			Items:     ConsolidateMixer(orders, n),
		}

		if at, ok := b.MixerCountdowns[n]; ok {
			view.CountdownStartedAt = models.TimePtr(at)
		}

		views = append(views, view)
	}

	return views
}

func (e *Engine) ovenViews(b *Board, now time.Time) []Oven {
	ovens := make([]Oven, 0, OvenCount)

	for _, oven := range b.Ovens {
		view := oven.Clone()

		if view.Batches == nil {
			view.Batches = make([]OvenBatch, 0)
		}

		if view.IsActive && view.StartedAt != nil {
			left := int(timer.Remaining(*view.StartedAt, e.cfg.BakeDuration, now) / time.Second)
			view.TimeRemaining = &left
		}

		ovens = append(ovens, view)
	}

	return ovens
}

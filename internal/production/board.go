package production

import (
	"sort"
	"time"

	"github.com/vaidashi/bakery-production/internal/models"
)

const (
	MixerCount = 2
	OvenCount  = 2
)

// OvenBatch is a group of orders that went into an oven together
type OvenBatch struct {
	ID       string   `json:"id"`
	OrderIDs []string `json:"order_ids"`
	Labels   []string `json:"labels"`
}

// Oven is a logical oven. TimeRemaining is in seconds and goes negative once
// the bake is overdue; it is nil while the oven is idle.
type Oven struct {
	Number        int         `json:"number"`
	IsActive      bool        `json:"is_active"`
	StartedAt     *time.Time  `json:"started_at,omitempty"`
	TimeRemaining *int        `json:"time_remaining,omitempty"`
	Batches       []OvenBatch `json:"batches"`
}

// Board is the local mirror of the kitchen
type Board struct {
	Orders          map[string]*models.Order
	Ovens           [OvenCount]Oven
	MixerCountdowns map[int]time.Time
	DailyCompleted  int
	Day             string
}

// NewBoard returns an empty board for day
func NewBoard(day string) *Board {
	b := &Board{
		Orders:          make(map[string]*models.Order),
		MixerCountdowns: make(map[int]time.Time),
		Day:             day,
	}

	for i := range b.Ovens {
		b.Ovens[i] = idleOven(i + 1)
	}

	return b
}

// Clone returns a deep copy
func (b *Board) Clone() *Board {
	c := &Board{
		Orders:          make(map[string]*models.Order, len(b.Orders)),
		MixerCountdowns: make(map[int]time.Time, len(b.MixerCountdowns)),
		DailyCompleted:  b.DailyCompleted,
		Day:             b.Day,
	}

	for id, o := range b.Orders {
		c.Orders[id] = o.Clone()
	}

	for n, at := range b.MixerCountdowns {
		c.MixerCountdowns[n] = at
	}

	for i := range b.Ovens {
		c.Ovens[i] = b.Ovens[i].Clone()
	}

	return c
}

// OrderList returns the orders oldest first, ties broken by id
func (b *Board) OrderList() []*models.Order {
	orders := make([]*models.Order, 0, len(b.Orders))

	for _, o := range b.Orders {
		orders = append(orders, o)
	}

	sortOrders(orders)
	return orders
}

// Oven returns oven n, or nil when n is out of range
func (b *Board) Oven(n int) *Oven {
	if !ValidOven(n) {
		return nil
	}
	return &b.Ovens[n-1]
}

// Clone returns a deep copy
func (o Oven) Clone() Oven {
	c := o

	if o.StartedAt != nil {
		at := *o.StartedAt
		c.StartedAt = &at
	}

	if o.TimeRemaining != nil {
		left := *o.TimeRemaining
		c.TimeRemaining = &left
	}

	if o.Batches != nil {
		c.Batches = make([]OvenBatch, len(o.Batches))

		for i, batch := range o.Batches {
			c.Batches[i] = OvenBatch{
				ID:       batch.ID,
				OrderIDs: cloneStrings(batch.OrderIDs),
				Labels:   cloneStrings(batch.Labels),
			}
		}
	}

	return c
}

// OrderIDs returns every order in the oven, batch by batch
func (o Oven) OrderIDs() []string {
	var ids []string

	for _, batch := range o.Batches {
		ids = append(ids, batch.OrderIDs...)
	}

	return ids
}

// ValidMixer reports whether n names a mixer
func ValidMixer(n int) bool {
	return n >= 1 && n <= MixerCount
}

// ValidOven reports whether n names an oven
func ValidOven(n int) bool {
	return n >= 1 && n <= OvenCount
}

func idleOven(n int) Oven {
	return Oven{Number: n}
}

func sortOrders(orders []*models.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}

	c := make([]string, len(s))
	copy(c, s)
	return c
}

func dayOf(t time.Time) string {
	return t.Format("2006-01-02")
}

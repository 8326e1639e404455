package production

import (
	"strings"
	"time"

	"github.com/vaidashi/bakery-production/internal/models"
)

// BatchIDSeparator joins member order ids into a composite batch id
const BatchIDSeparator = "-"

// ConsolidatedMixingItem is the set of orders in one mixer sharing flavor,
// shape and size. It is derived on every read and never stored.
type ConsolidatedMixingItem struct {
	ID                     string        `json:"id"`
	Mixer                  int           `json:"mixer"`
	Flavor                 models.Flavor `json:"flavor"`
	Shape                  models.Shape  `json:"shape"`
	SizeCM                 int           `json:"size_cm"`
	OrderIDs               []string      `json:"order_ids"`
	Labels                 []string      `json:"labels"`
	RequestedAt            time.Time     `json:"requested_at"`
	IsPriority             bool          `json:"is_priority"`
	TotalRequestedQuantity int           `json:"total_requested_quantity"`
	TotalProducedQuantity  int           `json:"total_produced_quantity"`
}

// OvenReadyBatch is one or more orders that finished mixing together and
// wait for an oven
type OvenReadyBatch struct {
	ID                string        `json:"id"`
	Flavor            models.Flavor `json:"flavor"`
	Shape             models.Shape  `json:"shape"`
	SizeCM            int           `json:"size_cm"`
	OrderIDs          []string      `json:"order_ids"`
	Labels            []string      `json:"labels"`
	RequestedAt       time.Time     `json:"requested_at"`
	IsPriority        bool          `json:"is_priority"`
	RequestedQuantity int           `json:"requested_quantity"`
	ProducedQuantity  int           `json:"produced_quantity"`
}

type groupKey struct {
	flavor models.Flavor
	shape  models.Shape
	size   int
	mixer  int
}

// group accumulates members of one key in input order
type group struct {
	key       groupKey
	ids       []string
	labels    []string
	seen      map[string]bool
	earliest  time.Time
	priority  bool
	requested int
	produced  int
}

func (g *group) add(o *models.Order) {
	if g.seen == nil {
		g.seen = make(map[string]bool)
	}

	if len(g.ids) == 0 || o.CreatedAt.Before(g.earliest) {
		g.earliest = o.CreatedAt
	}

	g.ids = append(g.ids, o.ID)

	label := models.StripResourceSuffix(o.BatchLabel)

	if !g.seen[label] {
		g.seen[label] = true
		g.labels = append(g.labels, label)
	}

	g.priority = g.priority || o.IsPriority
	g.requested += o.RequestedQuantity
	g.produced += o.EffectiveProduced()
}

// groupOrders groups orders by keyOf, keeping groups in order of first
// appearance and members in input order
func groupOrders(orders []*models.Order, keyOf func(o *models.Order) groupKey) []*group {
	index := make(map[groupKey]*group)
	var groups []*group

	for _, o := range orders {
		key := keyOf(o)
		g, ok := index[key]

		if !ok {
			g = &group{key: key}
			index[key] = g
			groups = append(groups, g)
		}

		g.add(o)
	}

	return groups
}

func mixingKey(o *models.Order) groupKey {
	return groupKey{flavor: o.Flavor, shape: o.Shape, size: o.SizeCM, mixer: MixerOf(o)}
}

func ovenKey(o *models.Order) groupKey {
	return groupKey{flavor: o.Flavor, shape: o.Shape, size: o.SizeCM}
}

// Consolidate groups the mixing orders by flavor, shape, size and mixer. It
// is pure: the same input always gives the same output. Orders that are not
// mixing are ignored.
func Consolidate(orders []*models.Order) []ConsolidatedMixingItem {
	var mixing []*models.Order

	for _, o := range orders {
		if o.Status == models.OrderStatusMixing {
			mixing = append(mixing, o)
		}
	}

	groups := groupOrders(mixing, mixingKey)
	items := make([]ConsolidatedMixingItem, 0, len(groups))

	for _, g := range groups {
		items = append(items, ConsolidatedMixingItem{
			ID:                     BatchID(g.ids),
			Mixer:                  g.key.mixer,
			Flavor:                 g.key.flavor,
			Shape:                  g.key.shape,
			SizeCM:                 g.key.size,
			OrderIDs:               g.ids,
			Labels:                 g.labels,
			RequestedAt:            g.earliest,
			IsPriority:             g.priority,
			TotalRequestedQuantity: g.requested,
			TotalProducedQuantity:  g.produced,
		})
	}

	return items
}

// ConsolidateMixer returns the consolidated items of one mixer
func ConsolidateMixer(orders []*models.Order, mixer int) []ConsolidatedMixingItem {
	items := make([]ConsolidatedMixingItem, 0)

	for _, item := range Consolidate(orders) {
		if item.Mixer == mixer {
			items = append(items, item)
		}
	}

	return items
}

// ConsolidationSet returns every mixing order that shares a mixer, flavor,
// shape and size with trigger, in input order. trigger itself is included
// when it is mixing.
func ConsolidationSet(orders []*models.Order, trigger *models.Order) []*models.Order {
	if trigger == nil || trigger.Status != models.OrderStatusMixing {
		return nil
	}

	key := mixingKey(trigger)
	var set []*models.Order

	for _, o := range orders {
		if o.Status == models.OrderStatusMixing && mixingKey(o) == key {
			set = append(set, o)
		}
	}

	return set
}

// NewOvenReadyBatch builds the batch for orders
func NewOvenReadyBatch(orders []*models.Order) *OvenReadyBatch {
	if len(orders) == 0 {
		return nil
	}

	g := &group{key: ovenKey(orders[0])}

	for _, o := range orders {
		g.add(o)
	}

	return g.ovenReadyBatch()
}

// OvenQueue returns the baking orders that have no oven yet, grouped by
// flavor, shape and size
func OvenQueue(orders []*models.Order) []OvenReadyBatch {
	var waiting []*models.Order

	for _, o := range orders {
		if o.Status == models.OrderStatusBaking && o.AssignedOven == nil {
			waiting = append(waiting, o)
		}
	}

	groups := groupOrders(waiting, ovenKey)
	batches := make([]OvenReadyBatch, 0, len(groups))

	for _, g := range groups {
		batches = append(batches, *g.ovenReadyBatch())
	}

	return batches
}

func (g *group) ovenReadyBatch() *OvenReadyBatch {
	return &OvenReadyBatch{
		ID:                BatchID(g.ids),
		Flavor:            g.key.flavor,
		Shape:             g.key.shape,
		SizeCM:            g.key.size,
		OrderIDs:          g.ids,
		Labels:            g.labels,
		RequestedAt:       g.earliest,
		IsPriority:        g.priority,
		RequestedQuantity: g.requested,
		ProducedQuantity:  g.produced,
	}
}

// BatchID joins member ids into a composite id
func BatchID(ids []string) string {
	return strings.Join(ids, BatchIDSeparator)
}

// SplitBatchID returns the member ids of a batch id, dropping empty parts
// and duplicates
func SplitBatchID(id string) []string {
	var ids []string
	seen := make(map[string]bool)

	for _, part := range strings.Split(id, BatchIDSeparator) {
		part = strings.TrimSpace(part)

		if part == "" || seen[part] {
			continue
		}

		seen[part] = true
		ids = append(ids, part)
	}

	return ids
}

package models

import (
	"fmt"
	"strings"
	"time"
)

// Flavor of the batter
type Flavor string

const (
	FlavorVanilla   Flavor = "vanilla"
	FlavorChocolate Flavor = "chocolate"
)

// Shape of the cake tin
type Shape string

const (
	ShapeRound  Shape = "round"
	ShapeSquare Shape = "square"
	ShapeBowl   Shape = "bowl"
	ShapeCustom Shape = "custom"
)

// OrderStatus represents the production stage of an order
type OrderStatus string

const (
	OrderStatusQueued OrderStatus = "queued"
	OrderStatusMixing OrderStatus = "mixing"
	OrderStatusBaking OrderStatus = "baking"
	OrderStatusDone   OrderStatus = "done"
)

// Valid reports whether f is a known flavor
func (f Flavor) Valid() bool {
	return f == FlavorVanilla || f == FlavorChocolate
}

// Valid reports whether s is a known shape
func (s Shape) Valid() bool {
	switch s {
	case ShapeRound, ShapeSquare, ShapeBowl, ShapeCustom:
		return true
	}
	return false
}

// Valid reports whether s is a known stage
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusQueued, OrderStatusMixing, OrderStatusBaking, OrderStatusDone:
		return true
	}
	return false
}

// Order is one production request. The store owns it; every display instance
// keeps a mirror.
type Order struct {
	ID                string      `db:"id" json:"id"`
	BatchLabel        string      `db:"batch_label" json:"batch_label"`
	Flavor            Flavor      `db:"flavor" json:"flavor"`
	Shape             Shape       `db:"shape" json:"shape"`
	SizeCM            int         `db:"size_cm" json:"size_cm"`
	RequestedQuantity int         `db:"requested_quantity" json:"requested_quantity"`
	ProducedQuantity  *int        `db:"produced_quantity" json:"produced_quantity,omitempty"`
	IsPriority        bool        `db:"is_priority" json:"is_priority"`
	Notes             string      `db:"notes" json:"notes,omitempty"`
	Status            OrderStatus `db:"status" json:"status"`
	AssignedMixer     *int        `db:"assigned_mixer" json:"assigned_mixer,omitempty"`
	AssignedOven      *int        `db:"assigned_oven" json:"assigned_oven,omitempty"`
	EstimatedMinutes  int         `db:"estimated_minutes" json:"estimated_minutes"`
	PrintCount        int         `db:"print_count" json:"print_count"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
	StartedAt         *time.Time  `db:"started_at" json:"started_at,omitempty"`
	BakeStartedAt     *time.Time  `db:"bake_started_at" json:"bake_started_at,omitempty"`
	CompletedAt       *time.Time  `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updated_at"`
}

// NewOrderInput is what the order form hands over
type NewOrderInput struct {
	Flavor            Flavor `json:"flavor"`
	Shape             Shape  `json:"shape"`
	SizeCM            int    `json:"size_cm,omitempty"`
	WidthCM           int    `json:"width_cm,omitempty"`
	LengthCM          int    `json:"length_cm,omitempty"`
	RequestedQuantity int    `json:"requested_quantity"`
	IsPriority        bool   `json:"is_priority"`
	Notes             string `json:"notes,omitempty"`
}

// Validate checks the input and returns the first problem found
func (in NewOrderInput) Validate() error {
	if !in.Flavor.Valid() {
		return fmt.Errorf("unknown flavor %q", in.Flavor)
	}

	if !in.Shape.Valid() {
		return fmt.Errorf("unknown shape %q", in.Shape)
	}

	if in.RequestedQuantity < 1 {
		return fmt.Errorf("requested quantity must be at least 1")
	}

	if in.EffectiveSize() <= 0 {
		if in.Shape == ShapeCustom {
			return fmt.Errorf("custom shape needs a positive width or length")
		}
		return fmt.Errorf("size must be positive")
	}

	return nil
}

// EffectiveSize is the size in cm used for grouping. Custom tins are measured
// by their longest side.
func (in NewOrderInput) EffectiveSize() int {
	if in.Shape != ShapeCustom {
		return in.SizeCM
	}

	if in.WidthCM > in.LengthCM {
		return in.WidthCM
	}

	if in.LengthCM > 0 {
		return in.LengthCM
	}

	return in.SizeCM
}

// NewOrder creates a queued order. customSeq is only used for custom shapes,
// whose label is a sequence code instead of a description.
func NewOrder(in NewOrderInput, customSeq int, now time.Time) *Order {
	size := in.EffectiveSize()

	return &Order{
		ID:                GenerateID("ord"),
		BatchLabel:        BaseLabel(in.Shape, in.Flavor, size, customSeq),
		Flavor:            in.Flavor,
		Shape:             in.Shape,
		SizeCM:            size,
		RequestedQuantity: in.RequestedQuantity,
		IsPriority:        in.IsPriority,
		Notes:             strings.TrimSpace(in.Notes),
		Status:            OrderStatusQueued,
		EstimatedMinutes:  EstimateMinutes(in.Shape, in.Flavor, size, in.RequestedQuantity),
		PrintCount:        1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// EffectiveProduced returns the produced quantity, or the requested one when
// the operator has not adjusted it yet.
func (o *Order) EffectiveProduced() int {
	if o.ProducedQuantity != nil {
		return *o.ProducedQuantity
	}
	return o.RequestedQuantity
}

// Clone returns a deep copy
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}

	c := *o
	c.ProducedQuantity = cloneInt(o.ProducedQuantity)
	c.AssignedMixer = cloneInt(o.AssignedMixer)
	c.AssignedOven = cloneInt(o.AssignedOven)
	c.StartedAt = cloneTime(o.StartedAt)
	c.BakeStartedAt = cloneTime(o.BakeStartedAt)
	c.CompletedAt = cloneTime(o.CompletedAt)

	return &c
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int {
	return &v
}

// TimePtr returns a pointer to t
func TimePtr(t time.Time) *time.Time {
	return &t
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Equal reports whether two orders carry the same data. Times are compared
// as instants so a copy that went through JSON or the database still matches.
func (o *Order) Equal(other *Order) bool {
	if o == nil || other == nil {
		return o == other
	}

	return o.ID == other.ID &&
		o.BatchLabel == other.BatchLabel &&
		o.Flavor == other.Flavor &&
		o.Shape == other.Shape &&
		o.SizeCM == other.SizeCM &&
		o.RequestedQuantity == other.RequestedQuantity &&
		equalInt(o.ProducedQuantity, other.ProducedQuantity) &&
		o.IsPriority == other.IsPriority &&
		o.Notes == other.Notes &&
		o.Status == other.Status &&
		equalInt(o.AssignedMixer, other.AssignedMixer) &&
		equalInt(o.AssignedOven, other.AssignedOven) &&
		o.EstimatedMinutes == other.EstimatedMinutes &&
		o.PrintCount == other.PrintCount &&
		o.CreatedAt.Equal(other.CreatedAt) &&
		equalTime(o.StartedAt, other.StartedAt) &&
		equalTime(o.BakeStartedAt, other.BakeStartedAt) &&
		equalTime(o.CompletedAt, other.CompletedAt) &&
		o.UpdatedAt.Equal(other.UpdatedAt)
}

func equalInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderInputValidate(t *testing.T) {
	tests := []struct {
		name    string
		input   NewOrderInput
		wantErr string
	}{
		{
			name:  "valid round",
			input: NewOrderInput{Flavor: FlavorVanilla, Shape: ShapeRound, SizeCM: 18, RequestedQuantity: 1},
		},
		{
			name:  "valid custom from width and length",
			input: NewOrderInput{Flavor: FlavorChocolate, Shape: ShapeCustom, WidthCM: 20, LengthCM: 30, RequestedQuantity: 2},
		},
		{
			name:    "unknown flavor",
			input:   NewOrderInput{Flavor: "lemon", Shape: ShapeRound, SizeCM: 18, RequestedQuantity: 1},
			wantErr: "unknown flavor",
		},
		{
			name:    "unknown shape",
			input:   NewOrderInput{Flavor: FlavorVanilla, Shape: "star", SizeCM: 18, RequestedQuantity: 1},
			wantErr: "unknown shape",
		},
		{
			name:    "zero quantity",
			input:   NewOrderInput{Flavor: FlavorVanilla, Shape: ShapeRound, SizeCM: 18},
			wantErr: "at least 1",
		},
		{
			name:    "custom without dimensions",
			input:   NewOrderInput{Flavor: FlavorVanilla, Shape: ShapeCustom, RequestedQuantity: 1},
			wantErr: "width or length",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()

			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestNewOrder(t *testing.T) {
	now := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	in := NewOrderInput{Flavor: FlavorChocolate, Shape: ShapeCustom, WidthCM: 26, LengthCM: 20, RequestedQuantity: 3, IsPriority: true, Notes: "  birthday  "}

	o := NewOrder(in, 12, now)

	assert.True(t, strings.HasPrefix(o.ID, "ord"))
	assert.NotContains(t, o.ID, "-")
	assert.Equal(t, "#A012", o.BatchLabel)
	assert.Equal(t, 26, o.SizeCM)
	assert.Equal(t, OrderStatusQueued, o.Status)
	assert.Equal(t, 1, o.PrintCount)
	assert.Equal(t, "birthday", o.Notes)
	assert.Equal(t, now, o.CreatedAt)
	assert.Nil(t, o.StartedAt)
	assert.Nil(t, o.ProducedQuantity)
	assert.Equal(t, 3, o.EffectiveProduced())
	// 45 base + 20 custom + 10 large + 5 chocolate + 2*2 extra pieces
	assert.Equal(t, 84, o.EstimatedMinutes)
}

func TestOrderCloneIsDeep(t *testing.T) {
	started := time.Now()
	o := &Order{ID: "ord1", AssignedMixer: IntPtr(1), ProducedQuantity: IntPtr(4), StartedAt: &started}

	c := o.Clone()
	*c.AssignedMixer = 2
	*c.ProducedQuantity = 9
	*c.StartedAt = started.Add(time.Hour)

	assert.Equal(t, 1, *o.AssignedMixer)
	assert.Equal(t, 4, *o.ProducedQuantity)
	assert.Equal(t, started, *o.StartedAt)
	assert.Nil(t, (*Order)(nil).Clone())
}

func TestOrderEqualComparesInstants(t *testing.T) {
	at := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	o := &Order{ID: "ord1", Status: OrderStatusMixing, StartedAt: TimePtr(at), CreatedAt: at, UpdatedAt: at}

	elsewhere := o.Clone()
	local := at.In(time.FixedZone("CEST", 2*60*60))
	elsewhere.StartedAt = &local

	assert.True(t, o.Equal(elsewhere))

	elsewhere.AssignedMixer = IntPtr(1)
	assert.False(t, o.Equal(elsewhere))
	assert.False(t, o.Equal(nil))
}

package production

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaidashi/bakery-production/internal/config"
	"github.com/vaidashi/bakery-production/internal/models"
	"github.com/vaidashi/bakery-production/internal/notify"
	"github.com/vaidashi/bakery-production/internal/repository"
	apperrors "github.com/vaidashi/bakery-production/pkg/errors"
	"github.com/vaidashi/bakery-production/pkg/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEngine struct {
	*Engine
	store    *repository.MemoryStore
	clock    *fakeClock
	recorder *notify.Recorder
	registry *prometheus.Registry
}

func testConfig() config.ProductionConfig {
	cfg := config.Default().Production
	cfg.WriteAttempts = 1
	cfg.ResyncInterval = 0
	return cfg
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	return newTestEngineWithConfig(t, testConfig())
}

func newTestEngineWithConfig(t *testing.T, cfg config.ProductionConfig) *testEngine {
	t.Helper()

	store := repository.NewMemoryStore()
	clock := newFakeClock()
	recorder := &notify.Recorder{}
	registry := prometheus.NewRegistry()
	log := logger.NewLoggerWithOutput("error", "test", &bytes.Buffer{})

	e := NewEngine(cfg, store, recorder, log, WithClock(clock.Now), WithMetrics(registry))

	return &testEngine{Engine: e, store: store, clock: clock, recorder: recorder, registry: registry}
}

func roundVanilla(qty int, priority bool) models.NewOrderInput {
	return models.NewOrderInput{
		Flavor:            models.FlavorVanilla,
		Shape:             models.ShapeRound,
		SizeCM:            18,
		RequestedQuantity: qty,
		IsPriority:        priority,
	}
}

func mustCreate(t *testing.T, e *testEngine, in models.NewOrderInput) *models.Order {
	t.Helper()

	o, err := e.CreateOrder(context.Background(), in)
	require.NoError(t, err)

	// keep creation order deterministic
	e.clock.Advance(time.Second)
	return o
}

func mustOrder(t *testing.T, e *testEngine, id string) *models.Order {
	t.Helper()

	o, err := e.Order(id)
	require.NoError(t, err)
	return o
}

func TestCreateOrder(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	o, err := e.CreateOrder(ctx, roundVanilla(3, false))
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusQueued, o.Status)
	assert.Equal(t, "ROUND VANILLA 18CM", o.BatchLabel)
	assert.Equal(t, 1, o.PrintCount)
	assert.NotNil(t, e.store.Order(o.ID))
	assert.Len(t, e.Orders(nil), 1)

	custom, err := e.CreateOrder(ctx, models.NewOrderInput{
		Flavor:            models.FlavorChocolate,
		Shape:             models.ShapeCustom,
		WidthCM:           30,
		LengthCM:          40,
		RequestedQuantity: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "#A001", custom.BatchLabel)
	assert.Equal(t, 40, custom.SizeCM)
}

func TestCreateOrderRejectsInvalidInput(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.CreateOrder(context.Background(), models.NewOrderInput{Flavor: "lemon", Shape: models.ShapeRound, SizeCM: 18, RequestedQuantity: 1})

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Empty(t, e.Orders(nil))
	require.Len(t, e.recorder.All(), 1)
	assert.Equal(t, notify.SeverityError, e.recorder.All()[0].Severity)
}

func TestCreateOrderRollsBackOnStoreFailure(t *testing.T) {
	e := newTestEngine(t)
	e.store.FailOn(repository.OpInsert, repository.ErrDatabase)

	_, err := e.CreateOrder(context.Background(), roundVanilla(1, false))

	assert.ErrorIs(t, err, apperrors.ErrRemoteWrite)
	assert.Empty(t, e.Orders(nil))
}

func TestScenarioAConsolidatedBatch(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	first := mustCreate(t, e, roundVanilla(2, false))
	second := mustCreate(t, e, roundVanilla(3, true))

	require.NoError(t, e.StartMixing(ctx, first.ID, 1))
	require.NoError(t, e.StartMixing(ctx, second.ID, 1))

	items := e.Mixers()[0].Items
	require.Len(t, items, 1)
	assert.ElementsMatch(t, []string{first.ID, second.ID}, items[0].OrderIDs)

	batch, err := e.CompleteMixing(ctx, second.ID)
	require.NoError(t, err)
	require.NotNil(t, batch)

	assert.ElementsMatch(t, []string{first.ID, second.ID}, batch.OrderIDs)
	assert.Equal(t, 5, batch.ProducedQuantity)
	assert.True(t, batch.IsPriority)
	assert.Equal(t, []string{"ROUND VANILLA 18CM"}, batch.Labels)

	for _, id := range []string{first.ID, second.ID} {
		o := mustOrder(t, e, id)
		assert.Equal(t, models.OrderStatusBaking, o.Status)
		assert.Equal(t, "ROUND VANILLA 18CM", o.BatchLabel)
		assert.Nil(t, o.AssignedMixer)
	}

	queue := e.OvenQueue()
	require.Len(t, queue, 1)
	assert.Equal(t, batch.ID, queue[0].ID)
	assert.Equal(t, 0, e.Mixers()[0].Occupancy)
}

func TestCompleteMixingLeavesOtherMixersAlone(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := mustCreate(t, e, roundVanilla(1, false))
	b := mustCreate(t, e, roundVanilla(1, false))

	require.NoError(t, e.StartMixing(ctx, a.ID, 1))
	require.NoError(t, e.StartMixing(ctx, b.ID, 2))

	batch, err := e.CompleteMixing(ctx, a.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{a.ID}, batch.OrderIDs)
	assert.Equal(t, models.OrderStatusMixing, mustOrder(t, e, b.ID).Status)
}

func TestScenarioBCapacity(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < MaxItemsPerMixer; i++ {
		o := mustCreate(t, e, roundVanilla(1, false))
		require.NoError(t, e.StartMixing(ctx, o.ID, 1))
	}

	sixth := mustCreate(t, e, roundVanilla(1, false))
	before := e.coord.Snapshot()

	err := e.StartMixing(ctx, sixth.ID, 1)

	assert.ErrorIs(t, err, apperrors.ErrCapacityExceeded)
	assert.Equal(t, http.StatusConflict, apperrors.StatusCode(err))
	assert.Equal(t, MaxItemsPerMixer, e.Mixers()[0].Occupancy)
	assert.Equal(t, models.OrderStatusQueued, mustOrder(t, e, sixth.ID).Status)
	assert.Equal(t, before, e.coord.Snapshot())
	assert.Equal(t, 1, e.recorder.Count("Mixer #1 is full"))

	// the other mixer still has room
	require.NoError(t, e.StartMixing(ctx, sixth.ID, 2))
}

func TestStoreCapacityRejectionRollsBack(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// another instance already filled mixer 1 in the store
	for i := 0; i < MaxItemsPerMixer; i++ {
		now := e.clock.Now()
		e.store.Seed(&models.Order{
			ID:            models.GenerateID("ord"),
			BatchLabel:    "ROUND VANILLA 18CM (Mixer #1)",
			Flavor:        models.FlavorVanilla,
			Shape:         models.ShapeRound,
			SizeCM:        18,
			Status:        models.OrderStatusMixing,
			AssignedMixer: models.IntPtr(1),
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	o := mustCreate(t, e, roundVanilla(1, false))
	before := e.coord.Snapshot()

	err := e.StartMixing(ctx, o.ID, 1)

	assert.ErrorIs(t, err, apperrors.ErrCapacityExceeded)
	assert.Equal(t, before, e.coord.Snapshot())
	assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.Commands.WithLabelValues("start_mixing", OutcomeRolledBack)))
}

func TestScenarioCCancelMixing(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	o := mustCreate(t, e, roundVanilla(1, false))
	require.NoError(t, e.StartMixing(ctx, o.ID, 2))

	mixing := mustOrder(t, e, o.ID)
	assert.Equal(t, "ROUND VANILLA 18CM (Mixer #2)", mixing.BatchLabel)
	assert.NotNil(t, mixing.StartedAt)

	require.NoError(t, e.CancelMixing(ctx, o.ID))

	queued := mustOrder(t, e, o.ID)
	assert.Equal(t, models.OrderStatusQueued, queued.Status)
	assert.Nil(t, queued.StartedAt)
	assert.Nil(t, queued.AssignedMixer)
	assert.Equal(t, "ROUND VANILLA 18CM", queued.BatchLabel)
	assert.Equal(t, queued.BatchLabel, e.store.Order(o.ID).BatchLabel)
}

func TestCancelMixingRequiresMixing(t *testing.T) {
	e := newTestEngine(t)

	o := mustCreate(t, e, roundVanilla(1, false))

	err := e.CancelMixing(context.Background(), o.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestScenarioDStartBakingCompositeBatch(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := mustCreate(t, e, roundVanilla(1, false))
	b := mustCreate(t, e, roundVanilla(1, false))
	require.NoError(t, e.StartMixing(ctx, a.ID, 1))
	require.NoError(t, e.StartMixing(ctx, b.ID, 1))

	require.NoError(t, e.StartBaking(ctx, a.ID+BatchIDSeparator+b.ID, 1))

	oven := e.Ovens()[0]
	assert.True(t, oven.IsActive)
	require.NotNil(t, oven.TimeRemaining)
	assert.Equal(t, 1680, *oven.TimeRemaining)
	require.Len(t, oven.Batches, 1)
	assert.Equal(t, []string{a.ID, b.ID}, oven.Batches[0].OrderIDs)

	for _, id := range []string{a.ID, b.ID} {
		o := mustOrder(t, e, id)
		assert.Equal(t, models.OrderStatusBaking, o.Status)
		assert.Equal(t, 1, *o.AssignedOven)
		assert.Equal(t, "ROUND VANILLA 18CM (Oven #1)", o.BatchLabel)
	}

	assert.False(t, e.Ovens()[1].IsActive)
}

func TestStartBakingAppendsToActiveOven(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := mustCreate(t, e, roundVanilla(1, false))
	b := mustCreate(t, e, models.NewOrderInput{Flavor: models.FlavorChocolate, Shape: models.ShapeSquare, SizeCM: 20, RequestedQuantity: 1})

	require.NoError(t, e.StartMixing(ctx, a.ID, 1))
	require.NoError(t, e.StartMixing(ctx, b.ID, 1))
	_, err := e.CompleteMixing(ctx, a.ID)
	require.NoError(t, err)
	_, err = e.CompleteMixing(ctx, b.ID)
	require.NoError(t, err)

	require.NoError(t, e.StartBaking(ctx, a.ID, 2))
	started := e.Ovens()[1].StartedAt

	e.clock.Advance(5 * time.Minute)
	require.NoError(t, e.StartBaking(ctx, b.ID, 2))

	oven := e.Ovens()[1]
	assert.Equal(t, started, oven.StartedAt)
	assert.Len(t, oven.Batches, 2)
	assert.Equal(t, 1680-300, *oven.TimeRemaining)
	assert.Empty(t, e.OvenQueue())

	err = e.StartBaking(ctx, a.ID, 1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestStartBakingUnknownMember(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := mustCreate(t, e, roundVanilla(1, false))
	require.NoError(t, e.StartMixing(ctx, a.ID, 1))
	before := e.coord.Snapshot()

	err := e.StartBaking(ctx, a.ID+"-missing", 1)

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, before, e.coord.Snapshot())
}

func TestScenarioECompleteBaking(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := mustCreate(t, e, roundVanilla(1, false))
	b := mustCreate(t, e, models.NewOrderInput{Flavor: models.FlavorChocolate, Shape: models.ShapeBowl, SizeCM: 16, RequestedQuantity: 2})

	for _, o := range []*models.Order{a, b} {
		require.NoError(t, e.StartMixing(ctx, o.ID, 1))
		_, err := e.CompleteMixing(ctx, o.ID)
		require.NoError(t, err)
		require.NoError(t, e.StartBaking(ctx, o.ID, 1))
	}

	e.clock.Advance(28 * time.Minute)
	assert.Equal(t, 0, *e.Ovens()[0].TimeRemaining)

	completed, err := e.CompleteBaking(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, completed)

	for _, id := range []string{a.ID, b.ID} {
		o := mustOrder(t, e, id)
		assert.Equal(t, models.OrderStatusDone, o.Status)
		assert.NotNil(t, o.CompletedAt)
	}

	oven := e.Ovens()[0]
	assert.False(t, oven.IsActive)
	assert.Empty(t, oven.Batches)
	assert.Nil(t, oven.TimeRemaining)

	daily, target := e.DailyCompleted()
	assert.Equal(t, 2, daily)
	assert.Equal(t, 40, target)
	assert.Equal(t, 1, e.recorder.Count("Oven #1 emptied"))
}

func TestCompleteBakingCapsAtDailyTarget(t *testing.T) {
	cfg := testConfig()
	cfg.DailyTarget = 1
	e := newTestEngineWithConfig(t, cfg)
	ctx := context.Background()

	a := mustCreate(t, e, roundVanilla(1, false))
	b := mustCreate(t, e, models.NewOrderInput{Flavor: models.FlavorChocolate, Shape: models.ShapeRound, SizeCM: 18, RequestedQuantity: 1})

	require.NoError(t, e.StartMixing(ctx, a.ID, 1))
	require.NoError(t, e.StartMixing(ctx, b.ID, 2))
	require.NoError(t, e.StartBaking(ctx, a.ID, 1))
	require.NoError(t, e.StartBaking(ctx, b.ID, 1))

	completed, err := e.CompleteBaking(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, completed)

	daily, _ := e.DailyCompleted()
	assert.Equal(t, 1, daily)
}

func TestCompleteBakingIdleOven(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.CompleteBaking(context.Background(), 2)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	_, err = e.CompleteBaking(context.Background(), 3)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestStartedAtIsSetOnce(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	o := mustCreate(t, e, roundVanilla(1, false))
	require.NoError(t, e.UpdateOrderStatus(ctx, o.ID, models.OrderStatusMixing))
	first := *mustOrder(t, e, o.ID).StartedAt

	e.clock.Advance(time.Minute)
	require.NoError(t, e.UpdateOrderStatus(ctx, o.ID, models.OrderStatusMixing))

	assert.Equal(t, first, *mustOrder(t, e, o.ID).StartedAt)
}

func TestCompletedAtIsSetOnce(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	o := mustCreate(t, e, roundVanilla(1, false))
	require.NoError(t, e.UpdateOrderStatus(ctx, o.ID, models.OrderStatusDone))
	first := *mustOrder(t, e, o.ID).CompletedAt

	e.clock.Advance(time.Minute)
	require.NoError(t, e.UpdateOrderStatus(ctx, o.ID, models.OrderStatusBaking))
	require.NoError(t, e.UpdateOrderStatus(ctx, o.ID, models.OrderStatusDone))

	assert.Equal(t, first, *mustOrder(t, e, o.ID).CompletedAt)
	assert.True(t, first.Equal(*e.store.Order(o.ID).CompletedAt))
}

func TestUpdateOrderStatusUnknownOrder(t *testing.T) {
	e := newTestEngine(t)

	err := e.UpdateOrderStatus(context.Background(), "nope", models.OrderStatusDone)

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	require.Len(t, e.recorder.All(), 1)
	assert.Equal(t, notify.SeverityError, e.recorder.All()[0].Severity)
}

func TestRollbackRestoresSnapshot(t *testing.T) {
	tests := []struct {
		name string
		op   string
		run  func(e *testEngine, o *models.Order) error
	}{
		{"start mixing", repository.OpAssignMixer, func(e *testEngine, o *models.Order) error {
			return e.StartMixing(context.Background(), o.ID, 1)
		}},
		{"status", repository.OpUpdate, func(e *testEngine, o *models.Order) error {
			return e.UpdateOrderStatus(context.Background(), o.ID, models.OrderStatusDone)
		}},
		{"quantity", repository.OpUpdate, func(e *testEngine, o *models.Order) error {
			_, err := e.AdjustProducedQuantity(context.Background(), o.ID, 4)
			return err
		}},
		{"delete", repository.OpDelete, func(e *testEngine, o *models.Order) error {
			return e.DeleteOrder(context.Background(), o.ID)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t)
			o := mustCreate(t, e, roundVanilla(2, false))
			before := e.coord.Snapshot()

			e.store.FailOn(tt.op, apperrors.NewTemporaryError("connection reset"))
			err := tt.run(e, o)

			assert.ErrorIs(t, err, apperrors.ErrRemoteWrite)
			assert.Equal(t, before, e.coord.Snapshot())

			notes := e.recorder.All()
			last := notes[len(notes)-1]
			assert.Equal(t, notify.SeverityError, last.Severity)
			assert.Equal(t, "connection reset", last.Description)
		})
	}
}

func TestRollbackAfterBakingFailure(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := mustCreate(t, e, roundVanilla(1, false))
	require.NoError(t, e.StartMixing(ctx, a.ID, 1))
	require.NoError(t, e.StartBaking(ctx, a.ID, 1))

	e.store.FailOn(repository.OpCompleteBaking, repository.ErrDatabase)
	before := e.coord.Snapshot()

	_, err := e.CompleteBaking(ctx, 1)

	assert.ErrorIs(t, err, apperrors.ErrRemoteWrite)
	assert.Equal(t, before, e.coord.Snapshot())
	assert.True(t, e.Ovens()[0].IsActive)
}

func TestRollbackOfMultiOrderCommands(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, e *testEngine) func() error
	}{
		{"complete mixing of a consolidated set", func(t *testing.T, e *testEngine) func() error {
			a := mustCreate(t, e, roundVanilla(1, false))
			b := mustCreate(t, e, roundVanilla(2, false))
			require.NoError(t, e.StartMixing(context.Background(), a.ID, 1))
			require.NoError(t, e.StartMixing(context.Background(), b.ID, 1))

			return func() error {
				_, err := e.CompleteMixing(context.Background(), a.ID)
				return err
			}
		}},
		{"cancel mixing", func(t *testing.T, e *testEngine) func() error {
			a := mustCreate(t, e, roundVanilla(1, false))
			require.NoError(t, e.StartMixing(context.Background(), a.ID, 2))

			return func() error {
				return e.CancelMixing(context.Background(), a.ID)
			}
		}},
		{"start baking a composite batch", func(t *testing.T, e *testEngine) func() error {
			a := mustCreate(t, e, roundVanilla(1, false))
			b := mustCreate(t, e, roundVanilla(1, false))
			require.NoError(t, e.StartMixing(context.Background(), a.ID, 1))
			require.NoError(t, e.StartMixing(context.Background(), b.ID, 1))

			return func() error {
				return e.StartBaking(context.Background(), a.ID+BatchIDSeparator+b.ID, 2)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t)
			run := tt.setup(t, e)
			before := e.coord.Snapshot()

			e.store.FailOn(repository.OpUpdate, apperrors.NewTemporaryError("connection reset"))
			err := run()

			assert.ErrorIs(t, err, apperrors.ErrRemoteWrite)
			assert.Equal(t, before, e.coord.Snapshot())

			for _, oven := range e.Ovens() {
				assert.False(t, oven.IsActive, "oven %d", oven.Number)
				assert.Empty(t, oven.Batches)
			}
		})
	}
}

func TestStatusChangeTakesOrderOutOfOven(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := mustCreate(t, e, roundVanilla(1, false))
	b := mustCreate(t, e, models.NewOrderInput{Flavor: models.FlavorChocolate, Shape: models.ShapeSquare, SizeCM: 20, RequestedQuantity: 1})
	require.NoError(t, e.StartMixing(ctx, a.ID, 1))
	require.NoError(t, e.StartMixing(ctx, b.ID, 2))
	require.NoError(t, e.StartBaking(ctx, a.ID, 1))
	require.NoError(t, e.StartBaking(ctx, b.ID, 2))

	require.NoError(t, e.UpdateOrderStatus(ctx, a.ID, models.OrderStatusQueued))

	moved := mustOrder(t, e, a.ID)
	assert.Equal(t, models.OrderStatusQueued, moved.Status)
	assert.Nil(t, moved.AssignedOven)
	assert.Nil(t, moved.BakeStartedAt)
	assert.Equal(t, "ROUND VANILLA 18CM", moved.BatchLabel)
	assert.Nil(t, e.store.Order(a.ID).AssignedOven)

	ovens := e.Ovens()
	assert.False(t, ovens[0].IsActive)
	assert.Empty(t, ovens[0].Batches)
	assert.True(t, ovens[1].IsActive)

	_, err := e.CompleteBaking(ctx, 1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.Equal(t, models.OrderStatusQueued, mustOrder(t, e, a.ID).Status)

	done, _ := e.DailyCompleted()
	assert.Zero(t, done)

	// a fresh mirror derives the same ovens from the store
	require.NoError(t, e.Resync(ctx))
	assert.False(t, e.Ovens()[0].IsActive)
	assert.True(t, e.Ovens()[1].IsActive)
}

func TestStatusChangeOutOfOvenRollsBack(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := mustCreate(t, e, roundVanilla(1, false))
	require.NoError(t, e.StartMixing(ctx, a.ID, 1))
	require.NoError(t, e.StartBaking(ctx, a.ID, 1))
	before := e.coord.Snapshot()

	e.store.FailOn(repository.OpUpdate, apperrors.NewTemporaryError("connection reset"))
	err := e.UpdateOrderStatus(ctx, a.ID, models.OrderStatusMixing)

	assert.ErrorIs(t, err, apperrors.ErrRemoteWrite)
	assert.Equal(t, before, e.coord.Snapshot())
	assert.True(t, e.Ovens()[0].IsActive)
}

func TestTemporaryFailureIsRetried(t *testing.T) {
	cfg := testConfig()
	cfg.WriteAttempts = 2
	e := newTestEngineWithConfig(t, cfg)

	o := mustCreate(t, e, roundVanilla(1, false))
	e.store.FailTimes(repository.OpAssignMixer, 1, apperrors.NewTemporaryError("busy"))

	require.NoError(t, e.StartMixing(context.Background(), o.ID, 1))
	assert.Equal(t, models.OrderStatusMixing, e.store.Order(o.ID).Status)
}

func TestProducedQuantityFloors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	o := mustCreate(t, e, roundVanilla(3, false))

	updated, err := e.AdjustProducedQuantity(ctx, o.ID, -10)
	require.NoError(t, err)
	assert.Equal(t, 0, *updated.ProducedQuantity)

	require.NoError(t, e.StartMixing(ctx, o.ID, 1))

	updated, err = e.SetProducedQuantity(ctx, o.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, *updated.ProducedQuantity)

	updated, err = e.AdjustProducedQuantity(ctx, o.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, *updated.ProducedQuantity)
	assert.Equal(t, 3, *e.store.Order(o.ID).ProducedQuantity)
}

func TestNotesAndPrint(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	o := mustCreate(t, e, roundVanilla(1, false))

	require.NoError(t, e.UpdateNotes(ctx, o.ID, "  no nuts  "))
	require.NoError(t, e.RecordPrint(ctx, o.ID))

	stored := e.store.Order(o.ID)
	assert.Equal(t, "no nuts", stored.Notes)
	assert.Equal(t, 2, stored.PrintCount)
}

func TestDeleteOrderFromOven(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := mustCreate(t, e, roundVanilla(1, false))
	b := mustCreate(t, e, roundVanilla(1, false))
	require.NoError(t, e.StartMixing(ctx, a.ID, 1))
	require.NoError(t, e.StartMixing(ctx, b.ID, 1))
	require.NoError(t, e.StartBaking(ctx, a.ID+"-"+b.ID, 1))

	require.NoError(t, e.DeleteOrder(ctx, a.ID))

	oven := e.Ovens()[0]
	require.Len(t, oven.Batches, 1)
	assert.Equal(t, []string{b.ID}, oven.Batches[0].OrderIDs)
	assert.True(t, oven.IsActive)

	require.NoError(t, e.DeleteOrder(ctx, b.ID))

	oven = e.Ovens()[0]
	assert.False(t, oven.IsActive)
	assert.Empty(t, oven.Batches)
	assert.Nil(t, e.store.Order(b.ID))

	err := e.DeleteOrder(ctx, b.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSubscribersSeeChanges(t *testing.T) {
	e := newTestEngine(t)
	sub := &recordingSubscriber{}
	e.Subscribe(sub)

	mustCreate(t, e, roundVanilla(1, false))

	views := sub.all()
	require.NotEmpty(t, views)
	assert.Len(t, views[len(views)-1].Orders, 1)
}

func TestMetricsFollowBoard(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	o := mustCreate(t, e, roundVanilla(1, false))
	require.NoError(t, e.StartMixing(ctx, o.ID, 2))

	assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.MixerOccupancy.WithLabelValues("2")))
	assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.Commands.WithLabelValues("start_mixing", OutcomeCommitted)))

	require.NoError(t, e.StartBaking(ctx, o.ID, 1))
	assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.OvenActive.WithLabelValues("1")))
	assert.Equal(t, float64(0), testutil.ToFloat64(e.metrics.MixerOccupancy.WithLabelValues("2")))
}

type recordingSubscriber struct {
	mu    sync.Mutex
	views []BoardView
}

func (s *recordingSubscriber) BoardChanged(view BoardView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views = append(s.views, view)
}

func (s *recordingSubscriber) all() []BoardView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]BoardView(nil), s.views...)
}

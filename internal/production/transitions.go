package production

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vaidashi/bakery-production/internal/models"
	"github.com/vaidashi/bakery-production/internal/repository"
	apperrors "github.com/vaidashi/bakery-production/pkg/errors"
)

func lookup(b *Board, id string) (*models.Order, error) {
	o, ok := b.Orders[id]

	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("Order %s not found", id))
	}

	return o, nil
}

func invalidMixer(n int) error {
	return apperrors.NewInvalidInputError(fmt.Sprintf("Mixer #%d does not exist", n))
}

func invalidOven(n int) error {
	return apperrors.NewInvalidInputError(fmt.Sprintf("Oven #%d does not exist", n))
}

// startMixing moves a queued order into a mixer
type startMixing struct {
	undoLog
	orderID  string
	mixer    int
	capacity int
	after    *models.Order
}

func (c *startMixing) Name() string { return "start_mixing" }

func (c *startMixing) Describe() string { return fmt.Sprintf("Moving order %s to Mixer #%d", c.orderID, c.mixer) }

func (c *startMixing) Apply(b *Board, now time.Time) error {
	if !ValidMixer(c.mixer) {
		return invalidMixer(c.mixer)
	}

	o, err := lookup(b, c.orderID)

	if err != nil {
		return err
	}

	if o.Status != models.OrderStatusQueued {
		return apperrors.NewInvalidTransitionError(fmt.Sprintf("%s is %s, only queued orders can start mixing", o.BatchLabel, o.Status))
	}

	if !HasCapacity(b, c.mixer, c.capacity) {
		return apperrors.NewCapacityExceededError(fmt.Sprintf("Mixer #%d is full", c.mixer))
	}

	c.saveOrder(b, o.ID)

	o.Status = models.OrderStatusMixing
	if o.StartedAt == nil {
		o.StartedAt = models.TimePtr(now)
	}
	o.BatchLabel = models.WithMixerSuffix(o.BatchLabel, c.mixer)
	o.AssignedMixer = models.IntPtr(c.mixer)
	o.UpdatedAt = now

	c.after = o.Clone()
	return nil
}

func (c *startMixing) Persist(ctx context.Context, store repository.Store) error {
	return store.AssignMixer(ctx, c.after, c.capacity)
}

// cancelMixing puts a mixing order back in the queue
type cancelMixing struct {
	undoLog
	orderID string
	after   *models.Order
}

func (c *cancelMixing) Name() string { return "cancel_mixing" }

func (c *cancelMixing) Describe() string { return fmt.Sprintf("Putting order %s back in the queue", c.orderID) }

func (c *cancelMixing) Apply(b *Board, now time.Time) error {
	o, err := lookup(b, c.orderID)

	if err != nil {
		return err
	}

	if o.Status != models.OrderStatusMixing {
		return apperrors.NewInvalidTransitionError(fmt.Sprintf("%s is %s, only mixing orders can be put back", o.BatchLabel, o.Status))
	}

	c.saveOrder(b, o.ID)

	o.Status = models.OrderStatusQueued
	o.StartedAt = nil
	o.BatchLabel = models.StripResourceSuffix(o.BatchLabel)
	o.AssignedMixer = nil
	o.UpdatedAt = now

	c.after = o.Clone()
	return nil
}

func (c *cancelMixing) Persist(ctx context.Context, store repository.Store) error {
	return store.UpdateOrders(ctx, c.after)
}

// completeMixing sends the trigger order and everything consolidated with it
// to the oven queue
type completeMixing struct {
	undoLog
	orderID string
	after   []*models.Order
	batch   *OvenReadyBatch
}

func (c *completeMixing) Name() string { return "complete_mixing" }

func (c *completeMixing) Describe() string { return fmt.Sprintf("Finishing mixing for order %s", c.orderID) }

func (c *completeMixing) Apply(b *Board, now time.Time) error {
	trigger, err := lookup(b, c.orderID)

	if err != nil {
		return err
	}

	if trigger.Status != models.OrderStatusMixing {
		return apperrors.NewInvalidTransitionError(fmt.Sprintf("%s is %s, only mixing orders can finish mixing", trigger.BatchLabel, trigger.Status))
	}

	set := ConsolidationSet(b.OrderList(), trigger)

	if len(set) == 0 {
		return nil
	}

	for _, o := range set {
		c.saveOrder(b, o.ID)

		o.Status = models.OrderStatusBaking
		o.BatchLabel = models.StripResourceSuffix(o.BatchLabel)
		o.AssignedMixer = nil
		o.UpdatedAt = now

		c.after = append(c.after, o.Clone())
	}

	c.batch = NewOvenReadyBatch(c.after)
	return nil
}

func (c *completeMixing) Persist(ctx context.Context, store repository.Store) error {
	if len(c.after) == 0 {
		return nil
	}
	return store.UpdateOrders(ctx, c.after...)
}

// startBaking puts a batch into an oven. An idle oven starts its clock; an
// active one takes the batch without resetting.
type startBaking struct {
	undoLog
	batchID      string
	oven         int
	bakeDuration time.Duration
	after        []*models.Order
}

func (c *startBaking) Name() string { return "start_baking" }

func (c *startBaking) Describe() string { return fmt.Sprintf("Loading Oven #%d", c.oven) }

func (c *startBaking) Apply(b *Board, now time.Time) error {
	oven := b.Oven(c.oven)

	if oven == nil {
		return invalidOven(c.oven)
	}

	ids := SplitBatchID(c.batchID)

	if len(ids) == 0 {
		return apperrors.NewInvalidInputError("batch id is empty")
	}

	members := make([]*models.Order, 0, len(ids))

	for _, id := range ids {
		o, err := lookup(b, id)

		if err != nil {
			return err
		}

		if o.Status != models.OrderStatusMixing && o.Status != models.OrderStatusBaking {
			return apperrors.NewInvalidTransitionError(fmt.Sprintf("%s is %s and cannot go into an oven", o.BatchLabel, o.Status))
		}

		if o.AssignedOven != nil {
			return apperrors.NewInvalidTransitionError(fmt.Sprintf("%s is already in Oven #%d", o.BatchLabel, *o.AssignedOven))
		}

		members = append(members, o)
	}

	c.saveOven(b, c.oven)

	if !oven.IsActive {
		left := int(c.bakeDuration / time.Second)
		oven.IsActive = true
		oven.StartedAt = models.TimePtr(now)
		oven.TimeRemaining = &left
		oven.Batches = nil
	}

	batch := OvenBatch{ID: BatchID(ids)}

	for _, o := range members {
		c.saveOrder(b, o.ID)

		base := models.StripResourceSuffix(o.BatchLabel)
		o.Status = models.OrderStatusBaking
		o.AssignedMixer = nil
		o.AssignedOven = models.IntPtr(c.oven)
		o.BakeStartedAt = models.TimePtr(*oven.StartedAt)
		o.BatchLabel = models.WithOvenSuffix(base, c.oven)
		o.UpdatedAt = now

		batch.OrderIDs = append(batch.OrderIDs, o.ID)
		batch.Labels = appendUnique(batch.Labels, base)
		c.after = append(c.after, o.Clone())
	}

	oven.Batches = append(oven.Batches, batch)
	return nil
}

func (c *startBaking) Persist(ctx context.Context, store repository.Store) error {
	return store.UpdateOrders(ctx, c.after...)
}

// completeBaking finishes every batch in an oven and frees it
type completeBaking struct {
	undoLog
	oven        int
	dailyTarget int
	after       []*models.Order
	completed   int
	day         time.Time
	remoteDaily int
}

func (c *completeBaking) Name() string { return "complete_baking" }

func (c *completeBaking) Describe() string { return fmt.Sprintf("Emptying Oven #%d", c.oven) }

func (c *completeBaking) Apply(b *Board, now time.Time) error {
	oven := b.Oven(c.oven)

	if oven == nil {
		return invalidOven(c.oven)
	}

	if !oven.IsActive {
		return apperrors.NewInvalidTransitionError(fmt.Sprintf("Oven #%d is not baking", c.oven))
	}

	c.saveOven(b, c.oven)
	c.saveDaily(b)

	for _, id := range oven.OrderIDs() {
		o, ok := b.Orders[id]

		if !ok {
			continue
		}

		c.saveOrder(b, id)

		o.Status = models.OrderStatusDone
		if o.CompletedAt == nil {
			o.CompletedAt = models.TimePtr(now)
		}
		o.UpdatedAt = now

		c.after = append(c.after, o.Clone())
	}

	c.completed = len(oven.Batches)
	c.day = now

	if today := dayOf(now); b.Day != today {
		b.Day = today
		b.DailyCompleted = 0
	}

	b.DailyCompleted = capAt(b.DailyCompleted+c.completed, c.dailyTarget)
	*oven = idleOven(c.oven)

	return nil
}

func (c *completeBaking) Persist(ctx context.Context, store repository.Store) error {
	completed, err := store.CompleteBaking(ctx, c.after, c.day, c.completed, c.dailyTarget)

	if err != nil {
		return err
	}

	c.remoteDaily = completed
	return nil
}

// Commit takes the store's counter, which includes other instances' batches
func (c *completeBaking) Commit(b *Board) {
	if b.Day == dayOf(c.day) {
		b.DailyCompleted = c.remoteDaily
	}
}

// updateStatus is the generic stage change. It only guards the once-only
// timestamps.
type updateStatus struct {
	undoLog
	orderID      string
	status       models.OrderStatus
	bakeDuration time.Duration
	after        *models.Order
}

func (c *updateStatus) Name() string { return "update_status" }

func (c *updateStatus) Describe() string {
	return fmt.Sprintf("Moving order %s to %s", c.orderID, c.status)
}

func (c *updateStatus) Apply(b *Board, now time.Time) error {
	if !c.status.Valid() {
		return apperrors.NewInvalidInputError(fmt.Sprintf("unknown status %q", c.status))
	}

	o, err := lookup(b, c.orderID)

	if err != nil {
		return err
	}

	c.saveOrder(b, o.ID)

	if c.status == models.OrderStatusMixing && o.StartedAt == nil {
		o.StartedAt = models.TimePtr(now)
	}

	if c.status == models.OrderStatusDone && o.CompletedAt == nil {
		o.CompletedAt = models.TimePtr(now)
	}

	leavesOven := o.Status == models.OrderStatusBaking && o.AssignedOven != nil && c.status != models.OrderStatusBaking

	// back in the queue or a mixer, the order no longer belongs to any oven
	if leavesOven && c.status != models.OrderStatusDone {
		o.AssignedOven = nil
		o.BakeStartedAt = nil
		o.BatchLabel = models.StripResourceSuffix(o.BatchLabel)
	}

	o.Status = c.status
	o.UpdatedAt = now

	if leavesOven {
		c.saveAllOvens(b)
		reconcileOvens(b, c.bakeDuration, now)
	}

	c.after = o.Clone()
	return nil
}

func (c *updateStatus) Persist(ctx context.Context, store repository.Store) error {
	return store.UpdateOrders(ctx, c.after)
}

// setQuantity changes the produced quantity, either to an absolute value or
// by a delta. The floor is 0 while queued and 1 afterwards.
type setQuantity struct {
	undoLog
	orderID string
	value   *int
	delta   int
	after   *models.Order
}

func (c *setQuantity) Name() string { return "set_quantity" }

func (c *setQuantity) Describe() string { return fmt.Sprintf("Changing the quantity of order %s", c.orderID) }

func (c *setQuantity) Apply(b *Board, now time.Time) error {
	o, err := lookup(b, c.orderID)

	if err != nil {
		return err
	}

	next := o.EffectiveProduced() + c.delta
	if c.value != nil {
		next = *c.value
	}

	if floor := QuantityFloor(o.Status); next < floor {
		next = floor
	}

	c.saveOrder(b, o.ID)

	o.ProducedQuantity = models.IntPtr(next)
	o.UpdatedAt = now

	c.after = o.Clone()
	return nil
}

func (c *setQuantity) Persist(ctx context.Context, store repository.Store) error {
	return store.UpdateOrders(ctx, c.after)
}

// QuantityFloor is the smallest produced quantity allowed in status
func QuantityFloor(status models.OrderStatus) int {
	if status == models.OrderStatusQueued {
		return 0
	}
	return 1
}

// updateNotes replaces an order's notes
type updateNotes struct {
	undoLog
	orderID string
	notes   string
	after   *models.Order
}

func (c *updateNotes) Name() string { return "update_notes" }

func (c *updateNotes) Apply(b *Board, now time.Time) error {
	o, err := lookup(b, c.orderID)

	if err != nil {
		return err
	}

	c.saveOrder(b, o.ID)

	o.Notes = strings.TrimSpace(c.notes)
	o.UpdatedAt = now

	c.after = o.Clone()
	return nil
}

func (c *updateNotes) Persist(ctx context.Context, store repository.Store) error {
	return store.UpdateOrders(ctx, c.after)
}

// recordPrint counts one more printed label
type recordPrint struct {
	undoLog
	orderID string
	after   *models.Order
}

func (c *recordPrint) Name() string { return "record_print" }

func (c *recordPrint) Apply(b *Board, now time.Time) error {
	o, err := lookup(b, c.orderID)

	if err != nil {
		return err
	}

	c.saveOrder(b, o.ID)

	o.PrintCount++
	o.UpdatedAt = now

	c.after = o.Clone()
	return nil
}

func (c *recordPrint) Persist(ctx context.Context, store repository.Store) error {
	return store.UpdateOrders(ctx, c.after)
}

// createOrder adds a new queued order
type createOrder struct {
	undoLog
	order *models.Order
}

func (c *createOrder) Name() string { return "create_order" }

func (c *createOrder) Describe() string { return fmt.Sprintf("Creating %s", c.order.BatchLabel) }

func (c *createOrder) Apply(b *Board, now time.Time) error {
	if _, exists := b.Orders[c.order.ID]; exists {
		return apperrors.NewConflictError(fmt.Sprintf("Order %s already exists", c.order.ID))
	}

	c.saveOrder(b, c.order.ID)
	b.Orders[c.order.ID] = c.order.Clone()
	return nil
}

func (c *createOrder) Persist(ctx context.Context, store repository.Store) error {
	return store.InsertOrder(ctx, c.order)
}

// deleteOrder removes an order for good, pulling it out of any oven
type deleteOrder struct {
	undoLog
	orderID      string
	bakeDuration time.Duration
}

func (c *deleteOrder) Name() string { return "delete_order" }

func (c *deleteOrder) Describe() string { return fmt.Sprintf("Deleting order %s", c.orderID) }

func (c *deleteOrder) Apply(b *Board, now time.Time) error {
	if _, err := lookup(b, c.orderID); err != nil {
		return err
	}

	c.saveOrder(b, c.orderID)
	c.saveAllOvens(b)

	delete(b.Orders, c.orderID)
	reconcileOvens(b, c.bakeDuration, now)

	return nil
}

func (c *deleteOrder) Persist(ctx context.Context, store repository.Store) error {
	return store.DeleteOrder(ctx, c.orderID)
}

// startMixerCountdown starts the standalone ready countdown of a mixer
type startMixerCountdown struct {
	undoLog
	localOnly
	mixer int
}

func (c *startMixerCountdown) Name() string { return "start_mixer_countdown" }

func (c *startMixerCountdown) Apply(b *Board, now time.Time) error {
	if !ValidMixer(c.mixer) {
		return invalidMixer(c.mixer)
	}

	c.saveCountdown(b, c.mixer)
	b.MixerCountdowns[c.mixer] = now
	return nil
}

// cancelMixerCountdown stops the standalone countdown of a mixer
type cancelMixerCountdown struct {
	undoLog
	localOnly
	mixer int
}

func (c *cancelMixerCountdown) Name() string { return "cancel_mixer_countdown" }

func (c *cancelMixerCountdown) Apply(b *Board, now time.Time) error {
	if !ValidMixer(c.mixer) {
		return invalidMixer(c.mixer)
	}

	c.saveCountdown(b, c.mixer)
	delete(b.MixerCountdowns, c.mixer)
	return nil
}

func capAt(v, limit int) int {
	if v > limit {
		return limit
	}
	return v
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

package production

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/vaidashi/bakery-production/internal/models"
	"github.com/vaidashi/bakery-production/internal/notify"
	"github.com/vaidashi/bakery-production/internal/timer"
)

const (
	mixingKeyPrefix = "mixing:"
	mixerKeyPrefix  = "mixer:"
	ovenKeyPrefix   = "oven:"
)

// timerSpecs derives every countdown from the board. Nothing about a
// countdown is stored apart from its start time.
func (e *Engine) timerSpecs(b *Board) map[timer.Kind][]timer.Spec {
	specs := make(map[timer.Kind][]timer.Spec, 3)

	for _, o := range b.OrderList() {
		if o.Status != models.OrderStatusMixing || o.StartedAt == nil {
			continue
		}

		specs[timer.KindMixing] = append(specs[timer.KindMixing], timer.Spec{
			Key:       mixingKeyPrefix + o.ID,
			Label:     models.StripResourceSuffix(o.BatchLabel),
			StartedAt: *o.StartedAt,
			Duration:  e.cfg.MixingDuration,
			Warning:   e.cfg.MixingWarning,
		})
	}

	for n := 1; n <= MixerCount; n++ {
		at, ok := b.MixerCountdowns[n]

		if !ok {
			continue
		}

		specs[timer.KindMixerReady] = append(specs[timer.KindMixerReady], timer.Spec{
			Key:          mixerKeyPrefix + strconv.Itoa(n),
			Label:        fmt.Sprintf("Mixer #%d", n),
			StartedAt:    at,
			Duration:     e.cfg.MixerReadyDuration,
			CountUpPhase: timer.PhaseReady,
		})
	}

	for _, oven := range b.Ovens {
		if !oven.IsActive || oven.StartedAt == nil {
			continue
		}

		specs[timer.KindOven] = append(specs[timer.KindOven], timer.Spec{
			Key:       ovenKeyPrefix + strconv.Itoa(oven.Number),
			Label:     fmt.Sprintf("Oven #%d", oven.Number),
			StartedAt: *oven.StartedAt,
			Duration:  e.cfg.BakeDuration,
			Warning:   e.cfg.OvenWarning,
		})
	}

	return specs
}

// Timers returns the live countdowns
func (e *Engine) Timers() []timer.Status {
	return e.scheduler.Snapshot()
}

// Tick advances the countdowns once. The scheduler calls it on its ticker;
// tests call it directly.
func (e *Engine) Tick(ctx context.Context) {
	now, events := e.scheduler.Tick()
	e.onTick(ctx, now, events)
}

func (e *Engine) onTick(ctx context.Context, now time.Time, events []timer.Event) {
	for _, ev := range events {
		e.metrics.timerEvent(ev)
		e.announce(ctx, ev)
	}

	e.rollDay(now)

	e.subMu.RLock()
	var tickers []TickSubscriber
	for _, s := range e.subscribers {
		if t, ok := s.(TickSubscriber); ok {
			tickers = append(tickers, t)
		}
	}
	e.subMu.RUnlock()

	if len(tickers) == 0 {
		return
	}

	timers := e.scheduler.Snapshot()

	for _, t := range tickers {
		t.TimersTicked(timers)
	}
}

func (e *Engine) announce(ctx context.Context, ev timer.Event) {
	switch ev.Kind {
	case timer.KindMixing:
		if ev.Type == timer.EventWarning {
			e.notify(ctx, notify.SeverityWarning, fmt.Sprintf("%s: %s left in the mixer", ev.Label, shortDuration(e.cfg.MixingWarning)), "")
		} else {
			e.notify(ctx, notify.SeverityInfo, fmt.Sprintf("%s finished mixing", ev.Label), "Move it to the oven queue")
		}

	case timer.KindMixerReady:
		if ev.Type == timer.EventComplete {
			e.notify(ctx, notify.SeveritySuccess, fmt.Sprintf("%s is ready", ev.Label), "")
		}

	case timer.KindOven:
		if ev.Type == timer.EventWarning {
			e.notify(ctx, notify.SeverityWarning, fmt.Sprintf("%s: %s left", ev.Label, shortDuration(e.cfg.OvenWarning)), "")
		} else {
			e.notify(ctx, notify.SeveritySuccess, fmt.Sprintf("%s is done", ev.Label), "Take the batches out")
		}
	}

	e.logger.Info("Countdown event", "key", ev.Key, "type", ev.Type)
}

// rollDay resets the daily counter once the date changes
func (e *Engine) rollDay(now time.Time) {
	today := dayOf(now)

	e.coord.Mutate(func(b *Board, _ time.Time) bool {
		if b.Day == today {
			return false
		}

		e.logger.Info("New production day", "day", today, "previousCompleted", b.DailyCompleted)

		b.Day = today
		b.DailyCompleted = 0
		return true
	})
}

// shortDuration prints 30s as "30 seconds" and 2m as "2 minutes"
func shortDuration(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		if d == time.Minute {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}

	secs := int(d / time.Second)
	if secs == 1 {
		return "1 second"
	}
	return fmt.Sprintf("%d seconds", secs)
}

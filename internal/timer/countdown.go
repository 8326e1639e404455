package timer

import "time"

// Kind groups countdowns that are synced together
type Kind string

const (
	KindMixing     Kind = "mixing"
	KindMixerReady Kind = "mixer_ready"
	KindOven       Kind = "oven"
)

// Phase is the visual state of a countdown
type Phase string

const (
	PhaseRunning Phase = "running"
	PhaseWarning Phase = "warning"
	PhaseOverdue Phase = "overdue"
	PhaseReady   Phase = "ready"
)

// EventType marks a one-time countdown event
type EventType string

const (
	EventWarning  EventType = "warning"
	EventComplete EventType = "complete"
)

// Spec describes a countdown. Warning of zero means no warning threshold.
// CountUpPhase is the phase shown once the countdown reaches zero.
type Spec struct {
	Key          string        `json:"key"`
	Kind         Kind          `json:"kind"`
	Label        string        `json:"label"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	Warning      time.Duration `json:"warning,omitempty"`
	CountUpPhase Phase         `json:"count_up_phase"`
}

// Event is emitted once per threshold crossing
type Event struct {
	Type  EventType `json:"type"`
	Key   string    `json:"key"`
	Kind  Kind      `json:"kind"`
	Label string    `json:"label"`
	At    time.Time `json:"at"`
}

// Status is a point-in-time view of a countdown
type Status struct {
	Key       string `json:"key"`
	Kind      Kind   `json:"kind"`
	Label     string `json:"label"`
	Phase     Phase  `json:"phase"`
	TimeLeft  int    `json:"time_left"`
	Remaining int    `json:"remaining"`
	Overdue   int    `json:"overdue"`
}

// TimeLeft is max(0, d - elapsed). It depends only on the start time, so it
// gives the same answer whenever it is recomputed.
func TimeLeft(startedAt time.Time, d time.Duration, now time.Time) time.Duration {
	left := Remaining(startedAt, d, now)

	if left < 0 {
		return 0
	}

	return left
}

// Remaining is d - elapsed and goes negative once the countdown is overdue
func Remaining(startedAt time.Time, d time.Duration, now time.Time) time.Duration {
	return d - now.Sub(startedAt)
}

// Countdown tracks which one-time events have fired for a Spec
type Countdown struct {
	Spec
	warned    bool
	completed bool
}

// NewCountdown creates a countdown. Thresholds already crossed at now are
// marked as fired so a restored countdown does not replay them.
func NewCountdown(spec Spec, now time.Time) *Countdown {
	c := &Countdown{Spec: spec}
	left := Remaining(spec.StartedAt, spec.Duration, now)

	if c.Warning > 0 && left <= c.Warning {
		c.warned = true
	}

	if left <= 0 {
		c.warned = true
		c.completed = true
	}

	return c
}

// Phase returns the visual state at now
func (c *Countdown) Phase(now time.Time) Phase {
	left := Remaining(c.StartedAt, c.Duration, now)

	switch {
	case left <= 0:
		if c.CountUpPhase != "" {
			return c.CountUpPhase
		}
		return PhaseOverdue
	case c.Warning > 0 && left <= c.Warning:
		return PhaseWarning
	default:
		return PhaseRunning
	}
}

// Advance returns the events that became due since the last call. Each event
// fires at most once per countdown.
func (c *Countdown) Advance(now time.Time) []Event {
	left := Remaining(c.StartedAt, c.Duration, now)

	var events []Event

	if !c.warned && c.Warning > 0 && left <= c.Warning && left > 0 {
		c.warned = true
		events = append(events, c.event(EventWarning, now))
	}

	if !c.completed && left <= 0 {
		c.warned = true
		c.completed = true
		events = append(events, c.event(EventComplete, now))
	}

	return events
}

// Status returns the countdown's view at now
func (c *Countdown) Status(now time.Time) Status {
	remaining := Remaining(c.StartedAt, c.Duration, now)

	overdue := -remaining
	if overdue < 0 {
		overdue = 0
	}

	return Status{
		Key:       c.Key,
		Kind:      c.Kind,
		Label:     c.Label,
		Phase:     c.Phase(now),
		TimeLeft:  seconds(TimeLeft(c.StartedAt, c.Duration, now)),
		Remaining: seconds(remaining),
		Overdue:   seconds(overdue),
	}
}

func (c *Countdown) sameRun(spec Spec) bool {
	return c.StartedAt.Equal(spec.StartedAt) && c.Duration == spec.Duration && c.Warning == spec.Warning
}

func (c *Countdown) event(t EventType, now time.Time) Event {
	return Event{Type: t, Key: c.Key, Kind: c.Kind, Label: c.Label, At: now}
}

// seconds rounds toward zero
func seconds(d time.Duration) int {
	return int(d / time.Second)
}

package notify

import (
	"context"
	"sync"
	"time"

	"github.com/vaidashi/bakery-production/pkg/logger"
)

// Severity of a notification
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is a user-visible message
type Notification struct {
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message"`
	Description string    `json:"description,omitempty"`
	At          time.Time `json:"at"`
}

// Notifier is a sink for notifications. Delivery is best effort; nothing is returned.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// LogNotifier writes notifications to the log
type LogNotifier struct {
	logger logger.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(logger logger.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, note Notification) {
	keyvals := []interface{}{"severity", note.Severity}

	if note.Description != "" {
		keyvals = append(keyvals, "description", note.Description)
	}

	switch note.Severity {
	case SeverityError:
		n.logger.Error(note.Message, keyvals...)
	case SeverityWarning:
		n.logger.Warn(note.Message, keyvals...)
	default:
		n.logger.Info(note.Message, keyvals...)
	}
}

// Multi fans a notification out to every sink
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, sink := range m {
		if sink != nil {
			sink.Notify(ctx, n)
		}
	}
}

// Recorder keeps every notification in memory
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(ctx context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = append(r.items, n)
}

// All returns the recorded notifications in arrival order
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Count returns how many notifications had the given message
func (r *Recorder) Count(message string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0

	for _, n := range r.items {
		if n.Message == message {
			count++
		}
	}

	return count
}

// Reset drops everything recorded so far
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = nil
}

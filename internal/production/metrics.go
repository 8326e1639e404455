package production

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vaidashi/bakery-production/internal/timer"
)

// Metrics holds the production Prometheus metrics
type Metrics struct {
	// Commands counts executed commands
	// Labels: command, outcome
	Commands *prometheus.CounterVec

	// ChangesApplied counts change feed entries
	// Labels: op, result
	ChangesApplied *prometheus.CounterVec

	// TimerEvents counts countdown warnings and completions
	// Labels: kind, type
	TimerEvents *prometheus.CounterVec

	// MixerOccupancy is the number of orders in each mixer
	// Labels: mixer
	MixerOccupancy *prometheus.GaugeVec

	// OvenActive is 1 while an oven is baking
	// Labels: oven
	OvenActive *prometheus.GaugeVec

	// DailyCompleted is today's completed batch count
	DailyCompleted prometheus.Gauge
}

// NewMetrics creates and registers the metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		Commands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bakery_commands_total",
				Help: "Total number of production commands by outcome",
			},
			[]string{"command", "outcome"},
		),

		ChangesApplied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bakery_change_feed_entries_total",
				Help: "Total number of change feed entries by result",
			},
			[]string{"op", "result"},
		),

		TimerEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bakery_timer_events_total",
				Help: "Total number of countdown warnings and completions",
			},
			[]string{"kind", "type"},
		),

		MixerOccupancy: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bakery_mixer_occupancy",
				Help: "Number of orders currently in each mixer",
			},
			[]string{"mixer"},
		),

		OvenActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bakery_oven_active",
				Help: "1 while the oven is baking, 0 when idle",
			},
			[]string{"oven"},
		),

		DailyCompleted: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bakery_daily_completed_batches",
				Help: "Batches completed today",
			},
		),
	}
}

func (m *Metrics) commandDone(command, outcome string) {
	m.Commands.WithLabelValues(command, outcome).Inc()
}

func (m *Metrics) changeApplied(op, result string) {
	m.ChangesApplied.WithLabelValues(op, result).Inc()
}

func (m *Metrics) timerEvent(e timer.Event) {
	m.TimerEvents.WithLabelValues(string(e.Kind), string(e.Type)).Inc()
}

func (m *Metrics) observeBoard(b *Board) {
	for n := 1; n <= MixerCount; n++ {
		m.MixerOccupancy.WithLabelValues(strconv.Itoa(n)).Set(float64(Occupancy(b.Orders, n)))
	}

	for _, oven := range b.Ovens {
		active := 0.0
		if oven.IsActive {
			active = 1
		}
		m.OvenActive.WithLabelValues(strconv.Itoa(oven.Number)).Set(active)
	}

	m.DailyCompleted.Set(float64(b.DailyCompleted))
}

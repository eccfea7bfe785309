package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmatscheko/homeassistant-rainsensor/internal/gauge"
)

// Metrics holds the Prometheus instruments for the gauge pipeline.
type Metrics struct {
	TipsTotal         *prometheus.CounterVec // label: direction={on,off}
	DroppedStates     prometheus.Counter
	HistoryFailures   prometheus.Counter
	ReconcileRuns     prometheus.Counter
	SensorAvailable   prometheus.Gauge
	DailyRainfallMM   prometheus.Gauge
	TotalRainfallMM   prometheus.Gauge
	RateMMPerHour     prometheus.Gauge
	RateKnown         prometheus.Gauge
	RateWindowTips    prometheus.Gauge
	ReadingsPublished prometheus.Counter
}

// New creates and registers all pipeline metrics with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TipsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rainsensor",
			Name:      "tips_total",
			Help:      "Total tip events recorded, by flip direction.",
		}, []string{"direction"}),
		DroppedStates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainsensor",
			Name:      "dropped_states_total",
			Help:      "Notifications dropped as duplicates or invalid states.",
		}),
		HistoryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainsensor",
			Name:      "history_query_failures_total",
			Help:      "History log queries that failed and degraded to defaults.",
		}),
		ReconcileRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainsensor",
			Name:      "reconcile_runs_total",
			Help:      "Startup and gap reconciliations executed.",
		}),
		SensorAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rainsensor",
			Name:      "sensor_available",
			Help:      "1 while the monitored binary sensor reports valid states.",
		}),
		DailyRainfallMM: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rainsensor",
			Name:      "daily_rainfall_mm",
			Help:      "Rain depth accumulated today.",
		}),
		TotalRainfallMM: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rainsensor",
			Name:      "total_rainfall_mm",
			Help:      "Cumulative rain depth.",
		}),
		RateMMPerHour: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rainsensor",
			Name:      "rate_mm_per_hour",
			Help:      "Rainfall rate estimate; only meaningful while rate_known is 1.",
		}),
		RateKnown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rainsensor",
			Name:      "rate_known",
			Help:      "1 when enough observation time exists for a rate estimate.",
		}),
		RateWindowTips: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rainsensor",
			Name:      "rate_window_tips",
			Help:      "Tips currently inside the trailing one-hour window.",
		}),
		ReadingsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainsensor",
			Name:      "readings_published_total",
			Help:      "Readings snapshots published to the broker.",
		}),
	}

	reg.MustRegister(
		m.TipsTotal,
		m.DroppedStates,
		m.HistoryFailures,
		m.ReconcileRuns,
		m.SensorAvailable,
		m.DailyRainfallMM,
		m.TotalRainfallMM,
		m.RateMMPerHour,
		m.RateKnown,
		m.RateWindowTips,
		m.ReadingsPublished,
	)
	return m
}

// ObserveReadings updates the snapshot gauges from one readings value.
func (m *Metrics) ObserveReadings(r gauge.Readings) {
	boolGauge(m.SensorAvailable, r.Available)
	m.DailyRainfallMM.Set(r.DailyRainMM)
	m.TotalRainfallMM.Set(r.TotalRainMM)
	boolGauge(m.RateKnown, r.RateKnown)
	if r.RateKnown {
		m.RateMMPerHour.Set(r.RateMMPerHour)
	} else {
		m.RateMMPerHour.Set(0)
	}
}

func boolGauge(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}

// Package gauge implements the tipping-bucket rain gauge pipeline: raw
// binary sensor notifications are normalized into tip events, accumulated
// into daily and total counters, and fed into a sliding-window rate
// estimate. The package is pure domain logic: no broker, database, or
// wall-clock access beyond the injected clock.
package gauge

import (
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Metric names for the readings a gauge exposes.
const (
	MetricDailyOnCount  = "daily_on_count"
	MetricDailyOffCount = "daily_off_count"
	MetricTotalOnCount  = "total_on_count"
	MetricTotalOffCount = "total_off_count"
	MetricDailyRain     = "daily_rainfall"
	MetricTotalRain     = "total_rainfall"
	MetricDailyTilt     = "daily_tilt_count"
	MetricTotalTilt     = "total_tilt_count"
	MetricRate          = "rainfall_rate"
)

// Readings is a point-in-time snapshot of everything a gauge computes.
type Readings struct {
	At        time.Time `json:"at"`
	Available bool      `json:"available"`

	DailyOnCount  int64 `json:"daily_on_count"`
	DailyOffCount int64 `json:"daily_off_count"`
	TotalOnCount  int64 `json:"total_on_count"`
	TotalOffCount int64 `json:"total_off_count"`
	DailyTilt     int64 `json:"daily_tilt_count"`
	TotalTilt     int64 `json:"total_tilt_count"`

	DailyRainMM float64 `json:"daily_rainfall_mm"`
	TotalRainMM float64 `json:"total_rainfall_mm"`

	// RateMMPerHour is only meaningful when RateKnown is true.
	RateMMPerHour float64 `json:"rate_mm_per_hour"`
	RateKnown     bool    `json:"rate_known"`
}

// Slug derives the persistence identity of the gauge from its sensor name.
func (p Params) Slug() string {
	slug := strings.ToLower(strings.TrimSpace(p.SensorName))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, slug)
	slug = strings.Trim(slug, "_")
	if slug == "" {
		slug = "rainsensor"
	}
	return slug
}

// ReadingEntityID builds the entity id a metric is persisted under,
// mirroring the host platform's sensor naming.
func (p Params) ReadingEntityID(metric string) string {
	return "sensor." + p.Slug() + "_" + metric
}

// Gauge owns the per-sensor pipeline state. It is not safe for concurrent
// use; the service dispatch loop is its single caller.
type Gauge struct {
	params     Params
	normalizer *Normalizer
	acc        *Accumulator
	rate       *RateEstimator
	clock      clockwork.Clock
	logger     zerolog.Logger
	available  bool
}

// New constructs a Gauge with zeroed state dated at the clock's current time.
func New(params Params, loc *time.Location, clock clockwork.Clock, logger zerolog.Logger) *Gauge {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	now := clock.Now()
	return &Gauge{
		params:     params,
		normalizer: NewNormalizer(params.MissedFlipRecovery),
		acc:        NewAccumulator(params, loc, now),
		rate:       NewRateEstimator(params, now),
		clock:      clock,
		logger:     logger.With().Str("component", "gauge").Str("entity", params.EntityID).Logger(),
		available:  true,
	}
}

// Params returns the immutable gauge configuration.
func (g *Gauge) Params() Params {
	return g.params
}

// Handle processes one raw notification to completion and reports whether
// any reading may have changed.
func (g *Gauge) Handle(note Notification) bool {
	if note.Time.IsZero() {
		note.Time = g.clock.Now()
	}

	if _, valid := ParseDirection(note.State); !valid {
		g.normalizer.Apply(note)
		if g.available {
			g.logger.Warn().Str("state", note.State).Msg("sensor unavailable; counters frozen")
			g.available = false
			return true
		}
		return false
	}

	changed := !g.available
	g.available = true

	events := g.normalizer.Apply(note)
	for _, ev := range events {
		g.acc.Record(ev)
		g.rate.Observe(ev.Time, g.params.TipVolume(ev.Direction))
		g.logger.Debug().Time("at", ev.Time).Str("direction", string(ev.Direction)).Msg("tip recorded")
	}
	if len(events) > 0 {
		changed = true
	}
	return changed
}

// Housekeeping runs the periodic checks that are independent of tips:
// midnight rollover and rate window pruning. Returns true if a reading
// may have changed.
func (g *Gauge) Housekeeping() bool {
	now := g.clock.Now()
	rolled := g.acc.RolloverIfNeeded(now)
	before := g.rate.WindowLen()
	g.rate.Prune(now)
	if rolled {
		g.logger.Info().Msg("daily counters reset")
	}
	return rolled || g.rate.WindowLen() != before
}

// Seed installs reconciled counter state and rate window entries.
func (g *Gauge) Seed(state CounterState, window []TipEvent) {
	g.acc.Seed(state)
	g.rate.Seed(g.clock.Now(), window, g.params)
}

// Readings computes the current snapshot. Pruning and rollover checks run
// inline, so a read after a long quiet period is still correct.
func (g *Gauge) Readings() Readings {
	now := g.clock.Now()
	g.acc.RolloverIfNeeded(now)
	rate, known := g.rate.Rate(now)

	return Readings{
		At:            now,
		Available:     g.available,
		DailyOnCount:  g.acc.State().DailyOn,
		DailyOffCount: g.acc.State().DailyOff,
		TotalOnCount:  g.acc.State().TotalOn,
		TotalOffCount: g.acc.State().TotalOff,
		DailyTilt:     g.acc.DailyTiltCount(),
		TotalTilt:     g.acc.TotalTiltCount(),
		DailyRainMM:   g.acc.DailyRainfallMM(),
		TotalRainMM:   g.acc.TotalRainfallMM(),
		RateMMPerHour: rate,
		RateKnown:     known,
	}
}

// Available reports whether the monitored sensor currently delivers valid states.
func (g *Gauge) Available() bool {
	return g.available
}

// WindowTips reports how many tips the rate window currently holds.
func (g *Gauge) WindowTips() int {
	return g.rate.WindowLen()
}

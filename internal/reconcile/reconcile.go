// Package reconcile repairs in-memory gauge state after a restart by
// replaying the persisted history, so counters and the rate window look as
// if the process had never stopped.
package reconcile

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/dmatscheko/homeassistant-rainsensor/internal/gauge"
	"github.com/dmatscheko/homeassistant-rainsensor/internal/storage"
)

// History is the slice of the state log the reconciler needs.
type History interface {
	LastReading(ctx context.Context, entityID string, before time.Time) (*storage.ReadingRecord, error)
	ListStatesBetween(ctx context.Context, entityID string, from, to time.Time) ([]storage.StateRecord, error)
}

// Result summarises what a reconciliation run recovered.
type Result struct {
	ColdStart      bool
	Counters       gauge.CounterState
	WindowTips     int
	QueryFailures  int
	DailyDiscarded bool
}

// Reconciler seeds a gauge from the history log at startup.
type Reconciler struct {
	history History
	loc     *time.Location
	clock   clockwork.Clock
	logger  zerolog.Logger
}

// New constructs a Reconciler. A nil history means persistence is disabled
// and every run is a cold start.
func New(history History, loc *time.Location, clock clockwork.Clock, logger zerolog.Logger) *Reconciler {
	if loc == nil {
		loc = time.Local
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Reconciler{
		history: history,
		loc:     loc,
		clock:   clock,
		logger:  logger.With().Str("component", "reconcile").Logger(),
	}
}

// Run queries the history log and seeds the gauge. Query failures and
// missing history degrade to cold-start defaults; they are logged as
// warnings, never propagated as fatal errors.
func (r *Reconciler) Run(ctx context.Context, g *gauge.Gauge) Result {
	now := r.clock.Now()
	params := g.Params()

	if r.history == nil {
		r.logger.Info().Msg("no history store configured; cold start")
		return Result{ColdStart: true, Counters: coldCounters(now, r.loc)}
	}

	result := Result{Counters: coldCounters(now, r.loc)}

	result.Counters.TotalOn = r.recoverCounter(ctx, params, gauge.MetricTotalOnCount, now, nil, &result)
	result.Counters.TotalOff = r.recoverCounter(ctx, params, gauge.MetricTotalOffCount, now, nil, &result)

	// Daily counters only survive a restart when their last persisted value
	// was recorded today in the gauge's location; otherwise a midnight was
	// crossed while offline and they restart at zero.
	today := gauge.DateOf(now.In(r.loc))
	result.Counters.DailyOn = r.recoverCounter(ctx, params, gauge.MetricDailyOnCount, now, &today, &result)
	result.Counters.DailyOff = r.recoverCounter(ctx, params, gauge.MetricDailyOffCount, now, &today, &result)

	window := r.recoverWindow(ctx, params, now, &result)
	result.WindowTips = len(window)

	if result.Counters == coldCounters(now, r.loc) && result.WindowTips == 0 {
		result.ColdStart = true
	}

	g.Seed(result.Counters, window)

	r.logger.Info().
		Bool("cold_start", result.ColdStart).
		Int64("total_on", result.Counters.TotalOn).
		Int64("total_off", result.Counters.TotalOff).
		Int64("daily_on", result.Counters.DailyOn).
		Int64("daily_off", result.Counters.DailyOff).
		Int("window_tips", result.WindowTips).
		Msg("reconciliation complete")
	return result
}

func coldCounters(now time.Time, loc *time.Location) gauge.CounterState {
	return gauge.CounterState{LastReset: gauge.DateOf(now.In(loc))}
}

// recoverCounter loads the last persisted value of one counter metric.
// When sameDay is non-nil the value is only accepted if it was recorded on
// that calendar day.
func (r *Reconciler) recoverCounter(ctx context.Context, params gauge.Params, metric string, now time.Time, sameDay *gauge.Date, result *Result) int64 {
	entityID := params.ReadingEntityID(metric)

	rec, err := r.history.LastReading(ctx, entityID, now)
	if err != nil {
		result.QueryFailures++
		r.logger.Warn().Err(err).Str("entity", entityID).Msg("history query failed; counter starts at zero")
		return 0
	}
	if rec == nil {
		return 0
	}

	if sameDay != nil {
		recorded := gauge.DateOf(rec.RecordedAt.In(r.loc))
		if recorded != *sameDay {
			result.DailyDiscarded = true
			return 0
		}
	}

	value := rec.Value.IntPart()
	if value < 0 {
		r.logger.Warn().Str("entity", entityID).Str("value", rec.Value.String()).Msg("discarding negative persisted counter")
		return 0
	}
	return value
}

// recoverWindow replays raw binary states from the trailing hour through a
// fresh normalizer with the live missed-flip policy, so the reconstructed
// rate window matches what live processing would have produced.
func (r *Reconciler) recoverWindow(ctx context.Context, params gauge.Params, now time.Time, result *Result) []gauge.TipEvent {
	from := now.Add(-time.Hour)

	states, err := r.history.ListStatesBetween(ctx, params.EntityID, from, now)
	if err != nil {
		result.QueryFailures++
		r.logger.Warn().Err(err).Str("entity", params.EntityID).Msg("history query failed; rate window starts empty")
		return nil
	}
	if len(states) == 0 {
		return nil
	}

	normalizer := gauge.NewNormalizer(params.MissedFlipRecovery)
	var events []gauge.TipEvent
	for _, rec := range states {
		events = append(events, normalizer.Apply(gauge.Notification{
			State: rec.State,
			Time:  rec.RecordedAt,
		})...)
	}
	return events
}

package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dmatscheko/homeassistant-rainsensor/internal/gauge"
	"github.com/dmatscheko/homeassistant-rainsensor/internal/metrics"
	"github.com/dmatscheko/homeassistant-rainsensor/internal/reconcile"
	"github.com/dmatscheko/homeassistant-rainsensor/internal/scheduler"
	"github.com/dmatscheko/homeassistant-rainsensor/internal/storage"
	"github.com/dmatscheko/homeassistant-rainsensor/internal/transport"
)

// Retention horizons for the history log. Raw states only matter for the
// one-hour rate window; readings are kept long enough for exports.
const (
	stateRetention   = 24 * time.Hour
	readingRetention = 90 * 24 * time.Hour
	pruneEvery       = time.Hour
)

var errNotReady = errors.New("service: startup reconciliation not finished")

// Options bundle the service dependencies. StateLog, ReadingLog, Publisher,
// and Metrics may be nil; the corresponding side effects are skipped.
type Options struct {
	Gauge      *gauge.Gauge
	Subscriber transport.Subscriber
	Publisher  transport.Publisher
	StateLog   storage.StateLog
	ReadingLog storage.ReadingLog
	Reconciler *reconcile.Reconciler
	Scheduler  *scheduler.Scheduler
	Metrics    *metrics.Metrics
	Clock      clockwork.Clock
	Pruner     Pruner
}

// Pruner trims aged-out history; the Store satisfies it.
type Pruner interface {
	DeleteStatesBefore(ctx context.Context, olderThan time.Time) error
	DeleteReadingsBefore(ctx context.Context, olderThan time.Time) error
}

// Service runs the single-threaded event loop: every notification and
// housekeeping tick is processed to completion before the next is handled.
type Service struct {
	gauge      *gauge.Gauge
	subscriber transport.Subscriber
	publisher  transport.Publisher
	stateLog   storage.StateLog
	readingLog storage.ReadingLog
	reconciler *reconcile.Reconciler
	sched      *scheduler.Scheduler
	metrics    *metrics.Metrics
	clock      clockwork.Clock
	pruner     Pruner
	logger     zerolog.Logger

	notes     chan gauge.Notification
	ticks     chan time.Time
	snapshot  atomic.Pointer[gauge.Readings]
	ready     atomic.Bool
	lastPrune time.Time
}

// New constructs the service.
func New(opts Options, logger zerolog.Logger) *Service {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		gauge:      opts.Gauge,
		subscriber: opts.Subscriber,
		publisher:  opts.Publisher,
		stateLog:   opts.StateLog,
		readingLog: opts.ReadingLog,
		reconciler: opts.Reconciler,
		sched:      opts.Scheduler,
		metrics:    opts.Metrics,
		clock:      clock,
		pruner:     opts.Pruner,
		logger:     logger.With().Str("component", "service").Logger(),
		notes:      make(chan gauge.Notification, 64),
		ticks:      make(chan time.Time, 1),
	}
}

// Readings returns the latest published snapshot.
func (s *Service) Readings() (gauge.Readings, bool) {
	snap := s.snapshot.Load()
	if snap == nil {
		return gauge.Readings{}, false
	}
	return *snap, true
}

// Ready reports nil once startup reconciliation finished.
func (s *Service) Ready() error {
	if !s.ready.Load() {
		return errNotReady
	}
	return nil
}

// Run reconciles, subscribes, and processes events until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.gauge == nil {
		return errors.New("service: gauge not configured")
	}

	if s.reconciler != nil {
		result := s.reconciler.Run(ctx, s.gauge)
		if s.metrics != nil {
			s.metrics.ReconcileRuns.Inc()
			s.metrics.HistoryFailures.Add(float64(result.QueryFailures))
		}
	}
	s.ready.Store(true)
	s.publish(ctx)

	if s.subscriber != nil {
		if err := s.subscriber.Subscribe(s.enqueue); err != nil {
			return err
		}
	}

	if s.sched != nil {
		go func() {
			_ = s.sched.Run(ctx, func(_ context.Context, now time.Time) error {
				select {
				case s.ticks <- now:
				default:
					// A tick is already pending; collapsing them is fine.
				}
				return nil
			})
		}()
	}

	s.logger.Info().Msg("event loop started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case note := <-s.notes:
			s.handleNotification(ctx, note)
		case <-s.ticks:
			s.handleHousekeeping(ctx)
		}
	}
}

// enqueue hands a notification from the broker callback goroutine to the
// event loop. The channel is deep enough that drops only happen if the
// loop is wedged; dropped notifications are logged.
func (s *Service) enqueue(note gauge.Notification) {
	select {
	case s.notes <- note:
	default:
		s.logger.Warn().Str("state", note.State).Msg("notification queue full; dropping")
	}
}

func (s *Service) handleNotification(ctx context.Context, note gauge.Notification) {
	if note.Time.IsZero() {
		note.Time = s.clock.Now()
	}

	// Raw states are appended to the history log before processing so a
	// crash mid-event still leaves the reconciler a complete record.
	if s.stateLog != nil {
		if err := s.stateLog.InsertSensorState(ctx, s.gauge.Params().EntityID, note.State, note.Time); err != nil {
			s.logger.Warn().Err(err).Msg("failed to record raw sensor state")
			if s.metrics != nil {
				s.metrics.HistoryFailures.Inc()
			}
		}
	}

	if s.gauge.Handle(note) {
		s.publish(ctx)
		return
	}
	if s.metrics != nil {
		s.metrics.DroppedStates.Inc()
	}
}

func (s *Service) handleHousekeeping(ctx context.Context) {
	if s.gauge.Housekeeping() {
		s.publish(ctx)
	}
	s.pruneHistory(ctx)
}

func (s *Service) pruneHistory(ctx context.Context) {
	if s.pruner == nil {
		return
	}
	now := s.clock.Now()
	if !s.lastPrune.IsZero() && now.Sub(s.lastPrune) < pruneEvery {
		return
	}
	s.lastPrune = now

	if err := s.pruner.DeleteStatesBefore(ctx, now.Add(-stateRetention)); err != nil {
		s.logger.Warn().Err(err).Msg("failed to prune raw state history")
	}
	if err := s.pruner.DeleteReadingsBefore(ctx, now.Add(-readingRetention)); err != nil {
		s.logger.Warn().Err(err).Msg("failed to prune readings history")
	}
}

// publish recomputes the snapshot and pushes it to every sink.
func (s *Service) publish(ctx context.Context) {
	previous := s.snapshot.Load()
	readings := s.gauge.Readings()
	s.snapshot.Store(&readings)

	if s.metrics != nil {
		s.metrics.ObserveReadings(readings)
		s.metrics.RateWindowTips.Set(float64(s.gauge.WindowTips()))
		if previous != nil {
			if d := readings.TotalOnCount - previous.TotalOnCount; d > 0 {
				s.metrics.TipsTotal.WithLabelValues(string(gauge.DirectionOn)).Add(float64(d))
			}
			if d := readings.TotalOffCount - previous.TotalOffCount; d > 0 {
				s.metrics.TipsTotal.WithLabelValues(string(gauge.DirectionOff)).Add(float64(d))
			}
		}
	}

	if s.readingLog != nil {
		if err := s.readingLog.InsertReadings(ctx, readingRecords(s.gauge.Params(), readings)); err != nil {
			s.logger.Warn().Err(err).Msg("failed to persist readings")
			if s.metrics != nil {
				s.metrics.HistoryFailures.Inc()
			}
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishReadings(readings); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish readings")
		} else if s.metrics != nil {
			s.metrics.ReadingsPublished.Inc()
		}
	}
}

// readingRecords flattens one snapshot into history rows, keyed the same
// way the host platform would key its sensor entities.
func readingRecords(params gauge.Params, r gauge.Readings) []storage.ReadingRecord {
	records := []storage.ReadingRecord{
		{EntityID: params.ReadingEntityID(gauge.MetricDailyOnCount), Value: decimal.NewFromInt(r.DailyOnCount), RecordedAt: r.At},
		{EntityID: params.ReadingEntityID(gauge.MetricDailyOffCount), Value: decimal.NewFromInt(r.DailyOffCount), RecordedAt: r.At},
		{EntityID: params.ReadingEntityID(gauge.MetricTotalOnCount), Value: decimal.NewFromInt(r.TotalOnCount), RecordedAt: r.At},
		{EntityID: params.ReadingEntityID(gauge.MetricTotalOffCount), Value: decimal.NewFromInt(r.TotalOffCount), RecordedAt: r.At},
		{EntityID: params.ReadingEntityID(gauge.MetricDailyTilt), Value: decimal.NewFromInt(r.DailyTilt), RecordedAt: r.At},
		{EntityID: params.ReadingEntityID(gauge.MetricTotalTilt), Value: decimal.NewFromInt(r.TotalTilt), RecordedAt: r.At},
		{EntityID: params.ReadingEntityID(gauge.MetricDailyRain), Value: decimal.NewFromFloat(r.DailyRainMM), RecordedAt: r.At},
		{EntityID: params.ReadingEntityID(gauge.MetricTotalRain), Value: decimal.NewFromFloat(r.TotalRainMM), RecordedAt: r.At},
	}
	if r.RateKnown {
		records = append(records, storage.ReadingRecord{
			EntityID:   params.ReadingEntityID(gauge.MetricRate),
			Value:      decimal.NewFromFloat(r.RateMMPerHour),
			RecordedAt: r.At,
		})
	}
	return records
}

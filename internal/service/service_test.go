package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dmatscheko/homeassistant-rainsensor/internal/gauge"
	"github.com/dmatscheko/homeassistant-rainsensor/internal/metrics"
	"github.com/dmatscheko/homeassistant-rainsensor/internal/reconcile"
	"github.com/dmatscheko/homeassistant-rainsensor/internal/storage"
	"github.com/dmatscheko/homeassistant-rainsensor/internal/transport"
)

var testParams = gauge.Params{
	EntityID:         "binary_sensor.rain_tip",
	SensorName:       "Rainsensor",
	VolumePerOnML:    10,
	VolumePerOffML:   10,
	FunnelDiameterMM: 100,
}

// memoryLog is an in-memory StateLog plus ReadingLog for exercising the
// service without a database.
type memoryLog struct {
	mu       sync.Mutex
	states   []storage.StateRecord
	readings []storage.ReadingRecord
}

func (m *memoryLog) InsertSensorState(_ context.Context, entityID, state string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, storage.StateRecord{
		ID:         int64(len(m.states) + 1),
		EntityID:   entityID,
		State:      state,
		RecordedAt: at,
	})
	return nil
}

func (m *memoryLog) ListStatesBetween(_ context.Context, entityID string, from, to time.Time) ([]storage.StateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.StateRecord
	for _, rec := range m.states {
		if rec.EntityID == entityID && !rec.RecordedAt.Before(from) && !rec.RecordedAt.After(to) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memoryLog) InsertReadings(_ context.Context, readings []storage.ReadingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, readings...)
	return nil
}

func (m *memoryLog) LastReading(_ context.Context, entityID string, before time.Time) (*storage.ReadingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.readings) - 1; i >= 0; i-- {
		rec := m.readings[i]
		if rec.EntityID == entityID && rec.RecordedAt.Before(before) {
			return &rec, nil
		}
	}
	return nil, nil
}

func (m *memoryLog) ListReadingsBetween(_ context.Context, entityID string, from, to time.Time) ([]storage.ReadingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.ReadingRecord
	for _, rec := range m.readings {
		if rec.EntityID == entityID && !rec.RecordedAt.Before(from) && !rec.RecordedAt.After(to) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memoryLog) ListRecentReadings(_ context.Context, entityID string, limit int) ([]storage.ReadingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.ReadingRecord
	for i := len(m.readings) - 1; i >= 0 && len(out) < limit; i-- {
		if m.readings[i].EntityID == entityID {
			out = append(out, m.readings[i])
		}
	}
	return out, nil
}

func (m *memoryLog) stateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}

func (m *memoryLog) readingsFor(entityID string) []storage.ReadingRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.ReadingRecord
	for _, rec := range m.readings {
		if rec.EntityID == entityID {
			out = append(out, rec)
		}
	}
	return out
}

var (
	_ storage.StateLog   = (*memoryLog)(nil)
	_ storage.ReadingLog = (*memoryLog)(nil)
)

type fixture struct {
	service *Service
	broker  *transport.FakeBroker
	log     *memoryLog
	clock   *clockwork.FakeClock
	cancel  context.CancelFunc
	done    chan error
}

func startService(t *testing.T, params gauge.Params) *fixture {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC))
	broker := transport.NewFakeBroker()
	log := &memoryLog{}
	g := gauge.New(params, time.UTC, clock, zerolog.Nop())
	rec := reconcile.New(log, time.UTC, clock, zerolog.Nop())
	m := metrics.New(prometheus.NewRegistry())

	svc := New(Options{
		Gauge:      g,
		Subscriber: broker,
		Publisher:  broker,
		StateLog:   log,
		ReadingLog: log,
		Reconciler: rec,
		Metrics:    m,
		Clock:      clock,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return svc.Ready() == nil },
		5*time.Second, time.Millisecond)

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("service did not shut down")
		}
	})

	return &fixture{service: svc, broker: broker, log: log, clock: clock, cancel: cancel, done: done}
}

func TestServicePublishesInitialSnapshot(t *testing.T) {
	f := startService(t, testParams)

	readings, ok := f.service.Readings()
	require.True(t, ok)
	require.Equal(t, int64(0), readings.TotalOnCount)
	require.True(t, readings.Available)

	require.Eventually(t, func() bool { return len(f.broker.Published()) >= 1 },
		5*time.Second, time.Millisecond)
}

func TestServiceProcessesNotifications(t *testing.T) {
	f := startService(t, testParams)

	f.broker.Notify(gauge.Notification{State: "off", Time: f.clock.Now()})
	f.broker.Notify(gauge.Notification{State: "on", Time: f.clock.Now().Add(time.Minute)})

	require.Eventually(t, func() bool {
		readings, ok := f.service.Readings()
		return ok && readings.TotalOnCount == 1
	}, 5*time.Second, time.Millisecond)

	// Both raw states were appended, including the seeding one.
	require.Eventually(t, func() bool { return f.log.stateCount() == 2 },
		5*time.Second, time.Millisecond)

	// The tip snapshot was persisted as readings rows.
	totalOn := testParams.ReadingEntityID(gauge.MetricTotalOnCount)
	recs := f.log.readingsFor(totalOn)
	require.NotEmpty(t, recs)
	require.Equal(t, int64(1), recs[len(recs)-1].Value.IntPart())
}

func TestServiceDuplicateStateDoesNotPublish(t *testing.T) {
	f := startService(t, testParams)

	f.broker.Notify(gauge.Notification{State: "on", Time: f.clock.Now()})
	f.broker.Notify(gauge.Notification{State: "on", Time: f.clock.Now().Add(time.Minute)})

	// Raw states still land in the log even when no reading changes.
	require.Eventually(t, func() bool { return f.log.stateCount() == 2 },
		5*time.Second, time.Millisecond)

	readings, ok := f.service.Readings()
	require.True(t, ok)
	require.Equal(t, int64(0), readings.TotalOnCount)
	require.Len(t, f.broker.Published(), 1, "only the startup snapshot goes out")
}

func TestServiceUnavailabilityPublishes(t *testing.T) {
	f := startService(t, testParams)

	f.broker.Notify(gauge.Notification{State: "unavailable", Time: f.clock.Now()})

	require.Eventually(t, func() bool {
		readings, ok := f.service.Readings()
		return ok && !readings.Available
	}, 5*time.Second, time.Millisecond)
}

func TestServiceReadyBeforeRun(t *testing.T) {
	svc := New(Options{}, zerolog.Nop())
	require.Error(t, svc.Ready())
	_, ok := svc.Readings()
	require.False(t, ok)
}

func TestReadingRecordsIncludeRateOnlyWhenKnown(t *testing.T) {
	at := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

	unknown := readingRecords(testParams, gauge.Readings{At: at})
	require.Len(t, unknown, 8)

	known := readingRecords(testParams, gauge.Readings{At: at, RateKnown: true, RateMMPerHour: 1.5})
	require.Len(t, known, 9)
	last := known[len(known)-1]
	require.Equal(t, testParams.ReadingEntityID(gauge.MetricRate), last.EntityID)
	require.Equal(t, "1.5", last.Value.String())
}

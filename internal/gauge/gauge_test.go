package gauge

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestGauge(t *testing.T, params Params) (*Gauge, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC))
	return New(params, time.UTC, clock, zerolog.Nop()), clock
}

func TestGaugeAlternatingNotifications(t *testing.T) {
	g, clock := newTestGauge(t, testParams)

	states := []string{"off", "on", "off", "on", "off", "on", "off"}
	for _, state := range states {
		g.Handle(Notification{State: state, Time: clock.Now()})
		clock.Advance(time.Minute)
	}

	// First notification seeds; the six that follow all change direction.
	r := g.Readings()
	require.Equal(t, int64(3), r.TotalOnCount)
	require.Equal(t, int64(3), r.TotalOffCount)
	require.Equal(t, int64(6), r.TotalTilt)
}

func TestGaugeSameStateWithoutRecovery(t *testing.T) {
	g, clock := newTestGauge(t, testParams)

	g.Handle(Notification{State: "on", Time: clock.Now()})
	clock.Advance(time.Minute)
	changed := g.Handle(Notification{State: "on", Time: clock.Now()})

	require.False(t, changed)
	r := g.Readings()
	require.Equal(t, int64(0), r.TotalOnCount)
	require.Equal(t, int64(0), r.TotalOffCount)
}

func TestGaugeSameStateWithRecovery(t *testing.T) {
	params := testParams
	params.MissedFlipRecovery = true
	g, clock := newTestGauge(t, params)

	g.Handle(Notification{State: "on", Time: clock.Now()})
	clock.Advance(time.Minute)
	changed := g.Handle(Notification{State: "on", Time: clock.Now()})

	require.True(t, changed)
	r := g.Readings()
	require.Equal(t, int64(1), r.TotalOnCount)
	require.Equal(t, int64(1), r.TotalOffCount)
	require.Equal(t, int64(2), r.TotalTilt)
}

func TestGaugeUnavailabilityFreezesCounters(t *testing.T) {
	g, clock := newTestGauge(t, testParams)

	g.Handle(Notification{State: "off", Time: clock.Now()})
	clock.Advance(time.Minute)
	g.Handle(Notification{State: "on", Time: clock.Now()})
	require.Equal(t, int64(1), g.Readings().TotalOnCount)

	clock.Advance(time.Minute)
	changed := g.Handle(Notification{State: "unavailable", Time: clock.Now()})
	require.True(t, changed)
	require.False(t, g.Available())

	r := g.Readings()
	require.False(t, r.Available)
	require.Equal(t, int64(1), r.TotalOnCount, "counters must freeze, not reset")

	// Reappearing seeds the baseline; only the following transition counts.
	clock.Advance(time.Minute)
	g.Handle(Notification{State: "off", Time: clock.Now()})
	require.True(t, g.Available())
	require.Equal(t, int64(1), g.Readings().TotalOffCount+g.Readings().TotalOnCount)

	clock.Advance(time.Minute)
	g.Handle(Notification{State: "on", Time: clock.Now()})
	require.Equal(t, int64(2), g.Readings().TotalOnCount)
}

func TestGaugeReadingsRollsOverOnRead(t *testing.T) {
	g, clock := newTestGauge(t, testParams)

	g.Handle(Notification{State: "off", Time: clock.Now()})
	clock.Advance(time.Minute)
	g.Handle(Notification{State: "on", Time: clock.Now()})
	require.Equal(t, int64(1), g.Readings().DailyOnCount)

	// A quiet day passes; the read itself must reset the dailies.
	clock.Advance(24 * time.Hour)
	r := g.Readings()
	require.Equal(t, int64(0), r.DailyOnCount)
	require.Equal(t, int64(1), r.TotalOnCount)
}

func TestGaugeHousekeepingPrunesWindow(t *testing.T) {
	g, clock := newTestGauge(t, testParams)

	g.Handle(Notification{State: "off", Time: clock.Now()})
	clock.Advance(time.Minute)
	g.Handle(Notification{State: "on", Time: clock.Now()})
	require.Equal(t, 1, g.WindowTips())

	clock.Advance(2 * time.Hour)
	changed := g.Housekeeping()
	require.True(t, changed)
	require.Equal(t, 0, g.WindowTips())
}

func TestGaugeSeed(t *testing.T) {
	g, clock := newTestGauge(t, testParams)

	g.Seed(CounterState{
		TotalOn:   42,
		TotalOff:  40,
		LastReset: DateOf(clock.Now()),
	}, []TipEvent{{Time: clock.Now().Add(-10 * time.Minute), Direction: DirectionOn}})

	r := g.Readings()
	require.Equal(t, int64(42), r.TotalOnCount)
	require.Equal(t, int64(0), r.DailyOnCount)
	require.Equal(t, 1, g.WindowTips())
	require.True(t, r.RateKnown)
}

func TestParamsSlugAndEntityIDs(t *testing.T) {
	params := Params{SensorName: "Garden Rainfall"}
	require.Equal(t, "garden_rainfall", params.Slug())
	require.Equal(t, "sensor.garden_rainfall_total_on_count", params.ReadingEntityID(MetricTotalOnCount))

	require.Equal(t, "rainsensor", Params{SensorName: "  "}.Slug())
}

package transport

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmatscheko/homeassistant-rainsensor/internal/gauge"
)

func TestStateTopic(t *testing.T) {
	require.Equal(t, "homeassistant/binary_sensor/rain_tip/state",
		StateTopic("homeassistant", "binary_sensor.rain_tip"))
	require.Equal(t, "ha/statestream/binary_sensor/rain_tip/state",
		StateTopic("ha/statestream/", "binary_sensor.rain_tip"))
	require.Equal(t, "homeassistant/binary_sensor/rain_tip/state",
		StateTopic("homeassistant", "rain_tip"))
}

func TestReadingsTopic(t *testing.T) {
	require.Equal(t, "rainsensor/garden_rainfall/state",
		ReadingsTopic("rainsensor", "garden_rainfall"))
}

func TestFormatReadingsOmitsUnknownRate(t *testing.T) {
	readings := gauge.Readings{
		At:           time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC),
		Available:    true,
		TotalOnCount: 5,
		DailyRainMM:  0.03,
	}

	data, err := FormatReadings(readings)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "2026-03-14T08:00:00Z", decoded["timestamp"])
	require.Equal(t, float64(5), decoded["total_on_count"])
	require.NotContains(t, decoded, "rate_mm_per_hour")
}

func TestFormatReadingsIncludesKnownRate(t *testing.T) {
	readings := gauge.Readings{
		At:            time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC),
		Available:     true,
		RateMMPerHour: 1.25,
		RateKnown:     true,
	}

	data, err := FormatReadings(readings)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, 1.25, decoded["rate_mm_per_hour"])
}

func TestFakeBrokerDeliversNotifications(t *testing.T) {
	broker := NewFakeBroker()

	var got []gauge.Notification
	require.NoError(t, broker.Subscribe(func(note gauge.Notification) {
		got = append(got, note)
	}))

	at := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	broker.Notify(gauge.Notification{State: "on", Time: at})

	require.Len(t, got, 1)
	require.Equal(t, "on", got[0].State)
	require.Equal(t, at, got[0].Time)
}

func TestFakeBrokerRecordsPublishes(t *testing.T) {
	broker := NewFakeBroker()

	require.NoError(t, broker.PublishReadings(gauge.Readings{TotalOnCount: 1}))
	require.NoError(t, broker.PublishReadings(gauge.Readings{TotalOnCount: 2}))

	published := broker.Published()
	require.Len(t, published, 2)
	require.Equal(t, int64(2), published[1].TotalOnCount)

	require.False(t, broker.Closed())
	require.NoError(t, broker.Close())
	require.True(t, broker.Closed())
}

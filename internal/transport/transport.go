// Package transport moves sensor states and computed readings over MQTT.
// Inbound, it subscribes to the host's statestream topic for the monitored
// binary sensor; outbound, it republishes the gauge readings.
package transport

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmatscheko/homeassistant-rainsensor/internal/gauge"
)

// Subscriber delivers raw sensor notifications from the broker.
type Subscriber interface {
	// Subscribe registers the handler for the monitored entity's state
	// topic. The handler runs on the broker client's callback goroutine;
	// it must only hand the notification off, never process it.
	Subscribe(handler func(gauge.Notification)) error
	Close() error
}

// Publisher pushes computed readings to the broker.
type Publisher interface {
	// PublishReadings sends one readings snapshot. Failures are returned,
	// not fatal; the caller logs and moves on.
	PublishReadings(readings gauge.Readings) error
	Close() error
}

// StateTopic builds the statestream topic for a binary sensor entity id,
// e.g. binary_sensor.rain_tip -> homeassistant/binary_sensor/rain_tip/state.
func StateTopic(base, entityID string) string {
	object := entityID
	if i := strings.IndexByte(entityID, '.'); i >= 0 {
		object = entityID[i+1:]
	}
	return fmt.Sprintf("%s/binary_sensor/%s/state", strings.TrimRight(base, "/"), object)
}

// ReadingsTopic builds the topic a gauge's readings are published on.
func ReadingsTopic(base, slug string) string {
	return fmt.Sprintf("%s/%s/state", strings.TrimRight(base, "/"), slug)
}

// readingsPayload is the JSON document published per snapshot. The rate is
// omitted entirely while it is unknown.
type readingsPayload struct {
	Timestamp     string   `json:"timestamp"`
	Available     bool     `json:"available"`
	DailyOnCount  int64    `json:"daily_on_count"`
	DailyOffCount int64    `json:"daily_off_count"`
	TotalOnCount  int64    `json:"total_on_count"`
	TotalOffCount int64    `json:"total_off_count"`
	DailyTilt     int64    `json:"daily_tilt_count"`
	TotalTilt     int64    `json:"total_tilt_count"`
	DailyRainMM   float64  `json:"daily_rainfall_mm"`
	TotalRainMM   float64  `json:"total_rainfall_mm"`
	RateMMPerHour *float64 `json:"rate_mm_per_hour,omitempty"`
}

// FormatReadings creates the JSON payload for a readings snapshot.
func FormatReadings(readings gauge.Readings) ([]byte, error) {
	payload := readingsPayload{
		Timestamp:     readings.At.UTC().Format(time.RFC3339),
		Available:     readings.Available,
		DailyOnCount:  readings.DailyOnCount,
		DailyOffCount: readings.DailyOffCount,
		TotalOnCount:  readings.TotalOnCount,
		TotalOffCount: readings.TotalOffCount,
		DailyTilt:     readings.DailyTilt,
		TotalTilt:     readings.TotalTilt,
		DailyRainMM:   readings.DailyRainMM,
		TotalRainMM:   readings.TotalRainMM,
	}
	if readings.RateKnown {
		rate := readings.RateMMPerHour
		payload.RateMMPerHour = &rate
	}
	return json.Marshal(payload)
}

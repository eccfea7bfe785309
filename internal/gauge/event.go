package gauge

import "time"

// Direction identifies which way the tipping bucket flipped.
type Direction string

const (
	DirectionOn  Direction = "on"
	DirectionOff Direction = "off"
)

// Opposite returns the other flip direction.
func (d Direction) Opposite() Direction {
	if d == DirectionOn {
		return DirectionOff
	}
	return DirectionOn
}

// ParseDirection maps a raw sensor state string onto a Direction.
// States other than "on"/"off" (unknown, unavailable, garbage) are rejected.
func ParseDirection(state string) (Direction, bool) {
	switch state {
	case "on":
		return DirectionOn, true
	case "off":
		return DirectionOff, true
	default:
		return "", false
	}
}

// TipEvent is one bucket dump, immutable once recorded.
type TipEvent struct {
	Time      time.Time
	Direction Direction
}

// Notification is a raw state-change report from the monitored binary sensor.
// State carries the sensor's verbatim payload; it is not validated here.
type Notification struct {
	State string
	Time  time.Time
}

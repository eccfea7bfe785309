package gauge

import (
	"math"
	"time"
)

// Params describe one configured gauge. Immutable for the lifetime of the
// service instance; an options change is a restart.
type Params struct {
	EntityID           string
	SensorName         string
	VolumePerOnML      float64
	VolumePerOffML     float64
	FunnelDiameterMM   float64
	MissedFlipRecovery bool
}

// TipVolume returns the water volume in ml attributed to one tip.
func (p Params) TipVolume(dir Direction) float64 {
	if dir == DirectionOn {
		return p.VolumePerOnML
	}
	return p.VolumePerOffML
}

// DepthFactor converts a collected volume in ml into rain depth in mm over
// the funnel opening. A missing or zero diameter yields factor 0 so that
// depth reads as zero instead of dividing by zero.
func (p Params) DepthFactor() float64 {
	if p.FunnelDiameterMM <= 0 {
		return 0
	}
	radius := p.FunnelDiameterMM / 2
	return 1 / (math.Pi * radius * radius)
}

// CounterState holds the daily and total tip counters.
// Totals never decrease; dailies reset exactly once per local calendar day.
type CounterState struct {
	DailyOn  int64
	DailyOff int64
	TotalOn  int64
	TotalOff int64

	// LastReset is the local calendar day the daily counters belong to.
	LastReset Date
}

// Date is a calendar day in the gauge's location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf extracts the calendar day of t in its own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// After reports whether d is a later calendar day than other.
func (d Date) After(other Date) bool {
	if d.Year != other.Year {
		return d.Year > other.Year
	}
	if d.Month != other.Month {
		return d.Month > other.Month
	}
	return d.Day > other.Day
}

// Accumulator maintains the counters and derives rainfall depth.
type Accumulator struct {
	params Params
	state  CounterState
	factor float64
	loc    *time.Location
}

// NewAccumulator constructs an Accumulator starting from zeroed counters
// dated at start. All day boundary arithmetic happens in loc.
func NewAccumulator(params Params, loc *time.Location, start time.Time) *Accumulator {
	if loc == nil {
		loc = time.Local
	}
	return &Accumulator{
		params: params,
		factor: params.DepthFactor(),
		loc:    loc,
		state:  CounterState{LastReset: DateOf(start.In(loc))},
	}
}

// Record applies one tip event: rolls the day over if the local date has
// advanced, then increments the total and daily counter for the direction.
func (a *Accumulator) Record(ev TipEvent) {
	a.RolloverIfNeeded(ev.Time)
	switch ev.Direction {
	case DirectionOn:
		a.state.DailyOn++
		a.state.TotalOn++
	case DirectionOff:
		a.state.DailyOff++
		a.state.TotalOff++
	}
}

// RolloverIfNeeded zeroes the daily counters when now's local date is past
// the last reset date. Multiple midnights crossed while offline collapse
// into a single reset; only the date matters. Returns true if a reset ran.
func (a *Accumulator) RolloverIfNeeded(now time.Time) bool {
	today := DateOf(now.In(a.loc))
	if !today.After(a.state.LastReset) {
		return false
	}
	a.state.DailyOn = 0
	a.state.DailyOff = 0
	a.state.LastReset = today
	return true
}

// Seed overwrites the counters from reconciled state.
func (a *Accumulator) Seed(state CounterState) {
	a.state = state
}

// State returns a copy of the current counters.
func (a *Accumulator) State() CounterState {
	return a.state
}

// DailyRainfallMM derives today's rain depth from the daily counters.
func (a *Accumulator) DailyRainfallMM() float64 {
	return a.depthMM(a.state.DailyOn, a.state.DailyOff)
}

// TotalRainfallMM derives the cumulative rain depth from the total counters.
func (a *Accumulator) TotalRainfallMM() float64 {
	return a.depthMM(a.state.TotalOn, a.state.TotalOff)
}

// DailyTiltCount is the sum of today's on and off tips.
func (a *Accumulator) DailyTiltCount() int64 {
	return a.state.DailyOn + a.state.DailyOff
}

// TotalTiltCount is the sum of all on and off tips.
func (a *Accumulator) TotalTiltCount() int64 {
	return a.state.TotalOn + a.state.TotalOff
}

func (a *Accumulator) depthMM(on, off int64) float64 {
	volume := float64(on)*a.params.VolumePerOnML + float64(off)*a.params.VolumePerOffML
	if volume <= 0 {
		return 0
	}
	return volume * a.factor
}

package app

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/jonboulle/clockwork"

	"github.com/dmatscheko/homeassistant-rainsensor/internal/gauge"
)

// Simulate feeds a synthetic notification sequence through a fresh gauge
// and prints the resulting readings. No broker or database is touched; it
// exists to sanity-check volume and funnel configuration.
func (a *App) Simulate(opts SimulateOptions) error {
	if opts.Tips <= 0 {
		return errors.New("--tips must be greater than zero")
	}
	if opts.Interval <= 0 {
		return errors.New("--interval must be greater than zero")
	}

	loc, err := a.Config.Location()
	if err != nil {
		return err
	}

	clock := clockwork.NewFakeClock()
	g := gauge.New(a.GaugeParams(), loc, clock, a.Logger)

	// Seed the baseline, then flip for every simulated tip. With
	// --same-state the same state is repeated instead, exercising the
	// missed-flip recovery path.
	state := gauge.DirectionOff
	g.Handle(gauge.Notification{State: string(state), Time: clock.Now()})
	for i := 0; i < opts.Tips; i++ {
		clock.Advance(opts.Interval)
		if !opts.SameState {
			state = state.Opposite()
		}
		g.Handle(gauge.Notification{State: string(state), Time: clock.Now()})
	}

	readings := g.Readings()

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Reading\tValue")
	fmt.Fprintf(writer, "daily on count\t%d\n", readings.DailyOnCount)
	fmt.Fprintf(writer, "daily off count\t%d\n", readings.DailyOffCount)
	fmt.Fprintf(writer, "total on count\t%d\n", readings.TotalOnCount)
	fmt.Fprintf(writer, "total off count\t%d\n", readings.TotalOffCount)
	fmt.Fprintf(writer, "daily tilt count\t%d\n", readings.DailyTilt)
	fmt.Fprintf(writer, "total tilt count\t%d\n", readings.TotalTilt)
	fmt.Fprintf(writer, "daily rainfall (mm)\t%.5f\n", readings.DailyRainMM)
	fmt.Fprintf(writer, "total rainfall (mm)\t%.5f\n", readings.TotalRainMM)
	if readings.RateKnown {
		fmt.Fprintf(writer, "rainfall rate (mm/h)\t%.5f\n", readings.RateMMPerHour)
	} else {
		fmt.Fprintln(writer, "rainfall rate (mm/h)\tunknown")
	}
	return writer.Flush()
}

package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/dmatscheko/homeassistant-rainsensor/internal/app"
)

var (
	simulateTips      int
	simulateInterval  time.Duration
	simulateSameState bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Feed synthetic tips through the gauge and print the readings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Simulate(app.SimulateOptions{
			Tips:      simulateTips,
			Interval:  simulateInterval,
			SameState: simulateSameState,
		})
	},
}

func init() {
	simulateCmd.Flags().IntVar(&simulateTips, "tips", 10, "Number of synthetic notifications to feed")
	simulateCmd.Flags().DurationVar(&simulateInterval, "interval", time.Minute, "Spacing between synthetic notifications")
	simulateCmd.Flags().BoolVar(&simulateSameState, "same-state", false, "Repeat the same state instead of alternating (exercises missed-flip recovery)")
}

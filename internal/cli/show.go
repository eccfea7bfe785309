package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmatscheko/homeassistant-rainsensor/internal/app"
	"github.com/dmatscheko/homeassistant-rainsensor/internal/gauge"
)

var (
	showLimit  int
	showMetric string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent persisted readings",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:  showLimit,
			Metric: showMetric,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of readings to display")
	showCmd.Flags().StringVar(&showMetric, "metric", gauge.MetricDailyRain, "Metric to display (e.g. daily_rainfall, total_on_count)")
}

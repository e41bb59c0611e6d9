package cli

import (
	"time"

	"github.com/spf13/cobra"
)

func addScreenCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newScreenCmd(app))
}

func newScreenCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "screen",
		Short: "Rank instruments that pulled back from their 52-week high",
		Long: `Screen aggregates the lookback window of every instrument and keeps those whose
price sits between the recovery and drop thresholds of the 52-week high, deepest
pullback first.`,
		Example: `  equitywatch screen
  equitywatch screen --policy strict --record`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if p, _ := cmd.Flags().GetString("policy"); p != "" {
				app.Config.Screening.Policy = p
			}
			scr, err := app.screener()
			if err != nil {
				return err
			}
			candidates, err := scr.Screen(cmd.Context())
			if err != nil {
				return err
			}
			if record, _ := cmd.Flags().GetBool("record"); record {
				if err := app.Recorder.RecordScreen(cmd.Context(), scr.Policy.Name, time.Now(), candidates); err != nil {
					return err
				}
			}

			if output.IsJSON() {
				return output.JSON(candidates)
			}
			if len(candidates) == 0 {
				output.Dim("No instruments match the %s policy.", scr.Policy.Name)
				return nil
			}
			output.Printf("%-4s %-8s %-24s %10s %10s %8s\n", "#", "ID", "Name", "Price", "52w High", "Below")
			for i, c := range candidates {
				output.Printf("%-4d %-8s %-24s %10.2f %10.2f %7.1f%%\n",
					i+1, c.InstrumentID, truncate(c.Name, 24), c.CurrentPrice, c.YearHigh, c.PercentBelowHigh)
			}
			return nil
		},
	}
	cmd.Flags().String("policy", "", "screening policy (simple or strict)")
	cmd.Flags().Bool("record", false, "store the ranked result in the run history")
	return cmd
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-1]) + "…"
}

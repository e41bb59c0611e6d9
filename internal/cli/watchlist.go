package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func addWatchlistCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newWatchlistCmd(app))
}

func newWatchlistCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "watchlist",
		Aliases: []string{"wl"},
		Short:   "Maintain per-owner watchlists",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "reconcile <owner>",
		Short: "Screen and add or refresh the owner's entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			m, err := app.watchlist()
			if err != nil {
				return err
			}
			res, err := m.Reconcile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(res)
			}
			output.Success("%d candidates: %d added, %d refreshed", res.Candidates, res.Added, res.Refreshed)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Set every entry's current price to the latest close and recompute changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			m, err := app.watchlist()
			if err != nil {
				return err
			}
			prices, err := m.RefreshPrices(cmd.Context())
			if err != nil {
				return err
			}
			changes, err := m.RecomputeChanges(cmd.Context())
			if err != nil {
				return err
			}
			return output.Result(map[string]int{"prices": prices, "changes": changes},
				fmt.Sprintf("Refreshed %d prices, recomputed %d changes", prices, changes))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Remove entries older than the configured maximum age",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			m, err := app.watchlist()
			if err != nil {
				return err
			}
			removed, err := m.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			return output.Result(map[string]int64{"removed": removed},
				fmt.Sprintf("Removed %d expired entries", removed))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <owner>",
		Short: "List the owner's entries, most recently refreshed first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			m, err := app.watchlist()
			if err != nil {
				return err
			}
			entries, err := m.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(entries)
			}
			if len(entries) == 0 {
				output.Dim("Watchlist %s is empty.", args[0])
				return nil
			}
			output.Printf("%-8s %10s %10s %9s %8s  %-10s %s\n", "ID", "Added @", "Current", "Change", "Below", "Since", "Sector")
			for _, e := range entries {
				output.Printf("%-8s %10.2f %10.2f %+8.2f%% %7.1f%%  %-10s %s\n",
					e.InstrumentID, e.PriceWhenAdded, e.CurrentPrice, e.PriceChangePct,
					e.PercentBelowHigh, e.FirstAdded.Format("2006-01-02"), e.Sector)
			}
			return nil
		},
	})

	return cmd
}

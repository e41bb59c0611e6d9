package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"EquityWatch/internal/calculator"
	"EquityWatch/internal/collector"
	"EquityWatch/internal/model"
	"EquityWatch/internal/store"
)

// addDataCommands adds universe and price history commands.
func addDataCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newSyncCmd(app))
	rootCmd.AddCommand(newBarsCmd(app))
	rootCmd.AddCommand(newInstrumentCmd(app))
	rootCmd.AddCommand(newOwnerCmd(app))
	rootCmd.AddCommand(newIndicatorsCmd(app))
	rootCmd.AddCommand(newPerformanceCmd(app))
}

func newSyncCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [instrument...]",
		Short: "Fetch daily bars for the universe (or the given instruments)",
		Example: `  equitywatch sync
  equitywatch sync AAPL MSFT`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			col, err := app.collector()
			if err != nil {
				return err
			}
			var instruments []model.Instrument
			if len(args) > 0 {
				for _, a := range args {
					instruments = append(instruments, model.Instrument{ID: strings.ToUpper(a)})
				}
			} else if instruments, err = app.Store.Instruments(cmd.Context()); err != nil {
				return err
			}

			res, syncErr := col.Sync(cmd.Context(), instruments)
			if output.IsJSON() {
				if err := output.JSON(res); err != nil {
					return err
				}
				return syncErr
			}
			output.Success("Synced %d instruments (%d bars) from %s", res.Instruments, res.Bars, col.Fetcher.Name())
			if syncErr != nil {
				output.Error("Failed: %s", strings.Join(res.Failed, ", "))
			}
			return syncErr
		},
	}
}

func newBarsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bars",
		Short: "Price history maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <instrument> <file.csv>",
		Short: "Import daily bars from a CSV file (date,open,high,low,close,volume)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			id := strings.ToUpper(args[0])
			bars, err := collector.ParseBarsCSV(f, id)
			if err != nil {
				return err
			}
			if err := app.Store.SaveBars(cmd.Context(), bars); err != nil {
				return err
			}
			output.Success("Imported %d bars for %s", len(bars), id)
			return nil
		},
	})
	return cmd
}

func newInstrumentCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "instrument",
		Aliases: []string{"instruments"},
		Short:   "Manage the instrument universe",
	}

	add := &cobra.Command{
		Use:   "add <id>",
		Short: "Add or update an instrument",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			sector, _ := cmd.Flags().GetString("sector")
			industry, _ := cmd.Flags().GetString("industry")
			inst := model.Instrument{ID: strings.ToUpper(args[0]), Name: name, Sector: sector, Industry: industry}
			if err := app.Store.SaveInstrument(cmd.Context(), inst); err != nil {
				return err
			}
			NewOutput(cmd).Success("Saved %s", inst.ID)
			return nil
		},
	}
	add.Flags().String("name", "", "display name")
	add.Flags().String("sector", "", "sector")
	add.Flags().String("industry", "", "industry")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the instrument universe",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			instruments, err := app.Store.Instruments(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(instruments)
			}
			for _, i := range instruments {
				output.Printf("%-8s %-30s %s\n", i.ID, i.Name, i.Sector)
			}
			return nil
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func newOwnerCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "owner",
		Short: "Manage watchlist owners",
	}
	add := &cobra.Command{
		Use:   "add <id>",
		Short: "Add an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if err := app.Store.AddOwner(cmd.Context(), model.Owner{ID: args[0], Name: name}); err != nil {
				return err
			}
			NewOutput(cmd).Success("Saved owner %s", args[0])
			return nil
		},
	}
	add.Flags().String("name", "", "display name")
	cmd.AddCommand(add)
	return cmd
}

func newIndicatorsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indicators <instrument>",
		Short: "Show the latest SMA, Bollinger, RSI and 52-week values",
		Example: `  equitywatch indicators AAPL
  equitywatch indicators AAPL --series --limit 30 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			id := strings.ToUpper(args[0])
			bars, err := store.History(cmd.Context(), app.Store, app.Store, id)
			if err != nil {
				return err
			}
			if series, _ := cmd.Flags().GetBool("series"); series {
				limit, _ := cmd.Flags().GetInt("limit")
				return printSeries(output, calculator.Series(id, bars, limit))
			}

			snap, err := calculator.Snapshot(id, bars)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(snap)
			}
			output.Printf("%s  %s  close %.2f\n", snap.InstrumentID, snap.Date.Format("2006-01-02"), snap.Close)
			output.Printf("SMA20 %s  SMA50 %s  SMA200 %s\n", optional(snap.SMA20), optional(snap.SMA50), optional(snap.SMA200))
			output.Printf("Bands %s / %s  RSI %s\n", optional(snap.LowerBand), optional(snap.UpperBand), optional(snap.RSI))
			output.Printf("52w %.2f - %.2f  position %.0f%%\n", snap.Low52w, snap.High52w, snap.Position52w*100)
			return nil
		},
	}
	cmd.Flags().Bool("series", false, "print the recent history of every indicator")
	cmd.Flags().Int("limit", calculator.DefaultSeriesLimit, "trailing points per series (0 for all)")
	return cmd
}

// printSeries renders one row per close date; indicators without a value on
// that date print n/a.
func printSeries(output *Output, s *model.IndicatorSeries) error {
	if output.IsJSON() {
		return output.JSON(s)
	}
	byDate := func(points []model.Point) map[time.Time]float64 {
		m := make(map[time.Time]float64, len(points))
		for _, p := range points {
			m[p.Date] = p.Value
		}
		return m
	}
	lookup := func(m map[time.Time]float64, d time.Time) *float64 {
		if v, ok := m[d]; ok {
			return &v
		}
		return nil
	}
	sma20, sma50, rsi, volAvg := byDate(s.SMA20), byDate(s.SMA50), byDate(s.RSI), byDate(s.VolumeSMA20)
	bands := make(map[time.Time]model.Band, len(s.Bands))
	for _, b := range s.Bands {
		bands[b.Date] = b
	}

	output.Printf("%-10s %10s %10s %10s %10s %10s %7s %14s\n", "Date", "Close", "SMA20", "SMA50", "Lower", "Upper", "RSI", "Vol SMA20")
	for _, c := range s.Close {
		var lower, upper *float64
		if b, ok := bands[c.Date]; ok {
			lower, upper = &b.Lower, &b.Upper
		}
		output.Printf("%-10s %10.2f %10s %10s %10s %10s %7s %14s\n", c.Date.Format("2006-01-02"), c.Value,
			optional(lookup(sma20, c.Date)), optional(lookup(sma50, c.Date)), optional(lower), optional(upper),
			optional(lookup(rsi, c.Date)), optional(lookup(volAvg, c.Date)))
	}
	return nil
}

func newPerformanceCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "performance <instrument>",
		Short: "Show trailing returns over standard horizons",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			id := strings.ToUpper(args[0])
			bars, err := store.History(cmd.Context(), app.Store, app.Store, id)
			if err != nil {
				return err
			}
			perf := calculator.CalculatePerformance(bars)
			if output.IsJSON() {
				return output.JSON(perf)
			}
			rows := []struct {
				label string
				value *float64
			}{
				{"5d", perf.Days5}, {"10d", perf.Days10}, {"1m", perf.Month1}, {"3m", perf.Months3},
				{"6m", perf.Months6}, {"YTD", perf.YTD}, {"1y", perf.Year1}, {"2y", perf.Years2},
				{"5y", perf.Years5}, {"10y", perf.Years10},
			}
			for _, r := range rows {
				output.Printf("%-4s %10s\n", r.label, optionalPct(r.value))
			}
			return nil
		},
	}
}

func optional(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}

func optionalPct(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.2f%%", *v)
}

package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"EquityWatch/internal/collector"
	apperrors "EquityWatch/internal/errors"
	"EquityWatch/internal/model"
)

func addPortfolioCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newPortfolioCmd(app))
	rootCmd.AddCommand(newLedgerCmd(app))
}

func newPortfolioCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Portfolio valuation",
	}
	value := &cobra.Command{
		Use:   "value <portfolio>",
		Short: "Value buy positions at the latest close",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			v, err := app.valuation().Value(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if record, _ := cmd.Flags().GetBool("record"); record {
				if err := app.Recorder.RecordValuation(cmd.Context(), v); err != nil {
					return err
				}
			}
			if output.IsJSON() {
				return output.JSON(v)
			}

			cur := app.Config.Currency
			output.Printf("Portfolio %s  %s\n\n", v.PortfolioID, v.AsOf.Format("2006-01-02"))
			output.Printf("%-8s %8s %14s %14s %14s %9s\n", "ID", "Qty", "Avg cost", "Price", "Value", "Gain")
			for _, p := range v.Positions {
				output.Printf("%-8s %8d %14s %14s %14s %+8.2f%%\n",
					p.InstrumentID, p.Quantity, display(p.AverageCost, cur), display(p.CurrentPrice, cur),
					display(p.MarketValue, cur), p.GainLossPct.InexactFloat64())
			}
			output.Println()
			output.Printf("Value %s  Cost %s  Gain %+.2f%%\n",
				display(v.TotalValue, cur), display(v.TotalCost, cur), v.TotalGainLossPct.InexactFloat64())
			if len(v.Unpriced) > 0 {
				output.Error("No price for: %s", strings.Join(v.Unpriced, ", "))
			}
			return nil
		},
	}
	value.Flags().Bool("record", false, "store a valuation snapshot")
	cmd.AddCommand(value)
	return cmd
}

func display(d decimal.Decimal, currency string) string {
	if currency == "" {
		currency = money.USD
	}
	return money.NewFromFloat(d.InexactFloat64(), currency).Display()
}

func newLedgerCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Record portfolio transactions",
	}

	add := &cobra.Command{
		Use:   "add <portfolio> <buy|sell|dividend> <instrument> <quantity> <price>",
		Short: "Append a transaction",
		Example: `  equitywatch ledger add retirement buy ACME 10 100
  equitywatch ledger add retirement buy ACME 5 120 --date 2024-06-03`,
		Args: cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := parseLedgerArgs(args)
			if err != nil {
				return err
			}
			if date, _ := cmd.Flags().GetString("date"); date != "" {
				ts, err := time.Parse("2006-01-02", date)
				if err != nil {
					return apperrors.NewInputError("date", date, "expected YYYY-MM-DD")
				}
				entry.Timestamp = ts
			}
			if err := app.Store.Append(cmd.Context(), entry); err != nil {
				return err
			}
			NewOutput(cmd).Success("Recorded %s %d %s @ %s in %s", entry.Side, entry.Quantity, entry.InstrumentID, entry.Price, entry.PortfolioID)
			return nil
		},
	}
	add.Flags().String("date", "", "trade date (default: now)")

	imp := &cobra.Command{
		Use:   "import <portfolio> <file.csv>",
		Short: "Append transactions from a CSV file (id,portfolio,instrument,side,quantity,price,date)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			entries, err := collector.ParseLedgerCSV(f, args[0])
			if err != nil {
				return err
			}
			for i, e := range entries {
				if err := app.Store.Append(cmd.Context(), e); err != nil {
					return fmt.Errorf("row %d: %w", i+1, err)
				}
			}
			NewOutput(cmd).Success("Imported %d transactions", len(entries))
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list <portfolio>",
		Short: "List a portfolio's transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			entries, err := app.Store.EntriesFor(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(entries)
			}
			for _, e := range entries {
				output.Printf("%s  %-8s %-8s %8d @ %s\n", e.Timestamp.Format("2006-01-02"), e.Side, e.InstrumentID, e.Quantity, e.Price)
			}
			return nil
		},
	}

	cmd.AddCommand(add, imp, list)
	return cmd
}

func parseLedgerArgs(args []string) (model.LedgerEntry, error) {
	side := model.Side(strings.ToLower(args[1]))
	if !side.Valid() {
		return model.LedgerEntry{}, apperrors.NewInputError("side", args[1], "expected buy, sell or dividend")
	}
	var qty int64
	if _, err := fmt.Sscan(args[3], &qty); err != nil {
		return model.LedgerEntry{}, apperrors.NewInputError("quantity", args[3], "not an integer")
	}
	price, err := decimal.NewFromString(args[4])
	if err != nil {
		return model.LedgerEntry{}, apperrors.NewInputError("price", args[4], "not a number")
	}
	return model.LedgerEntry{
		ID:           uuid.NewString(),
		PortfolioID:  args[0],
		InstrumentID: strings.ToUpper(args[2]),
		Side:         side,
		Quantity:     qty,
		Price:        price,
		Timestamp:    time.Now(),
	}, nil
}

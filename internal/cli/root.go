// Package cli provides the command-line interface for EquityWatch.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"EquityWatch/internal/collector"
	"EquityWatch/internal/config"
	"EquityWatch/internal/recorder"
	"EquityWatch/internal/screener"
	"EquityWatch/internal/store"
	"EquityWatch/internal/valuation"
	"EquityWatch/internal/watchlist"
)

// Version information
const Version = "0.3.0"

// App holds the application dependencies. The store and recorder are opened
// before any subcommand runs and closed after it.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Store    *store.SQLiteStore
	Recorder *recorder.SQLiteRecorder
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{Config: cfg, Logger: logger}

	rootCmd := &cobra.Command{
		Use:   "equitywatch",
		Short: "EquityWatch - pullback screening, watchlists and portfolio valuation",
		Long: `EquityWatch tracks daily price history for a universe of instruments,
screens it for pullbacks from the 52-week high, keeps per-owner watchlists of the
candidates and values portfolios from a transaction ledger.

Use 'equitywatch run' to start the scheduler and Telegram bot.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			if db, _ := cmd.Flags().GetString("db"); db != "" {
				app.Config.Database.SQLitePath = db
			}
			if cmd.Name() == "version" {
				return nil
			}
			return app.open()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("db", "", "SQLite database path (overrides database.sqlite_path)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	addRunCommands(rootCmd, app)
	addDataCommands(rootCmd, app)
	addScreenCommands(rootCmd, app)
	addWatchlistCommands(rootCmd, app)
	addPortfolioCommands(rootCmd, app)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			NewOutput(cmd).Printf("EquityWatch v%s\n", Version)
		},
	}
}

func (a *App) open() error {
	if a.Store != nil {
		return nil
	}
	path := a.Config.Database.SQLitePath
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	st, err := store.NewSQLiteStore(path, a.Logger)
	if err != nil {
		return err
	}
	rec, err := recorder.NewSQLiteRecorderWithDB(st.DB(), a.Logger)
	if err != nil {
		st.Close()
		return err
	}
	a.Store, a.Recorder = st, rec
	return nil
}

// Close releases the database.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	a.Recorder.Close()
	err := a.Store.Close()
	a.Store, a.Recorder = nil, nil
	return err
}

func (a *App) screener() (*screener.Screener, error) {
	policy, err := a.Config.ScreeningPolicy()
	if err != nil {
		return nil, err
	}
	return screener.New(a.Store, a.Store, policy, a.Logger)
}

func (a *App) watchlist() (*watchlist.Manager, error) {
	scr, err := a.screener()
	if err != nil {
		return nil, err
	}
	return watchlist.NewManager(scr, a.Store, a.Store, a.Recorder, a.Config.WatchlistConfig(), a.Logger), nil
}

func (a *App) collector() (*collector.Collector, error) {
	ds := a.Config.DataSource
	fetcher, err := collector.NewFetcher(ds.Provider, ds.BaseURL, a.Config.Proxy, ds.CSVDir)
	if err != nil {
		return nil, err
	}
	return collector.NewCollector(fetcher, a.Store, ds.HistoryDays, a.Logger), nil
}

func (a *App) valuation() *valuation.Service {
	return valuation.NewService(a.Store, a.Store)
}

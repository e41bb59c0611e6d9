package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"EquityWatch/internal/model"
	"EquityWatch/internal/notifier"
	"EquityWatch/internal/scheduler"
)

func addRunCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))
}

func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler and Telegram bot until interrupted",
		Long: `Run registers the sync, reconcile, refresh, sweep and valuation passes on their
cron schedules and, when Telegram is configured, answers bot commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sched, tn, err := app.buildScheduler(ctx)
			if err != nil {
				return err
			}
			cfg := app.Config.Schedule
			if err := sched.RegisterAll(scheduler.Schedule{
				Sync:      cfg.SyncCron,
				Reconcile: cfg.ReconcileCron,
				Refresh:   cfg.RefreshCron,
				Sweep:     cfg.SweepCron,
				Valuation: cfg.ValuationCron,
			}); err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()

			if tn != nil {
				go tn.StartPolling(ctx, sched.HandleCommand)
				app.Logger.Info().Msg("telegram polling started")
			}

			runNow, _ := cmd.Flags().GetBool("now")
			if runNow || os.Getenv("RUN_ON_START") == "true" {
				app.Logger.Info().Msg("running sync, reconcile and refresh now")
				go sched.RunAllNow()
			}

			app.Logger.Info().Msg("EquityWatch is running. Press Ctrl+C to stop.")
			<-ctx.Done()
			app.Logger.Info().Msg("shutdown signal received, stopping...")
			return nil
		},
	}
	cmd.Flags().Bool("now", false, "run sync, reconcile and refresh immediately")
	return cmd
}

// buildScheduler wires every service for the long running process. Configured
// owners are provisioned so reconcile can run for them.
func (a *App) buildScheduler(ctx context.Context) (*scheduler.Scheduler, *notifier.TelegramNotifier, error) {
	for _, id := range a.Config.Owners {
		if err := a.Store.AddOwner(ctx, model.Owner{ID: id}); err != nil {
			return nil, nil, fmt.Errorf("provision owner %s: %w", id, err)
		}
	}
	col, err := a.collector()
	if err != nil {
		return nil, nil, err
	}
	wl, err := a.watchlist()
	if err != nil {
		return nil, nil, err
	}
	scr, err := a.screener()
	if err != nil {
		return nil, nil, err
	}

	var (
		n  notifier.Notifier
		tn *notifier.TelegramNotifier
	)
	if a.Config.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(a.Config.Telegram.BotToken, a.Config.Telegram.ChatID, a.Config.Proxy, a.Logger)
		n = tn
	} else {
		a.Logger.Warn().Msg("telegram not configured, notifications go to the log")
		n = &notifier.LogNotifier{Log: a.Logger}
	}

	sched := scheduler.NewScheduler(ctx, scheduler.Deps{
		Collector:   col,
		Instruments: a.Store,
		Prices:      a.Store,
		Screener:    scr,
		Watchlist:   wl,
		Valuation:   a.valuation(),
		Notifier:    n,
		Recorder:    a.Recorder,
		Owners:      a.Config.Owners,
		Portfolios:  a.Config.Portfolios,
		Currency:    a.Config.Currency,
	}, a.Logger)
	return sched, tn, nil
}

func newHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent maintenance passes",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := app.Recorder.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(runs)
			}
			if len(runs) == 0 {
				output.Dim("No passes recorded yet.")
				return nil
			}
			output.Printf("%-20s %-10s %-10s %6s %8s %8s %8s  %s\n",
				"Time", "Pass", "Owner", "Added", "Updated", "Removed", "Took", "Error")
			for _, r := range runs {
				output.Printf("%-20s %-10s %-10s %6d %8d %8d %8s  %s\n",
					r.At.Local().Format("2006-01-02 15:04:05"), r.Pass, r.OwnerID,
					r.Added, r.Updated, r.Removed, r.Duration.Round(time.Millisecond), r.Err)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "number of passes to show")
	return cmd
}

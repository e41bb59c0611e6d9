package scheduler

import (
	"context"
	"fmt"
	stdlog "log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"EquityWatch/internal/calculator"
	"EquityWatch/internal/collector"
	apperrors "EquityWatch/internal/errors"
	"EquityWatch/internal/logging"
	"EquityWatch/internal/notifier"
	"EquityWatch/internal/recorder"
	"EquityWatch/internal/screener"
	"EquityWatch/internal/store"
	"EquityWatch/internal/valuation"
	"EquityWatch/internal/watchlist"
)

// Schedule holds the cron expressions (with seconds) of every pass.
type Schedule struct {
	Sync      string
	Reconcile string
	Refresh   string
	Sweep     string
	Valuation string
}

// Deps are the services the scheduled passes drive.
type Deps struct {
	Collector   *collector.Collector
	Instruments store.InstrumentStore
	Prices      store.PriceStore
	Screener    *screener.Screener
	Watchlist   *watchlist.Manager
	Valuation   *valuation.Service
	Notifier    notifier.Notifier
	Recorder    recorder.Recorder
	Owners      []string
	Portfolios  []string
	Currency    string
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Deps
	Cron *cron.Cron
	Ctx  context.Context

	log zerolog.Logger
}

// NewScheduler creates a new Scheduler. Overlapping runs of the same pass are skipped.
func NewScheduler(ctx context.Context, deps Deps, logger zerolog.Logger) *Scheduler {
	log := logging.WithComponent(logger, "scheduler")
	if deps.Recorder == nil {
		deps.Recorder = recorder.NewNoopRecorder()
	}
	if deps.Notifier == nil {
		deps.Notifier = &notifier.LogNotifier{Log: log}
	}
	cronLog := cron.PrintfLogger(stdlog.New(log, "", 0))
	return &Scheduler{
		Deps: deps,
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		Ctx: ctx,
		log: log,
	}
}

// RegisterAll registers every maintenance pass.
func (s *Scheduler) RegisterAll(sch Schedule) error {
	jobs := []struct {
		name string
		expr string
		fn   func()
	}{
		{"sync", sch.Sync, s.syncTask},
		{"reconcile", sch.Reconcile, s.reconcileTask},
		{"refresh", sch.Refresh, s.refreshTask},
		{"sweep", sch.Sweep, s.sweepTask},
		{"valuation", sch.Valuation, s.valuationTask},
	}
	for _, j := range jobs {
		if j.expr == "" {
			s.log.Info().Str("task", j.name).Msg("task disabled")
			continue
		}
		if _, err := s.Cron.AddFunc(j.expr, j.fn); err != nil {
			return fmt.Errorf("register %s task: %w", j.name, err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Int("tasks", len(s.Cron.Entries())).Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for running passes.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// RunAllNow executes sync, reconcile and refresh immediately (for RUN_ON_START).
func (s *Scheduler) RunAllNow() {
	s.syncTask()
	s.reconcileTask()
	s.refreshTask()
}

func (s *Scheduler) syncTask() {
	s.log.Info().Msg("running bar sync")
	start := time.Now()
	instruments, err := s.Instruments.Instruments(s.Ctx)
	if err != nil {
		s.fail(recorder.PassSync, start, err)
		return
	}
	res, err := s.Collector.Sync(s.Ctx, instruments)
	evt := &recorder.RunEvent{Pass: recorder.PassSync, Updated: res.Instruments, Duration: time.Since(start)}
	if err != nil {
		evt.Err = err.Error()
		s.log.Error().Err(err).Strs("failed", res.Failed).Msg("bar sync incomplete")
		s.trySend(notifier.FormatFailure("Bar sync", err))
	}
	s.recordRun(evt)
}

func (s *Scheduler) reconcileTask() {
	s.log.Info().Msg("running screen and reconcile")
	candidates, err := s.Screener.Screen(s.Ctx)
	if err != nil {
		s.fail(recorder.PassReconcile, time.Now(), err)
		return
	}
	if err := s.Recorder.RecordScreen(s.Ctx, s.Screener.Policy.Name, time.Now(), candidates); err != nil {
		s.log.Error().Err(err).Msg("record screen")
	}
	for _, owner := range s.Owners {
		res, err := s.Watchlist.ReconcileCandidates(s.Ctx, owner, candidates)
		if err != nil {
			s.log.Error().Err(err).Str("owner", owner).Msg("reconcile failed")
			s.trySend(notifier.FormatFailure("Reconcile "+owner, err))
			continue
		}
		if res.Added > 0 {
			s.trySend(notifier.FormatReconcile(owner, res))
		}
	}
}

func (s *Scheduler) refreshTask() {
	if _, err := s.Watchlist.RefreshPrices(s.Ctx); err != nil {
		s.log.Error().Err(err).Msg("refresh prices")
		return
	}
	if _, err := s.Watchlist.RecomputeChanges(s.Ctx); err != nil {
		s.log.Error().Err(err).Msg("recompute changes")
	}
}

func (s *Scheduler) sweepTask() {
	if _, err := s.Watchlist.Sweep(s.Ctx); err != nil {
		s.log.Error().Err(err).Msg("sweep")
	}
}

func (s *Scheduler) valuationTask() {
	for _, id := range s.Portfolios {
		start := time.Now()
		v, err := s.Valuation.Value(s.Ctx, id)
		if err != nil {
			s.fail(recorder.PassValuation, start, fmt.Errorf("portfolio %s: %w", id, err))
			continue
		}
		if err := s.Recorder.RecordValuation(s.Ctx, v); err != nil {
			s.log.Error().Err(err).Str("portfolio", id).Msg("record valuation")
		}
		s.recordRun(&recorder.RunEvent{Pass: recorder.PassValuation, Updated: len(v.Positions), Duration: time.Since(start)})
		s.trySend(notifier.FormatValuation(v, s.Currency))
	}
}

const helpText = `Commands:
/screen - run the screen now
/watchlist <owner> - show a watchlist
/portfolio <id> - value a portfolio
/indicators <instrument> - latest indicator snapshot
/performance <instrument> - trailing returns`

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	// strip "@botname" suffixes used in group chats
	cmd := strings.SplitN(fields[0], "@", 2)[0]
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch cmd {
	case "/screen":
		candidates, err := s.Screener.Screen(ctx)
		if err != nil {
			return replyError(err)
		}
		return notifier.FormatCandidates(candidates, s.Screener.Policy.Name, time.Now())
	case "/watchlist":
		if arg == "" && len(s.Owners) == 1 {
			arg = s.Owners[0]
		}
		entries, err := s.Watchlist.List(ctx, arg)
		if err != nil {
			return replyError(err)
		}
		return notifier.FormatWatchlist(arg, entries)
	case "/portfolio":
		if arg == "" && len(s.Portfolios) == 1 {
			arg = s.Portfolios[0]
		}
		v, err := s.Valuation.Value(ctx, arg)
		if err != nil {
			return replyError(err)
		}
		return notifier.FormatValuation(v, s.Currency)
	case "/indicators", "/performance":
		if arg == "" {
			return "Usage: " + cmd + " <instrument>"
		}
		bars, err := store.History(ctx, s.Instruments, s.Prices, strings.ToUpper(arg))
		if err != nil {
			return replyError(err)
		}
		if cmd == "/performance" {
			return notifier.FormatPerformance(strings.ToUpper(arg), calculator.CalculatePerformance(bars))
		}
		snap, err := calculator.Snapshot(strings.ToUpper(arg), bars)
		if err != nil {
			return replyError(err)
		}
		return notifier.FormatSnapshot(snap)
	default:
		return helpText
	}
}

func replyError(err error) string {
	switch {
	case apperrors.IsInput(err), apperrors.IsNotFound(err):
		return "⚠️ " + err.Error()
	default:
		return "❌ " + err.Error()
	}
}

func (s *Scheduler) fail(pass string, start time.Time, err error) {
	s.log.Error().Err(err).Str("pass", pass).Msg("pass failed")
	s.recordRun(&recorder.RunEvent{Pass: pass, Duration: time.Since(start), Err: err.Error()})
	s.trySend(notifier.FormatFailure(pass, err))
}

func (s *Scheduler) recordRun(evt *recorder.RunEvent) {
	if err := s.Recorder.RecordRun(s.Ctx, evt); err != nil {
		s.log.Error().Err(err).Str("pass", evt.Pass).Msg("record run")
	}
}

func (s *Scheduler) trySend(text string) {
	var err error
	if tn, ok := s.Notifier.(*notifier.TelegramNotifier); ok {
		err = tn.SendWithRetry(s.Ctx, text, 3)
	} else {
		err = s.Notifier.Send(s.Ctx, text)
	}
	if err != nil {
		s.log.Error().Err(err).Msg("send notification")
	}
}

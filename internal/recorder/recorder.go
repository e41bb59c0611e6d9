package recorder

import (
	"context"
	"time"

	"EquityWatch/internal/model"
)

// Pass names used in run events.
const (
	PassReconcile = "RECONCILE"
	PassRefresh   = "REFRESH"
	PassRecompute = "RECOMPUTE"
	PassSweep     = "SWEEP"
	PassSync      = "SYNC"
	PassValuation = "VALUATION"
)

// RunEvent records one execution of a lifecycle or maintenance pass.
type RunEvent struct {
	At       time.Time
	Pass     string // one of the Pass* constants
	OwnerID  string
	Added    int
	Updated  int
	Removed  int
	Duration time.Duration
	Err      string
}

// Recorder persists run history and valuation snapshots for later analysis.
type Recorder interface {
	RecordRun(ctx context.Context, evt *RunEvent) error
	RecordValuation(ctx context.Context, v *model.Valuation) error
	RecordScreen(ctx context.Context, policy string, at time.Time, candidates []model.Candidate) error
	RecentRuns(ctx context.Context, limit int) ([]RunEvent, error)
	Close() error
}

package recorder

import (
	"context"
	"time"

	"EquityWatch/internal/model"
)

// NoopRecorder is a no-op implementation used when history is disabled.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRun(_ context.Context, _ *RunEvent) error { return nil }

func (n *NoopRecorder) RecordValuation(_ context.Context, _ *model.Valuation) error { return nil }

func (n *NoopRecorder) RecordScreen(_ context.Context, _ string, _ time.Time, _ []model.Candidate) error {
	return nil
}

func (n *NoopRecorder) RecentRuns(_ context.Context, _ int) ([]RunEvent, error) { return nil, nil }

func (n *NoopRecorder) Close() error { return nil }

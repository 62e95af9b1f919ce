package ports

import (
	"context"

	"errbar/domain/core"
	"errbar/domain/stats"
)

// LedgerWriterPort provides append-only write access to run history.
// Runs are recorded once and never mutated.
type LedgerWriterPort interface {
	RecordRun(ctx context.Context, result *stats.RunResult) error
	RecordComparisons(ctx context.Context, runID core.RunID, set *stats.ComparisonSet) error
}

// LedgerReaderPort provides read-only access to recorded runs.
// Use this for history queries and UI/API access.
type LedgerReaderPort interface {
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
	RunResult(ctx context.Context, runID core.RunID) (*stats.RunResult, error)
	RunComparisons(ctx context.Context, runID core.RunID) (*stats.ComparisonSet, error)
}

// RunRecord is one row of recorded run history
type RunRecord struct {
	RunID                 core.RunID     `json:"run_id"`
	RecordedAt            core.Timestamp `json:"recorded_at"`
	Source                string         `json:"source"`
	TotalGroups           int            `json:"total_groups"`
	TotalIndicators       int            `json:"total_indicators"`
	SuccessfulConversions int            `json:"successful_conversions"`
	ConversionRate        float64        `json:"conversion_rate"`
	Comparisons           int            `json:"comparisons"`
}

// LedgerPort combines read and write access plus lifecycle
type LedgerPort interface {
	LedgerWriterPort
	LedgerReaderPort
	Init(ctx context.Context) error
	Close() error
}

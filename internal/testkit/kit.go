package testkit

import (
	"context"
	"fmt"
	"math"
	"sync"

	"errbar/domain/core"
	"errbar/domain/grid"
	"errbar/domain/stats"
	apperrors "errbar/internal/errors"
	"errbar/ports"
)

// Obs builds one complete observation column.
func Obs(indicator string, mean, errorBar float64, errorType string, sampleSize float64) grid.Observation {
	return grid.Observation{
		Indicator:  indicator,
		Mean:       mean,
		ErrorBar:   errorBar,
		ErrorType:  errorType,
		SampleSize: sampleSize,
	}
}

// MissingObs builds an observation with every cell absent.
func MissingObs(indicator string) grid.Observation {
	return grid.Observation{
		Indicator:  indicator,
		Mean:       math.NaN(),
		ErrorBar:   math.NaN(),
		SampleSize: math.NaN(),
	}
}

// Series builds a cohort block; the indicator list is taken from the
// observations in order.
func Series(name string, observations ...grid.Observation) grid.GroupSeries {
	indicators := make([]string, len(observations))
	for i, o := range observations {
		indicators[i] = o.Indicator
	}
	return grid.GroupSeries{
		Name:         name,
		Indicators:   indicators,
		Observations: observations,
	}
}

// Doc builds a grid document from cohort blocks.
func Doc(source string, groups ...grid.GroupSeries) *grid.Document {
	return &grid.Document{Source: source, Groups: groups}
}

// InMemoryLedger implements ports.LedgerPort with in-memory storage
type InMemoryLedger struct {
	runs        []*stats.RunResult
	comparisons map[core.RunID]*stats.ComparisonSet
	mu          sync.RWMutex
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{
		comparisons: make(map[core.RunID]*stats.ComparisonSet),
	}
}

func (l *InMemoryLedger) Init(ctx context.Context) error { return nil }

func (l *InMemoryLedger) Close() error { return nil }

func (l *InMemoryLedger) RecordRun(ctx context.Context, result *stats.RunResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs = append(l.runs, result)
	return nil
}

func (l *InMemoryLedger) RecordComparisons(ctx context.Context, runID core.RunID, set *stats.ComparisonSet) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.comparisons[runID] = set
	return nil
}

func (l *InMemoryLedger) RecentRuns(ctx context.Context, limit int) ([]ports.RunRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var records []ports.RunRecord
	for i := len(l.runs) - 1; i >= 0 && len(records) < limit; i-- {
		summary := l.runs[i].Summary
		comparisons := 0
		if set, ok := l.comparisons[summary.RunID]; ok {
			comparisons = set.Total
		}
		records = append(records, ports.RunRecord{
			RunID:                 summary.RunID,
			RecordedAt:            summary.StartedAt,
			Source:                summary.Source,
			TotalGroups:           summary.TotalGroups,
			TotalIndicators:       summary.TotalIndicators,
			SuccessfulConversions: summary.SuccessfulConversions,
			ConversionRate:        summary.ConversionRate,
			Comparisons:           comparisons,
		})
	}
	return records, nil
}

func (l *InMemoryLedger) RunResult(ctx context.Context, runID core.RunID) (*stats.RunResult, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, r := range l.runs {
		if r.Summary.RunID == runID {
			return r, nil
		}
	}
	return nil, apperrors.NotFound(fmt.Sprintf("run %s", runID))
}

func (l *InMemoryLedger) RunComparisons(ctx context.Context, runID core.RunID) (*stats.ComparisonSet, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if set, ok := l.comparisons[runID]; ok {
		return set, nil
	}
	return nil, apperrors.NotFound(fmt.Sprintf("comparisons for run %s", runID))
}

// Runs returns every recorded run in insertion order.
func (l *InMemoryLedger) Runs() []*stats.RunResult {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*stats.RunResult(nil), l.runs...)
}

// StoredComparisons returns the comparison set recorded for a run.
func (l *InMemoryLedger) StoredComparisons(runID core.RunID) (*stats.ComparisonSet, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	set, ok := l.comparisons[runID]
	return set, ok
}

var _ ports.LedgerPort = (*InMemoryLedger)(nil)

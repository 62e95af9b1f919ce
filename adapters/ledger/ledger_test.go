package ledger

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"errbar/domain/core"
	"errbar/domain/stats"
	apperrors "errbar/internal/errors"
)

func openTestLedger(t *testing.T) *RunLedger {
	t.Helper()
	led, err := Open("sqlite3", filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { led.Close() })

	if err := led.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return led
}

func ledgerResult(runID string, startedAt time.Time) *stats.RunResult {
	rec := stats.IndicatorRecord{
		Group:     "Baseline",
		Indicator: "Indicator1",
		Declared:  stats.TypeSE,
		Detection: stats.Detection{Type: stats.TypeSE, Confidence: 0.9},
		Conversion: &stats.Conversion{
			Mean:       10,
			SD:         2.5,
			SE:         2.5 / math.Sqrt(25),
			TypeUsed:   stats.TypeSE,
			Method:     "se_to_sd",
			SampleSize: 25,
		},
		Validation: &stats.ValidationReport{Valid: true, Quality: stats.QualityGood},
		Complete:   true,
	}

	return &stats.RunResult{
		Groups: []stats.GroupAnalysis{{
			Group:          "Baseline",
			IndicatorCount: 1,
			Records:        []stats.IndicatorRecord{rec},
			OverallQuality: stats.GroupComplete,
		}},
		Summary: stats.RunSummary{
			RunID:                 core.RunID(runID),
			StartedAt:             core.NewTimestamp(startedAt),
			Source:                "input.csv",
			TotalGroups:           1,
			TotalIndicators:       1,
			SuccessfulConversions: 1,
			ConversionRate:        1.0,
			TypeDistribution:      map[stats.ErrorBarType]int{stats.TypeSE: 1},
		},
	}
}

func TestRunLedgerRoundTrip(t *testing.T) {
	led := openTestLedger(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	result := ledgerResult("run-a", started)
	if err := led.RecordRun(ctx, result); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	loaded, err := led.RunResult(ctx, "run-a")
	if err != nil {
		t.Fatalf("RunResult: %v", err)
	}
	if loaded.Summary.Source != "input.csv" || loaded.Summary.SuccessfulConversions != 1 {
		t.Errorf("loaded summary = %+v", loaded.Summary)
	}
	if len(loaded.Groups) != 1 || len(loaded.Groups[0].Records) != 1 {
		t.Fatalf("loaded groups = %+v", loaded.Groups)
	}
	rec := loaded.Groups[0].Records[0]
	if rec.Conversion == nil || rec.Conversion.SD != 2.5 {
		t.Errorf("loaded conversion = %+v", rec.Conversion)
	}
	if loaded.Summary.TypeDistribution[stats.TypeSE] != 1 {
		t.Errorf("type distribution = %v", loaded.Summary.TypeDistribution)
	}
}

func TestRunLedgerComparisons(t *testing.T) {
	led := openTestLedger(t)
	ctx := context.Background()

	result := ledgerResult("run-b", time.Now())
	if err := led.RecordRun(ctx, result); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	rec := result.Groups[0].Records[0]
	comp := stats.NewGroupComparison("Indicator1", "Intervention", "Baseline", rec, rec,
		stats.Comparison{DeltaMean: 1.5, PValue: 0.05, Significant: true, Interpretation: "significant, treatment above reference"},
		stats.EffectSizes{CohensD: 0.6, Interpretation: stats.EffectMedium})
	set := &stats.ComparisonSet{
		Comparisons:     []stats.GroupComparison{comp},
		ComparisonType:  "intervention-baseline",
		ConfidenceLevel: 0.95,
		Total:           1,
		Significant:     1,
	}
	if err := led.RecordComparisons(ctx, "run-b", set); err != nil {
		t.Fatalf("RecordComparisons: %v", err)
	}

	loaded, err := led.RunComparisons(ctx, "run-b")
	if err != nil {
		t.Fatalf("RunComparisons: %v", err)
	}
	if loaded.Total != 1 || loaded.Significant != 1 {
		t.Errorf("loaded totals = %d/%d, want 1/1", loaded.Total, loaded.Significant)
	}
	if len(loaded.Comparisons) != 1 {
		t.Fatalf("loaded comparisons = %d, want 1", len(loaded.Comparisons))
	}
	got := loaded.Comparisons[0]
	if got.ID != "Intervention_vs_Baseline_Indicator1" {
		t.Errorf("comparison id = %q", got.ID)
	}
	if !got.Result.Significant || got.Result.DeltaMean != 1.5 {
		t.Errorf("comparison result = %+v", got.Result)
	}
}

func TestRunLedgerRecentRunsOrder(t *testing.T) {
	led := openTestLedger(t)
	ctx := context.Background()

	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-old", "run-mid", "run-new"} {
		if err := led.RecordRun(ctx, ledgerResult(id, t0.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("RecordRun %s: %v", id, err)
		}
	}

	records, err := led.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want limit 2", len(records))
	}
	if records[0].RunID != "run-new" || records[1].RunID != "run-mid" {
		t.Errorf("order = %s, %s; want newest first", records[0].RunID, records[1].RunID)
	}
	if records[0].Comparisons != 0 {
		t.Errorf("comparisons = %d, want 0 when none recorded", records[0].Comparisons)
	}
	if records[0].ConversionRate != 1.0 {
		t.Errorf("conversion rate = %v, want 1.0", records[0].ConversionRate)
	}
}

func TestRunLedgerMissingRun(t *testing.T) {
	led := openTestLedger(t)
	ctx := context.Background()

	if _, err := led.RunResult(ctx, "nope"); apperrors.GetCode(err) != apperrors.CodeNotFound {
		t.Errorf("RunResult missing code = %v", apperrors.GetCode(err))
	}
	if _, err := led.RunComparisons(ctx, "nope"); apperrors.GetCode(err) != apperrors.CodeNotFound {
		t.Errorf("RunComparisons missing code = %v", apperrors.GetCode(err))
	}
}

func TestRunLedgerInitIdempotent(t *testing.T) {
	led := openTestLedger(t)
	if err := led.Init(context.Background()); err != nil {
		t.Errorf("second Init: %v", err)
	}
}

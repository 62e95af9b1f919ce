package engine

import (
	"testing"

	"errbar/domain/stats"
	apperrors "errbar/internal/errors"
)

func TestStatsEngine_ConvertFormulaTable(t *testing.T) {
	engine := NewStatsEngine()

	tests := []struct {
		name       string
		mean       float64
		errorBar   float64
		errorType  stats.ErrorBarType
		sampleSize int
		wantSD     float64
		wantSE     float64
		wantFactor float64
		wantScore  float64
		wantMethod string
	}{
		{"sd is taken directly", 10, 2, stats.TypeSD, 25, 2, 0.4, 1.0, 1.00, "direct_sd"},
		{"se scales by sqrt n", 10, 0.5, stats.TypeSE, 25, 2.5, 0.5, 5.0, 0.95, "se_to_sd"},
		{"ci95 divides by 1.96", 10, 1.96, stats.TypeCI95, 25, 5.0, 1.0, 2.55102, 0.85, "ci95_to_sd"},
		{"ci99 divides by 2.576", 10, 2.576, stats.TypeCI99, 25, 5.0, 1.0, 1.940994, 0.85, "ci99_to_sd"},
		{"2se halves first", 10, 1.0, stats.Type2SE, 25, 2.5, 0.5, 2.5, 0.90, "2se_to_sd"},
		{"asymmetric treats half width as se", 10, 0.5, stats.TypeAsymmetric, 25, 2.5, 0.5, 5.0, 0.75, "asymmetric_approx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv, err := engine.Convert(tt.mean, tt.errorBar, tt.errorType, tt.sampleSize)
			if err != nil {
				t.Fatalf("Convert failed: %v", err)
			}
			if conv.SD != tt.wantSD {
				t.Errorf("SD = %v, want %v", conv.SD, tt.wantSD)
			}
			if conv.SE != tt.wantSE {
				t.Errorf("SE = %v, want %v", conv.SE, tt.wantSE)
			}
			if conv.ConversionFactor != tt.wantFactor {
				t.Errorf("ConversionFactor = %v, want %v", conv.ConversionFactor, tt.wantFactor)
			}
			if conv.QualityScore != tt.wantScore {
				t.Errorf("QualityScore = %v, want %v", conv.QualityScore, tt.wantScore)
			}
			if conv.Method != tt.wantMethod {
				t.Errorf("Method = %q, want %q", conv.Method, tt.wantMethod)
			}
			if conv.Mean != tt.mean {
				t.Errorf("Mean = %v, want %v", conv.Mean, tt.mean)
			}
			if conv.SampleSize != tt.sampleSize {
				t.Errorf("SampleSize = %d, want %d", conv.SampleSize, tt.sampleSize)
			}
			if conv.OriginalErrorBar != tt.errorBar {
				t.Errorf("OriginalErrorBar = %v, want %v", conv.OriginalErrorBar, tt.errorBar)
			}
		})
	}
}

func TestStatsEngine_ConvertAsymmetricFlag(t *testing.T) {
	engine := NewStatsEngine()

	conv, err := engine.Convert(10, 0.5, stats.TypeAsymmetric, 25)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !conv.AsymmetricApprox {
		t.Error("expected asymmetric approximation flag to be set")
	}

	conv, err = engine.Convert(10, 0.5, stats.TypeSE, 25)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if conv.AsymmetricApprox {
		t.Error("asymmetric flag should only be set for ASYMMETRIC inputs")
	}
}

func TestStatsEngine_ConvertRoundsToSixDecimals(t *testing.T) {
	engine := NewStatsEngine()

	// 2/sqrt(30) = 0.36514837... rounds to 0.365148.
	conv, err := engine.Convert(10, 2, stats.TypeSD, 30)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if conv.SE != 0.365148 {
		t.Errorf("SE = %v, want 0.365148", conv.SE)
	}

	conv, err = engine.Convert(1.23456789, 2, stats.TypeSD, 25)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if conv.Mean != 1.234568 {
		t.Errorf("Mean = %v, want 1.234568", conv.Mean)
	}
}

func TestStatsEngine_ConvertGrowsWithSampleSize(t *testing.T) {
	engine := NewStatsEngine()

	// For SE inputs the recovered SD scales with sqrt(n).
	prev := 0.0
	for _, n := range []int{4, 16, 64, 256} {
		conv, err := engine.Convert(10, 1.0, stats.TypeSE, n)
		if err != nil {
			t.Fatalf("Convert failed for n=%d: %v", n, err)
		}
		if conv.SD <= prev {
			t.Errorf("SD should grow with n: n=%d gave %v after %v", n, conv.SD, prev)
		}
		prev = conv.SD
	}
}

func TestStatsEngine_ConvertRejectsBadInput(t *testing.T) {
	engine := NewStatsEngine()

	_, err := engine.Convert(10, 2, stats.TypeUnknown, 25)
	if err == nil {
		t.Fatal("expected error for UNKNOWN type")
	}
	if apperrors.GetCode(err) != apperrors.CodeUnsupportedType {
		t.Errorf("error code = %s, want %s", apperrors.GetCode(err), apperrors.CodeUnsupportedType)
	}

	_, err = engine.Convert(10, 2, stats.ErrorBarType("IQR"), 25)
	if err == nil {
		t.Fatal("expected error for unrecognized type")
	}

	_, err = engine.Convert(10, 2, stats.TypeSD, 0)
	if err == nil {
		t.Fatal("expected error for zero sample size")
	}
	if apperrors.GetCode(err) != apperrors.CodeInvalidInput {
		t.Errorf("error code = %s, want %s", apperrors.GetCode(err), apperrors.CodeInvalidInput)
	}
}

func TestStatsEngine_ConvertFormulaString(t *testing.T) {
	engine := NewStatsEngine()

	conv, err := engine.Convert(10, 0.5, stats.TypeSE, 25)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	want := "SD = SE * sqrt(n) = 0.5000 * sqrt(25)"
	if conv.Formula != want {
		t.Errorf("Formula = %q, want %q", conv.Formula, want)
	}
}

func TestStatsEngine_ValidateTiers(t *testing.T) {
	engine := NewStatsEngine()

	tests := []struct {
		name         string
		conv         stats.Conversion
		wantValid    bool
		wantWarnings int
		wantQuality  stats.QualityTier
	}{
		{
			"clean conversion",
			stats.Conversion{Mean: 10, SD: 2, SE: 0.4, SampleSize: 25},
			true, 0, stats.QualityGood,
		},
		{
			"se inconsistent with sd",
			stats.Conversion{Mean: 10, SD: 2, SE: 0.5, SampleSize: 25},
			true, 1, stats.QualityGood,
		},
		{
			"very high variation",
			stats.Conversion{Mean: 1, SD: 2.5, SE: 0.5, SampleSize: 25},
			true, 1, stats.QualityPoor,
		},
		{
			"high variation",
			stats.Conversion{Mean: 2, SD: 3, SE: 0.6, SampleSize: 25},
			true, 1, stats.QualityFair,
		},
		{
			"small sample caps quality",
			stats.Conversion{Mean: 10, SD: 2, SE: 0.666667, SampleSize: 9},
			true, 1, stats.QualityFair,
		},
		{
			"small sample does not upgrade poor",
			stats.Conversion{Mean: 1, SD: 2.5, SE: 0.833333, SampleSize: 9},
			true, 2, stats.QualityPoor,
		},
		{
			"non-positive dispersion is invalid",
			stats.Conversion{Mean: 10, SD: 0, SE: 0, SampleSize: 25},
			false, 2, stats.QualityGood,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := engine.Validate(tt.conv)
			if report.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v", report.Valid, tt.wantValid)
			}
			if len(report.Warnings) != tt.wantWarnings {
				t.Errorf("warnings = %v, want %d of them", report.Warnings, tt.wantWarnings)
			}
			if report.Quality != tt.wantQuality {
				t.Errorf("Quality = %s, want %s", report.Quality, tt.wantQuality)
			}
		})
	}
}

func TestStatsEngine_ConfidenceInterval(t *testing.T) {
	engine := NewStatsEngine()

	tests := []struct {
		name       string
		level      float64
		wantZ      float64
		wantMargin float64
	}{
		{"90 percent", 0.90, 1.645, 0.8225},
		{"95 percent", 0.95, 1.96, 0.98},
		{"99 percent", 0.99, 2.576, 1.288},
		{"unlisted level falls back to 95", 0.80, 1.96, 0.98},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// sd=2.5, n=25 gives se=0.5.
			interval := engine.ConfidenceInterval(10, 2.5, 25, tt.level)
			if interval.Z != tt.wantZ {
				t.Errorf("Z = %v, want %v", interval.Z, tt.wantZ)
			}
			if interval.MarginOfError != tt.wantMargin {
				t.Errorf("MarginOfError = %v, want %v", interval.MarginOfError, tt.wantMargin)
			}
			if interval.Lower != 10-tt.wantMargin {
				t.Errorf("Lower = %v, want %v", interval.Lower, 10-tt.wantMargin)
			}
			if interval.Upper != 10+tt.wantMargin {
				t.Errorf("Upper = %v, want %v", interval.Upper, 10+tt.wantMargin)
			}
		})
	}
}

func TestStatsEngine_ConfidenceIntervalDegenerateSample(t *testing.T) {
	engine := NewStatsEngine()

	interval := engine.ConfidenceInterval(10, 2.5, 0, 0.95)
	if interval.Lower != 10 || interval.Upper != 10 {
		t.Errorf("degenerate interval should collapse to the mean, got [%v, %v]", interval.Lower, interval.Upper)
	}
	if interval.MarginOfError != 0 {
		t.Errorf("MarginOfError = %v, want 0", interval.MarginOfError)
	}
}

func TestStatsEngine_EffectSizes(t *testing.T) {
	engine := NewStatsEngine()

	// Equal group sizes and SDs: pooled SD is 2, d = 2/2 = 1.
	effects := engine.EffectSizes(12, 2, 20, 10, 2, 20)
	if effects.PooledSD != 2 {
		t.Errorf("PooledSD = %v, want 2", effects.PooledSD)
	}
	if effects.CohensD != 1 {
		t.Errorf("CohensD = %v, want 1", effects.CohensD)
	}
	// Correction factor 1 - 3/151.
	if effects.HedgesG != 0.980132 {
		t.Errorf("HedgesG = %v, want 0.980132", effects.HedgesG)
	}
	if effects.GlassDelta != 1 {
		t.Errorf("GlassDelta = %v, want 1", effects.GlassDelta)
	}
	if effects.Interpretation != stats.EffectLarge {
		t.Errorf("Interpretation = %s, want %s", effects.Interpretation, stats.EffectLarge)
	}
}

func TestStatsEngine_EffectSizesDegenerate(t *testing.T) {
	engine := NewStatsEngine()

	// df <= 0 collapses everything to zero instead of dividing by zero.
	effects := engine.EffectSizes(12, 2, 1, 10, 2, 1)
	if effects.PooledSD != 0 || effects.CohensD != 0 || effects.HedgesG != 0 {
		t.Errorf("expected zeroed effects for df<=0, got %+v", effects)
	}

	// Zero dispersion on both sides also collapses d.
	effects = engine.EffectSizes(12, 0, 20, 10, 0, 20)
	if effects.CohensD != 0 {
		t.Errorf("CohensD = %v, want 0 for zero pooled SD", effects.CohensD)
	}
	if effects.GlassDelta != 0 {
		t.Errorf("GlassDelta = %v, want 0 for zero reference SD", effects.GlassDelta)
	}
}

func TestStatsEngine_BatchConvert(t *testing.T) {
	engine := NewStatsEngine()

	inputs := []stats.ConversionInput{
		{Mean: 10, ErrorBar: 0.5, Type: stats.TypeSE, SampleSize: 25},
		{Mean: 10, ErrorBar: 2, Type: stats.TypeSD, SampleSize: 25},
		{Mean: 10, ErrorBar: 2, Type: stats.TypeUnknown, SampleSize: 25},
		{Mean: 10, ErrorBar: 2, Type: stats.TypeSD, SampleSize: 0},
	}

	results, summary := engine.BatchConvert(inputs)

	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if summary.Total != 4 || summary.Successful != 2 || summary.Failed != 2 {
		t.Errorf("summary = %+v, want total 4, successful 2, failed 2", summary)
	}
	if summary.TypeCounts[stats.TypeSE] != 1 || summary.TypeCounts[stats.TypeSD] != 1 {
		t.Errorf("TypeCounts = %v, want one SE and one SD", summary.TypeCounts)
	}
	if summary.QualityCounts[stats.QualityGood] != 2 {
		t.Errorf("QualityCounts = %v, want two good", summary.QualityCounts)
	}

	if results[0].Conversion == nil || results[0].Validation == nil {
		t.Error("successful entry should carry conversion and validation")
	}
	if results[2].Error == "" {
		t.Error("failed entry should carry an error message")
	}
	if results[2].Conversion != nil {
		t.Error("failed entry should not carry a conversion")
	}
}

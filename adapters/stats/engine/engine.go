package engine

import (
	"fmt"
	"log"
	"math"

	"errbar/domain/stats"
	apperrors "errbar/internal/errors"
)

// StatsEngine converts error bar measurements into the canonical
// Mean±SD form and validates the results. Every operation is a pure
// function over its arguments.
type StatsEngine struct{}

// NewStatsEngine creates a new statistical conversion engine
func NewStatsEngine() *StatsEngine {
	return &StatsEngine{}
}

// conversionRule is one row of the formula table. Non-direct rules
// derive SE as errorBar/seDivisor and SD as SE*sqrt(n); the direct rule
// takes the error bar as the SD itself.
type conversionRule struct {
	direct      bool
	seDivisor   float64
	quality     float64
	approximate bool
}

// conversionTable is the closed formula set. Quality grades how much
// information the source type preserves about the dispersion.
var conversionTable = map[stats.ErrorBarType]conversionRule{
	stats.TypeSD:         {direct: true, seDivisor: 1, quality: 1.00},
	stats.TypeSE:         {seDivisor: 1, quality: 0.95},
	stats.TypeCI95:       {seDivisor: 1.96, quality: 0.85},
	stats.TypeCI99:       {seDivisor: 2.576, quality: 0.85},
	stats.Type2SE:        {seDivisor: 2, quality: 0.90},
	stats.TypeAsymmetric: {seDivisor: 1, quality: 0.75, approximate: true},
}

// Convert maps one measurement onto Mean±SD using the formula table.
// The type must come from the closed convertible set; callers resolve
// UNKNOWN before reaching this point. Asymmetric inputs arrive with
// the upper/lower bounds already averaged into a single half width.
func (e *StatsEngine) Convert(mean, errorBar float64, errorType stats.ErrorBarType, sampleSize int) (stats.Conversion, error) {
	rule, ok := conversionTable[errorType]
	if !ok {
		return stats.Conversion{}, apperrors.UnsupportedType(string(errorType))
	}
	if sampleSize <= 0 {
		return stats.Conversion{}, apperrors.InvalidInput(fmt.Sprintf("sample size must be greater than 0, got %d", sampleSize))
	}

	sqrtN := math.Sqrt(float64(sampleSize))

	var se, sd, factor float64
	if rule.direct {
		se = errorBar / sqrtN
		sd = errorBar
		factor = 1.0
	} else {
		se = errorBar / rule.seDivisor
		sd = se * sqrtN
		factor = sqrtN / rule.seDivisor
	}

	return stats.Conversion{
		Mean:             round6(mean),
		SD:               round6(sd),
		SE:               round6(se),
		ConversionFactor: round6(factor),
		Formula:          formulaFor(errorType, errorBar, sampleSize),
		QualityScore:     rule.quality,
		TypeUsed:         errorType,
		Method:           errorType.MethodName(),
		SampleSize:       sampleSize,
		OriginalErrorBar: errorBar,
		AsymmetricApprox: rule.approximate,
	}, nil
}

// formulaFor records the applied arithmetic for auditability
func formulaFor(errorType stats.ErrorBarType, errorBar float64, sampleSize int) string {
	switch errorType {
	case stats.TypeSD:
		return "SD = error bar (direct)"
	case stats.TypeSE:
		return fmt.Sprintf("SD = SE * sqrt(n) = %.4f * sqrt(%d)", errorBar, sampleSize)
	case stats.TypeCI95:
		return fmt.Sprintf("SE = CI95/1.96, SD = SE * sqrt(n) = %.4f/1.96 * sqrt(%d)", errorBar, sampleSize)
	case stats.TypeCI99:
		return fmt.Sprintf("SE = CI99/2.576, SD = SE * sqrt(n) = %.4f/2.576 * sqrt(%d)", errorBar, sampleSize)
	case stats.Type2SE:
		return fmt.Sprintf("SE = 2SE/2, SD = SE * sqrt(n) = %.4f/2 * sqrt(%d)", errorBar, sampleSize)
	case stats.TypeAsymmetric:
		return fmt.Sprintf("SD = error_bar * sqrt(n) = %.4f * sqrt(%d) (asymmetric approximation)", errorBar, sampleSize)
	default:
		return "no conversion available"
	}
}

// Validate sanity-checks a conversion. It annotates, never blocks:
// downstream consumers decide what to do with the warnings.
func (e *StatsEngine) Validate(conv stats.Conversion) stats.ValidationReport {
	report := stats.ValidationReport{
		Valid:   true,
		Quality: stats.QualityGood,
	}

	if conv.SD <= 0 {
		report.Valid = false
		report.Warnings = append(report.Warnings, "standard deviation must be greater than 0")
	}

	if conv.SE <= 0 {
		report.Valid = false
		report.Warnings = append(report.Warnings, "standard error must be greater than 0")
	}

	// Cross-field invariant: SE and SD must agree through sqrt(n).
	expectedSE := 0.0
	if conv.SampleSize > 0 {
		expectedSE = conv.SD / math.Sqrt(float64(conv.SampleSize))
	}
	if math.Abs(conv.SE-expectedSE) > 0.001 {
		report.Warnings = append(report.Warnings, "SE and SD appear inconsistent for the sample size")
	}

	if conv.Mean != 0 {
		cv := math.Abs(conv.SD / conv.Mean)
		if cv > 2.0 {
			report.Warnings = append(report.Warnings, "coefficient of variation is very high, possible outliers")
			report.Quality = stats.QualityPoor
		} else if cv > 1.0 {
			report.Warnings = append(report.Warnings, "coefficient of variation is high, data variability is large")
			report.Quality = stats.QualityFair
		}
	}

	if conv.SampleSize < 10 {
		report.Warnings = append(report.Warnings, "sample size is small, result reliability is limited")
		if report.Quality == stats.QualityGood {
			report.Quality = stats.QualityFair
		}
	}

	return report
}

// ConfidenceInterval places a symmetric interval around a converted
// mean using the fixed z table. A non-positive sample size yields a
// degenerate zero-margin interval rather than NaN.
func (e *StatsEngine) ConfidenceInterval(mean, sd float64, sampleSize int, confidenceLevel float64) stats.Interval {
	z := stats.ZScoreFor(confidenceLevel)
	if sampleSize <= 0 {
		return stats.Interval{ConfidenceLevel: confidenceLevel, Lower: mean, Upper: mean, Z: z}
	}

	se := sd / math.Sqrt(float64(sampleSize))
	margin := z * se

	return stats.Interval{
		ConfidenceLevel: confidenceLevel,
		MarginOfError:   round6(margin),
		Lower:           round6(mean - margin),
		Upper:           round6(mean + margin),
		Z:               z,
	}
}

// EffectSizes derives the standardized difference measures for two
// converted groups. Degenerate pooled variance collapses Cohen's d to
// zero instead of dividing by zero.
func (e *StatsEngine) EffectSizes(mean1, sd1 float64, n1 int, mean2, sd2 float64, n2 int) stats.EffectSizes {
	delta := mean1 - mean2
	df := n1 + n2 - 2

	pooledSD := 0.0
	if df > 0 {
		pooledSD = math.Sqrt((float64(n1-1)*sd1*sd1 + float64(n2-1)*sd2*sd2) / float64(df))
	}

	cohensD := 0.0
	if pooledSD > 0 {
		cohensD = delta / pooledSD
	}

	correction := 1 - 3/float64(4*(n1+n2)-9)
	hedgesG := cohensD * correction

	glassDelta := 0.0
	if sd2 > 0 {
		glassDelta = delta / sd2
	}

	return stats.EffectSizes{
		CohensD:        round6(cohensD),
		HedgesG:        round6(hedgesG),
		GlassDelta:     round6(glassDelta),
		PooledSD:       round6(pooledSD),
		Interpretation: stats.InterpretEffectSize(math.Abs(cohensD)),
	}
}

// BatchResult is one entry of a batch conversion response
type BatchResult struct {
	Input      stats.ConversionInput   `json:"input"`
	Conversion *stats.Conversion       `json:"conversion,omitempty"`
	Validation *stats.ValidationReport `json:"validation,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

// BatchSummary aggregates a batch conversion pass
type BatchSummary struct {
	Total         int                        `json:"total_conversions"`
	Successful    int                        `json:"successful_conversions"`
	Failed        int                        `json:"failed_conversions"`
	TypeCounts    map[stats.ErrorBarType]int `json:"conversion_types"`
	QualityCounts map[stats.QualityTier]int  `json:"quality_distribution"`
}

// BatchConvert runs the formula table over a slice of inputs. A bad
// input fails its own slot and the batch keeps going.
func (e *StatsEngine) BatchConvert(inputs []stats.ConversionInput) ([]BatchResult, BatchSummary) {
	results := make([]BatchResult, 0, len(inputs))
	summary := BatchSummary{
		TypeCounts:    make(map[stats.ErrorBarType]int),
		QualityCounts: make(map[stats.QualityTier]int),
	}

	for i, input := range inputs {
		conv, err := e.Convert(input.Mean, input.ErrorBar, input.Type, input.SampleSize)
		if err != nil {
			log.Printf("[StatsEngine] batch entry %d failed: %v", i, err)
			results = append(results, BatchResult{Input: input, Error: err.Error()})
			summary.Failed++
			summary.Total++
			continue
		}

		validation := e.Validate(conv)
		results = append(results, BatchResult{
			Input:      input,
			Conversion: &conv,
			Validation: &validation,
		})

		summary.Successful++
		summary.Total++
		summary.TypeCounts[input.Type]++
		summary.QualityCounts[validation.Quality]++
	}

	return results, summary
}

// round6 keeps numeric outputs at the canonical six decimal places
func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

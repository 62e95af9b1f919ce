package stats

import (
	"fmt"
	"math"
	"strings"

	"errbar/domain/core"
)

// ============================================================================
// ERROR BAR TYPES (Canonical, closed set)
// ============================================================================

// ErrorBarType identifies which statistical quantity an error bar value
// represents
type ErrorBarType string

const (
	TypeSD         ErrorBarType = "SD"
	TypeSE         ErrorBarType = "SE"
	TypeCI95       ErrorBarType = "CI95"
	TypeCI99       ErrorBarType = "CI99"
	Type2SE        ErrorBarType = "2SE"
	TypeAsymmetric ErrorBarType = "ASYMMETRIC"
	TypeUnknown    ErrorBarType = "UNKNOWN"
)

// typeAliases maps accepted spellings onto canonical labels
var typeAliases = map[string]ErrorBarType{
	"SEM":    TypeSE,
	"STD":    TypeSD,
	"STDERR": TypeSE,
	"ASYM":   TypeAsymmetric,
	"ASYMM":  TypeAsymmetric,
}

// convertibleTypes is the closed set the conversion table covers
var convertibleTypes = map[ErrorBarType]bool{
	TypeSD:         true,
	TypeSE:         true,
	TypeCI95:       true,
	TypeCI99:       true,
	Type2SE:        true,
	TypeAsymmetric: true,
}

// NormalizeType resolves a declared label to a canonical ErrorBarType.
// Labels are trimmed and uppercased, aliases resolved, and anything
// outside the closed set becomes TypeUnknown.
func NormalizeType(label string) ErrorBarType {
	normalized := strings.ToUpper(strings.TrimSpace(label))
	if normalized == "" {
		return TypeUnknown
	}
	if canonical, ok := typeAliases[normalized]; ok {
		return canonical
	}
	if convertibleTypes[ErrorBarType(normalized)] {
		return ErrorBarType(normalized)
	}
	return TypeUnknown
}

// Convertible reports whether the type belongs to the closed conversion set
func (t ErrorBarType) Convertible() bool {
	return convertibleTypes[t]
}

// MethodName returns the conversion method label recorded on results
func (t ErrorBarType) MethodName() string {
	switch t {
	case TypeSD:
		return "direct_sd"
	case TypeSE:
		return "se_to_sd"
	case TypeCI95:
		return "ci95_to_sd"
	case TypeCI99:
		return "ci99_to_sd"
	case Type2SE:
		return "2se_to_sd"
	case TypeAsymmetric:
		return "asymmetric_approx"
	default:
		return "unknown"
	}
}

// ============================================================================
// CORE RECORDS (Value semantics, one conversion pass lifetime)
// ============================================================================

// Measurement is the raw per-indicator tuple entering detection.
// Mean, ErrorBar and SampleSize travel as floats so a missing field
// (NaN) stays distinguishable from a non-positive one; conversion
// receives an integral sample size after validation.
type Measurement struct {
	Mean       float64 `json:"mean"`
	ErrorBar   float64 `json:"error_bar"`
	Declared   string  `json:"declared_type,omitempty"`
	SampleSize float64 `json:"sample_size"`
}

// MissingData reports whether any required numeric field is absent
func (m Measurement) MissingData() bool {
	return math.IsNaN(m.Mean) || math.IsNaN(m.ErrorBar) || math.IsNaN(m.SampleSize)
}

// Detection is the classifier verdict for one measurement
type Detection struct {
	Type       ErrorBarType `json:"type"`
	Confidence float64      `json:"confidence"` // 0-1 plausibility, not a statistical level
}

// Conversion is the canonical Mean±SD record derived from one measurement
type Conversion struct {
	Mean             float64      `json:"mean"`
	SD               float64      `json:"sd"`
	SE               float64      `json:"se"`
	ConversionFactor float64      `json:"conversion_factor"` // multiplier from raw error bar to SD
	Formula          string       `json:"formula"`
	QualityScore     float64      `json:"quality_score"`
	TypeUsed         ErrorBarType `json:"type_used"`
	Method           string       `json:"method"`
	SampleSize       int          `json:"sample_size"`
	OriginalErrorBar float64      `json:"original_error_bar"`
	AsymmetricApprox bool         `json:"asymmetric_approximation,omitempty"`
}

// ConversionInput is one entry of a batch conversion request
type ConversionInput struct {
	Mean       float64      `json:"mean"`
	ErrorBar   float64      `json:"error_bar"`
	Type       ErrorBarType `json:"error_type"`
	SampleSize int          `json:"sample_size"`
}

// ValidationReport annotates a conversion; it never blocks downstream use
type ValidationReport struct {
	Valid    bool        `json:"is_valid"`
	Warnings []string    `json:"warnings,omitempty"`
	Quality  QualityTier `json:"quality_assessment"`
}

// Interval is a confidence interval around a converted mean
type Interval struct {
	ConfidenceLevel float64 `json:"confidence_level"`
	MarginOfError   float64 `json:"margin_of_error"`
	Lower           float64 `json:"ci_lower"`
	Upper           float64 `json:"ci_upper"`
	Z               float64 `json:"z_score"`
}

// EffectSizes carries the standardized difference measures for two groups
type EffectSizes struct {
	CohensD        float64         `json:"cohens_d"`
	HedgesG        float64         `json:"hedges_g"`
	GlassDelta     float64         `json:"glass_delta"`
	PooledSD       float64         `json:"pooled_sd"`
	Interpretation EffectMagnitude `json:"effect_size_interpretation"`
}

// Comparison holds the difference statistics for a treatment/reference pair
type Comparison struct {
	DeltaMean        float64 `json:"delta_mean"`
	SDDiff           float64 `json:"sd_diff"`
	CILower          float64 `json:"ci_lower"`
	CIUpper          float64 `json:"ci_upper"`
	ConfidenceLevel  float64 `json:"confidence_level"`
	CohensD          float64 `json:"cohens_d"`
	HedgesG          float64 `json:"hedges_g"`
	PValue           float64 `json:"p_value"`       // bucketed approximation, canonical
	PValueExact      float64 `json:"p_value_exact"` // Student-t CDF supplement, diagnostic only
	Significant      bool    `json:"significant"`
	TStatistic       float64 `json:"t_statistic"`
	DegreesOfFreedom int     `json:"degrees_of_freedom"`
	Interpretation   string  `json:"interpretation"`
}

// ============================================================================
// QUALITY TIERS
// ============================================================================

// QualityTier grades a single conversion
type QualityTier string

const (
	QualityGood QualityTier = "good"
	QualityFair QualityTier = "fair"
	QualityPoor QualityTier = "poor"
)

// GroupQuality grades a group block by observation completeness
type GroupQuality string

const (
	GroupComplete   GroupQuality = "complete"
	GroupGood       GroupQuality = "good"
	GroupPartial    GroupQuality = "partial"
	GroupIncomplete GroupQuality = "incomplete"
	GroupEmpty      GroupQuality = "empty"
)

// AssessGroupQuality grades completeness ratios: all complete, >= 80%,
// >= 50%, below, or no observations at all.
func AssessGroupQuality(complete, total int) GroupQuality {
	if total == 0 {
		return GroupEmpty
	}
	switch {
	case complete == total:
		return GroupComplete
	case float64(complete) >= float64(total)*0.8:
		return GroupGood
	case float64(complete) >= float64(total)*0.5:
		return GroupPartial
	default:
		return GroupIncomplete
	}
}

// EffectMagnitude buckets |Cohen's d|
type EffectMagnitude string

const (
	EffectNegligible EffectMagnitude = "negligible"
	EffectSmall      EffectMagnitude = "small"
	EffectMedium     EffectMagnitude = "medium"
	EffectLarge      EffectMagnitude = "large"
)

// InterpretEffectSize buckets an absolute standardized effect
func InterpretEffectSize(absD float64) EffectMagnitude {
	switch {
	case absD < 0.2:
		return EffectNegligible
	case absD < 0.5:
		return EffectSmall
	case absD < 0.8:
		return EffectMedium
	default:
		return EffectLarge
	}
}

// ============================================================================
// ANALYSIS AGGREGATES (Run-level outputs)
// ============================================================================

// IndicatorRecord joins detection, conversion and validation for one
// indicator of one group. Conversion is nil when the indicator was
// incomplete or rejected before conversion.
type IndicatorRecord struct {
	Group         string            `json:"group"`
	Indicator     string            `json:"indicator"`
	Declared      ErrorBarType      `json:"declared_type"`
	Detection     Detection         `json:"detection"`
	Conversion    *Conversion       `json:"conversion,omitempty"`
	Validation    *ValidationReport `json:"validation,omitempty"`
	Suggestions   []string          `json:"suggestions,omitempty"`
	Complete      bool              `json:"data_complete"`
	FailureReason string            `json:"failure_reason,omitempty"`
}

// Converted reports whether the record carries a usable conversion
func (r IndicatorRecord) Converted() bool {
	return r.Conversion != nil
}

// GroupAnalysis is the per-group analysis block
type GroupAnalysis struct {
	Group          string            `json:"group"`
	IndicatorCount int               `json:"indicator_count"`
	Records        []IndicatorRecord `json:"records"`
	OverallQuality GroupQuality      `json:"overall_quality"`
}

// RunSummary aggregates one full analysis pass
type RunSummary struct {
	RunID                 core.RunID           `json:"run_id"`
	StartedAt             core.Timestamp       `json:"started_at"`
	Source                string               `json:"source"`
	TotalGroups           int                  `json:"total_groups"`
	TotalIndicators       int                  `json:"total_indicators"`
	SuccessfulConversions int                  `json:"successful_conversions"`
	FailedConversions     int                  `json:"failed_conversions"`
	ConversionRate        float64              `json:"conversion_rate"`
	TypeDistribution      map[ErrorBarType]int `json:"error_type_distribution"`
	QualityDistribution   map[QualityTier]int  `json:"quality_distribution"`
	MeanConfidence        float64              `json:"mean_confidence"`
	MedianConfidence      float64              `json:"median_confidence"`
	Recommendations       []string             `json:"recommendations,omitempty"`
}

// GroupComparison wraps one comparator verdict with its pairing context
type GroupComparison struct {
	ID           core.ComparisonID `json:"comparison_id"`
	Indicator    string            `json:"indicator_name"`
	Group1       string            `json:"group1_name"`
	Group2       string            `json:"group2_name"`
	Group1Record IndicatorRecord   `json:"group1_data"`
	Group2Record IndicatorRecord   `json:"group2_data"`
	Result       Comparison        `json:"result"`
	Effects      EffectSizes       `json:"effect_sizes"`
}

// ComparisonSet is the output of one comparison pass across two groups
type ComparisonSet struct {
	Comparisons     []GroupComparison `json:"comparisons"`
	ComparisonType  string            `json:"comparison_type"`
	ConfidenceLevel float64           `json:"confidence_level"`
	Total           int               `json:"total_comparisons"`
	Significant     int               `json:"significant_comparisons"`
}

// RunResult bundles every group analysis of a run with its summary.
// It is the unit exporters and the ledger persist.
type RunResult struct {
	Groups  []GroupAnalysis `json:"groups"`
	Summary RunSummary      `json:"summary"`
}

// Group returns the analysis block for a named group, matching any of
// the given aliases in order
func (r *RunResult) Group(aliases ...string) (*GroupAnalysis, bool) {
	for _, alias := range aliases {
		for i := range r.Groups {
			if r.Groups[i].Group == alias {
				return &r.Groups[i], true
			}
		}
	}
	return nil, false
}

// ============================================================================
// CONSTRUCTORS
// ============================================================================

// NewDetection creates a detection verdict with validation
func NewDetection(t ErrorBarType, confidence float64) (Detection, error) {
	if confidence < 0.0 || confidence > 1.0 {
		return Detection{}, fmt.Errorf("confidence must be in [0.0, 1.0], got %f", confidence)
	}
	return Detection{Type: t, Confidence: confidence}, nil
}

// MustNewDetection creates a detection verdict (panics on invalid input).
// Use only in tests and development - production code should handle validation errors
func MustNewDetection(t ErrorBarType, confidence float64) Detection {
	d, err := NewDetection(t, confidence)
	if err != nil {
		panic(err)
	}
	return d
}

// NewGroupComparison attaches a fresh comparison ID to a verdict pair
func NewGroupComparison(indicator, group1, group2 string, rec1, rec2 IndicatorRecord,
	result Comparison, effects EffectSizes) GroupComparison {

	return GroupComparison{
		ID:           core.ComparisonID(fmt.Sprintf("%s_vs_%s_%s", group1, group2, indicator)),
		Indicator:    indicator,
		Group1:       group1,
		Group2:       group2,
		Group1Record: rec1,
		Group2Record: rec2,
		Result:       result,
		Effects:      effects,
	}
}

package api

import (
	"errbar/domain/stats"
	"errbar/ports"
)

// DetectRequest is one raw measurement submitted for type detection
type DetectRequest struct {
	Mean       float64 `json:"mean"`
	ErrorBar   float64 `json:"error_bar"`
	ErrorType  string  `json:"error_type,omitempty"`
	SampleSize float64 `json:"sample_size"`
}

// DetectResponse reports the detected type and advisory notes
type DetectResponse struct {
	DetectedType stats.ErrorBarType `json:"detected_type"`
	Confidence   float64            `json:"confidence"`
	Suggestions  []string           `json:"suggestions,omitempty"`
}

// ConvertRequest is one measurement to normalize to Mean±SD
type ConvertRequest struct {
	Mean       float64 `json:"mean"`
	ErrorBar   float64 `json:"error_bar"`
	ErrorType  string  `json:"error_type,omitempty"`
	SampleSize float64 `json:"sample_size"`
}

// ConvertResponse carries the conversion and its validation report
type ConvertResponse struct {
	Detection  stats.Detection        `json:"detection"`
	Conversion stats.Conversion       `json:"conversion"`
	Validation stats.ValidationReport `json:"validation"`
}

// GroupInput is one side of a two-group comparison, already in
// Mean±SD form
type GroupInput struct {
	Mean       float64 `json:"mean"`
	SD         float64 `json:"sd"`
	SampleSize int     `json:"sample_size"`
}

// CompareRequest contrasts a treatment group against a reference one
type CompareRequest struct {
	Treatment       GroupInput `json:"treatment"`
	Reference       GroupInput `json:"reference"`
	ConfidenceLevel float64    `json:"confidence_level,omitempty"`
}

// CompareResponse carries the verdict and the standardized effects
type CompareResponse struct {
	Comparison stats.Comparison  `json:"comparison"`
	Effects    stats.EffectSizes `json:"effect_sizes"`
}

// AnalyzeResponse is the payload of a full grid analysis run
type AnalyzeResponse struct {
	Result      *stats.RunResult     `json:"result"`
	Comparisons *stats.ComparisonSet `json:"comparisons,omitempty"`
}

// RunsResponse lists recent ledger entries
type RunsResponse struct {
	Runs []ports.RunRecord `json:"runs"`
}

package detector

import (
	"fmt"
	"math"

	"errbar/domain/stats"
)

// Detector classifies which statistical quantity an error bar value
// represents. A declared label wins when it survives a plausibility
// check; otherwise five candidate interpretations are scored against
// the numeric evidence and the best one is taken.
type Detector struct{}

// NewDetector creates a new error bar type detector
func NewDetector() *Detector {
	return &Detector{}
}

// Detect resolves the error bar type for one measurement.
//
// Mean, error bar and sample size arrive as floats so a missing field
// can travel as NaN; any missing field short-circuits to
// (UNKNOWN, 0.0). The declared label is normalized through the alias
// table before evaluation. Detect never fails: the worst outcome is
// an UNKNOWN verdict with zero confidence.
func (d *Detector) Detect(mean, errorBar float64, declared string, sampleSize float64) stats.Detection {
	if math.IsNaN(mean) || math.IsNaN(errorBar) || math.IsNaN(sampleSize) {
		return stats.Detection{Type: stats.TypeUnknown, Confidence: 0.0}
	}

	normalized := stats.NormalizeType(declared)

	// A plausible declared label wins outright.
	if normalized.Convertible() {
		confidence := d.validateDeclared(mean, errorBar, normalized, sampleSize)
		if confidence > 0.5 {
			return stats.Detection{Type: normalized, Confidence: confidence}
		}
	}

	detected := d.autoDetect(mean, errorBar, sampleSize)

	// Low-confidence auto detection defers to a recognized declared label.
	if detected.Confidence < 0.7 && normalized.Convertible() {
		return stats.Detection{Type: normalized, Confidence: 0.6}
	}

	return detected
}

// validateDeclared scores how plausible the declared type is for the
// observed numbers. Gross implausibility caps the score low enough
// that auto detection takes over.
func (d *Detector) validateDeclared(mean, errorBar float64, declared stats.ErrorBarType, sampleSize float64) float64 {
	if errorBar <= 0 || sampleSize <= 0 {
		return 0.0
	}

	// An error bar several times the mean is suspect for every type.
	if errorBar > math.Abs(mean)*3 {
		return 0.3
	}

	switch declared {
	case stats.TypeSD:
		// The standard deviation should exceed its implied standard error.
		expectedSE := errorBar / math.Sqrt(sampleSize)
		if expectedSE > 0 && expectedSE < errorBar {
			return 0.9
		}
		return 0.6

	case stats.TypeSE:
		// The implied standard deviation should be larger but still
		// in the neighborhood of the mean.
		expectedSD := errorBar * math.Sqrt(sampleSize)
		if expectedSD > errorBar && expectedSD < math.Abs(mean)*2 {
			return 0.9
		}
		return 0.6

	case stats.TypeCI95, stats.TypeCI99:
		z := 1.96
		if declared == stats.TypeCI99 {
			z = 2.576
		}
		expectedSD := (errorBar / z) * math.Sqrt(sampleSize)
		if expectedSD > 0 && expectedSD < math.Abs(mean)*2 {
			return 0.8
		}
		return 0.5

	case stats.Type2SE:
		se := errorBar / 2
		expectedSD := se * math.Sqrt(sampleSize)
		if expectedSD > 0 && expectedSD < math.Abs(mean)*2 {
			return 0.8
		}
		return 0.5
	}

	// Remaining recognized types (asymmetric bounds) have no numeric
	// signature to check against.
	return 0.7
}

// autoDetect scores each candidate interpretation of the error bar and
// returns the best one. Candidates need a positive error bar and
// sample size; without any eligible candidate the verdict is UNKNOWN.
func (d *Detector) autoDetect(mean, errorBar, sampleSize float64) stats.Detection {
	if sampleSize <= 0 || errorBar <= 0 {
		return stats.Detection{Type: stats.TypeUnknown, Confidence: 0.0}
	}

	sqrtN := math.Sqrt(sampleSize)

	seFromCI95 := errorBar / 1.96
	seFromCI99 := errorBar / 2.576
	seFrom2SE := errorBar / 2

	candidates := []stats.Detection{
		{Type: stats.TypeSD, Confidence: d.scoreSDAssumption(mean, errorBar, errorBar/sqrtN)},
		{Type: stats.TypeSE, Confidence: d.scoreSEAssumption(mean, errorBar, errorBar*sqrtN)},
		{Type: stats.TypeCI95, Confidence: d.scoreCIAssumption(mean, errorBar, seFromCI95, seFromCI95*sqrtN)},
		{Type: stats.TypeCI99, Confidence: d.scoreCIAssumption(mean, errorBar, seFromCI99, seFromCI99*sqrtN)},
		{Type: stats.Type2SE, Confidence: d.scoreSEAssumption(mean, seFrom2SE, seFrom2SE*sqrtN)},
	}

	best := candidates[0]
	for _, candidate := range candidates[1:] {
		if candidate.Confidence > best.Confidence {
			best = candidate
		}
	}
	return best
}

// scoreSDAssumption rates the hypothesis that the value is a standard
// deviation given the standard error it would imply.
func (d *Detector) scoreSDAssumption(mean, sd, se float64) float64 {
	score := 0.5

	// Ordering sanity: SD exceeds SE for any n > 1.
	if sd > se {
		score += 0.2
	}

	// Magnitude stays within an elastic multiple of the mean.
	if sd < math.Abs(mean)*1.5 {
		score += 0.2
	} else if sd < math.Abs(mean)*2 {
		score += 0.1
	}

	if mean != 0 {
		cv := math.Abs(sd / mean)
		if cv >= 0.1 && cv <= 1.0 {
			score += 0.1
		}
	}

	return math.Min(score, 1.0)
}

// scoreSEAssumption rates the hypothesis that the value is a standard
// error given the standard deviation it would imply. The 2SE candidate
// reuses this with the halved value.
func (d *Detector) scoreSEAssumption(mean, se, sd float64) float64 {
	score := 0.5

	if se < sd {
		score += 0.2
	}

	// Standard errors run small relative to the mean.
	if se < math.Abs(mean)*0.5 {
		score += 0.2
	} else if se < math.Abs(mean) {
		score += 0.1
	}

	if mean != 0 {
		cv := math.Abs(sd / mean)
		if cv >= 0.1 && cv <= 1.0 {
			score += 0.1
		}
	}

	return math.Min(score, 1.0)
}

// scoreCIAssumption rates the confidence interval hypotheses. The base
// score and ceiling sit lower than the SD/SE scorers: interval half
// widths are the rarer way to annotate a bar chart.
func (d *Detector) scoreCIAssumption(mean, halfWidth, se, sd float64) float64 {
	score := 0.4

	if halfWidth > se && halfWidth < math.Abs(mean) {
		score += 0.3
	} else if halfWidth < math.Abs(mean)*1.5 {
		score += 0.2
	}

	if mean != 0 {
		cv := math.Abs(sd / mean)
		if cv >= 0.1 && cv <= 1.0 {
			score += 0.2
		}
	}

	return math.Min(score, 0.8)
}

// ValidateConversionInput rejects tuples that must not reach the
// conversion table. The reason string is empty when the input is
// acceptable.
func (d *Detector) ValidateConversionInput(mean, errorBar float64, errorType stats.ErrorBarType, sampleSize int) (bool, string) {
	if sampleSize <= 0 {
		return false, "sample size must be greater than 0"
	}

	if errorBar <= 0 {
		return false, "error bar value must be greater than 0"
	}

	if !errorType.Convertible() && errorType != stats.TypeUnknown {
		return false, fmt.Sprintf("unsupported error bar type: %s", errorType)
	}

	if math.Abs(mean) < 1e-10 && errorBar > 1 {
		return false, "mean is near zero but the error bar is large, check the data"
	}

	if errorBar > math.Abs(mean)*5 {
		return false, "error bar exceeds five times the mean, possible data error"
	}

	return true, ""
}

// SuggestImprovements returns advisory notes for a measurement. The
// suggestions never block a conversion.
func (d *Detector) SuggestImprovements(mean, errorBar float64, errorType stats.ErrorBarType, sampleSize int) []string {
	var suggestions []string

	if sampleSize < 10 {
		suggestions = append(suggestions, "sample size is small, consider collecting more observations for statistical power")
	}

	if errorType == stats.TypeUnknown {
		suggestions = append(suggestions, "declare the error bar type explicitly (SE, SD, CI95, ...)")
	}

	if errorBar > math.Abs(mean) {
		suggestions = append(suggestions, "error bar is large relative to the mean, check data quality or consider a transformation")
	}

	if errorType == stats.TypeSD && mean != 0 {
		cv := math.Abs(errorBar / mean)
		if cv > 1.0 {
			suggestions = append(suggestions, "coefficient of variation is high, check the distribution or consider a log transform")
		}
	}

	return suggestions
}

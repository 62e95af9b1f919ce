package compare

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"errbar/domain/stats"
)

// Interpretation strings attached to comparison results.
const (
	interpNotSignificant = "not significant"
	interpAbove          = "significant, treatment above reference"
	interpBelow          = "significant, treatment below reference"
	interpSpansZero      = "significant, confidence interval spans zero"
)

// GroupComparator runs two-sample comparisons between converted
// measurements. Both sides must already be in Mean±SD form.
type GroupComparator struct{}

// NewGroupComparator creates a new group comparator
func NewGroupComparator() *GroupComparator {
	return &GroupComparator{}
}

// Compare contrasts a treatment conversion against a reference one at
// the given confidence level. Sample sizes are positive for anything
// that came out of the conversion engine; a non-positive size yields
// the degenerate not-significant result instead of NaN.
func (c *GroupComparator) Compare(treatment, reference stats.Conversion, confidenceLevel float64) stats.Comparison {
	n1, n2 := treatment.SampleSize, reference.SampleSize
	if n1 <= 0 || n2 <= 0 {
		return stats.Comparison{
			ConfidenceLevel: confidenceLevel,
			PValue:          1.0,
			PValueExact:     1.0,
			Interpretation:  interpNotSignificant,
		}
	}

	delta := treatment.Mean - reference.Mean
	sdDiff := math.Sqrt(treatment.SD*treatment.SD/float64(n1) + reference.SD*reference.SD/float64(n2))

	z := stats.ZScoreFor(confidenceLevel)
	ciLower := delta - z*sdDiff
	ciUpper := delta + z*sdDiff

	df := n1 + n2 - 2

	pooledSD := 0.0
	if df > 0 {
		pooledSD = math.Sqrt((float64(n1-1)*treatment.SD*treatment.SD + float64(n2-1)*reference.SD*reference.SD) / float64(df))
	}
	cohensD := 0.0
	if pooledSD > 0 {
		cohensD = delta / pooledSD
	}
	hedgesG := cohensD * (1 - 3/float64(4*(n1+n2)-9))

	tStat := 0.0
	if sdDiff > 0 {
		tStat = delta / sdDiff
	}

	pValue := bandedPValue(tStat, df)
	significant := pValue < (1 - confidenceLevel)

	return stats.Comparison{
		DeltaMean:        round4(delta),
		SDDiff:           round4(sdDiff),
		CILower:          round4(ciLower),
		CIUpper:          round4(ciUpper),
		ConfidenceLevel:  confidenceLevel,
		CohensD:          round4(cohensD),
		HedgesG:          round4(hedgesG),
		PValue:           pValue,
		PValueExact:      round6(exactPValue(tStat, df)),
		Significant:      significant,
		TStatistic:       round4(tStat),
		DegreesOfFreedom: df,
		Interpretation:   interpret(significant, ciLower, ciUpper),
	}
}

// bandedPValue grades |t| into coarse significance bands. The bands are
// the published contract: downstream meta-analysis tooling keys on
// these exact values, so they must not be swapped for an exact
// distribution lookup.
func bandedPValue(tStat float64, df int) float64 {
	if df <= 0 {
		return 1.0
	}
	absT := math.Abs(tStat)
	switch {
	case absT == 0:
		return 1.0
	case absT > 4:
		return 0.0001
	case absT > 3:
		return 0.01
	case absT > 2:
		return 0.05
	case absT > 1.5:
		return 0.1
	default:
		return 0.2
	}
}

// exactPValue is the two-sided Student's t probability for the same
// statistic. It rides along for diagnostics and never drives the
// significance decision.
func exactPValue(tStat float64, df int) float64 {
	if df <= 0 {
		return 1.0
	}
	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}
	return 2 * (1 - tDist.CDF(math.Abs(tStat)))
}

func interpret(significant bool, ciLower, ciUpper float64) string {
	if !significant {
		return interpNotSignificant
	}
	if ciLower > 0 {
		return interpAbove
	}
	if ciUpper < 0 {
		return interpBelow
	}
	return interpSpansZero
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

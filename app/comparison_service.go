package app

import (
	"log"

	"errbar/adapters/stats/compare"
	"errbar/adapters/stats/engine"
	"errbar/domain/stats"
)

// Comparison pass types accepted by CompareGroups
const (
	ComparisonAll                  = "all"
	ComparisonInterventionBaseline = "intervention-baseline"
)

// ComparisonService pairs intervention and baseline cohorts and runs
// the two-sample comparison per indicator
type ComparisonService struct {
	comparator *compare.GroupComparator
	engine     *engine.StatsEngine
}

// NewComparisonService creates a comparison service
func NewComparisonService(comparator *compare.GroupComparator, eng *engine.StatsEngine) *ComparisonService {
	return &ComparisonService{
		comparator: comparator,
		engine:     eng,
	}
}

// CompareGroups pairs the converted records of the Intervention and
// Baseline cohorts by position and compares each pair. An unknown
// comparison type yields an empty set rather than an error.
func (s *ComparisonService) CompareGroups(result *stats.RunResult, comparisonType string, confidenceLevel float64) *stats.ComparisonSet {
	set := &stats.ComparisonSet{
		ComparisonType:  comparisonType,
		ConfidenceLevel: confidenceLevel,
	}
	if comparisonType != ComparisonAll && comparisonType != ComparisonInterventionBaseline {
		log.Printf("[Comparison] unknown comparison type %q, nothing to do", comparisonType)
		return set
	}

	baseline := groupConversions(result, "Baseline", "基线组")
	intervention := groupConversions(result, "Intervention", "干预组")

	for i, base := range baseline {
		if i >= len(intervention) {
			break
		}
		inter := intervention[i]

		verdict := s.comparator.Compare(*inter.Conversion, *base.Conversion, confidenceLevel)
		effects := s.engine.EffectSizes(
			inter.Conversion.Mean, inter.Conversion.SD, inter.Conversion.SampleSize,
			base.Conversion.Mean, base.Conversion.SD, base.Conversion.SampleSize)

		set.Comparisons = append(set.Comparisons,
			stats.NewGroupComparison(base.Indicator, "Intervention", "Baseline", inter, base, verdict, effects))
		if verdict.Significant {
			set.Significant++
		}
	}
	set.Total = len(set.Comparisons)

	log.Printf("[Comparison] %d comparisons, %d significant at level %.2f",
		set.Total, set.Significant, confidenceLevel)
	return set
}

// groupConversions returns the converted records of the first cohort
// matching any alias, in indicator order
func groupConversions(result *stats.RunResult, aliases ...string) []stats.IndicatorRecord {
	group, ok := result.Group(aliases...)
	if !ok {
		return nil
	}
	var recs []stats.IndicatorRecord
	for _, rec := range group.Records {
		if rec.Converted() {
			recs = append(recs, rec)
		}
	}
	return recs
}

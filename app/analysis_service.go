package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	mstats "github.com/montanaflynn/stats"
	"golang.org/x/sync/semaphore"

	"errbar/adapters/stats/detector"
	"errbar/adapters/stats/engine"
	"errbar/domain/core"
	"errbar/domain/grid"
	"errbar/domain/stats"
	"errbar/internal"
	apperrors "errbar/internal/errors"
	"errbar/ports"
)

// AnalysisService runs the conversion pipeline over a grid document:
// detect the error bar type of every observation, convert complete
// ones to Mean±SD, validate, and summarize the run.
type AnalysisService struct {
	reader     ports.GridReaderPort
	detector   *detector.Detector
	engine     *engine.StatsEngine
	maxWorkers int
	logger     *internal.Logger
}

// NewAnalysisService creates an analysis service. maxWorkers bounds
// how many cohorts are analyzed concurrently.
func NewAnalysisService(reader ports.GridReaderPort, det *detector.Detector, eng *engine.StatsEngine, maxWorkers int) *AnalysisService {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &AnalysisService{
		reader:     reader,
		detector:   det,
		engine:     eng,
		maxWorkers: maxWorkers,
		logger:     internal.NewDefaultLogger(),
	}
}

// AnalyzeFile loads the grid at path and analyzes it
func (s *AnalysisService) AnalyzeFile(ctx context.Context, path string) (*stats.RunResult, error) {
	doc, err := s.reader.ReadGrid(path)
	if err != nil {
		return nil, err
	}
	return s.AnalyzeDocument(ctx, doc)
}

// AnalyzeDocument analyzes an already-loaded grid document. Cohorts
// are independent, so they run under a worker-bounded semaphore;
// results keep the document's cohort order.
func (s *AnalysisService) AnalyzeDocument(ctx context.Context, doc *grid.Document) (*stats.RunResult, error) {
	started := core.Now()
	groups := make([]stats.GroupAnalysis, len(doc.Groups))

	sem := semaphore.NewWeighted(int64(s.maxWorkers))
	var wg sync.WaitGroup
	for i := range doc.Groups {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, apperrors.Wrap(err, "analysis canceled")
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			groups[i] = s.analyzeGroup(doc.Groups[i])
		}(i)
	}
	wg.Wait()

	result := &stats.RunResult{
		Groups:  groups,
		Summary: s.summarize(doc.Source, started, groups),
	}
	log.Printf("[Analysis] run %s: %d cohorts, %d/%d conversions",
		result.Summary.RunID, result.Summary.TotalGroups,
		result.Summary.SuccessfulConversions, result.Summary.TotalIndicators)
	return result, nil
}

func (s *AnalysisService) analyzeGroup(series grid.GroupSeries) stats.GroupAnalysis {
	records := make([]stats.IndicatorRecord, 0, len(series.Observations))
	complete := 0
	for _, obs := range series.Observations {
		rec := s.analyzeObservation(series.Name, obs)
		if rec.Complete {
			complete++
		}
		records = append(records, rec)
	}
	return stats.GroupAnalysis{
		Group:          series.Name,
		IndicatorCount: len(series.Observations),
		Records:        records,
		OverallQuality: stats.AssessGroupQuality(complete, len(records)),
	}
}

// analyzeObservation detects, converts and validates one indicator.
// Detection always runs so the summary can report type distribution
// even for observations too incomplete to convert.
func (s *AnalysisService) analyzeObservation(group string, obs grid.Observation) stats.IndicatorRecord {
	declared := stats.TypeUnknown
	if obs.ErrorType != "" {
		declared = stats.ErrorBarType(obs.ErrorType)
	}

	m := obs.Measurement()
	rec := stats.IndicatorRecord{
		Group:     group,
		Indicator: obs.Indicator,
		Declared:  declared,
		Detection: s.detector.Detect(m.Mean, m.ErrorBar, m.Declared, m.SampleSize),
		Complete:  obs.Complete(),
	}
	if !rec.Complete {
		rec.FailureReason = "incomplete data"
		return rec
	}

	if ok, reason := s.detector.ValidateConversionInput(obs.Mean, obs.ErrorBar, rec.Detection.Type, int(obs.SampleSize)); !ok {
		rec.FailureReason = reason
		s.logger.Debug("rejected %s/%s: %s", group, obs.Indicator, reason)
		return rec
	}

	conv, err := s.engine.Convert(obs.Mean, obs.ErrorBar, rec.Detection.Type, int(obs.SampleSize))
	if err != nil {
		rec.FailureReason = err.Error()
		s.logger.Debug("conversion failed for %s/%s: %v", group, obs.Indicator, err)
		return rec
	}
	validation := s.engine.Validate(conv)
	s.logger.Trace("converted %s/%s: mean=%.4f sd=%.4f via %s",
		group, obs.Indicator, conv.Mean, conv.SD, conv.Method)

	rec.Conversion = &conv
	rec.Validation = &validation
	rec.Suggestions = s.detector.SuggestImprovements(obs.Mean, obs.ErrorBar, rec.Detection.Type, int(obs.SampleSize))
	return rec
}

func (s *AnalysisService) summarize(source string, started core.Timestamp, groups []stats.GroupAnalysis) stats.RunSummary {
	summary := stats.RunSummary{
		RunID:               core.RunID(core.NewID()),
		StartedAt:           started,
		Source:              source,
		TotalGroups:         len(groups),
		TypeDistribution:    make(map[stats.ErrorBarType]int),
		QualityDistribution: make(map[stats.QualityTier]int),
	}

	var confidences []float64
	for _, group := range groups {
		summary.TotalIndicators += group.IndicatorCount
		for _, rec := range group.Records {
			summary.TypeDistribution[rec.Detection.Type]++
			confidences = append(confidences, rec.Detection.Confidence)
			if rec.Converted() {
				summary.SuccessfulConversions++
				if rec.Validation != nil {
					summary.QualityDistribution[rec.Validation.Quality]++
				}
			} else {
				summary.FailedConversions++
			}
		}
	}
	if summary.TotalIndicators > 0 {
		summary.ConversionRate = float64(summary.SuccessfulConversions) / float64(summary.TotalIndicators)
	}
	if len(confidences) > 0 {
		if mean, err := mstats.Mean(confidences); err == nil {
			summary.MeanConfidence = mean
		}
		if median, err := mstats.Median(confidences); err == nil {
			summary.MedianConfidence = median
		}
	}
	summary.Recommendations = recommendations(groups)
	return summary
}

// recommendations lists per-cohort data fixes: missing cells to fill
// and mixed declared types to unify
func recommendations(groups []stats.GroupAnalysis) []string {
	var recs []string
	for _, group := range groups {
		var incomplete []string
		var declared []string
		seen := make(map[stats.ErrorBarType]bool)
		for _, rec := range group.Records {
			if !rec.Complete {
				incomplete = append(incomplete, rec.Indicator)
			}
			if rec.Declared != stats.TypeUnknown && !seen[rec.Declared] {
				seen[rec.Declared] = true
				declared = append(declared, string(rec.Declared))
			}
		}
		if len(incomplete) > 0 {
			recs = append(recs, fmt.Sprintf("group %s: supply complete data for %s",
				group.Group, strings.Join(incomplete, ", ")))
		}
		if len(declared) > 1 {
			recs = append(recs, fmt.Sprintf("group %s: unify error bar types, currently mixing %s",
				group.Group, strings.Join(declared, ", ")))
		}
	}
	return recs
}

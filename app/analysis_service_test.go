package app

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"errbar/adapters/stats/detector"
	"errbar/adapters/stats/engine"
	"errbar/domain/grid"
	"errbar/domain/stats"
	apperrors "errbar/internal/errors"
	"errbar/internal/testkit"
)

// Mock implementations for testing
type MockGridReader struct {
	mock.Mock
}

func (m *MockGridReader) ReadGrid(path string) (*grid.Document, error) {
	args := m.Called(path)
	if doc := args.Get(0); doc != nil {
		return doc.(*grid.Document), args.Error(1)
	}
	return nil, args.Error(1)
}

func testDocument() *grid.Document {
	return testkit.Doc("input.csv",
		testkit.Series("Baseline",
			testkit.Obs("Indicator1", 10, 2, "SE", 25),
			testkit.Obs("Indicator2", math.NaN(), 1.5, "SE", 30),
		),
		testkit.Series("Intervention",
			testkit.Obs("Indicator1", 12, 3, "SD", 25),
			testkit.Obs("Indicator2", 9, 0.8, "SE", 30),
		),
	)
}

func newTestAnalysisService(reader *MockGridReader) *AnalysisService {
	return NewAnalysisService(reader, detector.NewDetector(), engine.NewStatsEngine(), 4)
}

func TestAnalysisServiceAnalyzeFile(t *testing.T) {
	reader := new(MockGridReader)
	reader.On("ReadGrid", "input.csv").Return(testDocument(), nil)
	svc := newTestAnalysisService(reader)

	result, err := svc.AnalyzeFile(context.Background(), "input.csv")
	assert.NoError(t, err)
	reader.AssertExpectations(t)

	assert.Len(t, result.Groups, 2)
	assert.Equal(t, "Baseline", result.Groups[0].Group)
	assert.Equal(t, "Intervention", result.Groups[1].Group)

	baseline := result.Groups[0]
	assert.Equal(t, 2, baseline.IndicatorCount)
	assert.Equal(t, stats.GroupPartial, baseline.OverallQuality)

	converted := baseline.Records[0]
	assert.True(t, converted.Converted())
	assert.Equal(t, stats.TypeSE, converted.Detection.Type)
	assert.InDelta(t, 0.9, converted.Detection.Confidence, 1e-9)
	assert.Equal(t, 10.0, converted.Conversion.SD, "SE 2 at n=25 converts to SD 10")
	assert.Equal(t, 2.0, converted.Conversion.SE)
	assert.True(t, converted.Validation.Valid)
	assert.Equal(t, stats.QualityGood, converted.Validation.Quality)

	missing := baseline.Records[1]
	assert.False(t, missing.Converted())
	assert.Equal(t, "incomplete data", missing.FailureReason)
	assert.Equal(t, stats.TypeUnknown, missing.Detection.Type)
	assert.Zero(t, missing.Detection.Confidence)

	intervention := result.Groups[1]
	assert.Equal(t, stats.GroupComplete, intervention.OverallQuality)
	assert.Equal(t, stats.TypeSD, intervention.Records[0].Detection.Type)
	assert.Equal(t, 3.0, intervention.Records[0].Conversion.SD)
	assert.InDelta(t, 4.38178, intervention.Records[1].Conversion.SD, 1e-6)
}

func TestAnalysisServiceSummary(t *testing.T) {
	reader := new(MockGridReader)
	reader.On("ReadGrid", "input.csv").Return(testDocument(), nil)
	svc := newTestAnalysisService(reader)

	result, err := svc.AnalyzeFile(context.Background(), "input.csv")
	assert.NoError(t, err)

	s := result.Summary
	assert.NotEmpty(t, s.RunID)
	assert.False(t, s.StartedAt.IsZero())
	assert.Equal(t, "input.csv", s.Source)
	assert.Equal(t, 2, s.TotalGroups)
	assert.Equal(t, 4, s.TotalIndicators)
	assert.Equal(t, 3, s.SuccessfulConversions)
	assert.Equal(t, 1, s.FailedConversions)
	assert.InDelta(t, 0.75, s.ConversionRate, 1e-9)

	assert.Equal(t, 2, s.TypeDistribution[stats.TypeSE])
	assert.Equal(t, 1, s.TypeDistribution[stats.TypeSD])
	assert.Equal(t, 1, s.TypeDistribution[stats.TypeUnknown],
		"incomplete observations still count in the detected distribution")

	assert.Equal(t, 3, s.QualityDistribution[stats.QualityGood])
	assert.InDelta(t, 0.675, s.MeanConfidence, 1e-9)
	assert.InDelta(t, 0.9, s.MedianConfidence, 1e-9)

	assert.Equal(t, []string{
		"group Baseline: supply complete data for Indicator2",
		"group Intervention: unify error bar types, currently mixing SD, SE",
	}, s.Recommendations)
}

func TestAnalysisServiceDeclaredAliasKeptRaw(t *testing.T) {
	doc := &grid.Document{
		Source: "alias.csv",
		Groups: []grid.GroupSeries{{
			Name:       "Baseline",
			Indicators: []string{"Indicator1", "Indicator2"},
			Observations: []grid.Observation{
				{Indicator: "Indicator1", Mean: 10, ErrorBar: 2, ErrorType: "SEM", SampleSize: 25},
				{Indicator: "Indicator2", Mean: 11, ErrorBar: 2, ErrorType: "SE", SampleSize: 25},
			},
		}},
	}
	reader := new(MockGridReader)
	reader.On("ReadGrid", "alias.csv").Return(doc, nil)
	svc := newTestAnalysisService(reader)

	result, err := svc.AnalyzeFile(context.Background(), "alias.csv")
	assert.NoError(t, err)

	// The alias converts as SE but the declared label stays verbatim,
	// so the mixed-type recommendation distinguishes SEM from SE.
	rec := result.Groups[0].Records[0]
	assert.Equal(t, stats.ErrorBarType("SEM"), rec.Declared)
	assert.Equal(t, stats.TypeSE, rec.Detection.Type)
	assert.Contains(t, result.Summary.Recommendations[0], "mixing SEM, SE")
}

func TestAnalysisServiceRejectsImplausibleInput(t *testing.T) {
	doc := &grid.Document{
		Source: "reject.csv",
		Groups: []grid.GroupSeries{{
			Name:       "Baseline",
			Indicators: []string{"Indicator1"},
			Observations: []grid.Observation{
				{Indicator: "Indicator1", Mean: 1, ErrorBar: 10, ErrorType: "SD", SampleSize: 20},
			},
		}},
	}
	reader := new(MockGridReader)
	svc := newTestAnalysisService(reader)

	result, err := svc.AnalyzeDocument(context.Background(), doc)
	assert.NoError(t, err)

	rec := result.Groups[0].Records[0]
	assert.True(t, rec.Complete)
	assert.False(t, rec.Converted())
	assert.Equal(t, "error bar exceeds five times the mean, possible data error", rec.FailureReason)
	assert.Equal(t, 1, result.Summary.FailedConversions)
	assert.Zero(t, result.Summary.SuccessfulConversions)
}

func TestAnalysisServiceReadFailure(t *testing.T) {
	reader := new(MockGridReader)
	reader.On("ReadGrid", "missing.csv").Return(nil, apperrors.NotFound("grid file missing.csv"))
	svc := newTestAnalysisService(reader)

	_, err := svc.AnalyzeFile(context.Background(), "missing.csv")
	assert.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(err))
}

func TestAnalysisServiceCanceledContext(t *testing.T) {
	reader := new(MockGridReader)
	svc := newTestAnalysisService(reader)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.AnalyzeDocument(ctx, testDocument())
	assert.Error(t, err)
}

func TestAnalysisServiceEmptyDocument(t *testing.T) {
	reader := new(MockGridReader)
	svc := newTestAnalysisService(reader)

	result, err := svc.AnalyzeDocument(context.Background(), &grid.Document{Source: "empty.csv"})
	assert.NoError(t, err)
	assert.Empty(t, result.Groups)
	assert.Zero(t, result.Summary.TotalIndicators)
	assert.Zero(t, result.Summary.ConversionRate)
	assert.Empty(t, result.Summary.Recommendations)
}

func TestAnalysisServiceGeneratedGrid(t *testing.T) {
	doc := testkit.NewGridGenerator(testkit.DefaultGridConfig()).Generate()
	svc := newTestAnalysisService(new(MockGridReader))

	result, err := svc.AnalyzeDocument(context.Background(), doc)
	assert.NoError(t, err)

	assert.Equal(t, 8, result.Summary.SuccessfulConversions)
	assert.Equal(t, 1.0, result.Summary.ConversionRate, "plausible generated grids convert fully")
	for _, group := range result.Groups {
		assert.Equal(t, stats.GroupComplete, group.OverallQuality)
		for _, rec := range group.Records {
			assert.True(t, rec.Converted(), "%s/%s did not convert", rec.Group, rec.Indicator)
			assert.Equal(t, rec.Declared, rec.Detection.Type,
				"plausible declared types are honored")
			assert.GreaterOrEqual(t, rec.Detection.Confidence, 0.5)
		}
	}
}

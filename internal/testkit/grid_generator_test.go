package testkit

import (
	"math"
	"path/filepath"
	"testing"

	"errbar/adapters/excel"
	"errbar/domain/grid"
)

func TestGridGenerator_Deterministic(t *testing.T) {
	a := NewGridGenerator(DefaultGridConfig()).Generate()
	b := NewGridGenerator(DefaultGridConfig()).Generate()

	if len(a.Groups) != len(b.Groups) {
		t.Fatalf("group counts differ: %d vs %d", len(a.Groups), len(b.Groups))
	}
	for gi := range a.Groups {
		for oi := range a.Groups[gi].Observations {
			oa, ob := a.Groups[gi].Observations[oi], b.Groups[gi].Observations[oi]
			if oa.Mean != ob.Mean || oa.ErrorBar != ob.ErrorBar || oa.ErrorType != ob.ErrorType {
				t.Errorf("same seed produced different observations: %+v vs %+v", oa, ob)
			}
		}
	}
}

func TestGridGenerator_Plausible(t *testing.T) {
	config := DefaultGridConfig()
	doc := NewGridGenerator(config).Generate()

	if len(doc.Groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(doc.Groups))
	}
	for _, series := range doc.Groups {
		if len(series.Observations) != config.IndicatorCount {
			t.Fatalf("group %s has %d observations, want %d",
				series.Name, len(series.Observations), config.IndicatorCount)
		}
		for _, obs := range series.Observations {
			if !obs.Complete() {
				t.Errorf("%s/%s incomplete with missing rate 0", series.Name, obs.Indicator)
			}
			if obs.Mean < config.MeanLow || obs.Mean > config.MeanHigh {
				t.Errorf("%s/%s mean %f outside [%f, %f]",
					series.Name, obs.Indicator, obs.Mean, config.MeanLow, config.MeanHigh)
			}
			if obs.ErrorBar <= 0 {
				t.Errorf("%s/%s error bar %f not positive", series.Name, obs.Indicator, obs.ErrorBar)
			}
			n := int(obs.SampleSize)
			if n < config.SampleSizeLow || n > config.SampleSizeHigh {
				t.Errorf("%s/%s sample size %d outside [%d, %d]",
					series.Name, obs.Indicator, n, config.SampleSizeLow, config.SampleSizeHigh)
			}
		}
	}
}

func TestGridGenerator_MissingRate(t *testing.T) {
	config := DefaultGridConfig()
	config.IndicatorCount = 50
	config.MissingRate = 0.3
	doc := NewGridGenerator(config).Generate()

	incomplete := 0
	total := 0
	for _, series := range doc.Groups {
		for _, obs := range series.Observations {
			total++
			if !obs.Complete() {
				incomplete++
			}
		}
	}
	if incomplete == 0 {
		t.Error("missing rate 0.3 produced no incomplete observations")
	}
	if incomplete == total {
		t.Error("missing rate 0.3 blanked every observation")
	}
}

func TestGridGenerator_CSVRoundTrip(t *testing.T) {
	gen := NewGridGenerator(DefaultGridConfig())
	doc := gen.Generate()

	path := filepath.Join(t.TempDir(), "generated.csv")
	if err := gen.WriteCSV(doc, path); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	read, err := excel.NewGridSource().ReadGrid(path)
	if err != nil {
		t.Fatalf("ReadGrid: %v", err)
	}

	assertSameGrid(t, doc, read)
}

func TestGridGenerator_AsymmetricRoundTrip(t *testing.T) {
	config := DefaultGridConfig()
	config.ErrorTypes = []string{"ASYMMETRIC"}
	gen := NewGridGenerator(config)
	doc := gen.Generate()

	path := filepath.Join(t.TempDir(), "asym.csv")
	if err := gen.WriteCSV(doc, path); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	read, err := excel.NewGridSource().ReadGrid(path)
	if err != nil {
		t.Fatalf("ReadGrid: %v", err)
	}

	assertSameGrid(t, doc, read)
	for _, series := range read.Groups {
		for _, obs := range series.Observations {
			if !obs.Asymmetric {
				t.Errorf("%s/%s lost the asymmetric flag", series.Name, obs.Indicator)
			}
		}
	}
}

func TestGridGenerator_MissingCellsRoundTrip(t *testing.T) {
	config := DefaultGridConfig()
	config.IndicatorCount = 20
	config.MissingRate = 0.4
	gen := NewGridGenerator(config)
	doc := gen.Generate()

	path := filepath.Join(t.TempDir(), "sparse.csv")
	if err := gen.WriteCSV(doc, path); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	read, err := excel.NewGridSource().ReadGrid(path)
	if err != nil {
		t.Fatalf("ReadGrid: %v", err)
	}

	assertSameGrid(t, doc, read)
}

// assertSameGrid compares the data cells of two documents. Bounds are
// checked only for asymmetric observations: the reader leaves them NaN
// on plain cells.
func assertSameGrid(t *testing.T, want, got *grid.Document) {
	t.Helper()

	if len(got.Groups) != len(want.Groups) {
		t.Fatalf("groups = %d, want %d", len(got.Groups), len(want.Groups))
	}
	for gi := range want.Groups {
		ws, gs := want.Groups[gi], got.Groups[gi]
		if gs.Name != ws.Name {
			t.Fatalf("group %d name = %q, want %q", gi, gs.Name, ws.Name)
		}
		if len(gs.Observations) != len(ws.Observations) {
			t.Fatalf("group %s observations = %d, want %d", ws.Name, len(gs.Observations), len(ws.Observations))
		}
		for oi := range ws.Observations {
			wantObs, gotObs := ws.Observations[oi], gs.Observations[oi]
			if gotObs.Indicator != wantObs.Indicator {
				t.Errorf("%s[%d] indicator = %q, want %q", ws.Name, oi, gotObs.Indicator, wantObs.Indicator)
			}
			assertSameCell(t, ws.Name, wantObs.Indicator, "mean", wantObs.Mean, gotObs.Mean)
			assertSameCell(t, ws.Name, wantObs.Indicator, "error bar", wantObs.ErrorBar, gotObs.ErrorBar)
			assertSameCell(t, ws.Name, wantObs.Indicator, "sample size", wantObs.SampleSize, gotObs.SampleSize)
			if gotObs.ErrorType != wantObs.ErrorType {
				t.Errorf("%s/%s error type = %q, want %q", ws.Name, wantObs.Indicator, gotObs.ErrorType, wantObs.ErrorType)
			}
			if gotObs.Asymmetric != wantObs.Asymmetric {
				t.Errorf("%s/%s asymmetric = %v, want %v", ws.Name, wantObs.Indicator, gotObs.Asymmetric, wantObs.Asymmetric)
			}
			if wantObs.Asymmetric {
				assertSameCell(t, ws.Name, wantObs.Indicator, "upper bound", wantObs.UpperBound, gotObs.UpperBound)
				assertSameCell(t, ws.Name, wantObs.Indicator, "lower bound", wantObs.LowerBound, gotObs.LowerBound)
			}
		}
	}
}

func assertSameCell(t *testing.T, group, indicator, field string, want, got float64) {
	t.Helper()
	if math.IsNaN(want) && math.IsNaN(got) {
		return
	}
	if got != want {
		t.Errorf("%s/%s %s = %v, want %v", group, indicator, field, got, want)
	}
}

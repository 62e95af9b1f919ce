package grid

import (
	"math"

	"errbar/domain/stats"
)

// Document is one parsed measurement grid: an ordered list of cohort
// blocks sharing the same row layout. It is an in-memory parse product,
// never serialized directly.
type Document struct {
	Source string
	Groups []GroupSeries
}

// GroupSeries is one cohort block. Observations line up with the
// Indicators slice by position.
type GroupSeries struct {
	Name         string
	Indicators   []string
	Observations []Observation
}

// Observation is one indicator column within a cohort block. Missing
// numeric cells are NaN, never zero: a zero sample size is real data.
type Observation struct {
	Indicator  string
	Mean       float64
	ErrorBar   float64
	ErrorType  string
	SampleSize float64

	// Asymmetric bounds as written, retained for reference when the
	// cell came in upper/lower form.
	Asymmetric bool
	UpperBound float64
	LowerBound float64
}

// Group returns the first cohort block with the given name.
func (d *Document) Group(name string) (*GroupSeries, bool) {
	for i := range d.Groups {
		if d.Groups[i].Name == name {
			return &d.Groups[i], true
		}
	}
	return nil, false
}

// GroupNames lists cohort names in document order.
func (d *Document) GroupNames() []string {
	names := make([]string, len(d.Groups))
	for i, g := range d.Groups {
		names[i] = g.Name
	}
	return names
}

// Observation returns the named indicator column within the block.
func (g *GroupSeries) Observation(indicator string) (*Observation, bool) {
	for i := range g.Observations {
		if g.Observations[i].Indicator == indicator {
			return &g.Observations[i], true
		}
	}
	return nil, false
}

// Complete reports whether all four cells of the observation are
// filled. Incomplete observations are analyzed but never converted.
func (o Observation) Complete() bool {
	return !math.IsNaN(o.Mean) &&
		!math.IsNaN(o.ErrorBar) &&
		o.ErrorType != "" &&
		!math.IsNaN(o.SampleSize)
}

// Measurement adapts the observation to the detector's input tuple.
func (o Observation) Measurement() stats.Measurement {
	return stats.Measurement{
		Mean:       o.Mean,
		ErrorBar:   o.ErrorBar,
		Declared:   o.ErrorType,
		SampleSize: o.SampleSize,
	}
}

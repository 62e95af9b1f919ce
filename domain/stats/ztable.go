package stats

// zScores maps the supported confidence levels onto their critical
// values. The set is deliberately closed: every downstream consumer
// (intervals, comparisons, exports) works off the same three levels.
var zScores = map[float64]float64{
	0.90: 1.645,
	0.95: 1.96,
	0.99: 2.576,
}

// ZScoreFor returns the critical z value for a confidence level.
// Levels outside the table fall back to the 95% value.
func ZScoreFor(confidenceLevel float64) float64 {
	if z, ok := zScores[confidenceLevel]; ok {
		return z
	}
	return 1.96
}

package ports

import (
	"errbar/domain/stats"
)

// ExporterPort renders run output to result files on disk. Paths of
// the written files are returned so callers can report them.
// comparisons may be nil when no comparison pass ran.
type ExporterPort interface {
	// SaveWorkbook writes the multi-sheet Excel result workbook
	SaveWorkbook(result *stats.RunResult, comparisons *stats.ComparisonSet, outputDir, baseName string) (string, error)

	// SaveSummaryCSV writes the flat per-indicator summary table
	SaveSummaryCSV(result *stats.RunResult, outputDir, baseName string) (string, error)

	// SaveMetaFormats writes meta-analysis exchange files keyed by
	// format name (universal, revman, r)
	SaveMetaFormats(result *stats.RunResult, comparisons *stats.ComparisonSet, outputDir string) (map[string]string, error)
}

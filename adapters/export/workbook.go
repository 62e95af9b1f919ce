package export

import (
	"fmt"
	"log"
	"math"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"

	"errbar/domain/stats"
	apperrors "errbar/internal/errors"
)

// ResultExporter writes run results to files under an output
// directory. It implements ports.ExporterPort.
type ResultExporter struct{}

// NewResultExporter creates a result exporter
func NewResultExporter() *ResultExporter {
	return &ResultExporter{}
}

// SaveWorkbook writes the multi-sheet result workbook. Sheets with no
// rows are omitted; the summary sheet is always present.
func (e *ResultExporter) SaveWorkbook(result *stats.RunResult, comparisons *stats.ComparisonSet, outputDir, baseName string) (string, error) {
	if err := ensureResultsDir(outputDir); err != nil {
		return "", apperrors.ExportError(outputDir, err)
	}
	path := availableFilename(filepath.Join(outputDir, baseName+".xlsx"))

	f := excelize.NewFile()
	w := &sheetWriter{file: f}

	if rows := conversionRows(result); len(rows) > 0 {
		header := []string{"Group", "Indicator", "Mean", "SD", "Sample_Size",
			"Error_Bar_Type", "Declared_Type", "Confidence", "Conversion_Method"}
		if err := w.addSheet("conversions", header, rows); err != nil {
			return "", apperrors.ExportError(path, err)
		}
	}

	if comparisons != nil && len(comparisons.Comparisons) > 0 {
		header := []string{"Comparison", "Indicator", "Delta_Mean", "SD_diff",
			"95%_CI_Lower", "95%_CI_Upper", "Cohens_d", "Hedges_g",
			"P_Value", "Significant", "Interpretation"}
		if err := w.addSheet("comparisons", header, comparisonRows(comparisons)); err != nil {
			return "", apperrors.ExportError(path, err)
		}
	}

	if rows := qualityRows(result); len(rows) > 0 {
		if err := w.addSheet("quality", []string{"Group", "Total_Indicators", "Overall_Quality"}, rows); err != nil {
			return "", apperrors.ExportError(path, err)
		}
	}

	if err := w.addSheet("summary", []string{"item", "value"}, summaryRows(result, comparisons)); err != nil {
		return "", apperrors.ExportError(path, err)
	}

	if recs := result.Summary.Recommendations; len(recs) > 0 {
		rows := make([][]any, len(recs))
		for i, rec := range recs {
			rows[i] = []any{rec}
		}
		if err := w.addSheet("recommendations", []string{"recommendation"}, rows); err != nil {
			return "", apperrors.ExportError(path, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return "", apperrors.ExportError(path, err)
	}
	log.Printf("[Exporter] workbook saved: %s", path)
	return path, nil
}

// sheetWriter renames the default Sheet1 on first use so the workbook
// opens on the first sheet actually written
type sheetWriter struct {
	file  *excelize.File
	count int
}

func (w *sheetWriter) addSheet(name string, header []string, rows [][]any) error {
	if w.count == 0 {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return err
		}
	} else {
		if _, err := w.file.NewSheet(name); err != nil {
			return err
		}
	}
	w.count++

	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := w.file.SetCellValue(name, cell, h); err != nil {
			return err
		}
	}
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := w.file.SetCellValue(name, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func conversionRows(result *stats.RunResult) [][]any {
	var rows [][]any
	for _, group := range result.Groups {
		for _, rec := range group.Records {
			if !rec.Converted() {
				continue
			}
			rows = append(rows, []any{
				group.Group,
				rec.Indicator,
				roundTo(rec.Conversion.Mean, 4),
				roundTo(rec.Conversion.SD, 4),
				rec.Conversion.SampleSize,
				string(rec.Detection.Type),
				string(rec.Declared),
				roundTo(rec.Detection.Confidence, 3),
				rec.Conversion.Method,
			})
		}
	}
	return rows
}

func comparisonRows(set *stats.ComparisonSet) [][]any {
	rows := make([][]any, 0, len(set.Comparisons))
	for _, comp := range set.Comparisons {
		significant := "No"
		if comp.Result.Significant {
			significant = "Yes"
		}
		rows = append(rows, []any{
			fmt.Sprintf("%s vs %s", comp.Group1, comp.Group2),
			comp.Indicator,
			comp.Result.DeltaMean,
			comp.Result.SDDiff,
			comp.Result.CILower,
			comp.Result.CIUpper,
			comp.Result.CohensD,
			comp.Result.HedgesG,
			comp.Result.PValue,
			significant,
			comp.Result.Interpretation,
		})
	}
	return rows
}

func qualityRows(result *stats.RunResult) [][]any {
	rows := make([][]any, 0, len(result.Groups))
	for _, group := range result.Groups {
		rows = append(rows, []any{group.Group, group.IndicatorCount, string(group.OverallQuality)})
	}
	return rows
}

func summaryRows(result *stats.RunResult, comparisons *stats.ComparisonSet) [][]any {
	s := result.Summary
	rows := [][]any{
		{"total_groups", s.TotalGroups},
		{"total_indicators", s.TotalIndicators},
		{"successful_conversions", s.SuccessfulConversions},
		{"conversion_rate", fmt.Sprintf("%.1f%%", s.ConversionRate*100)},
		{"processed_at", s.StartedAt.Time().Format("2006-01-02 15:04:05")},
	}

	types := make([]stats.ErrorBarType, 0, len(s.TypeDistribution))
	for t := range s.TypeDistribution {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		rows = append(rows, []any{fmt.Sprintf("error_type_%s", t), s.TypeDistribution[t]})
	}

	if comparisons != nil {
		rows = append(rows,
			[]any{"total_comparisons", comparisons.Total},
			[]any{"significant_comparisons", comparisons.Significant},
			[]any{"comparison_type", comparisons.ComparisonType},
			[]any{"confidence_level", fmt.Sprintf("%.1f%%", comparisons.ConfidenceLevel*100)},
		)
	}
	return rows
}

func roundTo(x float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(x*p) / p
}

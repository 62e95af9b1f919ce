package export

import (
	"encoding/csv"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"errbar/domain/stats"
	apperrors "errbar/internal/errors"
)

// SaveSummaryCSV writes the flat per-indicator table of converted
// values, one row per successful conversion
func (e *ResultExporter) SaveSummaryCSV(result *stats.RunResult, outputDir, baseName string) (string, error) {
	if err := ensureResultsDir(outputDir); err != nil {
		return "", apperrors.ExportError(outputDir, err)
	}
	path := availableFilename(filepath.Join(outputDir, baseName+"_summary.csv"))

	rows := [][]string{{"Group", "Indicator", "Mean", "SD", "Sample_Size",
		"Error_Bar_Type", "Conversion_Method", "Confidence"}}
	for _, group := range result.Groups {
		for _, rec := range group.Records {
			if !rec.Converted() {
				continue
			}
			rows = append(rows, []string{
				group.Group,
				rec.Indicator,
				formatNum(roundTo(rec.Conversion.Mean, 4)),
				formatNum(roundTo(rec.Conversion.SD, 4)),
				strconv.Itoa(rec.Conversion.SampleSize),
				string(rec.Detection.Type),
				rec.Conversion.Method,
				formatNum(roundTo(rec.Detection.Confidence, 3)),
			})
		}
	}

	if err := writeCSVFile(path, rows); err != nil {
		return "", err
	}
	log.Printf("[Exporter] summary csv saved: %s", path)
	return path, nil
}

// SaveMetaFormats writes exchange files for downstream meta-analysis
// tools: a universal CSV, a RevMan import sheet and, when comparisons
// ran, an R meta package frame
func (e *ResultExporter) SaveMetaFormats(result *stats.RunResult, comparisons *stats.ComparisonSet, outputDir string) (map[string]string, error) {
	if err := ensureResultsDir(outputDir); err != nil {
		return nil, apperrors.ExportError(outputDir, err)
	}
	files := make(map[string]string)

	universalPath := availableFilename(filepath.Join(outputDir, "meta_universal.csv"))
	if err := writeCSVFile(universalPath, universalRows(result, comparisons)); err != nil {
		return nil, err
	}
	files["universal"] = universalPath

	revmanPath := availableFilename(filepath.Join(outputDir, "meta_revman.csv"))
	if err := writeCSVFile(revmanPath, revmanRows(result)); err != nil {
		return nil, err
	}
	files["revman"] = revmanPath

	if comparisons != nil {
		rPath := availableFilename(filepath.Join(outputDir, "meta_r.csv"))
		if err := writeCSVFile(rPath, rMetaRows(comparisons)); err != nil {
			return nil, err
		}
		files["r_meta"] = rPath
	}

	log.Printf("[Exporter] meta-analysis formats saved: %d files", len(files))
	return files, nil
}

// universalRows lays out one row per intervention/baseline comparison.
// Without comparisons it falls back to the raw converted values so the
// file is still useful for manual effect size work.
func universalRows(result *stats.RunResult, comparisons *stats.ComparisonSet) [][]string {
	if comparisons != nil && len(comparisons.Comparisons) > 0 {
		rows := [][]string{{
			"Study_ID", "Comparison_Type", "Intervention_Mean", "Intervention_SD", "Intervention_N",
			"Control_Mean", "Control_SD", "Control_N", "Mean_Difference", "SD_Difference",
			"Effect_Size_Cohens_d", "Effect_Size_Hedges_g", "SE_Mean_Diff",
			"95_CI_Lower", "95_CI_Upper", "P_Value", "Significant",
			"Error_Bar_Type", "Conversion_Method", "Notes",
		}}
		for _, comp := range comparisons.Comparisons {
			if !strings.Contains(string(comp.ID), "Intervention_vs_Baseline") {
				continue
			}
			g1, g2 := comp.Group1Record.Conversion, comp.Group2Record.Conversion
			significant := "No"
			if comp.Result.Significant {
				significant = "Yes"
			}
			rows = append(rows, []string{
				comp.Indicator,
				"Intervention-Baseline",
				formatNum(g1.Mean), formatNum(g1.SD), strconv.Itoa(g1.SampleSize),
				formatNum(g2.Mean), formatNum(g2.SD), strconv.Itoa(g2.SampleSize),
				formatNum(comp.Result.DeltaMean), formatNum(comp.Result.SDDiff),
				formatNum(comp.Result.CohensD), formatNum(comp.Result.HedgesG),
				formatNum(comp.Result.SDDiff),
				formatNum(comp.Result.CILower), formatNum(comp.Result.CIUpper),
				formatNum(comp.Result.PValue), significant,
				string(comp.Group1Record.Detection.Type),
				g1.Method,
				comp.Result.Interpretation,
			})
		}
		return rows
	}

	rows := [][]string{{"Study_ID", "Group", "Mean", "SD", "Sample_Size",
		"Error_Bar_Type", "Conversion_Method", "Confidence"}}
	for _, group := range result.Groups {
		for _, rec := range group.Records {
			if !rec.Converted() {
				continue
			}
			rows = append(rows, []string{
				rec.Indicator,
				group.Group,
				formatNum(rec.Conversion.Mean),
				formatNum(rec.Conversion.SD),
				strconv.Itoa(rec.Conversion.SampleSize),
				string(rec.Detection.Type),
				rec.Conversion.Method,
				formatNum(rec.Detection.Confidence),
			})
		}
	}
	return rows
}

// revmanRows pairs baseline and intervention conversions by position,
// the layout RevMan imports directly
func revmanRows(result *stats.RunResult) [][]string {
	rows := [][]string{{"Study_ID", "Intervention_Mean", "Intervention_SD", "Intervention_N",
		"Control_Mean", "Control_SD", "Control_N"}}

	baseline := convertedRecords(result, "Baseline", "基线组")
	intervention := convertedRecords(result, "Intervention", "干预组")
	for i, base := range baseline {
		if i >= len(intervention) {
			break
		}
		inter := intervention[i]
		rows = append(rows, []string{
			base.Indicator,
			formatNum(inter.Conversion.Mean), formatNum(inter.Conversion.SD), strconv.Itoa(inter.Conversion.SampleSize),
			formatNum(base.Conversion.Mean), formatNum(base.Conversion.SD), strconv.Itoa(base.Conversion.SampleSize),
		})
	}
	return rows
}

// rMetaRows lays out the frame the R meta package reads with
// metacont: treatment effect, its standard error and both arms
func rMetaRows(comparisons *stats.ComparisonSet) [][]string {
	rows := [][]string{{"Study", "TE", "seTE", "n.e", "n.c", "mean.e", "sd.e", "mean.c", "sd.c"}}
	for _, comp := range comparisons.Comparisons {
		if !strings.Contains(string(comp.ID), "Intervention_vs_Baseline") {
			continue
		}
		g1, g2 := comp.Group1Record.Conversion, comp.Group2Record.Conversion
		rows = append(rows, []string{
			comp.Indicator,
			formatNum(comp.Result.DeltaMean), formatNum(comp.Result.SDDiff),
			strconv.Itoa(g1.SampleSize), strconv.Itoa(g2.SampleSize),
			formatNum(g1.Mean), formatNum(g1.SD),
			formatNum(g2.Mean), formatNum(g2.SD),
		})
	}
	return rows
}

// convertedRecords returns the successfully converted records of the
// first group matching any alias, in indicator order
func convertedRecords(result *stats.RunResult, aliases ...string) []stats.IndicatorRecord {
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

func writeCSVFile(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return apperrors.ExportError(path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return apperrors.ExportError(path, err)
		}
	}
	return w.Error()
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

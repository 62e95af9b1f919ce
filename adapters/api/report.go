package api

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"errbar/domain/stats"
)

// buildRunReport renders one recorded run as a Markdown document:
// header numbers, a conversion table per group, the comparison table
// when comparisons were recorded, and the recommendation list.
func buildRunReport(result *stats.RunResult, comparisons *stats.ComparisonSet) []byte {
	var b strings.Builder
	s := result.Summary

	fmt.Fprintf(&b, "# Error Bar Conversion Report\n\n")
	fmt.Fprintf(&b, "- **Run**: %s\n", s.RunID)
	fmt.Fprintf(&b, "- **Source**: %s\n", s.Source)
	fmt.Fprintf(&b, "- **Started**: %s\n", s.StartedAt.Time().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- **Groups**: %d\n", s.TotalGroups)
	fmt.Fprintf(&b, "- **Conversions**: %d/%d (%.1f%%)\n\n", s.SuccessfulConversions, s.TotalIndicators, s.ConversionRate*100)

	for _, group := range result.Groups {
		fmt.Fprintf(&b, "## Group: %s\n\n", group.Group)
		fmt.Fprintf(&b, "Overall quality: %s\n\n", group.OverallQuality)
		b.WriteString("| Indicator | Mean | SD | N | Type | Confidence | Method |\n")
		b.WriteString("|---|---|---|---|---|---|---|\n")
		for _, rec := range group.Records {
			if rec.Converted() {
				fmt.Fprintf(&b, "| %s | %s | %s | %d | %s | %s | %s |\n",
					rec.Indicator,
					reportNum(rec.Conversion.Mean), reportNum(rec.Conversion.SD),
					rec.Conversion.SampleSize, rec.Detection.Type,
					reportNum(rec.Detection.Confidence), rec.Conversion.Method)
			} else {
				fmt.Fprintf(&b, "| %s | - | - | - | %s | %s | failed: %s |\n",
					rec.Indicator, rec.Detection.Type,
					reportNum(rec.Detection.Confidence), rec.FailureReason)
			}
		}
		b.WriteString("\n")
	}

	if len(s.TypeDistribution) > 0 {
		b.WriteString("## Detected Types\n\n")
		b.WriteString("| Type | Count |\n|---|---|\n")
		types := make([]string, 0, len(s.TypeDistribution))
		for t := range s.TypeDistribution {
			types = append(types, string(t))
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(&b, "| %s | %d |\n", t, s.TypeDistribution[stats.ErrorBarType(t)])
		}
		b.WriteString("\n")
	}

	if comparisons != nil && comparisons.Total > 0 {
		fmt.Fprintf(&b, "## Comparisons\n\n")
		fmt.Fprintf(&b, "%d of %d significant at %.0f%% confidence (%s)\n\n",
			comparisons.Significant, comparisons.Total,
			comparisons.ConfidenceLevel*100, comparisons.ComparisonType)
		b.WriteString("| Comparison | Indicator | Delta Mean | CI | Cohen's d | P | Significant |\n")
		b.WriteString("|---|---|---|---|---|---|---|\n")
		for _, comp := range comparisons.Comparisons {
			verdict := "No"
			if comp.Result.Significant {
				verdict = "Yes"
			}
			fmt.Fprintf(&b, "| %s vs %s | %s | %s | [%s, %s] | %s | %s | %s |\n",
				comp.Group1, comp.Group2, comp.Indicator,
				reportNum(comp.Result.DeltaMean),
				reportNum(comp.Result.CILower), reportNum(comp.Result.CIUpper),
				reportNum(comp.Result.CohensD), reportNum(comp.Result.PValue), verdict)
		}
		b.WriteString("\n")
	}

	if len(s.Recommendations) > 0 {
		b.WriteString("## Recommendations\n\n")
		for _, rec := range s.Recommendations {
			fmt.Fprintf(&b, "- %s\n", rec)
		}
		b.WriteString("\n")
	}

	return []byte(b.String())
}

// renderReportPage converts the Markdown report to a standalone HTML
// page.
func renderReportPage(md []byte) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	body := markdown.Render(p.Parse(md), renderer)

	var page strings.Builder
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	page.WriteString("<title>Error Bar Conversion Report</title>\n<style>\n")
	page.WriteString("body { font-family: sans-serif; margin: 2rem auto; max-width: 64rem; }\n")
	page.WriteString("table { border-collapse: collapse; }\n")
	page.WriteString("th, td { border: 1px solid #999; padding: 0.3rem 0.6rem; }\n")
	page.WriteString("</style>\n</head>\n<body>\n")
	page.Write(body)
	page.WriteString("</body>\n</html>\n")
	return []byte(page.String())
}

func reportNum(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e4)/1e4, 'f', -1, 64)
}

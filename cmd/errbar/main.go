package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"errbar/adapters/api"
	"errbar/adapters/excel"
	"errbar/adapters/export"
	"errbar/adapters/ledger"
	"errbar/adapters/stats/compare"
	"errbar/adapters/stats/detector"
	"errbar/adapters/stats/engine"
	"errbar/app"
	"errbar/domain/stats"
	"errbar/internal/config"
	"errbar/ports"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "errbar",
		Short: "Error bar conversion tool for bar chart data",
		Long: `Normalize published bar chart data (Mean plus an error bar of any
common type) to Mean±SD, compare groups, and export meta-analysis
ready files.

Workflow:
  1. errbar template            generate an empty grid
  2. fill the grid, save as data.csv
  3. errbar convert data.csv    analyze and export

Supported error bar types: SE, SD, CI95, CI99, 2SE`,
	}

	rootCmd.AddCommand(
		newTemplateCmd(),
		newConvertCmd(),
		newCompareCmd(),
		newHistoryCmd(),
		newServeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newTemplateCmd() *cobra.Command {
	var indicators int
	var out string
	var xlsx bool

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Generate an empty measurement grid template",
		Long: `Generate a grid template with Baseline and Intervention blocks.

Example: errbar template --indicators 6 --out mystudy.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = "template.csv"
				if xlsx {
					out = "template.xlsx"
				}
			}
			return runTemplate(out, indicators)
		},
	}

	cmd.Flags().IntVar(&indicators, "indicators", 4, "Number of indicator columns")
	cmd.Flags().StringVar(&out, "out", "", "Output file, .csv or .xlsx (default: template.csv)")
	cmd.Flags().BoolVar(&xlsx, "xlsx", false, "Write an Excel template instead of CSV")

	return cmd
}

func runTemplate(out string, indicators int) error {
	if err := excel.NewTemplateWriter().Write(out, indicators); err != nil {
		return err
	}
	fmt.Printf("✓ template written: %s\n", out)
	fmt.Printf("  %d indicator columns per group\n", indicators)
	fmt.Printf("  fill the grid and run: errbar convert %s\n", out)
	return nil
}

// convertOptions carries the convert/compare command flags
type convertOptions struct {
	compareGroups   bool
	comparisonType  string
	confidenceLevel float64
	confidenceSet   bool
	metaFormat      bool
	jsonOut         bool
	verbose         bool
	outputDir       string
	outputName      string
	noCSV           bool
	noLedger        bool
}

func addConvertFlags(cmd *cobra.Command, opts *convertOptions) {
	cmd.Flags().StringVar(&opts.comparisonType, "comparison-type", app.ComparisonInterventionBaseline,
		"Comparison type: all or intervention-baseline")
	cmd.Flags().Float64Var(&opts.confidenceLevel, "confidence-level", 0.95, "Confidence level for comparisons")
	cmd.Flags().BoolVar(&opts.metaFormat, "meta-analysis-format", false, "Export meta-analysis import files")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the run payload as JSON")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "Verbose output")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "Output directory (default: results)")
	cmd.Flags().StringVar(&opts.outputName, "output-name", "", "Output file base name (default: bar_results)")
	cmd.Flags().BoolVar(&opts.noCSV, "no-csv", false, "Skip the CSV summary file")
	cmd.Flags().BoolVar(&opts.noLedger, "no-ledger", false, "Skip recording the run in the ledger")
}

func newConvertCmd() *cobra.Command {
	var opts convertOptions

	cmd := &cobra.Command{
		Use:   "convert FILE",
		Short: "Convert a measurement grid to Mean±SD and export results",
		Long: `Analyze a filled grid (.csv or .xlsx): detect the error bar type of
every indicator, convert to Mean±SD, validate, and export the workbook
and summary files.

Example: errbar convert data.csv --compare-groups --meta-analysis-format`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.confidenceSet = cmd.Flags().Changed("confidence-level")
			return runConvert(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.compareGroups, "compare-groups", false, "Compare the Intervention and Baseline groups")
	addConvertFlags(cmd, &opts)

	return cmd
}

func newCompareCmd() *cobra.Command {
	var opts convertOptions
	opts.compareGroups = true

	cmd := &cobra.Command{
		Use:   "compare FILE",
		Short: "Convert a grid and compare the Intervention and Baseline groups",
		Long: `Shorthand for convert --compare-groups.

Example: errbar compare data.csv --confidence-level 0.99`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.confidenceSet = cmd.Flags().Changed("confidence-level")
			return runConvert(cmd.Context(), args[0], opts)
		},
	}

	addConvertFlags(cmd, &opts)

	return cmd
}

func runConvert(ctx context.Context, path string, opts convertOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.outputDir == "" {
		opts.outputDir = cfg.Output.ResultsDir
	}
	if opts.outputName == "" {
		opts.outputName = cfg.Output.BaseName
	}
	level := cfg.Analysis.ConfidenceLevel
	if opts.confidenceSet {
		level = opts.confidenceLevel
	}

	analysis := app.NewAnalysisService(excel.NewGridSource(), detector.NewDetector(), engine.NewStatsEngine(), cfg.Analysis.MaxWorkers)

	if !opts.jsonOut {
		fmt.Println("=== Error Bar Conversion ===")
		fmt.Printf("processing %s\n\n", path)
	}

	result, err := analysis.AnalyzeFile(ctx, path)
	if err != nil {
		return err
	}

	var comparisons *stats.ComparisonSet
	if opts.compareGroups {
		comparison := app.NewComparisonService(compare.NewGroupComparator(), engine.NewStatsEngine())
		comparisons = comparison.CompareGroups(result, opts.comparisonType, level)
	}

	if opts.jsonOut {
		payload := struct {
			Result      *stats.RunResult     `json:"result"`
			Comparisons *stats.ComparisonSet `json:"comparisons,omitempty"`
		}{result, comparisons}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(payload); err != nil {
			return err
		}
	} else {
		printResults(result, opts.verbose)
		if comparisons != nil {
			printComparisons(comparisons, opts.verbose)
		}
	}

	saveResults(result, comparisons, opts)

	if !opts.noLedger && !cfg.Ledger.Disabled {
		recordRun(ctx, cfg, result, comparisons)
	}

	return nil
}

// saveResults writes the export files. Failures are warnings: the
// analysis is already on screen, so a locked or read-only target must
// not fail the run.
func saveResults(result *stats.RunResult, comparisons *stats.ComparisonSet, opts convertOptions) {
	exporter := export.NewResultExporter()
	quiet := opts.jsonOut

	if !quiet {
		fmt.Println("\nsaving results...")
	}

	workbook, err := exporter.SaveWorkbook(result, comparisons, opts.outputDir, opts.outputName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: workbook not saved: %v\n", err)
	} else if !quiet {
		fmt.Printf("✓ workbook: %s\n", workbook)
	}

	if !opts.noCSV {
		summary, err := exporter.SaveSummaryCSV(result, opts.outputDir, opts.outputName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: summary CSV not saved: %v\n", err)
		} else if !quiet {
			fmt.Printf("✓ summary: %s\n", summary)
		}
	}

	if opts.metaFormat {
		files, err := exporter.SaveMetaFormats(result, comparisons, opts.outputDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: meta-analysis formats not saved: %v\n", err)
		} else if !quiet {
			fmt.Println("✓ meta-analysis formats:")
			names := make([]string, 0, len(files))
			for name := range files {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("  - %s: %s\n", name, files[name])
			}
		}
	}
}

// recordRun stores the run in the ledger. Like exports, a ledger
// problem is a warning, never a failed conversion.
func recordRun(ctx context.Context, cfg *config.Config, result *stats.RunResult, comparisons *stats.ComparisonSet) {
	led, err := ledger.Open(cfg.Ledger.Driver, cfg.Ledger.DSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: ledger unavailable: %v\n", err)
		return
	}
	defer led.Close()

	if err := led.Init(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: ledger init failed: %v\n", err)
		return
	}
	if err := led.RecordRun(ctx, result); err != nil {
		fmt.Fprintf(os.Stderr, "warning: run not recorded: %v\n", err)
		return
	}
	if comparisons != nil {
		if err := led.RecordComparisons(ctx, result.Summary.RunID, comparisons); err != nil {
			fmt.Fprintf(os.Stderr, "warning: comparisons not recorded: %v\n", err)
		}
	}
}

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of runs to list")

	return cmd
}

func runHistory(ctx context.Context, limit int) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Ledger.Disabled {
		return fmt.Errorf("the run ledger is disabled (LEDGER_DISABLED=true)")
	}

	led, err := ledger.Open(cfg.Ledger.Driver, cfg.Ledger.DSN)
	if err != nil {
		return err
	}
	defer led.Close()
	if err := led.Init(ctx); err != nil {
		return err
	}

	runs, err := led.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded yet")
		return nil
	}

	fmt.Printf("%-36s  %-19s  %-20s  %7s  %6s  %s\n",
		"RUN", "RECORDED", "SOURCE", "CONV", "RATE", "COMPARISONS")
	for _, run := range runs {
		fmt.Printf("%-36s  %-19s  %-20s  %3d/%-3d  %5.1f%%  %d\n",
			run.RunID,
			run.RecordedAt.Time().Format("2006-01-02 15:04:05"),
			run.Source,
			run.SuccessfulConversions, run.TotalIndicators,
			run.ConversionRate*100,
			run.Comparisons)
	}
	return nil
}

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the JSON API: detect, convert, compare, grid analysis by
upload, run history and the HTML run report.

Example: errbar serve --port 9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Listen port (default: 8080)")

	return cmd
}

func runServe(ctx context.Context, port string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if port == "" {
		port = cfg.Server.Port
	}

	analysis := app.NewAnalysisService(excel.NewGridSource(), detector.NewDetector(), engine.NewStatsEngine(), cfg.Analysis.MaxWorkers)
	comparison := app.NewComparisonService(compare.NewGroupComparator(), engine.NewStatsEngine())

	var led ports.LedgerPort
	if !cfg.Ledger.Disabled {
		runLedger, err := ledger.Open(cfg.Ledger.Driver, cfg.Ledger.DSN)
		if err != nil {
			return err
		}
		defer runLedger.Close()
		if err := runLedger.Init(ctx); err != nil {
			return err
		}
		led = runLedger
	}

	apiApp := api.NewApp(api.Config{
		Port:            port,
		ConfidenceLevel: cfg.Analysis.ConfidenceLevel,
	}, analysis, comparison, led)

	return apiApp.Start()
}

func printResults(result *stats.RunResult, verbose bool) {
	line := strings.Repeat("=", 60)
	summary := result.Summary

	fmt.Println(line)
	fmt.Println("Error Bar Analysis")
	fmt.Println(line)

	for _, group := range result.Groups {
		fmt.Printf("\n%s:\n", group.Group)
		for _, rec := range group.Records {
			status := "✓ complete"
			if !rec.Complete {
				status = "✗ incomplete"
			}
			fmt.Printf("  %s: %s\n", rec.Indicator, status)
			fmt.Printf("    declared: %s\n", rec.Declared)
			fmt.Printf("    detected: %s (confidence: %.2f)\n", rec.Detection.Type, rec.Detection.Confidence)
			if rec.FailureReason != "" && rec.Complete {
				fmt.Printf("    skipped: %s\n", rec.FailureReason)
			}
		}
		fmt.Printf("  overall quality: %s\n", group.OverallQuality)
	}

	fmt.Printf("\ndetected type distribution:\n")
	types := make([]string, 0, len(summary.TypeDistribution))
	for t := range summary.TypeDistribution {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Printf("  %s: %d\n", t, summary.TypeDistribution[stats.ErrorBarType(t)])
	}

	fmt.Printf("\nconversion rate: %.1f%% (%d/%d)\n",
		summary.ConversionRate*100, summary.SuccessfulConversions, summary.TotalIndicators)

	if len(summary.Recommendations) > 0 {
		fmt.Printf("\nrecommendations:\n")
		for _, rec := range summary.Recommendations {
			fmt.Printf("  • %s\n", rec)
		}
	}

	fmt.Println("\n" + line)
	fmt.Println("Conversion Results")
	fmt.Println(line)

	for _, group := range result.Groups {
		fmt.Printf("\n%s:\n", group.Group)
		for _, rec := range group.Records {
			if !rec.Converted() {
				continue
			}
			fmt.Printf("  %s: Mean=%.3f, SD=%.3f\n", rec.Indicator, rec.Conversion.Mean, rec.Conversion.SD)
			if verbose {
				fmt.Printf("    method: %s, type: %s, confidence: %.2f\n",
					rec.Conversion.Method, rec.Detection.Type, rec.Detection.Confidence)
			}
		}
	}
}

func printComparisons(set *stats.ComparisonSet, verbose bool) {
	line := strings.Repeat("=", 60)

	fmt.Println("\n" + line)
	fmt.Println("Group Comparison")
	fmt.Println(line)

	fmt.Printf("\ncomparison type: %s\n", set.ComparisonType)
	fmt.Printf("confidence level: %.1f%%\n", set.ConfidenceLevel*100)
	fmt.Printf("total comparisons: %d\n", set.Total)
	fmt.Printf("significant: %d\n", set.Significant)

	for _, comp := range set.Comparisons {
		fmt.Printf("\n%s vs %s (%s)\n", comp.Group1, comp.Group2, comp.Indicator)
		fmt.Printf("  delta mean = %.4f\n", comp.Result.DeltaMean)
		fmt.Printf("  sd diff = %.4f\n", comp.Result.SDDiff)
		fmt.Printf("  CI: [%.4f, %.4f]\n", comp.Result.CILower, comp.Result.CIUpper)
		fmt.Printf("  Cohen's d = %.4f\n", comp.Result.CohensD)
		fmt.Printf("  p = %.4f\n", comp.Result.PValue)
		marker := "○"
		if comp.Result.Significant {
			marker = "✓"
		}
		fmt.Printf("  %s %s\n", marker, comp.Result.Interpretation)
		if verbose {
			fmt.Printf("    Hedges' g = %.4f\n", comp.Result.HedgesG)
			fmt.Printf("    t = %.4f, df = %d\n", comp.Result.TStatistic, comp.Result.DegreesOfFreedom)
			fmt.Printf("    effect size: %s (pooled SD %.4f)\n", comp.Effects.Interpretation, comp.Effects.PooledSD)
		}
	}
}

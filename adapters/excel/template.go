package excel

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "errbar/internal/errors"
)

// TemplateWriter emits fill-in grids for data entry
type TemplateWriter struct{}

// NewTemplateWriter creates a new template writer
func NewTemplateWriter() *TemplateWriter {
	return &TemplateWriter{}
}

// Write creates a blank grid with the given indicator count at path.
// Format follows the extension, Excel by default.
func (w *TemplateWriter) Write(path string, indicatorCount int) error {
	if indicatorCount < 1 {
		return apperrors.InvalidInput(fmt.Sprintf("indicator count must be at least 1, got %d", indicatorCount))
	}

	rows := templateRows(indicatorCount)

	if strings.ToLower(filepath.Ext(path)) == ".csv" {
		return writeCSVTemplate(path, rows)
	}
	return writeXLSXTemplate(path, rows)
}

// templateRows lays out the comment banner and two empty cohort blocks
func templateRows(indicatorCount int) [][]string {
	var rows [][]string

	rows = append(rows,
		[]string{"# Error bar grid input template"},
		[]string{"# Error bar types: SE (standard error), SD (standard deviation), CI95 (95% confidence interval), CI99 (99% confidence interval), 2SE (double standard error), ASYMMETRIC (asymmetric bounds)"},
		[]string{"# Asymmetric format: upper/lower (for example: 1.5/0.8)"},
		[]string{"# Fill the Error_Type row with one of the types above"},
		[]string{""},
	)

	appendBlock := func(groupName string) {
		header := make([]string, 0, indicatorCount+1)
		header = append(header, groupName)
		for i := 0; i < indicatorCount; i++ {
			header = append(header, fmt.Sprintf("Indicator%d", i+1))
		}
		rows = append(rows, header)

		for _, label := range []string{"Mean", "Error_Bar", "Error_Type", "Sample_Size"} {
			row := make([]string, indicatorCount+1)
			row[0] = label
			rows = append(rows, row)
		}
	}

	appendBlock("Baseline")
	rows = append(rows, make([]string, indicatorCount+1))
	appendBlock("Intervention")

	return rows
}

func writeCSVTemplate(path string, rows [][]string) error {
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

func writeXLSXTemplate(path string, rows [][]string) error {
	f := excelize.NewFile()

	sheet := "Sheet1"
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx == -1 {
		idx, err := f.NewSheet(sheet)
		if err != nil {
			return apperrors.ExportError(path, err)
		}
		f.SetActiveSheet(idx)
	}

	for r, row := range rows {
		for c, v := range row {
			if v == "" {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return apperrors.ExportError(path, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return apperrors.ExportError(path, err)
	}
	return nil
}

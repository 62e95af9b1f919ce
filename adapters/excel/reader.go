package excel

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"errbar/domain/grid"
	apperrors "errbar/internal/errors"
)

// Row labels recognized inside a cohort block. Chinese aliases are
// accepted as data and normalized to the English canonical form.
var dataLabels = map[string]string{
	"Mean":        "Mean",
	"Error_Bar":   "Error_Bar",
	"Error_Type":  "Error_Type",
	"Sample_Size": "Sample_Size",
	"均值":          "Mean",
	"误差线":         "Error_Bar",
	"误差类型":        "Error_Type",
	"样本量":         "Sample_Size",
}

// DataReader handles reading measurement grids from Excel and CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewDataReader creates a new grid reader that handles both Excel and CSV files
func NewDataReader(filePath string) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &DataReader{filePath: filePath, fileType: fileType}
}

// ReadGrid reads the grid into ordered cohort blocks.
//
// Layout: a row whose first cell is neither a recognized data label nor
// a # comment opens a cohort block and names the indicator columns; the
// Mean / Error_Bar / Error_Type / Sample_Size rows that follow fill it;
// a blank row closes it. Unparseable numeric cells become missing
// values, never zeros.
func (r *DataReader) ReadGrid() (*grid.Document, error) {
	log.Printf("[DataReader] reading %s grid: %s", r.fileType, r.filePath)

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, apperrors.NotFound(fmt.Sprintf("grid file %s", r.filePath))
	}

	switch r.fileType {
	case "csv":
		return r.readCSV()
	case "xlsx":
		return r.readExcel()
	default:
		return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported file type: %s", r.fileType))
	}
}

// readExcel reads the first sheet of an Excel workbook
func (r *DataReader) readExcel() (*grid.Document, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, apperrors.ParseError(fmt.Sprintf("failed to open Excel file %s", r.filePath), err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperrors.ParseError(fmt.Sprintf("Excel file %s has no sheets", r.filePath), nil)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperrors.ParseError(fmt.Sprintf("failed to read sheet %s", sheets[0]), err)
	}

	return r.parseRows(rows), nil
}

// readCSV reads a comma-separated grid
func (r *DataReader) readCSV() (*grid.Document, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, apperrors.ParseError(fmt.Sprintf("failed to open CSV file %s", r.filePath), err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	// Block rows have as many cells as their group declares indicators,
	// so record lengths vary.
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, apperrors.ParseError(fmt.Sprintf("failed to read CSV file %s", r.filePath), err)
	}

	return r.parseRows(rows), nil
}

// block accumulates one cohort while scanning
type block struct {
	name       string
	indicators []string
	cells      map[string][]string // canonical label -> raw cells
}

// parseRows walks the raw rows and materializes cohort blocks
func (r *DataReader) parseRows(rows [][]string) *grid.Document {
	doc := &grid.Document{Source: r.filePath}
	var current *block

	flush := func() {
		if current == nil {
			return
		}
		series := buildSeries(current)
		if existing, ok := doc.Group(series.Name); ok {
			// A repeated cohort name replaces the earlier block.
			*existing = series
		} else {
			doc.Groups = append(doc.Groups, series)
		}
		current = nil
	}

	for _, row := range rows {
		if isBlank(row) {
			flush()
			continue
		}
		if strings.HasPrefix(row[0], "#") {
			continue
		}

		firstCell := strings.TrimSpace(row[0])
		if label, ok := dataLabels[firstCell]; ok {
			if current == nil {
				log.Printf("[DataReader] %s row outside a cohort block, skipped", label)
				continue
			}
			cells := make([]string, 0, len(row)-1)
			for _, cell := range row[1:] {
				cells = append(cells, strings.TrimSpace(cell))
			}
			current.cells[label] = cells
			continue
		}

		// Anything else opens a cohort block; the remaining cells name
		// the indicator columns.
		flush()
		current = &block{name: firstCell, cells: make(map[string][]string)}
		for _, cell := range row[1:] {
			if name := strings.TrimSpace(cell); name != "" {
				current.indicators = append(current.indicators, name)
			}
		}
	}
	flush()

	log.Printf("[DataReader] parsed %d cohorts from %s", len(doc.Groups), r.filePath)
	return doc
}

// buildSeries turns an accumulated block into observations
func buildSeries(b *block) grid.GroupSeries {
	series := grid.GroupSeries{
		Name:       b.name,
		Indicators: b.indicators,
	}

	for i, indicator := range b.indicators {
		obs := grid.Observation{
			Indicator:  indicator,
			Mean:       math.NaN(),
			ErrorBar:   math.NaN(),
			SampleSize: math.NaN(),
		}

		if cell, ok := cellAt(b.cells["Mean"], i); ok {
			obs.Mean = parseFloatOrMissing(cell)
		}
		if cell, ok := cellAt(b.cells["Sample_Size"], i); ok {
			obs.SampleSize = parseFloatOrMissing(cell)
		}
		if cell, ok := cellAt(b.cells["Error_Type"], i); ok {
			obs.ErrorType = strings.ToUpper(cell)
		}
		if cell, ok := cellAt(b.cells["Error_Bar"], i); ok {
			obs.ErrorBar, obs.UpperBound, obs.LowerBound, obs.Asymmetric = parseErrorBar(cell, obs.ErrorType)
		}

		series.Observations = append(series.Observations, obs)
	}

	return series
}

// parseErrorBar handles both plain magnitudes and upper/lower pairs.
// Asymmetric pairs collapse to the average half width; the original
// bounds are kept for reference.
func parseErrorBar(cell, errorType string) (value, upper, lower float64, asymmetric bool) {
	value = math.NaN()
	upper = math.NaN()
	lower = math.NaN()

	if strings.Contains(cell, "/") {
		if errorType != "ASYMMETRIC" {
			return
		}
		parts := strings.Split(cell, "/")
		if len(parts) != 2 {
			return
		}
		u, errU := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		l, errL := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if errU != nil || errL != nil {
			return
		}
		return (u + l) / 2, u, l, true
	}

	value = parseFloatOrMissing(cell)
	return
}

func parseFloatOrMissing(cell string) float64 {
	if cell == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func cellAt(cells []string, i int) (string, bool) {
	if i >= len(cells) || cells[i] == "" {
		return "", false
	}
	return cells[i], true
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

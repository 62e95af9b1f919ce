package ports

import (
	"errbar/domain/grid"
)

// GridReaderPort loads an error bar grid from disk into the domain
// document. Implementations own format detection (xlsx vs csv).
type GridReaderPort interface {
	ReadGrid(path string) (*grid.Document, error)
}

// TemplateWriterPort writes a blank input grid that users fill in and
// feed back through GridReaderPort
type TemplateWriterPort interface {
	Write(path string, indicatorCount int) error
}

package excel

import (
	"errbar/domain/grid"
)

// GridSource adapts DataReader to ports.GridReaderPort. It is
// stateless: each read builds a fresh reader, so concurrent reads
// never share parser state.
type GridSource struct{}

// NewGridSource creates a grid source
func NewGridSource() *GridSource {
	return &GridSource{}
}

// ReadGrid loads the grid document at path
func (s *GridSource) ReadGrid(path string) (*grid.Document, error) {
	return NewDataReader(path).ReadGrid()
}

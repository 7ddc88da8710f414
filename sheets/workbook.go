package sheets

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"gradebook-risk-server-go/models"
)

// ErrSheetNotFound is returned when a workbook has no sheet with the requested name.
var ErrSheetNotFound = errors.New("sheet not found")

// Workbook is a gradebook spreadsheet opened for reading.
type Workbook struct {
	file *excelize.File
}

// Open reads an xlsx workbook from r.
func Open(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open excel file: %w", err)
	}
	return &Workbook{file: f}, nil
}

// Close releases the workbook.
func (w *Workbook) Close() error {
	return w.file.Close()
}

// SheetNames lists the sheets of the workbook in tab order.
func (w *Workbook) SheetNames() []string {
	return w.file.GetSheetList()
}

// Rows returns every row of sheet as tagged cells.
func (w *Workbook) Rows(sheet string) ([][]models.Cell, error) {
	if idx, err := w.file.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}

	raw, err := w.file.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to get rows from sheet %s: %w", sheet, err)
	}

	rows := make([][]models.Cell, len(raw))
	for i, r := range raw {
		cells := make([]models.Cell, len(r))
		for j, v := range r {
			cells[j] = parseCell(v)
		}
		rows[i] = cells
	}
	return rows, nil
}

// parseCell tags a raw cell value. Raw values of numeric cells are plain
// decimal strings; anything else, "NaN" and "inf" included, is kept as text.
func parseCell(v string) models.Cell {
	if strings.TrimSpace(v) == "" {
		return models.Empty()
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
		return models.Number(n)
	}
	return models.Text(v)
}

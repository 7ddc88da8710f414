package models

import "strconv"

// CellKind tags the type of a raw spreadsheet cell.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellNumber
	CellText
)

// Cell is a raw spreadsheet value as read from a class sheet.
type Cell struct {
	Kind   CellKind
	Number float64
	Text   string
}

// Empty returns a blank cell.
func Empty() Cell { return Cell{Kind: CellEmpty} }

// Number returns a numeric cell.
func Number(v float64) Cell { return Cell{Kind: CellNumber, Number: v} }

// Text returns a text cell.
func Text(s string) Cell { return Cell{Kind: CellText, Text: s} }

// String renders the cell the way it would appear in the sheet.
func (c Cell) String() string {
	switch c.Kind {
	case CellNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	case CellText:
		return c.Text
	}
	return ""
}

package analysis

import (
	"math"
	"strconv"
	"strings"

	"gradebook-risk-server-go/models"
)

// HeaderRows is the number of header rows at the top of every class sheet.
const HeaderRows = 2

// Column positions of a class sheet row.
const (
	colNumber = iota
	colName
	colUCP1Grade
	colUCP1Absences
	colUCP2Grade
	colUCP2Absences
	colUCP3Grade
	colUCP3Absences
	colProjectGrade
	colProjectAbsences
)

// NumericValue extracts a number from a cell. Blank cells, non-finite values
// and text that does not parse (after trimming and swapping a decimal comma
// for a point) yield 0.
func NumericValue(c models.Cell) float64 {
	switch c.Kind {
	case models.CellNumber:
		return finiteOrZero(c.Number)
	case models.CellText:
		cleaned := strings.ReplaceAll(strings.TrimSpace(c.Text), ",", ".")
		v, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0
		}
		return finiteOrZero(v)
	}
	return 0
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func cellAt(row []models.Cell, i int) models.Cell {
	if i < len(row) {
		return row[i]
	}
	return models.Empty()
}

func numberAt(row []models.Cell, i int) float64 {
	return NumericValue(cellAt(row, i))
}

// NormalizeRow converts one sheet row into a classified student record.
// It returns false for rows without a student name.
func NormalizeRow(row []models.Cell) (models.StudentRecord, bool) {
	name := strings.TrimSpace(cellAt(row, colName).String())
	if name == "" {
		return models.StudentRecord{}, false
	}

	units := models.Units{
		UCP1: models.SubjectUnit{Grade: numberAt(row, colUCP1Grade), Absences: numberAt(row, colUCP1Absences)},
		UCP2: models.SubjectUnit{Grade: numberAt(row, colUCP2Grade), Absences: numberAt(row, colUCP2Absences)},
		UCP3: models.SubjectUnit{Grade: numberAt(row, colUCP3Grade), Absences: numberAt(row, colUCP3Absences)},
	}

	var project *models.SubjectUnit
	if len(row) > colProjectGrade {
		project = &models.SubjectUnit{
			Grade:    numberAt(row, colProjectGrade),
			Absences: numberAt(row, colProjectAbsences),
		}
	}

	return NewStudentRecord(name, units, project), true
}

// NormalizeSheet normalizes every data row of a class sheet, skipping the
// header rows and rows without a student name.
func NormalizeSheet(rows [][]models.Cell) []models.StudentRecord {
	if len(rows) <= HeaderRows {
		return []models.StudentRecord{}
	}
	records := make([]models.StudentRecord, 0, len(rows)-HeaderRows)
	for _, row := range rows[HeaderRows:] {
		if rec, ok := NormalizeRow(row); ok {
			records = append(records, rec)
		}
	}
	return records
}

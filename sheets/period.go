package sheets

import (
	"errors"
	"strings"

	"gradebook-risk-server-go/models"
)

// ErrUnknownPeriod is returned when no known sheet-naming convention matches a workbook.
var ErrUnknownPeriod = errors.New("unrecognized period format")

// Format is a sheet-naming convention of one grading period.
type Format struct {
	Period      models.Period
	Suffix      string
	Sheets      []string
	Description string
}

// Formats lists the known conventions in detection order.
var Formats = []Format{
	{
		Period: models.Bimester2,
		Suffix: " - IA",
		Sheets: []string{
			"1º ano G - IA", "2º ano G - IA", "1º ano E - IA",
			"2º ano D - IA", "2º ano E - IA", "3º ano E -IA",
		},
		Description: `2º Bimestre (com " - IA")`,
	},
	{
		Period: models.Bimester3,
		Suffix: "",
		Sheets: []string{
			"1º ano G", "2º ano G", "1º ano E",
			"2º ano D", "2º ano E", "3º ano E",
		},
		Description: `3º Bimestre (sem " - IA")`,
	},
	{
		Period: models.Bimester4,
		Suffix: " - 4º Bim",
		Sheets: []string{
			"1º ano G - 4º Bim", "2º ano G - 4º Bim", "1º ano E - 4º Bim",
			"2º ano D - 4º Bim", "2º ano E - 4º Bim", "3º ano E - 4º Bim",
		},
		Description: `4º Bimestre (com " - 4º Bim")`,
	},
}

// FormatFor returns the naming convention of period.
func FormatFor(period models.Period) (Format, bool) {
	for _, f := range Formats {
		if f.Period == period {
			return f, true
		}
	}
	return Format{}, false
}

// Present returns the expected sheets of f found in sheetNames, in f's order.
func (f Format) Present(sheetNames []string) []string {
	available := make(map[string]struct{}, len(sheetNames))
	for _, name := range sheetNames {
		available[name] = struct{}{}
	}
	found := make([]string, 0, len(f.Sheets))
	for _, s := range f.Sheets {
		if _, ok := available[s]; ok {
			found = append(found, s)
		}
	}
	return found
}

// Info describes f against the sheets of a workbook.
func (f Format) Info(sheetNames []string) models.PeriodInfo {
	return models.PeriodInfo{
		Period:      f.Period,
		Description: f.Description,
		SheetsFound: len(f.Present(sheetNames)),
		SheetsTotal: len(f.Sheets),
	}
}

// DetectPeriod picks the first format with at least one of its sheets present.
func DetectPeriod(sheetNames []string) (Format, models.PeriodInfo, error) {
	for _, f := range Formats {
		info := f.Info(sheetNames)
		if info.SheetsFound > 0 {
			return f, info, nil
		}
	}
	return Format{}, models.PeriodInfo{}, ErrUnknownPeriod
}

// ClassKey strips any period suffix from a sheet name, so the same class has
// the same key in every period.
func ClassKey(sheet string) string {
	key := sheet
	for _, suffix := range []string{" - 4º Bim", " - IA", " -IA"} {
		key = strings.TrimSuffix(key, suffix)
	}
	return strings.TrimSpace(key)
}

// minValidSheets is how many expected sheets a workbook needs to be considered well formed.
const minValidSheets = 3

// Validation reports whether a workbook carries enough class sheets.
type Validation struct {
	Valid       bool     `json:"valid"`
	Period      string   `json:"period,omitempty"`
	SheetsFound []string `json:"sheetsFound"`
	TotalSheets int      `json:"totalSheets"`
}

// Validate checks the structure of a workbook from its sheet names.
func Validate(sheetNames []string) Validation {
	v := Validation{TotalSheets: len(sheetNames), SheetsFound: []string{}}
	f, _, err := DetectPeriod(sheetNames)
	if err != nil {
		return v
	}
	v.Period = string(f.Period)
	v.SheetsFound = f.Present(sheetNames)
	v.Valid = len(v.SheetsFound) >= minValidSheets
	return v
}

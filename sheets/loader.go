package sheets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gradebook-risk-server-go/analysis"
	"gradebook-risk-server-go/models"
)

// RowSource is the tabular data a Loader reads class sheets from.
type RowSource interface {
	SheetNames() []string
	Rows(sheet string) ([][]models.Cell, error)
}

// Loader turns a workbook into a classified analysis.
type Loader struct {
	log zerolog.Logger
	now func() time.Time
}

// NewLoader creates a Loader.
func NewLoader(log zerolog.Logger) *Loader {
	return &Loader{log: log, now: time.Now}
}

// Load analyses every class sheet of src. The period is detected from the
// sheet names unless override is non-empty. Classes whose sheet is absent are
// left out; classes without students are reported as warnings.
func (l *Loader) Load(ctx context.Context, src RowSource, override models.Period) (*models.Analysis, error) {
	names := src.SheetNames()

	var format Format
	var info models.PeriodInfo
	if override != "" {
		f, ok := FormatFor(override)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPeriod, override)
		}
		format, info = f, f.Info(names)
	} else {
		var err error
		format, info, err = DetectPeriod(names)
		if err != nil {
			return nil, err
		}
	}

	l.log.Info().
		Str("period", string(info.Period)).
		Int("sheets_found", info.SheetsFound).
		Int("sheets_total", info.SheetsTotal).
		Msg("Loading workbook")

	result := &models.Analysis{
		Info:       info,
		Classes:    []models.ClassResult{},
		AnalyzedAt: l.now().UTC(),
	}

	for _, sheet := range format.Sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := src.Rows(sheet)
		if errors.Is(err, ErrSheetNotFound) {
			l.log.Debug().Str("sheet", sheet).Msg("Class sheet not present, skipping")
			continue
		}
		if err != nil {
			return nil, err
		}

		class, err := analysis.AnalyzeClass(ClassKey(sheet), sheet, format.Period, rows)
		if errors.Is(err, analysis.ErrEmptyClass) {
			l.log.Warn().Str("sheet", sheet).Msg("Class sheet has no students")
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", sheet, err))
			continue
		}

		l.log.Info().
			Str("class", class.Class).
			Int("students", class.Aggregate.StudentCount).
			Float64("mean_grade", class.Aggregate.ClassMeanGrade).
			Float64("risk_pct", class.Aggregate.RiskPercentage).
			Msg("Class analysed")
		result.Classes = append(result.Classes, class)
	}

	result.Info.LoadedClasses = len(result.Classes)
	result.Cohort = analysis.Cohort(result.Classes)
	return result, nil
}

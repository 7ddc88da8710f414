package models

import "time"

// Classification is the risk level assigned to a unit or a student.
type Classification string

const (
	AltoRisco     Classification = "ALTO_RISCO"     // High risk
	RiscoModerado Classification = "RISCO_MODERADO" // Moderate risk
	Atencao       Classification = "ATENCAO"        // Needs attention
	OK            Classification = "OK"
)

// AllClassifications lists every classification from most to least severe.
var AllClassifications = []Classification{AltoRisco, RiscoModerado, Atencao, OK}

// Severity ranks a classification; higher is worse. Unknown values rank below OK.
func (c Classification) Severity() int {
	switch c {
	case AltoRisco:
		return 3
	case RiscoModerado:
		return 2
	case Atencao:
		return 1
	case OK:
		return 0
	}
	return -1
}

// IsAtRisk reports whether c counts towards a class's risk percentage.
func (c Classification) IsAtRisk() bool {
	return c == AltoRisco || c == RiscoModerado
}

// UnitName identifies a graded subject unit (UC) within a class
type UnitName string

const (
	UCP1 UnitName = "UCP 1"
	UCP2 UnitName = "UCP 2"
	UCP3 UnitName = "UCP 3"
)

// UnitNames is the display order of the graded units.
var UnitNames = []UnitName{UCP1, UCP2, UCP3}

// SubjectUnit holds one unit's grade and absence count. A grade of 0 means
// the grade has not been entered yet.
type SubjectUnit struct {
	Grade    float64 `json:"grade"`
	Absences float64 `json:"absences"`
}

// Graded reports whether a grade has been entered for the unit.
func (u SubjectUnit) Graded() bool {
	return u.Grade > 0
}

// Units is the fixed set of graded units of a student.
type Units struct {
	UCP1 SubjectUnit `json:"ucp1"`
	UCP2 SubjectUnit `json:"ucp2"`
	UCP3 SubjectUnit `json:"ucp3"`
}

// Each calls fn for every unit in UnitNames order.
func (u Units) Each(fn func(name UnitName, unit SubjectUnit)) {
	fn(UCP1, u.UCP1)
	fn(UCP2, u.UCP2)
	fn(UCP3, u.UCP3)
}

// UnitClassification pairs a unit name with its derived classification.
type UnitClassification struct {
	Unit           UnitName       `json:"unit"`
	Classification Classification `json:"classification"`
}

// StudentRecord is one student of one class for one grading period.
type StudentRecord struct {
	Name                  string               `json:"name"`
	Class                 string               `json:"class,omitempty"`
	Period                Period               `json:"period,omitempty"`
	Units                 Units                `json:"units"`
	Project               *SubjectUnit         `json:"project,omitempty"`
	OverallAverage        float64              `json:"overallAverage"`
	TotalAbsences         float64              `json:"totalAbsences"`
	UnitClassification    []UnitClassification `json:"unitClassification"`
	OverallClassification Classification       `json:"overallClassification"`
}

// ClassificationOf returns the classification derived for the named unit.
func (s StudentRecord) ClassificationOf(name UnitName) (Classification, bool) {
	for _, uc := range s.UnitClassification {
		if uc.Unit == name {
			return uc.Classification, true
		}
	}
	return "", false
}

// ClassAggregate holds the statistics of one class for one analysis pass
type ClassAggregate struct {
	StudentCount         int                    `json:"studentCount"`
	ClassificationCounts map[Classification]int `json:"classificationCounts"`
	ClassMeanGrade       float64                `json:"classMeanGrade"`
	ClassMeanAbsences    float64                `json:"classMeanAbsences"`
	RiskPercentage       float64                `json:"riskPercentage"`
}

// ClassResult is the classified result set of one class sheet.
type ClassResult struct {
	Class     string          `json:"class"`
	Sheet     string          `json:"sheet"`
	Period    Period          `json:"period"`
	Students  []StudentRecord `json:"students"`
	Aggregate ClassAggregate  `json:"aggregate"`
}

// CohortTotals sums the per-class aggregates of one analysis.
type CohortTotals struct {
	ClassCount           int                    `json:"classCount"`
	StudentCount         int                    `json:"studentCount"`
	ClassificationCounts map[Classification]int `json:"classificationCounts"`
}

// Period identifies a grading period (bimester) by its sheet-naming convention.
type Period string

const (
	Bimester2 Period = "2_bimestre"
	Bimester3 Period = "3_bimestre"
	Bimester4 Period = "4_bimestre"
)

// PeriodInfo describes the period detected for a workbook.
type PeriodInfo struct {
	Period        Period `json:"period"`
	Description   string `json:"description"`
	SheetsFound   int    `json:"sheetsFound"`
	SheetsTotal   int    `json:"sheetsTotal"`
	LoadedClasses int    `json:"loadedClasses"`
}

// Analysis is the complete result of processing one workbook.
type Analysis struct {
	Info       PeriodInfo    `json:"info"`
	Classes    []ClassResult `json:"classes"`
	Cohort     CohortTotals  `json:"cohort"`
	Warnings   []string      `json:"warnings,omitempty"`
	AnalyzedAt time.Time     `json:"analyzedAt"`
}

package analysis

import (
	"errors"
	"math"
	"sort"

	"gradebook-risk-server-go/models"
)

// ErrEmptyClass is returned when a class sheet yields no student records.
var ErrEmptyClass = errors.New("class has no students")

// Unit classification thresholds.
const (
	passingGrade      = 5.0
	goodGrade         = 7.0
	highRiskAbsences  = 10
	lowGradeAbsences  = 5
	midGradeAbsences  = 8
	goodGradeAbsences = 12
)

// ClassifyUnit classifies one unit from its grade and absences. The low-grade
// branch is checked first, so ungraded units (grade 0) land in it as well.
func ClassifyUnit(grade, absences float64) models.Classification {
	switch {
	case grade < passingGrade:
		switch {
		case absences > highRiskAbsences:
			return models.AltoRisco
		case absences > lowGradeAbsences:
			return models.RiscoModerado
		default:
			return models.Atencao
		}
	case grade < goodGrade && absences > midGradeAbsences:
		return models.RiscoModerado
	case absences > goodGradeAbsences:
		return models.RiscoModerado
	}
	return models.OK
}

// OverallClassification returns the most severe of cs, or OK when cs is empty.
func OverallClassification(cs ...models.Classification) models.Classification {
	worst := models.OK
	for _, c := range cs {
		if c.Severity() > worst.Severity() {
			worst = c
		}
	}
	return worst
}

// AverageGrade is the mean grade of the graded units; 0 when none is graded.
func AverageGrade(units models.Units) float64 {
	var sum float64
	var n int
	units.Each(func(_ models.UnitName, u models.SubjectUnit) {
		if u.Graded() {
			sum += u.Grade
			n++
		}
	})
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// TotalAbsences sums the absences of the graded-unit slots. Project absences
// are not included.
func TotalAbsences(units models.Units) float64 {
	var total float64
	units.Each(func(_ models.UnitName, u models.SubjectUnit) {
		total += u.Absences
	})
	return total
}

// NewStudentRecord derives averages and classifications for a student.
//
// Every unit gets a classification. A unit with neither grade nor absences
// has no data entered yet and does not take part in the overall
// classification.
func NewStudentRecord(name string, units models.Units, project *models.SubjectUnit) models.StudentRecord {
	perUnit := make([]models.UnitClassification, 0, len(models.UnitNames))
	counted := make([]models.Classification, 0, len(models.UnitNames))
	units.Each(func(n models.UnitName, u models.SubjectUnit) {
		c := ClassifyUnit(u.Grade, u.Absences)
		perUnit = append(perUnit, models.UnitClassification{Unit: n, Classification: c})
		if u.Graded() || u.Absences > 0 {
			counted = append(counted, c)
		}
	})

	return models.StudentRecord{
		Name:                  name,
		Units:                 units,
		Project:               project,
		OverallAverage:        AverageGrade(units),
		TotalAbsences:         TotalAbsences(units),
		UnitClassification:    perUnit,
		OverallClassification: OverallClassification(counted...),
	}
}

// NewClassificationCounts returns a count map holding all four classifications.
func NewClassificationCounts() map[models.Classification]int {
	counts := make(map[models.Classification]int, len(models.AllClassifications))
	for _, c := range models.AllClassifications {
		counts[c] = 0
	}
	return counts
}

// Aggregate computes the class statistics for records.
func Aggregate(records []models.StudentRecord) models.ClassAggregate {
	agg := models.ClassAggregate{
		StudentCount:         len(records),
		ClassificationCounts: NewClassificationCounts(),
	}
	if len(records) == 0 {
		return agg
	}

	var gradeSum, absenceSum float64
	var graded, atRisk int
	for _, r := range records {
		agg.ClassificationCounts[r.OverallClassification]++
		if r.OverallClassification.IsAtRisk() {
			atRisk++
		}
		absenceSum += r.TotalAbsences
		if r.OverallAverage > 0 {
			gradeSum += r.OverallAverage
			graded++
		}
	}

	if graded > 0 {
		agg.ClassMeanGrade = Round(gradeSum/float64(graded), 2)
	}
	agg.ClassMeanAbsences = absenceSum / float64(len(records))
	agg.RiskPercentage = Round(float64(atRisk)/float64(len(records))*100, 1)
	return agg
}

// AnalyzeClass normalizes the rows of one class sheet and aggregates them.
// A sheet without any student returns ErrEmptyClass alongside an empty result.
func AnalyzeClass(class, sheet string, period models.Period, rows [][]models.Cell) (models.ClassResult, error) {
	records := NormalizeSheet(rows)
	for i := range records {
		records[i].Class = class
		records[i].Period = period
	}

	result := models.ClassResult{
		Class:     class,
		Sheet:     sheet,
		Period:    period,
		Students:  records,
		Aggregate: Aggregate(records),
	}
	if len(records) == 0 {
		return result, ErrEmptyClass
	}
	return result, nil
}

// Cohort sums the per-class aggregates.
func Cohort(results []models.ClassResult) models.CohortTotals {
	totals := models.CohortTotals{ClassificationCounts: NewClassificationCounts()}
	for _, r := range results {
		totals.ClassCount++
		totals.StudentCount += r.Aggregate.StudentCount
		for c, n := range r.Aggregate.ClassificationCounts {
			totals.ClassificationCounts[c] += n
		}
	}
	return totals
}

// FilterByClassification returns the records whose overall classification is c.
func FilterByClassification(records []models.StudentRecord, c models.Classification) []models.StudentRecord {
	out := make([]models.StudentRecord, 0)
	for _, r := range records {
		if r.OverallClassification == c {
			out = append(out, r)
		}
	}
	return out
}

// AtRisk returns every record not classified OK, most severe first. Within
// one classification lower averages come first, then names alphabetically.
func AtRisk(records []models.StudentRecord) []models.StudentRecord {
	out := make([]models.StudentRecord, 0)
	for _, r := range records {
		if r.OverallClassification != models.OK {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].OverallClassification.Severity(), out[j].OverallClassification.Severity()
		if si != sj {
			return si > sj
		}
		if out[i].OverallAverage != out[j].OverallAverage {
			return out[i].OverallAverage < out[j].OverallAverage
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

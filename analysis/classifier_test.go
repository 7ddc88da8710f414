package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gradebook-risk-server-go/models"
)

func TestClassifyUnit(t *testing.T) {
	cases := []struct {
		grade, absences float64
		want            models.Classification
	}{
		{5.0, 0, models.OK},
		{4.9, 0, models.Atencao},
		{4.9, 5, models.Atencao},
		{4.9, 6, models.RiscoModerado},
		{4.9, 10, models.RiscoModerado},
		{4.9, 11, models.AltoRisco},
		{0, 0, models.Atencao},
		{0, 11, models.AltoRisco},
		{6.0, 8, models.OK},
		{6.0, 9, models.RiscoModerado},
		{7.0, 9, models.OK},
		{7.0, 12, models.OK},
		{9.5, 13, models.RiscoModerado},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyUnit(tc.grade, tc.absences), "grade=%v absences=%v", tc.grade, tc.absences)
	}
}

func TestOverallClassificationPrecedence(t *testing.T) {
	assert.Equal(t, models.Atencao, OverallClassification(models.Atencao, models.OK, models.OK))
	assert.Equal(t, models.AltoRisco, OverallClassification(models.AltoRisco, models.OK, models.RiscoModerado))
	assert.Equal(t, models.AltoRisco, OverallClassification(models.OK, models.RiscoModerado, models.AltoRisco))
	assert.Equal(t, models.RiscoModerado, OverallClassification(models.Atencao, models.RiscoModerado, models.OK))
	assert.Equal(t, models.OK, OverallClassification())
}

func TestAverageGradeExcludesUngraded(t *testing.T) {
	units := models.Units{
		UCP1: models.SubjectUnit{Grade: 0},
		UCP2: models.SubjectUnit{Grade: 8.0},
		UCP3: models.SubjectUnit{Grade: 6.0},
	}
	assert.Equal(t, 7.0, AverageGrade(units))
	assert.Zero(t, AverageGrade(models.Units{}))
}

func TestNewStudentRecordUngradedUnitWithAbsences(t *testing.T) {
	units := models.Units{
		UCP1: models.SubjectUnit{Grade: 9, Absences: 1},
		UCP2: models.SubjectUnit{Grade: 0, Absences: 11},
	}
	rec := NewStudentRecord("Davi", units, nil)

	c, ok := rec.ClassificationOf(models.UCP2)
	require.True(t, ok)
	assert.Equal(t, models.AltoRisco, c)
	assert.Equal(t, models.AltoRisco, rec.OverallClassification)
	assert.Equal(t, 9.0, rec.OverallAverage)
	assert.Equal(t, 12.0, rec.TotalAbsences)

	c, ok = rec.ClassificationOf(models.UCP3)
	require.True(t, ok)
	assert.Equal(t, models.Atencao, c, "empty units are still classified")
	require.Len(t, rec.UnitClassification, 3)
	assert.Equal(t, models.UCP1, rec.UnitClassification[0].Unit)
}

func record(name string, c models.Classification, avg, absences float64) models.StudentRecord {
	return models.StudentRecord{Name: name, OverallClassification: c, OverallAverage: avg, TotalAbsences: absences}
}

func TestAggregate(t *testing.T) {
	records := []models.StudentRecord{
		record("a", models.AltoRisco, 3, 20),
		record("b", models.RiscoModerado, 6, 9),
		record("c", models.OK, 9, 1),
		record("d", models.Atencao, 0, 0),
	}
	agg := Aggregate(records)

	assert.Equal(t, 4, agg.StudentCount)
	assert.Equal(t, 1, agg.ClassificationCounts[models.AltoRisco])
	assert.Equal(t, 1, agg.ClassificationCounts[models.RiscoModerado])
	assert.Equal(t, 1, agg.ClassificationCounts[models.Atencao])
	assert.Equal(t, 1, agg.ClassificationCounts[models.OK])
	assert.Equal(t, 6.0, agg.ClassMeanGrade, "students without grades are excluded")
	assert.Equal(t, 7.5, agg.ClassMeanAbsences)
	assert.Equal(t, 50.0, agg.RiskPercentage)

	var sum int
	for _, n := range agg.ClassificationCounts {
		sum += n
	}
	assert.Equal(t, agg.StudentCount, sum)
}

func TestAggregateRoundsRiskPercentage(t *testing.T) {
	agg := Aggregate([]models.StudentRecord{
		record("a", models.AltoRisco, 4, 0),
		record("b", models.OK, 8, 0),
		record("c", models.OK, 8, 0),
	})
	assert.Equal(t, 33.3, agg.RiskPercentage)
}

func TestAggregateKeepsMeanAbsencesUnrounded(t *testing.T) {
	agg := Aggregate([]models.StudentRecord{
		record("a", models.OK, 8, 1),
		record("b", models.OK, 8, 0),
		record("c", models.OK, 8, 0),
	})
	assert.InDelta(t, 1.0/3, agg.ClassMeanAbsences, 1e-12)
	assert.NotEqual(t, 0.33, agg.ClassMeanAbsences)
}

func TestAggregateRiskFollowsIsAtRisk(t *testing.T) {
	for _, c := range models.AllClassifications {
		agg := Aggregate([]models.StudentRecord{record("a", c, 5, 0)})
		if c.IsAtRisk() {
			assert.Equal(t, 100.0, agg.RiskPercentage, c)
		} else {
			assert.Zero(t, agg.RiskPercentage, c)
		}
	}

	agg := Aggregate([]models.StudentRecord{record("a", models.Classification("DESCONHECIDO"), 5, 0)})
	assert.Zero(t, agg.RiskPercentage)
}

func TestAggregateEmptyClass(t *testing.T) {
	agg := Aggregate(nil)

	assert.Zero(t, agg.StudentCount)
	assert.Zero(t, agg.RiskPercentage)
	assert.Zero(t, agg.ClassMeanGrade)
	assert.Zero(t, agg.ClassMeanAbsences)
	assert.Len(t, agg.ClassificationCounts, 4)
}

func TestAnalyzeClassEmpty(t *testing.T) {
	rows := [][]models.Cell{{models.Text("Nº")}, {models.Text("Nota")}, {models.Number(1), models.Empty()}}

	res, err := AnalyzeClass("1º ano G", "1º ano G - IA", models.Bimester2, rows)
	assert.ErrorIs(t, err, ErrEmptyClass)
	assert.Empty(t, res.Students)
	assert.Zero(t, res.Aggregate.RiskPercentage)
}

func TestAnalyzeClassTagsRecords(t *testing.T) {
	rows := [][]models.Cell{
		{}, {},
		{models.Number(1), models.Text("Eva"), models.Number(4), models.Number(12)},
	}
	res, err := AnalyzeClass("2º ano D", "2º ano D", models.Bimester3, rows)
	require.NoError(t, err)
	require.Len(t, res.Students, 1)

	assert.Equal(t, "2º ano D", res.Students[0].Class)
	assert.Equal(t, models.Bimester3, res.Students[0].Period)
	assert.Equal(t, 100.0, res.Aggregate.RiskPercentage)
}

func TestCohort(t *testing.T) {
	a := models.ClassResult{Aggregate: Aggregate([]models.StudentRecord{
		record("a", models.AltoRisco, 3, 0), record("b", models.OK, 8, 0),
	})}
	b := models.ClassResult{Aggregate: Aggregate([]models.StudentRecord{
		record("c", models.OK, 8, 0),
	})}

	totals := Cohort([]models.ClassResult{a, b})
	assert.Equal(t, 2, totals.ClassCount)
	assert.Equal(t, 3, totals.StudentCount)
	assert.Equal(t, 2, totals.ClassificationCounts[models.OK])
	assert.Equal(t, 1, totals.ClassificationCounts[models.AltoRisco])
	assert.Equal(t, 0, totals.ClassificationCounts[models.Atencao])
}

func TestAtRiskOrdering(t *testing.T) {
	records := []models.StudentRecord{
		record("Zeca", models.Atencao, 4, 0),
		record("Bia", models.RiscoModerado, 6, 9),
		record("Caio", models.OK, 9, 0),
		record("Ana", models.AltoRisco, 3, 12),
		record("Abel", models.RiscoModerado, 5, 9),
	}
	got := AtRisk(records)

	names := make([]string, 0, len(got))
	for _, r := range got {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"Ana", "Abel", "Bia", "Zeca"}, names)
}

func TestFilterByClassification(t *testing.T) {
	records := []models.StudentRecord{
		record("a", models.OK, 8, 0),
		record("b", models.Atencao, 4, 0),
		record("c", models.OK, 7, 0),
	}
	assert.Len(t, FilterByClassification(records, models.OK), 2)
	assert.Empty(t, FilterByClassification(records, models.AltoRisco))
}

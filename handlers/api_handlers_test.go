package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gradebook-risk-server-go/archive"
	"gradebook-risk-server-go/db"
	"gradebook-risk-server-go/models"
	"gradebook-risk-server-go/sheets"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	arch, err := archive.New(t.TempDir(), "notas.xlsx", zerolog.Nop())
	require.NoError(t, err)

	h := NewAPIHandler(db.NewRedisService(client, zerolog.Nop()), arch, sheets.NewLoader(zerolog.Nop()), 1<<20, zerolog.Nop())
	return NewRouter(h, nil)
}

func gradebook(t *testing.T, sheetRows map[string][][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for name, rows := range sheetRows {
		_, err := f.NewSheet(name)
		require.NoError(t, err)
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			r := row
			require.NoError(t, f.SetSheetRow(name, cell, &r))
		}
	}
	require.NoError(t, f.DeleteSheet("Sheet1"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func sampleGradebook(t *testing.T) []byte {
	head := [][]interface{}{{"Nº", "Nome"}, {"", "", "Nota", "Faltas"}}
	return gradebook(t, map[string][][]interface{}{
		"1º ano G - IA": append(head,
			[]interface{}{1, "Ana Silva", 8.0, 2, 6.5, 1},
			[]interface{}{2, "Bruno Lima", 4.0, 11, 5.0, 0, 5.0, 0},
			[]interface{}{3, "Carla Dias", "4,5", 0, 8, 0, 8, 0},
		),
		"2º ano D - IA": append(head, []interface{}{1, "Davi", 9, 0, 9, 0, 9, 0}),
	})
}

func upload(t *testing.T, r http.Handler, filename string, content []byte, fields map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/import", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return do(t, r, req)
}

func get(t *testing.T, r http.Handler, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	return do(t, r, httptest.NewRequest(http.MethodGet, path, nil))
}

func do(t *testing.T, r http.Handler, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	if w.Header().Get("Content-Type") != "" && w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestImportAndQuery(t *testing.T) {
	r := newTestRouter(t)

	w, env := upload(t, r, "notas.xlsx", sampleGradebook(t), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var summary AnalysisSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, models.Bimester2, summary.Info.Period)
	assert.Equal(t, 4, summary.Cohort.StudentCount)
	assert.Equal(t, 2, summary.Cohort.ClassCount)
	assert.Equal(t, 1, summary.Cohort.ClassificationCounts[models.AltoRisco])
	assert.Equal(t, 1, summary.Cohort.ClassificationCounts[models.Atencao])
	require.Len(t, summary.Classes, 2)

	require.NotNil(t, summary.Validation)
	assert.False(t, summary.Validation.Valid, "two class sheets are fewer than expected")
	assert.Equal(t, "2_bimestre", summary.Validation.Period)
	assert.ElementsMatch(t, []string{"1º ano G - IA", "2º ano D - IA"}, summary.Validation.SheetsFound)
	assert.Equal(t, 2, summary.Validation.TotalSheets)

	w, env = get(t, r, "/api/periods")
	require.Equal(t, http.StatusOK, w.Code)
	var periods []models.PeriodInfo
	require.NoError(t, json.Unmarshal(env.Data, &periods))
	require.Len(t, periods, 1)
	assert.Equal(t, 2, periods[0].LoadedClasses)

	w, env = get(t, r, "/api/periods/2_bimestre")
	require.Equal(t, http.StatusOK, w.Code)
	var stored AnalysisSummary
	require.NoError(t, json.Unmarshal(env.Data, &stored))
	assert.Nil(t, stored.Validation)
	assert.Equal(t, 4, stored.Cohort.StudentCount)

	w, env = get(t, r, "/api/periods/2_bimestre/classes/"+url.PathEscape("1º ano G"))
	require.Equal(t, http.StatusOK, w.Code)
	var class models.ClassResult
	require.NoError(t, json.Unmarshal(env.Data, &class))
	assert.Len(t, class.Students, 3)
	assert.Equal(t, 33.3, class.Aggregate.RiskPercentage)

	w, env = get(t, r, "/api/periods/2_bimestre/classes/"+url.PathEscape("1º ano G")+"?classification=ATENCAO")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &class))
	require.Len(t, class.Students, 1)
	assert.Equal(t, "Carla Dias", class.Students[0].Name)
	assert.Equal(t, 4.5, class.Students[0].Units.UCP1.Grade)

	w, env = get(t, r, "/api/periods/2_bimestre/at-risk")
	require.Equal(t, http.StatusOK, w.Code)
	var atRisk []models.StudentRecord
	require.NoError(t, json.Unmarshal(env.Data, &atRisk))
	require.Len(t, atRisk, 2)
	assert.Equal(t, "Bruno Lima", atRisk[0].Name)
	assert.Equal(t, "Carla Dias", atRisk[1].Name)
}

func TestImportKeepsBackup(t *testing.T) {
	r := newTestRouter(t)
	content := sampleGradebook(t)

	w, _ := upload(t, r, "notas.xlsx", content, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = upload(t, r, "notas.xlsx", content, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env := get(t, r, "/api/backups")
	require.Equal(t, http.StatusOK, w.Code)
	var backups []archive.Backup
	require.NoError(t, json.Unmarshal(env.Data, &backups))
	assert.Len(t, backups, 1)
}

func TestImportRejections(t *testing.T) {
	r := newTestRouter(t)

	w, env := upload(t, r, "notas.csv", []byte("a,b"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNSUPPORTED_FILE_TYPE", env.Error.Code)

	w, env = upload(t, r, "notas.xlsx", []byte("not a zip"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UNSUPPORTED_FILE_TYPE", env.Error.Code)

	w, env = upload(t, r, "notas.xlsx", sampleGradebook(t), map[string]string{"period": "5_bimestre"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Fields, "Period")

	unknown := gradebook(t, map[string][][]interface{}{"Planilha1": {{"x"}}})
	w, env = upload(t, r, "notas.xlsx", unknown, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "UNKNOWN_PERIOD", env.Error.Code)
	assert.Equal(t, "Planilha1", env.Error.Fields["sheets"])

	w, env = upload(t, r, "notas.xlsx", make([]byte, 1<<20+10), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "FILE_TOO_LARGE", env.Error.Code)
}

func TestImportBodyCappedBeforeParsing(t *testing.T) {
	r := newTestRouter(t)

	// larger than the upload limit plus the multipart allowance
	w, env := upload(t, r, "notas.xlsx", make([]byte, 3<<20), map[string]string{"period": "2_bimestre"})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FILE_TOO_LARGE", env.Error.Code)

	w, env = get(t, r, "/api/periods")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestQueryErrors(t *testing.T) {
	r := newTestRouter(t)

	w, env := get(t, r, "/api/periods/3_bimestre")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	w, _ = get(t, r, "/api/periods/3_bimestre/classes/x")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = get(t, r, "/api/periods/3_bimestre/classes/x?classification=BAD")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestPing(t *testing.T) {
	r := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Pong!")
}

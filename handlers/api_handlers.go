package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gradebook-risk-server-go/analysis"
	"gradebook-risk-server-go/archive"
	"gradebook-risk-server-go/models"
	"gradebook-risk-server-go/response"
	"gradebook-risk-server-go/sheets"
)

// AnalysisStore persists analyses between requests.
type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, a *models.Analysis) error
	GetPeriods(ctx context.Context) ([]models.PeriodInfo, error)
	GetAnalysis(ctx context.Context, period models.Period) (*models.Analysis, error)
	GetClassResult(ctx context.Context, period models.Period, classKey string) (*models.ClassResult, error)
	Ping(ctx context.Context) error
}

// WorkbookArchive retains uploaded workbooks.
type WorkbookArchive interface {
	Store(r io.Reader) (int64, error)
	Backups() ([]archive.Backup, error)
}

// APIHandler holds the dependencies of the API handlers
type APIHandler struct {
	Store          AnalysisStore
	Archive        WorkbookArchive
	Loader         *sheets.Loader
	MaxUploadBytes int64
	log            zerolog.Logger
}

// NewAPIHandler creates a new APIHandler
func NewAPIHandler(store AnalysisStore, arch WorkbookArchive, loader *sheets.Loader, maxUpload int64, log zerolog.Logger) *APIHandler {
	return &APIHandler{
		Store:          store,
		Archive:        arch,
		Loader:         loader,
		MaxUploadBytes: maxUpload,
		log:            log,
	}
}

// ImportForm is the multipart form of an import request.
type ImportForm struct {
	Period string `form:"period" binding:"omitempty,oneof=2_bimestre 3_bimestre 4_bimestre"`
}

// ClassQuery filters the students of a class.
type ClassQuery struct {
	Classification string `form:"classification" binding:"omitempty,oneof=ALTO_RISCO RISCO_MODERADO ATENCAO OK"`
}

// ClassSummary is a class without its student list.
type ClassSummary struct {
	Class     string                `json:"class"`
	Sheet     string                `json:"sheet"`
	Aggregate models.ClassAggregate `json:"aggregate"`
}

// AnalysisSummary is the overview of one period. Validation is only set on
// the response to an import.
type AnalysisSummary struct {
	Info       models.PeriodInfo   `json:"info"`
	Cohort     models.CohortTotals `json:"cohort"`
	Classes    []ClassSummary      `json:"classes"`
	Warnings   []string            `json:"warnings"`
	Validation *sheets.Validation  `json:"validation,omitempty"`
}

func summarize(a *models.Analysis) AnalysisSummary {
	classes := make([]ClassSummary, 0, len(a.Classes))
	for _, c := range a.Classes {
		classes = append(classes, ClassSummary{Class: c.Class, Sheet: c.Sheet, Aggregate: c.Aggregate})
	}
	warnings := a.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return AnalysisSummary{Info: a.Info, Cohort: a.Cohort, Classes: classes, Warnings: warnings}
}

// --- Import Handler ---

// ImportWorkbook handles POST /api/import
func (h *APIHandler) ImportWorkbook(c *gin.Context) {
	if h.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes+multipartOverhead)
	}

	var form ImportForm
	if err := c.ShouldBind(&form); err != nil {
		if isBodyTooLarge(err) {
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
			return
		}
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, validationFields(err))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		if isBodyTooLarge(err) {
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
			return
		}
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".xlsx") {
		response.Fail(c, http.StatusBadRequest, response.ErrUnsupportedFile)
		return
	}
	if h.MaxUploadBytes > 0 && fileHeader.Size > h.MaxUploadBytes {
		response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.log.Error().Err(err).Msg("Error opening uploaded file")
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		h.log.Error().Err(err).Msg("Error reading uploaded file")
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	h.log.Info().Str("file", fileHeader.Filename).Str("size", archive.FormatSize(fileHeader.Size)).Msg("Received workbook upload")

	wb, err := sheets.Open(bytes.NewReader(content))
	if err != nil {
		h.log.Warn().Err(err).Str("file", fileHeader.Filename).Msg("Unreadable workbook")
		response.Fail(c, http.StatusBadRequest, response.ErrUnsupportedFile)
		return
	}
	defer func() {
		if err := wb.Close(); err != nil {
			h.log.Error().Err(err).Msg("Error closing workbook")
		}
	}()

	result, err := h.Loader.Load(c.Request.Context(), wb, models.Period(form.Period))
	if errors.Is(err, sheets.ErrUnknownPeriod) {
		response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrUnknownPeriod, map[string]string{
			"sheets": strings.Join(wb.SheetNames(), ", "),
		})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("file", fileHeader.Filename).Msg("Error analysing workbook")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if err := h.Store.SaveAnalysis(c.Request.Context(), result); err != nil {
		h.log.Error().Err(err).Msg("Error saving analysis")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if _, err := h.Archive.Store(bytes.NewReader(content)); err != nil {
		// the analysis is already stored; keep serving it
		h.log.Error().Err(err).Msg("Error archiving workbook")
	}

	summary := summarize(result)
	validation := sheets.Validate(wb.SheetNames())
	summary.Validation = &validation
	if !validation.Valid {
		h.log.Warn().
			Str("file", fileHeader.Filename).
			Int("sheetsFound", len(validation.SheetsFound)).
			Msg("Workbook has fewer class sheets than expected")
	}

	response.Success(c, http.StatusOK, summary)
}

// multipartOverhead is the room left for the multipart envelope and form
// fields around the uploaded file.
const multipartOverhead = 1 << 20

func isBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// --- Period Handlers ---

// GetPeriods handles GET /api/periods
func (h *APIHandler) GetPeriods(c *gin.Context) {
	periods, err := h.Store.GetPeriods(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Error in GetPeriods handler")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, periods)
}

func (h *APIHandler) loadAnalysis(c *gin.Context) (*models.Analysis, bool) {
	period := models.Period(c.Param("periodId"))
	a, err := h.Store.GetAnalysis(c.Request.Context(), period)
	if err != nil {
		h.log.Error().Err(err).Str("period", string(period)).Msg("Error loading analysis")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return nil, false
	}
	if a == nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return nil, false
	}
	return a, true
}

// GetPeriod handles GET /api/periods/:periodId
func (h *APIHandler) GetPeriod(c *gin.Context) {
	a, ok := h.loadAnalysis(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, summarize(a))
}

// GetAtRisk handles GET /api/periods/:periodId/at-risk
func (h *APIHandler) GetAtRisk(c *gin.Context) {
	a, ok := h.loadAnalysis(c)
	if !ok {
		return
	}
	var students []models.StudentRecord
	for _, class := range a.Classes {
		students = append(students, class.Students...)
	}
	response.Success(c, http.StatusOK, analysis.AtRisk(students))
}

// GetClass handles GET /api/periods/:periodId/classes/:classKey
func (h *APIHandler) GetClass(c *gin.Context) {
	var q ClassQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, validationFields(err))
		return
	}

	period := models.Period(c.Param("periodId"))
	classKey := c.Param("classKey")
	class, err := h.Store.GetClassResult(c.Request.Context(), period, classKey)
	if err != nil {
		h.log.Error().Err(err).Str("period", string(period)).Str("class", classKey).Msg("Error in GetClass handler")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if class == nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	if q.Classification != "" {
		class.Students = analysis.FilterByClassification(class.Students, models.Classification(q.Classification))
	}
	response.Success(c, http.StatusOK, class)
}

// --- Archive Handler ---

// GetBackups handles GET /api/backups
func (h *APIHandler) GetBackups(c *gin.Context) {
	backups, err := h.Archive.Backups()
	if err != nil {
		h.log.Error().Err(err).Msg("Error listing backups")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, backups)
}

// --- Ping Handler ---

// Ping handles GET /api/ping
func (h *APIHandler) Ping(c *gin.Context) {
	if err := h.Store.Ping(c.Request.Context()); err != nil {
		h.log.Warn().Err(err).Msg("Store ping failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Pong!"})
}

// validationFields maps binding errors to field -> failed rule.
func validationFields(err error) map[string]string {
	fields := make(map[string]string)
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fe.Field()] = fe.Tag()
			if fe.Param() != "" {
				fields[fe.Field()] = fe.Tag() + "=" + fe.Param()
			}
		}
		return fields
	}
	fields["detail"] = err.Error()
	return fields
}

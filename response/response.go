package response

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKeyRequestID is the gin context key holding the request ID.
const ContextKeyRequestID = "request_id"

// ErrCode identifies an API error.
type ErrCode string

const (
	ErrInvalidPayload  ErrCode = "INVALID_PAYLOAD"
	ErrValidation      ErrCode = "VALIDATION_ERROR"
	ErrFileRequired    ErrCode = "FILE_REQUIRED"
	ErrUnsupportedFile ErrCode = "UNSUPPORTED_FILE_TYPE"
	ErrFileTooLarge    ErrCode = "FILE_TOO_LARGE"
	ErrUnknownPeriod   ErrCode = "UNKNOWN_PERIOD"
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrInternal        ErrCode = "INTERNAL_ERROR"
)

var messages = map[ErrCode]string{
	ErrInvalidPayload:  "Invalid request payload.",
	ErrValidation:      "Validation failed.",
	ErrFileRequired:    "A workbook upload is required.",
	ErrUnsupportedFile: "Only .xlsx workbooks are supported.",
	ErrFileTooLarge:    "Upload exceeds the size limit.",
	ErrUnknownPeriod:   "The workbook sheets do not match any known period format.",
	ErrNotFound:        "Resource not found.",
	ErrInternal:        "Internal server error.",
}

// Response is the API response envelope.
type Response struct {
	Data     interface{} `json:"data"`
	Error    *ErrorBody  `json:"error,omitempty"`
	Metadata Metadata    `json:"metadata"`
}

// ErrorBody is the error part of a failed response.
type ErrorBody struct {
	Code    ErrCode           `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Metadata carries the request ID and response time.
type Metadata struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// Message returns the human-readable text of code.
func Message(code ErrCode) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return "Unexpected error."
}

// Success sends data with the given status.
func Success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Data: data, Metadata: buildMetadata(c)})
}

// Fail sends an error response.
func Fail(c *gin.Context, status int, code ErrCode) {
	FailWithFields(c, status, code, nil)
}

// FailWithFields sends an error response with per-field details.
func FailWithFields(c *gin.Context, status int, code ErrCode, fields map[string]string) {
	c.JSON(status, Response{
		Error:    &ErrorBody{Code: code, Message: Message(code), Fields: fields},
		Metadata: buildMetadata(c),
	})
}

// RequestIDMiddleware tags every request with an X-Request-ID.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, reqID)
		c.Header("X-Request-ID", reqID)
		c.Next()
	}
}

func buildMetadata(c *gin.Context) Metadata {
	id := c.GetString(ContextKeyRequestID)
	if id == "" {
		id = uuid.New().String()
	}
	return Metadata{
		RequestID: id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

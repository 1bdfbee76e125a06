package response

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Response is the standardized API response envelope.
type Response struct {
	Data       interface{} `json:"data"`
	Error      *ErrorBody  `json:"error,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Metadata   Metadata    `json:"metadata"`
}

// ErrorBody represents a structured error response.
type ErrorBody struct {
	Code    ErrCode           `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Pagination holds pagination information.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// Metadata includes request tracing and timing.
type Metadata struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
	// ElapsedMs is the time spent handling the request. Judge endpoints
	// report the full compile and simulate duration here.
	ElapsedMs int64 `json:"elapsed_ms"`
}

// ────────────────────────────────────────────────────────────────────────────
// Helper builders
// ────────────────────────────────────────────────────────────────────────────

// Success sends a successful JSON response with the given status code and data.
func Success(c *gin.Context, statusCode int, data interface{}) {
	write(c, statusCode, Response{Data: data}, false)
}

// SuccessWithPagination sends a successful response with pagination metadata.
func SuccessWithPagination(c *gin.Context, statusCode int, data interface{}, pagination *Pagination) {
	write(c, statusCode, Response{Data: data, Pagination: pagination}, false)
}

// Fail sends an error response with an error code and no field-level details.
func Fail(c *gin.Context, statusCode int, code ErrCode) {
	write(c, statusCode, Response{Error: newErrorBody(code, nil)}, false)
}

// FailWithFields sends an error response with field-level validation details.
func FailWithFields(c *gin.Context, statusCode int, code ErrCode, fields map[string]string) {
	write(c, statusCode, Response{Error: newErrorBody(code, fields)}, false)
}

// AbortFail aborts the middleware chain and sends an error response.
func AbortFail(c *gin.Context, statusCode int, code ErrCode) {
	write(c, statusCode, Response{Error: newErrorBody(code, nil)}, true)
}

// NewPagination derives the page count from a total.
func NewPagination(page, perPage int, total int64) *Pagination {
	pages := 0
	if perPage > 0 {
		pages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return &Pagination{Page: page, PerPage: perPage, TotalItems: int(total), TotalPages: pages}
}

// ────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ────────────────────────────────────────────────────────────────────────────

func newErrorBody(code ErrCode, fields map[string]string) *ErrorBody {
	return &ErrorBody{Code: code, Message: GetMessage(code), Fields: fields}
}

func write(c *gin.Context, statusCode int, resp Response, abort bool) {
	resp.Metadata = buildMetadata(c)
	if abort {
		c.AbortWithStatusJSON(statusCode, resp)
		return
	}
	c.JSON(statusCode, resp)
}

func buildMetadata(c *gin.Context) Metadata {
	now := time.Now()
	id := RequestID(c)
	if id == "" {
		id = uuid.NewString() // Fallback if middleware not applied
	}
	md := Metadata{
		RequestID: id,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
	if started, ok := c.Get(contextKeyStartedAt); ok {
		if t, ok := started.(time.Time); ok {
			md.ElapsedMs = now.Sub(t).Milliseconds()
		}
	}
	return md
}

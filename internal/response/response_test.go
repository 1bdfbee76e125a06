package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/ok", func(c *gin.Context) { Success(c, http.StatusOK, gin.H{"n": 1}) })
	r.GET("/fail", func(c *gin.Context) {
		FailWithFields(c, http.StatusBadRequest, ErrValidation, map[string]string{"source_code": "required"})
	})
	return r
}

func call(t *testing.T, r *gin.Engine, path, reqID string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestRequestIDIsPropagated(t *testing.T) {
	r := newEngine()

	w, body := call(t, r, "/ok", "gw-123.a_b")
	assert.Equal(t, "gw-123.a_b", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "gw-123.a_b", body.Metadata.RequestID)
	assert.GreaterOrEqual(t, body.Metadata.ElapsedMs, int64(0))
	assert.Nil(t, body.Error)
}

func TestUnsafeRequestIDIsReplaced(t *testing.T) {
	r := newEngine()

	for _, id := range []string{"has space", "<script>", strings.Repeat("a", 65)} {
		w, body := call(t, r, "/ok", id)
		assert.NotEqual(t, id, body.Metadata.RequestID)
		assert.Len(t, body.Metadata.RequestID, 36)
		assert.Equal(t, body.Metadata.RequestID, w.Header().Get("X-Request-ID"))
	}
}

func TestFailCarriesMessageAndFields(t *testing.T) {
	w, body := call(t, newEngine(), "/fail", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, ErrValidation, body.Error.Code)
	assert.NotEmpty(t, body.Error.Message)
	assert.Equal(t, "required", body.Error.Fields["source_code"])
	assert.Nil(t, body.Data)
}

func TestNewPagination(t *testing.T) {
	assert.Equal(t, 3, NewPagination(1, 20, 41).TotalPages)
	assert.Equal(t, 2, NewPagination(1, 20, 40).TotalPages)
	assert.Equal(t, 0, NewPagination(1, 20, 0).TotalPages)
	assert.Equal(t, 0, NewPagination(1, 0, 10).TotalPages)
}

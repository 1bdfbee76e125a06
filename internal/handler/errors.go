package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/veriloglab/judge-backend/internal/response"
	"github.com/veriloglab/judge-backend/internal/service"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

type errMapping struct {
	err    error
	status int
	code   response.ErrCode
}

var serviceErrors = []errMapping{
	{service.ErrMissingTestbench, http.StatusUnprocessableEntity, response.ErrMissingTestbench},
	{service.ErrJudgeBusy, http.StatusServiceUnavailable, response.ErrJudgeBusy},
	{service.ErrProblemNotFound, http.StatusNotFound, response.ErrProblemNotFound},
	{service.ErrStageNotFound, http.StatusNotFound, response.ErrStageNotFound},
	{service.ErrSubmissionNotFound, http.StatusNotFound, response.ErrSubmissionAbsent},
	{service.ErrContestNotFound, http.StatusNotFound, response.ErrContestNotFound},
	{service.ErrNotJudged, http.StatusConflict, response.ErrNotJudged},
	{service.ErrAlreadyReviewed, http.StatusConflict, response.ErrAlreadyReviewed},
	{service.ErrAlreadyRegistered, http.StatusConflict, response.ErrAlreadyRegistered},
	{service.ErrNotRegistered, http.StatusNotFound, response.ErrNotRegistered},
	{service.ErrContestEnded, http.StatusBadRequest, response.ErrContestEnded},
	{service.ErrDuplicateProblem, http.StatusBadRequest, response.ErrDuplicateProblem},
}

// failService maps a service error to its API code. Unknown errors are
// logged and reported as internal errors.
func failService(c *gin.Context, log zerolog.Logger, err error) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			response.Fail(c, m.status, m.code)
			return
		}
	}
	log.Error().Err(err).
		Str("path", c.FullPath()).
		Str("request_id", response.RequestID(c)).
		Msg("Request failed")
	response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
}

// paramUUID parses a path parameter, writing INVALID_ID on failure.
func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// pageParams reads ?page and ?per_page with defaults and bounds.
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	return page, min(perPage, maxPerPage)
}

func limitParam(c *gin.Context, fallback int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(fallback)))
	if err != nil || limit < 1 {
		return fallback
	}
	return min(limit, maxPerPage)
}

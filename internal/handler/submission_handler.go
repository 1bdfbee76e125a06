package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/veriloglab/judge-backend/internal/middleware"
	"github.com/veriloglab/judge-backend/internal/model"
	"github.com/veriloglab/judge-backend/internal/response"
	"github.com/veriloglab/judge-backend/internal/validator"
)

// SubmissionService is implemented by service.SubmissionService.
type SubmissionService interface {
	Submit(ctx context.Context, userID uuid.UUID, username string, req model.SubmitRequest) (*model.SubmitResponse, error)
	History(ctx context.Context, userID uuid.UUID, page, perPage int) ([]model.Submission, int64, error)
	Review(ctx context.Context, reviewerID, submissionID uuid.UUID, req model.ReviewRequest) (*model.Submission, error)
}

// SubmissionHandler handles judging and review endpoints.
type SubmissionHandler struct {
	submissions SubmissionService
	log         zerolog.Logger
}

// NewSubmissionHandler creates a new SubmissionHandler.
func NewSubmissionHandler(submissions SubmissionService, log zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		submissions: submissions,
		log:         log.With().Str("component", "submission_handler").Logger(),
	}
}

// Submit godoc
// POST /api/v1/submissions
// Judges source against the problem's hidden testbench and returns the verdict.
func (h *SubmissionHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	resp, err := h.submissions.Submit(c.Request.Context(), claims.UserID, claims.Username, req)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, resp)
}

// History godoc
// GET /api/v1/submissions/user/:user_id
func (h *SubmissionHandler) History(c *gin.Context) {
	userID, ok := paramUUID(c, "user_id")
	if !ok {
		return
	}
	page, perPage := pageParams(c)

	subs, total, err := h.submissions.History(c.Request.Context(), userID, page, perPage)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	if subs == nil {
		subs = []model.Submission{}
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"submissions": subs}, response.NewPagination(page, perPage, total))
}

// Review godoc
// PUT /api/v1/admin/submissions/:id/review
// Overrides a judged verdict once.
func (h *SubmissionHandler) Review(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	var req model.ReviewRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sub, err := h.submissions.Review(c.Request.Context(), claims.UserID, id, req)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, sub)
}

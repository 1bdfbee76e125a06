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

const defaultLeaderboardLimit = 50

// ContestService is implemented by service.ContestService.
type ContestService interface {
	Create(ctx context.Context, adminID uuid.UUID, req model.CreateContestRequest) (*model.Contest, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Contest, error)
	List(ctx context.Context, page, perPage int) ([]model.Contest, int64, error)
	Register(ctx context.Context, contestID, userID uuid.UUID, username string) (*model.ContestParticipant, error)
	Participant(ctx context.Context, contestID, userID uuid.UUID) (*model.ContestParticipant, error)
	Leaderboard(ctx context.Context, contestID uuid.UUID, limit int) ([]model.LeaderboardEntry, error)
	GlobalLeaderboard(ctx context.Context, limit int) ([]model.UserStanding, error)
}

// ContestHandler handles contest and leaderboard endpoints.
type ContestHandler struct {
	contests ContestService
	log      zerolog.Logger
}

// NewContestHandler creates a new ContestHandler.
func NewContestHandler(contests ContestService, log zerolog.Logger) *ContestHandler {
	return &ContestHandler{
		contests: contests,
		log:      log.With().Str("component", "contest_handler").Logger(),
	}
}

// ListContests godoc
// GET /api/v1/contests
func (h *ContestHandler) ListContests(c *gin.Context) {
	page, perPage := pageParams(c)

	contests, total, err := h.contests.List(c.Request.Context(), page, perPage)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	if contests == nil {
		contests = []model.Contest{}
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"contests": contests}, response.NewPagination(page, perPage, total))
}

// GetContest godoc
// GET /api/v1/contests/:id
func (h *ContestHandler) GetContest(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	contest, err := h.contests.Get(c.Request.Context(), id)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, contest)
}

// CreateContest godoc
// POST /api/v1/admin/contests
func (h *ContestHandler) CreateContest(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateContestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	contest, err := h.contests.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, contest)
}

// Register godoc
// POST /api/v1/contests/:id/register
func (h *ContestHandler) Register(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	p, err := h.contests.Register(c.Request.Context(), id, claims.UserID, claims.Username)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, p)
}

// Me godoc
// GET /api/v1/contests/:id/me
func (h *ContestHandler) Me(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	p, err := h.contests.Participant(c.Request.Context(), id, claims.UserID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, p)
}

// Leaderboard godoc
// GET /api/v1/contests/:id/leaderboard
// Ranked by score descending, then by finish time ascending.
func (h *ContestHandler) Leaderboard(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	rows, err := h.contests.Leaderboard(c.Request.Context(), id, limitParam(c, defaultLeaderboardLimit))
	if err != nil {
		failService(c, h.log, err)
		return
	}
	if rows == nil {
		rows = []model.LeaderboardEntry{}
	}

	response.Success(c, http.StatusOK, gin.H{"contest_id": id, "entries": rows})
}

// GlobalLeaderboard godoc
// GET /api/v1/leaderboard
func (h *ContestHandler) GlobalLeaderboard(c *gin.Context) {
	rows, err := h.contests.GlobalLeaderboard(c.Request.Context(), limitParam(c, defaultLeaderboardLimit))
	if err != nil {
		failService(c, h.log, err)
		return
	}
	if rows == nil {
		rows = []model.UserStanding{}
	}

	response.Success(c, http.StatusOK, gin.H{"entries": rows})
}

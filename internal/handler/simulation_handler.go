package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/veriloglab/judge-backend/internal/model"
	"github.com/veriloglab/judge-backend/internal/response"
	"github.com/veriloglab/judge-backend/internal/service"
	"github.com/veriloglab/judge-backend/internal/validator"
)

// Simulator is implemented by service.SimulationService.
type Simulator interface {
	Simulate(ctx context.Context, req model.SimulateRequest) (*service.SimulationResult, error)
}

// SimulationHandler serves interactive runs.
type SimulationHandler struct {
	simulator Simulator
	log       zerolog.Logger
}

// NewSimulationHandler creates a new SimulationHandler.
func NewSimulationHandler(simulator Simulator, log zerolog.Logger) *SimulationHandler {
	return &SimulationHandler{
		simulator: simulator,
		log:       log.With().Str("component", "simulation_handler").Logger(),
	}
}

// Run godoc
// POST /api/v1/simulations/run
// Compiles and simulates the source, returning output, the raw trace and the decoded waveform.
func (h *SimulationHandler) Run(c *gin.Context) {
	var req model.SimulateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.simulator.Simulate(c.Request.Context(), req)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

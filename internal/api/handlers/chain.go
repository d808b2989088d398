package handlers

import (
	"net/http"
	"time"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/Harshitk-cp/atomspace/internal/service"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

type ChainHandler struct {
	engine *service.Engine
	logger *zap.Logger
}

func NewChainHandler(engine *service.Engine, logger *zap.Logger) *ChainHandler {
	return &ChainHandler{engine: engine, logger: logger}
}

type budgetBody struct {
	MaxPasses int   `json:"max_passes,omitempty" validate:"gte=0"`
	MaxSteps  int   `json:"max_steps,omitempty" validate:"gte=0"`
	TimeoutMS int64 `json:"timeout_ms,omitempty" validate:"gte=0"`
}

func (b budgetBody) budget() service.Budget {
	return service.Budget{
		MaxPasses: b.MaxPasses,
		MaxSteps:  b.MaxSteps,
		Timeout:   time.Duration(b.TimeoutMS) * time.Millisecond,
	}
}

type forwardRequest struct {
	Rules        []string              `json:"rules,omitempty"`
	WorkingSet   []domain.ID           `json:"working_set,omitempty"`
	Budget       budgetBody            `json:"budget"`
	Focus        *float64              `json:"focus,omitempty" validate:"omitempty,gte=0,lte=1"`
	Continuation *service.Continuation `json:"continuation,omitempty"`
}

// Forward runs forward chaining. A BudgetExhausted result carries a
// continuation that can be posted back to resume the run.
func (h *ChainHandler) Forward(w http.ResponseWriter, r *http.Request) {
	var req forwardRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.engine.ChainForward(r.Context(), service.ForwardRequest{
		Rules:        req.Rules,
		WorkingSet:   req.WorkingSet,
		Budget:       req.Budget.budget(),
		Focus:        req.Focus,
		Continuation: req.Continuation,
	})
	if err != nil && res == nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if err != nil {
		h.logger.Info("forward chaining interrupted", zap.String("run_id", res.RunID), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, res)
}

type backwardRequest struct {
	Goal         *domain.Pattern `json:"goal" validate:"required"`
	Rules        []string        `json:"rules,omitempty"`
	MaxDepth     int             `json:"max_depth,omitempty" validate:"gte=0"`
	MaxSolutions int             `json:"max_solutions,omitempty" validate:"gte=0"`
	Budget       budgetBody      `json:"budget"`
}

func (h *ChainHandler) Backward(w http.ResponseWriter, r *http.Request) {
	var req backwardRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.engine.ChainBackward(r.Context(), service.BackwardRequest{
		Goal:         req.Goal,
		Rules:        req.Rules,
		MaxDepth:     req.MaxDepth,
		MaxSolutions: req.MaxSolutions,
		Budget:       req.Budget.budget(),
	})
	if err != nil && res == nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if err != nil {
		h.logger.Info("backward chaining interrupted", zap.String("run_id", res.RunID), zap.Error(err))
	}
	if res.Solutions == nil {
		res.Solutions = []service.Solution{}
	}
	writeJSON(w, http.StatusOK, res)
}

// Rules lists the rules the engine knows.
func (h *ChainHandler) Rules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.engine.Rules().Select(nil)
	if err != nil {
		writeDomainError(w, h.logger, errors.Wrap(err, "list rules"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

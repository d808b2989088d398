package handlers

import (
	"net/http"
	"strconv"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/Harshitk-cp/atomspace/internal/service"
	"go.uber.org/zap"
)

type AttentionHandler struct {
	attention *service.AttentionAllocator
	logger    *zap.Logger
}

func NewAttentionHandler(attention *service.AttentionAllocator, logger *zap.Logger) *AttentionHandler {
	return &AttentionHandler{attention: attention, logger: logger}
}

type touchRequest struct {
	IDs []domain.ID `json:"ids" validate:"required,min=1"`
}

func (h *AttentionHandler) Touch(w http.ResponseWriter, r *http.Request) {
	var req touchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.attention.TouchAll(req.IDs); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"touched": len(req.IDs)})
}

type decayRequest struct {
	// Rate defaults to the allocator's configured rate.
	Rate *float64 `json:"rate,omitempty" validate:"omitempty,gte=0,lte=1"`
}

func (h *AttentionHandler) Decay(w http.ResponseWriter, r *http.Request) {
	var req decayRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rate := h.attention.Rate
	if req.Rate != nil {
		rate = *req.Rate
	}
	n := h.attention.Decay(rate)
	writeJSON(w, http.StatusOK, map[string]any{"decayed": n, "rate": rate})
}

// Focus lists atoms at or above ?threshold= (default 0.5) by importance.
func (h *AttentionHandler) Focus(w http.ResponseWriter, r *http.Request) {
	threshold := 0.5
	if v := r.URL.Query().Get("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t < 0 || t > 1 {
			writeError(w, http.StatusBadRequest, "threshold must be a number in [0, 1]")
			return
		}
		threshold = t
	}
	atoms := h.attention.Focus(threshold)
	if atoms == nil {
		atoms = []*domain.Atom{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"atoms": atoms, "threshold": threshold})
}

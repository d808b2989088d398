package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/Harshitk-cp/atomspace/internal/service"
	"go.uber.org/zap"
)

const defaultQueryLimit = 1000

type QueryHandler struct {
	matcher *service.Matcher
	logger  *zap.Logger
}

func NewQueryHandler(matcher *service.Matcher, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{matcher: matcher, logger: logger}
}

type queryRequest struct {
	// Templates are joined; bindings must satisfy all of them.
	Templates []*domain.Pattern `json:"templates" validate:"required,min=1"`
	Focus     *float64          `json:"focus,omitempty" validate:"omitempty,gte=0,lte=1"`
	Limit     int               `json:"limit,omitempty" validate:"gte=0"`
}

type queryMatch struct {
	Binding map[string]domain.ID `json:"binding"`
	Atoms   []domain.ID          `json:"atoms"`
}

func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultQueryLimit
	}

	var opts []service.MatchOption
	if req.Focus != nil {
		opts = append(opts, service.WithFocus(*req.Focus))
	}
	seq, err := h.matcher.MatchAll(req.Templates, opts...)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	var vars []string
	seen := map[string]bool{}
	for _, t := range req.Templates {
		for _, v := range t.Vars() {
			if !seen[v] {
				seen[v] = true
				vars = append(vars, v)
			}
		}
	}

	matches := []queryMatch{}
	truncated := false
	for ids, b := range seq {
		if len(matches) == limit {
			truncated = true
			break
		}
		m := queryMatch{Binding: make(map[string]domain.ID, len(vars)), Atoms: ids}
		for _, v := range vars {
			if id, ok := b.Get(v); ok {
				m.Binding[v] = id
			}
		}
		matches = append(matches, m)
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches, "count": len(matches), "truncated": truncated})
}

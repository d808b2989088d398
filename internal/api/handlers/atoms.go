package handlers

import (
	"net/http"
	"strconv"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type AtomHandler struct {
	store  domain.AtomStore
	logger *zap.Logger
}

func NewAtomHandler(store domain.AtomStore, logger *zap.Logger) *AtomHandler {
	return &AtomHandler{store: store, logger: logger}
}

type tvBody struct {
	S float64 `json:"s" validate:"gte=0,lte=1"`
	C float64 `json:"c" validate:"gte=0,lte=1"`
}

type avBody struct {
	STI float64 `json:"sti" validate:"gte=0,lte=1"`
	LTI float64 `json:"lti" validate:"gte=0,lte=1"`
}

type createAtomRequest struct {
	Kind     domain.Kind `json:"kind,omitempty" validate:"omitempty,oneof=Node Link"`
	Subtype  string      `json:"subtype" validate:"required"`
	Name     string      `json:"name,omitempty"`
	Outgoing []domain.ID `json:"outgoing,omitempty"`
	TV       *tvBody     `json:"tv,omitempty"`
	AV       *avBody     `json:"av,omitempty"`
}

type createAtomResponse struct {
	ID       domain.ID             `json:"id"`
	Created  bool                  `json:"created"`
	Atom     *domain.Atom          `json:"atom"`
	Revision *domain.InferenceStep `json:"revision,omitempty"`
}

// Create inserts an atom. Re-inserting an existing atom revises its truth
// value and answers 200 instead of 201.
func (h *AtomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAtomRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	atom := &domain.Atom{
		Kind:     req.Kind,
		Subtype:  req.Subtype,
		Name:     req.Name,
		Outgoing: req.Outgoing,
		TV:       domain.UnknownTV,
	}
	if req.TV != nil {
		atom.WithTV(req.TV.S, req.TV.C)
	}
	if req.AV != nil {
		atom.WithAV(req.AV.STI, req.AV.LTI)
	}

	res, err := h.store.Insert(atom)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	stored, err := h.store.Get(res.ID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, createAtomResponse{ID: res.ID, Created: res.Created, Atom: stored, Revision: res.Revision})
}

func (h *AtomHandler) Get(w http.ResponseWriter, r *http.Request) {
	atom, err := h.store.Get(domain.ID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, atom)
}

// Delete removes an atom. ?cascade=true also removes links that reference it.
func (h *AtomHandler) Delete(w http.ResponseWriter, r *http.Request) {
	cascade, _ := strconv.ParseBool(r.URL.Query().Get("cascade"))
	removed, err := h.store.Remove(domain.ID(chi.URLParam(r, "id")), cascade)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

// List filters atoms by ?kind=, ?subtype= and ?name=.
func (h *AtomHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.Filter{
		Kind:    domain.Kind(q.Get("kind")),
		Subtype: q.Get("subtype"),
		Name:    q.Get("name"),
	}
	if f.Kind != "" && !domain.ValidKind(string(f.Kind)) {
		writeError(w, http.StatusBadRequest, "kind must be Node or Link")
		return
	}
	atoms := h.store.Find(f)
	if atoms == nil {
		atoms = []*domain.Atom{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"atoms": atoms, "count": len(atoms)})
}

func (h *AtomHandler) Incoming(w http.ResponseWriter, r *http.Request) {
	id := domain.ID(chi.URLParam(r, "id"))
	if _, err := h.store.Get(id); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	links := h.store.Incoming(id)
	if links == nil {
		links = []*domain.Atom{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"incoming": links})
}

// Trace returns every step that contributed to an atom's truth value.
func (h *AtomHandler) Trace(w http.ResponseWriter, r *http.Request) {
	id := domain.ID(chi.URLParam(r, "id"))
	if _, err := h.store.Get(id); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	steps := h.store.Trace(id)
	if steps == nil {
		steps = []*domain.InferenceStep{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"steps": steps})
}

// Steps lists ledger entries filtered by ?rule=, ?conclusion=, ?premise=,
// ?run_id= and ?invalidated=.
func (h *AtomHandler) Steps(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.StepFilter{
		Rule:       domain.RuleName(q.Get("rule")),
		Conclusion: domain.ID(q.Get("conclusion")),
		Premise:    domain.ID(q.Get("premise")),
		RunID:      q.Get("run_id"),
	}
	if v := q.Get("invalidated"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalidated must be a boolean")
			return
		}
		f.Invalidated = &b
	}
	steps := h.store.Steps(f)
	if steps == nil {
		steps = []*domain.InferenceStep{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"steps": steps, "count": len(steps)})
}

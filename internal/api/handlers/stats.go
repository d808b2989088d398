package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

type StatsHandler struct {
	store       domain.AtomStore
	snapshotter domain.Snapshotter
	logger      *zap.Logger
}

// NewStatsHandler serves statistics and snapshots. snapshotter may be nil,
// in which case snapshot requests answer 503.
func NewStatsHandler(store domain.AtomStore, snapshotter domain.Snapshotter, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{store: store, snapshotter: snapshotter, logger: logger}
}

func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Stats())
}

func (h *StatsHandler) Save(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshots are disabled")
		return
	}
	snap := h.store.Snapshot()
	if err := h.snapshotter.Save(r.Context(), snap); err != nil {
		writeDomainError(w, h.logger, errors.Wrap(err, "save snapshot"))
		return
	}
	h.logger.Info("snapshot saved", zap.Int("atoms", len(snap.Atoms)), zap.Int("steps", len(snap.Steps)))
	writeJSON(w, http.StatusOK, map[string]any{"atoms": len(snap.Atoms), "steps": len(snap.Steps), "saved_at": snap.SavedAt})
}

// Load replaces the store contents with the last saved snapshot.
func (h *StatsHandler) Load(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshots are disabled")
		return
	}
	snap, err := h.snapshotter.Load(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if err := h.store.Restore(snap); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"atoms": len(snap.Atoms), "steps": len(snap.Steps)})
}

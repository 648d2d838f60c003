package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/engagement-engine/internal/domain"
	"github.com/ignite/engagement-engine/internal/engine"
	"github.com/ignite/engagement-engine/internal/pkg/httputil"
	"github.com/ignite/engagement-engine/internal/service/strategy"
)

// Engine is the read-only view of the orchestrator served over HTTP.
// *engine.Orchestrator implements it.
type Engine interface {
	IsRunning() bool
	Stats() []engine.Stats
	Arms(ctx context.Context, tenantID, segment, sourceID string) ([]strategy.Arm, error)
}

// Handlers contains the HTTP handlers for the stats API
type Handlers struct {
	engine Engine
}

// NewHandlers creates a new Handlers instance
func NewHandlers(e Engine) *Handlers {
	return &Handlers{engine: e}
}

// GetStats returns per-tenant pool, monitor and feedback counters.
//
//	GET /stats
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{
		"running": h.engine.IsRunning(),
		"tenants": h.engine.Stats(),
	})
}

// GetArms returns the strategy posteriors for a segment and source. An empty
// source means the segment-wide row.
//
//	GET /tenants/{tenant}/arms?segment=&source=
func (h *Handlers) GetArms(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	segment := r.URL.Query().Get("segment")
	source := r.URL.Query().Get("source")
	if source == "" {
		source = domain.WildcardSource
	}

	arms, err := h.engine.Arms(r.Context(), tenantID, segment, source)
	if errors.Is(err, engine.ErrUnknownTenant) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"tenant":  tenantID,
		"segment": segment,
		"source":  source,
		"arms":    arms,
	})
}

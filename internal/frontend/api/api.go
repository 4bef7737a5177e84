// Package api implements the v1 HTTP handlers over the graph store and
// the gate resolution entry point of the driver.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gantry-org/gantry/internal/agent"
	"github.com/gantry-org/gantry/internal/build"
	"github.com/gantry-org/gantry/internal/core"
)

// GateResolver applies a human decision to an awaiting gate. The driver
// implements it.
type GateResolver interface {
	ResolveGate(ctx context.Context, taskID, graphID, nodeID string, res agent.GateResolution) (int64, error)
}

// API holds the handler dependencies.
type API struct {
	store    core.GraphStore
	resolver GateResolver
	started  time.Time
}

// New creates the API over the given store and gate resolver.
func New(store core.GraphStore, resolver GateResolver) *API {
	return &API{store: store, resolver: resolver, started: time.Now()}
}

// ConfigureRoutes mounts the v1 routes on the given router.
func (a *API) ConfigureRoutes(r chi.Router) {
	r.Get("/health", a.getHealth)
	r.Get("/graphs", a.listGraphs)
	r.Get("/tasks/{taskID}/graphs/{graphID}", a.getGraph)
	r.Post("/tasks/{taskID}/graphs/{graphID}/gates/{nodeID}/resolve", a.resolveGate)
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  int    `json:"uptime"`
}

func (a *API) getHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "healthy",
		Version: build.Version,
		Uptime:  int(time.Since(a.started).Seconds()),
	})
}

type graphSummary struct {
	ID       string `json:"id"`
	TaskID   string `json:"taskId"`
	Version  int64  `json:"graphVersion"`
	Nodes    int    `json:"nodes"`
	Running  int    `json:"runningWork"`
	Complete bool   `json:"complete"`
}

func (a *API) listGraphs(w http.ResponseWriter, r *http.Request) {
	graphs, err := a.store.List(r.Context())
	if err != nil {
		writeError(w, fromDomainError(err))
		return
	}
	summaries := make([]graphSummary, 0, len(graphs))
	for _, g := range graphs {
		summaries = append(summaries, graphSummary{
			ID:       g.ID,
			TaskID:   g.TaskID,
			Version:  g.Version,
			Nodes:    len(g.Nodes),
			Running:  g.RunningWorkCount(),
			Complete: core.IsComplete(g),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"graphs": summaries})
}

func (a *API) getGraph(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	graphID := chi.URLParam(r, "graphID")

	g, err := a.store.Get(r.Context(), taskID, graphID)
	if err != nil {
		writeError(w, fromDomainError(err))
		return
	}
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(g.Version, 10)))
	writeJSON(w, http.StatusOK, g)
}

type resolveGateRequest struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

type resolveGateResponse struct {
	GraphVersion int64 `json:"graphVersion"`
}

// resolveGate applies a gate decision. The If-Match header must carry the
// graph version the client read; a missing or malformed header is a 412,
// a lost race is a 409. The client re-reads and decides again in both
// cases.
func (a *API) resolveGate(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	graphID := chi.URLParam(r, "graphID")
	nodeID := chi.URLParam(r, "nodeID")

	version, ok := parseIfMatch(r.Header.Get("If-Match"))
	if !ok {
		writeError(w, newAPIError(http.StatusPreconditionFailed,
			"missing_precondition", "If-Match header with the graph version is required"))
		return
	}

	var req resolveGateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, newAPIError(http.StatusBadRequest, "invalid_body", "failed to decode request body"))
		return
	}

	newVersion, err := a.resolver.ResolveGate(r.Context(), taskID, graphID, nodeID, agent.GateResolution{
		Approved:       req.Approved,
		Feedback:       req.Feedback,
		IfMatchVersion: version,
	})
	if err != nil {
		writeError(w, fromDomainError(err))
		return
	}

	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(newVersion, 10)))
	writeJSON(w, http.StatusOK, resolveGateResponse{GraphVersion: newVersion})
}

// parseIfMatch extracts the version from an If-Match header, accepting
// both bare integers and quoted ETags.
func parseIfMatch(value string) (int64, bool) {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "W/")
	value = strings.Trim(value, `"`)
	if value == "" {
		return 0, false
	}
	version, err := strconv.ParseInt(value, 10, 64)
	if err != nil || version < 1 {
		return 0, false
	}
	return version, true
}

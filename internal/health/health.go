// Package health serves the bridge's liveness and readiness probes.
//
// Two endpoints are exposed:
//
//   - /healthz — liveness; a process that can answer HTTP is alive.
//   - /readyz  — readiness; 200 only while every probe passes. A bridge
//     with a disconnected device or a degraded channel reports 503 so a
//     supervisor can alert or restart it.
//
// The response body is JSON: a top-level "status" plus one entry per probe
// with its individual outcome and, on failure, the reason.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout bounds a single readiness probe.
const probeTimeout = 5 * time.Second

// Checker is a named readiness probe. Check returns nil while the probed
// subsystem is usable and an error describing the failure otherwise.
type Checker struct {
	// Name identifies the probe in the JSON report, e.g. "microphone" or
	// "outbound".
	Name string

	// Check probes the subsystem. It must respect ctx cancellation.
	Check func(ctx context.Context) error
}

// probeResult is one probe's entry in the readiness report.
type probeResult struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// report is the JSON body of both endpoints.
type report struct {
	Status string                 `json:"status"`
	Probes map[string]probeResult `json:"probes,omitempty"`
}

// Handler answers /healthz and /readyz. The probe set is fixed at
// construction, so Handler is safe for concurrent use.
type Handler struct {
	probes []Checker
}

// New creates a [Handler] that runs the given probes, in order, on every
// /readyz request.
func New(probes ...Checker) *Handler {
	p := make([]Checker, len(probes))
	copy(p, probes)
	return &Handler{probes: p}
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz runs every probe under a [probeTimeout] deadline and answers 200
// only when all of them pass. Probes that fail stay in the report with their
// reason so operators see every broken subsystem at once, not just the first.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := report{
		Status: "ok",
		Probes: make(map[string]probeResult, len(h.probes)),
	}

	for _, p := range h.probes {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := p.Check(ctx)
		cancel()

		if err != nil {
			rep.Status = "fail"
			rep.Probes[p.Name] = probeResult{Status: "fail", Reason: err.Error()}
			continue
		}
		rep.Probes[p.Name] = probeResult{Status: "ok"}
	}

	code := http.StatusOK
	if rep.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

// Register adds both probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/kuitang/noteboard/internal/errs"
	"github.com/kuitang/noteboard/internal/fault"
	"github.com/kuitang/noteboard/internal/notes"
	"github.com/kuitang/noteboard/internal/obs"
)

// maxBodyBytes bounds the create payload.
const maxBodyBytes = 1 << 20

// Pinger is implemented by stores that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the note and fault-control endpoints.
type Handler struct {
	store  notes.Store
	faults *fault.State
}

// NewHandler creates a handler over the given store and fault state.
func NewHandler(store notes.Store, faults *fault.State) *Handler {
	return &Handler{store: store, faults: faults}
}

// RegisterRoutes registers all API routes under prefix on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, prefix string) {
	mux.HandleFunc("GET "+prefix+"/notes", h.ListNotes)
	mux.HandleFunc("POST "+prefix+"/notes", h.CreateNote)
	mux.HandleFunc("DELETE "+prefix+"/notes", h.ClearNotes)

	mux.HandleFunc("GET "+prefix+"/fault", h.GetFault)
	mux.HandleFunc("GET "+prefix+"/fault/slowdown", h.EnableSlowdown)
	mux.HandleFunc("DELETE "+prefix+"/fault/slowdown", h.DisableSlowdown)
	mux.HandleFunc("GET "+prefix+"/fault/error", h.EnableErrors)
	mux.HandleFunc("DELETE "+prefix+"/fault/error", h.DisableErrors)

	mux.HandleFunc("GET "+prefix+"/healthz", h.Healthz)
}

// ListNotes handles GET /notes.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	result, err := h.store.List(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CreateNote handles POST /notes. Both text and completed must be present.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var in notes.NoteIn
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&in); err != nil {
		writeErr(w, r, errs.Wrap(errs.InvalidArgument, "invalid JSON body", err))
		return
	}
	if in.Text == nil {
		writeErr(w, r, errs.New(errs.InvalidArgument, "text is required"))
		return
	}
	if in.Completed == nil {
		writeErr(w, r, errs.New(errs.InvalidArgument, "completed is required"))
		return
	}

	note, err := h.store.Insert(r.Context(), *in.Text, *in.Completed)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// ClearNotes handles DELETE /notes. The response has no body.
func (h *Handler) ClearNotes(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// FaultResponse is the wire form of the fault configuration. Errors is
// null while error injection is disabled.
type FaultResponse struct {
	Slowdown SlowdownResponse `json:"slowdown"`
	Errors   []int            `json:"errors"`
}

// SlowdownResponse holds the latency settings in milliseconds.
type SlowdownResponse struct {
	Latency float64 `json:"latency"`
	Jitter  float64 `json:"jitter"`
}

func faultResponse(snap fault.Snapshot) FaultResponse {
	return FaultResponse{
		Slowdown: SlowdownResponse{Latency: snap.LatencyMS, Jitter: snap.JitterMS},
		Errors:   snap.ErrorCodes,
	}
}

// GetFault handles GET /fault.
func (h *Handler) GetFault(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, faultResponse(h.faults.Get()))
}

// EnableSlowdown handles GET /fault/slowdown?latency=&jitter=.
func (h *Handler) EnableSlowdown(w http.ResponseWriter, r *http.Request) {
	latency, err := floatParam(r, "latency", fault.DefaultSlowdownLatencyMS)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	jitter, err := floatParam(r, "jitter", fault.DefaultSlowdownJitterMS)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if err := h.faults.SetLatency(latency, jitter); err != nil {
		writeErr(w, r, err)
		return
	}
	obs.From(r.Context()).Info("fault_slowdown_enabled", "latency_ms", latency, "jitter_ms", jitter)
	writeJSON(w, http.StatusOK, faultResponse(h.faults.Get()))
}

// DisableSlowdown handles DELETE /fault/slowdown.
func (h *Handler) DisableSlowdown(w http.ResponseWriter, r *http.Request) {
	h.faults.ClearLatency()
	obs.From(r.Context()).Info("fault_slowdown_disabled")
	writeJSON(w, http.StatusOK, faultResponse(h.faults.Get()))
}

// EnableErrors handles GET /fault/error.
func (h *Handler) EnableErrors(w http.ResponseWriter, r *http.Request) {
	if err := h.faults.EnableErrors(fault.DefaultErrorCodes); err != nil {
		writeErr(w, r, err)
		return
	}
	obs.From(r.Context()).Info("fault_errors_enabled", "codes", fault.DefaultErrorCodes)
	writeJSON(w, http.StatusOK, faultResponse(h.faults.Get()))
}

// DisableErrors handles DELETE /fault/error.
func (h *Handler) DisableErrors(w http.ResponseWriter, r *http.Request) {
	h.faults.DisableErrors()
	obs.From(r.Context()).Info("fault_errors_disabled")
	writeJSON(w, http.StatusOK, faultResponse(h.faults.Get()))
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// Healthz reports whether the store is reachable.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.store.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeErr(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func floatParam(r *http.Request, name string, def float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errs.Wrap(errs.InvalidArgument, name+" must be a number", errors.Join(fault.ErrInvalidConfig, err))
	}
	return v, nil
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeErr maps err to its HTTP status and writes the public message.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := errs.StatusOf(err)
	logger := obs.From(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request_failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		logger.Warn("request_rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: errs.MessageOf(err)})
}

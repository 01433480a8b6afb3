package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kuitang/noteboard/internal/errs"
	"github.com/kuitang/noteboard/internal/notes"
	"github.com/kuitang/noteboard/internal/obs"
)

const maxBodyBytes = 1 << 20

// NotesAPI is the subset of the note API the frontend uses. *APIClient
// implements it.
type NotesAPI interface {
	ListNotes(ctx context.Context) ([]notes.Note, error)
	CreateNote(ctx context.Context, text string, completed bool) (notes.Note, error)
}

// Handler serves the board page and the JSON proxy.
type Handler struct {
	api      NotesAPI
	renderer *Renderer
	title    string
	prefix   string
}

// NewHandler creates a frontend handler. prefix is the mount point used
// for links rendered into the page.
func NewHandler(api NotesAPI, renderer *Renderer, title, prefix string) *Handler {
	return &Handler{api: api, renderer: renderer, title: title, prefix: prefix}
}

// IndexData is the template data for index.html.
type IndexData struct {
	Title  string
	Prefix string
	Nonce  string
	Notes  []notes.Note
	Error  string
}

// Index renders the board. If the API cannot be reached or answers with
// an error the page is still rendered, with a banner and status 502.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	data := IndexData{
		Title:  h.title,
		Prefix: h.prefix,
		Nonce:  NonceFromContext(r.Context()),
	}
	status := http.StatusOK

	list, err := h.api.ListNotes(r.Context())
	if err != nil {
		obs.From(r.Context()).Warn("index_upstream_failed", "error", err)
		status = http.StatusBadGateway
		data.Error = "Notes are unavailable right now: " + publicMessage(err)
	} else {
		data.Notes = list
	}

	if err := h.renderer.Render(w, status, "index.html", data); err != nil {
		obs.From(r.Context()).Error("render_failed", "template", "index.html", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// ListNotes proxies GET /notes.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	list, err := h.api.ListNotes(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateNote validates the payload and proxies POST /notes.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var in notes.NoteIn
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&in); err != nil {
		writeErr(w, r, errs.Wrap(errs.InvalidArgument, "invalid JSON body", err))
		return
	}
	if in.Text == nil || in.Completed == nil {
		writeErr(w, r, errs.New(errs.InvalidArgument, "text and completed are required"))
		return
	}

	note, err := h.api.CreateNote(r.Context(), *in.Text, *in.Completed)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// ErrorResponse represents a frontend error response
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeErr passes upstream statuses through and maps everything else by
// error code.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := errs.StatusOf(err)
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		status = upstream.Status
	}
	obs.From(r.Context()).Warn("proxy_failed", "path", r.URL.Path, "status", status, "error", err)
	writeJSON(w, status, ErrorResponse{Error: publicMessage(err)})
}

func publicMessage(err error) string {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Message
	}
	return errs.MessageOf(err)
}

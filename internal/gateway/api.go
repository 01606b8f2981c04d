// ABOUTME: HTTP API handlers for sessions, conversation, prospects, research and notices
// ABOUTME: Maps component errors onto status codes: identity 401, upstream 502, state 409

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/2389/scout-desk/internal/auth"
	"github.com/2389/scout-desk/internal/client"
	"github.com/2389/scout-desk/internal/conversation"
	"github.com/2389/scout-desk/internal/notice"
	"github.com/2389/scout-desk/internal/prospect"
	"github.com/2389/scout-desk/internal/research"
	"github.com/2389/scout-desk/internal/store"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// SessionListResponse is the JSON response for GET /api/sessions.
// Stale is set when the store could not be read and Sessions is the last
// snapshot that could.
type SessionListResponse struct {
	Sessions []store.Session `json:"sessions"`
	Stale    bool            `json:"stale,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// SessionTitleRequest is the JSON body for creating or renaming a session.
type SessionTitleRequest struct {
	Title string `json:"title"`
}

// SubmitRequest is the JSON body for POST /api/conversation/messages.
type SubmitRequest struct {
	Content string `json:"content"`
}

// SubmitResponse is the JSON response for POST /api/conversation/messages.
type SubmitResponse struct {
	RequestID string            `json:"request_id"`
	View      conversation.View `json:"view"`
}

// SearchResponse is the JSON response for POST /api/prospects/search.
type SearchResponse struct {
	*prospect.Result
	Degraded bool `json:"degraded"`
}

// CompanySearchResponse is the JSON response for POST /api/prospects/companies.
type CompanySearchResponse struct {
	*prospect.CompanyResult
	Degraded bool `json:"degraded"`
}

// SaveProspectRequest is the JSON body for POST /api/prospects/save.
type SaveProspectRequest struct {
	Kind store.ProspectKind `json:"kind"`
	Data json.RawMessage    `json:"data"`
}

// ReportResponse is one saved report with its rendered HTML.
type ReportResponse struct {
	research.Report
	HTML string `json:"html"`
}

// CredentialRequest is the JSON body for PUT /api/credentials.
type CredentialRequest struct {
	Token string `json:"token"`
}

// errorResponse is the JSON error body.
type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
	Reauth    bool   `json:"reauth,omitempty"`
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the store answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := g.store.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if g.directory == nil {
		g.writeError(w, r, auth.ErrIdentity)
		return
	}

	resp := SessionListResponse{}
	sessions, err := g.directory.List(r.Context())
	if err != nil {
		resp.Stale = true
		resp.Error = err.Error()
	}
	if q := r.URL.Query().Get("q"); q != "" {
		sessions = g.directory.Search(q)
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	resp.Sessions = sessions
	writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if g.directory == nil {
		g.writeError(w, r, auth.ErrIdentity)
		return
	}
	var req SessionTitleRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	s, err := g.directory.Create(r.Context(), req.Title)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (g *Gateway) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	if g.directory == nil {
		g.writeError(w, r, auth.ErrIdentity)
		return
	}
	var req SessionTitleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := g.directory.Rename(r.Context(), chi.URLParam(r, "id"), req.Title); err != nil {
		g.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if g.directory == nil {
		g.writeError(w, r, auth.ErrIdentity)
		return
	}
	if err := g.directory.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		g.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSelectSession switches the conversation. With ?debounce=true the
// switch is coalesced with other rapid switches and answered with 202.
func (g *Gateway) handleSelectSession(w http.ResponseWriter, r *http.Request) {
	if g.conversation == nil {
		g.writeError(w, r, auth.ErrIdentity)
		return
	}
	id := chi.URLParam(r, "id")
	if r.URL.Query().Get("debounce") == "true" {
		g.conversation.RequestSelect(id)
		writeJSON(w, http.StatusAccepted, g.conversation.View())
		return
	}
	if err := g.conversation.Select(r.Context(), id); err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g.conversation.View())
}

func (g *Gateway) handleConversation(w http.ResponseWriter, r *http.Request) {
	if g.conversation == nil {
		g.writeError(w, r, auth.ErrIdentity)
		return
	}
	writeJSON(w, http.StatusOK, g.conversation.View())
}

func (g *Gateway) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if g.conversation == nil {
		g.writeError(w, r, auth.ErrIdentity)
		return
	}
	var req SubmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	requestID, err := g.conversation.Submit(r.Context(), req.Content)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitResponse{RequestID: requestID, View: g.conversation.View()})
}

func (g *Gateway) handleSearch(w http.ResponseWriter, r *http.Request) {
	var c prospect.Criteria
	if r.ContentLength != 0 && !decodeJSON(w, r, &c) {
		return
	}
	res, err := g.prospects.Search(r.Context(), c)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Result: res, Degraded: res.Degraded()})
}

func (g *Gateway) handleSearchCompanies(w http.ResponseWriter, r *http.Request) {
	var c prospect.CompanyCriteria
	if r.ContentLength != 0 && !decodeJSON(w, r, &c) {
		return
	}
	res, err := g.prospects.SearchCompanies(r.Context(), c)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CompanySearchResponse{CompanyResult: res, Degraded: res.Degraded()})
}

func (g *Gateway) handleSaveProspect(w http.ResponseWriter, r *http.Request) {
	var req SaveProspectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Data) == 0 {
		writeJSONError(w, http.StatusBadRequest, "data is required")
		return
	}
	rec, err := g.prospects.Save(r.Context(), req.Data, req.Kind)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (g *Gateway) handleListSaved(w http.ResponseWriter, r *http.Request) {
	saved, err := g.prospects.ListSaved(r.Context())
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (g *Gateway) handleCredits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.prospects.Credits())
}

func (g *Gateway) handleOpenJob(w http.ResponseWriter, r *http.Request) {
	job := g.research.Open()
	writeJSON(w, http.StatusCreated, job.View())
}

func (g *Gateway) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := g.research.Job(chi.URLParam(r, "id"))
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job.View())
}

// handleGenerate starts a generation and answers 202; ?wait=true blocks
// until the report is ready.
func (g *Gateway) handleGenerate(w http.ResponseWriter, r *http.Request) {
	job, err := g.research.Job(chi.URLParam(r, "id"))
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	var subject research.Subject
	if !decodeJSON(w, r, &subject) {
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		if _, err := job.Generate(r.Context(), subject); err != nil {
			g.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, job.View())
		return
	}

	if err := job.StartGenerate(subject); err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job.View())
}

func (g *Gateway) handleSaveReport(w http.ResponseWriter, r *http.Request) {
	job, err := g.research.Job(chi.URLParam(r, "id"))
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	rec, err := job.Save(r.Context())
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleCloseJob closes the research modal: the job's result is dropped and
// the job forgotten.
func (g *Gateway) handleCloseJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := g.research.Job(id)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	if err := job.Dismiss(); err != nil && !errors.Is(err, research.ErrGenerating) {
		g.writeError(w, r, err)
		return
	}
	if err := g.research.Discard(id); err != nil {
		g.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := g.research.Reports().List(r.Context())
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	out := make([]ReportResponse, 0, len(reports))
	for _, rep := range reports {
		html, err := rep.Document.HTML()
		if err != nil {
			g.logger.Error("failed to render report", "report_id", rep.ID, "error", err)
		}
		out = append(out, ReportResponse{Report: rep, HTML: html})
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": out})
}

// handleDeleteReport deletes a saved report. The caller must pass
// ?confirm=true.
func (g *Gateway) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		writeJSONError(w, http.StatusBadRequest, "deleting a report requires confirm=true")
		return
	}
	if err := g.research.Reports().Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		g.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetCredential replaces the bearer token the workspace uses on
// outbound calls. The token must belong to the workspace owner.
func (g *Gateway) handleSetCredential(w http.ResponseWriter, r *http.Request) {
	var req CredentialRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	owner, err := g.creds.Resolve(strings.TrimSpace(req.Token))
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	if g.directory != nil && owner != g.directory.OwnerID() {
		writeJSONError(w, http.StatusForbidden, "token belongs to a different analyst")
		return
	}
	g.creds.SetToken(strings.TrimSpace(req.Token))
	g.logger.Info("credential replaced", "owner", owner)
	writeJSON(w, http.StatusOK, map[string]string{"owner_id": owner})
}

// handleClearCredential signs the workspace out of the backend.
func (g *Gateway) handleClearCredential(w http.ResponseWriter, r *http.Request) {
	g.creds.Clear()
	g.logger.Info("credential cleared")
	g.notices.Post(notice.Reauth("gateway"))
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleListNotices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"notices": g.notices.List()})
}

func (g *Gateway) handleDismissNotice(w http.ResponseWriter, r *http.Request) {
	if err := g.notices.Dismiss(chi.URLParam(r, "id")); err != nil {
		g.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps a component error onto a status code.
func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var netErr *client.NetworkError
	status := http.StatusInternalServerError
	resp := errorResponse{Error: err.Error()}

	switch {
	case errors.Is(err, auth.ErrIdentity):
		status = http.StatusUnauthorized
		resp.Error = "no usable credential: sign in again"
		resp.Reauth = true
	case errors.As(err, &netErr):
		status = http.StatusBadGateway
		resp.Retryable = netErr.Retryable()
	case errors.Is(err, conversation.ErrBusy),
		errors.Is(err, conversation.ErrNotReady),
		errors.Is(err, research.ErrGenerating),
		errors.Is(err, research.ErrHasResult),
		errors.Is(err, research.ErrNotInReview):
		status = http.StatusConflict
	case errors.Is(err, conversation.ErrEmptyMessage),
		errors.Is(err, research.ErrInvalidSubject),
		errors.Is(err, prospect.ErrInvalidKind):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, research.ErrJobNotFound),
		errors.Is(err, notice.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrUnreachable):
		status = http.StatusServiceUnavailable
		resp.Retryable = true
	}

	if status >= http.StatusInternalServerError {
		g.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

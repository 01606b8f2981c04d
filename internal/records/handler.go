// ABOUTME: HTTP handlers for the saved-prospect and research-report endpoints
// ABOUTME: Every request is scoped to the bearer token's owner; user_id must match it

package records

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/2389/scout-desk/internal/auth"
	"github.com/2389/scout-desk/internal/store"
)

// maxBodyBytes bounds request bodies; reports are the largest payloads.
const maxBodyBytes = 4 << 20

// Handler serves the records endpoints over a RecordStore.
type Handler struct {
	store  store.RecordStore
	logger *slog.Logger
}

// New creates a Handler.
func New(st store.RecordStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: st, logger: logger.With("component", "records")}
}

// RegisterRoutes mounts the endpoints on r behind bearer authentication.
func (h *Handler) RegisterRoutes(r chi.Router, verifier auth.TokenVerifier) {
	r.Group(func(r chi.Router) {
		r.Use(auth.HTTPAuthMiddleware(verifier))
		r.Post("/prospects/save", h.handleSaveProspect)
		r.Get("/prospects/list", h.handleListProspects)
		r.Post("/research/save", h.handleSaveReport)
		r.Get("/research/list", h.handleListReports)
		r.Delete("/research/{id}", h.handleDeleteReport)
	})
}

type saveProspectRequest struct {
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data"`
	UserID string          `json:"user_id"`
}

type prospectList struct {
	People    []*store.SavedProspect `json:"people"`
	Companies []*store.SavedProspect `json:"companies"`
}

type saveReportRequest struct {
	UserID       string          `json:"user_id"`
	ProspectID   string          `json:"prospect_id"`
	ProspectName string          `json:"prospect_name"`
	Company      string          `json:"company"`
	Report       json.RawMessage `json:"report"`
}

type reportList struct {
	Reports []*store.ResearchReport `json:"reports"`
}

func (h *Handler) handleSaveProspect(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	var req saveProspectRequest
	if !decode(w, r, &req) {
		return
	}
	if !h.sameUser(w, owner, req.UserID) {
		return
	}

	kind := store.ProspectKind(req.Type)
	if kind != store.KindPerson && kind != store.KindCompany {
		writeError(w, http.StatusBadRequest, "type must be person or company")
		return
	}
	externalID, err := externalID(req.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p := &store.SavedProspect{
		OwnerID:    owner,
		Kind:       kind,
		ExternalID: externalID,
		Payload:    req.Data,
	}
	if err := h.store.UpsertSavedProspect(r.Context(), p); err != nil {
		h.storeError(w, "saving prospect", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleListProspects(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	if !h.sameUser(w, owner, r.URL.Query().Get("user_id")) {
		return
	}

	saved, err := h.store.ListSavedProspects(r.Context(), owner)
	if err != nil {
		h.storeError(w, "listing prospects", err)
		return
	}

	out := prospectList{People: []*store.SavedProspect{}, Companies: []*store.SavedProspect{}}
	for _, p := range saved {
		if p.Kind == store.KindCompany {
			out.Companies = append(out.Companies, p)
		} else {
			out.People = append(out.People, p)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleSaveReport(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	var req saveReportRequest
	if !decode(w, r, &req) {
		return
	}
	if !h.sameUser(w, owner, req.UserID) {
		return
	}
	if strings.TrimSpace(req.ProspectName) == "" {
		writeError(w, http.StatusBadRequest, "prospect_name is required")
		return
	}
	if len(req.Report) == 0 {
		writeError(w, http.StatusBadRequest, "report is required")
		return
	}

	rep := &store.ResearchReport{
		OwnerID:      owner,
		ProspectID:   req.ProspectID,
		ProspectName: req.ProspectName,
		Company:      req.Company,
		Document:     req.Report,
	}
	if err := h.store.SaveReport(r.Context(), rep); err != nil {
		h.storeError(w, "saving report", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) handleListReports(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	if !h.sameUser(w, owner, r.URL.Query().Get("user_id")) {
		return
	}

	reports, err := h.store.ListReports(r.Context(), owner)
	if err != nil {
		h.storeError(w, "listing reports", err)
		return
	}
	if reports == nil {
		reports = []*store.ResearchReport{}
	}
	writeJSON(w, http.StatusOK, reportList{Reports: reports})
}

func (h *Handler) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	err := h.store.DeleteReport(r.Context(), owner, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		h.storeError(w, "deleting report", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner, err := auth.OwnerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return "", false
	}
	return owner, true
}

func (h *Handler) sameUser(w http.ResponseWriter, owner, userID string) bool {
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return false
	}
	if userID != owner {
		h.logger.Warn("user_id does not match token", "owner_id", owner, "user_id", userID)
		writeError(w, http.StatusForbidden, "user_id does not match credentials")
		return false
	}
	return true
}

func (h *Handler) storeError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op+" failed", "error", err)
	if errors.Is(err, store.ErrUnreachable) {
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

// externalID reads the directory id from a saved payload.
func externalID(data json.RawMessage) (string, error) {
	if len(data) == 0 {
		return "", errors.New("data is required")
	}
	var doc map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return "", errors.New("data must be a JSON object")
	}
	switch id := doc["id"].(type) {
	case string:
		if id != "" {
			return id, nil
		}
	case json.Number:
		return id.String(), nil
	}
	return "", errors.New("data.id is required")
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

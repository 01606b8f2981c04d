// ABOUTME: Saved prospect and research report endpoints of the backend
// ABOUTME: Callers resolve the owner first; these methods only move bytes

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

// SaveProspectRequest is the wire body of POST /prospects/save.
type SaveProspectRequest struct {
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data"`
	UserID string          `json:"user_id"`
}

// SavedRecord is one saved prospect as the backend returns it.
type SavedRecord struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	ExternalID string          `json:"external_id,omitempty"`
	Data       json.RawMessage `json:"data"`
	UserID     string          `json:"user_id"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// SavedList is the body of GET /prospects/list.
type SavedList struct {
	People    []SavedRecord `json:"people"`
	Companies []SavedRecord `json:"companies"`
}

// SaveReportRequest is the wire body of POST /research/save.
type SaveReportRequest struct {
	UserID       string          `json:"user_id"`
	ProspectID   string          `json:"prospect_id"`
	ProspectName string          `json:"prospect_name"`
	Company      string          `json:"company,omitempty"`
	Report       json.RawMessage `json:"report"`
}

// ReportRecord is one saved research report.
type ReportRecord struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	ProspectID   string          `json:"prospect_id"`
	ProspectName string          `json:"prospect_name"`
	Company      string          `json:"company,omitempty"`
	Report       json.RawMessage `json:"report"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ReportList is the body of GET /research/list.
type ReportList struct {
	Reports []ReportRecord `json:"reports"`
}

// SaveProspect stores a prospect for the user. The backend upserts by
// (user, external id).
func (c *Client) SaveProspect(ctx context.Context, req SaveProspectRequest) (*SavedRecord, error) {
	var rec SavedRecord
	if err := c.do(ctx, call{
		op:     "save-prospect",
		method: http.MethodPost,
		base:   c.recordsURL,
		path:   "/prospects/save",
		in:     req,
		out:    &rec,
	}); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListProspects returns the user's saved people and companies.
func (c *Client) ListProspects(ctx context.Context, userID string) (*SavedList, error) {
	var list SavedList
	if err := c.do(ctx, call{
		op:     "list-prospects",
		method: http.MethodGet,
		base:   c.recordsURL,
		path:   "/prospects/list",
		query:  url.Values{"user_id": {userID}},
		out:    &list,
	}); err != nil {
		return nil, err
	}
	return &list, nil
}

// SaveReport persists a generated research report.
func (c *Client) SaveReport(ctx context.Context, req SaveReportRequest) (*ReportRecord, error) {
	var rec ReportRecord
	if err := c.do(ctx, call{
		op:     "save-report",
		method: http.MethodPost,
		base:   c.recordsURL,
		path:   "/research/save",
		in:     req,
		out:    &rec,
	}); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListReports returns the user's saved reports, newest first.
func (c *Client) ListReports(ctx context.Context, userID string) ([]ReportRecord, error) {
	var list ReportList
	if err := c.do(ctx, call{
		op:     "list-reports",
		method: http.MethodGet,
		base:   c.recordsURL,
		path:   "/research/list",
		query:  url.Values{"user_id": {userID}},
		out:    &list,
	}); err != nil {
		return nil, err
	}
	return list.Reports, nil
}

// DeleteReport removes a saved report. A report that is already gone is not
// an error, so a retried delete succeeds.
func (c *Client) DeleteReport(ctx context.Context, id string) error {
	err := c.do(ctx, call{
		op:     "delete-report",
		method: http.MethodDelete,
		base:   c.recordsURL,
		path:   "/research/" + url.PathEscape(id),
	})
	if IsStatus(err, http.StatusNotFound) {
		c.logger.Debug("report already deleted", "id", id)
		return nil
	}
	return err
}

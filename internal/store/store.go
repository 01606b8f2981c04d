// ABOUTME: Store interface and data types for scout-desk persistence
// ABOUTME: Defines Session, Message, SavedProspect, ResearchReport and the Store interface

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrUnreachable is returned when the database cannot serve the request at all
var ErrUnreachable = errors.New("store unreachable")

// Role identifies who authored a message
type Role string

// Message roles
const (
	RoleUser   Role = "user"
	RoleSystem Role = "system"
)

// Session is a named conversation thread owned by one analyst
type Session struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one entry in a session's log
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ProspectKind distinguishes saved people from saved organizations
type ProspectKind string

// Saved prospect kinds
const (
	KindPerson  ProspectKind = "person"
	KindCompany ProspectKind = "company"
)

// SavedProspect is a directory record an analyst chose to keep.
// (OwnerID, ExternalID) is unique; saving again replaces Payload.
type SavedProspect struct {
	ID         string          `json:"id"`
	OwnerID    string          `json:"user_id"`
	Kind       ProspectKind    `json:"type"`
	ExternalID string          `json:"external_id"`
	Payload    json.RawMessage `json:"data"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ResearchReport is a persisted research document
type ResearchReport struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"user_id"`
	ProspectID   string          `json:"prospect_id"`
	ProspectName string          `json:"prospect_name"`
	Company      string          `json:"company,omitempty"`
	Document     json.RawMessage `json:"report"`
	CreatedAt    time.Time       `json:"created_at"`
}

// SessionStore persists sessions and their message logs
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	// ListSessions returns the owner's sessions, most recently updated first.
	ListSessions(ctx context.Context, ownerID string) ([]*Session, error)
	RenameSession(ctx context.Context, ownerID, id, title string) error
	// DeleteSession removes the session and all of its messages.
	DeleteSession(ctx context.Context, ownerID, id string) error

	// AddMessage appends to a session's log and advances the session's
	// updated_at in the same transaction.
	AddMessage(ctx context.Context, msg *Message) error
	// ListMessages returns a session's log in insertion order.
	ListMessages(ctx context.Context, sessionID string) ([]*Message, error)
}

// RecordStore persists saved prospects and research reports
type RecordStore interface {
	UpsertSavedProspect(ctx context.Context, p *SavedProspect) error
	ListSavedProspects(ctx context.Context, ownerID string) ([]*SavedProspect, error)

	SaveReport(ctx context.Context, r *ResearchReport) error
	ListReports(ctx context.Context, ownerID string) ([]*ResearchReport, error)
	// DeleteReport returns ErrNotFound when the owner has no such report.
	DeleteReport(ctx context.Context, ownerID, id string) error
}

// Store is everything the workspace persists
type Store interface {
	SessionStore
	RecordStore

	// SetNotifier registers the receiver of committed changes.
	SetNotifier(n Notifier)
	Ping(ctx context.Context) error
	Close() error
}

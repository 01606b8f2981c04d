// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to simulate an unreachable database

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	notifierSlot

	mu          sync.RWMutex
	sessions    map[string]*Session         // keyed by session ID
	messages    map[string][]*Message       // keyed by session ID, insertion order
	prospects   map[string]*SavedProspect   // keyed by "owner:externalID"
	reports     map[string]*ResearchReport  // keyed by report ID
	unreachable bool
	calls       map[string]int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		sessions:  make(map[string]*Session),
		messages:  make(map[string][]*Message),
		prospects: make(map[string]*SavedProspect),
		reports:   make(map[string]*ResearchReport),
		calls:     make(map[string]int),
	}
}

// SetUnreachable makes every subsequent call fail with ErrUnreachable until reset.
func (m *MockStore) SetUnreachable(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unreachable = down
}

// Calls reports how many times the named method has been invoked.
func (m *MockStore) Calls(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[method]
}

// enter records a call and reports the injected failure, if any. Caller holds mu.
func (m *MockStore) enter(method string) error {
	m.calls[method]++
	if m.unreachable {
		return fmt.Errorf("%s: %w", method, ErrUnreachable)
	}
	return nil
}

// Ping reports the injected reachability.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enter("Ping")
}

// Close is a no-op.
func (m *MockStore) Close() error { return nil }

// CreateSession stores a new session.
func (m *MockStore) CreateSession(ctx context.Context, session *Session) error {
	m.mu.Lock()
	if err := m.enter("CreateSession"); err != nil {
		m.mu.Unlock()
		return err
	}
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}
	// Make a copy to avoid external modification
	s := *session
	m.sessions[s.ID] = &s
	m.mu.Unlock()

	m.emit(Change{Table: TableSessions, Op: OpInsert, OwnerID: s.OwnerID, SessionID: s.ID, RowID: s.ID})
	return nil
}

// GetSession retrieves a session by ID.
func (m *MockStore) GetSession(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetSession"); err != nil {
		return nil, err
	}

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *s
	return &result, nil
}

// ListSessions returns the owner's sessions, newest activity first.
func (m *MockStore) ListSessions(ctx context.Context, ownerID string) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListSessions"); err != nil {
		return nil, err
	}

	var out []*Session
	for _, s := range m.sessions {
		if s.OwnerID == ownerID {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// RenameSession changes a session title.
func (m *MockStore) RenameSession(ctx context.Context, ownerID, id, title string) error {
	m.mu.Lock()
	if err := m.enter("RenameSession"); err != nil {
		m.mu.Unlock()
		return err
	}
	s, ok := m.sessions[id]
	if !ok || s.OwnerID != ownerID {
		m.mu.Unlock()
		return ErrNotFound
	}
	s.Title = title
	s.UpdatedAt = advance(s.UpdatedAt, time.Now().UTC())
	m.mu.Unlock()

	m.emit(Change{Table: TableSessions, Op: OpUpdate, OwnerID: ownerID, SessionID: id, RowID: id})
	return nil
}

// DeleteSession removes a session and its messages.
func (m *MockStore) DeleteSession(ctx context.Context, ownerID, id string) error {
	m.mu.Lock()
	if err := m.enter("DeleteSession"); err != nil {
		m.mu.Unlock()
		return err
	}
	s, ok := m.sessions[id]
	if !ok || s.OwnerID != ownerID {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.sessions, id)
	delete(m.messages, id)
	m.mu.Unlock()

	m.emit(Change{Table: TableSessions, Op: OpDelete, OwnerID: ownerID, SessionID: id, RowID: id})
	return nil
}

// AddMessage appends a message and advances the session's updated_at.
func (m *MockStore) AddMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	if err := m.enter("AddMessage"); err != nil {
		m.mu.Unlock()
		return err
	}
	s, ok := m.sessions[msg.SessionID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	log := m.messages[msg.SessionID]
	if n := len(log); n > 0 && !msg.CreatedAt.After(log[n-1].CreatedAt) {
		msg.CreatedAt = log[n-1].CreatedAt.Add(time.Nanosecond)
	}
	c := *msg
	m.messages[msg.SessionID] = append(log, &c)
	s.UpdatedAt = advance(s.UpdatedAt, msg.CreatedAt)
	owner := s.OwnerID
	m.mu.Unlock()

	m.emit(
		Change{Table: TableMessages, Op: OpInsert, OwnerID: owner, SessionID: msg.SessionID, RowID: msg.ID},
		Change{Table: TableSessions, Op: OpUpdate, OwnerID: owner, SessionID: msg.SessionID, RowID: msg.SessionID},
	)
	return nil
}

// ListMessages returns a session's messages in insertion order.
func (m *MockStore) ListMessages(ctx context.Context, sessionID string) ([]*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListMessages"); err != nil {
		return nil, err
	}

	log := m.messages[sessionID]
	out := make([]*Message, 0, len(log))
	for _, msg := range log {
		c := *msg
		out = append(out, &c)
	}
	return out, nil
}

// UpsertSavedProspect stores or replaces a saved prospect.
func (m *MockStore) UpsertSavedProspect(ctx context.Context, p *SavedProspect) error {
	m.mu.Lock()
	if err := m.enter("UpsertSavedProspect"); err != nil {
		m.mu.Unlock()
		return err
	}
	key := p.OwnerID + ":" + p.ExternalID
	now := time.Now().UTC()
	op := OpInsert
	if existing, ok := m.prospects[key]; ok {
		op = OpUpdate
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	} else {
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	c := *p
	m.prospects[key] = &c
	m.mu.Unlock()

	m.emit(Change{Table: TableSavedProspects, Op: op, OwnerID: p.OwnerID, RowID: p.ID})
	return nil
}

// ListSavedProspects returns the owner's saved prospects, oldest first.
func (m *MockStore) ListSavedProspects(ctx context.Context, ownerID string) ([]*SavedProspect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListSavedProspects"); err != nil {
		return nil, err
	}

	var out []*SavedProspect
	for _, p := range m.prospects {
		if p.OwnerID == ownerID {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SaveReport stores a report.
func (m *MockStore) SaveReport(ctx context.Context, r *ResearchReport) error {
	m.mu.Lock()
	if err := m.enter("SaveReport"); err != nil {
		m.mu.Unlock()
		return err
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	c := *r
	m.reports[r.ID] = &c
	m.mu.Unlock()

	m.emit(Change{Table: TableReports, Op: OpInsert, OwnerID: r.OwnerID, RowID: r.ID})
	return nil
}

// ListReports returns the owner's reports, newest first.
func (m *MockStore) ListReports(ctx context.Context, ownerID string) ([]*ResearchReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListReports"); err != nil {
		return nil, err
	}

	var out []*ResearchReport
	for _, r := range m.reports {
		if r.OwnerID == ownerID {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteReport removes a report.
func (m *MockStore) DeleteReport(ctx context.Context, ownerID, id string) error {
	m.mu.Lock()
	if err := m.enter("DeleteReport"); err != nil {
		m.mu.Unlock()
		return err
	}
	r, ok := m.reports[id]
	if !ok || r.OwnerID != ownerID {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.reports, id)
	m.mu.Unlock()

	m.emit(Change{Table: TableReports, Op: OpDelete, OwnerID: ownerID, RowID: id})
	return nil
}

// advance returns max(prev+1ns, t)
func advance(prev, t time.Time) time.Time {
	next := prev.Add(time.Nanosecond)
	if t.After(next) {
		return t
	}
	return next
}

// Compile-time interface checks
var (
	_ Store = (*MockStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// ABOUTME: Change notifications emitted by the store after each committed write
// ABOUTME: A Change names a row; receivers re-read the store to learn what it holds

package store

import (
	"sync"
	"time"
)

// Table names carried in change notifications
type Table string

// Tables
const (
	TableSessions       Table = "sessions"
	TableMessages       Table = "messages"
	TableSavedProspects Table = "saved_prospects"
	TableReports        Table = "research_reports"
)

// Op is the kind of mutation a Change describes
type Op string

// Ops
const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change describes a committed mutation. It carries no row data.
type Change struct {
	Table     Table     `json:"table"`
	Op        Op        `json:"op"`
	OwnerID   string    `json:"owner_id"`
	SessionID string    `json:"session_id,omitempty"`
	RowID     string    `json:"row_id"`
	At        time.Time `json:"at"`
}

// Notifier receives changes after commit. Notify must not block.
type Notifier interface {
	Notify(c Change)
}

// NotifierFunc adapts a function to the Notifier interface
type NotifierFunc func(c Change)

// Notify calls f(c)
func (f NotifierFunc) Notify(c Change) { f(c) }

// notifierSlot holds the registered notifier for a store implementation
type notifierSlot struct {
	mu sync.RWMutex
	n  Notifier
}

func (s *notifierSlot) SetNotifier(n Notifier) {
	s.mu.Lock()
	s.n = n
	s.mu.Unlock()
}

func (s *notifierSlot) emit(changes ...Change) {
	s.mu.RLock()
	n := s.n
	s.mu.RUnlock()
	if n == nil {
		return
	}
	for _, c := range changes {
		if c.At.IsZero() {
			c.At = time.Now().UTC()
		}
		n.Notify(c)
	}
}

// ABOUTME: Board of visible, dismissible notices raised by background work
// ABOUTME: Failures and degraded results land here instead of being swallowed

package notice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when dismissing a notice that is not on the board
var ErrNotFound = errors.New("notice not found")

// Kind classifies a notice for display
type Kind string

// Notice kinds
const (
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindReauth  Kind = "reauth"
)

// DefaultCapacity bounds how many notices a board keeps.
const DefaultCapacity = 100

// Notice is one message for the analyst
type Notice struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	CreatedAt time.Time `json:"created_at"`
}

// Poster is the write side of a Board, accepted by components that raise notices
type Poster interface {
	Post(n Notice) Notice
}

// Board holds notices until they are dismissed, oldest evicted first when full
type Board struct {
	mu       sync.Mutex
	notices  []Notice
	capacity int
	logger   *slog.Logger
}

// NewBoard creates a board. capacity <= 0 uses DefaultCapacity.
func NewBoard(capacity int, logger *slog.Logger) *Board {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Board{
		capacity: capacity,
		logger:   logger.With("component", "notice"),
	}
}

// Post adds a notice, filling in ID and CreatedAt, and returns the stored copy.
func (b *Board) Post(n Notice) Notice {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	b.mu.Lock()
	if len(b.notices) >= b.capacity {
		b.notices = b.notices[1:]
	}
	b.notices = append(b.notices, n)
	b.mu.Unlock()

	level := slog.LevelWarn
	if n.Kind == KindError {
		level = slog.LevelError
	}
	b.logger.Log(context.Background(), level, "notice posted",
		"id", n.ID,
		"kind", n.Kind,
		"source", n.Source,
		"message", n.Message)
	return n
}

// List returns the current notices, oldest first.
func (b *Board) List() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Notice(nil), b.notices...)
}

// Dismiss removes a notice by ID.
func (b *Board) Dismiss(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, n := range b.notices {
		if n.ID == id {
			b.notices = append(b.notices[:i], b.notices[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Error builds an error notice
func Error(source string, err error, retryable bool) Notice {
	return Notice{Kind: KindError, Source: source, Message: err.Error(), Retryable: retryable}
}

// Warning builds a warning notice
func Warning(source, message string) Notice {
	return Notice{Kind: KindWarning, Source: source, Message: message}
}

// Reauth builds a notice asking the analyst to sign in again
func Reauth(source string) Notice {
	return Notice{Kind: KindReauth, Source: source, Message: "Your session has expired. Please sign in again."}
}

// Discard is a Poster that drops every notice
var Discard Poster = discard{}

type discard struct{}

func (discard) Post(n Notice) Notice { return n }

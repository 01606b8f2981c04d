// ABOUTME: Conversation engine owning the active session's message log and submit state
// ABOUTME: Record first, then act: the user message is persisted before the answer call goes out

package conversation

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/2389/scout-desk/internal/client"
	"github.com/2389/scout-desk/internal/coalesce"
	"github.com/2389/scout-desk/internal/config"
	"github.com/2389/scout-desk/internal/dedupe"
	"github.com/2389/scout-desk/internal/notice"
	"github.com/2389/scout-desk/internal/store"
)

// ErrorBubbleText is shown in place of an answer that could not be obtained.
const ErrorBubbleText = "Sorry, I encountered an error. Please try again."

var (
	// ErrBusy is returned when the active session is still awaiting an answer.
	ErrBusy = errors.New("a response is still pending for this session")
	// ErrNotReady is returned when no session is active or its history is loading.
	ErrNotReady = errors.New("session is not ready")
	// ErrEmptyMessage is returned for blank submissions.
	ErrEmptyMessage = errors.New("message is empty")
)

// State is the lifecycle of the active session in the engine.
type State string

// States
const (
	StateUninitialized    State = "uninitialized"
	StateLoadingHistory   State = "loading-history"
	StateReady            State = "ready"
	StateAwaitingResponse State = "awaiting-response"
)

// MessageStore is what the engine needs from storage
type MessageStore interface {
	GetSession(ctx context.Context, id string) (*store.Session, error)
	AddMessage(ctx context.Context, msg *store.Message) error
	ListMessages(ctx context.Context, sessionID string) ([]*store.Message, error)
}

// Answerer generates answers to questions
type Answerer interface {
	Answer(ctx context.Context, req client.AnswerRequest, requestID string) (*client.AnswerResponse, error)
}

// Subscriber is the subscribe side of the push channel.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan store.Change, string)
}

// Entry is one rendered line of the log. Local entries exist only in this
// process (error bubbles); Pending entries are optimistic and not yet stored.
type Entry struct {
	ID        string     `json:"id"`
	Role      store.Role `json:"role"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
	Local     bool       `json:"local,omitempty"`
	Pending   bool       `json:"pending,omitempty"`
}

// View is a snapshot of what the engine renders.
type View struct {
	SessionID string  `json:"session_id"`
	State     State   `json:"state"`
	Messages  []Entry `json:"messages"`
	RequestID string  `json:"request_id,omitempty"`
}

// Options configures an Engine.
type Options struct {
	OwnerID       string
	Store         MessageStore
	Answerer      Answerer
	Push          Subscriber
	Notices       notice.Poster
	Scope         string        // forwarded on every answer request
	StaleResponse string        // config.StaleResponsePersist or config.StaleResponseDrop
	SwitchWindow  time.Duration // coalescing window for RequestSelect
	Logger        *slog.Logger
}

// Engine owns the log of the active session and one submit slot per session.
type Engine struct {
	ownerID  string
	store    MessageStore
	answerer Answerer
	push     Subscriber
	notices  notice.Poster
	scope    string
	stale    string
	logger   *slog.Logger

	guard    *dedupe.Guard
	switcher *coalesce.Queue[string]
	reloader *coalesce.Queue[string]

	// ctx outlives individual requests; answer calls run under it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	active    string
	state     State
	log       []Entry
	loadSeq   uint64
	local     map[string][]Entry  // error bubbles per session, kept across reloads
	pending   map[string]string   // session -> outstanding request id
	ownWrites map[string]string // message id -> session, for writes by this engine to the active session

	activeChanged chan struct{}
	updates       chan View
}

// New creates an Engine. Call Close to stop outstanding answer calls.
func New(opts Options) *Engine {
	if opts.Notices == nil {
		opts.Notices = notice.Discard
	}
	if opts.Scope == "" {
		opts.Scope = "all"
	}
	if opts.StaleResponse == "" {
		opts.StaleResponse = config.StaleResponsePersist
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		ownerID:       opts.OwnerID,
		store:         opts.Store,
		answerer:      opts.Answerer,
		push:          opts.Push,
		notices:       opts.Notices,
		scope:         opts.Scope,
		stale:         opts.StaleResponse,
		logger:        opts.Logger.With("component", "conversation"),
		guard:         dedupe.NewGuard(time.Hour, 4096),
		ctx:           ctx,
		cancel:        cancel,
		state:         StateUninitialized,
		local:         make(map[string][]Entry),
		pending:       make(map[string]string),
		ownWrites:     make(map[string]string),
		activeChanged: make(chan struct{}, 1),
		updates:       make(chan View, 1),
	}
	e.switcher = coalesce.New(opts.SwitchWindow, func(ctx context.Context, id string) {
		if err := e.Select(ctx, id); err != nil {
			e.logger.Warn("session switch failed", "session_id", id, "error", err)
		}
	})
	e.reloader = coalesce.New(opts.SwitchWindow, func(ctx context.Context, id string) {
		if err := e.refresh(ctx, id); err != nil {
			e.logger.Warn("history refresh failed", "session_id", id, "error", err)
		}
	})
	return e
}

// View returns what the engine currently renders.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewLocked()
}

func (e *Engine) viewLocked() View {
	return View{
		SessionID: e.active,
		State:     e.state,
		Messages:  append([]Entry(nil), e.log...),
		RequestID: e.pending[e.active],
	}
}

// Active returns the active session id, or "" before the first Select.
func (e *Engine) Active() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Updates delivers the latest View after every change. Only the most recent
// view is buffered; readers that fall behind skip intermediate ones.
func (e *Engine) Updates() <-chan View {
	return e.updates
}

func (e *Engine) publish() {
	v := e.View()
	for {
		select {
		case e.updates <- v:
			return
		default:
		}
		select {
		case <-e.updates:
		default:
		}
	}
}

// Close cancels outstanding answer calls and waits for them to finish.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
	e.guard.Close()
}

// merge orders stored entries and local bubbles by creation time. Stored
// entries keep their relative order on ties.
func merge(stored, local []Entry) []Entry {
	out := make([]Entry, 0, len(stored)+len(local))
	out = append(out, stored...)
	out = append(out, local...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func entryFromMessage(m *store.Message) Entry {
	return Entry{ID: m.ID, Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt}
}

// ABOUTME: Session directory: the owner's session list, newest activity first
// ABOUTME: Push notifications only trigger a re-read of the store; they are never applied as diffs

package directory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/2389/scout-desk/internal/coalesce"
	"github.com/2389/scout-desk/internal/notice"
	"github.com/2389/scout-desk/internal/push"
	"github.com/2389/scout-desk/internal/store"
)

// DefaultTitle replaces empty session titles.
const DefaultTitle = "New conversation"

// DefaultRefreshWindow collapses bursts of change notifications.
const DefaultRefreshWindow = 100 * time.Millisecond

// OwnerResolver resolves the analyst the directory belongs to.
type OwnerResolver interface {
	OwnerID() (string, error)
}

// Subscriber is the subscribe side of the push channel.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan store.Change, string)
}

// Options configures a Directory.
type Options struct {
	Store         store.SessionStore
	Push          Subscriber
	Identity      OwnerResolver
	Notices       notice.Poster
	RefreshWindow time.Duration
	Logger        *slog.Logger
}

// Directory keeps the last fetched snapshot of the owner's sessions.
type Directory struct {
	store   store.SessionStore
	push    Subscriber
	notices notice.Poster
	ownerID string
	window  time.Duration
	logger  *slog.Logger

	group singleflight.Group
	// gen advances whenever the store is known to have changed; List calls
	// only share a query started in the same generation.
	gen atomic.Uint64

	mu        sync.RWMutex
	snapshot  []store.Session
	installed uint64 // generation of snapshot
	err       error
}

// New creates a directory for the currently signed-in owner. The owner is
// resolved once; an unresolvable identity is returned as the error.
func New(opts Options) (*Directory, error) {
	ownerID, err := opts.Identity.OwnerID()
	if err != nil {
		return nil, fmt.Errorf("resolving directory owner: %w", err)
	}
	if opts.Notices == nil {
		opts.Notices = notice.Discard
	}
	if opts.RefreshWindow <= 0 {
		opts.RefreshWindow = DefaultRefreshWindow
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Directory{
		store:   opts.Store,
		push:    opts.Push,
		notices: opts.Notices,
		ownerID: ownerID,
		window:  opts.RefreshWindow,
		logger:  opts.Logger.With("component", "directory", "owner", ownerID),
	}, nil
}

// OwnerID returns the owner this directory lists sessions for.
func (d *Directory) OwnerID() string { return d.ownerID }

// List re-reads the owner's sessions from the store and replaces the
// snapshot. Concurrent calls share one store query, which runs detached from
// any single caller's ctx. On failure the previous snapshot is kept and
// returned alongside the error.
func (d *Directory) List(ctx context.Context) ([]store.Session, error) {
	gen := d.gen.Load()
	ch := d.group.DoChan("list-"+strconv.FormatUint(gen, 10), func() (any, error) {
		return d.store.ListSessions(context.WithoutCancel(ctx), d.ownerID)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return d.Snapshot(), fmt.Errorf("listing sessions: %w", ctx.Err())
	}
	if res.Err != nil {
		d.fail(gen, res.Err)
		return d.Snapshot(), fmt.Errorf("listing sessions: %w", res.Err)
	}

	rows, _ := res.Val.([]*store.Session)
	next := make([]store.Session, 0, len(rows))
	for _, s := range rows {
		next = append(next, *s)
	}

	d.mu.Lock()
	if gen < d.installed {
		// A newer generation already landed.
		current := clone(d.snapshot)
		d.mu.Unlock()
		return current, nil
	}
	recovered := d.err != nil
	d.snapshot = next
	d.installed = gen
	d.err = nil
	d.mu.Unlock()

	if recovered {
		d.logger.Info("session list recovered")
	}
	return clone(next), nil
}

// refresh is List for callers that know the store changed: it never joins a
// query started before the change. A failure is already recorded by List.
func (d *Directory) refresh(ctx context.Context) {
	d.gen.Add(1)
	_, _ = d.List(ctx)
}

func (d *Directory) fail(gen uint64, err error) {
	d.mu.Lock()
	if gen < d.installed {
		d.mu.Unlock()
		return
	}
	first := d.err == nil
	d.err = err
	d.mu.Unlock()

	d.logger.Warn("listing sessions failed, keeping previous snapshot", "error", err)
	if first {
		d.notices.Post(notice.Error("directory", fmt.Errorf("could not refresh conversations: %w", err), true))
	}
}

// Snapshot returns the last fetched session list without touching the store.
func (d *Directory) Snapshot() []store.Session {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return clone(d.snapshot)
}

// Err returns the error from the most recent failed refresh, or nil once a
// refresh succeeds.
func (d *Directory) Err() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.err
}

// Search filters the last snapshot by case-insensitive title substring.
// An empty query returns the whole snapshot.
func (d *Directory) Search(query string) []store.Session {
	snap := d.Snapshot()
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return snap
	}
	out := make([]store.Session, 0, len(snap))
	for _, s := range snap {
		if strings.Contains(strings.ToLower(s.Title), q) {
			out = append(out, s)
		}
	}
	return out
}

// Create makes a new session and refreshes the snapshot.
func (d *Directory) Create(ctx context.Context, title string) (store.Session, error) {
	s := &store.Session{OwnerID: d.ownerID, Title: normalizeTitle(title)}
	if err := d.store.CreateSession(ctx, s); err != nil {
		return store.Session{}, fmt.Errorf("creating session: %w", err)
	}
	d.logger.Info("session created", "session_id", s.ID)
	d.refresh(ctx)
	return *s, nil
}

// Rename retitles one of the owner's sessions.
func (d *Directory) Rename(ctx context.Context, id, title string) error {
	if err := d.store.RenameSession(ctx, d.ownerID, id, normalizeTitle(title)); err != nil {
		return fmt.Errorf("renaming session %s: %w", id, err)
	}
	d.refresh(ctx)
	return nil
}

// Delete removes one of the owner's sessions and its messages.
func (d *Directory) Delete(ctx context.Context, id string) error {
	if err := d.store.DeleteSession(ctx, d.ownerID, id); err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	d.logger.Info("session deleted", "session_id", id)
	d.refresh(ctx)
	return nil
}

// Run keeps the snapshot in step with the store until ctx is cancelled.
// Every session or message change for the owner schedules one coalesced
// re-read.
func (d *Directory) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	changes, _ := d.push.Subscribe(runCtx, push.OwnerTopic(d.ownerID))

	q := coalesce.New(d.window, func(ctx context.Context, _ struct{}) {
		d.refresh(ctx)
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Run(runCtx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	_, _ = d.List(runCtx)

	for {
		select {
		case <-runCtx.Done():
			return nil
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			if c.Table == store.TableSessions || c.Table == store.TableMessages {
				q.Trigger(struct{}{})
			}
		}
	}
}

func normalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return DefaultTitle
	}
	return title
}

func clone(in []store.Session) []store.Session {
	if in == nil {
		return nil
	}
	return append([]store.Session(nil), in...)
}

// ABOUTME: Tests for the conversation engine
// ABOUTME: Submit ordering, per-session answer routing, failures and live reloads

package conversation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/2389/scout-desk/internal/client"
	"github.com/2389/scout-desk/internal/config"
	"github.com/2389/scout-desk/internal/notice"
	"github.com/2389/scout-desk/internal/push"
	"github.com/2389/scout-desk/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeAnswerer blocks every call until release is closed.
type fakeAnswerer struct {
	mu      sync.Mutex
	calls   []client.AnswerRequest
	ids     []string
	release chan struct{}
	answer  string
	err     error
}

func newFakeAnswerer(answer string) *fakeAnswerer {
	return &fakeAnswerer{answer: answer, release: make(chan struct{})}
}

func (f *fakeAnswerer) Answer(ctx context.Context, req client.AnswerRequest, requestID string) (*client.AnswerResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.ids = append(f.ids, requestID)
	f.mu.Unlock()

	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &client.AnswerResponse{Answer: f.answer, SessionID: req.SessionID}, nil
}

func (f *fakeAnswerer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fixture struct {
	store    *store.MockStore
	push     *push.Broadcaster
	notices  *notice.Board
	answerer *fakeAnswerer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    store.NewMockStore(),
		push:     push.NewBroadcaster(nil),
		notices:  notice.NewBoard(0, nil),
		answerer: newFakeAnswerer("MTN reported revenue of R221 billion for 2023."),
	}
	f.store.SetNotifier(f.push)
	t.Cleanup(f.push.Close)
	return f
}

func (f *fixture) engine(t *testing.T, stale string) *Engine {
	t.Helper()
	e := New(Options{
		OwnerID:       "owner-1",
		Store:         f.store,
		Answerer:      f.answerer,
		Push:          f.push,
		Notices:       f.notices,
		StaleResponse: stale,
		SwitchWindow:  5 * time.Millisecond,
	})
	t.Cleanup(e.Close)
	return e
}

func (f *fixture) session(t *testing.T, id, owner string) *store.Session {
	t.Helper()
	s := &store.Session{ID: id, OwnerID: owner, Title: id}
	require.NoError(t, f.store.CreateSession(context.Background(), s))
	return s
}

func roles(entries []Entry) []store.Role {
	out := make([]store.Role, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Role)
	}
	return out
}

// settled waits until no answer is outstanding for sessionID.
func settled(t *testing.T, e *Engine, sessionID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.pending[sessionID] == ""
	}, time.Second, 5*time.Millisecond)
}

func countRole(entries []Entry, role store.Role) int {
	n := 0
	for _, e := range entries {
		if e.Role == role {
			n++
		}
	}
	return n
}

func TestSubmit_OptimisticThenAnswered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	before := f.session(t, "s1", "owner-1")
	e := f.engine(t, "")

	require.NoError(t, e.Select(ctx, "s1"))
	assert.Equal(t, StateReady, e.View().State)

	reqID, err := e.Submit(ctx, "What is MTN's 2023 revenue?")
	require.NoError(t, err)
	require.NotEmpty(t, reqID)

	v := e.View()
	assert.Equal(t, StateAwaitingResponse, v.State)
	assert.Equal(t, reqID, v.RequestID)
	assert.Equal(t, []store.Role{store.RoleUser}, roles(v.Messages))
	assert.Equal(t, "What is MTN's 2023 revenue?", v.Messages[0].Content)

	close(f.answerer.release)
	require.Eventually(t, func() bool {
		return e.View().State == StateReady
	}, time.Second, 5*time.Millisecond)

	v = e.View()
	require.Equal(t, []store.Role{store.RoleUser, store.RoleSystem}, roles(v.Messages))
	assert.Equal(t, f.answerer.answer, v.Messages[1].Content)
	assert.Equal(t, reqID, v.Messages[1].ID)

	stored, err := f.store.ListMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, store.RoleUser, stored[0].Role)
	assert.Equal(t, reqID, stored[1].ID)

	after, err := f.store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))

	require.Len(t, f.answerer.calls, 1)
	assert.Equal(t, "s1", f.answerer.calls[0].SessionID)
	assert.Equal(t, "all", f.answerer.calls[0].Scope)
	assert.Equal(t, reqID, f.answerer.ids[0])
}

func TestSubmit_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.session(t, "s1", "owner-1")
	e := f.engine(t, "")

	_, err := e.Submit(ctx, "hello")
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, e.Select(ctx, "s1"))

	_, err = e.Submit(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = e.Submit(ctx, "first")
	require.NoError(t, err)
	_, err = e.Submit(ctx, "second")
	assert.ErrorIs(t, err, ErrBusy)

	close(f.answerer.release)
	require.Eventually(t, func() bool {
		return e.View().State == StateReady
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.answerer.callCount())
}

func TestSubmit_AnswerFailureShowsBubble(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.session(t, "s1", "owner-1")
	f.answerer.err = &client.NetworkError{Op: "answer", Status: 502}
	close(f.answerer.release)
	e := f.engine(t, "")

	require.NoError(t, e.Select(ctx, "s1"))
	_, err := e.Submit(ctx, "hello")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return e.View().State == StateReady
	}, time.Second, 5*time.Millisecond)

	v := e.View()
	require.Len(t, v.Messages, 2)
	assert.Equal(t, ErrorBubbleText, v.Messages[1].Content)
	assert.True(t, v.Messages[1].Local)

	notices := f.notices.List()
	require.Len(t, notices, 1)
	assert.True(t, notices[0].Retryable)

	// The bubble survives a reload of the same session.
	require.NoError(t, e.Select(ctx, "s1"))
	assert.Equal(t, 1, countRole(e.View().Messages, store.RoleSystem))

	stored, err := f.store.ListMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestSubmit_PersistFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.session(t, "s1", "owner-1")
	e := f.engine(t, "")
	require.NoError(t, e.Select(ctx, "s1"))

	f.store.SetUnreachable(true)
	_, err := e.Submit(ctx, "hello")
	require.ErrorIs(t, err, store.ErrUnreachable)

	v := e.View()
	assert.Equal(t, StateReady, v.State)
	require.Len(t, v.Messages, 1)
	assert.Equal(t, ErrorBubbleText, v.Messages[0].Content)
	assert.Equal(t, 0, f.answerer.callCount(), "no answer is requested for an unrecorded message")
	assert.Len(t, f.notices.List(), 1)

	f.store.SetUnreachable(false)
	_, err = e.Submit(ctx, "hello again")
	assert.NoError(t, err)
}

func TestAnswer_RoutedToOriginatingSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.session(t, "s1", "owner-1")
	f.session(t, "s2", "owner-1")
	e := f.engine(t, "")

	require.NoError(t, e.Select(ctx, "s1"))
	reqID, err := e.Submit(ctx, "question for s1")
	require.NoError(t, err)

	require.NoError(t, e.Select(ctx, "s2"))
	close(f.answerer.release)
	settled(t, e, "s1")

	msgs, err := f.store.ListMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	v := e.View()
	assert.Equal(t, "s2", v.SessionID)
	assert.Empty(t, v.Messages, "answer must not render into another session")

	// Back in s1 the answer appears exactly once.
	require.NoError(t, e.Select(ctx, "s1"))
	v = e.View()
	assert.Equal(t, StateReady, v.State)
	require.Equal(t, []store.Role{store.RoleUser, store.RoleSystem}, roles(v.Messages))
	assert.Equal(t, reqID, v.Messages[1].ID)
}

func TestAnswer_SwitchBackBeforeAnswer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.session(t, "s1", "owner-1")
	f.session(t, "s2", "owner-1")
	e := f.engine(t, "")

	require.NoError(t, e.Select(ctx, "s1"))
	_, err := e.Submit(ctx, "question")
	require.NoError(t, err)

	require.NoError(t, e.Select(ctx, "s2"))
	_, err = e.Submit(ctx, "s2 is free")
	require.NoError(t, err, "the submit slot is per session")

	require.NoError(t, e.Select(ctx, "s1"))
	assert.Equal(t, StateAwaitingResponse, e.View().State)

	close(f.answerer.release)
	require.Eventually(t, func() bool {
		return e.View().State == StateReady
	}, time.Second, 5*time.Millisecond)

	// A reload after the live render must not duplicate the answer.
	require.NoError(t, e.Select(ctx, "s1"))
	assert.Equal(t, 1, countRole(e.View().Messages, store.RoleSystem))
}

// holdingStore pauses one ListMessages call after it has read, so an answer
// can land while that history load is still in flight.
type holdingStore struct {
	*store.MockStore
	armed  atomic.Bool
	read   chan struct{}
	resume chan struct{}
}

func (h *holdingStore) ListMessages(ctx context.Context, sessionID string) ([]*store.Message, error) {
	msgs, err := h.MockStore.ListMessages(ctx, sessionID)
	if h.armed.CompareAndSwap(true, false) {
		close(h.read)
		<-h.resume
	}
	return msgs, err
}

func TestAnswer_LandsDuringHistoryLoad(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.session(t, "s1", "owner-1")
	f.session(t, "s2", "owner-1")
	hs := &holdingStore{MockStore: f.store, read: make(chan struct{}), resume: make(chan struct{})}
	e := New(Options{
		OwnerID:  "owner-1",
		Store:    hs,
		Answerer: f.answerer,
		Push:     f.push,
		Notices:  f.notices,
	})
	t.Cleanup(e.Close)

	require.NoError(t, e.Select(ctx, "s1"))
	_, err := e.Submit(ctx, "question")
	require.NoError(t, err)
	require.NoError(t, e.Select(ctx, "s2"))

	hs.armed.Store(true)
	selected := make(chan error, 1)
	go func() { selected <- e.Select(ctx, "s1") }()
	<-hs.read

	close(f.answerer.release)
	settled(t, e, "s1")
	close(hs.resume)
	require.NoError(t, <-selected)

	v := e.View()
	assert.Equal(t, StateReady, v.State)
	assert.Equal(t, []store.Role{store.RoleUser, store.RoleSystem}, roles(v.Messages))

	require.NoError(t, e.Select(ctx, "s1"))
	assert.Equal(t, []store.Role{store.RoleUser, store.RoleSystem}, roles(e.View().Messages))
}

func TestAnswer_InactiveSessionLeavesNoWriteMarkers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.session(t, "s1", "owner-1")
	f.session(t, "s2", "owner-1")
	e := f.engine(t, "")

	require.NoError(t, e.Select(ctx, "s1"))
	_, err := e.Submit(ctx, "question")
	require.NoError(t, err)
	require.NoError(t, e.Select(ctx, "s2"))

	close(f.answerer.release)
	settled(t, e, "s1")

	e.mu.Lock()
	defer e.mu.Unlock()
	assert.Empty(t, e.ownWrites)
}

func TestAnswer_DropPolicyDiscardsStaleAnswer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.session(t, "s1", "owner-1")
	f.session(t, "s2", "owner-1")
	e := f.engine(t, config.StaleResponseDrop)

	require.NoError(t, e.Select(ctx, "s1"))
	_, err := e.Submit(ctx, "question")
	require.NoError(t, err)
	require.NoError(t, e.Select(ctx, "s2"))

	close(f.answerer.release)
	settled(t, e, "s1")

	require.NoError(t, e.Select(ctx, "s1"))
	v := e.View()
	assert.Equal(t, StateReady, v.State)
	assert.Equal(t, []store.Role{store.RoleUser}, roles(v.Messages))
}

func TestSelect_Failures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.session(t, "theirs", "owner-2")
	f.session(t, "s1", "owner-1")
	e := f.engine(t, "")

	err := e.Select(ctx, "theirs")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, StateUninitialized, e.View().State)

	err = e.Select(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	f.store.SetUnreachable(true)
	err = e.Select(ctx, "s1")
	assert.ErrorIs(t, err, store.ErrUnreachable)
	assert.Equal(t, StateUninitialized, e.View().State)

	f.store.SetUnreachable(false)
	require.NoError(t, e.Select(ctx, "s1"))
	assert.Equal(t, StateReady, e.View().State)
}

func TestRun_ReloadsOnForeignWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newFixture(t)
	f.session(t, "s1", "owner-1")
	e := f.engine(t, "")

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	e.RequestSelect("s2-does-not-matter")
	e.RequestSelect("s1")
	require.Eventually(t, func() bool {
		v := e.View()
		return v.SessionID == "s1" && v.State == StateReady
	}, time.Second, 5*time.Millisecond)

	// Wait for Run to follow the session topic.
	require.Eventually(t, func() bool {
		return f.push.SubscriberCount(push.SessionTopic("s1")) == 1
	}, time.Second, 5*time.Millisecond)

	err := f.store.AddMessage(context.Background(), &store.Message{
		SessionID: "s1",
		Role:      store.RoleUser,
		Content:   "typed on another device",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		msgs := e.View().Messages
		return len(msgs) == 1 && msgs[0].Content == "typed on another device"
	}, time.Second, 5*time.Millisecond)
}

func TestUpdates_DeliversLatestView(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.session(t, "s1", "owner-1")
	e := f.engine(t, "")

	require.NoError(t, e.Select(ctx, "s1"))

	select {
	case v := <-e.Updates():
		assert.Equal(t, "s1", v.SessionID)
		assert.Equal(t, StateReady, v.State)
	case <-time.After(time.Second):
		t.Fatal("no view published")
	}
}

func TestMerge_OrdersLocalBubblesByTime(t *testing.T) {
	base := time.Unix(1700000000, 0).UTC()
	stored := []Entry{
		{ID: "a", CreatedAt: base},
		{ID: "c", CreatedAt: base.Add(2 * time.Second)},
	}
	local := []Entry{{ID: "b", CreatedAt: base.Add(time.Second), Local: true}}

	got := merge(stored, local)
	ids := make([]string, 0, len(got))
	for _, en := range got {
		ids = append(ids, en.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

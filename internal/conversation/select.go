// ABOUTME: Session selection and history loading for the conversation engine
// ABOUTME: Every switch is a full reload ordered by creation time; there is no partial merge

package conversation

import (
	"context"
	"fmt"

	"github.com/2389/scout-desk/internal/dedupe"
	"github.com/2389/scout-desk/internal/notice"
	"github.com/2389/scout-desk/internal/store"
)

// Select makes sessionID the active session and reloads its history.
// Sessions of other owners are reported as store.ErrNotFound.
func (e *Engine) Select(ctx context.Context, sessionID string) error {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("selecting session %s: %w", sessionID, err)
	}
	if e.ownerID != "" && session.OwnerID != e.ownerID {
		return fmt.Errorf("selecting session %s: %w", sessionID, store.ErrNotFound)
	}

	e.mu.Lock()
	e.active = sessionID
	// Only the active session's topic is followed.
	for id, sid := range e.ownWrites {
		if sid != sessionID {
			delete(e.ownWrites, id)
		}
	}
	e.state = StateLoadingHistory
	e.log = nil
	e.loadSeq++
	seq := e.loadSeq
	e.mu.Unlock()

	e.signalActiveChanged()
	e.publish()

	e.logger.Debug("loading history", "session_id", sessionID)
	if err := e.load(ctx, sessionID, seq, true); err != nil {
		e.mu.Lock()
		if e.loadSeq == seq {
			e.state = StateUninitialized
		}
		e.mu.Unlock()
		e.publish()
		e.notices.Post(notice.Error("conversation", fmt.Errorf("could not load conversation history: %w", err), true))
		return fmt.Errorf("loading history for %s: %w", sessionID, err)
	}
	return nil
}

// RequestSelect schedules a Select. Rapid requests collapse so only the last
// one loads. Requires Run.
func (e *Engine) RequestSelect(sessionID string) {
	e.switcher.Trigger(sessionID)
}

// refresh reloads the active session's history without leaving the current
// state, for changes made by other clients.
func (e *Engine) refresh(ctx context.Context, sessionID string) error {
	e.mu.Lock()
	if e.active != sessionID || e.state == StateLoadingHistory || e.state == StateUninitialized {
		e.mu.Unlock()
		return nil
	}
	e.loadSeq++
	seq := e.loadSeq
	e.mu.Unlock()

	return e.load(ctx, sessionID, seq, false)
}

// load reads the full history and installs it if no newer load started in
// the meantime. settle moves a loading session to ready or awaiting-response.
func (e *Engine) load(ctx context.Context, sessionID string, seq uint64, settle bool) error {
	messages, err := e.store.ListMessages(ctx, sessionID)
	if err != nil {
		return err
	}

	stored := make([]Entry, 0, len(messages))
	for _, m := range messages {
		if m.Role == store.RoleSystem {
			// Whatever history shows counts as rendered for the live path.
			e.guard.Claim(dedupe.Key(sessionID, m.ID))
		}
		stored = append(stored, entryFromMessage(m))
	}

	e.mu.Lock()
	if e.loadSeq != seq || e.active != sessionID {
		e.mu.Unlock()
		e.logger.Debug("discarding superseded history load", "session_id", sessionID)
		return nil
	}
	// Answers rendered while the history was being read are not in stored.
	e.log = merge(stored, append(unstored(e.log, stored), e.local[sessionID]...))
	if settle || e.state == StateLoadingHistory {
		if _, waiting := e.pending[sessionID]; waiting {
			e.state = StateAwaitingResponse
		} else {
			e.state = StateReady
		}
	}
	e.mu.Unlock()

	e.publish()
	return nil
}

func (e *Engine) signalActiveChanged() {
	select {
	case e.activeChanged <- struct{}{}:
	default:
	}
}

// unstored returns the non-local entries of current that stored lacks.
func unstored(current, stored []Entry) []Entry {
	have := make(map[string]struct{}, len(stored))
	for _, en := range stored {
		have[en.ID] = struct{}{}
	}
	var out []Entry
	for _, en := range current {
		if _, ok := have[en.ID]; !ok && !en.Local {
			out = append(out, en)
		}
	}
	return out
}

// ABOUTME: Submit path of the conversation engine and handling of answer results
// ABOUTME: One outstanding answer per session; results render only into their own session

package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/scout-desk/internal/client"
	"github.com/2389/scout-desk/internal/config"
	"github.com/2389/scout-desk/internal/dedupe"
	"github.com/2389/scout-desk/internal/notice"
	"github.com/2389/scout-desk/internal/store"
)

// Submit sends text as a user message in the active session and returns the
// request id of the answer call. The message is appended optimistically,
// persisted, and only then is the answer requested in the background.
func (e *Engine) Submit(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}

	e.mu.Lock()
	switch {
	case e.active == "":
		e.mu.Unlock()
		return "", ErrNotReady
	case e.state == StateAwaitingResponse || e.pending[e.active] != "":
		e.mu.Unlock()
		return "", ErrBusy
	case e.state != StateReady:
		e.mu.Unlock()
		return "", ErrNotReady
	}

	sessionID := e.active
	requestID := uuid.New().String()
	entry := Entry{
		ID:        uuid.New().String(),
		Role:      store.RoleUser,
		Content:   text,
		CreatedAt: time.Now().UTC(),
		Pending:   true,
	}
	e.log = append(e.log, entry)
	e.state = StateAwaitingResponse
	e.pending[sessionID] = requestID
	e.ownWrites[entry.ID] = sessionID
	e.mu.Unlock()
	e.publish()

	// Record first, then act.
	msg := &store.Message{
		ID:        entry.ID,
		SessionID: sessionID,
		Role:      store.RoleUser,
		Content:   text,
		CreatedAt: entry.CreatedAt,
	}
	if err := e.store.AddMessage(ctx, msg); err != nil {
		e.rollback(sessionID, entry.ID, err)
		return "", fmt.Errorf("recording message: %w", err)
	}

	e.mu.Lock()
	if e.active == sessionID {
		for i := range e.log {
			if e.log[i].ID == entry.ID {
				e.log[i].Pending = false
				e.log[i].CreatedAt = msg.CreatedAt
			}
		}
	}
	e.mu.Unlock()
	e.publish()

	e.logger.Debug("user message recorded",
		"session_id", sessionID,
		"message_id", entry.ID,
		"request_id", requestID)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.requestAnswer(sessionID, requestID, text)
	}()

	return requestID, nil
}

// rollback replaces an optimistic message that could not be stored with an
// error bubble. Nothing was sent.
func (e *Engine) rollback(sessionID, entryID string, cause error) {
	bubble := e.bubble()

	e.mu.Lock()
	delete(e.pending, sessionID)
	delete(e.ownWrites, entryID)
	e.local[sessionID] = append(e.local[sessionID], bubble)
	if e.active == sessionID {
		kept := e.log[:0]
		for _, en := range e.log {
			if en.ID != entryID {
				kept = append(kept, en)
			}
		}
		e.log = append(kept, bubble)
		if e.state == StateAwaitingResponse {
			e.state = StateReady
		}
	}
	e.mu.Unlock()
	e.publish()

	e.logger.Error("failed to record user message", "session_id", sessionID, "error", cause)
	e.notices.Post(notice.Error("conversation", fmt.Errorf("your message could not be saved: %w", cause), true))
}

func (e *Engine) requestAnswer(sessionID, requestID, question string) {
	resp, err := e.answerer.Answer(e.ctx, client.AnswerRequest{
		Question:  question,
		SessionID: sessionID,
		Scope:     e.scope,
	}, requestID)
	if err != nil {
		e.fail(sessionID, requestID, err)
		return
	}
	e.complete(sessionID, requestID, resp.Answer)
}

// complete stores an answer in its originating session and renders it there
// if that session is still active.
func (e *Engine) complete(sessionID, requestID, answer string) {
	e.mu.Lock()
	active := e.active == sessionID
	e.mu.Unlock()

	if !active && e.stale == config.StaleResponseDrop {
		e.mu.Lock()
		delete(e.pending, sessionID)
		e.mu.Unlock()
		e.logger.Info("dropping answer for inactive session", "session_id", sessionID, "request_id", requestID)
		e.publish()
		return
	}

	// The answer's message id is its request id, so a history reload and the
	// live path agree on what has been rendered.
	msg := &store.Message{ID: requestID, SessionID: sessionID, Role: store.RoleSystem, Content: answer}
	e.mu.Lock()
	if e.active == sessionID {
		e.ownWrites[msg.ID] = sessionID
	}
	e.mu.Unlock()

	if err := e.store.AddMessage(e.ctx, msg); err != nil {
		e.mu.Lock()
		delete(e.ownWrites, msg.ID)
		e.mu.Unlock()
		e.fail(sessionID, requestID, fmt.Errorf("recording answer: %w", err))
		return
	}

	e.mu.Lock()
	delete(e.pending, sessionID)
	if e.active == sessionID {
		if e.guard.Claim(dedupe.Key(sessionID, requestID)) {
			e.log = append(e.log, entryFromMessage(msg))
		}
		if e.state == StateAwaitingResponse {
			e.state = StateReady
		}
	} else {
		e.logger.Debug("answer stored for inactive session", "session_id", sessionID, "request_id", requestID)
	}
	e.mu.Unlock()
	e.publish()
}

// fail shows a local error bubble in the originating session and returns it
// to ready.
func (e *Engine) fail(sessionID, requestID string, cause error) {
	bubble := e.bubble()

	e.mu.Lock()
	delete(e.pending, sessionID)
	e.local[sessionID] = append(e.local[sessionID], bubble)
	if e.active == sessionID {
		e.log = append(e.log, bubble)
		if e.state == StateAwaitingResponse {
			e.state = StateReady
		}
	}
	e.mu.Unlock()
	e.publish()

	e.logger.Warn("answer failed", "session_id", sessionID, "request_id", requestID, "error", cause)
	e.notices.Post(notice.Error("conversation", cause, true))
}

func (e *Engine) bubble() Entry {
	return Entry{
		ID:        "local-" + uuid.New().String(),
		Role:      store.RoleSystem,
		Content:   ErrorBubbleText,
		CreatedAt: time.Now().UTC(),
		Local:     true,
	}
}

// ABOUTME: Background loop of the conversation engine
// ABOUTME: Follows the active session's push topic and drives coalesced switches and reloads

package conversation

import (
	"context"

	"github.com/2389/scout-desk/internal/push"
	"github.com/2389/scout-desk/internal/store"
)

// Run services RequestSelect and reloads the active session when another
// client adds messages to it. It returns when ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{}, 2)
	go func() { e.switcher.Run(runCtx); done <- struct{}{} }()
	go func() { e.reloader.Run(runCtx); done <- struct{}{} }()
	defer func() {
		cancel()
		<-done
		<-done
	}()

	var (
		changes    <-chan store.Change
		subscribed string
		unsub      = func() {}
	)
	defer func() { unsub() }()

	// Pick up a session selected before Run started.
	e.signalActiveChanged()

	for {
		select {
		case <-runCtx.Done():
			return nil

		case <-e.activeChanged:
			active := e.Active()
			if active == subscribed {
				continue
			}
			unsub()
			subscribed = active
			if active == "" || e.push == nil {
				changes, unsub = nil, func() {}
				continue
			}
			subCtx, subCancel := context.WithCancel(runCtx)
			changes, _ = e.push.Subscribe(subCtx, push.SessionTopic(active))
			unsub = subCancel

		case c, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			e.handleChange(c)
		}
	}
}

func (e *Engine) handleChange(c store.Change) {
	if c.Table != store.TableMessages || c.Op != store.OpInsert {
		return
	}

	e.mu.Lock()
	_, own := e.ownWrites[c.RowID]
	if own {
		delete(e.ownWrites, c.RowID)
	}
	active := e.active
	e.mu.Unlock()

	if own || c.SessionID != active {
		return
	}
	e.logger.Debug("message from another client", "session_id", c.SessionID, "message_id", c.RowID)
	e.reloader.Trigger(c.SessionID)
}

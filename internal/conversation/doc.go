// Package conversation runs the chat view of a single session at a time.
//
// # Engine
//
// The Engine owns the active session's message log and a submit slot per
// session:
//
//	eng := conversation.New(conversation.Options{
//	    OwnerID:  ownerID,
//	    Store:    st,
//	    Answerer: apiClient,
//	    Push:     broadcaster,
//	})
//	go eng.Run(ctx)
//	defer eng.Close()
//
// Select loads a session's full history. Submit appends the user's text
// optimistically, records it, and only then asks the answer service. The
// answer is recorded under its request id and rendered into the session that
// asked, never into whichever session happens to be active.
//
// # States
//
//	uninitialized -> loading-history -> ready <-> awaiting-response
//
// A session awaiting an answer rejects further submissions with ErrBusy.
// Switching away and back restores the awaiting state until the answer lands.
//
// # Failures
//
// A failed answer shows ErrorBubbleText as a local system entry and posts a
// retryable notice. A message that could not be recorded is replaced by the
// same bubble and no answer is requested.
//
// # Live Updates
//
// Run follows the active session's push topic. Messages written by other
// clients trigger a coalesced reload; writes made by this engine are ignored.
package conversation

// Package dedupe provides an at-most-once guard: a bounded, expiring set of
// claimed keys. The conversation engine claims Key(session, response) before
// rendering an answer, so a response that arrives both live and inside a
// history reload is shown only once.
package dedupe

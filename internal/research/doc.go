// Package research generates, reviews and saves prospect research reports.
//
// # Jobs
//
// Each research modal invocation is a Job from Service.Open:
//
//	idle -> generating -> review
//	             \-> idle-with-error -> generating (explicit retry)
//
// A job runs one generation at a time; asking again while generating is
// ErrGenerating, nothing is cancelled. Save works only in review and keeps
// the document when it fails.
//
// # Documents
//
// Normalize accepts every payload shape the backend uses and never fails.
// Reports are split into sections on numbered lines and markdown headings.
package research

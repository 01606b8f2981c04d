// Package coalesce collapses rapid triggers into a single delayed run that
// sees only the most recent value.
package coalesce

// Package store provides persistent storage for the workspace using SQLite.
//
// # Architecture
//
// Two interfaces split the persisted data by concern:
//
//   - SessionStore: sessions and their ordered message logs
//   - RecordStore: saved prospects and research reports
//
// Store composes both and adds change emission. SQLiteStore and MockStore
// implement Store.
//
// # Ordering
//
// Messages are returned in insertion order. The store keeps each message's
// created_at strictly after the previous message in the same session, and
// advances the session's updated_at to max(updated_at+1ns, created_at) in the
// same transaction as the insert, so a session with new activity always sorts
// ahead of the ones without.
//
// # Change Notifications
//
// After a write commits the store hands a Change to the registered Notifier.
// A Change names the table, operation, owner, session and row; it never
// carries row data. Receivers re-read whatever they display.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;   (set per connection through the DSN)
//
// Deleting a session cascades to its messages through ON DELETE CASCADE.
// Saved prospects are unique per (owner_id, external_id); saving again upserts.
//
// # Error Handling
//
//   - ErrNotFound: the entity does not exist or belongs to another owner
//   - ErrUnreachable: the database could not be reached; wraps the driver error
//
// # Testing
//
// Use NewMockStore() for unit tests that need to simulate an unreachable
// database (SetUnreachable). Use NewSQLiteStore with a path under t.TempDir()
// for integration tests with real SQLite.
package store

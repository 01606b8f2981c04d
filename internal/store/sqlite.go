// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides session/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	notifierSlot

	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed. ":memory:" opens a private
// in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	inMemory := path == ":memory:"
	if !inMemory {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// foreign_keys is per connection, so it goes in the DSN where every
	// pooled connection picks it up.
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
// Timestamps are unix nanoseconds so ordering survives sub-second writes.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_owner_updated
			ON sessions(owner_id, updated_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session_created
			ON messages(session_id, created_at);

		CREATE TABLE IF NOT EXISTS saved_prospects (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			external_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE (owner_id, external_id)
		);

		CREATE TABLE IF NOT EXISTS research_reports (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			prospect_id TEXT NOT NULL,
			prospect_name TEXT NOT NULL,
			company TEXT NOT NULL DEFAULT '',
			document TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_reports_owner_created
			ON research_reports(owner_id, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Ping reports whether the database is reachable
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return wrapErr("pinging database", s.db.PingContext(ctx))
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// CreateSession inserts a new session. Missing IDs and timestamps are filled in.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, owner_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, session.ID, session.OwnerID, session.Title, toNanos(session.CreatedAt), toNanos(session.UpdatedAt))
	if err != nil {
		return wrapErr("inserting session", err)
	}

	s.logger.Debug("created session", "id", session.ID, "owner", session.OwnerID)
	s.emit(Change{Table: TableSessions, Op: OpInsert, OwnerID: session.OwnerID, SessionID: session.ID, RowID: session.ID})
	return nil
}

// GetSession retrieves a session by ID.
// Returns ErrNotFound if the session doesn't exist.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, created_at, updated_at
		FROM sessions
		WHERE id = ?
	`, id)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("querying session", err)
	}
	return session, nil
}

// ListSessions returns all sessions for an owner, newest activity first
func (s *SQLiteStore) ListSessions(ctx context.Context, ownerID string) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, created_at, updated_at
		FROM sessions
		WHERE owner_id = ?
		ORDER BY updated_at DESC, created_at DESC, id
	`, ownerID)
	if err != nil {
		return nil, wrapErr("querying sessions", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, wrapErr("scanning session", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterating sessions", err)
	}
	return sessions, nil
}

// RenameSession changes a session's title and advances its updated_at.
// Returns ErrNotFound if the owner has no such session.
func (s *SQLiteStore) RenameSession(ctx context.Context, ownerID, id, title string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET title = ?, updated_at = MAX(updated_at + 1, ?)
		WHERE id = ? AND owner_id = ?
	`, title, toNanos(time.Now()), id, ownerID)
	if err != nil {
		return wrapErr("renaming session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	s.emit(Change{Table: TableSessions, Op: OpUpdate, OwnerID: ownerID, SessionID: id, RowID: id})
	return nil
}

// DeleteSession removes a session; its messages go with it via ON DELETE CASCADE.
// Returns ErrNotFound if the owner has no such session.
func (s *SQLiteStore) DeleteSession(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return wrapErr("deleting session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted session", "id", id)
	s.emit(Change{Table: TableSessions, Op: OpDelete, OwnerID: ownerID, SessionID: id, RowID: id})
	return nil
}

// AddMessage appends a message to its session. created_at is kept strictly
// after the session's previous message, and the session's updated_at moves to
// max(updated_at+1ns, created_at), both inside one transaction.
func (s *SQLiteStore) AddMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var ownerID string
	err = tx.QueryRowContext(ctx, `SELECT owner_id FROM sessions WHERE id = ?`, msg.SessionID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return wrapErr("loading session", err)
	}

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM messages WHERE session_id = ?`, msg.SessionID,
	).Scan(&last); err != nil {
		return wrapErr("reading last message time", err)
	}
	created := toNanos(msg.CreatedAt)
	if last.Valid && created <= last.Int64 {
		created = last.Int64 + 1
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ID, msg.SessionID, string(msg.Role), msg.Content, created); err != nil {
		return wrapErr("inserting message", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET updated_at = MAX(updated_at + 1, ?) WHERE id = ?
	`, created, msg.SessionID); err != nil {
		return wrapErr("advancing session updated_at", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("committing message", err)
	}
	msg.CreatedAt = fromNanos(created)

	s.emit(
		Change{Table: TableMessages, Op: OpInsert, OwnerID: ownerID, SessionID: msg.SessionID, RowID: msg.ID},
		Change{Table: TableSessions, Op: OpUpdate, OwnerID: ownerID, SessionID: msg.SessionID, RowID: msg.SessionID},
	)
	return nil
}

// ListMessages returns a session's messages in insertion order
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, sessionID)
	if err != nil {
		return nil, wrapErr("querying messages", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var role string
		var created int64
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &created); err != nil {
			return nil, wrapErr("scanning message", err)
		}
		msg.Role = Role(role)
		msg.CreatedAt = fromNanos(created)
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterating messages", err)
	}
	return messages, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var session Session
	var created, updated int64
	if err := row.Scan(&session.ID, &session.OwnerID, &session.Title, &created, &updated); err != nil {
		return nil, err
	}
	session.CreatedAt = fromNanos(created)
	session.UpdatedAt = fromNanos(updated)
	return &session, nil
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// wrapErr annotates a driver error, marking it ErrUnreachable when the
// database itself is unavailable rather than the statement being at fault.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isUnreachable(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrUnreachable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnreachable(err error) bool {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	msg := err.Error()
	for _, marker := range []string{
		"database is closed",
		"database is locked",
		"unable to open database",
		"disk I/O error",
		"SQLITE_BUSY",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Package store persists the reference agent's sessions, messages and
// daily entries in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/smart-daily/dailychat/internal/model"
)

// ErrNotFound is returned for unknown or foreign sessions.
var ErrNotFound = errors.New("not found")

// Entry sources.
const (
	SourceChat   = "chat"
	SourceImport = "import"
)

// Entry is one committed daily report entry.
type Entry struct {
	ID        int64
	MemberID  int
	Date      string
	Content   string
	Summary   string
	Risk      string
	Source    string
	CreatedAt time.Time
}

// Store is a SQLite backed store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	PRAGMA foreign_keys = ON;

	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, updated_at DESC);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		response TEXT NOT NULL DEFAULT '',
		config TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);

	CREATE TABLE IF NOT EXISTS daily_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		member_id INTEGER NOT NULL,
		daily_date TEXT NOT NULL,
		content TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		risk TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT 'chat',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_member_date ON daily_entries(member_id, daily_date);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Session operations

// CreateSession creates a session owned by userID.
func (s *Store) CreateSession(ctx context.Context, userID int, title string) (model.SessionInfo, error) {
	now := s.now().Unix()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?)
	`, userID, title, now, now)
	if err != nil {
		return model.SessionInfo{}, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.SessionInfo{}, err
	}
	return model.SessionInfo{ID: model.SessionID(id), Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

// ListSessions returns the sessions of userID, most recently updated first.
func (s *Store) ListSessions(ctx context.Context, userID int) ([]model.SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, created_at, updated_at FROM sessions
		WHERE user_id = ? ORDER BY updated_at DESC, id DESC LIMIT 50
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []model.SessionInfo{}
	for rows.Next() {
		var info model.SessionInfo
		if err := rows.Scan(&info.ID, &info.Title, &info.CreatedAt, &info.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, info)
	}
	return sessions, rows.Err()
}

// DeleteSession deletes a session of userID and its messages.
func (s *Store) DeleteSession(ctx context.Context, userID int, id model.SessionID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ? AND user_id = ?`, int64(id), userID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// OwnsSession reports whether id exists and belongs to userID.
func (s *Store) OwnsSession(ctx context.Context, userID int, id model.SessionID) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ? AND user_id = ?`, int64(id), userID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AppendMessage stores a message row and touches the session.
func (s *Store) AppendMessage(ctx context.Context, id model.SessionID, role, content, config string) error {
	now := s.now().Unix()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (session_id, role, content, config, created_at) VALUES (?, ?, ?, ?, ?)
	`, int64(id), role, content, config, now); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, now, int64(id)); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return tx.Commit()
}

// Messages returns the message rows of a session owned by userID in
// insertion order.
func (s *Store) Messages(ctx context.Context, userID int, id model.SessionID) ([]model.MessageRow, error) {
	owned, err := s.OwnsSession(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, response, config, created_at
		FROM messages WHERE session_id = ? ORDER BY id
	`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	out := []model.MessageRow{}
	for rows.Next() {
		var r model.MessageRow
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Role, &r.Content, &r.Response, &r.Config, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastMessage returns the newest row of session id with the given role.
func (s *Store) LastMessage(ctx context.Context, id model.SessionID, role string) (model.MessageRow, error) {
	var r model.MessageRow
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, role, content, response, config, created_at
		FROM messages WHERE session_id = ? AND role = ? ORDER BY id DESC LIMIT 1
	`, int64(id), role).Scan(&r.ID, &r.SessionID, &r.Role, &r.Content, &r.Response, &r.Config, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

// SetMessageConfig replaces the config column of a message row.
func (s *Store) SetMessageConfig(ctx context.Context, msgID int64, config string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE messages SET config = ? WHERE id = ?`, config, msgID)
	return err
}

// Daily entry operations

// SaveEntry inserts a daily entry and returns its id.
func (s *Store) SaveEntry(ctx context.Context, e Entry) (int64, error) {
	if e.Source == "" {
		e.Source = SourceChat
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_entries (member_id, daily_date, content, summary, risk, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.MemberID, e.Date, e.Content, e.Summary, e.Risk, e.Source, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("insert entry: %w", err)
	}
	return res.LastInsertId()
}

// MemberEntriesSince returns the entries of memberID dated on or after
// since (YYYY-MM-DD), oldest first.
func (s *Store) MemberEntriesSince(ctx context.Context, memberID int, since string) ([]Entry, error) {
	return s.queryEntries(ctx, `
		SELECT id, member_id, daily_date, content, summary, risk, source, created_at
		FROM daily_entries WHERE member_id = ? AND daily_date >= ?
		ORDER BY daily_date, id
	`, memberID, since)
}

// SearchEntries returns the most recent entries whose content or summary
// contains keyword. An empty keyword matches everything.
func (s *Store) SearchEntries(ctx context.Context, keyword string, limit int) ([]Entry, error) {
	pattern := "%" + keyword + "%"
	return s.queryEntries(ctx, `
		SELECT id, member_id, daily_date, content, summary, risk, source, created_at
		FROM daily_entries WHERE content LIKE ? OR summary LIKE ?
		ORDER BY daily_date DESC, id DESC LIMIT ?
	`, pattern, pattern, limit)
}

// ReplaceImported writes imported entries, replacing earlier imported
// entries for the same member and day. merged counts replaced days,
// imported counts new ones.
func (s *Store) ReplaceImported(ctx context.Context, entries []Entry) (imported, merged int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	now := s.now().Unix()
	for _, e := range entries {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM daily_entries WHERE source = ? AND member_id = ? AND daily_date = ?
		`, SourceImport, e.MemberID, e.Date)
		if err != nil {
			return 0, 0, fmt.Errorf("delete imported entry: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			merged++
		} else {
			imported++
		}

		summary := e.Summary
		if summary == "" {
			summary = e.Content
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO daily_entries (member_id, daily_date, content, summary, risk, source, created_at)
			VALUES (?, ?, ?, ?, '', ?, ?)
		`, e.MemberID, e.Date, e.Content, summary, SourceImport, now); err != nil {
			return 0, 0, fmt.Errorf("insert imported entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return imported, merged, nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...interface{}) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			created int64
		)
		if err := rows.Scan(&e.ID, &e.MemberID, &e.Date, &e.Content, &e.Summary, &e.Risk, &e.Source, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(created, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

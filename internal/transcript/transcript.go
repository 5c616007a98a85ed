// Package transcript keeps the conversation log in SQLite: user turns,
// assistant replies and the short error notes shown in their place.
package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Role tags a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
)

// Message is one transcript entry. Generation fields are set on assistant
// entries only.
type Message struct {
	ID           int64
	Conversation string
	Role         Role
	Content      string
	CreatedAt    time.Time
	Model        string
	Tokens       int
	Duration     time.Duration
	StopReason   string
}

// Store provides transcript persistence.
type Store struct {
	db *sql.DB
}

// NewConversationID returns a fresh conversation identifier.
func NewConversationID() string { return uuid.NewString() }

// Open creates or opens the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping transcript: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init transcript schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS messages (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation TEXT NOT NULL,
		role         TEXT NOT NULL,
		content      TEXT NOT NULL,
		created_at   INTEGER NOT NULL,
		model        TEXT NOT NULL DEFAULT '',
		tokens       INTEGER NOT NULL DEFAULT 0,
		duration_ms  INTEGER NOT NULL DEFAULT 0,
		stop_reason  TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation, id);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Append stores m and returns its id. A zero CreatedAt is set to now.
func (s *Store) Append(ctx context.Context, m Message) (int64, error) {
	if m.Conversation == "" {
		return 0, fmt.Errorf("append: empty conversation id")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (conversation, role, content, created_at, model, tokens, duration_ms, stop_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Conversation, string(m.Role), m.Content, m.CreatedAt.UnixMilli(),
		m.Model, m.Tokens, m.Duration.Milliseconds(), m.StopReason)
	if err != nil {
		return 0, fmt.Errorf("append: %w", err)
	}
	return res.LastInsertId()
}

// List returns the last limit entries of a conversation, oldest first.
// limit <= 0 returns everything.
func (s *Store) List(ctx context.Context, conversation string, limit int) ([]Message, error) {
	q := `SELECT id, conversation, role, content, created_at, model, tokens, duration_ms, stop_reason
		FROM messages WHERE conversation = ? ORDER BY id DESC`
	args := []any{conversation}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		var (
			m         Message
			role      string
			createdMS int64
			durMS     int64
		)
		if err := rows.Scan(&m.ID, &m.Conversation, &role, &m.Content, &createdMS, &m.Model, &m.Tokens, &durMS, &m.StopReason); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt = time.UnixMilli(createdMS)
		m.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Clear deletes a conversation and reports how many entries were removed.
func (s *Store) Clear(ctx context.Context, conversation string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation = ?`, conversation)
	if err != nil {
		return 0, fmt.Errorf("clear: %w", err)
	}
	return res.RowsAffected()
}

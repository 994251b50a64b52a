package transcript

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using an in-memory SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewMemory creates an in-memory transcript store. The shared-cache DSN keeps
// one database across pooled connections; the random name isolates stores
// from each other, and a single open connection avoids SQLITE_BUSY on
// concurrent appends.
func NewMemory() (Repository, error) {
	dsn := fmt.Sprintf("file:transcript-%s?mode=memory&cache=shared", uuid.NewString())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		conn_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		text TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conn ON messages(conn_id, seq);
	`
	if _, err := s.db.Exec(query); err != nil {
		return err
	}
	return nil
}

// Append records one message. Rows are never updated or deleted.
func (s *SQLiteStore) Append(ctx context.Context, connID string, msg ChatMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conn_id, message_id, sender, text, timestamp) VALUES (?, ?, ?, ?, ?)`,
		connID, msg.ID, string(msg.Sender), msg.Text, msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// Messages returns a connection's transcript in insertion order.
func (s *SQLiteStore) Messages(ctx context.Context, connID string) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, sender, text, timestamp FROM messages WHERE conn_id = ? ORDER BY seq`,
		connID,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var msgs []ChatMessage
	for rows.Next() {
		var m ChatMessage
		var sender string
		if err := rows.Scan(&m.ID, &sender, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Sender = Sender(sender)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript: %w", err)
	}
	return msgs, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

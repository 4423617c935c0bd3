package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/corebridge/platform-core/internal/apperr"
)

// schema matches spec.md §4.6/§6's single-table layout: one row per
// conversation, messages/metadata serialized as JSON blobs, with indexes on
// the four columns the AND-combined filter set queries by.
const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	conversation_id TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	chat_id         TEXT NOT NULL,
	agent_name      TEXT NOT NULL,
	messages_blob   TEXT NOT NULL,
	metadata_blob   TEXT,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL,
	expires_at      DATETIME,
	message_count   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_user_id    ON conversations(user_id);
CREATE INDEX IF NOT EXISTS idx_conversations_chat_id    ON conversations(chat_id);
CREATE INDEX IF NOT EXISTS idx_conversations_agent_name ON conversations(agent_name);
CREATE INDEX IF NOT EXISTS idx_conversations_created_at ON conversations(created_at);
CREATE INDEX IF NOT EXISTS idx_conversations_expires_at ON conversations(expires_at);
`

// SQLStore implements Store over a single SQLite table, grounded on the
// teacher's sessions.CockroachStore (sql.DB + prepared statements, same
// CRUD shape) swapped from lib/pq/CockroachDB to modernc.org/sqlite (the
// teacher's own preference for a cgo-free driver elsewhere in its go.mod,
// and the pack's one SQL-capable pure-Go driver).
type SQLStore struct {
	db  *sql.DB
	box *cryptoBox
}

// NewSQLStore opens (or creates) a SQLite database at path and ensures the
// schema exists. A non-nil key enables per-row AEAD encryption of the
// messages and metadata blobs.
func NewSQLStore(path string, key []byte) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperr.BackendUnavailable("sqlite", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperr.Misconfigured("create schema: " + err.Error())
	}
	var box *cryptoBox
	if key != nil {
		b, err := newCryptoBox(key)
		if err != nil {
			db.Close()
			return nil, err
		}
		box = b
	}
	return &SQLStore{db: db, box: box}, nil
}

// NewSQLStoreFromDB wraps an already-open *sql.DB (used by tests against a
// go-sqlmock connection, where the schema is never actually executed).
func NewSQLStoreFromDB(db *sql.DB, key []byte) (*SQLStore, error) {
	var box *cryptoBox
	if key != nil {
		b, err := newCryptoBox(key)
		if err != nil {
			return nil, err
		}
		box = b
	}
	return &SQLStore{db: db, box: box}, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) encodeBlob(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if s.box == nil {
		return string(raw), nil
	}
	return s.box.encodeRaw(raw)
}

func (s *SQLStore) decodeBlob(data string, out any) error {
	raw := []byte(data)
	if s.box != nil {
		plain, err := s.box.decodeRaw(data)
		if err != nil {
			return err
		}
		raw = plain
	}
	return json.Unmarshal(raw, out)
}

func (s *SQLStore) Save(ctx context.Context, c *Conversation) error {
	if c.ID == "" {
		return apperr.Misconfigured("conversation ID must not be empty")
	}
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	messagesBlob, err := s.encodeBlob(c.Messages)
	if err != nil {
		return err
	}
	metadataBlob, err := s.encodeBlob(c.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations
			(conversation_id, user_id, chat_id, agent_name, messages_blob, metadata_blob, created_at, updated_at, expires_at, message_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			user_id=excluded.user_id, chat_id=excluded.chat_id, agent_name=excluded.agent_name,
			messages_blob=excluded.messages_blob, metadata_blob=excluded.metadata_blob,
			updated_at=excluded.updated_at, expires_at=excluded.expires_at, message_count=excluded.message_count
	`, c.ID, c.UserID, c.ChatID, c.AgentName, messagesBlob, metadataBlob, c.CreatedAt, c.UpdatedAt, nullableTime(c.ExpiresAt), len(c.Messages))
	if err != nil {
		return apperr.BackendUnavailable("sqlite", err)
	}
	return nil
}

func (s *SQLStore) scanRow(row *sql.Row) (*Conversation, error) {
	var (
		c                          Conversation
		messagesBlob, metadataBlob sql.NullString
		expiresAt                  sql.NullTime
	)
	err := row.Scan(&c.ID, &c.UserID, &c.ChatID, &c.AgentName, &messagesBlob, &metadataBlob, &c.CreatedAt, &c.UpdatedAt, &expiresAt, new(int))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.TaskNotFound(c.ID)
	}
	if err != nil {
		return nil, apperr.BackendUnavailable("sqlite", err)
	}
	if messagesBlob.Valid {
		if err := s.decodeBlob(messagesBlob.String, &c.Messages); err != nil {
			return nil, apperr.Unavailable()
		}
	}
	if metadataBlob.Valid && metadataBlob.String != "" {
		if err := s.decodeBlob(metadataBlob.String, &c.Metadata); err != nil {
			return nil, apperr.Unavailable()
		}
	}
	if expiresAt.Valid {
		c.ExpiresAt = expiresAt.Time
	}
	return &c, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, user_id, chat_id, agent_name, messages_blob, metadata_blob, created_at, updated_at, expires_at, message_count
		FROM conversations WHERE conversation_id = ?
	`, id)
	return s.scanRow(row)
}

func (s *SQLStore) Update(ctx context.Context, id string, patch Patch) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	applyPatch(c, patch)
	return s.Save(ctx, c)
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE conversation_id = ?`, id)
	if err != nil {
		return apperr.BackendUnavailable("sqlite", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.TaskNotFound(id)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, filter Filter) ([]*Conversation, error) {
	query := `
		SELECT conversation_id, user_id, chat_id, agent_name, messages_blob, metadata_blob, created_at, updated_at, expires_at, message_count
		FROM conversations WHERE 1=1
	`
	var args []any
	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.ChatID != "" {
		query += " AND chat_id = ?"
		args = append(args, filter.ChatID)
	}
	if filter.AgentName != "" {
		query += " AND agent_name = ?"
		args = append(args, filter.AgentName)
	}
	if !filter.After.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.After)
	}
	if !filter.Before.IsZero() {
		query += " AND created_at <= ?"
		args = append(args, filter.Before)
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.BackendUnavailable("sqlite", err)
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		var (
			c                          Conversation
			messagesBlob, metadataBlob sql.NullString
			expiresAt                  sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.ChatID, &c.AgentName, &messagesBlob, &metadataBlob, &c.CreatedAt, &c.UpdatedAt, &expiresAt, new(int)); err != nil {
			return nil, apperr.BackendUnavailable("sqlite", err)
		}
		if messagesBlob.Valid {
			if err := s.decodeBlob(messagesBlob.String, &c.Messages); err != nil {
				continue
			}
		}
		if metadataBlob.Valid && metadataBlob.String != "" {
			s.decodeBlob(metadataBlob.String, &c.Metadata)
		}
		if expiresAt.Valid {
			c.ExpiresAt = expiresAt.Time
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *SQLStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(message_count), 0) FROM conversations`)
	if err := row.Scan(&st.TotalConversations, &st.TotalMessages); err != nil {
		return Stats{}, apperr.BackendUnavailable("sqlite", err)
	}
	return st, nil
}

func (s *SQLStore) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	now := time.Now()
	var cutoff any
	if retentionDays > 0 {
		cutoff = now.Add(-time.Duration(retentionDays) * 24 * time.Hour)
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM conversations
		WHERE (expires_at IS NOT NULL AND expires_at <= ?)
		   OR (? IS NOT NULL AND created_at <= ?)
	`, now, cutoff, cutoff)
	if err != nil {
		return 0, apperr.BackendUnavailable("sqlite", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

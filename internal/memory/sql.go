package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/majordomo-labs/majordomo/pkg/models"
)

// Dialect selects placeholder style and DDL for the SQL backend.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversation_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_user_created ON conversation_messages(user_id, created_at);
CREATE TABLE IF NOT EXISTS long_term_memory (
	user_id INTEGER PRIMARY KEY,
	summary TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS conversation_messages (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata JSONB,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_user_created ON conversation_messages(user_id, created_at);
CREATE TABLE IF NOT EXISTS long_term_memory (
	user_id BIGINT PRIMARY KEY,
	summary TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);`

// SQLStore implements Store over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// OpenPostgres connects to a Postgres/Supabase database and ensures schema.
func OpenPostgres(url string) (*SQLStore, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	store := &SQLStore{db: db, dialect: DialectPostgres}
	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// OpenSQLite opens the local fallback database and ensures schema.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	store := &SQLStore{db: db, dialect: DialectSQLite}
	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an existing handle. Used by tests with sqlmock.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) ensureSchema() error {
	schema := sqliteSchema
	if s.dialect == DialectPostgres {
		schema = postgresSchema
	}
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// rebind converts ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) AppendTurn(ctx context.Context, turn *models.ConversationTurn) error {
	var metadata any
	if turn.Metadata != nil {
		data, err := json.Marshal(turn.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		metadata = string(data)
	}
	createdAt := turn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO conversation_messages (user_id, role, content, metadata, created_at) VALUES (?, ?, ?, ?, ?)`),
		turn.UserID, string(turn.Role), turn.Content, metadata, createdAt)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (s *SQLStore) RecentTurns(ctx context.Context, userID int64, limit int) ([]models.ConversationTurn, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT role, content, metadata, created_at FROM conversation_messages
			WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`),
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	defer rows.Close()

	var turns []models.ConversationTurn
	for rows.Next() {
		var (
			role, content string
			metadata      sql.NullString
			createdAt     time.Time
		)
		if err := rows.Scan(&role, &content, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turn := models.ConversationTurn{
			UserID:    userID,
			Role:      models.Role(role),
			Content:   content,
			CreatedAt: createdAt,
		}
		if metadata.Valid && metadata.String != "" {
			_ = json.Unmarshal([]byte(metadata.String), &turn.Metadata)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	// Reverse to chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *SQLStore) Summary(ctx context.Context, userID int64) (string, error) {
	var summary string
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT summary FROM long_term_memory WHERE user_id = ?`), userID).Scan(&summary)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("fetch summary: %w", err)
	}
	return summary, nil
}

func (s *SQLStore) UpsertSummary(ctx context.Context, userID int64, summary string) error {
	_, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO long_term_memory (user_id, summary, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (user_id) DO UPDATE SET summary = excluded.summary, updated_at = excluded.updated_at`),
		userID, summary, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

func (s *SQLStore) ActiveUsers(ctx context.Context, since time.Time) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT DISTINCT user_id FROM conversation_messages WHERE created_at >= ?`), since)
	if err != nil {
		return nil, fmt.Errorf("active users: %w", err)
	}
	defer rows.Close()

	var users []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("active users: %w", err)
	}
	return users, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"red-ai/internal/domain"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS turns (
	user_id   TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	role      TEXT NOT NULL,
	content   TEXT NOT NULL,
	PRIMARY KEY (user_id, timestamp)
)`

// SQLiteClient is a local ConversationStore with the same key layout as the
// DynamoDB table. It backs the dev server and CLI when no AWS table is wanted.
type SQLiteClient struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and ensures the schema.
func NewSQLite(ctx context.Context, path string) (*SQLiteClient, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("repository: sqlite path must not be empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("repository: open sqlite %q: %w", path, err)
	}
	// A single connection serialises writers and keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: create sqlite schema: %w", err)
	}
	return &SQLiteClient{db: db}, nil
}

// Close releases the database handle.
func (c *SQLiteClient) Close() error {
	return c.db.Close()
}

// Append inserts the turn, advancing the timestamp by one nanosecond when the
// key is already taken.
func (c *SQLiteClient) Append(ctx context.Context, turn domain.Turn) error {
	if err := validateTurn(turn); err != nil {
		return fmt.Errorf("repository: Append: %w", err)
	}

	ts := turn.Timestamp
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		res, err := c.db.ExecContext(ctx,
			`INSERT INTO turns (user_id, timestamp, role, content) VALUES (?, ?, ?, ?)
			 ON CONFLICT (user_id, timestamp) DO NOTHING`,
			turn.UserID, SortKey(ts), string(turn.Role), turn.Content,
		)
		if err != nil {
			return fmt.Errorf("repository: Append: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("repository: Append rows affected: %w", err)
		}
		if n == 1 {
			return nil
		}
		ts = ts.Add(time.Nanosecond)
	}
	return fmt.Errorf("repository: Append: %w", ErrTimestampCollision)
}

// History returns every turn of the user in ascending timestamp order.
func (c *SQLiteClient) History(ctx context.Context, userID string) ([]domain.Turn, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("repository: History: user id is required")
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT timestamp, role, content FROM turns WHERE user_id = ? ORDER BY timestamp ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: History query: %w", err)
	}
	defer rows.Close()

	turns := make([]domain.Turn, 0)
	for rows.Next() {
		var rawTS, rawRole, content string
		if err := rows.Scan(&rawTS, &rawRole, &content); err != nil {
			return nil, fmt.Errorf("repository: History scan: %w", err)
		}
		ts, err := ParseSortKey(rawTS)
		if err != nil {
			return nil, fmt.Errorf("repository: History unmarshal: %w", err)
		}
		role, err := domain.ParseRole(rawRole)
		if err != nil {
			return nil, fmt.Errorf("repository: History unmarshal: %w", err)
		}
		turns = append(turns, domain.Turn{UserID: userID, Timestamp: ts, Role: role, Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: History rows: %w", err)
	}
	return turns, nil
}

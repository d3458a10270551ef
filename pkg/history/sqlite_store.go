package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteStore persists one row per turn. Unlike the redis backend it appends
// without rewriting the whole sequence, but the per-user serialization
// requirement still applies so interleaved turns keep a consistent order.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}

// SQLiteDSNForFile builds a WAL-mode DSN for the given database file.
func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite history store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite history store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite history store: open")
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite history store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS turns (
			user_id TEXT NOT NULL,
			created_at_s INTEGER NOT NULL,
			user_query TEXT NOT NULL,
			bot_response TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS turns_by_user ON turns(user_id, created_at_s);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite history store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, userID string) ([]Turn, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite history store: db is nil")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("sqlite history store: userID is empty")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT created_at_s, user_query, bot_response
		FROM turns
		WHERE user_id = ?
		ORDER BY created_at_s ASC, rowid ASC
	`, userID)
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "sqlite query turns for %s: %v", userID, err)
	}
	defer func() { _ = rows.Close() }()

	turns := []Turn{}
	for rows.Next() {
		var (
			createdAt int64
			t         Turn
		)
		if err := rows.Scan(&createdAt, &t.UserQuery, &t.BotResponse); err != nil {
			return nil, errors.Wrap(err, "sqlite history store: scan turn")
		}
		t.Timestamp = time.Unix(createdAt, 0).UTC()
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite history store: iterate turns")
	}
	return turns, nil
}

func (s *SQLiteStore) Append(ctx context.Context, userID string, turn Turn) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite history store: db is nil")
	}
	if strings.TrimSpace(userID) == "" {
		return errors.New("sqlite history store: userID is empty")
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO turns(user_id, created_at_s, user_query, bot_response)
		VALUES(?, ?, ?, ?)
	`, userID, turn.Timestamp.Unix(), turn.UserQuery, turn.BotResponse); err != nil {
		return errors.Wrapf(ErrUnavailable, "sqlite insert turn for %s: %v", userID, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

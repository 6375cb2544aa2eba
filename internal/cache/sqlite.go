package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go sqlite driver
)

// SQLite is a Store backed by a single embedded database file. Each
// Put is one transactionless UPSERT, so entries are visible to
// concurrent readers only as complete rows.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the cache database and applies WAL
// pragmas for concurrent batch writers.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma: %w", err)
		}
	}
	schema := `CREATE TABLE IF NOT EXISTS batches (
		range_key  TEXT PRIMARY KEY,
		start_page INTEGER NOT NULL,
		end_page   INTEGER NOT NULL,
		content    TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(ctx context.Context, key Key) (string, bool, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM batches WHERE range_key = ?`, key.String(),
	).Scan(&content)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if content == "" {
		return "", false, nil
	}
	return content, true, nil
}

func (s *SQLite) Put(ctx context.Context, key Key, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batches (range_key, start_page, end_page, content, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(range_key) DO UPDATE SET
		   content = excluded.content, updated_at = excluded.updated_at`,
		key.String(), key.Start, key.End, content, time.Now().UTC(),
	)
	return err
}

func (s *SQLite) Delete(ctx context.Context, key Key) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM batches WHERE range_key = ?`, key.String())
	return err
}

func (s *SQLite) Keys(ctx context.Context) ([]Key, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT start_page, end_page FROM batches ORDER BY start_page`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []Key
	for rows.Next() {
		var k Key
		if err := rows.Scan(&k.Start, &k.End); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLite) Close() error { return s.db.Close() }

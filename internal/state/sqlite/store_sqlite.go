package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"riskvault/internal/state"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS journal (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		recorded_at_ms INTEGER NOT NULL
	)`)
	return err
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

func (s *Store) AppendEvent(ctx context.Context, kind, payload string, recordedAtMS int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO journal (kind, payload, recorded_at_ms) VALUES (?, ?, ?)`,
		kind, payload, recordedAtMS)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) ListEvents(ctx context.Context, afterSeq int64, limit int) ([]state.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, kind, payload, recorded_at_ms FROM journal WHERE seq > ? ORDER BY seq ASC LIMIT ?`,
		afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []state.JournalEntry
	for rows.Next() {
		var entry state.JournalEntry
		if err := rows.Scan(&entry.Seq, &entry.Kind, &entry.Payload, &entry.RecordedAtMS); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Package state persists the ledger across restarts: a key-value slot for
// the latest snapshot and an append-only journal of committed events.
package state

import "context"

type JournalEntry struct {
	Seq          int64
	Kind         string
	Payload      string
	RecordedAtMS int64
}

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	AppendEvent(ctx context.Context, kind, payload string, recordedAtMS int64) (int64, error)
	ListEvents(ctx context.Context, afterSeq int64, limit int) ([]JournalEntry, error)
	Close() error
}

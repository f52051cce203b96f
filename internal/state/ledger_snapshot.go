package state

import (
	"context"
	"encoding/json"
	"strings"

	"riskvault/internal/ledger"
)

const LedgerSnapshotKey = "ledger:last_snapshot"

func LoadLedgerSnapshot(ctx context.Context, store Store) (ledger.Snapshot, bool, error) {
	if store == nil {
		return ledger.Snapshot{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, LedgerSnapshotKey)
	if err != nil {
		return ledger.Snapshot{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return ledger.Snapshot{}, false, nil
	}
	var snapshot ledger.Snapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return ledger.Snapshot{}, false, err
	}
	return snapshot, true, nil
}

func SaveLedgerSnapshot(ctx context.Context, store Store, snapshot ledger.Snapshot) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, LedgerSnapshotKey, string(payload))
}

// AppendLedgerEvent journals one committed event.
func AppendLedgerEvent(ctx context.Context, store Store, event ledger.Event) (int64, error) {
	if store == nil {
		return 0, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return 0, err
	}
	return store.AppendEvent(ctx, string(event.Type), string(payload), event.Time.UnixMilli())
}

// ReplayEvents walks the journal from the beginning in batches and decodes
// each entry back into a ledger event.
func ReplayEvents(ctx context.Context, store Store, visit func(seq int64, event ledger.Event) error) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	const batch = 500
	after := int64(0)
	for {
		entries, err := store.ListEvents(ctx, after, batch)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		for _, entry := range entries {
			var event ledger.Event
			if err := json.Unmarshal([]byte(entry.Payload), &event); err != nil {
				return err
			}
			if err := visit(entry.Seq, event); err != nil {
				return err
			}
			after = entry.Seq
		}
	}
}

// Command verify audits a ledger database offline: it replays the event
// journal, reconstructs per-vault principal balances, and checks them against
// the persisted snapshot and its conservation invariant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"

	"riskvault/internal/config"
	"riskvault/internal/ledger"
	"riskvault/internal/state"
	"riskvault/internal/state/sqlite"

	"github.com/shopspring/decimal"
)

func main() {
	configPath := flag.String("config", "", "optional config path for the state location")
	statePath := flag.String("state", "", "sqlite database path (overrides config)")
	verbose := flag.Bool("verbose", false, "print every vault, not just mismatches")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fatal(err)
	}

	path := *statePath
	if path == "" && *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fatal(err)
		}
		path = cfg.State.SQLitePath
	}
	if path == "" {
		path = "data/riskvault.db"
	}
	if _, err := os.Stat(path); err != nil {
		fatal(fmt.Errorf("state database: %w", err))
	}
	store, err := sqlite.New(path)
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	snapshot, ok, err := state.LoadLedgerSnapshot(ctx, store)
	if err != nil {
		fatal(err)
	}
	if !ok {
		fatal(errors.New("no ledger snapshot in database"))
	}

	replayed, events, err := replay(ctx, store)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("journal: %d events replayed\n", events)

	mismatches := 0
	total := decimal.Zero
	principals := make([]string, 0, len(snapshot.Vaults))
	for principal := range snapshot.Vaults {
		principals = append(principals, principal)
	}
	sort.Strings(principals)
	for _, principal := range principals {
		vs := snapshot.Vaults[principal]
		debt, err := decimal.NewFromString(vs.Debt)
		if err != nil {
			fatal(fmt.Errorf("snapshot debt for %s: %w", principal, err))
		}
		total = total.Add(debt)
		got := replayed[principal]
		if !got.Equal(debt) {
			mismatches++
			fmt.Printf("MISMATCH %s: journal %s, snapshot %s\n", principal, got, debt)
		} else if *verbose {
			fmt.Printf("ok %s: debt %s\n", principal, debt)
		}
	}
	for principal, debt := range replayed {
		if _, ok := snapshot.Vaults[principal]; !ok && !debt.IsZero() {
			mismatches++
			fmt.Printf("MISMATCH %s: journal %s, absent from snapshot\n", principal, debt)
		}
	}

	snapTotal, err := decimal.NewFromString(snapshot.TotalBorrowed)
	if err != nil {
		fatal(err)
	}
	if !snapTotal.Equal(total) {
		mismatches++
		fmt.Printf("MISMATCH total borrowed %s, vault sum %s\n", snapTotal, total)
	}

	if mismatches > 0 {
		fmt.Printf("audit FAILED: %d mismatches\n", mismatches)
		os.Exit(1)
	}
	fmt.Printf("audit ok: %d vaults, total borrowed %s, reserve %s\n",
		len(snapshot.Vaults), snapshot.TotalBorrowed, snapshot.Reserve)
}

// replay reconstructs per-principal outstanding principal from the journal.
// Interest and collateral are excluded: interest is derived state, and
// collateral moves are not fully determined by the event stream.
func replay(ctx context.Context, store state.Store) (map[string]decimal.Decimal, int, error) {
	balances := make(map[string]decimal.Decimal)
	count := 0
	err := state.ReplayEvents(ctx, store, func(_ int64, event ledger.Event) error {
		count++
		key := event.Principal.Hex()
		switch event.Type {
		case ledger.EventBorrow:
			balances[key] = balances[key].Add(event.Amount)
		case ledger.EventRepay, ledger.EventDeleverage, ledger.EventLiquidation:
			balances[key] = balances[key].Sub(event.PrincipalPaid)
		}
		return nil
	})
	return balances, count, err
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

package ledger

import (
	"fmt"
	"time"

	"riskvault/internal/risk"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// VaultView is a copy handed to read-only callers.
type VaultView struct {
	Principal       common.Address
	Collateral      decimal.Decimal
	Debt            decimal.Decimal
	AccruedInterest decimal.Decimal
	LastLambda      int64
	LastUpdate      time.Time
	Health          Health
}

// GlobalView summarizes the shared counters.
type GlobalView struct {
	TotalBorrowed decimal.Decimal
	Reserve       decimal.Decimal
	Vaults        int
}

// CapacityView answers "how much more can this principal borrow right now".
type CapacityView struct {
	Lambda        int64
	VolatilityBps int64
	Price         decimal.Decimal
	PriceStale    bool
	MaxBorrow     decimal.Decimal
	Available     decimal.Decimal
}

// VaultOf returns a copy of the vault; absent vaults read as zero vaults.
func (l *Ledger) VaultOf(principal common.Address) VaultView {
	l.mu.Lock()
	defer l.mu.Unlock()
	view := VaultView{
		Principal:       principal,
		Collateral:      decimal.Zero,
		Debt:            decimal.Zero,
		AccruedInterest: decimal.Zero,
	}
	if v, ok := l.vaults[principal]; ok {
		view.Collateral = v.Collateral
		view.Debt = v.Debt
		view.AccruedInterest = v.AccruedInterest
		view.LastLambda = v.LastLambda
		view.LastUpdate = v.LastUpdate
		view.Health = v.Health
	}
	return view
}

func (l *Ledger) Global() GlobalView {
	l.mu.Lock()
	defer l.mu.Unlock()
	return GlobalView{
		TotalBorrowed: l.totalBorrowed,
		Reserve:       l.reserve,
		Vaults:        len(l.vaults),
	}
}

// Capacity computes the current borrow headroom from the live quote and a
// freshly derived lambda. Never mutates state; safe for high-frequency polls.
func (l *Ledger) Capacity(principal common.Address) CapacityView {
	l.mu.Lock()
	defer l.mu.Unlock()
	vol := l.feeds.Volatility(l.params.Instrument)
	quote := l.feeds.Read(l.params.Instrument)
	view := CapacityView{
		Lambda:        risk.Lambda(vol.Bps, l.params.Risk),
		VolatilityBps: vol.Bps,
		Price:         quote.Price,
		PriceStale:    quote.Stale,
		MaxBorrow:     decimal.Zero,
		Available:     decimal.Zero,
	}
	v, ok := l.vaults[principal]
	if !ok || quote.Stale {
		return view
	}
	view.MaxBorrow = permille(v.Collateral.Mul(quote.Price), view.Lambda)
	if available := view.MaxBorrow.Sub(v.owed()); available.IsPositive() {
		view.Available = available
	}
	return view
}

// Instrument returns the collateral instrument symbol the ledger prices
// against.
func (l *Ledger) Instrument() string {
	return l.params.Instrument
}

// Snapshot and VaultSnapshot are the durable representations used for
// restart recovery. Decimals travel as strings to survive JSON round-trips
// exactly.
type Snapshot struct {
	Vaults        map[string]VaultSnapshot `json:"vaults"`
	TotalBorrowed string                   `json:"total_borrowed"`
	Reserve       string                   `json:"reserve"`
	UpdatedAtMS   int64                    `json:"updated_at_ms"`
}

type VaultSnapshot struct {
	Collateral      string `json:"collateral"`
	Debt            string `json:"debt"`
	AccruedInterest string `json:"accrued_interest"`
	LastLambda      int64  `json:"last_lambda"`
	LastUpdateMS    int64  `json:"last_update_ms"`
	Health          string `json:"health"`
}

func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap := Snapshot{
		Vaults:        make(map[string]VaultSnapshot, len(l.vaults)),
		TotalBorrowed: l.totalBorrowed.String(),
		Reserve:       l.reserve.String(),
		UpdatedAtMS:   l.now().UnixMilli(),
	}
	for principal, v := range l.vaults {
		snap.Vaults[principal.Hex()] = VaultSnapshot{
			Collateral:      v.Collateral.String(),
			Debt:            v.Debt.String(),
			AccruedInterest: v.AccruedInterest.String(),
			LastLambda:      v.LastLambda,
			LastUpdateMS:    v.LastUpdate.UnixMilli(),
			Health:          v.Health.String(),
		}
	}
	return snap
}

// Restore replaces ledger state from a snapshot. Only called at startup,
// before any operation is served.
func (l *Ledger) Restore(snap Snapshot) error {
	totalBorrowed, err := decimal.NewFromString(snap.TotalBorrowed)
	if err != nil {
		return fmt.Errorf("restore total borrowed: %w", err)
	}
	reserve, err := decimal.NewFromString(snap.Reserve)
	if err != nil {
		return fmt.Errorf("restore reserve: %w", err)
	}
	vaults := make(map[common.Address]*Vault, len(snap.Vaults))
	checksum := decimal.Zero
	for raw, vs := range snap.Vaults {
		if !common.IsHexAddress(raw) {
			return fmt.Errorf("restore: invalid principal %q", raw)
		}
		v := newVault()
		if v.Collateral, err = decimal.NewFromString(vs.Collateral); err != nil {
			return fmt.Errorf("restore collateral for %s: %w", raw, err)
		}
		if v.Debt, err = decimal.NewFromString(vs.Debt); err != nil {
			return fmt.Errorf("restore debt for %s: %w", raw, err)
		}
		if v.AccruedInterest, err = decimal.NewFromString(vs.AccruedInterest); err != nil {
			return fmt.Errorf("restore interest for %s: %w", raw, err)
		}
		v.LastLambda = vs.LastLambda
		v.LastUpdate = time.UnixMilli(vs.LastUpdateMS)
		switch vs.Health {
		case Healthy.String():
			v.Health = Healthy
		case Liquidatable.String():
			v.Health = Liquidatable
		case Closed.String():
			v.Health = Closed
		default:
			return fmt.Errorf("restore: unknown health %q for %s", vs.Health, raw)
		}
		checksum = checksum.Add(v.Debt)
		vaults[common.HexToAddress(raw)] = v
	}
	if !checksum.Equal(totalBorrowed) {
		return fmt.Errorf("restore: total borrowed %s does not match vault sum %s", totalBorrowed, checksum)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.vaults = vaults
	l.totalBorrowed = totalBorrowed
	l.reserve = reserve
	return nil
}

// Principals lists all known vault owners, for the automation sweep.
func (l *Ledger) Principals() []common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]common.Address, 0, len(l.vaults))
	for principal := range l.vaults {
		out = append(out, principal)
	}
	return out
}

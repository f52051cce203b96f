package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Health is the per-vault liquidation state machine:
// Healthy -> Liquidatable -> Closed, with repay/deleverage able to cure a
// Liquidatable vault and a fresh deposit reopening a Closed one.
type Health int

const (
	Healthy Health = iota
	Liquidatable
	Closed
)

func (h Health) String() string {
	switch h {
	case Healthy:
		return "healthy"
	case Liquidatable:
		return "liquidatable"
	case Closed:
		return "closed"
	}
	return "unknown"
}

type healthEvent int

const (
	eventBreach healthEvent = iota
	eventCured
	eventLiquidated
	eventReopened
)

func nextHealth(current Health, event healthEvent) Health {
	switch current {
	case Healthy:
		if event == eventBreach {
			return Liquidatable
		}
	case Liquidatable:
		switch event {
		case eventCured:
			return Healthy
		case eventLiquidated:
			return Closed
		}
	case Closed:
		if event == eventReopened {
			return Healthy
		}
	}
	return current
}

// Vault is the per-principal collateral/debt record. Debt tracks principal
// only; interest accrues separately so the global borrowed counter stays an
// exact sum of principal debt. A zero vault is indistinguishable from a
// never-used one.
type Vault struct {
	Collateral      decimal.Decimal
	Debt            decimal.Decimal
	AccruedInterest decimal.Decimal
	LastLambda      int64
	LastUpdate      time.Time
	Health          Health
}

func newVault() *Vault {
	return &Vault{
		Collateral:      decimal.Zero,
		Debt:            decimal.Zero,
		AccruedInterest: decimal.Zero,
	}
}

// owed is the total outstanding debt including accrued interest.
func (v *Vault) owed() decimal.Decimal {
	return v.Debt.Add(v.AccruedInterest)
}

func (v *Vault) apply(event healthEvent) {
	v.Health = nextHealth(v.Health, event)
}

package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// LiquidationResult reports how a forced close settled.
type LiquidationResult struct {
	SeizedCollateral decimal.Decimal
	SeizedValue      decimal.Decimal
	DebtRepaid       decimal.Decimal
	Bonus            decimal.Decimal
	SurplusToReserve decimal.Decimal
	ReserveCovered   decimal.Decimal
	BadDebt          decimal.Decimal
}

// Liquidate force-closes a vault past the liquidation threshold. Anyone may
// call it. The price is re-read and re-validated here, not taken from the
// snapshot that made the vault look liquidatable. The liquidator bonus is
// carved out of the seized collateral first so the incentive is always
// payable; a shortfall is covered from the reserve and whatever remains is
// kept on the vault as bad debt and surfaced as an event.
func (l *Ledger) Liquidate(ctx context.Context, liquidator, principal common.Address) (LiquidationResult, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.vaults[principal]
	if !ok {
		return LiquidationResult{}, fmt.Errorf("liquidate: %w", ErrVaultNotFound)
	}
	// Closed is terminal: residual bad debt stays on the vault until a fresh
	// deposit reopens it, it is never liquidated again.
	if v.Health == Closed {
		return LiquidationResult{}, fmt.Errorf("liquidate: %w", ErrVaultClosed)
	}
	quote, err := l.validatedQuote()
	if err != nil {
		return LiquidationResult{}, fmt.Errorf("liquidate: %w", err)
	}
	now := l.now()
	l.accrue(v, now)
	owed := v.owed()
	value := v.Collateral.Mul(quote.Price)
	if !owed.IsPositive() || !owed.GreaterThan(bps(value, l.params.LiquidationThresholdBps)) {
		return LiquidationResult{}, fmt.Errorf("liquidate: %w: owed %s, threshold %s",
			ErrVaultHealthy, owed, bps(value, l.params.LiquidationThresholdBps))
	}
	if v.Health == Healthy {
		v.apply(eventBreach)
	}

	result := LiquidationResult{
		SeizedCollateral: v.Collateral,
		SeizedValue:      value,
		Bonus:            bps(value, l.params.LiquidatorBonusBps),
	}
	repayable := value.Sub(result.Bonus)
	if repayable.IsNegative() {
		repayable = decimal.Zero
	}
	result.DebtRepaid = decimal.Min(owed, repayable)
	result.SurplusToReserve = repayable.Sub(result.DebtRepaid)

	interestPaid := decimal.Min(v.AccruedInterest, result.DebtRepaid)
	principalPaid := result.DebtRepaid.Sub(interestPaid)
	v.AccruedInterest = v.AccruedInterest.Sub(interestPaid)
	v.Debt = v.Debt.Sub(principalPaid)
	l.totalBorrowed = l.totalBorrowed.Sub(principalPaid)
	l.reserve = l.reserve.Add(result.SurplusToReserve)

	// Reserve absorbs what the collateral could not.
	if shortfall := v.owed(); shortfall.IsPositive() {
		result.ReserveCovered = decimal.Min(l.reserve, shortfall)
		l.reserve = l.reserve.Sub(result.ReserveCovered)
		coveredInterest := decimal.Min(v.AccruedInterest, result.ReserveCovered)
		coveredPrincipal := result.ReserveCovered.Sub(coveredInterest)
		v.AccruedInterest = v.AccruedInterest.Sub(coveredInterest)
		v.Debt = v.Debt.Sub(coveredPrincipal)
		l.totalBorrowed = l.totalBorrowed.Sub(coveredPrincipal)
		principalPaid = principalPaid.Add(coveredPrincipal)
		interestPaid = interestPaid.Add(coveredInterest)
	}
	result.BadDebt = v.owed()

	v.Collateral = decimal.Zero
	v.apply(eventLiquidated)
	l.record(Event{
		Type:          EventLiquidation,
		Principal:     principal,
		Caller:        liquidator,
		Instrument:    l.params.Instrument,
		Amount:        result.DebtRepaid,
		InterestPaid:  interestPaid,
		PrincipalPaid: principalPaid,
		Lambda:        v.LastLambda,
		BadDebt:       result.BadDebt,
		Time:          now,
	})
	if result.BadDebt.IsPositive() {
		l.record(Event{
			Type:       EventBadDebt,
			Principal:  principal,
			Caller:     liquidator,
			Instrument: l.params.Instrument,
			Amount:     result.BadDebt,
			BadDebt:    result.BadDebt,
			Time:       now,
		})
	}
	return result, nil
}

// Liquidatable reports whether a vault is currently past the threshold under
// the live quote, without mutating anything.
func (l *Ledger) Liquidatable(principal common.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.vaults[principal]
	if !ok || v.Health == Closed {
		return false
	}
	quote := l.feeds.Read(l.params.Instrument)
	if quote.Stale {
		return false
	}
	owed := v.owed()
	return owed.IsPositive() && owed.GreaterThan(bps(v.Collateral.Mul(quote.Price), l.params.LiquidationThresholdBps))
}

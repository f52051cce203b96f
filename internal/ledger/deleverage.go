package ledger

import (
	"context"
	"fmt"

	"riskvault/internal/risk"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// AutoDeleverage is the preventive rebalancing step: when a freshly derived
// lambda no longer covers a vault's debt, it sells exactly the excess worth
// of collateral 1:1 in USD terms, with no penalty. Restricted to the
// automation allow-list. A vault already past the liquidation threshold is
// refused here and left to the liquidation engine.
func (l *Ledger) AutoDeleverage(ctx context.Context, caller, principal common.Address) error {
	_ = ctx
	if !l.isAutomation(caller) {
		return fmt.Errorf("deleverage: %w: %s", ErrUnauthorizedAutomation, caller.Hex())
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.vaults[principal]
	if !ok {
		return fmt.Errorf("deleverage: %w", ErrVaultNotFound)
	}
	if v.Health == Closed {
		return fmt.Errorf("deleverage: %w", ErrVaultClosed)
	}
	quote, err := l.validatedQuote()
	if err != nil {
		return fmt.Errorf("deleverage: %w", err)
	}
	now := l.now()
	l.accrue(v, now)
	if !v.owed().IsPositive() {
		return nil
	}
	value := v.Collateral.Mul(quote.Price)
	if v.owed().GreaterThan(bps(value, l.params.LiquidationThresholdBps)) {
		return fmt.Errorf("deleverage: %w", ErrVaultLiquidatable)
	}
	fresh := risk.Lambda(l.feeds.Volatility(l.params.Instrument).Bps, l.params.Risk)
	maxAllowed := permille(value, fresh)
	excess := v.owed().Sub(maxAllowed)
	v.LastLambda = fresh
	if !excess.IsPositive() {
		return nil
	}
	// Sell collateral worth exactly the excess, 1:1 in USD terms. Debt lands
	// at the ceiling computed from the pre-sale collateral value.
	v.Collateral = v.Collateral.Sub(excess.Div(quote.Price))
	interestPaid := decimal.Min(v.AccruedInterest, excess)
	principalPaid := excess.Sub(interestPaid)
	v.AccruedInterest = v.AccruedInterest.Sub(interestPaid)
	v.Debt = v.Debt.Sub(principalPaid)
	l.totalBorrowed = l.totalBorrowed.Sub(principalPaid)
	l.refreshHealth(v)
	l.record(Event{
		Type:          EventDeleverage,
		Principal:     principal,
		Caller:        caller,
		Instrument:    l.params.Instrument,
		Amount:        excess,
		InterestPaid:  interestPaid,
		PrincipalPaid: principalPaid,
		Lambda:        fresh,
		Time:          now,
	})
	return nil
}

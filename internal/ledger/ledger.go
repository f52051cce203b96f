package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"riskvault/internal/config"
	"riskvault/internal/feed"
	"riskvault/internal/risk"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const secondsPerYear = 365 * 24 * 3600

// Eligibility is the external oracle boundary. The ledger consumes only the
// boolean; proof contents are opaque to it.
type Eligibility interface {
	IsEligible(ctx context.Context, principal common.Address, proof []byte) (bool, error)
}

// ReceiptValidator checks that a pay-per-call receipt is well formed. It
// never verifies settlement.
type ReceiptValidator interface {
	Validate(receipt []byte) error
}

type Params struct {
	Instrument              string
	Risk                    risk.Params
	MinConfidence           decimal.Decimal
	InterestRateBps         int64
	MaxSlippageBps          int64
	LiquidationThresholdBps int64
	LiquidatorBonusBps      int64
	PerPrincipalCap         decimal.Decimal
	GlobalCap               decimal.Decimal
	Automation              []common.Address
}

func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		Instrument:              cfg.Ledger.Instrument,
		Risk:                    risk.ParamsFromConfig(cfg.Risk),
		MinConfidence:           decimal.NewFromFloat(cfg.Feed.MinConfidence),
		InterestRateBps:         cfg.Ledger.InterestRateBps,
		MaxSlippageBps:          cfg.Ledger.MaxSlippageBps,
		LiquidationThresholdBps: cfg.Ledger.LiquidationThresholdBps,
		LiquidatorBonusBps:      cfg.Ledger.LiquidatorBonusBps,
		PerPrincipalCap:         decimal.NewFromFloat(cfg.Ledger.PerPrincipalCapUSD),
		GlobalCap:               decimal.NewFromFloat(cfg.Ledger.GlobalCapUSD),
		Automation:              config.Addresses(cfg.Ledger.Automation),
	}
}

// Ledger owns all vaults behind a single-writer mutex: every state-changing
// operation is serialized and either commits in full or leaves no trace.
// Price updates race freely; operations re-read the current quote and lambda
// instead of caching them.
type Ledger struct {
	params Params
	feeds  *feed.Store
	oracle Eligibility
	meter  ReceiptValidator
	sink   EventSink
	log    *zap.Logger
	now    func() time.Time

	mu            sync.Mutex
	vaults        map[common.Address]*Vault
	totalBorrowed decimal.Decimal
	reserve       decimal.Decimal
}

func New(params Params, feeds *feed.Store, oracle Eligibility, log *zap.Logger) *Ledger {
	return &Ledger{
		params:        params,
		feeds:         feeds,
		oracle:        oracle,
		sink:          noopSink{},
		log:           log,
		now:           time.Now,
		vaults:        make(map[common.Address]*Vault),
		totalBorrowed: decimal.Zero,
		reserve:       decimal.Zero,
	}
}

// SetSink installs the audit event sink. Must be called before serving.
func (l *Ledger) SetSink(sink EventSink) {
	if sink != nil {
		l.sink = sink
	}
}

// SetMeter enables pay-per-call receipt validation on borrows.
func (l *Ledger) SetMeter(meter ReceiptValidator) {
	l.meter = meter
}

// SetClock overrides the ledger clock, for tests.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// Deposit credits collateral for an eligible principal. The vault is created
// implicitly on first use.
func (l *Ledger) Deposit(ctx context.Context, principal common.Address, amount decimal.Decimal, proof []byte) error {
	if !amount.IsPositive() {
		return fmt.Errorf("deposit: %w", ErrInvalidAmount)
	}
	ok, err := l.oracle.IsEligible(ctx, principal, proof)
	if err != nil {
		return fmt.Errorf("deposit eligibility: %w", err)
	}
	if !ok {
		return fmt.Errorf("deposit: %w", ErrNotEligible)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	v := l.vault(principal)
	l.accrue(v, now)
	v.Collateral = v.Collateral.Add(amount)
	if v.Health == Closed {
		v.apply(eventReopened)
	}
	l.refreshHealth(v)
	l.record(Event{
		Type:       EventDeposit,
		Principal:  principal,
		Caller:     principal,
		Instrument: l.params.Instrument,
		Amount:     amount,
		Lambda:     v.LastLambda,
		Time:       now,
	})
	return nil
}

// BorrowRequest carries the caller-supplied lambda pair: Lambda is what the
// caller observed, LambdaMin the worst multiplier it will accept if a
// volatility update lands between observation and execution.
type BorrowRequest struct {
	Principal        common.Address
	Amount           decimal.Decimal
	Lambda           int64
	LambdaMin        int64
	EligibilityProof []byte
	PaymentReceipt   []byte
}

func (l *Ledger) Borrow(ctx context.Context, req BorrowRequest) error {
	if !req.Amount.IsPositive() {
		return fmt.Errorf("borrow: %w", ErrInvalidAmount)
	}
	ok, err := l.oracle.IsEligible(ctx, req.Principal, req.EligibilityProof)
	if err != nil {
		return fmt.Errorf("borrow eligibility: %w", err)
	}
	if !ok {
		return fmt.Errorf("borrow: %w", ErrNotEligible)
	}
	if l.meter != nil {
		if err := l.meter.Validate(req.PaymentReceipt); err != nil {
			return fmt.Errorf("borrow: %w: %w", ErrPaymentRequired, err)
		}
	}
	if !l.params.Risk.InBounds(req.Lambda) {
		return fmt.Errorf("borrow: %w: %d", ErrLambdaOutOfRange, req.Lambda)
	}
	if req.LambdaMin > req.Lambda || req.LambdaMin < 0 {
		return fmt.Errorf("borrow: %w: min %d vs requested %d", ErrLambdaOutOfRange, req.LambdaMin, req.Lambda)
	}
	// The tolerated gap bounds how stale the caller's lambda may be relative
	// to a freshly recomputed one.
	if (req.Lambda-req.LambdaMin)*10000 > req.Lambda*l.params.MaxSlippageBps {
		return fmt.Errorf("borrow: %w: gap %d exceeds %dbps of %d",
			ErrSlippageExceeded, req.Lambda-req.LambdaMin, l.params.MaxSlippageBps, req.Lambda)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	quote, err := l.validatedQuote()
	if err != nil {
		return fmt.Errorf("borrow: %w", err)
	}
	fresh := risk.Lambda(l.feeds.Volatility(l.params.Instrument).Bps, l.params.Risk)
	if fresh < req.LambdaMin {
		return fmt.Errorf("borrow: %w: current lambda %d below acceptable %d",
			ErrSlippageExceeded, fresh, req.LambdaMin)
	}
	v, ok := l.vaults[req.Principal]
	if !ok {
		return fmt.Errorf("borrow: %w", ErrVaultNotFound)
	}
	now := l.now()
	l.accrue(v, now)
	maxBorrow := permille(v.Collateral.Mul(quote.Price), req.Lambda)
	if v.owed().Add(req.Amount).GreaterThan(maxBorrow) {
		return fmt.Errorf("borrow: %w: owed %s + %s > capacity %s",
			ErrInsufficientCollateral, v.owed(), req.Amount, maxBorrow)
	}
	if l.params.PerPrincipalCap.IsPositive() && v.Debt.Add(req.Amount).GreaterThan(l.params.PerPrincipalCap) {
		return fmt.Errorf("borrow: %w", ErrPrincipalCap)
	}
	if l.params.GlobalCap.IsPositive() && l.totalBorrowed.Add(req.Amount).GreaterThan(l.params.GlobalCap) {
		return fmt.Errorf("borrow: %w", ErrGlobalCap)
	}
	v.Debt = v.Debt.Add(req.Amount)
	v.LastLambda = req.Lambda
	l.totalBorrowed = l.totalBorrowed.Add(req.Amount)
	l.refreshHealth(v)
	l.record(Event{
		Type:       EventBorrow,
		Principal:  req.Principal,
		Caller:     req.Principal,
		Instrument: l.params.Instrument,
		Amount:     req.Amount,
		Lambda:     req.Lambda,
		Time:       now,
	})
	return nil
}

// Repay accrues interest, then applies the payment to interest before
// principal. Over-payment is clamped to the total owed, never rejected.
// Returns the amount actually charged.
func (l *Ledger) Repay(ctx context.Context, principal common.Address, amount decimal.Decimal) (decimal.Decimal, error) {
	_ = ctx
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("repay: %w", ErrInvalidAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.vaults[principal]
	if !ok {
		return decimal.Zero, fmt.Errorf("repay: %w", ErrVaultNotFound)
	}
	now := l.now()
	l.accrue(v, now)
	owed := v.owed()
	if owed.IsZero() {
		return decimal.Zero, nil
	}
	paid := decimal.Min(amount, owed)
	interestPaid := decimal.Min(v.AccruedInterest, paid)
	principalPaid := paid.Sub(interestPaid)
	v.AccruedInterest = v.AccruedInterest.Sub(interestPaid)
	v.Debt = v.Debt.Sub(principalPaid)
	l.totalBorrowed = l.totalBorrowed.Sub(principalPaid)
	l.refreshHealth(v)
	l.record(Event{
		Type:          EventRepay,
		Principal:     principal,
		Caller:        principal,
		Instrument:    l.params.Instrument,
		Amount:        paid,
		InterestPaid:  interestPaid,
		PrincipalPaid: principalPaid,
		Lambda:        v.LastLambda,
		Time:          now,
	})
	return paid, nil
}

// Withdraw releases collateral. Partial withdrawal while any debt is
// outstanding is refused outright.
func (l *Ledger) Withdraw(ctx context.Context, principal common.Address, amount decimal.Decimal) error {
	_ = ctx
	if !amount.IsPositive() {
		return fmt.Errorf("withdraw: %w", ErrInvalidAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.vaults[principal]
	if !ok {
		return fmt.Errorf("withdraw: %w", ErrVaultNotFound)
	}
	now := l.now()
	l.accrue(v, now)
	if !v.owed().IsZero() {
		return fmt.Errorf("withdraw: %w: owed %s", ErrDebtOutstanding, v.owed())
	}
	if amount.GreaterThan(v.Collateral) {
		return fmt.Errorf("withdraw: %w: %s > %s", ErrInsufficientCollateral, amount, v.Collateral)
	}
	v.Collateral = v.Collateral.Sub(amount)
	l.record(Event{
		Type:       EventWithdraw,
		Principal:  principal,
		Caller:     principal,
		Instrument: l.params.Instrument,
		Amount:     amount,
		Lambda:     v.LastLambda,
		Time:       now,
	})
	return nil
}

// vault returns the principal's vault, creating the zero vault on first use.
func (l *Ledger) vault(principal common.Address) *Vault {
	v, ok := l.vaults[principal]
	if !ok {
		v = newVault()
		l.vaults[principal] = v
	}
	return v
}

// accrue adds simple interest since the last touch and stamps the vault.
func (l *Ledger) accrue(v *Vault, now time.Time) {
	if v.Debt.IsPositive() && !v.LastUpdate.IsZero() && now.After(v.LastUpdate) && l.params.InterestRateBps > 0 {
		elapsed := int64(now.Sub(v.LastUpdate).Seconds())
		interest := v.Debt.
			Mul(decimal.NewFromInt(l.params.InterestRateBps)).
			Mul(decimal.NewFromInt(elapsed)).
			Div(decimal.NewFromInt(10000 * secondsPerYear))
		v.AccruedInterest = v.AccruedInterest.Add(interest)
	}
	v.LastUpdate = now
}

// validatedQuote re-reads the current price and enforces data quality. Called
// under the ledger mutex so the quote and the mutation commit together.
func (l *Ledger) validatedQuote() (feed.Quote, error) {
	quote := l.feeds.Read(l.params.Instrument)
	if quote.Stale {
		return feed.Quote{}, ErrPriceStale
	}
	if quote.Confidence.LessThan(l.params.MinConfidence) {
		return feed.Quote{}, fmt.Errorf("%w: %s", ErrPriceConfidence, quote.Confidence)
	}
	return quote, nil
}

// refreshHealth moves the state machine according to the current quote. A
// stale quote leaves the health untouched; liquidation re-validates on its
// own.
func (l *Ledger) refreshHealth(v *Vault) {
	quote := l.feeds.Read(l.params.Instrument)
	if quote.Stale {
		return
	}
	value := v.Collateral.Mul(quote.Price)
	breached := v.owed().IsPositive() && v.owed().GreaterThan(bps(value, l.params.LiquidationThresholdBps))
	switch {
	case breached && v.Health == Healthy:
		v.apply(eventBreach)
	case !breached && v.Health == Liquidatable:
		v.apply(eventCured)
	}
}

func (l *Ledger) isAutomation(caller common.Address) bool {
	for _, addr := range l.params.Automation {
		if addr == caller {
			return true
		}
	}
	return false
}

func (l *Ledger) record(event Event) {
	l.sink.Record(event)
	if l.log != nil {
		l.log.Info("ledger event",
			zap.String("type", string(event.Type)),
			zap.String("principal", event.Principal.Hex()),
			zap.String("amount", event.Amount.String()),
			zap.Int64("lambda", event.Lambda),
		)
	}
}

func permille(value decimal.Decimal, lambda int64) decimal.Decimal {
	return value.Mul(decimal.NewFromInt(lambda)).Div(decimal.NewFromInt(1000))
}

func bps(value decimal.Decimal, basisPoints int64) decimal.Decimal {
	return value.Mul(decimal.NewFromInt(basisPoints)).Div(decimal.NewFromInt(10000))
}

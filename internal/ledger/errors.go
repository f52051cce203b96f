package ledger

import "errors"

// Every operation rejects at its own boundary with a named condition; nothing
// is retried internally.
var (
	// Data quality.
	ErrPriceStale      = errors.New("price is stale")
	ErrPriceConfidence = errors.New("price confidence below threshold")

	// Policy violations.
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrLambdaOutOfRange       = errors.New("requested lambda outside configured bounds")
	ErrSlippageExceeded       = errors.New("lambda slippage tolerance exceeded")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrPrincipalCap           = errors.New("per-principal borrow cap exceeded")
	ErrGlobalCap              = errors.New("global borrow cap exceeded")

	// Authorization failures.
	ErrNotEligible            = errors.New("principal is not eligible")
	ErrUnauthorizedAutomation = errors.New("caller is not an authorized automation role")
	ErrPaymentRequired        = errors.New("valid payment receipt required")

	// State invariant violations.
	ErrVaultNotFound     = errors.New("vault not found")
	ErrDebtOutstanding   = errors.New("withdrawal blocked by outstanding debt")
	ErrVaultHealthy      = errors.New("vault is not liquidatable")
	ErrVaultLiquidatable = errors.New("vault is past the liquidation threshold")
	ErrVaultClosed       = errors.New("vault is closed")
)

// Package metering validates pay-per-call payment receipts attached to borrow
// requests. Validation is structural: the receipt must be well formed and
// addressed to this service. Settlement happens out of band and is never
// checked here.
package metering

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vmihailenco/msgpack/v5"
)

// ServiceID names the metered operation receipts must reference.
const ServiceID = "AI_VOLATILITY_INFERENCE"

var (
	ErrNoReceipt    = errors.New("metering: receipt required")
	ErrBadReceipt   = errors.New("metering: malformed receipt")
	ErrWrongService = errors.New("metering: receipt for different service")
	ErrNoPayer      = errors.New("metering: receipt has no payer")
	ErrZeroAmount   = errors.New("metering: receipt amount must be positive")
	ErrBadSignature = errors.New("metering: receipt signature malformed")
)

// Receipt is the wire form of an x402-style payment proof.
type Receipt struct {
	Service      string         `msgpack:"service"`
	Payer        common.Address `msgpack:"payer"`
	AmountMicros int64          `msgpack:"amount_micros"`
	Nonce        uint64         `msgpack:"nonce"`
	Signature    []byte         `msgpack:"signature"`
}

// Validator implements the ledger's receipt check.
type Validator struct {
	service string
}

func NewValidator(service string) *Validator {
	if service == "" {
		service = ServiceID
	}
	return &Validator{service: service}
}

// Validate decodes the receipt and checks its shape. It does not verify that
// the payment settled; a receipt that later bounces is a billing dispute, not
// a ledger concern.
func (v *Validator) Validate(raw []byte) error {
	if len(raw) == 0 {
		return ErrNoReceipt
	}
	var r Receipt
	if err := msgpack.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("%w: %w", ErrBadReceipt, err)
	}
	if r.Service != v.service {
		return fmt.Errorf("%w: %q", ErrWrongService, r.Service)
	}
	if r.Payer == (common.Address{}) {
		return ErrNoPayer
	}
	if r.AmountMicros <= 0 {
		return ErrZeroAmount
	}
	if len(r.Signature) != crypto.SignatureLength {
		return fmt.Errorf("%w: length %d", ErrBadSignature, len(r.Signature))
	}
	return nil
}

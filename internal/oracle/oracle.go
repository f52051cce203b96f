// Package oracle decides whether a principal may touch the ledger. Two modes
// exist: a static allow-list for closed deployments, and recoverable signed
// attestations issued off-ledger by a trusted signer.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"riskvault/internal/config"
	"riskvault/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrNoProof        = errors.New("oracle: attestation proof required")
	ErrBadAttestation = errors.New("oracle: malformed attestation")
	ErrExpired        = errors.New("oracle: attestation expired")
	ErrWrongPrincipal = errors.New("oracle: attestation bound to different principal")
	ErrWrongSigner    = errors.New("oracle: attestation not signed by trusted signer")
)

// Allowlist grants eligibility to a fixed set of principals and ignores the
// proof entirely.
type Allowlist struct {
	members map[common.Address]struct{}
}

func NewAllowlist(members []common.Address) *Allowlist {
	set := make(map[common.Address]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	return &Allowlist{members: set}
}

func (a *Allowlist) IsEligible(_ context.Context, principal common.Address, _ []byte) (bool, error) {
	_, ok := a.members[principal]
	return ok, nil
}

// Attestation is the proof envelope for signed eligibility. The signature
// covers the keccak digest of the msgpack-encoded payload.
type Attestation struct {
	Principal   common.Address `msgpack:"principal"`
	ExpiresAtMS int64          `msgpack:"expires_at_ms"`
	Signature   []byte         `msgpack:"signature"`
}

type attestationPayload struct {
	Principal   common.Address `msgpack:"principal"`
	ExpiresAtMS int64          `msgpack:"expires_at_ms"`
}

// Digest returns the hash the issuer signs.
func (a Attestation) Digest() ([]byte, error) {
	raw, err := msgpack.Marshal(attestationPayload{
		Principal:   a.Principal,
		ExpiresAtMS: a.ExpiresAtMS,
	})
	if err != nil {
		return nil, fmt.Errorf("encode attestation payload: %w", err)
	}
	return crypto.Keccak256(raw), nil
}

// AttestationVerifier accepts proofs signed by a single trusted address.
type AttestationVerifier struct {
	signer common.Address
	now    func() time.Time
}

func NewAttestationVerifier(signer common.Address) *AttestationVerifier {
	return &AttestationVerifier{signer: signer, now: time.Now}
}

// SetClock overrides the verifier clock, for tests.
func (v *AttestationVerifier) SetClock(now func() time.Time) {
	v.now = now
}

func (v *AttestationVerifier) IsEligible(_ context.Context, principal common.Address, proof []byte) (bool, error) {
	if len(proof) == 0 {
		return false, ErrNoProof
	}
	var att Attestation
	if err := msgpack.Unmarshal(proof, &att); err != nil {
		return false, fmt.Errorf("%w: %w", ErrBadAttestation, err)
	}
	if att.Principal != principal {
		return false, ErrWrongPrincipal
	}
	if v.now().UnixMilli() > att.ExpiresAtMS {
		return false, ErrExpired
	}
	if len(att.Signature) != crypto.SignatureLength {
		return false, fmt.Errorf("%w: signature length %d", ErrBadAttestation, len(att.Signature))
	}
	digest, err := att.Digest()
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrBadAttestation, err)
	}
	pub, err := crypto.SigToPub(digest, att.Signature)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrBadAttestation, err)
	}
	if crypto.PubkeyToAddress(*pub) != v.signer {
		return false, ErrWrongSigner
	}
	return true, nil
}

// FromConfig builds the eligibility provider the config selects.
func FromConfig(cfg config.OracleConfig) (ledger.Eligibility, error) {
	switch cfg.Mode {
	case "allowlist":
		return NewAllowlist(config.Addresses(cfg.Allowlist)), nil
	case "attestation":
		return NewAttestationVerifier(common.HexToAddress(cfg.Signer)), nil
	default:
		return nil, fmt.Errorf("oracle: unknown mode %q", cfg.Mode)
	}
}

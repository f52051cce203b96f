package publisher

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// Signer produces signed price envelopes. Used by the publisher-side tooling
// and by tests; the daemon itself only verifies.
type Signer struct {
	key *ecdsa.PrivateKey
}

func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key}
}

func NewSignerFromHex(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("publisher: parse signing key: %w", err)
	}
	return &Signer{key: key}, nil
}

// Sign builds and signs a complete envelope.
func (s *Signer) Sign(instrument string, price, confidence decimal.Decimal, ts time.Time) ([]byte, error) {
	u := PriceUpdate{
		Instrument:  instrument,
		Price:       price.String(),
		Confidence:  confidence.String(),
		TimestampMS: ts.UnixMilli(),
	}
	digest, err := u.Digest()
	if err != nil {
		return nil, err
	}
	u.Signature, err = crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("publisher: sign update: %w", err)
	}
	raw, err := msgpack.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("publisher: encode envelope: %w", err)
	}
	return raw, nil
}

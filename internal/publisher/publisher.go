// Package publisher authenticates price submissions. Updates arrive as
// msgpack envelopes signed over a keccak digest; the registry recovers the
// signer and only admits addresses on the publisher allow-list.
package publisher

import (
	"errors"
	"fmt"
	"time"

	"riskvault/internal/feed"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrBadEnvelope   = errors.New("publisher: malformed envelope")
	ErrUnknownSigner = errors.New("publisher: signer not registered")
	ErrBadPrice      = errors.New("publisher: unparseable price")
)

// PriceUpdate is the signed wire form of one sample.
type PriceUpdate struct {
	Instrument  string `msgpack:"instrument"`
	Price       string `msgpack:"price"`
	Confidence  string `msgpack:"confidence"`
	TimestampMS int64  `msgpack:"timestamp_ms"`
	Signature   []byte `msgpack:"signature"`
}

type updatePayload struct {
	Instrument  string `msgpack:"instrument"`
	Price       string `msgpack:"price"`
	Confidence  string `msgpack:"confidence"`
	TimestampMS int64  `msgpack:"timestamp_ms"`
}

// Digest returns the hash a publisher signs.
func (u PriceUpdate) Digest() ([]byte, error) {
	raw, err := msgpack.Marshal(updatePayload{
		Instrument:  u.Instrument,
		Price:       u.Price,
		Confidence:  u.Confidence,
		TimestampMS: u.TimestampMS,
	})
	if err != nil {
		return nil, fmt.Errorf("encode update payload: %w", err)
	}
	return crypto.Keccak256(raw), nil
}

// Registry verifies envelopes against the allowed publisher set.
type Registry struct {
	allowed map[common.Address]struct{}
}

func NewRegistry(publishers []common.Address) *Registry {
	set := make(map[common.Address]struct{}, len(publishers))
	for _, p := range publishers {
		set[p] = struct{}{}
	}
	return &Registry{allowed: set}
}

// Verify decodes and authenticates a raw envelope, returning the instrument
// and the sample ready for the feed store.
func (r *Registry) Verify(raw []byte) (string, feed.PriceSample, error) {
	var u PriceUpdate
	if err := msgpack.Unmarshal(raw, &u); err != nil {
		return "", feed.PriceSample{}, fmt.Errorf("%w: %w", ErrBadEnvelope, err)
	}
	if u.Instrument == "" {
		return "", feed.PriceSample{}, fmt.Errorf("%w: empty instrument", ErrBadEnvelope)
	}
	if len(u.Signature) != crypto.SignatureLength {
		return "", feed.PriceSample{}, fmt.Errorf("%w: signature length %d", ErrBadEnvelope, len(u.Signature))
	}
	digest, err := u.Digest()
	if err != nil {
		return "", feed.PriceSample{}, fmt.Errorf("%w: %w", ErrBadEnvelope, err)
	}
	pub, err := crypto.SigToPub(digest, u.Signature)
	if err != nil {
		return "", feed.PriceSample{}, fmt.Errorf("%w: %w", ErrBadEnvelope, err)
	}
	signer := crypto.PubkeyToAddress(*pub)
	if _, ok := r.allowed[signer]; !ok {
		return "", feed.PriceSample{}, fmt.Errorf("%w: %s", ErrUnknownSigner, signer.Hex())
	}
	price, err := decimal.NewFromString(u.Price)
	if err != nil {
		return "", feed.PriceSample{}, fmt.Errorf("%w: %w", ErrBadPrice, err)
	}
	confidence, err := decimal.NewFromString(u.Confidence)
	if err != nil {
		return "", feed.PriceSample{}, fmt.Errorf("%w: confidence: %w", ErrBadPrice, err)
	}
	return u.Instrument, feed.PriceSample{
		Price:      price,
		Confidence: confidence,
		Timestamp:  time.UnixMilli(u.TimestampMS),
	}, nil
}

package publisher

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

func TestVerifySignedUpdate(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	reg := NewRegistry([]common.Address{crypto.PubkeyToAddress(key.PublicKey)})
	signer := NewSigner(key)

	ts := time.UnixMilli(1_700_000_000_000)
	raw, err := signer.Sign("ETH/USD", decimal.NewFromFloat(3150.25), decimal.NewFromFloat(0.99), ts)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	instrument, sample, err := reg.Verify(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if instrument != "ETH/USD" {
		t.Fatalf("instrument = %q", instrument)
	}
	if !sample.Price.Equal(decimal.NewFromFloat(3150.25)) {
		t.Fatalf("price = %s", sample.Price)
	}
	if !sample.Timestamp.Equal(ts) {
		t.Fatalf("timestamp = %s", sample.Timestamp)
	}
}

func TestVerifyRejectsUnknownSigner(t *testing.T) {
	trusted, _ := crypto.GenerateKey()
	rogue, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	reg := NewRegistry([]common.Address{crypto.PubkeyToAddress(trusted.PublicKey)})

	raw, err := NewSigner(rogue).Sign("ETH/USD", decimal.NewFromInt(3000), decimal.NewFromFloat(0.99), time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, _, err := reg.Verify(raw); !errors.Is(err, ErrUnknownSigner) {
		t.Fatalf("expected ErrUnknownSigner, got %v", err)
	}
}

func TestVerifyRejectsTamperedPrice(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	reg := NewRegistry([]common.Address{crypto.PubkeyToAddress(key.PublicKey)})

	raw, err := NewSigner(key).Sign("ETH/USD", decimal.NewFromInt(3000), decimal.NewFromFloat(0.99), time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	var u PriceUpdate
	if err := msgpack.Unmarshal(raw, &u); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	u.Price = "9000"
	tampered, err := msgpack.Marshal(u)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, _, err := reg.Verify(tampered); err == nil {
		t.Fatalf("tampered envelope accepted")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	reg := NewRegistry(nil)
	if _, _, err := reg.Verify([]byte("junk")); !errors.Is(err, ErrBadEnvelope) {
		t.Fatalf("expected ErrBadEnvelope, got %v", err)
	}
	if _, _, err := reg.Verify(nil); !errors.Is(err, ErrBadEnvelope) {
		t.Fatalf("expected ErrBadEnvelope, got %v", err)
	}
}

package metering

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vmihailenco/msgpack/v5"
)

func encode(t *testing.T, r Receipt) []byte {
	t.Helper()
	raw, err := msgpack.Marshal(r)
	if err != nil {
		t.Fatalf("marshal receipt: %v", err)
	}
	return raw
}

func TestValidateReceipt(t *testing.T) {
	v := NewValidator("")
	payer := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	good := Receipt{
		Service:      ServiceID,
		Payer:        payer,
		AmountMicros: 1500,
		Nonce:        7,
		Signature:    make([]byte, 65),
	}

	if err := v.Validate(encode(t, good)); err != nil {
		t.Fatalf("valid receipt rejected: %v", err)
	}

	cases := []struct {
		name    string
		mutate  func(*Receipt)
		wantErr error
	}{
		{"wrong service", func(r *Receipt) { r.Service = "SOMETHING_ELSE" }, ErrWrongService},
		{"no payer", func(r *Receipt) { r.Payer = common.Address{} }, ErrNoPayer},
		{"zero amount", func(r *Receipt) { r.AmountMicros = 0 }, ErrZeroAmount},
		{"negative amount", func(r *Receipt) { r.AmountMicros = -1 }, ErrZeroAmount},
		{"short signature", func(r *Receipt) { r.Signature = make([]byte, 64) }, ErrBadSignature},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := good
			tc.mutate(&r)
			if err := v.Validate(encode(t, r)); !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidateMissingOrGarbage(t *testing.T) {
	v := NewValidator(ServiceID)
	if err := v.Validate(nil); !errors.Is(err, ErrNoReceipt) {
		t.Fatalf("expected ErrNoReceipt, got %v", err)
	}
	if err := v.Validate([]byte{0xc1}); !errors.Is(err, ErrBadReceipt) {
		t.Fatalf("expected ErrBadReceipt, got %v", err)
	}
}

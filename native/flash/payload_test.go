package flash

import (
	"errors"
	"math/big"
	"testing"
)

func TestLoanPayloadRoundTrip(t *testing.T) {
	debtToken := addr(0x22)
	borrower := addr(0x30)
	minProfit := big.NewInt(123_456)

	data, err := EncodeLoanPayload(debtToken, borrower, minProfit)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	gotToken, gotBorrower, gotProfit, err := decodeLoanPayload(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if gotToken != debtToken {
		t.Fatalf("debt token = %s, want %s", gotToken.Hex(), debtToken.Hex())
	}
	if gotBorrower != borrower {
		t.Fatalf("borrower = %s, want %s", gotBorrower.Hex(), borrower.Hex())
	}
	if gotProfit.Cmp(minProfit) != 0 {
		t.Fatalf("min profit = %s, want %s", gotProfit, minProfit)
	}
}

func TestLoanPayloadZeroMinProfit(t *testing.T) {
	data, err := EncodeLoanPayload(addr(0x22), addr(0x30), nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, _, gotProfit, err := decodeLoanPayload(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if gotProfit.Sign() != 0 {
		t.Fatalf("min profit = %s, want 0", gotProfit)
	}
}

func TestDecodeLoanPayloadRejectsGarbage(t *testing.T) {
	cases := map[string][]byte{
		"empty":     nil,
		"short":     {0x01, 0x02, 0x03},
		"truncated": make([]byte, 64),
	}
	for name, data := range cases {
		if _, _, _, err := decodeLoanPayload(data); !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("%s: expected ErrMalformedPayload, got %v", name, err)
		}
	}
}

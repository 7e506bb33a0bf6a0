package amm

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestPairReservesLifecycle(t *testing.T) {
	pair := NewPair(common.HexToAddress("0x01"), common.HexToAddress("0x02"), common.HexToAddress("0x03"))

	if _, _, err := pair.Reserves(); err != ErrReservesUnavailable {
		t.Fatalf("expected unavailable reserves, got %v", err)
	}
	if _, err := pair.FlashRepayAmount(big.NewInt(10)); err != ErrReservesUnavailable {
		t.Fatalf("expected unavailable reserves from pricing, got %v", err)
	}

	if err := pair.SetReserves(big.NewInt(50), big.NewInt(1_000_000)); err != nil {
		t.Fatalf("set reserves: %v", err)
	}
	base, quote, err := pair.Reserves()
	if err != nil {
		t.Fatalf("reserves: %v", err)
	}
	if base.Cmp(big.NewInt(50)) != 0 || quote.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("unexpected reserves: base=%s quote=%s", base, quote)
	}

	// Returned values are copies; mutating them must not leak back.
	base.SetInt64(1)
	again, _, err := pair.Reserves()
	if err != nil {
		t.Fatalf("reserves: %v", err)
	}
	if again.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("reserve copy leaked: %s", again)
	}

	owed, err := pair.FlashRepayAmount(big.NewInt(500_000))
	if err != nil {
		t.Fatalf("flash repay: %v", err)
	}
	if owed.Cmp(big.NewInt(51)) != 0 {
		t.Fatalf("flash repay = %s, want 51", owed)
	}
}

func TestPairRejectsEmptyReserves(t *testing.T) {
	pair := NewPair(common.HexToAddress("0x01"), common.HexToAddress("0x02"), common.HexToAddress("0x03"))
	if err := pair.SetReserves(big.NewInt(0), big.NewInt(10)); err == nil {
		t.Fatal("expected error for zero base reserve")
	}
	if err := pair.SetReserves(big.NewInt(10), nil); err == nil {
		t.Fatal("expected error for nil quote reserve")
	}
}

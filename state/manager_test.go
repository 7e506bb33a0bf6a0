package state

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func addr(b byte) common.Address {
	return common.Address{19: b}
}

func TestMintBurnTransfer(t *testing.T) {
	m := NewManager()
	token := addr(0x01)
	alice := addr(0x0a)
	bob := addr(0x0b)

	if err := m.Mint(token, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := m.Transfer(token, alice, bob, big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := m.Burn(token, bob, big.NewInt(10)); err != nil {
		t.Fatalf("burn: %v", err)
	}

	if got := m.BalanceOf(token, alice); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("alice = %s, want 60", got)
	}
	if got := m.BalanceOf(token, bob); got.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("bob = %s, want 30", got)
	}

	if err := m.Transfer(token, bob, alice, big.NewInt(31)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := m.Burn(token, bob, big.NewInt(31)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance from burn, got %v", err)
	}
}

func TestBalanceOfReturnsCopy(t *testing.T) {
	m := NewManager()
	token := addr(0x01)
	alice := addr(0x0a)
	if err := m.Mint(token, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	m.BalanceOf(token, alice).SetInt64(0)
	if got := m.BalanceOf(token, alice); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("balance mutated through returned copy: %s", got)
	}
}

func TestTransferFromDrawsDownAllowance(t *testing.T) {
	m := NewManager()
	token := addr(0x01)
	owner := addr(0x0a)
	spender := addr(0x0b)
	sink := addr(0x0c)

	if err := m.Mint(token, owner, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := m.TransferFrom(token, spender, owner, sink, big.NewInt(10)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}

	if err := m.Approve(token, owner, spender, big.NewInt(30)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := m.TransferFrom(token, spender, owner, sink, big.NewInt(10)); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	if got := m.Allowance(token, owner, spender); got.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("allowance = %s, want 20", got)
	}
	if err := m.TransferFrom(token, spender, owner, sink, big.NewInt(21)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance after draw-down, got %v", err)
	}
}

func TestUnlimitedAllowanceIsNotDrawnDown(t *testing.T) {
	m := NewManager()
	token := addr(0x01)
	owner := addr(0x0a)
	spender := addr(0x0b)
	sink := addr(0x0c)

	if err := m.Mint(token, owner, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := m.Approve(token, owner, spender, Unlimited); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := m.TransferFrom(token, spender, owner, sink, big.NewInt(60)); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	if got := m.Allowance(token, owner, spender); got.Cmp(Unlimited) != 0 {
		t.Fatalf("unlimited allowance drawn down to %s", got)
	}
}

func TestSnapshotRevertRestoresEverything(t *testing.T) {
	m := NewManager()
	token := addr(0x01)
	alice := addr(0x0a)
	bob := addr(0x0b)

	if err := m.Mint(token, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	snapshot := m.Snapshot()
	if err := m.Transfer(token, alice, bob, big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := m.Approve(token, alice, bob, big.NewInt(7)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	m.AppendEvent(&Event{Type: "test.event"})

	m.RevertToSnapshot(snapshot)

	if got := m.BalanceOf(token, alice); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("alice = %s, want 100", got)
	}
	if got := m.BalanceOf(token, bob); got.Sign() != 0 {
		t.Fatalf("bob = %s, want 0", got)
	}
	if got := m.Allowance(token, alice, bob); got.Sign() != 0 {
		t.Fatalf("allowance = %s, want 0", got)
	}
	if events := m.Events(); len(events) != 0 {
		t.Fatalf("events survived revert: %+v", events)
	}
}

func TestNestedSnapshots(t *testing.T) {
	m := NewManager()
	token := addr(0x01)
	alice := addr(0x0a)

	outer := m.Snapshot()
	if err := m.Mint(token, alice, big.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	inner := m.Snapshot()
	if err := m.Mint(token, alice, big.NewInt(5)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	m.RevertToSnapshot(inner)
	if got := m.BalanceOf(token, alice); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("after inner revert: %s, want 10", got)
	}

	m.RevertToSnapshot(outer)
	if got := m.BalanceOf(token, alice); got.Sign() != 0 {
		t.Fatalf("after outer revert: %s, want 0", got)
	}
}

func TestRejectsNilAndNegativeAmounts(t *testing.T) {
	m := NewManager()
	token := addr(0x01)
	alice := addr(0x0a)

	if err := m.Mint(token, alice, nil); err == nil {
		t.Fatalf("mint accepted nil amount")
	}
	if err := m.Mint(token, alice, big.NewInt(-1)); err == nil {
		t.Fatalf("mint accepted negative amount")
	}
	if err := m.Transfer(token, alice, addr(0x0b), big.NewInt(-1)); err == nil {
		t.Fatalf("transfer accepted negative amount")
	}
	if err := m.Approve(token, alice, addr(0x0b), big.NewInt(-1)); err == nil {
		t.Fatalf("approve accepted negative amount")
	}
}

func TestEventsReturnsCopy(t *testing.T) {
	m := NewManager()
	m.AppendEvent(&Event{Type: "test.event", Attributes: map[string]string{"k": "v"}})
	events := m.Events()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	events[0].Type = "mutated"
	if got := m.Events(); got[0].Type != "test.event" {
		t.Fatalf("event mutated through returned slice: %q", got[0].Type)
	}
}

package state

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	errInvalidAmount       = errors.New("state: amount must be non-negative")
	errInsufficientBalance = errors.New("state: insufficient balance")
	errInsufficientAllow   = errors.New("state: insufficient allowance")
)

// ErrInsufficientBalance is surfaced when a transfer or burn exceeds the
// holder's balance.
var ErrInsufficientBalance = errInsufficientBalance

// ErrInsufficientAllowance is surfaced when a delegated transfer exceeds the
// approved spending limit.
var ErrInsufficientAllowance = errInsufficientAllow

// Unlimited is the sentinel allowance treated as inexhaustible: delegated
// transfers against it do not draw the approval down.
var Unlimited = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

type allowanceKey struct {
	token   common.Address
	owner   common.Address
	spender common.Address
}

// Manager is the serialized token-state substrate the settlement engine and
// its counterparties mutate. Every write is recorded in a compensating-action
// journal so a whole invocation can be rolled back as a unit.
type Manager struct {
	mu         sync.Mutex
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[allowanceKey]*big.Int
	events     []Event
	journal    []journalEntry
}

// NewManager constructs an empty substrate.
func NewManager() *Manager {
	return &Manager{
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
	}
}

// BalanceOf returns a copy of the holder's balance for the given token.
func (m *Manager) BalanceOf(token, holder common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.balance(token, holder))
}

// Mint credits freshly issued units of token to the recipient.
func (m *Manager) Mint(token, to common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	m.setBalance(token, to, new(big.Int).Add(m.balance(token, to), amount))
	return nil
}

// Burn removes units of token from the holder.
func (m *Manager) Burn(token, from common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	balance := m.balance(token, from)
	if balance.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	m.setBalance(token, from, new(big.Int).Sub(balance, amount))
	return nil
}

// Transfer moves token units between holders.
func (m *Manager) Transfer(token, from, to common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transfer(token, from, to, amount)
}

// TransferFrom moves token units on behalf of the owner, drawing down the
// spender's allowance unless it was granted as Unlimited.
func (m *Manager) TransferFrom(token, spender, owner, to common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	key := allowanceKey{token: token, owner: owner, spender: spender}
	approved := m.allowance(key)
	if approved.Cmp(amount) < 0 {
		return errInsufficientAllow
	}
	if err := m.transfer(token, owner, to, amount); err != nil {
		return err
	}
	if approved.Cmp(Unlimited) != 0 {
		m.setAllowance(key, new(big.Int).Sub(approved, amount))
	}
	return nil
}

// Approve sets the spender's allowance over the owner's token balance.
func (m *Manager) Approve(token, owner, spender common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	m.setAllowance(allowanceKey{token: token, owner: owner, spender: spender}, new(big.Int).Set(amount))
	return nil
}

// Allowance returns a copy of the spender's remaining approval.
func (m *Manager) Allowance(token, owner, spender common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.allowance(allowanceKey{token: token, owner: owner, spender: spender}))
}

func (m *Manager) transfer(token, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	fromBalance := m.balance(token, from)
	if fromBalance.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	m.setBalance(token, from, new(big.Int).Sub(fromBalance, amount))
	m.setBalance(token, to, new(big.Int).Add(m.balance(token, to), amount))
	return nil
}

func (m *Manager) balance(token, holder common.Address) *big.Int {
	holders, ok := m.balances[token]
	if !ok {
		return big.NewInt(0)
	}
	balance, ok := holders[holder]
	if !ok || balance == nil {
		return big.NewInt(0)
	}
	return balance
}

func (m *Manager) setBalance(token, holder common.Address, value *big.Int) {
	holders, ok := m.balances[token]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		m.balances[token] = holders
	}
	prev, existed := holders[holder]
	var prevCopy *big.Int
	if existed && prev != nil {
		prevCopy = new(big.Int).Set(prev)
	}
	m.journal = append(m.journal, balanceChange{token: token, holder: holder, prev: prevCopy, existed: existed})
	holders[holder] = value
}

func (m *Manager) allowance(key allowanceKey) *big.Int {
	approved, ok := m.allowances[key]
	if !ok || approved == nil {
		return big.NewInt(0)
	}
	return approved
}

func (m *Manager) setAllowance(key allowanceKey, value *big.Int) {
	prev, existed := m.allowances[key]
	var prevCopy *big.Int
	if existed && prev != nil {
		prevCopy = new(big.Int).Set(prev)
	}
	m.journal = append(m.journal, allowanceChange{key: key, prev: prevCopy, existed: existed})
	m.allowances[key] = value
}

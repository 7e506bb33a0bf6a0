package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// journalEntry reverses a single substrate mutation. Entries are appended in
// execution order and replayed backwards on revert.
type journalEntry interface {
	revert(m *Manager)
}

type balanceChange struct {
	token   common.Address
	holder  common.Address
	prev    *big.Int
	existed bool
}

func (c balanceChange) revert(m *Manager) {
	holders, ok := m.balances[c.token]
	if !ok {
		return
	}
	if !c.existed {
		delete(holders, c.holder)
		return
	}
	holders[c.holder] = c.prev
}

type allowanceChange struct {
	key     allowanceKey
	prev    *big.Int
	existed bool
}

func (c allowanceChange) revert(m *Manager) {
	if !c.existed {
		delete(m.allowances, c.key)
		return
	}
	m.allowances[c.key] = c.prev
}

type eventAppend struct{}

func (eventAppend) revert(m *Manager) {
	if len(m.events) == 0 {
		return
	}
	m.events = m.events[:len(m.events)-1]
}

// Snapshot marks the current journal position. Snapshots nest: an outer
// counterparty (the flash lender) can wrap the engine callback and still
// unwind everything the callback touched.
func (m *Manager) Snapshot() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.journal)
}

// RevertToSnapshot undoes every mutation recorded after the snapshot was
// taken, restoring balances, allowances, and the event log.
func (m *Manager) RevertToSnapshot(snapshot int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snapshot < 0 || snapshot > len(m.journal) {
		return
	}
	for i := len(m.journal) - 1; i >= snapshot; i-- {
		m.journal[i].revert(m)
	}
	m.journal = m.journal[:snapshot]
}

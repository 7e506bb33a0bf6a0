package flash

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Configure sets the engine's active trusted pool and lending ledger.
// Administrative callers only; the configuration is read-only during
// settlement.
func (e *Engine) Configure(caller common.Address, pair ReservePair, ledger LiquidationLedger) error {
	if e == nil {
		return errNilState
	}
	if caller != e.admin {
		return ErrNotAuthorized
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pair = pair
	e.ledger = ledger
	return nil
}

// RegisterPair inserts or overwrites a trusted pool under the given
// identifier, letting one engine instance settle against several pools.
// Administrative callers only.
func (e *Engine) RegisterPair(caller common.Address, id string, pair ReservePair) error {
	if e == nil {
		return errNilState
	}
	if caller != e.admin {
		return ErrNotAuthorized
	}
	id = strings.TrimSpace(id)
	if id == "" || pair == nil {
		return errInvalidPair
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pairs[id] = pair
	return nil
}

// PairByID resolves a registered pool by identifier.
func (e *Engine) PairByID(id string) (ReservePair, bool) {
	if e == nil {
		return nil, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	pair, ok := e.pairs[strings.TrimSpace(id)]
	return pair, ok
}

// trustedPair authorizes a callback caller: the default pool or any
// registered pool may invoke the callback, and pricing runs against the
// matching pair. Anyone else is rejected.
func (e *Engine) trustedPair(caller common.Address) ReservePair {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.pair != nil && caller == e.pair.Address() {
		return e.pair
	}
	for _, pair := range e.pairs {
		if pair != nil && caller == pair.Address() {
			return pair
		}
	}
	return nil
}

func (e *Engine) collaborators() (LiquidationLedger, IssuerRegistry) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger, e.issuers
}

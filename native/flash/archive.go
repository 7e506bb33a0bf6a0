package flash

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"flashliq/storage"
)

var (
	settlementKeyPrefix = []byte("flash/settlement/")
	settlementSeqKey    = []byte("flash/settlement/seq")
)

// storedSettlement is the RLP shape persisted per settlement. Amounts are
// kept as big integers; RLP rejects nil fields so Append normalises them.
type storedSettlement struct {
	Initiator common.Address
	Borrower  common.Address
	DebtToken common.Address
	Pool      common.Address
	Borrowed  *big.Int
	Minted    *big.Int
	Collater  *big.Int
	Repaid    *big.Int
	Profit    *big.Int
	CreatedAt uint64
}

// Archive is the append-only record of committed settlements. It is written
// only after a settlement succeeds, so it never observes aborted work.
type Archive struct {
	mu    sync.Mutex
	db    storage.Database
	clock func() time.Time
}

// NewArchive binds an archive to the given key-value backend.
func NewArchive(db storage.Database) *Archive {
	return &Archive{db: db, clock: time.Now}
}

// SetClock overrides the time source (primarily for deterministic testing).
func (a *Archive) SetClock(clock func() time.Time) {
	if a == nil || clock == nil {
		return
	}
	a.clock = clock
}

// Append persists the settlement under the next sequence number and returns
// that number.
func (a *Archive) Append(result *SettlementResult) (uint64, error) {
	if a == nil || a.db == nil {
		return 0, fmt.Errorf("archive: not initialised")
	}
	if result == nil {
		return 0, fmt.Errorf("archive: result must not be nil")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	seq, err := a.sequence()
	if err != nil {
		return 0, err
	}

	record := storedSettlement{
		Initiator: result.Initiator,
		Borrower:  result.Borrower,
		DebtToken: result.DebtToken,
		Pool:      result.Pool,
		Borrowed:  orZero(result.BorrowedQuote),
		Minted:    orZero(result.MintedProxy),
		Collater:  orZero(result.Collateral),
		Repaid:    orZero(result.Repayment),
		Profit:    orZero(result.Profit),
		CreatedAt: uint64(a.clock().UTC().Unix()),
	}
	encoded, err := rlp.EncodeToBytes(&record)
	if err != nil {
		return 0, fmt.Errorf("archive: encode settlement: %w", err)
	}
	if err := a.db.Put(settlementKey(seq), encoded); err != nil {
		return 0, fmt.Errorf("archive: persist settlement: %w", err)
	}

	next, err := rlp.EncodeToBytes(seq + 1)
	if err != nil {
		return 0, fmt.Errorf("archive: encode sequence: %w", err)
	}
	if err := a.db.Put(settlementSeqKey, next); err != nil {
		return 0, fmt.Errorf("archive: persist sequence: %w", err)
	}
	return seq, nil
}

// Get loads a settlement by sequence number.
func (a *Archive) Get(seq uint64) (*SettlementResult, uint64, error) {
	if a == nil || a.db == nil {
		return nil, 0, fmt.Errorf("archive: not initialised")
	}
	raw, err := a.db.Get(settlementKey(seq))
	if err != nil {
		return nil, 0, err
	}
	var record storedSettlement
	if err := rlp.DecodeBytes(raw, &record); err != nil {
		return nil, 0, fmt.Errorf("archive: decode settlement %d: %w", seq, err)
	}
	return &SettlementResult{
		Initiator:     record.Initiator,
		Borrower:      record.Borrower,
		DebtToken:     record.DebtToken,
		Pool:          record.Pool,
		BorrowedQuote: record.Borrowed,
		MintedProxy:   record.Minted,
		Collateral:    record.Collater,
		Repayment:     record.Repaid,
		Profit:        record.Profit,
	}, record.CreatedAt, nil
}

// Len reports how many settlements have been archived.
func (a *Archive) Len() (uint64, error) {
	if a == nil || a.db == nil {
		return 0, fmt.Errorf("archive: not initialised")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sequence()
}

// List returns up to count settlements starting at the given sequence number
// in append order.
func (a *Archive) List(start, count uint64) ([]*SettlementResult, error) {
	if a == nil || a.db == nil {
		return nil, fmt.Errorf("archive: not initialised")
	}
	total, err := a.Len()
	if err != nil {
		return nil, err
	}
	out := make([]*SettlementResult, 0, count)
	for seq := start; seq < total && uint64(len(out)) < count; seq++ {
		result, _, err := a.Get(seq)
		if err != nil {
			return nil, err
		}
		out = append(out, result)
	}
	return out, nil
}

func (a *Archive) sequence() (uint64, error) {
	raw, err := a.db.Get(settlementSeqKey)
	if err != nil {
		if err == storage.ErrNotFound {
			return 0, nil
		}
		return 0, err
	}
	var seq uint64
	if err := rlp.DecodeBytes(raw, &seq); err != nil {
		return 0, fmt.Errorf("archive: decode sequence: %w", err)
	}
	return seq, nil
}

func settlementKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%016x", settlementKeyPrefix, seq))
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

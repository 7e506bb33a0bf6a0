package amm

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	errReservesUnavailable = errors.New("amm: pair reserves not initialised")
	errInvalidReserve      = errors.New("amm: reserves must be positive")
)

// ErrReservesUnavailable is returned when a pair is queried before its
// reserves were observed.
var ErrReservesUnavailable = errReservesUnavailable

// Pair is the read-only view of a trusted constant-product pool. The executor
// never manages the pool's reserves; it records the pool's last observed
// state and prices repayments against it.
type Pair struct {
	mu           sync.RWMutex
	address      common.Address
	baseToken    common.Address
	quoteToken   common.Address
	baseReserve  *big.Int
	quoteReserve *big.Int
}

// NewPair constructs a pair view for the pool at the given address trading
// baseToken against quoteToken.
func NewPair(address, baseToken, quoteToken common.Address) *Pair {
	return &Pair{address: address, baseToken: baseToken, quoteToken: quoteToken}
}

// Address returns the pool identity the callback authorization checks
// against.
func (p *Pair) Address() common.Address { return p.address }

// BaseToken returns the asset the loan is repaid in.
func (p *Pair) BaseToken() common.Address { return p.baseToken }

// QuoteToken returns the asset the pool disburses to the executor.
func (p *Pair) QuoteToken() common.Address { return p.quoteToken }

// SetReserves records the pool's current reserve pair. Both values are
// captured together so later reads observe a consistent point in time.
func (p *Pair) SetReserves(base, quote *big.Int) error {
	if base == nil || base.Sign() <= 0 || quote == nil || quote.Sign() <= 0 {
		return errInvalidReserve
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.baseReserve = new(big.Int).Set(base)
	p.quoteReserve = new(big.Int).Set(quote)
	return nil
}

// Reserves returns copies of the last observed (base, quote) reserve pair.
func (p *Pair) Reserves() (*big.Int, *big.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.baseReserve == nil || p.quoteReserve == nil {
		return nil, nil, errReservesUnavailable
	}
	return new(big.Int).Set(p.baseReserve), new(big.Int).Set(p.quoteReserve), nil
}

// FlashRepayAmount prices the repayment for a quote-asset flash borrow
// against the pair's current reserves. The reserve pair is read under one
// lock so the computation never mixes two observations.
func (p *Pair) FlashRepayAmount(quoteAmount *big.Int) (*big.Int, error) {
	base, quote, err := p.Reserves()
	if err != nil {
		return nil, err
	}
	return FlashRepayAmount(base, quote, quoteAmount)
}

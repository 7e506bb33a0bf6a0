package sim

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"flashliq/native/amm"
	"flashliq/native/flash"
	"flashliq/state"
)

var (
	errPoolLiquidity = errors.New("sim pool: insufficient quote liquidity")
	errPoolUnderpaid = errors.New("sim pool: flash loan not repaid in full")
)

// LoanCallback is the settlement engine surface the pool drives.
type LoanCallback interface {
	Account() common.Address
	OnLoanDisbursed(caller, initiator common.Address, baseAmount, quoteAmount *big.Int, payload []byte) (*flash.SettlementResult, error)
}

// Pool is an in-process constant-product flash lender standing in for the
// real AMM. It disburses the quote asset, invokes the callback, verifies the
// fee-inclusive base-asset repayment, and unwinds everything on any failure —
// the same contract the live counterparty enforces.
type Pool struct {
	state    *state.Manager
	pair     *amm.Pair
	callback LoanCallback
}

// NewPool binds a lender to its pair view, the shared substrate, and the
// settlement callback it will drive.
func NewPool(st *state.Manager, pair *amm.Pair, callback LoanCallback) *Pool {
	return &Pool{state: st, pair: pair, callback: callback}
}

// Pair exposes the lender's reserve view.
func (p *Pool) Pair() *amm.Pair { return p.pair }

// Seed funds the pool account and records the matching reserves. Intended
// for start-up and tests.
func (p *Pool) Seed(base, quote *big.Int) error {
	if err := p.state.Mint(p.pair.BaseToken(), p.pair.Address(), base); err != nil {
		return err
	}
	if err := p.state.Mint(p.pair.QuoteToken(), p.pair.Address(), quote); err != nil {
		return err
	}
	return p.pair.SetReserves(base, quote)
}

// FlashBorrow runs one flash loan end to end: disburse quoteAmount to the
// callback's account, invoke the callback, then require the base-asset
// repayment priced from the pre-loan reserves. Reserves sync only after the
// repayment check, so the callback observes the reserves the loan was priced
// against. Any failure reverts the whole invocation.
func (p *Pool) FlashBorrow(initiator common.Address, quoteAmount *big.Int, payload []byte) (*flash.SettlementResult, error) {
	if p == nil || p.state == nil || p.pair == nil || p.callback == nil {
		return nil, errors.New("sim pool: not initialised")
	}

	baseReserve, quoteReserve, err := p.pair.Reserves()
	if err != nil {
		return nil, err
	}
	if quoteAmount == nil || quoteAmount.Sign() <= 0 || quoteAmount.Cmp(quoteReserve) >= 0 {
		return nil, errPoolLiquidity
	}

	owed, err := p.pair.FlashRepayAmount(quoteAmount)
	if err != nil {
		return nil, err
	}

	snapshot := p.state.Snapshot()
	result, err := p.lend(initiator, quoteAmount, owed, baseReserve, quoteReserve, payload)
	if err != nil {
		p.state.RevertToSnapshot(snapshot)
		return nil, err
	}
	// Hand back a detached copy so callers cannot alias the settlement
	// record the engine just emitted.
	return result.Copy(), nil
}

func (p *Pool) lend(initiator common.Address, quoteAmount, owed, baseReserve, quoteReserve *big.Int, payload []byte) (*flash.SettlementResult, error) {
	poolAddr := p.pair.Address()
	baseToken := p.pair.BaseToken()
	quoteToken := p.pair.QuoteToken()

	baseBefore := p.state.BalanceOf(baseToken, poolAddr)
	if err := p.state.Transfer(quoteToken, poolAddr, p.callback.Account(), quoteAmount); err != nil {
		return nil, fmt.Errorf("sim pool: disburse: %w", err)
	}

	result, err := p.callback.OnLoanDisbursed(poolAddr, initiator, big.NewInt(0), quoteAmount, payload)
	if err != nil {
		return nil, err
	}

	received := new(big.Int).Sub(p.state.BalanceOf(baseToken, poolAddr), baseBefore)
	if received.Cmp(owed) < 0 {
		return nil, fmt.Errorf("%w: received=%s owed=%s", errPoolUnderpaid, received, owed)
	}

	if err := p.pair.SetReserves(
		new(big.Int).Add(baseReserve, received),
		new(big.Int).Sub(quoteReserve, quoteAmount),
	); err != nil {
		return nil, err
	}
	return result, nil
}

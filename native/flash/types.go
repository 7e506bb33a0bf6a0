package flash

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"flashliq/state"
)

// TokenState is the slice of the execution substrate the engine needs:
// fungible-asset primitives plus the journal hooks that make a settlement
// atomic.
type TokenState interface {
	BalanceOf(token, holder common.Address) *big.Int
	Transfer(token, from, to common.Address, amount *big.Int) error
	Approve(token, owner, spender common.Address, amount *big.Int) error
	Allowance(token, owner, spender common.Address) *big.Int
	AppendEvent(evt *state.Event)
	Snapshot() int
	RevertToSnapshot(snapshot int)
}

// ReservePair is the read-only view of a trusted constant-product pool.
type ReservePair interface {
	Address() common.Address
	BaseToken() common.Address
	QuoteToken() common.Address
	Reserves() (base, quote *big.Int, err error)
}

// ProxyIssuer mints debt-proxy tokens against supplied underlying. The
// issuer draws the underlying from the caller's balance via its allowance;
// the minted amount is never trusted from the call itself but measured by
// balance differencing.
type ProxyIssuer interface {
	SupplyUnderlying(amount *big.Int) error
}

// IssuerRegistry resolves the issuer responsible for a debt-proxy token.
type IssuerRegistry interface {
	IssuerFor(token common.Address) (ProxyIssuer, error)
}

// LiquidationLedger is the external lending ledger's liquidation entry
// point. Collateral arrives as a side effect on the caller's balance.
type LiquidationLedger interface {
	Liquidate(borrower, debtToken common.Address, repayAmount *big.Int, collateralAsset common.Address) error
}

// LoanRequest is the decoded callback payload. It lives only for the
// duration of one settlement and is never persisted.
type LoanRequest struct {
	Initiator common.Address
	DebtToken common.Address
	Borrower  common.Address
	MinProfit *big.Int
}

// SettlementResult describes one completed settlement. Emitted as an event
// and archived; aborted invocations produce neither.
type SettlementResult struct {
	Initiator     common.Address
	Borrower      common.Address
	DebtToken     common.Address
	Pool          common.Address
	BorrowedQuote *big.Int
	MintedProxy   *big.Int
	Collateral    *big.Int
	Repayment     *big.Int
	Profit        *big.Int
}

// Copy returns a deep copy so callers cannot mutate shared pointers.
func (r *SettlementResult) Copy() *SettlementResult {
	if r == nil {
		return nil
	}
	clone := *r
	if r.BorrowedQuote != nil {
		clone.BorrowedQuote = new(big.Int).Set(r.BorrowedQuote)
	}
	if r.MintedProxy != nil {
		clone.MintedProxy = new(big.Int).Set(r.MintedProxy)
	}
	if r.Collateral != nil {
		clone.Collateral = new(big.Int).Set(r.Collateral)
	}
	if r.Repayment != nil {
		clone.Repayment = new(big.Int).Set(r.Repayment)
	}
	if r.Profit != nil {
		clone.Profit = new(big.Int).Set(r.Profit)
	}
	return &clone
}

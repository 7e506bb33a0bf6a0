package flash

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"flashliq/native/amm"
	"flashliq/state"
)

// settlementPhase tracks where in the borrow→mint→liquidate→repay sequence an
// invocation currently is. Any failure aborts the whole invocation; the phase
// only annotates errors and metrics.
type settlementPhase uint8

const (
	phaseAuthorizing settlementPhase = iota
	phaseMinting
	phaseLiquidating
	phaseSettling
	phaseCompleted
)

func (p settlementPhase) String() string {
	switch p {
	case phaseAuthorizing:
		return "authorizing"
	case phaseMinting:
		return "minting"
	case phaseLiquidating:
		return "liquidating"
	case phaseSettling:
		return "settling"
	case phaseCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Engine orchestrates flash-funded liquidation settlements. One invocation of
// OnLoanDisbursed is a single non-preemptible unit of work: either every step
// commits together or the substrate journal rolls all of them back.
type Engine struct {
	// mu shields the admin-mutated configuration (pair, ledger, registry);
	// everything else is read-only during settlement.
	mu      sync.RWMutex
	state   TokenState
	account common.Address
	admin   common.Address
	pair    ReservePair
	ledger  LiquidationLedger
	issuers IssuerRegistry
	pairs   map[string]ReservePair
}

// NewEngine constructs an engine operating the given executor token account,
// administered by admin.
func NewEngine(account, admin common.Address) *Engine {
	return &Engine{
		account: account,
		admin:   admin,
		pairs:   make(map[string]ReservePair),
	}
}

// SetState wires the engine to the execution substrate.
func (e *Engine) SetState(s TokenState) {
	if e == nil {
		return
	}
	e.state = s
}

// SetIssuerRegistry wires the resolver for debt-proxy token issuers.
func (e *Engine) SetIssuerRegistry(r IssuerRegistry) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.issuers = r
}

// Account returns the executor's own token account.
func (e *Engine) Account() common.Address {
	if e == nil {
		return common.Address{}
	}
	return e.account
}

// OnLoanDisbursed is the flash-loan callback. The trusted pool invokes it
// after crediting quoteAmount of its quote asset to the executor account;
// payload carries the ABI-encoded (debtToken, borrower, minProfit) request.
//
// The returned error aborts the invocation: every balance change,
// authorization grant, and collaborator side effect recorded since entry is
// rolled back before the error is surfaced.
func (e *Engine) OnLoanDisbursed(caller, initiator common.Address, baseAmount, quoteAmount *big.Int, payload []byte) (*SettlementResult, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}

	pair := e.trustedPair(caller)
	if pair == nil {
		return nil, ErrUnauthorizedCaller
	}
	if baseAmount != nil && baseAmount.Sign() != 0 {
		return nil, ErrUnexpectedLoanAsset
	}
	if quoteAmount == nil || quoteAmount.Sign() <= 0 {
		return nil, errInvalidAmount
	}

	debtToken, borrower, minProfit, err := decodeLoanPayload(payload)
	if err != nil {
		return nil, err
	}
	req := &LoanRequest{
		Initiator: initiator,
		DebtToken: debtToken,
		Borrower:  borrower,
		MinProfit: minProfit,
	}

	snapshot := e.state.Snapshot()
	result, err := e.settle(pair, req, quoteAmount)
	if err != nil {
		e.state.RevertToSnapshot(snapshot)
		return nil, err
	}
	return result, nil
}

func (e *Engine) settle(pair ReservePair, req *LoanRequest, quoteAmount *big.Int) (*SettlementResult, error) {
	ledger, issuers := e.collaborators()
	if ledger == nil {
		return nil, errNotConfigured
	}
	if issuers == nil {
		return nil, ErrUnknownIssuer
	}
	issuer, err := issuers.IssuerFor(req.DebtToken)
	if err != nil || issuer == nil {
		return nil, ErrUnknownIssuer
	}

	quoteToken := pair.QuoteToken()
	baseToken := pair.BaseToken()

	// Minting. The issuer spends the executor's quote balance, so make sure
	// it holds a sufficient authorization first. The unlimited grant is
	// idempotent: once in place later settlements skip it.
	if e.state.Allowance(quoteToken, e.account, req.DebtToken).Cmp(quoteAmount) < 0 {
		if err := e.state.Approve(quoteToken, e.account, req.DebtToken, state.Unlimited); err != nil {
			return nil, fmt.Errorf("flash %s: approve issuer: %w", phaseMinting, err)
		}
	}

	// Measure the mint by differencing the proxy balance around the supply
	// call. Issuers may mint less than the nominal amount (fees, exchange
	// rates); the measured delta is the only number trusted downstream.
	proxyBefore := e.state.BalanceOf(req.DebtToken, e.account)
	if err := issuer.SupplyUnderlying(quoteAmount); err != nil {
		return nil, fmt.Errorf("flash %s: supply underlying: %w", phaseMinting, err)
	}
	minted := new(big.Int).Sub(e.state.BalanceOf(req.DebtToken, e.account), proxyBefore)

	// Liquidating. Collateral received is measured the same way.
	baseBefore := e.state.BalanceOf(baseToken, e.account)
	if err := ledger.Liquidate(req.Borrower, req.DebtToken, minted, baseToken); err != nil {
		return nil, fmt.Errorf("flash %s: liquidate borrower %s: %w", phaseLiquidating, req.Borrower.Hex(), err)
	}
	collateral := new(big.Int).Sub(e.state.BalanceOf(baseToken, e.account), baseBefore)

	// Settling. Price the repayment from the reserves observed for this
	// borrow, then enforce the profit invariant before any transfer leaves
	// the executor account.
	baseReserve, quoteReserve, err := pair.Reserves()
	if err != nil {
		return nil, fmt.Errorf("flash %s: read reserves: %w", phaseSettling, err)
	}
	owed, err := amm.FlashRepayAmount(baseReserve, quoteReserve, quoteAmount)
	if err != nil {
		return nil, fmt.Errorf("flash %s: %w", phaseSettling, err)
	}

	minProfit := req.MinProfit
	if minProfit == nil {
		minProfit = big.NewInt(0)
	}
	required := new(big.Int).Add(owed, minProfit)
	if collateral.Cmp(required) <= 0 {
		return nil, fmt.Errorf("%w: collateral=%s repayment=%s minProfit=%s",
			ErrInsufficientProfit, collateral, owed, minProfit)
	}

	// Completed. Repay the pool in the base asset, forward the residual to
	// the initiator, and emit the settlement record.
	if err := e.state.Transfer(baseToken, e.account, pair.Address(), owed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRepaymentTransferFailed, err)
	}
	profit := new(big.Int).Sub(collateral, owed)
	if err := e.state.Transfer(baseToken, e.account, req.Initiator, profit); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfitTransferFailed, err)
	}

	result := &SettlementResult{
		Initiator:     req.Initiator,
		Borrower:      req.Borrower,
		DebtToken:     req.DebtToken,
		Pool:          pair.Address(),
		BorrowedQuote: new(big.Int).Set(quoteAmount),
		MintedProxy:   minted,
		Collateral:    collateral,
		Repayment:     owed,
		Profit:        profit,
	}
	e.state.AppendEvent(result.event())
	return result, nil
}

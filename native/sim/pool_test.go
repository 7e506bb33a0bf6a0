package sim

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"flashliq/native/amm"
	"flashliq/native/flash"
	"flashliq/state"
)

func addr(b byte) common.Address {
	return common.Address{19: b}
}

type world struct {
	st       *state.Manager
	engine   *flash.Engine
	pair     *amm.Pair
	pool     *Pool
	issuer   *Issuer
	ledger   *Ledger
	executor common.Address
	admin    common.Address
	custody  common.Address
	baseTok  common.Address
	quoteTok common.Address
	debtTok  common.Address
	borrower common.Address
	caller   common.Address
}

// newWorld wires the full loop: pool -> engine -> issuer -> ledger -> pool.
func newWorld(t *testing.T, baseReserve, quoteReserve int64) *world {
	t.Helper()
	w := &world{
		st:       state.NewManager(),
		executor: addr(0x01),
		admin:    addr(0x02),
		custody:  addr(0x03),
		baseTok:  addr(0x20),
		quoteTok: addr(0x21),
		debtTok:  addr(0x22),
		borrower: addr(0x30),
		caller:   addr(0x31),
	}
	w.pair = amm.NewPair(addr(0x10), w.baseTok, w.quoteTok)
	w.issuer = NewIssuer(w.st, w.debtTok, w.quoteTok, w.executor)
	// One base unit of collateral per hundred units of proxy debt retired.
	w.ledger = NewLedger(w.st, w.custody, w.executor, big.NewInt(1), big.NewInt(100))

	issuers := NewIssuerSet()
	issuers.Register(w.issuer)

	w.engine = flash.NewEngine(w.executor, w.admin)
	w.engine.SetState(w.st)
	w.engine.SetIssuerRegistry(issuers)
	if err := w.engine.Configure(w.admin, w.pair, w.ledger); err != nil {
		t.Fatalf("configure engine: %v", err)
	}

	w.pool = NewPool(w.st, w.pair, w.engine)
	if err := w.pool.Seed(big.NewInt(baseReserve), big.NewInt(quoteReserve)); err != nil {
		t.Fatalf("seed pool: %v", err)
	}
	// The ledger's custody holds the collateral it releases.
	if err := w.st.Mint(w.baseTok, w.custody, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("fund custody: %v", err)
	}
	return w
}

func (w *world) payload(t *testing.T, minProfit int64) []byte {
	t.Helper()
	data, err := flash.EncodeLoanPayload(w.debtTok, w.borrower, big.NewInt(minProfit))
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	return data
}

func TestFlashBorrowSmallLoan(t *testing.T) {
	w := newWorld(t, 50, 1_000_000)

	result, err := w.pool.FlashBorrow(w.caller, big.NewInt(10_000), w.payload(t, 50))
	if err != nil {
		t.Fatalf("flash borrow: %v", err)
	}

	// 10k quote against (50, 1M) reserves prices to a single base unit.
	if result.Repayment.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("repayment = %s, want 1", result.Repayment)
	}
	// Rate 1/100 on a 10k proxy liquidation releases 100 base.
	if result.Collateral.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("collateral = %s, want 100", result.Collateral)
	}
	if result.Profit.Cmp(big.NewInt(99)) != 0 {
		t.Fatalf("profit = %s, want 99", result.Profit)
	}

	if got := w.st.BalanceOf(w.baseTok, w.caller); got.Cmp(big.NewInt(99)) != 0 {
		t.Fatalf("initiator base balance = %s, want 99", got)
	}
	if got := w.st.BalanceOf(w.quoteTok, w.executor); got.Sign() != 0 {
		t.Fatalf("executor kept quote balance %s", got)
	}
	if got := w.st.BalanceOf(w.debtTok, w.executor); got.Sign() != 0 {
		t.Fatalf("executor kept proxy balance %s", got)
	}

	base, quote, err := w.pair.Reserves()
	if err != nil {
		t.Fatalf("reserves: %v", err)
	}
	if base.Cmp(big.NewInt(51)) != 0 || quote.Cmp(big.NewInt(990_000)) != 0 {
		t.Fatalf("reserves = (%s, %s), want (51, 990000)", base, quote)
	}

	events := w.st.Events()
	if len(events) != 1 || events[0].Type != flash.EventSettlementCompleted {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestFlashBorrowLargeLoanPaysFee(t *testing.T) {
	w := newWorld(t, 50, 1_000_000)

	result, err := w.pool.FlashBorrow(w.caller, big.NewInt(500_000), w.payload(t, 0))
	if err != nil {
		t.Fatalf("flash borrow: %v", err)
	}
	// Half the quote reserve moves the price: 50*500000*1000 /
	// (500000*997) rounds up to 51 base units.
	if result.Repayment.Cmp(big.NewInt(51)) != 0 {
		t.Fatalf("repayment = %s, want 51", result.Repayment)
	}
	// Collateral at 1/100 is 5000; profit nets the repayment out.
	if result.Profit.Cmp(big.NewInt(4_949)) != 0 {
		t.Fatalf("profit = %s, want 4949", result.Profit)
	}

	base, _, err := w.pair.Reserves()
	if err != nil {
		t.Fatalf("reserves: %v", err)
	}
	if base.Cmp(big.NewInt(101)) != 0 {
		t.Fatalf("base reserve = %s, want 101", base)
	}
}

func TestFlashBorrowProfitEdge(t *testing.T) {
	borrow := big.NewInt(10_000) // prices to a repayment of 1
	minProfit := int64(10)

	// Exactly repayment + minProfit must abort; one unit more clears.
	w := newWorld(t, 50, 1_000_000)
	w.ledger.SetFixedCollateral(big.NewInt(11))
	if _, err := w.pool.FlashBorrow(w.caller, borrow, w.payload(t, minProfit)); !errors.Is(err, flash.ErrInsufficientProfit) {
		t.Fatalf("expected ErrInsufficientProfit at break-even, got %v", err)
	}

	w = newWorld(t, 50, 1_000_000)
	w.ledger.SetFixedCollateral(big.NewInt(12))
	result, err := w.pool.FlashBorrow(w.caller, borrow, w.payload(t, minProfit))
	if err != nil {
		t.Fatalf("flash borrow one unit above break-even: %v", err)
	}
	if result.Profit.Cmp(big.NewInt(11)) != 0 {
		t.Fatalf("profit = %s, want 11", result.Profit)
	}
}

func TestFlashBorrowAbortLeavesNoTrace(t *testing.T) {
	w := newWorld(t, 50, 1_000_000)
	w.ledger.SetFixedCollateral(big.NewInt(1)) // guarantees the profit check fails

	poolAddr := w.pair.Address()
	poolBaseBefore := w.st.BalanceOf(w.baseTok, poolAddr)
	poolQuoteBefore := w.st.BalanceOf(w.quoteTok, poolAddr)
	custodyBefore := w.st.BalanceOf(w.baseTok, w.custody)

	_, err := w.pool.FlashBorrow(w.caller, big.NewInt(10_000), w.payload(t, 10))
	if !errors.Is(err, flash.ErrInsufficientProfit) {
		t.Fatalf("expected ErrInsufficientProfit, got %v", err)
	}

	if got := w.st.BalanceOf(w.baseTok, poolAddr); got.Cmp(poolBaseBefore) != 0 {
		t.Fatalf("pool base balance drifted: %s != %s", got, poolBaseBefore)
	}
	if got := w.st.BalanceOf(w.quoteTok, poolAddr); got.Cmp(poolQuoteBefore) != 0 {
		t.Fatalf("pool quote balance drifted: %s != %s", got, poolQuoteBefore)
	}
	if got := w.st.BalanceOf(w.baseTok, w.custody); got.Cmp(custodyBefore) != 0 {
		t.Fatalf("custody balance drifted: %s != %s", got, custodyBefore)
	}
	for _, token := range []common.Address{w.baseTok, w.quoteTok, w.debtTok} {
		if got := w.st.BalanceOf(token, w.executor); got.Sign() != 0 {
			t.Fatalf("executor balance of %s survived abort: %s", token.Hex(), got)
		}
	}
	if got := w.st.Allowance(w.quoteTok, w.executor, w.debtTok); got.Sign() != 0 {
		t.Fatalf("allowance survived abort: %s", got)
	}
	if events := w.st.Events(); len(events) != 0 {
		t.Fatalf("events survived abort: %+v", events)
	}

	base, quote, err := w.pair.Reserves()
	if err != nil {
		t.Fatalf("reserves: %v", err)
	}
	if base.Cmp(big.NewInt(50)) != 0 || quote.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("reserves drifted to (%s, %s)", base, quote)
	}
}

func TestFlashBorrowRejectsExcessiveLoan(t *testing.T) {
	w := newWorld(t, 50, 1_000)
	for _, amount := range []*big.Int{nil, big.NewInt(0), big.NewInt(-1), big.NewInt(1_000), big.NewInt(2_000)} {
		if _, err := w.pool.FlashBorrow(w.caller, amount, w.payload(t, 0)); !errors.Is(err, errPoolLiquidity) {
			t.Fatalf("amount %v: expected errPoolLiquidity, got %v", amount, err)
		}
	}
}

// keeperCallback accepts the loan and never repays.
type keeperCallback struct {
	account common.Address
}

func (c *keeperCallback) Account() common.Address { return c.account }

func (c *keeperCallback) OnLoanDisbursed(common.Address, common.Address, *big.Int, *big.Int, []byte) (*flash.SettlementResult, error) {
	return &flash.SettlementResult{}, nil
}

func TestFlashBorrowDetectsUnderpayment(t *testing.T) {
	st := state.NewManager()
	pair := amm.NewPair(addr(0x10), addr(0x20), addr(0x21))
	thief := &keeperCallback{account: addr(0x66)}
	pool := NewPool(st, pair, thief)
	if err := pool.Seed(big.NewInt(50), big.NewInt(1_000_000)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := pool.FlashBorrow(addr(0x31), big.NewInt(10_000), nil)
	if !errors.Is(err, errPoolUnderpaid) {
		t.Fatalf("expected errPoolUnderpaid, got %v", err)
	}
	// The disbursement rolled back with everything else.
	if got := st.BalanceOf(addr(0x21), thief.account); got.Sign() != 0 {
		t.Fatalf("thief kept the loan: %s", got)
	}
	if got := st.BalanceOf(addr(0x21), pair.Address()); got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("pool quote balance = %s, want 1000000", got)
	}
}

func TestIssuerMintFee(t *testing.T) {
	st := state.NewManager()
	supplier := addr(0x01)
	issuer := NewIssuer(st, addr(0x22), addr(0x21), supplier)
	issuer.SetMintFeeBps(30)

	if err := st.Mint(addr(0x21), supplier, big.NewInt(10_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := st.Approve(addr(0x21), supplier, issuer.Token(), big.NewInt(10_000)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := issuer.SupplyUnderlying(big.NewInt(10_000)); err != nil {
		t.Fatalf("supply: %v", err)
	}
	// 30 bps off 10k leaves 9970 proxy tokens.
	if got := st.BalanceOf(addr(0x22), supplier); got.Cmp(big.NewInt(9_970)) != 0 {
		t.Fatalf("minted = %s, want 9970", got)
	}
}

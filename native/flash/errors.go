package flash

import "errors"

var (
	errNilState      = errors.New("flash engine: state not configured")
	errNotConfigured = errors.New("flash engine: trusted pool or ledger not configured")
	errInvalidAmount = errors.New("flash engine: borrowed amount must be positive")
	errInvalidPair   = errors.New("flash engine: pair registration requires an id and a pair")
)

var (
	// ErrUnauthorizedCaller rejects a callback whose invoker is not a
	// configured trusted pool. This check is the executor's sole reentrancy
	// defense and runs before any state is touched.
	ErrUnauthorizedCaller = errors.New("flash engine: callback caller is not a trusted pool")
	// ErrUnexpectedLoanAsset rejects a disbursement denominated in the base
	// asset; the executor only ever borrows the quote asset.
	ErrUnexpectedLoanAsset = errors.New("flash engine: loan disbursed in the base asset")
	// ErrMalformedPayload rejects request data that does not decode to
	// (debtToken, borrower, minProfit).
	ErrMalformedPayload = errors.New("flash engine: malformed loan payload")
	// ErrUnknownIssuer means no proxy-token issuer is registered for the
	// requested debt token.
	ErrUnknownIssuer = errors.New("flash engine: no issuer registered for debt token")
	// ErrInsufficientProfit aborts a settlement whose collateral does not
	// strictly exceed the repayment plus the caller's minimum profit.
	ErrInsufficientProfit = errors.New("flash engine: collateral does not clear repayment plus minimum profit")
	// ErrRepaymentTransferFailed aborts a settlement whose base-asset
	// repayment to the pool could not be completed.
	ErrRepaymentTransferFailed = errors.New("flash engine: repayment transfer to pool failed")
	// ErrProfitTransferFailed aborts a settlement whose residual could not be
	// forwarded to the initiator.
	ErrProfitTransferFailed = errors.New("flash engine: profit transfer to initiator failed")
	// ErrNotAuthorized rejects configuration changes from anyone but the
	// administrative address.
	ErrNotAuthorized = errors.New("flash engine: caller is not the administrator")
)

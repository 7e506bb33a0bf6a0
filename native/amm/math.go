package amm

import (
	"errors"
	"math/big"
)

// Constant-product pools charge a 0.3% trading fee, expressed as the
// 997/1000 multiplier pair to keep the arithmetic integer-only.
var (
	feeNumerator   = big.NewInt(997)
	feeDenominator = big.NewInt(1000)
)

var (
	errDegenerateReserves = errors.New("amm: borrowed amount must be below the quote reserve")
	errInvalidAmount      = errors.New("amm: borrowed amount must be non-negative")
)

// ErrDegenerateReserves is returned when the borrowed amount meets or exceeds
// the quote reserve, which would drive the pricing denominator to zero or
// below. The pool's own pre-checks make this unreachable in practice; the
// executor still refuses to price such a loan rather than clamp it.
var ErrDegenerateReserves = errDegenerateReserves

// FlashRepayAmount computes the base-asset amount owed to a constant-product
// pool for a quote-asset flash borrow:
//
//	owed = floor(baseReserve * quoteAmount * 1000 / ((quoteReserve - quoteAmount) * 997)) + 1
//
// The trailing +1 rounds the floored division up so the pool's invariant
// check never fails by one unit when the loan is repaid.
func FlashRepayAmount(baseReserve, quoteReserve, quoteAmount *big.Int) (*big.Int, error) {
	if quoteAmount == nil || quoteAmount.Sign() < 0 {
		return nil, errInvalidAmount
	}
	if baseReserve == nil || quoteReserve == nil || quoteReserve.Cmp(quoteAmount) <= 0 {
		return nil, errDegenerateReserves
	}
	numerator := new(big.Int).Mul(baseReserve, quoteAmount)
	numerator.Mul(numerator, feeDenominator)
	denominator := new(big.Int).Sub(quoteReserve, quoteAmount)
	denominator.Mul(denominator, feeNumerator)
	owed := numerator.Quo(numerator, denominator)
	return owed.Add(owed, big.NewInt(1)), nil
}

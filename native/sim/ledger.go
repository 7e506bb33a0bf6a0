package sim

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"flashliq/state"
)

// Ledger is an in-process lending ledger. Liquidate burns the repaid proxy
// tokens from the liquidator and releases discounted collateral from the
// custody account — the incentive transfer the live ledger performs.
type Ledger struct {
	state      *state.Manager
	custody    common.Address
	liquidator common.Address
	// collateral granted per unit of proxy debt repaid, as a rational
	// rateNum/rateDen. Above one models the liquidation discount.
	rateNum *big.Int
	rateDen *big.Int
	// fixed, when set, overrides the rate and releases an exact collateral
	// amount regardless of the repaid debt. Used to pin down profit edges.
	fixed *big.Int
}

// NewLedger constructs a ledger releasing collateral from custody to the
// liquidator at the given rate.
func NewLedger(st *state.Manager, custody, liquidator common.Address, rateNum, rateDen *big.Int) *Ledger {
	return &Ledger{state: st, custody: custody, liquidator: liquidator, rateNum: rateNum, rateDen: rateDen}
}

// SetFixedCollateral pins the collateral released by the next liquidations
// to an exact amount. Pass nil to restore rate-based behaviour.
func (l *Ledger) SetFixedCollateral(amount *big.Int) {
	if l == nil {
		return
	}
	if amount == nil {
		l.fixed = nil
		return
	}
	l.fixed = new(big.Int).Set(amount)
}

// Liquidate implements flash.LiquidationLedger.
func (l *Ledger) Liquidate(borrower, debtToken common.Address, repayAmount *big.Int, collateralAsset common.Address) error {
	if l == nil || l.state == nil {
		return errors.New("sim ledger: not initialised")
	}
	if repayAmount == nil || repayAmount.Sign() <= 0 {
		return errors.New("sim ledger: repay amount must be positive")
	}
	if err := l.state.Burn(debtToken, l.liquidator, repayAmount); err != nil {
		return fmt.Errorf("sim ledger: retire debt: %w", err)
	}
	collateral := l.collateralFor(repayAmount)
	if err := l.state.Transfer(collateralAsset, l.custody, l.liquidator, collateral); err != nil {
		return fmt.Errorf("sim ledger: release collateral: %w", err)
	}
	return nil
}

func (l *Ledger) collateralFor(repayAmount *big.Int) *big.Int {
	if l.fixed != nil {
		return new(big.Int).Set(l.fixed)
	}
	out := new(big.Int).Mul(repayAmount, l.rateNum)
	return out.Quo(out, l.rateDen)
}

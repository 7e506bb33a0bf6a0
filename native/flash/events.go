package flash

import (
	"flashliq/state"
)

// EventSettlementCompleted is appended exactly once per successful
// settlement; aborted invocations emit nothing.
const EventSettlementCompleted = "flash.settlement.completed"

func (r *SettlementResult) event() *state.Event {
	attributes := map[string]string{
		"initiator": r.Initiator.Hex(),
		"borrower":  r.Borrower.Hex(),
		"debtToken": r.DebtToken.Hex(),
		"pool":      r.Pool.Hex(),
	}
	if r.BorrowedQuote != nil {
		attributes["borrowed"] = r.BorrowedQuote.String()
	}
	if r.MintedProxy != nil {
		attributes["minted"] = r.MintedProxy.String()
	}
	if r.Collateral != nil {
		attributes["collateral"] = r.Collateral.String()
	}
	if r.Repayment != nil {
		attributes["repayment"] = r.Repayment.String()
	}
	if r.Profit != nil {
		attributes["profit"] = r.Profit.String()
	}
	return &state.Event{Type: EventSettlementCompleted, Attributes: attributes}
}

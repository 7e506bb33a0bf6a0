package server

import (
	"errors"
	"net/http"

	"flashliq/native/flash"
	"flashliq/storage"
)

// statusForError maps engine and storage failures onto HTTP status codes.
// Aborted settlements are client-visible outcomes, not server faults.
func statusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, flash.ErrInsufficientProfit):
		return http.StatusUnprocessableEntity
	case errors.Is(err, flash.ErrUnauthorizedCaller), errors.Is(err, flash.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, flash.ErrMalformedPayload), errors.Is(err, flash.ErrUnexpectedLoanAsset):
		return http.StatusBadRequest
	case errors.Is(err, flash.ErrUnknownIssuer):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// reasonForError labels abort causes for metrics without leaking detail.
func reasonForError(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, flash.ErrInsufficientProfit):
		return "insufficient_profit"
	case errors.Is(err, flash.ErrUnauthorizedCaller):
		return "unauthorized_caller"
	case errors.Is(err, flash.ErrUnexpectedLoanAsset):
		return "unexpected_asset"
	case errors.Is(err, flash.ErrMalformedPayload):
		return "malformed_payload"
	case errors.Is(err, flash.ErrUnknownIssuer):
		return "unknown_issuer"
	case errors.Is(err, flash.ErrRepaymentTransferFailed):
		return "repayment_failed"
	case errors.Is(err, flash.ErrProfitTransferFailed):
		return "profit_transfer_failed"
	default:
		return "internal"
	}
}

// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/buildledger/buildledger/internal/ledger/accounts"
	"github.com/buildledger/buildledger/internal/ledger/bills"
	"github.com/buildledger/buildledger/internal/ledger/deposits"
	"github.com/buildledger/buildledger/internal/ledger/lots"
	"github.com/buildledger/buildledger/internal/ledger/periods"
	"github.com/buildledger/buildledger/internal/ledger/purchaseorders"
	"github.com/buildledger/buildledger/internal/ledger/recon"
	ledgershared "github.com/buildledger/buildledger/internal/ledger/shared"
	"github.com/buildledger/buildledger/internal/shared"
)

var notFoundErrors = []error{
	shared.ErrNotFound,
	accounts.ErrAccountNotFound,
	ledgershared.ErrJournalNotFound,
	bills.ErrBillNotFound,
	deposits.ErrDepositNotFound,
	purchaseorders.ErrPONotFound,
	recon.ErrNotFound,
	lots.ErrLotNotFound,
	periods.ErrPeriodNotFound,
}

var conflictErrors = []error{
	shared.ErrConcurrencyConflict,
	shared.ErrIdempotencyConflict,
	accounts.ErrDuplicateCode,
	purchaseorders.ErrDuplicatePONumber,
	ledgershared.ErrPeriodClosed,
	ledgershared.ErrEntryReversed,
	periods.ErrAlreadyClosed,
	periods.ErrAlreadyOpen,
	periods.ErrOpenReconciliation,
	bills.ErrAlreadyPaid,
	bills.ErrHasPayments,
	recon.ErrAlreadyInProgress,
	recon.ErrNotInProgress,
	recon.ErrNotCompleted,
}

var unprocessableErrors = []error{
	ledgershared.ErrUnbalanced,
	ledgershared.ErrTooFewLines,
	ledgershared.ErrUnknownAccount,
	ledgershared.ErrUnknownLot,
	ledgershared.ErrInvalidStatus,
	bills.ErrLineSumMismatch,
	bills.ErrInvalidPaymentAmount,
	bills.ErrMissingAPAccount,
	deposits.ErrLineSumMismatch,
	deposits.ErrMissingEquityAccount,
	deposits.ErrRevenueAccountRequired,
	deposits.ErrUnknownLine,
	lots.ErrAllocationMismatch,
	lots.ErrNoLotsSelected,
	periods.ErrReopenReasonRequired,
	accounts.ErrTypeImmutable,
	accounts.ErrInvalidType,
	recon.ErrUnknownTransaction,
}

// RespondError maps domain errors to RFC7807 responses. Errors from input
// Validate methods land in the default 400 branch.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "")
	case matches(err, notFoundErrors):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case matches(err, conflictErrors):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case matches(err, unprocessableErrors):
		Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	default:
		Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	}
}

// RespondInternal hides internal failure detail from clients.
func RespondInternal(w http.ResponseWriter) {
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

func matches(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

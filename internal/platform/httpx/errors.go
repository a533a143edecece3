package httpx

import (
	"errors"
	"net/http"

	ledgershared "github.com/bi-platform/bi-ledger/internal/ledger/shared"
	"github.com/bi-platform/bi-ledger/internal/shared"
)

// RespondError maps domain errors to RFC7807 responses. Handlers map their
// module-specific typed errors first and fall back to this.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, ledgershared.ErrEntryNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrValidation),
		errors.Is(err, ledgershared.ErrUnbalanced),
		errors.Is(err, ledgershared.ErrTooFewLines),
		errors.Is(err, ledgershared.ErrInvalidLine),
		errors.Is(err, ledgershared.ErrAccountNotFound):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ledgershared.ErrPeriodLocked):
		Problem(w, http.StatusConflict, "Period Locked", err.Error())
	case errors.Is(err, ledgershared.ErrAlreadyPosted),
		errors.Is(err, ledgershared.ErrEntryPosted),
		errors.Is(err, ledgershared.ErrNumberingConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

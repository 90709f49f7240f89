package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xtrntr/supplylink/internal/market"
)

// StatusFor maps a taxonomy error to its HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, market.ErrNetworkFailure):
		return http.StatusBadGateway
	case errors.Is(err, market.ErrWindowClosed),
		errors.Is(err, market.ErrWindowOpen),
		errors.Is(err, market.ErrPriceNotCompetitive),
		errors.Is(err, market.ErrRequirementClosed):
		return http.StatusConflict
	case errors.Is(err, market.ErrInvalidInput),
		errors.Is(err, market.ErrUnitMismatch),
		errors.Is(err, market.ErrUnknownItem):
		return http.StatusBadRequest
	case errors.Is(err, market.ErrNotOwner),
		errors.Is(err, market.ErrForbiddenRole),
		errors.Is(err, market.ErrProfileIncomplete):
		return http.StatusForbidden
	case errors.Is(err, market.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, market.ErrNotAuthenticated):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as {"error", "code"}. Store failures and unknown
// errors get a generic message; the detail only goes to the log.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	code := market.Code(err)
	msg := err.Error()

	switch {
	case errors.Is(err, market.ErrNetworkFailure):
		msg = market.ErrNetworkFailure.Error()
	case code == "":
		h.Logger.Error("unhandled error", "error", err)
		msg = "Internal server error"
		code = "internal"
	}
	writeMessage(w, status, code, msg)
}

func writeMessage(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

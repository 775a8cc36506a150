package httpserver

import (
	"encoding/json"
	"net/http"

	apierrors "github.com/cedrospay/agentpay/internal/errors"
)

// writeError writes a standardized JSON error envelope. status is used
// as-is; code is surfaced in the body for machine-readable handling.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apierrors.NewErrorResponse(apierrors.ErrorCode(code), message, nil))
}

// writeAPIError writes an error using one of internal/errors' typed codes,
// whose HTTPStatus() determines the response status.
func writeAPIError(w http.ResponseWriter, code apierrors.ErrorCode, message string) {
	apierrors.WriteError(w, code, message, nil)
}

// writeJSON writes v as a 200 OK JSON body.
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

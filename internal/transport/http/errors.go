package http

import (
	"encoding/json"
	"net/http"

	"github.com/smatracka/hotdrop/internal/domain"
)

const (
	codeMethodNotAllowed    = "method_not_allowed"
	codeNotFound            = "not_found"
	codeInvalidRequestBody  = "invalid_request_body"
	codeInvalidID           = "invalid_id"
	codeInvalidCapacity     = "invalid_capacity"
	codeInvalidQuantity     = "invalid_quantity"
	codeProductIDRequired   = "product_id_required"
	codeUserIDRequired      = "user_id_required"
	codeNoLines             = "no_lines"
	codeTooManyLines        = "too_many_lines"
	codeNotAdmitted         = "not_admitted"
	codeDropNotFound        = "drop_not_found"
	codeQueueNotFound       = "queue_not_found"
	codeQueueAlreadyExists  = "queue_already_exists"
	codeProductNotFound     = "product_not_found"
	codeInsufficientStock   = "insufficient_stock"
	codeReservationNotFound = "reservation_not_found"
	codeReservationExpired  = "reservation_expired"
	codeInvalidStatus       = "invalid_reservation_status"
	codeRateLimited         = "rate_limited"
	codeLimiterUnavailable  = "rate_limiter_unavailable"
	codeStorageUnavailable  = "storage_unavailable"
	codeForbidden           = "forbidden"
	codeInternalError       = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeDomainError maps a service error onto its wire status and code.
// Unrecognized errors are reported as an opaque internal error.
func writeDomainError(w http.ResponseWriter, err error) {
	switch err {
	case domain.ErrInvalidCapacity:
		writeError(w, http.StatusBadRequest, codeInvalidCapacity, err.Error())
	case domain.ErrInvalidQuantity:
		writeError(w, http.StatusBadRequest, codeInvalidQuantity, err.Error())
	case domain.ErrProductIDRequired:
		writeError(w, http.StatusBadRequest, codeProductIDRequired, err.Error())
	case domain.ErrUserIDRequired:
		writeError(w, http.StatusBadRequest, codeUserIDRequired, err.Error())
	case domain.ErrNoLines:
		writeError(w, http.StatusBadRequest, codeNoLines, err.Error())
	case domain.ErrTooManyLines:
		writeError(w, http.StatusBadRequest, codeTooManyLines, err.Error())
	case domain.ErrInvalidID:
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	case domain.ErrDropNotFound:
		writeError(w, http.StatusNotFound, codeDropNotFound, err.Error())
	case domain.ErrQueueNotFound:
		writeError(w, http.StatusNotFound, codeQueueNotFound, err.Error())
	case domain.ErrProductNotFound:
		writeError(w, http.StatusNotFound, codeProductNotFound, err.Error())
	case domain.ErrReservationNotFound:
		writeError(w, http.StatusNotFound, codeReservationNotFound, err.Error())
	case domain.ErrQueueAlreadyExists:
		writeError(w, http.StatusConflict, codeQueueAlreadyExists, err.Error())
	case domain.ErrInsufficientStock:
		writeError(w, http.StatusConflict, codeInsufficientStock, err.Error())
	case domain.ErrNotAdmitted:
		writeError(w, http.StatusConflict, codeNotAdmitted, err.Error())
	case domain.ErrInvalidStatus:
		writeError(w, http.StatusConflict, codeInvalidStatus, err.Error())
	case domain.ErrReservationExpired:
		writeError(w, http.StatusGone, codeReservationExpired, err.Error())
	case domain.ErrStorageUnavailable:
		writeError(w, http.StatusServiceUnavailable, codeStorageUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

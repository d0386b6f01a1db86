package domain

import "errors"

var (
	ErrDropNotFound        = errors.New("drop not found")
	ErrQueueNotFound       = errors.New("queue not found")
	ErrQueueAlreadyExists  = errors.New("queue already exists")
	ErrInvalidCapacity     = errors.New("invalid capacity")
	ErrUserIDRequired      = errors.New("user id required")
	ErrNotAdmitted         = errors.New("user not admitted to drop")
	ErrProductIDRequired   = errors.New("product id required")
	ErrProductNotFound     = errors.New("product not found")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrNoLines             = errors.New("reservation has no lines")
	ErrTooManyLines        = errors.New("too many reservation lines")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrReservationExpired  = errors.New("reservation expired")
	ErrInvalidStatus       = errors.New("invalid reservation status")
	ErrInvalidID           = errors.New("invalid id")
	ErrStorageUnavailable  = errors.New("storage unavailable")
)

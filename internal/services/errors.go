package services

import "errors"

// Sentinel errors returned by the application services. Handlers map these
// to HTTP status codes with errors.Is; services wrap them with detail via
// fmt.Errorf("%w: ...") so the chain stays matchable.
var (
	// ErrValidation is returned for malformed or out-of-range input.
	ErrValidation = errors.New("invalid input")

	// ErrUnauthorized is returned when credentials are wrong or the
	// account is not usable yet (unverified email).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the caller's role or ownership does
	// not permit the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateRequest is returned when the borrower already has an
	// active borrowing for the same book.
	ErrDuplicateRequest = errors.New("active request for this book already exists")

	// ErrInvalidState is returned when a lifecycle operation is not valid
	// for the record's current status.
	ErrInvalidState = errors.New("operation not valid for current status")

	// ErrNoStock is returned when a stock-consuming step finds no copy
	// available.
	ErrNoStock = errors.New("no copies available")
)

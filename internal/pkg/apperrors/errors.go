package apperrors

import (
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrInvalidRequest        ErrorType = "INVALID_REQUEST"
	ErrUnauthorized          ErrorType = "UNAUTHORIZED"
	ErrOfferNotFound         ErrorType = "OFFER_NOT_FOUND"
	ErrOfferClosed           ErrorType = "OFFER_CLOSED"
	ErrSignatureInvalid      ErrorType = "SIGNATURE_INVALID"
	ErrSignatureMismatched   ErrorType = "SIGNATURE_MISMATCHED"
	ErrNonceUsed             ErrorType = "NONCE_ALREADY_USED"
	ErrZeroAvailable         ErrorType = "ZERO_AVAILABLE"
	ErrBidTooSmall           ErrorType = "BID_TOO_SMALL"
	ErrPriceTooLow           ErrorType = "PRICE_TOO_LOW"
	ErrTransferFailed        ErrorType = "TRANSFER_FAILED"
	ErrInsufficientBalance   ErrorType = "INSUFFICIENT_BALANCE"
	ErrInsufficientAllowance ErrorType = "INSUFFICIENT_ALLOWANCE"
	ErrNotFound              ErrorType = "NOT_FOUND"
	ErrInternal              ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func Newf(errType ErrorType, format string, args ...any) *AppError {
	return New(errType, fmt.Sprintf(format, args...), nil)
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func NewUnauthorized(msg string) *AppError {
	return New(ErrUnauthorized, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// Is reports whether err carries the given reason code.
func Is(err error, t ErrorType) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Type == t
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidRequest, ErrSignatureInvalid, ErrSignatureMismatched,
		ErrBidTooSmall, ErrPriceTooLow:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrNonceUsed, ErrOfferClosed, ErrZeroAvailable:
		return http.StatusConflict
	case ErrOfferNotFound, ErrNotFound:
		return http.StatusNotFound
	case ErrTransferFailed, ErrInsufficientBalance, ErrInsufficientAllowance:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrSignatureInvalid, ErrSignatureMismatched:
		return "Re-sign the bid against the current domain (chain id and engine address)."
	case ErrNonceUsed:
		return "Use a fresh nonce; this one was settled or cancelled."
	case ErrZeroAvailable, ErrOfferClosed:
		return "The offer has no remaining size; target another offer."
	case ErrTransferFailed:
		return "Check balances and the engine allowance of the bidding asset."
	default:
		return ""
	}
}

// Package errors carries the typed error used across services and the HTTP
// contract each code maps to.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeStateConflict     Code = "STATE_CONFLICT"
	CodeIdempotency       Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeNegativeStock     Code = "NEGATIVE_STOCK"
	CodeSessionExpired    Code = "CHECKOUT_SESSION_EXPIRED"
	CodePayment           Code = "PAYMENT_FAILED"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeDependency        Code = "DEPENDENCY_ERROR"
)

// Metadata is what the HTTP layer may reveal about a code.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

// opaque codes never echo details to the client.
func opaque(status int, msg string) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: msg}
}

func detailed(status int, msg string) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: msg, DetailsAllowed: true}
}

func (m Metadata) retryable() Metadata {
	m.Retryable = true
	return m
}

var codeTable = map[Code]Metadata{
	CodeValidation:        detailed(http.StatusBadRequest, "validation failed"),
	CodeUnauthorized:      opaque(http.StatusUnauthorized, "authentication required"),
	CodeForbidden:         opaque(http.StatusForbidden, "operation not permitted"),
	CodeNotFound:          opaque(http.StatusNotFound, "resource not found"),
	CodeConflict:          opaque(http.StatusConflict, "conflict detected"),
	CodeStateConflict:     detailed(http.StatusUnprocessableEntity, "state transition disallowed"),
	CodeIdempotency:       detailed(http.StatusConflict, "idempotency key reused"),
	CodeInsufficientStock: detailed(http.StatusConflict, "insufficient stock").retryable(),
	CodeNegativeStock:     detailed(http.StatusUnprocessableEntity, "stock cannot go negative"),
	CodeSessionExpired:    opaque(http.StatusGone, "checkout session expired, please restart checkout"),
	CodePayment:           opaque(http.StatusPaymentRequired, "payment failed"),
	CodeInternal:          opaque(http.StatusInternalServerError, "internal server error").retryable(),
	CodeDependency:        detailed(http.StatusServiceUnavailable, "dependency unavailable").retryable(),
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	meta, ok := codeTable[code]
	if !ok {
		return codeTable[CodeInternal]
	}
	return meta
}

// Error is a coded failure. The zero of *Error reads as an internal error.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches code and message to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails sets the payload shown to clients when the code allows it.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the first *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err == nil || !errors.As(err, &typed) {
		return nil
	}
	return typed
}

// IsCode reports whether the first *Error in err's chain has code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// Reason returns details["reason"] when the details are a map, else "".
func Reason(err error) string {
	typed := As(err)
	if typed == nil {
		return ""
	}
	details, ok := typed.details.(map[string]any)
	if !ok {
		return ""
	}
	reason, _ := details["reason"].(string)
	return reason
}

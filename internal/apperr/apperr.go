package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindProductNotFound
	KindOrderNotFound
	KindInvalidStatus
	KindValidation
	KindInsufficientStock
	KindDuplicateName
	KindStatusInUse
	KindInvalidTransition
	KindForbidden
	KindUnauthorized
	KindConfiguration
	KindConflict
)

var kindCodes = map[Kind]string{
	KindInternal:          "internal_error",
	KindNotFound:          "not_found",
	KindProductNotFound:   "product_not_found",
	KindOrderNotFound:     "order_not_found",
	KindInvalidStatus:     "invalid_status",
	KindValidation:        "validation_error",
	KindInsufficientStock: "insufficient_stock",
	KindDuplicateName:     "duplicate_name",
	KindStatusInUse:       "status_in_use",
	KindInvalidTransition: "invalid_transition",
	KindForbidden:         "forbidden",
	KindUnauthorized:      "unauthorized",
	KindConfiguration:     "configuration_error",
	KindConflict:          "conflict",
}

// Code is the stable machine-readable name of the kind.
func (k Kind) Code() string {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return kindCodes[KindInternal]
}

func (k Kind) String() string { return k.Code() }

// Error is the typed failure returned by every service operation.
// Message is safe to show to callers; Err is the underlying cause and is only logged.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Code(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Code(), e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, apperr.New(KindNotFound, "")) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) With(key string, v any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = v
	return e
}

// KindOf returns the kind of the first *Error in the chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Constructors for the taxonomy used across services.

func NotFound(entity, id string) *Error {
	return New(KindNotFound, "%s %s not found", entity, id).With("id", id)
}

func ProductNotFound(id string) *Error {
	return New(KindProductNotFound, "product with id %s not found", id).With("product_id", id)
}

func OrderNotFound(id string) *Error {
	return New(KindOrderNotFound, "order %s not found", id).With("order_id", id)
}

func InvalidStatus(name string) *Error {
	return New(KindInvalidStatus, "invalid status provided: %q", name).With("status", name)
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func InsufficientStock(productID string, available, requested int) *Error {
	return New(KindInsufficientStock, "insufficient stock for product %s: available %d, requested %d", productID, available, requested).
		With("product_id", productID).
		With("available", available).
		With("requested", requested)
}

func DuplicateName(entity, name string) *Error {
	return New(KindDuplicateName, "%s name %q already exists", entity, name).With("name", name)
}

func StatusInUse(id string) *Error {
	return New(KindStatusInUse, "status %s is used by an order; create a new status for obsolete items", id).With("status_id", id)
}

func InvalidTransition(from, to string) *Error {
	return New(KindInvalidTransition, "cannot move order from %q to %q", from, to).
		With("from", from).
		With("to", to)
}

func Forbidden(format string, args ...any) *Error {
	return New(KindForbidden, format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return New(KindUnauthorized, format, args...)
}

func Configuration(format string, args ...any) *Error {
	return New(KindConfiguration, format, args...)
}

func Conflict(err error, format string, args ...any) *Error {
	return Wrap(err, KindConflict, format, args...)
}

func Internal(err error) *Error {
	return Wrap(err, KindInternal, "internal server error")
}

// Package shared contains the domain errors used across baho-bot packages.
package shared

import (
	"errors"
	"fmt"
)

// Kinds. Every DomainError belongs to one of them.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
)

// DomainError carries a stable Code that the bot maps to reply texts.
// Two DomainErrors with the same Code are equal under errors.Is.
type DomainError struct {
	Domain  string
	Op      string
	Code    string
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	msg := fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if errors.As(target, &t) && t.Code != "" {
		return t.Code == e.Code
	}
	return errors.Is(e.Kind, target) || (e.Err != nil && errors.Is(e.Err, target))
}

func newError(domain, op, code string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Code: code, Kind: kind, Message: message}
}

// WrapError attaches cause to a copy of base.
func WrapError(base *DomainError, cause error) *DomainError {
	e := *base
	e.Err = cause
	return &e
}

// Code returns the code of the first DomainError in err's chain, or "".
func Code(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsNotFound reports whether err belongs to ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// ══════════════════════════════════════════════════════════════════════════════
// CODES
// ══════════════════════════════════════════════════════════════════════════════

// Login.
var (
	ErrUserNotFound    = newError("auth", "Authenticate", "USER_NOT_FOUND", ErrUnauthorized, "user not found")
	ErrInvalidPassword = newError("auth", "Authenticate", "INVALID_PASSWORD", ErrUnauthorized, "invalid password")
	ErrNotStudent      = newError("auth", "Authenticate", "NOT_STUDENT", ErrForbidden, "account is not a student")
	ErrInactiveUser    = newError("auth", "Authenticate", "INACTIVE_USER", ErrForbidden, "user is not active")
)

// Guardian links.
var (
	ErrAlreadyLinked = newError("recipient", "Link", "ALREADY_LINKED", ErrAlreadyExists, "chat already linked to this student")
	ErrNotLinked     = newError("recipient", "Find", "NOT_LINKED", ErrNotFound, "chat is not linked to any student")
)

// Data integrity.
var (
	ErrInvalidGrade   = newError("report", "Build", "INVALID_GRADE", ErrInvalidEntity, "grade value out of range")
	ErrInvalidHoliday = newError("calendar", "Validate", "INVALID_HOLIDAY", ErrInvalidEntity, "holiday must populate exactly one variant")
)

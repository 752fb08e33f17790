// Package apperr is the billing error taxonomy. Services return *Error values and the
// HTTP layer maps Kind to a status code.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindProvider   Kind = "provider"
	KindSignature  Kind = "signature"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrProvider   = &Error{Kind: KindProvider}
	ErrSignature  = &Error{Kind: KindSignature}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any error of the same kind against a bare sentinel (ErrNotFound etc).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" && t.Err == nil {
		return e.Kind == t.Kind
	}
	return e == t
}

func Validation(msg string) error { return &Error{Kind: KindValidation, Message: msg} }

func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Provider(msg string, err error) error { return &Error{Kind: KindProvider, Message: msg, Err: err} }

func Signature(msg string) error { return &Error{Kind: KindSignature, Message: msg} }

func NotFound(msg string) error { return &Error{Kind: KindNotFound, Message: msg} }

func Conflict(msg string) error { return &Error{Kind: KindConflict, Message: msg} }

// KindOf returns the kind of the first *Error in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MessageOf returns the user facing message of the first *Error in err's chain.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

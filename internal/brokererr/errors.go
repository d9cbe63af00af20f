// Package brokererr defines the failure kinds shared by every broker client.
package brokererr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind identifies a failure category. The set is closed and flat.
type Kind string

const (
	KindInput         Kind = "InputError"
	KindResponse      Kind = "ResponseError"
	KindTokenDownload Kind = "TokenDownloadError"
	KindTimeout       Kind = "RequestTimeout"
	KindNetwork       Kind = "NetworkError"
	KindBroker        Kind = "BrokerError"
)

// Sentinels for errors.Is matching on kind alone.
var (
	ErrInput         = &Error{Kind: KindInput}
	ErrResponse      = &Error{Kind: KindResponse}
	ErrTokenDownload = &Error{Kind: KindTokenDownload}
	ErrTimeout       = &Error{Kind: KindTimeout}
	ErrNetwork       = &Error{Kind: KindNetwork}
	ErrBroker        = &Error{Kind: KindBroker}
)

// Error is a categorised failure. The detail payload is either Message or,
// for structured failures, Fields.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]any
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	detail := e.Detail()
	if detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, detail)
}

// Detail renders the payload without the kind prefix.
func (e *Error) Detail() string {
	if len(e.Fields) == 0 {
		return e.Message
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Fields[k]))
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so sentinels compare by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an error of the given kind with a message payload
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf creates an error of the given kind with a formatted message
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithFields creates an error carrying a structured payload
func WithFields(kind Kind, fields map[string]any) *Error {
	return &Error{Kind: kind, Fields: fields}
}

// Wrap creates an error of the given kind caused by err
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// FieldsOf returns the structured payload of err, or nil.
func FieldsOf(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// Package errors holds the error type shared across the flume client: every
// failure an operation returns is either a local validation problem, a missing
// piece of client configuration, or a failure surfaced by the transport.
package errors

import (
	"errors"
	"fmt"
)

// Kind partitions errors by where they came from.
type Kind int

const (
	// KindTransport is the default: the request was sent and the transport
	// (network, serialization, or the API itself) failed.
	KindTransport Kind = iota
	// KindValidation means an argument was rejected locally; no request
	// was ever issued.
	KindValidation
	// KindConfig means the client is missing configuration the operation
	// needs; no request was ever issued.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConfig:
		return "config"
	default:
		return "transport"
	}
}

// Error represents a universal error type between the client's components.
type Error struct {
	Kind    Kind
	Status  int   // HTTP status for transport errors, zero otherwise
	Err     error // The error this wraps
	Details []Detail
}

// Detail names the parameter that caused a validation failure.
type Detail struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

func (e *Error) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("%s: %s, details: %v", e.Kind, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds an *Error from whatever it's given: a string or error becomes the
// wrapped cause, a Kind tags it, an int is the HTTP status, and Details are
// appended.
func E(args ...any) *Error {
	ret := &Error{
		Kind: KindTransport,
	}

	for _, arg := range args {
		switch arg := arg.(type) {
		case string:
			ret.Err = errors.New(arg)
		case error:
			ret.Err = arg
		case Kind:
			ret.Kind = arg
		case int:
			ret.Status = arg
		case Detail:
			ret.Details = append(ret.Details, arg)
		case []Detail:
			ret.Details = append(ret.Details, arg...)
		}
	}

	return ret
}

// IsValidation reports whether err is a local validation failure.
func IsValidation(err error) bool {
	return is(err, KindValidation)
}

// IsConfig reports whether err is a missing-configuration failure.
func IsConfig(err error) bool {
	return is(err, KindConfig)
}

// IsTransport reports whether err came back from the transport.
func IsTransport(err error) bool {
	return is(err, KindTransport)
}

func is(err error, kind Kind) bool {
	e := &Error{}
	return errors.As(err, &e) && e.Kind == kind
}

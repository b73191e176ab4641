// Package apperr classifies every failure the service can surface into one
// error type with a fixed HTTP status per kind.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	// KindCrypto is a password hashing library fault.
	KindCrypto Kind = iota + 1
	// KindIO is a configuration or resource read fault.
	KindIO
	// KindConfigParse is a malformed configuration.
	KindConfigParse
	// KindStorage is a connection or query fault.
	KindStorage
	// KindBusiness is a semantically invalid request: duplicate account,
	// unknown email, wrong password.
	KindBusiness
)

var kinds = []Kind{KindCrypto, KindIO, KindConfigParse, KindStorage, KindBusiness}

// Kinds lists every kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

func (k Kind) String() string {
	switch k {
	case KindCrypto:
		return "crypto_error"
	case KindIO:
		return "io_error"
	case KindConfigParse:
		return "config_parse_error"
	case KindStorage:
		return "storage_error"
	case KindBusiness:
		return "business_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// HTTPStatus maps a kind to the transport status. Crypto faults are reported
// as client faults so internal failure detail is not advertised as a server
// error.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindCrypto, KindBusiness:
		return http.StatusBadRequest
	case KindIO, KindConfigParse, KindStorage:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ServerFault reports whether the kind maps to a 5xx status.
func (k Kind) ServerFault() bool {
	return k.HTTPStatus() >= http.StatusInternalServerError
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Crypto(err error) *Error {
	return &Error{Kind: KindCrypto, Message: "argon2 password hash error", Err: err}
}

func IO(err error) *Error {
	return &Error{Kind: KindIO, Message: "io error", Err: err}
}

func ConfigParse(err error) *Error {
	return &Error{Kind: KindConfigParse, Message: "config parse error", Err: err}
}

func Storage(err error) *Error {
	return &Error{Kind: KindStorage, Message: "storage error", Err: err}
}

// Business wraps a domain sentinel. The sentinel text is the whole message.
func Business(err error) *Error {
	return &Error{Kind: KindBusiness, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain. Unclassified
// errors are treated as server faults.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

// Status is KindOf(err).HTTPStatus().
func Status(err error) int {
	return KindOf(err).HTTPStatus()
}

const genericServerMessage = "internal server error"

// PublicMessage is the text shown to callers. With hideInternal set,
// server-fault kinds are replaced by a generic message so driver or file
// system text does not leak.
func PublicMessage(err error, hideInternal bool) string {
	if err == nil {
		return ""
	}
	if hideInternal && KindOf(err).ServerFault() {
		return genericServerMessage
	}
	return err.Error()
}

// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

// Package apperr defines the shared error taxonomy used across the
// ingestion, storage, and normalization pipeline. Every boundary-crossing
// error (filesystem, database, keychain, HTTP, parsing, configuration)
// is wrapped into an *Error so callers can branch on Kind without parsing
// strings, while a single sanitized Summary stays safe to surface to a
// user or write to the telemetry sink.
package apperr

import (
	"errors"
	"fmt"
	"regexp"
)

// Kind classifies the origin of an error.
type Kind int

const (
	// KindPath indicates application data path resolution failed.
	KindPath Kind = iota
	// KindIO indicates a filesystem error.
	KindIO
	// KindDatabase indicates an underlying store error.
	KindDatabase
	// KindKeychain indicates a secret backend error.
	KindKeychain
	// KindJSON indicates a (de)serialization mismatch.
	KindJSON
	// KindHTTP indicates a transport error; carries an optional status
	// code, host, and classification.
	KindHTTP
	// KindCSV indicates a structural decoding failure in tabular input.
	KindCSV
	// KindParse indicates a structural decoding failure.
	KindParse
	// KindConfig indicates an invariant violated by configuration or
	// caller input.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindPath:
		return "Path"
	case KindIO:
		return "Io"
	case KindDatabase:
		return "Database"
	case KindKeychain:
		return "Keychain"
	case KindJSON:
		return "Json"
	case KindHTTP:
		return "Http"
	case KindCSV:
		return "Csv"
	case KindParse:
		return "Parse"
	case KindConfig:
		return "Config"
	default:
		return "Unknown"
	}
}

// HTTPClass further classifies a KindHTTP error.
type HTTPClass int

const (
	HTTPClassNone HTTPClass = iota
	HTTPClassTimeout
	HTTPClassConnect
	HTTPClassRateLimited
	HTTPClassOther
)

// Error is the shared application error type. It wraps an underlying
// cause while carrying a machine-readable Kind and enough structured
// detail to render a sanitized summary.
type Error struct {
	Kind       Kind
	Message    string // caller-supplied message, used verbatim only for KindConfig
	HTTPStatus int
	HTTPHost   string
	HTTPClass  HTTPClass
	Details    []string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Kind, RedactIDs(e.Cause.Error()))
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// idPathPattern matches the opaque Drive identifiers that show up in
// error strings crossing a process boundary (request URLs, API error
// messages): a /files/<id> path segment or a fileId=/driveId=/
// resourceKey=<id> query parameter.
var idPathPattern = regexp.MustCompile(`(?i)(/files/|fileId=|driveId=|resourceKey=)[A-Za-z0-9_-]+`)

// RedactIDs scrubs Drive file/resource identifiers from s, replacing
// each one with its key and a "<redacted>" placeholder. Every error
// string this package hands back to a caller (Error, AllDetails) is
// passed through it first.
func RedactIDs(s string) string {
	return idPathPattern.ReplaceAllString(s, "${1}<redacted>")
}

func (e *Error) Unwrap() error { return e.Cause }

// Summary returns the first-line, sanitized, user-visible summary for
// this error, per the taxonomy's user-visible summary mapping.
func (e *Error) Summary() string {
	switch e.Kind {
	case KindHTTP:
		switch e.HTTPClass {
		case HTTPClassTimeout:
			return "request timed out"
		case HTTPClassRateLimited:
			return "rate limit was hit"
		case HTTPClassConnect:
			return "unable to reach endpoint"
		default:
			return "request failed"
		}
	case KindParse:
		return "parsing failed"
	case KindIO:
		return "failed to persist data locally"
	case KindDatabase:
		return "database write failed"
	case KindConfig:
		if e.Message != "" {
			return e.Message
		}
		return "invalid configuration"
	case KindKeychain:
		return "secure storage not accessible"
	default:
		return "operation failed"
	}
}

// AllDetails returns Details plus, for KindHTTP, the status/host pair
// required by the summary mapping table.
func (e *Error) AllDetails() []string {
	details := make([]string, len(e.Details))
	for i, d := range e.Details {
		details[i] = RedactIDs(d)
	}
	if e.Kind == KindHTTP && e.HTTPClass == HTTPClassOther {
		if e.HTTPStatus != 0 {
			details = append(details, fmt.Sprintf("status=%d", e.HTTPStatus))
		}
		if e.HTTPHost != "" {
			details = append(details, fmt.Sprintf("host=%s", RedactIDs(e.HTTPHost)))
		}
	}
	return details
}

// New constructs an *Error of the given kind wrapping cause, with an
// optional caller message (used verbatim for KindConfig summaries).
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Path wraps cause as a KindPath error.
func Path(message string, cause error) *Error { return New(KindPath, message, cause) }

// IO wraps cause as a KindIO error.
func IO(cause error) *Error { return New(KindIO, "", cause) }

// Database wraps cause as a KindDatabase error.
func Database(cause error) *Error { return New(KindDatabase, "", cause) }

// Keychain wraps cause as a KindKeychain error.
func Keychain(cause error) *Error { return New(KindKeychain, "", cause) }

// JSON wraps cause as a KindJSON error.
func JSON(cause error) *Error { return New(KindJSON, "", cause) }

// Config constructs a KindConfig error carrying a caller-supplied message.
func Config(message string) *Error { return New(KindConfig, message, errors.New(message)) }

// Parse constructs a KindParse error with a sanitized detail.
func Parse(detail string, cause error) *Error {
	e := New(KindParse, "", cause)
	if detail != "" {
		e.Details = []string{detail}
	}
	return e
}

// HTTP constructs a KindHTTP error with the given classification.
func HTTP(class HTTPClass, status int, host string, cause error) *Error {
	return &Error{Kind: KindHTTP, HTTPClass: class, HTTPStatus: status, HTTPHost: host, Cause: cause}
}

// As is a convenience wrapper over errors.As for *Error.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}

// KindOf returns the Kind of err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

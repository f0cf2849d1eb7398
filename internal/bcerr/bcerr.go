// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package bcerr enumerates the outcomes a crawl step can fail with.

These are worker-loop errors, not HTTP-facing ones: the collection and
item workers branch on [Kind] to decide whether to sleep, mark an entity
done, or just log and retry on the next tick. Only once a failure
surfaces at the HTTP boundary does it get translated to 'apperr'.
*/
package bcerr

import "fmt"

// Kind classifies why a crawl step did not complete successfully.
type Kind int

const (
	// KindNetwork covers transport failures: DNS, TLS, connection reset,
	// timeouts, and any non-429/404 HTTP status.
	KindNetwork Kind = iota

	// KindRateLimit is a 429 response from the remote service.
	KindRateLimit

	// KindNotFound is a 404 response, or an item whose URL is not a
	// Bandcamp subdomain, or a subscription page the crawler ignores.
	KindNotFound

	// KindSerialization is a 2xx response whose JSON body does not match
	// the expected shape.
	KindSerialization

	// KindPage is a 2xx response whose HTML is missing an expected
	// attachment point (the embedded JSON blob).
	KindPage

	// KindDbPrepare, KindDbRead, KindDbWrite, KindDbPool, and KindDbResult
	// name the store-failure kinds. Nothing in this module constructs
	// them: store errors reach the workers unclassified and take their
	// log-and-retry branch.
	KindDbPrepare
	KindDbRead
	KindDbWrite
	KindDbPool
	KindDbResult
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindRateLimit:
		return "rate_limit"
	case KindNotFound:
		return "not_found"
	case KindSerialization:
		return "serialization"
	case KindPage:
		return "page"
	case KindDbPrepare:
		return "db_prepare"
	case KindDbRead:
		return "db_read"
	case KindDbWrite:
		return "db_write"
	case KindDbPool:
		return "db_pool"
	case KindDbResult:
		return "db_result"
	default:
		return "unknown"
	}
}

// Error wraps a [Kind] with the underlying cause, if any.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an [Error] of the given kind wrapping cause.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// Is reports whether err is a [*Error] of the given kind.
func Is(err error, kind Kind) bool {
	var bcErr *Error
	if e, ok := err.(*Error); ok {
		bcErr = e
	} else {
		return false
	}
	return bcErr.Kind == kind
}

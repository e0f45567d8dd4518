package governor

import (
	"time"

	"github.com/sluicehq/sluice/internal/upstream"
)

// Kind is the outcome class of a governed call.
type Kind string

const (
	KindOK              Kind = "ok"
	KindBlockedByPolicy Kind = "blocked_by_policy"
	KindRateLimited     Kind = "rate_limited"
	KindAPIError        Kind = "api_error"
	KindTransportError  Kind = "transport_error"
)

// Result is the outcome of a governed call. The governor never returns a Go
// error from Call: the caller has exactly one failure path, switching on
// Kind.
type Result struct {
	Kind    Kind
	Payload any

	// APIKind, Code and Message are set for KindAPIError; Message is also
	// set for the other failure kinds.
	APIKind upstream.ErrorKind
	Code    int
	Message string

	// RetryAfter is set for KindRateLimited: how long until the cool-down
	// window ends.
	RetryAfter time.Duration
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Kind == KindOK }

// LastError is the most recent failure observed by the governor, kept for
// diagnostics.
type LastError struct {
	Kind    Kind
	Message string
	At      time.Time
}

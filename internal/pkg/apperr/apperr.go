// Package apperr classifies every failure the API surfaces. External RPC
// errors are wrapped at the boundary they cross; handlers map the classes
// onto HTTP statuses and never leak raw upstream payloads.
package apperr

import (
	"errors"
	"fmt"
)

// ErrAuthRequired means the request carried no usable bearer token.
var ErrAuthRequired = errors.New("authentication required")

// EntitlementDenied is returned by the access gate; Reason is safe to show
// to the end user as an upgrade prompt.
type EntitlementDenied struct {
	Reason string
}

func (e *EntitlementDenied) Error() string {
	return fmt.Sprintf("entitlement denied: %s", e.Reason)
}

// UpstreamUnavailable wraps network failures and non-2xx responses from the
// assistant or billing provider. Safe for the caller to retry; never
// retried internally.
type UpstreamUnavailable struct {
	Op     string
	Detail string
	Err    error
}

func (e *UpstreamUnavailable) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("upstream unavailable during %s: %s", e.Op, e.Detail)
	}
	return fmt.Sprintf("upstream unavailable during %s", e.Op)
}

func (e *UpstreamUnavailable) Unwrap() error { return e.Err }

// AssistantRunFailed is terminal for a turn: the assistant service marked
// the run failed and reported a reason.
type AssistantRunFailed struct {
	Code    string
	Message string
}

func (e *AssistantRunFailed) Error() string {
	return fmt.Sprintf("assistant run failed: %s: %s", e.Code, e.Message)
}

// RunTimedOut means a run stayed queued/in-progress past the turn deadline.
type RunTimedOut struct {
	RunID string
}

func (e *RunTimedOut) Error() string {
	return fmt.Sprintf("assistant run %s did not finish before the turn deadline", e.RunID)
}

// DataIntegrityFault marks state no correct writer can produce, such as an
// unknown plan value. Denied by default and logged for operator attention.
type DataIntegrityFault struct {
	Detail string
}

func (e *DataIntegrityFault) Error() string {
	return fmt.Sprintf("data integrity fault: %s", e.Detail)
}

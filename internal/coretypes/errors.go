// Package coretypes holds the domain model shared across orchestrator
// components: sessions, executions, events, tools, approvals, scheduled
// tasks, and the error-kind taxonomy surfaced at the boundary.
package coretypes

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cratos-ai/orchestrator/internal/secrets"
)

// ErrorKind categorizes an error surfaced by the orchestrator core so that
// gateways and channel adapters can render a stable, sanitized message
// without inspecting error strings.
type ErrorKind string

const (
	ErrorRateLimit       ErrorKind = "rate_limit"
	ErrorProviderAuth    ErrorKind = "provider_auth"
	ErrorProviderServer  ErrorKind = "provider_server"
	ErrorTimeout         ErrorKind = "timeout"
	ErrorInvalidArgument ErrorKind = "invalid_argument"
	ErrorSessionNotFound ErrorKind = "session_not_found"
	ErrorExecNotFound    ErrorKind = "execution_not_found"
	ErrorPermission      ErrorKind = "permission_denied"
	ErrorApprovalDenied  ErrorKind = "approval_denied"
	ErrorApprovalExpired ErrorKind = "approval_expired"
	ErrorBudgetExceeded  ErrorKind = "budget_exceeded"
	ErrorCancelled       ErrorKind = "cancelled"
	ErrorInternal        ErrorKind = "internal"
)

// OrchestratorError wraps an underlying error with a stable Kind and an
// already-sanitized user-visible message.
type OrchestratorError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *OrchestratorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *OrchestratorError) Unwrap() error { return e.Cause }

// NewError builds an OrchestratorError carrying the sanitized user message
// for its kind.
func NewError(kind ErrorKind, cause error) *OrchestratorError {
	return &OrchestratorError{Kind: kind, Message: Sanitize(kind, cause), Cause: cause}
}

// Sanitize produces the short, locale-neutral message shown to end users,
// never echoing provider error text verbatim.
func Sanitize(kind ErrorKind, cause error) string {
	switch kind {
	case ErrorRateLimit:
		return "too many requests, try again in a moment"
	case ErrorProviderAuth:
		return "configuration error, contact operator"
	case ErrorProviderServer:
		return "temporary service issue, try again"
	case ErrorTimeout:
		return "the request took too long and was stopped"
	case ErrorApprovalDenied:
		return "that action was not approved"
	case ErrorApprovalExpired:
		return "the approval request expired before a decision was made"
	case ErrorBudgetExceeded:
		return "the request exceeded its time or token budget"
	case ErrorCancelled:
		return "the request was cancelled"
	default:
		hint := ""
		if cause != nil {
			hint = secrets.Mask(cause.Error())
			if len(hint) > 60 {
				hint = hint[:60]
			}
		}
		if hint == "" {
			return "something went wrong, please try again"
		}
		return "something went wrong: " + hint
	}
}

// KindOf classifies a raw provider/transport error into an ErrorKind using
// substring heuristics, mirroring the donor's classifyProviderError /
// classifyToolError pattern.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorInternal
	}
	var oe *OrchestratorError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "rate limit"), strings.Contains(s, "429"), strings.Contains(s, "quota"):
		return ErrorRateLimit
	case strings.Contains(s, "401"), strings.Contains(s, "403"), strings.Contains(s, "unauthorized"), strings.Contains(s, "forbidden"):
		return ErrorProviderAuth
	case strings.Contains(s, "500"), strings.Contains(s, "502"), strings.Contains(s, "503"), strings.Contains(s, "504"):
		return ErrorProviderServer
	case strings.Contains(s, "timeout"), strings.Contains(s, "deadline exceeded"):
		return ErrorTimeout
	case strings.Contains(s, "context canceled"), strings.Contains(s, "cancelled"), strings.Contains(s, "canceled"):
		return ErrorCancelled
	case strings.Contains(s, "invalid"), strings.Contains(s, "validation"), strings.Contains(s, "required field"):
		return ErrorInvalidArgument
	default:
		return ErrorInternal
	}
}

// IsFallbackEligible reports whether an error should trigger engaging the
// sticky fallback provider: rate limit, server 5xx, network error, or a
// provider explicitly marked unhealthy. Grounded on
// orchestrator/planning.rs's is_fallback_eligible via sanitize.rs.
func IsFallbackEligible(err error) bool {
	switch KindOf(err) {
	case ErrorRateLimit, ErrorProviderServer, ErrorTimeout:
		return true
	}
	s := strings.ToLower(fmt.Sprint(err))
	return strings.Contains(s, "connection") || strings.Contains(s, "unreachable") || strings.Contains(s, "unhealthy")
}

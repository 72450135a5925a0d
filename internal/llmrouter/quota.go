package llmrouter

import (
	"strconv"
	"time"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
)

// ParseResetHeader interprets a provider's rate-limit reset header value,
// which may be an absolute RFC3339 timestamp, a Unix epoch seconds
// string, or a Go-style duration string ("6m0s", "200ms") meaning
// "resets after this much time from now".
func ParseResetHeader(value string, now time.Time) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(secs, 0), true
	}
	if d, err := time.ParseDuration(value); err == nil {
		return now.Add(d), true
	}
	return time.Time{}, false
}

// BuildQuotaState assembles a QuotaState from parsed header values.
// Pointer fields left nil mean "unknown".
func BuildQuotaState(provider string, requestsLimit, requestsRemaining, tokensLimit, tokensRemaining *int64, resetAt *time.Time) *coretypes.QuotaState {
	return &coretypes.QuotaState{
		Provider:          provider,
		RequestsLimit:     requestsLimit,
		RequestsRemaining: requestsRemaining,
		TokensLimit:       tokensLimit,
		TokensRemaining:   tokensRemaining,
		ResetAt:           resetAt,
	}
}

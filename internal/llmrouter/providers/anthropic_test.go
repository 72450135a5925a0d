package providers

import (
	"net/http"
	"testing"
)

func TestQuotaFromHeadersParsesKnownHeaders(t *testing.T) {
	resp := &http.Response{Header: http.Header{
		"Anthropic-Ratelimit-Requests-Limit":     {"1000"},
		"Anthropic-Ratelimit-Requests-Remaining": {"998"},
		"Anthropic-Ratelimit-Tokens-Limit":       {"100000"},
		"Anthropic-Ratelimit-Tokens-Remaining":   {"5000"},
		"Anthropic-Ratelimit-Tokens-Reset":       {"30s"},
	}}

	q := quotaFromHeaders("anthropic", resp)
	if q == nil {
		t.Fatal("expected a non-nil QuotaState")
	}
	if q.Provider != "anthropic" {
		t.Fatalf("expected provider anthropic, got %s", q.Provider)
	}
	if q.RequestsLimit == nil || *q.RequestsLimit != 1000 {
		t.Fatalf("expected RequestsLimit 1000, got %v", q.RequestsLimit)
	}
	if q.TokensRemaining == nil || *q.TokensRemaining != 5000 {
		t.Fatalf("expected TokensRemaining 5000, got %v", q.TokensRemaining)
	}
	if q.ResetAt == nil {
		t.Fatal("expected ResetAt to be parsed from the reset header")
	}
}

func TestQuotaFromHeadersReturnsNilWithoutRateLimitHeaders(t *testing.T) {
	if q := quotaFromHeaders("anthropic", &http.Response{Header: http.Header{}}); q != nil {
		t.Fatalf("expected nil QuotaState, got %+v", q)
	}
	if q := quotaFromHeaders("anthropic", nil); q != nil {
		t.Fatalf("expected nil QuotaState for nil response, got %+v", q)
	}
}

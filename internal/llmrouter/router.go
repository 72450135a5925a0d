package llmrouter

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
	"github.com/cratos-ai/orchestrator/internal/eventbus"
	"github.com/cratos-ai/orchestrator/internal/secrets"
)

// CircuitConfig configures per-provider health tracking, grounded on the
// donor's FailoverOrchestrator (internal/agent/failover.go).
type CircuitConfig struct {
	FailureThreshold int
	OpenDuration     time.Duration
}

// DefaultCircuitConfig mirrors the donor's failover defaults.
func DefaultCircuitConfig() CircuitConfig {
	return CircuitConfig{FailureThreshold: 3, OpenDuration: 30 * time.Second}
}

type providerState struct {
	failures  int
	openSince time.Time
	open      bool
}

func (s *providerState) available(cfg CircuitConfig) bool {
	if !s.open {
		return true
	}
	return time.Since(s.openSince) > cfg.OpenDuration
}

// ExecutionFallback threads sticky-fallback state through a single
// execution. Zero value is
// "no fallback engaged yet".
type ExecutionFallback struct {
	Provider string
	Sticky   bool
}

// Router selects a concrete Provider per request and applies timeout,
// fallback, quota, and cost-tracking policy.
type Router struct {
	mu              sync.Mutex
	providers       map[string]Provider
	order           []string // fallback order after the default
	defaultProvider string
	circuitCfg      CircuitConfig
	states          map[string]*providerState
	quotas          map[string]*coretypes.QuotaState
	prices          map[string]ModelPrice
	costLedger      map[string]float64 // keyed by "provider/model" or execution id, caller's choice
	limiters        map[string]*rate.Limiter
	bus             *eventbus.Bus
}

// ModelPrice is USD per 1M tokens for a given model.
type ModelPrice struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// NewRouter creates a Router with the given default provider name.
func NewRouter(defaultProvider string, circuitCfg CircuitConfig) *Router {
	return &Router{
		providers:       map[string]Provider{},
		defaultProvider: defaultProvider,
		circuitCfg:      circuitCfg,
		states:          map[string]*providerState{},
		quotas:          map[string]*coretypes.QuotaState{},
		prices:          map[string]ModelPrice{},
		costLedger:      map[string]float64{},
		limiters:        map[string]*rate.Limiter{},
	}
}

// Register adds a provider and appends it to the fallback order.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	r.order = append(r.order, p.Name())
	r.states[p.Name()] = &providerState{}
}

// SetEventBus attaches the Event Bus that UpdateQuota publishes
// QuotaWarning events to. A Router with no bus attached still tracks
// quota state (Quota/UpdateQuota) but never publishes a warning.
func (r *Router) SetEventBus(bus *eventbus.Bus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bus = bus
}

// SetRateLimit caps outbound requests to a provider at rps requests per
// second with the given burst. Call before Dispatch; a provider with no
// configured limit dispatches unthrottled.
func (r *Router) SetRateLimit(provider string, rps float64, burst int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[provider] = rate.NewLimiter(rate.Limit(rps), burst)
}

// SetPrice registers a per-model price for cost tracking.
func (r *Router) SetPrice(model string, price ModelPrice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prices[model] = price
}

func (r *Router) recordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.states[name]
	if s != nil {
		s.failures = 0
		s.open = false
	}
}

func (r *Router) recordFailure(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.states[name]
	if s == nil {
		return
	}
	s.failures++
	if s.failures >= r.circuitCfg.FailureThreshold {
		s.open = true
		s.openSince = time.Now()
	}
}

func (r *Router) isHealthy(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.states[name]
	if s == nil {
		return true
	}
	return s.available(r.circuitCfg)
}

// candidateOrder returns the provider selection order: explicit request
// override, then sticky fallback (if engaged), then configured default,
// then remaining healthy providers in registration order.
func (r *Router) candidateOrder(explicit string, fallback *ExecutionFallback) []string {
	r.mu.Lock()
	order := append([]string(nil), r.order...)
	def := r.defaultProvider
	r.mu.Unlock()

	seen := map[string]bool{}
	var out []string
	push := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}

	if explicit != "" {
		push(explicit)
	}
	if fallback != nil && fallback.Sticky {
		push(fallback.Provider)
	}
	push(def)
	for _, name := range order {
		push(name)
	}
	return out
}

// Dispatch selects a provider and completes req under a 120s hard
// timeout, applying fallback and sticky-fallback rules. explicitProvider
// may be empty. fallback may be nil if the caller does not need
// per-execution stickiness (e.g. a one-shot classification call).
func (r *Router) Dispatch(ctx context.Context, req Request, explicitProvider string, fallback *ExecutionFallback) (*Response, error) {
	dctx, cancel := context.WithTimeout(ctx, DispatchTimeout)
	defer cancel()

	candidates := r.candidateOrder(explicitProvider, fallback)
	var lastErr error
	for i, name := range candidates {
		r.mu.Lock()
		p := r.providers[name]
		r.mu.Unlock()
		if p == nil {
			continue
		}
		if i > 0 && !r.isHealthy(name) {
			continue
		}
		if err := r.waitForQuota(dctx, name); err != nil {
			lastErr = err
			continue
		}

		resp, err := r.tryComplete(dctx, p, req)
		if err == nil {
			r.recordSuccess(name)
			if i > 0 && fallback != nil && !fallback.Sticky {
				fallback.Sticky = true
				fallback.Provider = name
			}
			r.trackQuota(name, resp)
			r.trackCost(resp)
			return resp, nil
		}

		lastErr = err
		if !coretypes.IsFallbackEligible(err) {
			return nil, sanitizeErr(err)
		}
		r.recordFailure(name)
	}
	if lastErr == nil {
		lastErr = coretypes.NewError(coretypes.ErrorProviderServer, nil)
	}
	return nil, sanitizeErr(lastErr)
}

// waitForQuota blocks until provider's configured rate limiter admits a
// request, or ctx is done. A provider with no configured limiter returns
// immediately.
func (r *Router) waitForQuota(ctx context.Context, provider string) error {
	r.mu.Lock()
	limiter := r.limiters[provider]
	r.mu.Unlock()
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// tryComplete attempts req against p, auto-downgrading to a smaller
// model variant once on a context-window error.
func (r *Router) tryComplete(ctx context.Context, p Provider, req Request) (*Response, error) {
	resp, err := p.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	if isContextWindowError(err) {
		caps := p.Capabilities()
		if caps.SmallerVariant != "" && caps.SmallerVariant != req.Model {
			downgraded := req
			downgraded.Model = caps.SmallerVariant
			if resp2, err2 := p.Complete(ctx, downgraded); err2 == nil {
				return resp2, nil
			}
		}
	}
	return nil, err
}

func isContextWindowError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "context") && (strings.Contains(msg, "too long") ||
		strings.Contains(msg, "exceed") || strings.Contains(msg, "maximum context"))
}

func sanitizeErr(err error) error {
	if err == nil {
		return nil
	}
	kind := coretypes.KindOf(err)
	return coretypes.NewError(kind, err)
}

// trackQuota records resp.Quota (if the provider adapter populated it) and
// publishes a QuotaWarning on the attached Event Bus when remaining
// capacity drops below 20%.
func (r *Router) trackQuota(provider string, resp *Response) {
	if resp.Quota == nil {
		return
	}
	if warn := r.UpdateQuota(provider, resp.Quota); warn {
		r.mu.Lock()
		bus := r.bus
		r.mu.Unlock()
		if bus == nil {
			return
		}
		var resetInSecs *int64
		if resp.Quota.ResetAt != nil {
			secs := int64(time.Until(*resp.Quota.ResetAt).Seconds())
			resetInSecs = &secs
		}
		bus.Publish(coretypes.OrchestratorEvent{
			Type:         coretypes.BusQuotaWarning,
			Provider:     provider,
			RemainingPct: resp.Quota.RemainingPct(),
			ResetInSecs:  resetInSecs,
		})
	}
}

// UpdateQuota records the latest quota snapshot for provider and reports
// whether a QuotaWarning should fire (remaining < 20%, checked against
// whichever of requests/tokens capacity is known).
func (r *Router) UpdateQuota(provider string, q *coretypes.QuotaState) (warn bool) {
	r.mu.Lock()
	r.quotas[provider] = q
	r.mu.Unlock()
	if q.RequestsLimit != nil && *q.RequestsLimit > 0 && q.RequestsRemaining != nil {
		pct := float64(*q.RequestsRemaining) / float64(*q.RequestsLimit)
		if pct < 0.20 {
			return true
		}
	}
	if pct := q.RemainingPct(); pct >= 0 && pct < 20 {
		return true
	}
	return false
}

// Quota returns the last known quota snapshot for provider, if any.
func (r *Router) Quota(provider string) (*coretypes.QuotaState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quotas[provider]
	return q, ok
}

func (r *Router) trackCost(resp *Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	price, ok := r.prices[resp.Model]
	if !ok {
		return
	}
	cost := float64(resp.Usage.InputTokens)/1_000_000*price.InputPerMTok +
		float64(resp.Usage.OutputTokens)/1_000_000*price.OutputPerMTok
	key := resp.Provider + "/" + resp.Model
	r.costLedger[key] += cost
}

// CostByProviderModel returns accumulated USD cost grouped by
// "provider/model".
func (r *Router) CostByProviderModel() map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]float64, len(r.costLedger))
	for k, v := range r.costLedger {
		out[k] = v
	}
	return out
}

// SanitizeErrorMessage masks secret-shaped substrings in a raw provider
// error string before it is ever surfaced.
func SanitizeErrorMessage(s string) string {
	return secrets.Mask(s)
}

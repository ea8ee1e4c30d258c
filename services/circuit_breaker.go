package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"stock-analyst/observability"
)

// Circuit breaker names, one per upstream
const (
	BreakerOpenAI  = "openai"
	BreakerBedrock = "bedrock"
	BreakerYahoo   = "yahoo"
	BreakerSerper  = "serper"
	BreakerNewsAPI = "newsapi"
	BreakerRSS     = "rss"
	BreakerAlpaca  = "alpaca"
)

// CircuitBreakerConfig is the trip profile of one breaker
type CircuitBreakerConfig struct {
	MaxRequests  uint32        // probes allowed while half-open
	Interval     time.Duration // closed-state window after which counts reset
	Timeout      time.Duration // how long the breaker stays open
	MinRequests  uint32        // requests in the window before the ratio is considered
	FailureRatio float64       // failures/requests at or above which the breaker trips
}

// DefaultCircuitBreakerConfig applies to data upstreams and to any name without an override
var DefaultCircuitBreakerConfig = CircuitBreakerConfig{
	MaxRequests:  5,
	Interval:     1 * time.Minute,
	Timeout:      30 * time.Second,
	MinRequests:  5,
	FailureRatio: 0.5,
}

// modelBreakerConfig trips sooner and stays open longer: model calls are slow, so a
// failing provider costs a whole request timeout per attempt
var modelBreakerConfig = CircuitBreakerConfig{
	MaxRequests:  2,
	Interval:     2 * time.Minute,
	Timeout:      time.Minute,
	MinRequests:  3,
	FailureRatio: 0.6,
}

// DefaultBreakerOverrides are the per-upstream profiles used by the global registry
func DefaultBreakerOverrides() map[string]CircuitBreakerConfig {
	return map[string]CircuitBreakerConfig{
		BreakerOpenAI:  modelBreakerConfig,
		BreakerBedrock: modelBreakerConfig,
	}
}

// CircuitBreakerRegistry lazily creates one breaker per upstream name
type CircuitBreakerRegistry struct {
	mu        sync.RWMutex
	breakers  map[string]*gobreaker.CircuitBreaker[any]
	config    CircuitBreakerConfig
	overrides map[string]CircuitBreakerConfig
}

// NewCircuitBreakerRegistry creates a registry where every breaker uses config
func NewCircuitBreakerRegistry(config CircuitBreakerConfig) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		breakers:  make(map[string]*gobreaker.CircuitBreaker[any]),
		config:    config,
		overrides: make(map[string]CircuitBreakerConfig),
	}
}

// WithOverride sets the profile of one named breaker. It only affects breakers not yet created.
func (r *CircuitBreakerRegistry) WithOverride(name string, config CircuitBreakerConfig) *CircuitBreakerRegistry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[name] = config
	return r
}

// ConfigFor returns the profile a breaker with this name is created with
func (r *CircuitBreakerRegistry) ConfigFor(name string) CircuitBreakerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.configFor(name)
}

func (r *CircuitBreakerRegistry) configFor(name string) CircuitBreakerConfig {
	if c, ok := r.overrides[name]; ok {
		return c
	}
	return r.config
}

// GetBreaker returns (or creates) the breaker for an upstream
func (r *CircuitBreakerRegistry) GetBreaker(name string) *gobreaker.CircuitBreaker[any] {
	r.mu.RLock()
	cb, exists := r.breakers[name]
	r.mu.RUnlock()
	if exists {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, exists = r.breakers[name]; exists {
		return cb
	}

	cfg := r.configFor(name)
	cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests || counts.Requests == 0 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful:  upstreamHealthy,
		OnStateChange: onBreakerStateChange,
	})
	r.breakers[name] = cb
	return cb
}

// upstreamHealthy decides whether a result counts against the breaker. A caller that
// went away or asked for an unknown symbol says nothing about the upstream's health.
func upstreamHealthy(err error) bool {
	return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrSymbolNotFound)
}

func onBreakerStateChange(name string, from, to gobreaker.State) {
	observability.Warn("circuit breaker state change",
		"breaker", name,
		"from", from.String(),
		"to", to.String())

	metrics := observability.GetMetrics()
	metrics.SetCircuitBreakerState(name, stateToInt(to))
	if to == gobreaker.StateOpen {
		metrics.RecordCircuitBreakerTrip(name)
	}
}

// Execute runs fn through the named breaker. Rejections by an open or saturated
// half-open breaker are reported as ErrTransientCall.
func (r *CircuitBreakerRegistry) Execute(ctx context.Context, name string, fn func() (any, error)) (any, error) {
	result, err := r.GetBreaker(name).Execute(func() (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fn()
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		observability.WithContext(ctx).Warn("circuit breaker open, rejecting request", "breaker", name)
		return nil, fmt.Errorf("%s unavailable: circuit breaker open: %w", name, ErrTransientCall)
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		observability.WithContext(ctx).Warn("circuit breaker half-open, too many requests", "breaker", name)
		return nil, fmt.Errorf("%s unavailable: too many requests while half-open: %w", name, ErrTransientCall)
	}
	return result, err
}

// CircuitBreakerStatus is one breaker's state as reported by the health endpoint
type CircuitBreakerStatus struct {
	Name             string `json:"name"`
	State            string `json:"state"`
	Requests         uint32 `json:"requests"`
	TotalSuccesses   uint32 `json:"total_successes"`
	TotalFailures    uint32 `json:"total_failures"`
	ConsecutiveSucc  uint32 `json:"consecutive_successes"`
	ConsecutiveFails uint32 `json:"consecutive_failures"`
}

// Status returns the state of every breaker created so far
func (r *CircuitBreakerRegistry) Status() map[string]CircuitBreakerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := make(map[string]CircuitBreakerStatus, len(r.breakers))
	for name, cb := range r.breakers {
		counts := cb.Counts()
		status[name] = CircuitBreakerStatus{
			Name:             name,
			State:            cb.State().String(),
			Requests:         counts.Requests,
			TotalSuccesses:   counts.TotalSuccesses,
			TotalFailures:    counts.TotalFailures,
			ConsecutiveSucc:  counts.ConsecutiveSuccesses,
			ConsecutiveFails: counts.ConsecutiveFailures,
		}
	}
	return status
}

// OpenBreakers returns the sorted names of breakers currently rejecting calls
func (r *CircuitBreakerRegistry) OpenBreakers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var open []string
	for name, cb := range r.breakers {
		if cb.State() == gobreaker.StateOpen {
			open = append(open, name)
		}
	}
	sort.Strings(open)
	return open
}

var (
	globalRegistry *CircuitBreakerRegistry
	registryMu     sync.Mutex
)

// GetGlobalRegistry returns the process-wide registry, created with DefaultBreakerOverrides
func GetGlobalRegistry() *CircuitBreakerRegistry {
	registryMu.Lock()
	defer registryMu.Unlock()
	if globalRegistry == nil {
		globalRegistry = NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig)
		for name, cfg := range DefaultBreakerOverrides() {
			globalRegistry.WithOverride(name, cfg)
		}
	}
	return globalRegistry
}

// SetGlobalRegistry replaces the process-wide registry. Tests use it for isolation.
func SetGlobalRegistry(r *CircuitBreakerRegistry) {
	registryMu.Lock()
	defer registryMu.Unlock()
	globalRegistry = r
}

// WithCircuitBreaker runs fn through the named breaker of the global registry
func WithCircuitBreaker[T any](ctx context.Context, name string, fn func() (T, error)) (T, error) {
	result, err := GetGlobalRegistry().Execute(ctx, name, func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

// track wraps an upstream call with breaker and metrics
func track[T any](ctx context.Context, breaker, op string, fn func() (T, error)) (T, error) {
	metrics := observability.GetMetrics()
	metrics.RecordExternalAPIRequest(breaker, op)
	timer := metrics.NewTimer()

	result, err := WithCircuitBreaker(ctx, breaker, fn)

	timer.ObserveExternalAPI(breaker, op)
	if err != nil {
		metrics.RecordExternalAPIError(breaker, op, categorizeAPIError(err))
	}
	return result, err
}

// errorClasses maps message fragments to metric labels for errors that carry no sentinel
var errorClasses = []struct {
	label     string
	fragments []string
}{
	{"circuit_open", []string{"circuit breaker", "half-open"}},
	{"timeout", []string{"timeout", "deadline"}},
	{"rate_limit", []string{"rate limit", "429"}},
	{"auth_error", []string{"unauthorized", "401", "403"}},
	{"connection_error", []string{"connection", "network"}},
}

// categorizeAPIError labels an upstream failure for the error counter
func categorizeAPIError(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrSymbolNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}

	msg := strings.ToLower(err.Error())
	for _, class := range errorClasses {
		for _, fragment := range class.fragments {
			if strings.Contains(msg, fragment) {
				return class.label
			}
		}
	}
	return "unknown"
}

// stateToInt maps a breaker state to the gauge value: 0 closed, 1 half-open, 2 open
func stateToInt(state gobreaker.State) int {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

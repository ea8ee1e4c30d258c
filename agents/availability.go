package agents

import (
	"context"
	"sync"
	"time"

	"stock-analyst/observability"
)

// DefaultProbeTTL is how long a stage's availability answer is reused
const DefaultProbeTTL = 30 * time.Second

// AvailabilityProbe caches the outcome of a stage's upstream probe for a TTL.
// Callers arriving while a probe is in flight wait for it and share its result.
// A TTL of 0 probes on every call.
type AvailabilityProbe struct {
	name  string
	probe func(ctx context.Context) error
	ttl   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	lastErr   error
	checkedAt time.Time
}

// NewAvailabilityProbe creates a probe for the named stage
func NewAvailabilityProbe(name string, ttl time.Duration, probe func(ctx context.Context) error) *AvailabilityProbe {
	return &AvailabilityProbe{name: name, probe: probe, ttl: ttl, now: time.Now}
}

// Available runs the probe unless a fresh result is cached
func (p *AvailabilityProbe) Available(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fresh() {
		return p.lastErr == nil
	}

	err := p.probe(ctx)
	if err != nil && p.lastErr == nil {
		observability.WithContext(ctx).Warn("stage upstream unavailable", "stage", p.name, "error", err)
	}
	p.lastErr = err
	p.checkedAt = p.now()
	return err == nil
}

// LastError returns the error of the most recent probe, nil when it succeeded or never ran
func (p *AvailabilityProbe) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Invalidate forces the next Available call to probe
func (p *AvailabilityProbe) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkedAt = time.Time{}
}

func (p *AvailabilityProbe) fresh() bool {
	return !p.checkedAt.IsZero() && p.now().Sub(p.checkedAt) < p.ttl
}

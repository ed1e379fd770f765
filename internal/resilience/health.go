package resilience

import (
	"sort"
	"sync"
	"time"
)

// ProviderHealth is a point-in-time snapshot of one provider's circuit.
type ProviderHealth struct {
	Provider string `json:"provider"`
	State    State  `json:"state"`
	Failures int    `json:"consecutive_failures"`
}

// Tracker maintains one circuit breaker per upstream provider and exposes
// health snapshots for the observability endpoints. Breakers are created
// lazily on first use.
type Tracker struct {
	mu          sync.Mutex
	providers   map[string]*Breaker
	maxFailures int
	timeout     time.Duration
	now         func() time.Time // for testing
}

// NewTracker creates a tracker whose per-provider breakers open after
// maxFailures consecutive failures and cool down for timeout.
func NewTracker(maxFailures int, timeout time.Duration) *Tracker {
	return &Tracker{
		providers:   make(map[string]*Breaker),
		maxFailures: maxFailures,
		timeout:     timeout,
		now:         time.Now,
	}
}

func (t *Tracker) breaker(provider string) *Breaker {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.providers[provider]
	if !ok {
		b = NewBreaker(t.maxFailures, t.timeout)
		b.now = t.now
		t.providers[provider] = b
	}
	return b
}

// Allow reports whether a call to the provider may proceed.
func (t *Tracker) Allow(provider string) bool {
	return t.breaker(provider).Allow()
}

// RecordOutcome feeds one upstream call result into the provider's circuit.
func (t *Tracker) RecordOutcome(provider string, success bool) {
	t.breaker(provider).RecordOutcome(success)
}

// Execute runs fn through the provider's circuit breaker.
func (t *Tracker) Execute(provider string, fn func() error) error {
	return t.breaker(provider).Execute(fn)
}

// State returns the provider's circuit position. Unknown providers are
// reported closed without creating a breaker.
func (t *Tracker) State(provider string) State {
	t.mu.Lock()
	b, ok := t.providers[provider]
	t.mu.Unlock()
	if !ok {
		return StateClosed
	}
	return b.State()
}

// Snapshot returns the health of every tracked provider, sorted by name.
func (t *Tracker) Snapshot() []ProviderHealth {
	t.mu.Lock()
	names := make([]string, 0, len(t.providers))
	for name := range t.providers {
		names = append(names, name)
	}
	breakers := make(map[string]*Breaker, len(t.providers))
	for name, b := range t.providers {
		breakers[name] = b
	}
	t.mu.Unlock()

	sort.Strings(names)
	out := make([]ProviderHealth, 0, len(names))
	for _, name := range names {
		b := breakers[name]
		out = append(out, ProviderHealth{
			Provider: name,
			State:    b.State(),
			Failures: b.Failures(),
		})
	}
	return out
}

// Package resilience guards calls to optional collaborators (search
// backends, webhooks) so a dead dependency is skipped quickly instead of
// timing out on every pipeline run.
package resilience

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// CircuitState is the breaker position.
type CircuitState int32

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// CircuitBreakerConfig configures a breaker. Zero values take defaults.
type CircuitBreakerConfig struct {
	Name string
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int
	// SuccessThreshold half-open successes close it again.
	SuccessThreshold int
	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration
	// MaxProbes caps concurrent half-open calls.
	MaxProbes int
	// IsFailure decides which errors count. Defaults to every error
	// except caller cancellation.
	IsFailure func(error) bool
}

func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
		MaxProbes:        1,
	}
}

func countsAsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu        sync.Mutex
	state     CircuitState
	failures  int
	successes int
	probes    int
	openedAt  time.Time

	onStateChange func(name string, from, to CircuitState)
}

func NewCircuitBreaker(cfg *CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig("default")
	if cfg == nil {
		cfg = def
	}
	c := *cfg
	if c.Name == "" {
		c.Name = def.Name
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = def.SuccessThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = def.Cooldown
	}
	if c.MaxProbes <= 0 {
		c.MaxProbes = def.MaxProbes
	}
	if c.IsFailure == nil {
		c.IsFailure = countsAsFailure
	}

	cb := &CircuitBreaker{cfg: c, now: time.Now}
	registry.add(cb)
	return cb
}

// OnStateChange registers a transition callback. It runs outside the lock.
func (cb *CircuitBreaker) OnStateChange(fn func(name string, from, to CircuitState)) {
	cb.mu.Lock()
	cb.onStateChange = fn
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) Name() string {
	return cb.cfg.Name
}

// State reports the current position, moving open to half-open once the
// cooldown has elapsed.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.Cooldown {
		return StateHalfOpen
	}
	return cb.state
}

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	notify, err := cb.admit()
	notify()
	if err != nil {
		return err
	}

	err = fn()
	cb.record(err)()
	return err
}

func (cb *CircuitBreaker) admit() (func(), error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	notify := func() {}
	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.cfg.Cooldown {
			return notify, ErrCircuitOpen
		}
		notify = cb.transition(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.MaxProbes {
			return notify, ErrTooManyRequests
		}
		cb.probes++
	}
	return notify, nil
}

func (cb *CircuitBreaker) record(err error) func() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen && cb.probes > 0 {
		cb.probes--
	}

	if cb.cfg.IsFailure(err) {
		cb.successes = 0
		cb.failures++
		switch cb.state {
		case StateHalfOpen:
			return cb.transition(StateOpen)
		case StateClosed:
			if cb.failures >= cb.cfg.FailureThreshold {
				return cb.transition(StateOpen)
			}
		}
		return func() {}
	}

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			return cb.transition(StateClosed)
		}
	}
	return func() {}
}

// transition must be called with mu held. The returned func fires the
// callback and must be called after unlocking.
func (cb *CircuitBreaker) transition(to CircuitState) func() {
	from := cb.state
	if from == to {
		return func() {}
	}
	cb.state = to
	cb.failures, cb.successes, cb.probes = 0, 0, 0
	if to == StateOpen {
		cb.openedAt = cb.now()
	}

	fn, name := cb.onStateChange, cb.cfg.Name
	if fn == nil {
		return func() {}
	}
	return func() { fn(name, from, to) }
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	notify := cb.transition(StateClosed)
	cb.failures, cb.successes, cb.probes = 0, 0, 0
	cb.mu.Unlock()
	notify()
}

// =============================================================================
// Registry
// =============================================================================

type breakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

var registry = &breakerRegistry{breakers: make(map[string]*CircuitBreaker)}

func (r *breakerRegistry) add(cb *CircuitBreaker) {
	r.mu.Lock()
	r.breakers[cb.cfg.Name] = cb
	r.mu.Unlock()
}

// Snapshot returns the state of every breaker created in this process,
// keyed by name. A later breaker with the same name replaces the earlier.
func Snapshot() map[string]string {
	registry.mu.Lock()
	list := make([]*CircuitBreaker, 0, len(registry.breakers))
	for _, cb := range registry.breakers {
		list = append(list, cb)
	}
	registry.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].cfg.Name < list[j].cfg.Name })
	out := make(map[string]string, len(list))
	for _, cb := range list {
		out[cb.cfg.Name] = cb.State().String()
	}
	return out
}

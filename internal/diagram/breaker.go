package diagram

import (
	"sync"
	"time"
)

// CircuitState is the state of a Breaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // calls go through
	CircuitOpen                         // calls are skipped until the cooldown ends
	CircuitHalfOpen                     // one trial call decides
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before a trial call.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the configuration used for the mermaid-ascii binary.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute}
}

// Breaker stops calling an external tool after repeated failures.
type Breaker struct {
	mu          sync.Mutex
	config      BreakerConfig
	now         func() time.Time
	state       CircuitState
	failures    int
	lastFailure time.Time
	trialActive bool
}

// NewBreaker creates a closed Breaker. A zero config uses DefaultBreakerConfig.
func NewBreaker(config BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = def.Cooldown
	}
	return &Breaker{config: config, now: time.Now}
}

// Allow reports whether a call may be made now. After the cooldown a single
// trial call is let through.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if b.now().Sub(b.lastFailure) < b.config.Cooldown {
			return false
		}
		b.state = CircuitHalfOpen
		b.trialActive = true
		return true
	case CircuitHalfOpen:
		if b.trialActive {
			return false
		}
		b.trialActive = true
		return true
	default:
		return true
	}
}

// Success closes the circuit.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = CircuitClosed
	b.failures = 0
	b.trialActive = false
}

// Failure records a failed call and returns the resulting state. A failed
// trial call reopens the circuit.
func (b *Breaker) Failure() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()
	b.trialActive = false
	if b.state == CircuitHalfOpen || b.failures >= b.config.FailureThreshold {
		b.state = CircuitOpen
	}
	return b.state
}

// Release returns a call's slot without a verdict, for calls abandoned by
// their caller. A half-open circuit lets the next trial through.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trialActive = false
}

// State returns the current state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

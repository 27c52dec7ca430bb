package outbox

import (
	"sync"
	"time"

	"example.com/eventrelay/internal/clock"
)

// BreakerState is the circuit breaker state keyed on broker health.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerStats is an inspectable snapshot of the trailing window.
type BreakerStats struct {
	State        BreakerState
	Samples      int
	Failures     int
	FailureRatio float64
}

// CircuitBreaker gates broker access during sustained failure so the relay
// stops claiming row locks it cannot use. While OPEN all ticks are skipped;
// after the cooldown a single probe per tick is admitted in HALF_OPEN.
type CircuitBreaker struct {
	mu sync.Mutex

	clock      clock.Clock
	threshold  float64
	minSamples int
	cooldown   time.Duration

	// trailing outcome ring: true = failure
	window []bool
	idx    int
	filled int

	state         BreakerState
	openedAt      time.Time
	probeInFlight bool
}

// NewCircuitBreaker constructs a breaker over a trailing window of
// windowSize attempts. The circuit opens when the failure ratio exceeds
// threshold with at least minSamples observations.
func NewCircuitBreaker(windowSize int, threshold float64, minSamples int, cooldown time.Duration, clk clock.Clock) *CircuitBreaker {
	if windowSize <= 0 {
		windowSize = 20
	}
	if minSamples <= 0 {
		minSamples = windowSize / 2
	}
	return &CircuitBreaker{
		clock:      clk,
		threshold:  threshold,
		minSamples: minSamples,
		cooldown:   cooldown,
		window:     make([]bool, windowSize),
		state:      BreakerClosed,
	}
}

// Allow is consulted once per tick. It reports whether the relay may touch
// the broker this tick, transitioning OPEN to HALF_OPEN once the cooldown
// has elapsed.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.clock.Now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = BreakerHalfOpen
		b.probeInFlight = true
		return true
	default: // HALF_OPEN: one probe at a time
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	}
}

// RecordProbeIdle releases the HALF_OPEN probe slot when the admitted tick
// ended without a broker attempt (nothing due to claim, or the claim itself
// failed). Without this the slot would stay occupied forever and no further
// probe could run.
func (b *CircuitBreaker) RecordProbeIdle() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerHalfOpen {
		b.probeInFlight = false
	}
}

// RecordSuccess feeds one successful send into the window.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		// Probe succeeded; the broker is back.
		b.reset(BreakerClosed)
		return
	}
	b.push(false)
}

// RecordFailure feeds one failed send into the window, opening the circuit
// when the trailing failure ratio crosses the threshold.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.reset(BreakerOpen)
		b.openedAt = b.clock.Now()
		return
	}

	b.push(true)
	if b.filled < b.minSamples {
		return
	}
	if b.ratio() > b.threshold {
		b.reset(BreakerOpen)
		b.openedAt = b.clock.Now()
	}
}

// State returns the current state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns an inspectable snapshot.
func (b *CircuitBreaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		State:        b.state,
		Samples:      b.filled,
		Failures:     b.failures(),
		FailureRatio: b.ratio(),
	}
}

func (b *CircuitBreaker) push(failure bool) {
	b.window[b.idx] = failure
	b.idx = (b.idx + 1) % len(b.window)
	if b.filled < len(b.window) {
		b.filled++
	}
}

func (b *CircuitBreaker) failures() int {
	n := 0
	for i := 0; i < b.filled; i++ {
		if b.window[i] {
			n++
		}
	}
	return n
}

func (b *CircuitBreaker) ratio() float64 {
	if b.filled == 0 {
		return 0
	}
	return float64(b.failures()) / float64(b.filled)
}

func (b *CircuitBreaker) reset(state BreakerState) {
	b.state = state
	b.probeInFlight = false
	b.idx = 0
	b.filled = 0
	for i := range b.window {
		b.window[i] = false
	}
}

// Package resilience provides a circuit breaker for outbound calls and a
// token-bucket limiter for inbound requests.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/WessleyAI/vinwizard/pkg/fn"
)

// Circuit breaker states.
type State int

const (
	StateClosed   State = iota // normal operation
	StateOpen                  // tripping, reject calls
	StateHalfOpen              // allowing a trial call
)

func (s State) String() string {
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

var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerOpts configures the circuit breaker.
type BreakerOpts struct {
	// FailThreshold is how many consecutive failures trip the breaker.
	FailThreshold int
	// Timeout is how long the breaker stays open before entering half-open.
	Timeout time.Duration
	// HalfOpenMax is the number of trial calls allowed in half-open state.
	HalfOpenMax int
	// OnStateChange, if set, is called after every transition while the
	// breaker lock is held. It must not call back into the breaker.
	OnStateChange func(from, to State)
	// IsFailure decides whether a call's error counts against the breaker.
	// Calls it rejects neither trip nor reset the breaker. The default
	// counts every error except those for which CallerFault holds.
	IsFailure func(ctx context.Context, err error) bool
}

// CallerFault reports whether err happened because ctx was cancelled or
// expired, rather than because the protected dependency failed.
func CallerFault(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() != nil
}

func defaultIsFailure(ctx context.Context, err error) bool {
	return err != nil && !CallerFault(ctx, err)
}

// DefaultBreakerOpts provides sensible defaults.
var DefaultBreakerOpts = BreakerOpts{
	FailThreshold: 5,
	Timeout:       30 * time.Second,
	HalfOpenMax:   1,
}

// Breaker implements a circuit breaker with closed/open/half-open states.
type Breaker struct {
	mu            sync.Mutex
	opts          BreakerOpts
	state         State
	failures      int
	openedAt      time.Time
	halfOpenCount int
	now           func() time.Time // for testing
}

// NewBreaker creates a circuit breaker with the given options.
func NewBreaker(opts BreakerOpts) *Breaker {
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = DefaultBreakerOpts.FailThreshold
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBreakerOpts.Timeout
	}
	if opts.HalfOpenMax <= 0 {
		opts.HalfOpenMax = DefaultBreakerOpts.HalfOpenMax
	}
	if opts.IsFailure == nil {
		opts.IsFailure = defaultIsFailure
	}
	return &Breaker{opts: opts, now: time.Now}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

func (b *Breaker) setState(s State) {
	if b.state == s {
		return
	}
	from := b.state
	b.state = s
	if b.opts.OnStateChange != nil {
		b.opts.OnStateChange(from, s)
	}
}

// currentState returns state, transitioning open→half-open if timeout elapsed. Must hold mu.
func (b *Breaker) currentState() State {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.opts.Timeout {
		b.setState(StateHalfOpen)
		b.halfOpenCount = 0
	}
	return b.state
}

// admit reserves a slot for a call or reports ErrCircuitOpen.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.currentState() {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.halfOpenCount >= b.opts.HalfOpenMax {
			return ErrCircuitOpen
		}
		b.halfOpenCount++
	}
	return nil
}

// outcome classifies an admitted call.
type outcome int

const (
	succeeded outcome = iota
	failed
	ignored
)

func (b *Breaker) classify(ctx context.Context, err error) outcome {
	switch {
	case err == nil:
		return succeeded
	case b.opts.IsFailure(ctx, err):
		return failed
	}
	return ignored
}

// record updates the breaker with the outcome of an admitted call.
func (b *Breaker) record(o outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch o {
	case ignored:
		// Give the half-open slot back so another call can try.
		if b.state == StateHalfOpen && b.halfOpenCount > 0 {
			b.halfOpenCount--
		}
	case failed:
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.opts.FailThreshold {
			b.setState(StateOpen)
			b.openedAt = b.now()
			b.failures = 0
			b.halfOpenCount = 0
		}
	case succeeded:
		if b.state == StateHalfOpen {
			b.setState(StateClosed)
		}
		b.failures = 0
	}
}

// Call executes f through the circuit breaker.
func (b *Breaker) Call(ctx context.Context, f func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := f(ctx)
	b.record(b.classify(ctx, err))
	return err
}

// CallResult is a generic version of Call that works with fn.Result.
func CallResult[T any](b *Breaker, ctx context.Context, f func(context.Context) fn.Result[T]) fn.Result[T] {
	if err := b.admit(); err != nil {
		return fn.Err[T](err)
	}
	result := f(ctx)
	_, err := result.Unwrap()
	b.record(b.classify(ctx, err))
	return result
}

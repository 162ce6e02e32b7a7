// Package retrypolicy drives the per-request attempt loop: per-attempt
// deadlines, exponential-capped backoff with additive jitter, and
// accumulation of attempt history into a RetryResult.
package retrypolicy

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/pitabwire/relaygate/model"
)

// Config holds the retry controller's tunables. All durations are
// milliseconds on the wire (see internal/config) but converted to
// time.Duration before reaching this package.
type Config struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	PerAttemptTimeout time.Duration
	JitterFraction    float64

	// Clock defaults to model.SystemClock{} when nil; tests inject a
	// fixed or stepped clock to assert StartedAt/CompletedAt without
	// depending on wall-clock timing.
	Clock model.Clock
}

// Action is invoked once per attempt. It receives the 1-based attempt
// number and a context carrying the per-attempt deadline; it must return
// promptly when ctx is done.
type Action func(ctx context.Context, attempt int) *model.ExecutionResult

// Controller runs Action up to Config.MaxAttempts times, backing off
// between transient failures. A single Controller is shared across
// concurrent requests; its PRNG access is mutex-guarded accordingly.
type Controller struct {
	cfg   Config
	clock model.Clock
	mu    sync.Mutex
	rng   *rand.Rand
}

// New builds a Controller. Each instance owns its own PRNG, seeded from a
// non-deterministic source at construction time; callers that need
// deterministic jitter in tests should not rely on the sequence but only
// on the bound the jitter must fall within.
func New(cfg Config) *Controller {
	clock := cfg.Clock
	if clock == nil {
		clock = model.SystemClock{}
	}
	return &Controller{
		cfg:   cfg,
		clock: clock,
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Run drives the attempt loop and returns a RetryResult holding the
// attempt count, the full history, and the final result. ctx is the outer (inbound-connection) cancellation; it bounds the
// backoff sleep but each attempt gets its own child deadline.
func (c *Controller) Run(ctx context.Context, action Action) *model.RetryResult {
	maxAttempts := c.cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	history := make(model.RetryHistory, 0, maxAttempts)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result := c.runAttempt(ctx, action, attempt)
		result.Attempt = attempt
		history = append(history, result)

		if result.Outcome != model.OutcomeTransientFailure {
			return &model.RetryResult{Attempts: attempt, History: history, Final: result}
		}
		if attempt == maxAttempts {
			return &model.RetryResult{Attempts: attempt, History: history, Final: result}
		}

		if err := c.sleepBackoff(ctx, attempt); err != nil {
			// Outer cancellation during backoff short-circuits further
			// retries; the last transient result stands as final.
			return &model.RetryResult{Attempts: attempt, History: history, Final: result}
		}
	}

	// Unreachable: the loop always returns by the max-attempts branch.
	return &model.RetryResult{Attempts: len(history), History: history, Final: history.Final()}
}

// runAttempt invokes action with a per-attempt timeout child context and
// recovers a panicking action into a transient ExecutorException, per the
// executor contract's "must not throw" requirement being enforced here as
// a backstop.
func (c *Controller) runAttempt(ctx context.Context, action Action, attempt int) (result *model.ExecutionResult) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.PerAttemptTimeout)
	defer cancel()

	started := c.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			result = c.classifyPanic(attemptCtx, started, r)
		}
	}()

	result = action(attemptCtx, attempt)
	if result == nil {
		result = model.NewFailure(started, c.clock.Now(), model.ErrExecutorException, "executor returned no result", true)
	}
	return result
}

func (c *Controller) classifyPanic(ctx context.Context, started time.Time, r any) *model.ExecutionResult {
	if ctx.Err() == context.DeadlineExceeded {
		return model.NewFailure(started, c.clock.Now(), model.ErrTimeout, "per-attempt timeout exceeded", true)
	}
	return model.NewFailure(started, c.clock.Now(), model.ErrExecutorException, panicMessage(r), true)
}

func panicMessage(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return "executor panicked"
}

// sleepBackoff sleeps backoff(attempt), observing the outer context so a
// caller's cancellation short-circuits the wait.
func (c *Controller) sleepBackoff(ctx context.Context, attempt int) error {
	delay := c.Backoff(attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff computes the delay before the attempt following attempt,
// exponential-capped plus additive non-negative jitter:
// exp = min(max_delay, base_delay * 2^(attempt-1)); jitter = uniform(0, exp * jitter_fraction).
func (c *Controller) Backoff(attempt int) time.Duration {
	exp := ExpDelay(c.cfg.BaseDelay, c.cfg.MaxDelay, attempt)
	if c.cfg.JitterFraction <= 0 {
		return exp
	}
	span := float64(exp) * c.cfg.JitterFraction
	c.mu.Lock()
	jitter := c.rng.Float64() * span
	c.mu.Unlock()
	return exp + time.Duration(jitter)
}

// ExpDelay computes the exponential-capped component of the backoff
// formula in isolation, so tests can assert the bound independent of
// jitter draws. The doubling-and-cap sequence is delegated to
// cenkalti/backoff's ExponentialBackOff with randomization disabled,
// rather than hand-rolled, since it is exactly the capped-geometric
// growth that building block exists for; our own additive jitter is
// applied on top by Backoff, since the library's own randomization can
// land below the exponential floor and would violate the spec's
// never-below-exp invariant.
func ExpDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = base
	bo.MaxInterval = max
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	var delay time.Duration
	for i := 0; i < attempt; i++ {
		delay = bo.NextBackOff()
	}
	return delay
}

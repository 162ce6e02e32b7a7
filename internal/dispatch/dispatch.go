// Package dispatch wires validation, executor selection, the retry
// controller, and the metrics accumulator into the single per-request
// pipeline the HTTP layer drives: validate → select → retry → envelope.
package dispatch

import (
	"context"
	"strings"

	"github.com/pitabwire/relaygate/internal/executor"
	"github.com/pitabwire/relaygate/internal/metrics"
	"github.com/pitabwire/relaygate/internal/retrypolicy"
	"github.com/pitabwire/relaygate/internal/validator"
	"github.com/pitabwire/relaygate/model"
)

// DefaultExecutorType is selected when X-Executor-Type is absent.
const DefaultExecutorType = "http"

// Controller is the dispatch controller described in the HTTP surface's
// dispatch route. It owns no per-request state; a single instance is
// shared across all concurrent requests.
type Controller struct {
	Validator validator.Config
	Executors *executor.Registry
	Retry     *retrypolicy.Controller
	Metrics   *metrics.Accumulator

	// Clock defaults to model.SystemClock{} when nil; tests inject a
	// fixed or stepped clock to assert latency recording without
	// depending on wall-clock timing.
	Clock model.Clock
}

// New builds a Controller from its collaborators.
func New(validatorCfg validator.Config, executors *executor.Registry, retry *retrypolicy.Controller, acc *metrics.Accumulator) *Controller {
	return &Controller{
		Validator: validatorCfg,
		Executors: executors,
		Retry:     retry,
		Metrics:   acc,
		Clock:     model.SystemClock{},
	}
}

// Outcome is either a ready-to-write ResponseEnvelope or a dispatch-time
// rejection, never both.
type Outcome struct {
	Response *model.ResponseEnvelope
	Error    *model.ErrorEnvelope
}

// Dispatch runs steps 5-8 of the dispatch pipeline: validate, select
// executor, invoke the retry controller, update metrics. Steps 1-4
// (early size rejection, request/correlation id, body read, envelope
// construction) and step 9 (response write) are the HTTP layer's
// responsibility, since they depend on the transport.
func (c *Controller) Dispatch(ctx context.Context, env *model.RequestEnvelope) Outcome {
	result := validator.Validate(env, c.Validator)
	if !result.Valid {
		c.Metrics.RecordInvalid()
		return Outcome{Error: model.NewErrorEnvelope(result.Code, result.Message, env.RequestID)}
	}

	executorType := strings.ToLower(env.HeaderDefault("X-Executor-Type", DefaultExecutorType))
	ex, found := c.Executors.Get(executorType)
	if !found {
		c.Metrics.RecordBadExecutor()
		message := "unsupported executor type: " + executorType
		return Outcome{Error: model.NewErrorEnvelope(model.ErrUnsupportedExecutor, message, env.RequestID)}
	}

	clock := c.Clock
	if clock == nil {
		clock = model.SystemClock{}
	}

	requestStarted := clock.Now()
	rr := c.Retry.Run(ctx, func(attemptCtx context.Context, attempt int) *model.ExecutionResult {
		return ex.Execute(attemptCtx, env, attempt)
	})

	c.Metrics.RecordRequest(rr.Final.Success(), rr.Attempts)
	c.Metrics.RecordLatency(clock.Now().Sub(requestStarted))

	return Outcome{Response: model.BuildResponseEnvelope(env, executorType, rr)}
}

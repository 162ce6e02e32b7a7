// Package validator applies the closed set of structural and size checks
// that a request envelope must pass before it reaches executor selection.
package validator

import (
	"strconv"
	"strings"

	"github.com/pitabwire/relaygate/model"
)

// Result is the outcome of validating an envelope: either valid, or
// invalid with a code drawn from the closed validation code set.
type Result struct {
	Valid   bool
	Code    string
	Message string
}

// ok is the shared valid sentinel.
var ok = Result{Valid: true}

// Config carries the only validator-tunable value: the request body size
// ceiling, applied identically at both the Content-Length check and the
// already-read-body check.
type Config struct {
	MaxBodyBytes int64
}

// Validate runs the ordered rule chain against env, stopping at the first
// failing rule. Rule order is load-bearing: callers must not reorder these
// checks, since property tests assert monotonic advancement through them.
func Validate(env *model.RequestEnvelope, cfg Config) Result {
	if env == nil {
		return Result{Code: model.ErrNullRequest, Message: "request envelope is nil"}
	}

	if env.RequestID == "" {
		return Result{Code: model.ErrMissingRequestID, Message: "request_id is required"}
	}

	executorType := strings.ToLower(env.HeaderDefault("X-Executor-Type", "http"))
	if executorType == "shell" {
		if _, present := env.Header("X-PS-Command"); !present {
			return Result{Code: model.ErrMissingPsCommand, Message: "X-PS-Command header is required for the shell executor"}
		}
	}
	if executorType == "http" {
		if _, present := env.Header("X-Forward-Base"); !present {
			return Result{Code: model.ErrMissingForwardBase, Message: "X-Forward-Base header is required for the http executor"}
		}
	}

	if cl, present := env.Header("Content-Length"); present {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > cfg.MaxBodyBytes {
			return Result{Code: model.ErrBodyTooLarge, Message: bodyTooLargeMessage(cfg.MaxBodyBytes)}
		}
	}

	if env.Body != nil && int64(len(*env.Body)) > cfg.MaxBodyBytes {
		return Result{Code: model.ErrBodyTooLarge, Message: bodyTooLargeMessage(cfg.MaxBodyBytes)}
	}

	if !model.IsAllowedMethod(env.Method) {
		return Result{Code: model.ErrInvalidHTTPMethod, Message: "method " + env.Method + " is not supported"}
	}

	return ok
}

func bodyTooLargeMessage(maxBytes int64) string {
	return BodyTooLargeMessage(maxBytes)
}

// BodyTooLargeMessage renders the BodyTooLarge rejection message, shared
// with the transport layer's early Content-Length rejection so both sites
// report the limit identically.
func BodyTooLargeMessage(maxBytes int64) string {
	kb := maxBytes / 1024
	return "request body exceeds the configured limit of " + strconv.FormatInt(kb, 10) + " KB"
}

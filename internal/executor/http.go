package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/relaygate/internal/observability"
	"github.com/pitabwire/relaygate/model"
)

// HTTPConfig holds the HTTP executor's boot-time tunables.
type HTTPConfig struct {
	MaxResponseBodyBytes int64
	DefaultTimeout       time.Duration
	FilteredHeaders      []string
	TransientStatusCodes map[int]bool
}

// HTTPExecutor forwards the envelope as an outbound HTTP call against the
// base URL carried in X-Forward-Base, classifying the response (or any
// transport failure) into the execution-result taxonomy. Grounded on the
// teacher's OpenAPIOperationInvoker: a single long-lived client reused
// across concurrent attempts, the same status/network/cancellation
// classification branches, and the same header-filtering discipline.
type HTTPExecutor struct {
	client *http.Client
	cfg    HTTPConfig
	log    *zap.Logger
}

// NewHTTPExecutor builds an HTTPExecutor with a shared, connection-pooling
// client. The client's own timeout is left unset; the per-attempt context
// deadline governs cancellation instead, per the cancellation-tree design.
func NewHTTPExecutor(cfg HTTPConfig, log *zap.Logger) *HTTPExecutor {
	transport := &http.Transport{
		DisableCompression:  false,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPExecutor{
		client: &http.Client{Transport: transport},
		cfg:    cfg,
		log:    log,
	}
}

// Name returns the executor's stable lowercase tag.
func (h *HTTPExecutor) Name() string { return "http" }

// Execute implements Executor.
func (h *HTTPExecutor) Execute(ctx context.Context, env *model.RequestEnvelope, attempt int) *model.ExecutionResult {
	started := time.Now()

	base, present := env.Header("X-Forward-Base")
	if !present {
		return model.NewFailure(started, time.Now(), model.ErrBadConfiguration, "X-Forward-Base header missing", false)
	}

	target, err := h.buildRequestURL(base, env)
	if err != nil {
		return model.NewFailure(started, time.Now(), model.ErrInvalidURI, err.Error(), false)
	}
	h.logTarget(target, env)

	var bodyReader io.Reader
	if isBodyBearing(env.Method) && env.Body != nil && *env.Body != "" {
		bodyReader = strings.NewReader(*env.Body)
	}

	req, err := http.NewRequestWithContext(ctx, env.Method, target.String(), bodyReader)
	if err != nil {
		return model.NewFailure(started, time.Now(), model.ErrInvalidURI, err.Error(), false)
	}
	h.applyHeaders(req, env, bodyReader != nil)

	resp, err := h.client.Do(req)
	if err != nil {
		return h.classifyTransportError(started, ctx, err)
	}
	defer resp.Body.Close()

	body, _ := h.readBoundedBody(resp.Body)
	responseHeaders := extractResponseHeaders(resp.Header)

	result := &model.ExecutionResult{
		StartedAt:       started,
		CompletedAt:     time.Now(),
		StatusCode:      resp.StatusCode,
		ResponseHeaders: responseHeaders,
		ResponseBody:    body,
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		result.Outcome = model.OutcomeSuccess
	case h.cfg.TransientStatusCodes[resp.StatusCode]:
		result.Outcome = model.OutcomeTransientFailure
		result.Transient = true
		result.ErrorCode = fmt.Sprintf("HTTP%d", resp.StatusCode)
		result.ErrorMessage = fmt.Sprintf("upstream returned status %d", resp.StatusCode)
	default:
		result.Outcome = model.OutcomePermanentFailure
		result.ErrorCode = fmt.Sprintf("HTTP%d", resp.StatusCode)
		result.ErrorMessage = fmt.Sprintf("upstream returned status %d", resp.StatusCode)
	}
	return result
}

// buildRequestURL joins base (right-trimmed of trailing "/") with
// env.Path (left-trimmed of leading "/"), merging query parameters with
// the envelope's query winning on collision.
func (h *HTTPExecutor) buildRequestURL(base string, env *model.RequestEnvelope) (*url.URL, error) {
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid X-Forward-Base: %q", base)
	}

	joinedPath := strings.TrimRight(parsed.Path, "/") + "/" + strings.TrimLeft(env.Path, "/")
	parsed.Path = joinedPath

	merged := parsed.Query()
	if env.Query != nil {
		env.Query.Range(func(k, v string) { merged.Set(k, v) })
	}
	parsed.RawQuery = merged.Encode()
	return parsed, nil
}

// logTarget emits the outbound target URL with sensitive query values
// masked. This is a logging-only transformation: Execute itself always
// sends the unmasked URL built by buildRequestURL.
func (h *HTTPExecutor) logTarget(target *url.URL, env *model.RequestEnvelope) {
	if h.log == nil {
		return
	}
	h.log.Debug("http executor forwarding request",
		zap.String("request_id", env.RequestID),
		zap.String("target", observability.MaskTargetURL(target.String())),
		zap.String("method", env.Method),
	)
}

var defaultDenyHeaders = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"host":                true,
}

func (h *HTTPExecutor) applyHeaders(req *http.Request, env *model.RequestEnvelope, hasJSONBody bool) {
	deny := defaultDenyHeaders
	if len(h.cfg.FilteredHeaders) > 0 {
		deny = make(map[string]bool, len(h.cfg.FilteredHeaders)+1)
		deny["host"] = true
		for _, name := range h.cfg.FilteredHeaders {
			deny[strings.ToLower(name)] = true
		}
	}

	env.Headers.Range(func(k, v string) {
		lower := strings.ToLower(k)
		if deny[lower] || strings.HasPrefix(lower, "x-") || strings.HasPrefix(lower, "sec-") {
			return
		}
		req.Header.Add(k, sanitizeHeaderValue(v))
	})

	if hasJSONBody {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
}

func isBodyBearing(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

func (h *HTTPExecutor) classifyTransportError(started time.Time, ctx context.Context, err error) *model.ExecutionResult {
	if ctx.Err() != nil {
		return model.NewFailure(started, time.Now(), model.ErrTimeout, "request cancelled before completion", true)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if _, ok := urlErr.Err.(*net.AddrError); ok {
			return model.NewFailure(started, time.Now(), model.ErrInvalidURI, err.Error(), false)
		}
	}
	return model.NewFailure(started, time.Now(), model.ErrNetworkError, err.Error(), true)
}

func (h *HTTPExecutor) readBoundedBody(r io.Reader) (string, bool) {
	maxBytes := h.cfg.MaxResponseBodyBytes
	if maxBytes <= 0 {
		maxBytes = 512 * 1024
	}
	limited := io.LimitReader(r, maxBytes+1)
	data, _ := io.ReadAll(limited)
	if int64(len(data)) <= maxBytes {
		return string(data), false
	}
	truncated := data[:maxBytes]
	marker := fmt.Sprintf("...[truncated from %d to %d bytes]", len(data), maxBytes)
	return string(truncated) + marker, true
}

func extractResponseHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, values := range h {
		out[k] = strings.Join(values, "; ")
	}
	return out
}

// sanitizeHeaderValue strips CR/LF to prevent header injection when
// forwarding inbound values outbound.
func sanitizeHeaderValue(v string) string {
	v = strings.ReplaceAll(v, "\r", "")
	v = strings.ReplaceAll(v, "\n", "")
	return v
}

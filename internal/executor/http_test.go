package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pitabwire/relaygate/model"
)

func httpEnvelope(method, path string, headers map[string]string, query map[string]string, body *string) *model.RequestEnvelope {
	h := model.NewHeaderMap()
	for k, v := range headers {
		h.Set(k, v)
	}
	q := model.NewHeaderMap()
	for k, v := range query {
		q.Set(k, v)
	}
	return &model.RequestEnvelope{
		RequestID: "req-1",
		Method:    method,
		Path:      path,
		Headers:   h,
		Query:     q,
		Body:      body,
	}
}

func defaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		MaxResponseBodyBytes: 512 * 1024,
		DefaultTimeout:       5 * time.Second,
		TransientStatusCodes: map[int]bool{408: true, 429: true, 500: true, 502: true, 503: true, 504: true},
	}
}

func TestHTTPExecutor_success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header["Authorization"]; ok {
			t.Error("Authorization header should have been filtered")
		}
		if _, ok := r.Header["X-Forward-Base"]; ok {
			t.Error("X- prefixed headers should have been filtered")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	env := httpEnvelope("GET", "/resource", map[string]string{
		"X-Forward-Base": srv.URL,
		"Authorization":  "Bearer secret",
	}, nil, nil)

	ex := NewHTTPExecutor(defaultHTTPConfig(), nil)
	result := ex.Execute(context.Background(), env, 1)

	if !result.Success() {
		t.Fatalf("result = %+v, want success", result)
	}
	if result.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", result.StatusCode)
	}
	if result.ResponseBody != `{"ok":true}` {
		t.Errorf("ResponseBody = %q", result.ResponseBody)
	}
}

func TestHTTPExecutor_transientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	env := httpEnvelope("GET", "/", map[string]string{"X-Forward-Base": srv.URL}, nil, nil)
	ex := NewHTTPExecutor(defaultHTTPConfig(), nil)
	result := ex.Execute(context.Background(), env, 1)

	if result.Outcome != model.OutcomeTransientFailure {
		t.Fatalf("Outcome = %v, want TransientFailure", result.Outcome)
	}
	if result.StatusCode != 503 {
		t.Errorf("StatusCode = %d, want 503", result.StatusCode)
	}
}

func TestHTTPExecutor_permanentStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	env := httpEnvelope("GET", "/", map[string]string{"X-Forward-Base": srv.URL}, nil, nil)
	ex := NewHTTPExecutor(defaultHTTPConfig(), nil)
	result := ex.Execute(context.Background(), env, 1)

	if result.Outcome != model.OutcomePermanentFailure {
		t.Fatalf("Outcome = %v, want PermanentFailure", result.Outcome)
	}
}

func TestHTTPExecutor_invalidBaseURL(t *testing.T) {
	env := httpEnvelope("GET", "/", map[string]string{"X-Forward-Base": "not a url"}, nil, nil)
	ex := NewHTTPExecutor(defaultHTTPConfig(), nil)
	result := ex.Execute(context.Background(), env, 1)

	if result.Outcome != model.OutcomePermanentFailure || result.ErrorCode != model.ErrInvalidURI {
		t.Fatalf("result = %+v, want permanent InvalidUri", result)
	}
}

func TestHTTPExecutor_missingForwardBase(t *testing.T) {
	env := httpEnvelope("GET", "/", nil, nil, nil)
	ex := NewHTTPExecutor(defaultHTTPConfig(), nil)
	result := ex.Execute(context.Background(), env, 1)

	if result.ErrorCode != model.ErrBadConfiguration {
		t.Fatalf("ErrorCode = %q, want %q", result.ErrorCode, model.ErrBadConfiguration)
	}
}

func TestHTTPExecutor_cancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	env := httpEnvelope("GET", "/", map[string]string{"X-Forward-Base": srv.URL}, nil, nil)
	ex := NewHTTPExecutor(defaultHTTPConfig(), nil)
	result := ex.Execute(ctx, env, 1)

	if result.ErrorCode != model.ErrTimeout || !result.Transient {
		t.Fatalf("result = %+v, want transient Timeout", result)
	}
}

func TestHTTPExecutor_bodyTruncation(t *testing.T) {
	big := strings.Repeat("a", 100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(big))
	}))
	defer srv.Close()

	env := httpEnvelope("GET", "/", map[string]string{"X-Forward-Base": srv.URL}, nil, nil)
	cfg := defaultHTTPConfig()
	cfg.MaxResponseBodyBytes = 10
	ex := NewHTTPExecutor(cfg, nil)
	result := ex.Execute(context.Background(), env, 1)

	if !strings.Contains(result.ResponseBody, "...[truncated") {
		t.Fatalf("ResponseBody = %q, want truncation marker", result.ResponseBody)
	}
}

func TestHTTPExecutor_queryMergeEnvelopeWins(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	env := httpEnvelope("GET", "/path", map[string]string{"X-Forward-Base": srv.URL + "?a=base"}, map[string]string{"a": "override"}, nil)
	ex := NewHTTPExecutor(defaultHTTPConfig(), nil)
	ex.Execute(context.Background(), env, 1)

	if gotQuery != "a=override" {
		t.Errorf("query = %q, want envelope value to win", gotQuery)
	}
}

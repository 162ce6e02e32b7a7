package validator

import (
	"testing"

	"github.com/pitabwire/relaygate/model"
)

const maxBody = 1000 * 1024

func envelope(requestID, method string, headers map[string]string, body *string) *model.RequestEnvelope {
	h := model.NewHeaderMap()
	for k, v := range headers {
		h.Set(k, v)
	}
	return &model.RequestEnvelope{
		RequestID: requestID,
		Method:    method,
		Headers:   h,
		Query:     model.NewHeaderMap(),
		Body:      body,
	}
}

func TestValidate_nilEnvelope(t *testing.T) {
	r := Validate(nil, Config{MaxBodyBytes: maxBody})
	if r.Valid || r.Code != model.ErrNullRequest {
		t.Fatalf("Validate(nil) = %+v, want code %q", r, model.ErrNullRequest)
	}
}

func TestValidate_missingRequestID(t *testing.T) {
	env := envelope("", "GET", nil, nil)
	r := Validate(env, Config{MaxBodyBytes: maxBody})
	if r.Valid || r.Code != model.ErrMissingRequestID {
		t.Fatalf("Validate() = %+v, want code %q", r, model.ErrMissingRequestID)
	}
}

func TestValidate_shellRequiresPSCommand(t *testing.T) {
	env := envelope("req-1", "POST", map[string]string{"X-Executor-Type": "shell"}, nil)
	r := Validate(env, Config{MaxBodyBytes: maxBody})
	if r.Valid || r.Code != model.ErrMissingPsCommand {
		t.Fatalf("Validate() = %+v, want code %q", r, model.ErrMissingPsCommand)
	}
}

func TestValidate_httpRequiresForwardBase(t *testing.T) {
	env := envelope("req-1", "GET", map[string]string{"X-Executor-Type": "http"}, nil)
	r := Validate(env, Config{MaxBodyBytes: maxBody})
	if r.Valid || r.Code != model.ErrMissingForwardBase {
		t.Fatalf("Validate() = %+v, want code %q", r, model.ErrMissingForwardBase)
	}
}

func TestValidate_contentLengthTooLarge(t *testing.T) {
	env := envelope("req-1", "POST", map[string]string{
		"X-Executor-Type": "http",
		"X-Forward-Base":  "https://upstream.example.com",
		"Content-Length":  "2000000",
	}, nil)
	r := Validate(env, Config{MaxBodyBytes: maxBody})
	if r.Valid || r.Code != model.ErrBodyTooLarge {
		t.Fatalf("Validate() = %+v, want code %q", r, model.ErrBodyTooLarge)
	}
}

func TestValidate_bodyTooLarge(t *testing.T) {
	body := make([]byte, maxBody+1)
	s := string(body)
	env := envelope("req-1", "POST", map[string]string{
		"X-Executor-Type": "http",
		"X-Forward-Base":  "https://upstream.example.com",
	}, &s)
	r := Validate(env, Config{MaxBodyBytes: maxBody})
	if r.Valid || r.Code != model.ErrBodyTooLarge {
		t.Fatalf("Validate() = %+v, want code %q", r, model.ErrBodyTooLarge)
	}
}

func TestValidate_invalidMethod(t *testing.T) {
	env := envelope("req-1", "CONNECT", map[string]string{
		"X-Executor-Type": "http",
		"X-Forward-Base":  "https://upstream.example.com",
	}, nil)
	r := Validate(env, Config{MaxBodyBytes: maxBody})
	if r.Valid || r.Code != model.ErrInvalidHTTPMethod {
		t.Fatalf("Validate() = %+v, want code %q", r, model.ErrInvalidHTTPMethod)
	}
}

func TestValidate_validEnvelope(t *testing.T) {
	env := envelope("req-1", "get", map[string]string{
		"X-Executor-Type": "http",
		"X-Forward-Base":  "https://upstream.example.com",
	}, nil)
	r := Validate(env, Config{MaxBodyBytes: maxBody})
	if !r.Valid {
		t.Fatalf("Validate() = %+v, want Valid", r)
	}
}

// TestValidate_monotonicity exercises property 1: fixing the failing rule
// without breaking an earlier one advances the validator past it.
func TestValidate_monotonicity(t *testing.T) {
	env := envelope("", "POST", map[string]string{"X-Executor-Type": "shell"}, nil)
	r1 := Validate(env, Config{MaxBodyBytes: maxBody})
	if r1.Code != model.ErrMissingRequestID {
		t.Fatalf("expected to fail on request_id first, got %q", r1.Code)
	}

	env.RequestID = "req-1"
	r2 := Validate(env, Config{MaxBodyBytes: maxBody})
	if r2.Code != model.ErrMissingPsCommand {
		t.Fatalf("expected to advance to missing ps command, got %q", r2.Code)
	}
}

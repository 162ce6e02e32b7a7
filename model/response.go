package model

import "time"

// AttemptSummary is the per-attempt digest carried in a ResponseEnvelope.
type AttemptSummary struct {
	Attempt int     `json:"attempt"`
	Outcome Outcome `json:"outcome"`
	Message *string `json:"message,omitempty"`
}

// ResponseEnvelope is the JSON body written for a successfully-dispatched
// request (validation and unknown-executor rejections instead write an
// ErrorEnvelope at HTTP 400).
type ResponseEnvelope struct {
	RequestID        string           `json:"request_id"`
	CorrelationID    string           `json:"correlation_id,omitempty"`
	ExecutorType     string           `json:"executor_type"`
	StartedAt        time.Time        `json:"started_at"`
	CompletedAt      time.Time        `json:"completed_at"`
	OverallStatus    string           `json:"overall_status"`
	Attempts         int              `json:"attempts"`
	AttemptSummaries []AttemptSummary `json:"attempt_summaries"`
	ExecutorResult   any              `json:"executor_result"`
}

const (
	OverallStatusSuccess = "Success"
	OverallStatusFailure = "Failure"
)

// HTTPExecutorResult is the executor_result shape for a completed HTTP
// executor attempt, success or failure alike (the spec keeps body/headers
// in the envelope regardless of status per the HTTP-executor open question).
type HTTPExecutorResult struct {
	HTTPStatus int               `json:"http_status"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// ShellExecutorResult is the executor_result shape for a successful shell
// executor attempt.
type ShellExecutorResult struct {
	PSCommand string              `json:"ps_command"`
	PSStdout  []string            `json:"ps_stdout"`
	PSStderr  []string            `json:"ps_stderr"`
	PSObjects []map[string]string `json:"ps_objects"`
}

// FailureExecutorResult is the executor_result shape for a terminal
// (permanent, or transient-and-exhausted) failure.
type FailureExecutorResult struct {
	ErrorCode   string `json:"error_code"`
	Error       string `json:"error"`
	IsTransient bool   `json:"is_transient"`
}

// BuildResponseEnvelope assembles the wire response from a retry run.
// executorType is the lowercase tag the dispatch controller selected.
func BuildResponseEnvelope(env *RequestEnvelope, executorType string, rr *RetryResult) *ResponseEnvelope {
	summaries := make([]AttemptSummary, 0, len(rr.History))
	for _, r := range rr.History {
		s := AttemptSummary{Attempt: r.Attempt, Outcome: r.Outcome}
		if r.Outcome != OutcomeSuccess && r.ErrorMessage != "" {
			msg := r.ErrorMessage
			s.Message = &msg
		}
		summaries = append(summaries, s)
	}

	overall := OverallStatusFailure
	if rr.Final.Success() {
		overall = OverallStatusSuccess
	}

	return &ResponseEnvelope{
		RequestID:        env.RequestID,
		CorrelationID:    env.CorrelationID,
		ExecutorType:     executorType,
		StartedAt:        rr.History[0].StartedAt,
		CompletedAt:      rr.Final.CompletedAt,
		OverallStatus:    overall,
		Attempts:         rr.Attempts,
		AttemptSummaries: summaries,
		ExecutorResult:   executorResultPayload(rr.Final),
	}
}

func executorResultPayload(final *ExecutionResult) any {
	switch {
	case final.Success() && final.Command != "":
		return ShellExecutorResult{
			PSCommand: final.Command,
			PSStdout:  orEmptyStrings(final.Stdout),
			PSStderr:  orEmptyStrings(final.Stderr),
			PSObjects: orEmptyObjects(final.Objects),
		}
	case final.Success():
		return HTTPExecutorResult{
			HTTPStatus: final.StatusCode,
			Headers:    final.ResponseHeaders,
			Body:       final.ResponseBody,
		}
	case final.StatusCode != 0:
		return HTTPExecutorResult{
			HTTPStatus: final.StatusCode,
			Headers:    final.ResponseHeaders,
			Body:       final.ResponseBody,
		}
	default:
		return FailureExecutorResult{
			ErrorCode:   final.ErrorCode,
			Error:       final.ErrorMessage,
			IsTransient: final.Transient,
		}
	}
}

func orEmptyStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func orEmptyObjects(v []map[string]string) []map[string]string {
	if v == nil {
		return []map[string]string{}
	}
	return v
}

// Package transport contains the HTTP router, middleware chain, and
// request handler wiring the dispatch controller to the gateway's HTTP
// surface.
package transport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pitabwire/relaygate/model"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteError writes an ErrorEnvelope as a flat JSON body at HTTP 400. Both
// validation rejections and unknown-executor selection use this path: they
// are always dispatch-time rejections, never executor-level failures.
func WriteError(w http.ResponseWriter, ee *model.ErrorEnvelope) {
	WriteJSON(w, http.StatusBadRequest, ee)
}

// WriteDispatchResponse writes a successfully-dispatched ResponseEnvelope.
// The HTTP status is the executor's effective status code on success,
// otherwise 200 — the gateway's own status reflects whether it could
// process the request, not whether the downstream call succeeded.
func WriteDispatchResponse(w http.ResponseWriter, resp *model.ResponseEnvelope, executorType string, attempts int) {
	w.Header().Set("X-Request-Id", resp.RequestID)
	if resp.CorrelationID != "" {
		w.Header().Set("X-Correlation-Id", resp.CorrelationID)
	}
	w.Header().Set("X-Instance-Id", instanceIDHeader)
	w.Header().Set("X-Executor", executorType)
	w.Header().Set("X-Attempts", strconv.Itoa(attempts))

	status := http.StatusOK
	if resp.OverallStatus == model.OverallStatusSuccess {
		if httpResult, ok := resp.ExecutorResult.(model.HTTPExecutorResult); ok && httpResult.HTTPStatus != 0 {
			status = httpResult.HTTPStatus
		}
	}
	WriteJSON(w, status, resp)
}

// instanceIDHeader is set once at boot via SetInstanceID.
var instanceIDHeader string

// SetInstanceID configures the X-Instance-Id value written on every
// dispatch response, per the configured service.instance_id.
func SetInstanceID(id string) { instanceIDHeader = id }

package observability

import "net/http"

// HandlePing returns the liveness handler for GET /ping: a plain-text
// "pong" body, used by callers as a minimal reachability probe. The
// gateway is stateless across requests (aside from the metrics
// accumulator), so there is no deeper readiness state to report.
func HandlePing() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	}
}

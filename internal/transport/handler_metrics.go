package transport

import (
	"net/http"
	"time"

	"github.com/pitabwire/relaygate/internal/metrics"
)

// metricsResponse is the JSON body written for GET /metrics.
type metricsResponse struct {
	Timestamp string           `json:"timestamp"`
	Instance  string           `json:"instance"`
	Metrics   metrics.Snapshot `json:"metrics"`
}

// NewMetricsHandler builds the handler for GET /metrics: a point-in-time
// snapshot of the process-wide accumulator.
func NewMetricsHandler(acc *metrics.Accumulator, instanceID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, metricsResponse{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Instance:  instanceID,
			Metrics:   acc.Snapshot(),
		})
	}
}

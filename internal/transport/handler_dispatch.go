package transport

import (
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/relaygate/internal/dispatch"
	"github.com/pitabwire/relaygate/internal/validator"
	"github.com/pitabwire/relaygate/model"
)

// NewDispatchHandler builds the handler for {GET,POST,PUT,PATCH,DELETE}
// /api/{*path}. It performs the dispatch pipeline's transport-bound steps
// (early size rejection, body read, envelope construction) and delegates
// validation, executor selection, retry, and metrics to ctrl.
func NewDispatchHandler(ctrl *dispatch.Controller, maxBodyBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := RequestIDFrom(r.Context())
		correlationID := CorrelationIDFrom(r.Context())

		if r.ContentLength > maxBodyBytes {
			WriteError(w, model.NewErrorEnvelope(model.ErrBodyTooLarge, validator.BodyTooLargeMessage(maxBodyBytes), requestID))
			return
		}

		body, rejected := readBoundedBody(r, maxBodyBytes)
		if rejected {
			WriteError(w, model.NewErrorEnvelope(model.ErrBodyTooLarge, validator.BodyTooLargeMessage(maxBodyBytes), requestID))
			return
		}

		env := &model.RequestEnvelope{
			RequestID:     requestID,
			CorrelationID: correlationID,
			Method:        r.Method,
			Path:          decodedPath(r),
			Query:         queryHeaderMap(r),
			Headers:       requestHeaderMap(r),
			Body:          body,
		}

		outcome := ctrl.Dispatch(r.Context(), env)
		if outcome.Error != nil {
			WriteError(w, outcome.Error)
			return
		}
		WriteDispatchResponse(w, outcome.Response, outcome.Response.ExecutorType, outcome.Response.Attempts)
	}
}

// readBoundedBody reads the request body when the method or content type
// calls for it, stopping and reporting rejection as soon as maxBodyBytes
// is exceeded, even without a trustworthy Content-Length.
func readBoundedBody(r *http.Request, maxBodyBytes int64) (body *string, rejected bool) {
	if !hasBody(r) {
		return nil, false
	}

	limited := io.LimitReader(r.Body, maxBodyBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, true
	}
	if int64(len(raw)) > maxBodyBytes {
		return nil, true
	}
	s := string(raw)
	return &s, false
}

func hasBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "application/json"
}

// decodedPath extracts the "/api" wildcard remainder (the chi "*" param),
// not the full request path, and URL-decodes it once; a decoded "/" inside
// a segment is preserved as path content, not re-split.
func decodedPath(r *http.Request) string {
	wildcard := chi.URLParam(r, "*")
	if decoded, err := url.PathUnescape(wildcard); err == nil {
		return decoded
	}
	return wildcard
}

func requestHeaderMap(r *http.Request) *model.HeaderMap {
	headers := model.NewHeaderMap()
	for name, values := range r.Header {
		if len(values) > 0 {
			headers.Set(name, strings.Join(values, "; "))
		}
	}
	return headers
}

func queryHeaderMap(r *http.Request) *model.HeaderMap {
	query := model.NewHeaderMap()
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			query.Set(name, values[0])
		}
	}
	return query
}

// Package httpx holds the JSON plumbing shared by the merchant, customer and
// wallet services.
package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

func NewRequestID() string { return "req_" + uuid.NewString() }

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func WriteError(w http.ResponseWriter, status int, code, message string, details any) {
	resp := map[string]any{
		"request_id": NewRequestID(),
		"error": map[string]any{
			"code": code, "message": message, "details": details,
		},
	}
	WriteJSON(w, status, resp)
}

// ErrorMapping binds a sentinel error to the HTTP status and stable error
// code its wrapped errors should surface as.
type ErrorMapping struct {
	Sentinel error
	Status   int
	Code     string
}

// WriteMappedError walks the table in order and writes the first mapping
// whose sentinel matches, falling back to 500/INTERNAL.
func WriteMappedError(w http.ResponseWriter, err error, table []ErrorMapping) {
	for _, m := range table {
		if errors.Is(err, m.Sentinel) {
			WriteError(w, m.Status, m.Code, err.Error(), nil)
			return
		}
	}
	WriteError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// AccessLog logs one structured line per request.
func AccessLog(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)
			log.Info("http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

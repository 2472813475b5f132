package httpapi

import (
	"net/http"
	"time"

	"github.com/richmiles/in-the-event-of-my-death/internal/alerting"
	"github.com/richmiles/in-the-event-of-my-death/internal/common"
)

const correlationIDHeader = "X-Correlation-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logRequests logs method, path, status and duration under a per-request
// correlation id. Query strings, headers and client addresses are never
// logged.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := common.MakeRandHexString(4)
		if err != nil {
			id = "unknown"
		}
		w.Header().Set(correlationIDHeader, id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Info(r.Context(), "request completed",
			"correlation_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				s.logger.Error(r.Context(), "handler panic", "path", r.URL.Path, "panic", p)
				s.alert(r, "Unhandled Exception", "handler panic")
				writeError(w, http.StatusInternalServerError, "internal server error", "internal_error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) alert(r *http.Request, kind, msg string) {
	if s.alerts == nil {
		return
	}
	s.alerts.Alert(r.Context(), alerting.Alert{
		Type:    kind,
		Message: msg,
		Context: map[string]string{
			"method": r.Method,
			"path":   r.URL.Path,
		},
	})
}

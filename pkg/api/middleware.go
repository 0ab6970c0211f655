package api

import (
	"net/http"
	"strconv"

	"github.com/cuemby/kupo/pkg/health"
	"github.com/cuemby/kupo/pkg/metrics"
	"github.com/google/uuid"
)

// statusRecorder captures the response status for the tracer.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// trace wraps a handler with the tracer middleware: request id, structured
// {method, path, status} logging, Prometheus counters, the concurrency
// limiter, and the X-Most-Recent-Checkpoint header stamped on every
// response.
func (s *Server) trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case s.slots <- struct{}{}:
			defer func() { <-s.slots }()
		case <-r.Context().Done():
			return
		}

		if snapshot := s.health.Snapshot(); snapshot.MostRecentCheckpoint != nil {
			w.Header().Set("X-Most-Recent-Checkpoint",
				strconv.FormatUint(snapshot.MostRecentCheckpoint.Slot, 10))
		}

		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w}

		defer func() {
			if err := recover(); err != nil {
				// Handler errors become responses, never crashes.
				s.logger.Error().Interface("panic", err).Msg("Handler panicked")
				if rec.status == 0 {
					writeError(rec, nil)
				}
			}

			timer.ObserveDurationVec(health.RequestDuration, r.Method)
			health.RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()

			event := s.logger.Info()
			if rec.status >= 500 {
				event = s.logger.Error()
			}
			event.
				Str("request_id", uuid.NewString()).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Send()
		}()

		next.ServeHTTP(rec, r)
	})
}

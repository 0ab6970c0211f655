package api

import (
	"encoding/json"
	"net/http"
)

// stream writes a newline-delimited JSON response one item at a time. The
// first Yield commits the 200 status; afterwards errors can only abort the
// stream mid-flight, which the client detects as a truncated body.
type stream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	enc     *json.Encoder
	started bool
	count   int
}

func newStream(w http.ResponseWriter) *stream {
	flusher, _ := w.(http.Flusher)
	return &stream{w: w, flusher: flusher, enc: json.NewEncoder(w)}
}

// Yield writes one item. Encoder.Encode appends the newline delimiter.
func (s *stream) Yield(item interface{}) error {
	if !s.started {
		s.w.Header().Set("Content-Type", "application/x-ndjson")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if err := s.enc.Encode(item); err != nil {
		return err
	}
	s.count++
	// Flush in small batches so slow consumers see progress without
	// per-row syscall overhead.
	if s.flusher != nil && s.count%64 == 0 {
		s.flusher.Flush()
	}
	return nil
}

// Done finishes the stream. An empty stream still gets its 200 and an
// empty body.
func (s *stream) Done() {
	if !s.started {
		s.w.Header().Set("Content-Type", "application/x-ndjson")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// Started reports whether the status line has been sent, in which case a
// late error can no longer be rendered as JSON.
func (s *stream) Started() bool {
	return s.started
}

// writeJSON renders a single non-streamed JSON document.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

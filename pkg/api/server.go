package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cuemby/kupo/pkg/consumer"
	"github.com/cuemby/kupo/pkg/database"
	"github.com/cuemby/kupo/pkg/health"
	"github.com/cuemby/kupo/pkg/log"
	"github.com/cuemby/kupo/pkg/pattern"
	"github.com/cuemby/kupo/pkg/producer"
	"github.com/rs/zerolog"
)

// Config configures the HTTP server.
type Config struct {
	Host string
	Port int
	// MaxConcurrency bounds simultaneously served requests (default 50,
	// minimum 10).
	MaxConcurrency int
}

// Server is the HTTP front of the indexer.
type Server struct {
	cfg      Config
	db       *database.DB
	registry *pattern.Registry
	consumer *consumer.Consumer
	fetcher  producer.Producer
	health   *health.State
	slots    chan struct{}
	httpSrv  *http.Server
	logger   zerolog.Logger
}

// NewServer assembles the server around its collaborators.
func NewServer(cfg Config, db *database.DB, registry *pattern.Registry,
	cons *consumer.Consumer, fetcher producer.Producer, healthState *health.State) *Server {

	if cfg.MaxConcurrency < 10 {
		cfg.MaxConcurrency = 10
	}

	s := &Server{
		cfg:      cfg,
		db:       db,
		registry: registry,
		consumer: cons,
		fetcher:  fetcher,
		health:   healthState,
		slots:    make(chan struct{}, cfg.MaxConcurrency),
		logger:   log.WithComponent("http"),
	}

	s.httpSrv = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		Handler:           s.trace(http.HandlerFunc(s.route)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.httpSrv.Addr).Msg("HTTP server listening")
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// route dispatches on method and path. The path grammar is flat enough
// that splitting segments by hand beats a routing dependency.
func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	segments := splitPath(r.URL.Path)
	if len(segments) == 0 {
		writeError(w, errNotFound)
		return
	}

	switch segments[0] {
	case "health":
		if len(segments) != 1 {
			writeError(w, errNotFound)
			return
		}
		s.require(w, r, http.MethodGet, s.handleGetHealth)

	case "checkpoints":
		switch len(segments) {
		case 1:
			s.require(w, r, http.MethodGet, s.handleGetCheckpoints)
		case 2:
			slot := segments[1]
			s.require(w, r, http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
				s.handleGetCheckpointBySlot(w, r, slot)
			})
		default:
			writeError(w, errNotFound)
		}

	case "matches":
		patternText := joinPattern(segments[1:])
		switch r.Method {
		case http.MethodGet:
			s.handleGetMatches(w, r, patternText)
		case http.MethodDelete:
			if len(segments) == 1 {
				writeError(w, errNotFound)
				return
			}
			s.handleDeleteMatches(w, r, patternText)
		default:
			writeError(w, errMethodNotAllowed)
		}

	case "datums":
		if len(segments) != 2 {
			writeError(w, errNotFound)
			return
		}
		hash := segments[1]
		s.require(w, r, http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
			s.handleGetDatum(w, r, hash)
		})

	case "scripts":
		if len(segments) != 2 {
			writeError(w, errNotFound)
			return
		}
		hash := segments[1]
		s.require(w, r, http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
			s.handleGetScript(w, r, hash)
		})

	case "metadata":
		if len(segments) != 2 {
			writeError(w, errNotFound)
			return
		}
		slot := segments[1]
		s.require(w, r, http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
			s.handleGetMetadata(w, r, slot)
		})

	case "patterns":
		patternText := joinPattern(segments[1:])
		switch r.Method {
		case http.MethodGet:
			s.handleGetPatterns(w, r, patternText)
		case http.MethodPut:
			if len(segments) == 1 {
				writeError(w, errNotFound)
				return
			}
			s.handlePutPattern(w, r, patternText)
		case http.MethodDelete:
			if len(segments) == 1 {
				writeError(w, errNotFound)
				return
			}
			s.handleDeletePattern(w, r, patternText)
		default:
			writeError(w, errMethodNotAllowed)
		}

	default:
		writeError(w, errNotFound)
	}
}

// require rejects any method but the one expected.
func (s *Server) require(w http.ResponseWriter, r *http.Request, method string, h http.HandlerFunc) {
	if r.Method != method {
		writeError(w, errMethodNotAllowed)
		return
	}
	h(w, r)
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// joinPattern reassembles a pattern split across path segments: credential
// patterns legitimately contain a single '/'.
func joinPattern(segments []string) string {
	return strings.Join(segments, "/")
}

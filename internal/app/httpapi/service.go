package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aims-io/aims/internal/app"
	"github.com/aims-io/aims/internal/app/metrics"
	"github.com/aims-io/aims/pkg/logger"
)

// Service exposes the HTTP API over a configurable listener.
type Service struct {
	addr    string
	server  *http.Server
	handler http.Handler
	log     *logger.Logger
}

// NewService assembles the middleware stack around the REST handler.
// Order matters: metrics wraps everything, the duration header must be
// armed before any handler writes, and the rate limiter must see every
// request before business logic runs.
func NewService(application *app.Application, addr string, limiter *RateLimiter, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("http")
	}
	handler := NewHandler(application)
	if limiter != nil {
		handler = limiter.Handler(handler)
	}
	handler = wrapWithDuration(handler)
	handler = metrics.InstrumentHandler(handler)
	return &Service{
		addr:    addr,
		handler: handler,
		log:     log,
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.handler
}

// Start begins serving in the background.
func (s *Service) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("http server error: %v", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Service) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// durationWriter stamps X-Request-Duration-Ms just before the status line is
// written; headers cannot change afterwards.
type durationWriter struct {
	http.ResponseWriter
	start   time.Time
	written bool
}

func (dw *durationWriter) WriteHeader(code int) {
	if !dw.written {
		dw.written = true
		ms := float64(time.Since(dw.start).Microseconds()) / 1000.0
		dw.Header().Set("X-Request-Duration-Ms", fmt.Sprintf("%.2f", ms))
	}
	dw.ResponseWriter.WriteHeader(code)
}

func (dw *durationWriter) Write(b []byte) (int, error) {
	if !dw.written {
		dw.WriteHeader(http.StatusOK)
	}
	return dw.ResponseWriter.Write(b)
}

// wrapWithDuration adds the request timing header to every response.
func wrapWithDuration(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&durationWriter{ResponseWriter: w, start: time.Now()}, r)
	})
}

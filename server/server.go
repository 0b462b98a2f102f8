// Package server wires the HTTP routes, middleware and lifecycle.
package server

import (
	"context"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/klauspost/compress/gzhttp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-transcript/config"
	"github.com/nijaru/yt-transcript/handlers"
	"github.com/nijaru/yt-transcript/middleware"
	"github.com/nijaru/yt-transcript/utils"
)

type Server struct {
	cfg     *config.Config
	log     *logrus.Logger
	handler http.Handler
	http    *http.Server
}

func New(cfg *config.Config, log *logrus.Logger, h *handlers.Handler) *Server {
	s := &Server{
		cfg:     cfg,
		log:     log,
		handler: NewRouter(cfg, log, h),
	}
	s.http = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.handler,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  cfg.Server.IdleTimeout.Std(),
	}
	return s
}

// NewRouter builds the chi router with the full middleware stack.
func NewRouter(cfg *config.Config, log *logrus.Logger, h *handlers.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(cors.Handler(middleware.CORSOptions(cfg.CORS.AllowedOrigins, cfg.CORS.MaxAge)))
	if cfg.RateLimit.Enabled {
		r.Use(middleware.NewRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.Interval.Std()).Middleware)
	}
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout.Std()))
	if cfg.Server.EnableCompression {
		r.Use(func(next http.Handler) http.Handler {
			return gzhttp.GzipHandler(next)
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithError(w, http.StatusNotFound, "not found", middleware.GetRequestID(r.Context()))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "method not allowed", middleware.GetRequestID(r.Context()))
	})

	h.Register(r)
	return r
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address and serves until ctx is done, then
// shuts down gracefully within the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.http.Addr)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", ln.Addr().String()).Info("Server listening")
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "serve")
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout.Std())
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	if err := <-errCh; err != nil {
		return errors.Wrap(err, "serve")
	}
	s.log.Info("Server stopped")
	return nil
}

// Package server wires the HTTP surface: router, middleware, listener.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	importhandler "github.com/centavohq/centavo/internal/domain/import/handler"
	"github.com/centavohq/centavo/internal/domain/rules"
	"github.com/centavohq/centavo/pkg/auth"
	"github.com/centavohq/centavo/pkg/config"
	"github.com/centavohq/centavo/pkg/httputil"
	"github.com/centavohq/centavo/pkg/metrics"
)

// Options carries everything the router mounts.
type Options struct {
	Config        *config.Config
	Auth          *auth.Service
	ImportHandler *importhandler.ImportHandler
	RulesHandler  *rules.Handler
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

// Server is the HTTP listener.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New builds the router and the listener around it.
func New(opts Options) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(opts.Logger))
	r.Use(rateLimiter(opts.Config.Server.RateLimitPerSecond, opts.Config.Server.RateLimitBurst, opts.Logger))
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   opts.Config.Server.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(opts.Auth.Middleware)
		r.Route("/imports", opts.ImportHandler.Routes)
		r.Route("/rules", opts.RulesHandler.Routes)
	})

	addr := fmt.Sprintf("%s:%d", opts.Config.Server.Host, opts.Config.Server.Port)
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: opts.Logger,
	}
}

// Run blocks serving requests until the listener fails or is shut down.
func (s *Server) Run() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// requestLogger logs each request at debug with its outcome status.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start))
		})
	}
}

// rateLimiter applies a global token-bucket limit across all clients.
func rateLimiter(perSecond, burst int, logger *slog.Logger) func(http.Handler) http.Handler {
	if perSecond <= 0 {
		perSecond = 100
	}
	if burst <= 0 {
		burst = perSecond * 2
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				logger.Warn("rate limit exceeded",
					"method", r.Method,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr)
				httputil.SendJSONError(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

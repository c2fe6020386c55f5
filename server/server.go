// Package server 暴露推荐引擎的 HTTP 接口。
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/service"
)

// Config 是 HTTP 服务配置。
type Config struct {
	Addr string `koanf:"addr" validate:"required"`

	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	CORSOrigins []string `koanf:"cors_origins"`

	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		CORSOrigins:       []string{"*"},
		RateLimitRequests: 300,
		RateLimitWindow:   time.Minute,
	}
}

// Server 持有路由和依赖，实现 suture.Service。
type Server struct {
	cfg    Config
	rec    *service.Recommender
	auth   Authenticator
	logger zerolog.Logger
}

// New 创建 Server。auth 为空时写入类接口一律返回 401。
func New(cfg Config, rec *service.Recommender, auth Authenticator, logger zerolog.Logger) *Server {
	return &Server{cfg: cfg, rec: rec, auth: auth, logger: logger}
}

// Router 构建 chi 路由。
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsHandler(s.cfg))
	r.Use(accessLog)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(rateLimit(s.cfg))

		r.Route("/recommendations", func(r chi.Router) {
			r.Get("/", s.handleRecommendations)
			r.Get("/debug", s.handleDebug)
			r.Get("/by-seed", s.handleBySeed)
			r.Get("/{user}", s.handleRecommendations)
		})
		r.Post("/track/{type}", s.handleTrack)
		r.Get("/interactions", s.handleInteractions)
	})
	return r
}

func (s *Server) String() string { return "http-server" }

// Serve 监听并服务，ctx 结束时优雅关闭。
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return ctx.Err()
}

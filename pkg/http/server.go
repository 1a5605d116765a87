package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"CoinOdds/pkg/http/middleware"
	"CoinOdds/pkg/logger"
)

// Handler mounts a group of routes.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORS            bool
	// MetricsPath serves Prometheus metrics; empty disables the route.
	MetricsPath   string
	SlowThreshold time.Duration
}

type ServerOption func(*ServerConfig)

func WithHost(host string) ServerOption { return func(c *ServerConfig) { c.Host = host } }

func WithPort(port int) ServerOption { return func(c *ServerConfig) { c.Port = port } }

func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(c *ServerConfig) { c.ReadTimeout, c.WriteTimeout, c.ShutdownTimeout = read, write, shutdown }
}

func WithCORS(enabled bool) ServerOption { return func(c *ServerConfig) { c.CORS = enabled } }

// WithMetricsPath moves the Prometheus route; "" removes it.
func WithMetricsPath(path string) ServerOption { return func(c *ServerConfig) { c.MetricsPath = path } }

func WithSlowThreshold(d time.Duration) ServerOption {
	return func(c *ServerConfig) { c.SlowThreshold = d }
}

// Server is an Echo instance behind recovery, logging, metrics and CORS.
type Server struct {
	echo *echo.Echo
	cfg  ServerConfig
	log  *logger.Logger
}

func NewServer(log *logger.Logger, handlers []Handler, opts ...ServerOption) *Server {
	cfg := ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		CORS:            true,
		MetricsPath:     "/metrics",
		SlowThreshold:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	e := echo.New()
	e.HideBanner, e.HidePort = true, true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	e.Use(middleware.Recover(log), middleware.RequestLogging(log), middleware.Metrics(log, cfg.SlowThreshold))
	if cfg.CORS {
		e.Use(middleware.CORS(middleware.CORSConfig{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	for _, h := range handlers {
		if h != nil {
			h.RegisterRoutes(e)
		}
	}
	if cfg.MetricsPath != "" {
		e.GET(cfg.MetricsPath, echo.WrapHandler(promhttp.Handler()))
	}
	return &Server{echo: e, cfg: cfg, log: log}
}

// Start binds the port before returning so an address already in use is
// reported to the caller; serving continues in the background.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.echo.Listener = ln

	s.log.Info("http server listening", logger.String("addr", ln.Addr().String()))
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server failed", logger.Error(err))
		}
	}()
	return nil
}

// Addr is the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.echo.Listener == nil {
		return ""
	}
	return s.echo.Listener.Addr().String()
}

// Stop drains in-flight requests within the shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

func (s *Server) Echo() *echo.Echo { return s.echo }

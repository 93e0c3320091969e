// Package admin exposes the HTTP status surface for a running link.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/tether/internal/link"
	"github.com/danmuck/tether/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	ErrAddrRequired   = errors.New("admin: addr required")
	ErrStatusRequired = errors.New("admin: status provider required")
)

// StatusProvider hands the server a point-in-time link snapshot.
type StatusProvider interface {
	Status() link.Status
}

type Config struct {
	Addr        string
	App         string
	CorsOrigins []string
}

// Server owns the admin gin engine and its listener.
type Server struct {
	cfg      Config
	engine   *gin.Engine
	httpSrv  *http.Server
	status   StatusProvider
	appeared time.Time

	ln net.Listener
}

func NewServer(cfg Config, status StatusProvider) (*Server, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, ErrAddrRequired
	}
	if status == nil {
		return nil, ErrStatusRequired
	}
	if strings.TrimSpace(cfg.App) == "" {
		cfg.App = "tetherctl"
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(observability.RequestLogger(log.Logger))
	engine.Use(observability.RequestMetricsMiddleware(cfg.App))
	if len(cfg.CorsOrigins) > 0 {
		engine.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CorsOrigins,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	s := &Server{
		cfg:      cfg,
		engine:   engine,
		status:   status,
		appeared: time.Now(),
	}
	s.registerRoutes()
	s.httpSrv = &http.Server{Handler: engine}
	return s, nil
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(s.appeared).String(),
			"component": s.cfg.App,
			"version":   "0.0.1",
		})
	})

	s.engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"link":   s.status.Status(),
			"uptime": time.Since(s.appeared).String(),
		})
	})

	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	observability.RegisterMetrics()
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("admin server stopped")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("admin server listening")
	return nil
}

// Addr returns the bound listen address, usable once Start returned.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.cfg.Addr
	}
	return s.ln.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/tether/internal/config"
	"github.com/danmuck/tether/internal/observability"
	"github.com/danmuck/tether/internal/wire"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var startedAt = time.Now()

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relayctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to relay config toml")
	addr := flag.String("addr", "", "listen address (overrides config)")
	flag.Parse()

	logger := observability.InitLogger("relayctl")
	observability.RegisterMetrics()

	cfg := config.RelayConfig{Name: "relayctl", Addr: ":9400", TickInterval: "5s", Echo: true}
	if *configPath != "" {
		loaded, err := config.LoadRelayConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetricsMiddleware(cfg.Name))
	if len(cfg.CorsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CorsOrigins,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(startedAt).String(),
			"component": cfg.Name,
			"version":   "0.0.1",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	relay := newRelay(cfg)
	r.GET("/feed", relay.serveFeed)

	srv := &http.Server{Addr: cfg.Addr, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("relay listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

type relay struct {
	cfg      config.RelayConfig
	upgrader websocket.Upgrader
}

func newRelay(cfg config.RelayConfig) *relay {
	return &relay{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// serveFeed upgrades the request and runs one connection: periodic tick
// envelopes out, inbound envelopes echoed back when enabled.
func (r *relay) serveFeed(c *gin.Context) {
	conn, err := r.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	observability.RecordRelayConnection()

	connID := uuid.NewString()
	log.Info().Str("conn", connID).Str("client_ip", c.ClientIP()).Msg("feed connected")

	var writeMu sync.Mutex
	send := func(env wire.Envelope) error {
		data, err := wire.Encode(env)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return err
		}
		observability.RecordRelayMessage("outbound")
		return nil
	}

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(r.cfg.Tick())
		defer ticker.Stop()
		seq := 0
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				seq++
				env, err := wire.NewEnvelope("tick", map[string]any{
					"conn": connID,
					"seq":  seq,
				})
				if err != nil {
					continue
				}
				if err := send(env); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		observability.RecordRelayMessage("inbound")
		if !r.cfg.Echo {
			continue
		}
		decoded, err := wire.Decode(data)
		if err != nil {
			log.Debug().Str("conn", connID).Err(err).Msg("drop undecodable inbound")
			continue
		}
		env := decoded.(wire.Envelope)
		if err := send(env); err != nil {
			break
		}
	}

	close(stop)
	_ = conn.Close()
	log.Info().Str("conn", connID).Msg("feed disconnected")
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/tether/internal/admin"
	"github.com/danmuck/tether/internal/link"
	"github.com/danmuck/tether/internal/logging"
	"github.com/danmuck/tether/internal/transport"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tetherctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to tether config toml")
	address := flag.String("addr", "", "server address (overrides config)")
	transportKind := flag.String("transport", "", "transport driver: websocket|tcp (overrides config)")
	adminAddr := flag.String("admin", "", "admin listen address (overrides config)")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg := defaultRunConfig()
	if *configPath != "" {
		loaded, err := loadRunConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *address != "" {
		cfg.Address = *address
	}
	if *transportKind != "" {
		cfg.Transport = *transportKind
	}
	if *adminAddr != "" {
		cfg.AdminAddr = *adminAddr
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	driver, err := buildTransport(cfg)
	if err != nil {
		return err
	}

	l, err := link.New(link.Config{
		Address:      cfg.Address,
		Transport:    driver,
		Backoff:      cfg.Backoff,
		BackoffReset: cfg.BackoffReset,
	})
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	out := json.NewEncoder(os.Stdout)
	l.On(link.EventData, func(payload any) {
		if err := out.Encode(payload); err != nil {
			log.Warn().Err(err).Msg("write data event")
		}
	})
	l.On(link.EventError, func(payload any) {
		if err, ok := payload.(error); ok {
			log.Warn().Err(err).Msg("link error event")
		}
	})
	l.On(link.EventEnd, func(payload any) {
		err, _ := payload.(error)
		select {
		case done <- err:
		default:
		}
	})

	var adminSrv *admin.Server
	if cfg.AdminAddr != "" {
		adminSrv, err = admin.NewServer(admin.Config{
			Addr:        cfg.AdminAddr,
			App:         "tetherctl",
			CorsOrigins: cfg.CorsOrigins,
		}, l)
		if err != nil {
			return err
		}
		if err := adminSrv.Start(); err != nil {
			return err
		}
	}

	if err := l.Start(); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
	case err := <-done:
		runErr = err
	}

	_ = l.Close()
	if adminSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = adminSrv.Shutdown(ctx)
	}
	return runErr
}

func buildTransport(cfg runConfig) (link.Transport, error) {
	switch cfg.Transport {
	case transportWebSocket:
		return transport.NewWebSocket(transport.WebSocketConfig{TLS: cfg.TLS})
	case transportTCP:
		return transport.NewTCP(transport.TCPConfig{TLS: cfg.TLS})
	default:
		return nil, fmt.Errorf("unknown transport: %s", cfg.Transport)
	}
}

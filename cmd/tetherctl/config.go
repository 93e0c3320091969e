package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/tether/internal/backoff"
	"github.com/danmuck/tether/internal/transport"
)

const (
	transportWebSocket = "websocket"
	transportTCP       = "tcp"
)

// runConfig is the assembled tetherctl runtime configuration: defaults,
// overlaid by the optional TOML file, overlaid by flags.
type runConfig struct {
	Address      string
	Transport    string
	Backoff      backoff.Config
	BackoffReset time.Duration
	AdminAddr    string
	CorsOrigins  []string
	TLS          transport.TLSConfig
}

func defaultRunConfig() runConfig {
	return runConfig{
		Transport: transportWebSocket,
		Backoff:   backoff.DefaultConfig(),
	}
}

func (c runConfig) validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return fmt.Errorf("address is required")
	}
	switch c.Transport {
	case transportWebSocket, transportTCP:
	default:
		return fmt.Errorf("unknown transport: %s", c.Transport)
	}
	return c.TLS.Validate()
}

type fileTLS struct {
	Enabled            bool   `toml:"enabled"`
	CAFile             string `toml:"ca_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

type fileConfig struct {
	Address      string   `toml:"address"`
	Transport    string   `toml:"transport"`
	MinDelay     string   `toml:"min_delay"`
	MaxDelay     string   `toml:"max_delay"`
	Retries      int      `toml:"retries"`
	Factor       float64  `toml:"factor"`
	BackoffReset string   `toml:"backoff_reset"`
	AdminAddr    string   `toml:"admin_addr"`
	CorsOrigins  []string `toml:"cors_origins"`
	TLS          fileTLS  `toml:"tls"`
}

func loadRunConfig(path string) (runConfig, error) {
	cfg := defaultRunConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return runConfig{}, fmt.Errorf("load tether config: %w", err)
	}

	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}

	if meta.IsDefined("transport") {
		cfg.Transport = strings.ToLower(strings.TrimSpace(raw.Transport))
	}

	if meta.IsDefined("min_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.MinDelay))
		if err != nil {
			return runConfig{}, fmt.Errorf("parse min_delay: %w", err)
		}
		cfg.Backoff.MinDelay = d
	}

	if meta.IsDefined("max_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.MaxDelay))
		if err != nil {
			return runConfig{}, fmt.Errorf("parse max_delay: %w", err)
		}
		cfg.Backoff.MaxDelay = d
	}

	if meta.IsDefined("retries") {
		cfg.Backoff.Retries = raw.Retries
	}

	if meta.IsDefined("factor") {
		cfg.Backoff.Factor = raw.Factor
	}

	if meta.IsDefined("backoff_reset") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.BackoffReset))
		if err != nil {
			return runConfig{}, fmt.Errorf("parse backoff_reset: %w", err)
		}
		cfg.BackoffReset = d
	}

	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}

	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeOrigins(raw.CorsOrigins)
	}

	if meta.IsDefined("tls", "enabled") {
		cfg.TLS.Enabled = raw.TLS.Enabled
	}
	if meta.IsDefined("tls", "ca_file") {
		cfg.TLS.CAFile = strings.TrimSpace(raw.TLS.CAFile)
	}
	if meta.IsDefined("tls", "server_name") {
		cfg.TLS.ServerName = strings.TrimSpace(raw.TLS.ServerName)
	}
	if meta.IsDefined("tls", "insecure_skip_verify") {
		cfg.TLS.InsecureSkipVerify = raw.TLS.InsecureSkipVerify
	}

	return cfg, nil
}

func normalizeOrigins(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

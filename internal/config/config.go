package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// RelayConfig shapes the relayctl demo server.
type RelayConfig struct {
	Name         string   `toml:"name"`
	Addr         string   `toml:"addr"`
	CorsOrigins  []string `toml:"cors_origins"`
	TickInterval string   `toml:"tick_interval"`
	Echo         bool     `toml:"echo"`
}

func LoadRelayConfig(path string) (RelayConfig, error) {
	cfg := RelayConfig{Echo: true}
	if err := loadToml(path, &cfg); err != nil {
		return RelayConfig{}, err
	}
	if cfg.Name == "" {
		cfg.Name = "relayctl"
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9400"
	}
	if cfg.TickInterval == "" {
		cfg.TickInterval = "5s"
	}
	if err := ValidateRelayConfig(cfg); err != nil {
		return RelayConfig{}, err
	}
	return cfg, nil
}

func ValidateRelayConfig(cfg RelayConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("relay config missing name")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("relay config missing addr")
	}
	if _, err := time.ParseDuration(strings.TrimSpace(cfg.TickInterval)); err != nil {
		return fmt.Errorf("relay config tick_interval invalid: %w", err)
	}
	return nil
}

// Tick returns the parsed tick interval. ValidateRelayConfig has already
// checked it parses.
func (c RelayConfig) Tick() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.TickInterval))
	if err != nil {
		return 5 * time.Second
	}
	return d
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

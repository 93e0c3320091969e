package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "relay":
		return relayTemplate, nil
	case "client":
		return clientTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const relayTemplate = `name = "relayctl"
addr = ":9400"
cors_origins = ["http://localhost:3000"]
tick_interval = "5s"
echo = true
`

const clientTemplate = `address = "ws://localhost:9400/feed"
transport = "websocket"

min_delay = "500ms"
max_delay = "30s"
retries = 25
factor = 2.0
backoff_reset = "30s"

admin_addr = ""

[tls]
enabled = false
ca_file = ""
server_name = ""
insecure_skip_verify = false
`

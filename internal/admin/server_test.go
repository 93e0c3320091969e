package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/danmuck/tether/internal/link"
	"github.com/danmuck/tether/internal/testutil/testlog"
)

type staticStatus struct {
	status link.Status
}

func (s staticStatus) Status() link.Status {
	return s.status
}

func TestServerRoutes(t *testing.T) {
	testlog.Start(t)
	provider := staticStatus{status: link.Status{
		ID:      "link-1",
		URL:     "wss://host/feed",
		Phase:   link.PhaseOpen,
		Attempt: 1,
		Retries: 25,
	}}
	srv, err := NewServer(Config{Addr: "127.0.0.1:0", App: "tetherctl"}, provider)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	base := "http://" + srv.Addr()

	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status=%d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Get(base + "/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status status=%d", resp.StatusCode)
	}
	var payload struct {
		Link link.Status `json:"link"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("status body: %v", err)
	}
	if payload.Link.ID != "link-1" || payload.Link.Phase != link.PhaseOpen {
		t.Fatalf("status payload: %+v", payload.Link)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status=%d", resp.StatusCode)
	}
}

func TestNewServerValidation(t *testing.T) {
	testlog.Start(t)
	if _, err := NewServer(Config{}, staticStatus{}); !errors.Is(err, ErrAddrRequired) {
		t.Fatalf("missing addr err=%v", err)
	}
	if _, err := NewServer(Config{Addr: ":0"}, nil); !errors.Is(err, ErrStatusRequired) {
		t.Fatalf("missing provider err=%v", err)
	}
}

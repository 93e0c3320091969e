package transport

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/tether/internal/backoff"
	"github.com/danmuck/tether/internal/link"
	"github.com/danmuck/tether/internal/testutil/testlog"
	"github.com/danmuck/tether/internal/wire"
	"github.com/gorilla/websocket"
)

func waitAny(t *testing.T, ch chan any, what string) any {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func TestWebSocketFeedAndEcho(t *testing.T) {
	testlog.Start(t)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"tick","timestamp_ms":1}`)); err != nil {
			return
		}
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	driver, err := NewWebSocket(DefaultWebSocketConfig())
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	l, err := link.New(link.Config{
		Address:   srv.URL + "/feed",
		Transport: driver,
	})
	if err != nil {
		t.Fatalf("new link: %v", err)
	}
	defer l.Close()

	opened := make(chan any, 2)
	data := make(chan any, 4)
	l.On(link.EventOpen, func(payload any) { opened <- payload })
	l.On(link.EventData, func(payload any) { data <- payload })

	if err := l.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitAny(t, opened, "open event")

	tick := waitAny(t, data, "feed envelope")
	env, ok := tick.(wire.Envelope)
	if !ok || env.Type != "tick" {
		t.Fatalf("feed payload=%v", tick)
	}

	out, err := wire.NewEnvelope("probe", map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if err := l.Send(out); err != nil {
		t.Fatalf("send: %v", err)
	}
	echo := waitAny(t, data, "echo envelope")
	env, ok = echo.(wire.Envelope)
	if !ok || env.Type != "probe" || env.ID != out.ID {
		t.Fatalf("echo payload=%v", echo)
	}
}

func TestWebSocketReconnectsAfterServerDrop(t *testing.T) {
	testlog.Start(t)
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// First channel drops immediately to force a retry.
		if conns.Add(1) == 1 {
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	driver, err := NewWebSocket(DefaultWebSocketConfig())
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	l, err := link.New(link.Config{
		Address:   srv.URL + "/feed",
		Transport: driver,
		Backoff:   backoff.Config{MinDelay: 5 * time.Millisecond, Retries: 5},
	})
	if err != nil {
		t.Fatalf("new link: %v", err)
	}
	defer l.Close()

	opened := make(chan any, 4)
	l.On(link.EventOpen, func(payload any) { opened <- payload })

	if err := l.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitAny(t, opened, "first open")
	waitAny(t, opened, "open after reconnect")
	if got := conns.Load(); got < 2 {
		t.Fatalf("server saw %d connections", got)
	}
}

func TestWebSocketWriteWithoutChannel(t *testing.T) {
	testlog.Start(t)
	driver, err := NewWebSocket(DefaultWebSocketConfig())
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	if err := driver.Write([]byte("x")); err != ErrNoChannel {
		t.Fatalf("write err=%v", err)
	}
}

func TestWebSocketRejectsBadTLSConfig(t *testing.T) {
	testlog.Start(t)
	if _, err := NewWebSocket(WebSocketConfig{TLS: TLSConfig{Enabled: true}}); err == nil {
		t.Fatalf("invalid tls config accepted")
	}
}

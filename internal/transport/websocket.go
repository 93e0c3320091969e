package transport

import (
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/danmuck/tether/internal/bus"
	"github.com/danmuck/tether/internal/link"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoChannel    = errors.New("transport: no open channel")
	ErrAlreadyBound = errors.New("transport: driver already bound")
)

// WebSocketConfig shapes the gorilla dialer.
type WebSocketConfig struct {
	HandshakeTimeout time.Duration
	TLS              TLSConfig
}

func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		HandshakeTimeout: 5 * time.Second,
	}
}

func (c WebSocketConfig) withDefaults() WebSocketConfig {
	def := DefaultWebSocketConfig()
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	return c
}

// WebSocket drives one link over a gorilla WebSocket channel.
type WebSocket struct {
	cfg WebSocketConfig

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	bound  bool

	emitOpen bus.EmitFunc
	emitData bus.EmitFunc
	emitEnd  bus.EmitFunc
}

func NewWebSocket(cfg WebSocketConfig) (*WebSocket, error) {
	if err := cfg.TLS.Validate(); err != nil {
		return nil, err
	}
	return &WebSocket{cfg: cfg.withDefaults()}, nil
}

// Bind captures the link's emitters and subscribes the driver to its
// connect/reconnect intents. Dialing happens off the loop goroutine.
func (w *WebSocket) Bind(l *link.Link) error {
	w.mu.Lock()
	if w.bound {
		w.mu.Unlock()
		return ErrAlreadyBound
	}
	w.bound = true
	w.mu.Unlock()

	w.emitOpen = l.Emitter(link.EventOpen, nil)
	w.emitData = l.Emitter(link.EventData, nil)
	w.emitEnd = l.Emitter(link.EventEnd, nil)

	dial := func(payload any) {
		rawURL, ok := payload.(string)
		if !ok {
			return
		}
		go w.dial(rawURL)
	}
	l.On(link.EventConnectIntent, dial)
	l.On(link.EventReconnectIntent, dial)
	return nil
}

func (w *WebSocket) dial(rawURL string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: w.cfg.HandshakeTimeout,
	}
	if u, err := url.Parse(rawURL); err == nil && u.Scheme == "wss" {
		tlsCfg, err := w.cfg.TLS.Load(u.Host)
		if err != nil {
			log.Warn().Str("url", rawURL).Err(err).Msg("websocket tls config")
			w.emitEnd(err)
			return
		}
		dialer.TLSClientConfig = tlsCfg
	}

	conn, resp, err := dialer.Dial(rawURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		log.Warn().Str("url", rawURL).Err(err).Msg("websocket dial failed")
		w.emitEnd(err)
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		_ = conn.Close()
		return
	}
	w.conn = conn
	w.mu.Unlock()

	w.emitOpen(rawURL)
	go w.readLoop(conn)
}

func (w *WebSocket) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			w.mu.Lock()
			if w.conn == conn {
				w.conn = nil
			}
			closed := w.closed
			w.mu.Unlock()
			if !closed {
				w.emitEnd(err)
			}
			return
		}
		w.emitData(data)
	}
}

func (w *WebSocket) Write(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return ErrNoChannel
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WebSocket) Close() error {
	w.mu.Lock()
	w.closed = true
	conn := w.conn
	w.conn = nil
	w.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

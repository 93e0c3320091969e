package transport

import (
	"bufio"
	"crypto/tls"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/danmuck/tether/internal/bus"
	"github.com/danmuck/tether/internal/link"
	"github.com/rs/zerolog/log"
)

// TCPConfig shapes the raw TCP driver. Frames on the wire are u32
// length-prefixed payloads.
type TCPConfig struct {
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	TLS              TLSConfig
	Limits           FrameLimits
}

func DefaultTCPConfig() TCPConfig {
	return TCPConfig{
		DialTimeout:      5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		Limits:           DefaultFrameLimits(),
	}
}

func (c TCPConfig) withDefaults() TCPConfig {
	def := DefaultTCPConfig()
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.Limits.MaxFrameBytes == 0 {
		c.Limits = def.Limits
	}
	return c
}

// TCP drives one link over a raw TCP channel with length-prefixed frames.
// The resolved URL's host part is the dial target; TLS wraps the stream
// when enabled.
type TCP struct {
	cfg TCPConfig

	mu     sync.Mutex
	conn   net.Conn
	closed bool
	bound  bool

	emitOpen bus.EmitFunc
	emitData bus.EmitFunc
	emitEnd  bus.EmitFunc
}

func NewTCP(cfg TCPConfig) (*TCP, error) {
	if err := cfg.TLS.Validate(); err != nil {
		return nil, err
	}
	return &TCP{cfg: cfg.withDefaults()}, nil
}

func (d *TCP) Bind(l *link.Link) error {
	d.mu.Lock()
	if d.bound {
		d.mu.Unlock()
		return ErrAlreadyBound
	}
	d.bound = true
	d.mu.Unlock()

	d.emitOpen = l.Emitter(link.EventOpen, nil)
	d.emitData = l.Emitter(link.EventData, nil)
	d.emitEnd = l.Emitter(link.EventEnd, nil)

	dial := func(payload any) {
		rawURL, ok := payload.(string)
		if !ok {
			return
		}
		go d.dial(rawURL)
	}
	l.On(link.EventConnectIntent, dial)
	l.On(link.EventReconnectIntent, dial)
	return nil
}

func (d *TCP) dial(rawURL string) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	u, err := url.Parse(rawURL)
	if err != nil {
		d.emitEnd(err)
		return
	}

	dialer := net.Dialer{Timeout: d.cfg.DialTimeout}
	conn, err := dialer.Dial("tcp", u.Host)
	if err != nil {
		log.Warn().Str("url", rawURL).Err(err).Msg("tcp dial failed")
		d.emitEnd(err)
		return
	}

	if d.cfg.TLS.Enabled || u.Scheme == "wss" {
		tlsCfg, err := d.cfg.TLS.Load(u.Host)
		if err != nil {
			_ = conn.Close()
			d.emitEnd(err)
			return
		}
		tlsConn := tls.Client(conn, tlsCfg)
		_ = tlsConn.SetDeadline(time.Now().Add(d.cfg.HandshakeTimeout))
		if err := tlsConn.Handshake(); err != nil {
			_ = conn.Close()
			log.Warn().Str("url", rawURL).Err(err).Msg("tcp tls handshake failed")
			d.emitEnd(err)
			return
		}
		_ = tlsConn.SetDeadline(time.Time{})
		conn = tlsConn
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		_ = conn.Close()
		return
	}
	d.conn = conn
	d.mu.Unlock()

	d.emitOpen(rawURL)
	go d.readLoop(conn)
}

func (d *TCP) readLoop(conn net.Conn) {
	reader := bufio.NewReader(conn)
	for {
		payload, err := ReadFrame(reader, d.cfg.Limits)
		if err != nil {
			_ = conn.Close()
			d.mu.Lock()
			if d.conn == conn {
				d.conn = nil
			}
			closed := d.closed
			d.mu.Unlock()
			if !closed {
				d.emitEnd(err)
			}
			return
		}
		d.emitData(payload)
	}
}

func (d *TCP) Write(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return ErrNoChannel
	}
	return WriteFrame(d.conn, data, d.cfg.Limits)
}

func (d *TCP) Close() error {
	d.mu.Lock()
	d.closed = true
	conn := d.conn
	d.conn = nil
	d.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

package link

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/danmuck/tether/internal/backoff"
	"github.com/danmuck/tether/internal/bus"
	"github.com/danmuck/tether/internal/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrClosed         = errors.New("link: closed")
	ErrNotOpen        = errors.New("link: not open")
	ErrAlreadyStarted = errors.New("link: already started")
)

// Public event surface.
const (
	EventOpen  = "open"
	EventData  = "data"
	EventError = "error"
	EventEnd   = "end"
)

// Driver seam. Intents carry the resolved URL; the driver-reported events
// are the Emitter-namespaced forms of open/data/end.
const (
	EventConnectIntent   = bus.Namespace + "connect"
	EventReconnectIntent = bus.Namespace + "reconnect"

	driverOpen = bus.Namespace + EventOpen
	driverData = bus.Namespace + EventData
	driverEnd  = bus.Namespace + EventEnd
)

// Phase describes link lifecycle transitions.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseConnecting   Phase = "connecting"
	PhaseOpen         Phase = "open"
	PhaseReconnecting Phase = "reconnecting"
	PhaseFailed       Phase = "failed"
	PhaseClosed       Phase = "closed"
)

// Status reports current link identity, phase, and retry bookkeeping.
type Status struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Phase       Phase     `json:"phase"`
	Attempt     int       `json:"attempt"`
	Retries     int       `json:"retries"`
	LastError   string    `json:"last_error,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Link orchestrates one logical connection: connect, receive, detect
// termination, reconnect with backoff or fail.
type Link struct {
	cfg  Config
	id   string
	ep   Endpoint
	loop *bus.Loop
	bus  *bus.Bus
	ctrl *backoff.Controller

	mu          sync.RWMutex
	phase       Phase
	retryState  backoff.State
	lastErr     error
	connectedAt time.Time
	started     bool
	closed      bool

	stability *time.Timer

	closeOnce sync.Once
	closeErr  error
}

// New parses the endpoint, registers the internal handlers, and binds the
// transport driver. No I/O happens until Start.
func New(cfg Config) (*Link, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ep, err := ParseEndpoint(cfg.Address)
	if err != nil {
		return nil, err
	}

	loop := bus.NewLoop(cfg.QueueSize)
	l := &Link{
		cfg:   cfg,
		id:    uuid.NewString(),
		ep:    ep,
		loop:  loop,
		bus:   bus.New(loop),
		ctrl:  backoff.NewController(cfg.Backoff, loop, rand.New(rand.NewSource(time.Now().UnixNano()))),
		phase: PhaseIdle,
	}
	l.bus.Subscribe(driverOpen, l.handleDriverOpen)
	l.bus.Subscribe(driverData, l.handleDriverData)
	l.bus.Subscribe(driverEnd, l.handleDriverEnd)

	if err := cfg.Transport.Bind(l); err != nil {
		return nil, fmt.Errorf("link: bind transport: %w", err)
	}
	return l, nil
}

// Endpoint returns the parse-once connection descriptor.
func (l *Link) Endpoint() Endpoint {
	return l.ep
}

// On registers h for a public event and returns the link for chaining.
func (l *Link) On(event string, h bus.Handler) *Link {
	l.bus.Subscribe(event, h)
	return l
}

// Subscribers reports the handler count for event.
func (l *Link) Subscribers(event string) int {
	return l.bus.Subscribers(event)
}

// Emitter hands a transport driver its deferred report adapter.
func (l *Link) Emitter(event string, parse bus.ParseFunc) bus.EmitFunc {
	return l.bus.Emitter(event, parse)
}

// Start runs the loop and publishes the connect intent.
func (l *Link) Start() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.started {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	l.started = true
	l.phase = PhaseConnecting
	l.mu.Unlock()

	if err := l.loop.Start(); err != nil {
		return err
	}
	return l.loop.Post(func() {
		observability.RecordConnectIntent("connect")
		log.Info().Str("link", l.id).Str("url", l.ep.URL()).Msg("link connecting")
		l.bus.Publish(EventConnectIntent, l.ep.URL())
	})
}

// Send encodes v and writes it on the open channel. Refused unless the
// link is open.
func (l *Link) Send(v any) error {
	l.mu.RLock()
	phase := l.phase
	l.mu.RUnlock()
	if phase != PhaseOpen {
		return fmt.Errorf("%w: phase=%s", ErrNotOpen, phase)
	}
	data, err := l.cfg.Encoder(v)
	if err != nil {
		return fmt.Errorf("link: encode: %w", err)
	}
	return l.cfg.Transport.Write(data)
}

// Close tears the link down: cancels any pending backoff and stability
// timers, suppresses further automatic reconnect, publishes the terminal
// end event exactly once, closes the transport, and drains the loop.
// Idempotent.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		started := l.started
		l.mu.Unlock()

		if started {
			_ = l.loop.Post(func() {
				l.ctrl.Stop()
				l.stopStability()
				l.mu.Lock()
				terminal := l.phase == PhaseFailed
				l.phase = PhaseClosed
				if l.lastErr == nil {
					l.lastErr = ErrClosed
				}
				l.mu.Unlock()
				if !terminal {
					log.Info().Str("link", l.id).Msg("link closed")
					l.bus.Publish(EventEnd, ErrClosed)
				}
			})
		} else {
			l.mu.Lock()
			l.phase = PhaseClosed
			l.mu.Unlock()
		}

		_ = l.cfg.Transport.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		l.closeErr = l.loop.Stop(ctx)
	})
	return l.closeErr
}

// Phase returns the current lifecycle phase.
func (l *Link) Phase() Phase {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.phase
}

// Status returns a point-in-time snapshot for the admin surface.
func (l *Link) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := Status{
		ID:          l.id,
		URL:         l.ep.URL(),
		Phase:       l.phase,
		Attempt:     l.retryState.Attempt,
		Retries:     l.cfg.Backoff.Retries,
		ConnectedAt: l.connectedAt,
	}
	if l.lastErr != nil {
		s.LastError = l.lastErr.Error()
	}
	return s
}

func (l *Link) handleDriverOpen(payload any) {
	l.mu.Lock()
	if l.closed || l.phase == PhaseFailed {
		l.mu.Unlock()
		return
	}
	l.phase = PhaseOpen
	l.connectedAt = time.Now()
	l.mu.Unlock()

	l.armStability()
	log.Info().Str("link", l.id).Str("url", l.ep.URL()).Msg("link open")
	l.bus.Publish(EventOpen, l.ep.URL())
}

func (l *Link) handleDriverData(payload any) {
	data, ok := coerceBytes(payload)
	if !ok {
		l.publishError(fmt.Errorf("link: unusable inbound payload type %T", payload))
		return
	}
	msg, err := l.cfg.Decoder(data)
	if err != nil {
		observability.RecordDecodeError()
		l.publishError(fmt.Errorf("link: decode: %w", err))
		return
	}
	l.bus.Publish(EventData, msg)
}

func (l *Link) handleDriverEnd(payload any) {
	l.mu.Lock()
	if l.closed || l.phase == PhaseFailed {
		l.mu.Unlock()
		return
	}
	l.phase = PhaseReconnecting
	l.mu.Unlock()

	l.stopStability()
	if reason, ok := payload.(error); ok && reason != nil {
		log.Debug().Str("link", l.id).Err(reason).Msg("channel ended")
	}

	l.ctrl.Retry(func(err error, state backoff.State) {
		l.mu.Lock()
		l.retryState = state
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return
		}
		if err != nil {
			l.fail(fmt.Errorf("link: reconnect abandoned: %w", err))
			return
		}
		observability.RecordBackoffDelay(state.Delay)
		observability.RecordConnectIntent("reconnect")
		l.mu.Lock()
		l.phase = PhaseConnecting
		l.mu.Unlock()
		log.Info().
			Str("link", l.id).
			Int("attempt", state.Attempt).
			Dur("delay", state.Delay).
			Msg("link reconnecting")
		l.bus.Publish(EventReconnectIntent, l.ep.URL())
	})
}

// publishError surfaces err through the error event only when somebody is
// listening. Errors are opt-in observable, never thrown.
func (l *Link) publishError(err error) {
	log.Debug().Str("link", l.id).Err(err).Msg("link error")
	if l.bus.Subscribers(EventError) > 0 {
		l.bus.Publish(EventError, err)
	}
}

func (l *Link) fail(reason error) {
	l.mu.Lock()
	l.phase = PhaseFailed
	l.lastErr = reason
	l.mu.Unlock()

	observability.RecordTerminalFailure(failureReason(reason))
	log.Warn().Str("link", l.id).Err(reason).Msg("link failed")
	l.bus.Publish(EventEnd, reason)
}

func (l *Link) armStability() {
	if l.cfg.BackoffReset <= 0 {
		return
	}
	l.stopStability()
	l.stability = time.AfterFunc(l.cfg.BackoffReset, func() {
		_ = l.loop.Post(func() {
			if l.Phase() != PhaseOpen {
				return
			}
			l.ctrl.Reset()
			log.Debug().Str("link", l.id).Msg("retry budget reset")
		})
	})
}

func (l *Link) stopStability() {
	if l.stability != nil {
		l.stability.Stop()
		l.stability = nil
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, backoff.ErrRetriesExhausted):
		return "retries_exhausted"
	case errors.Is(err, backoff.ErrRetryPending):
		return "retry_pending"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return "error"
	}
}

func coerceBytes(payload any) ([]byte, bool) {
	switch v := payload.(type) {
	case []byte:
		return v, true
	case json.RawMessage:
		return v, true
	case string:
		return []byte(v), true
	default:
		return nil, false
	}
}

package link

import (
	"errors"
	"strings"
	"time"

	"github.com/danmuck/tether/internal/backoff"
	"github.com/danmuck/tether/internal/wire"
)

var ErrTransportRequired = errors.New("link: transport required")

// EncodeFunc serializes one outbound application message to wire bytes.
type EncodeFunc func(v any) ([]byte, error)

// DecodeFunc parses one inbound unit into an application message.
type DecodeFunc func(data []byte) (any, error)

// Transport is the channel driver seam. Bind is called once at link
// construction; the driver subscribes to the link's connect/reconnect
// intents and reports open/data/end through bus emitters. Write delivers
// one encoded unit on the open channel.
type Transport interface {
	Bind(l *Link) error
	Write(data []byte) error
	Close() error
}

// Config assembles one link. Address and Transport are required; the codec
// seams default to the wire envelope codec.
type Config struct {
	Address   string
	Transport Transport
	Encoder   EncodeFunc
	Decoder   DecodeFunc

	Backoff backoff.Config

	// BackoffReset is how long a connection must stay open before the
	// retry budget resets. Zero disables the reset.
	BackoffReset time.Duration

	// QueueSize bounds the loop's task queue.
	QueueSize int
}

func (c Config) WithDefaults() Config {
	if c.Encoder == nil {
		c.Encoder = wire.Encode
	}
	if c.Decoder == nil {
		c.Decoder = wire.Decode
	}
	c.Backoff = c.Backoff.WithDefaults()
	return c
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return ErrAddressRequired
	}
	if c.Transport == nil {
		return ErrTransportRequired
	}
	return nil
}

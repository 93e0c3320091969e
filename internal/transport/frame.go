package transport

import (
	"encoding/binary"
	"errors"
	"io"
)

var (
	ErrShortFrame    = errors.New("transport: short frame")
	ErrFrameTooLarge = errors.New("transport: frame too large")
)

// FrameLimits constrains frame decode/encode memory use.
type FrameLimits struct {
	MaxFrameBytes uint32
}

func DefaultFrameLimits() FrameLimits {
	return FrameLimits{MaxFrameBytes: 8 * 1024 * 1024}
}

// ReadFrame reads one u32-big-endian length-prefixed payload.
func ReadFrame(r io.Reader, limits FrameLimits) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortFrame
		}
		return nil, err
	}
	length := binary.BigEndian.Uint32(prefix[:])
	if length > limits.MaxFrameBytes {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return nil, ErrShortFrame
			}
			return nil, err
		}
	}
	return payload, nil
}

// WriteFrame writes one length-prefixed payload.
func WriteFrame(w io.Writer, payload []byte, limits FrameLimits) error {
	if uint64(len(payload)) > uint64(limits.MaxFrameBytes) {
		return ErrFrameTooLarge
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

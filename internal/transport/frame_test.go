package transport

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/tether/internal/testutil/testlog"
)

func TestFrameRoundTrip(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	limits := DefaultFrameLimits()

	payload := []byte(`{"type":"tick","timestamp_ms":7}`)
	if err := WriteFrame(&buf, payload, limits); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadFrame(&buf, limits)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: %q", got)
	}
}

func TestFrameEmptyPayload(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	if err := WriteFrame(&buf, nil, DefaultFrameLimits()); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadFrame(&buf, DefaultFrameLimits())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty payload, got %d bytes", len(got))
	}
}

func TestFrameRejectsOversize(t *testing.T) {
	testlog.Start(t)
	limits := FrameLimits{MaxFrameBytes: 8}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, make([]byte, 9), limits); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("write oversize err=%v", err)
	}

	// A peer announcing more than the limit is rejected before allocation.
	var wire bytes.Buffer
	if err := WriteFrame(&wire, make([]byte, 16), DefaultFrameLimits()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadFrame(&wire, limits); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("read oversize err=%v", err)
	}
}

func TestFrameShortRead(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("abcdef"), DefaultFrameLimits()); err != nil {
		t.Fatalf("write: %v", err)
	}
	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-2])
	if _, err := ReadFrame(truncated, DefaultFrameLimits()); !errors.Is(err, ErrShortFrame) {
		t.Fatalf("short read err=%v", err)
	}
}

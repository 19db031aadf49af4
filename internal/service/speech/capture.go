package speech

import (
	"bytes"
	"context"
	"errors"
	"sync"
)

var (
	// ErrMicrophoneDenied is returned when no capture stream can be granted.
	ErrMicrophoneDenied = errors.New("microphone access denied or not available")
	// ErrCaptureReleased is returned when writing to a released capture.
	ErrCaptureReleased = errors.New("capture already released")
)

// Microphone grants exclusive audio capture streams.
type Microphone interface {
	Acquire(ctx context.Context) (Capture, error)
}

// Capture is a granted recording resource. Release must be called exactly
// once when recording stops; it returns everything captured so far.
type Capture interface {
	Write(chunk []byte) (int, error)
	Release() []byte
}

// BufferMicrophone hands out in-memory captures fed by client-side audio
// chunks. It caps concurrent captures and the bytes a single capture may hold.
type BufferMicrophone struct {
	mu       sync.Mutex
	active   int
	limit    int
	maxBytes int
}

// NewBufferMicrophone creates a capture source. limit <= 0 means unlimited;
// maxBytes <= 0 means no per-capture size cap.
func NewBufferMicrophone(limit, maxBytes int) *BufferMicrophone {
	return &BufferMicrophone{limit: limit, maxBytes: maxBytes}
}

// Acquire grants a capture or ErrMicrophoneDenied when the limit is reached.
func (m *BufferMicrophone) Acquire(ctx context.Context) (Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.limit > 0 && m.active >= m.limit {
		return nil, ErrMicrophoneDenied
	}
	m.active++
	return &bufferCapture{owner: m, maxBytes: m.maxBytes}, nil
}

// Active reports how many captures are currently held.
func (m *BufferMicrophone) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *BufferMicrophone) release() {
	m.mu.Lock()
	m.active--
	m.mu.Unlock()
}

type bufferCapture struct {
	mu       sync.Mutex
	owner    *BufferMicrophone
	buf      bytes.Buffer
	maxBytes int
	released bool
}

func (c *bufferCapture) Write(chunk []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return 0, ErrCaptureReleased
	}
	if c.maxBytes > 0 && c.buf.Len()+len(chunk) > c.maxBytes {
		return 0, errors.New("capture size limit exceeded")
	}
	return c.buf.Write(chunk)
}

func (c *bufferCapture) Release() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return nil
	}
	c.released = true
	c.owner.release()

	data := append([]byte(nil), c.buf.Bytes()...)
	c.buf.Reset()
	return data
}

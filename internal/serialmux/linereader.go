package serialmux

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultPeekTimeout bounds the read BytesAvailable performs when its
	// buffer is empty.
	DefaultPeekTimeout = 5 * time.Millisecond
	// MaxLineLength caps a line with no terminator; the buffered bytes are
	// returned as a truncated line once it is reached.
	MaxLineLength = 4096

	readChunk = 256
)

// LineReader buffers a TimeoutSerialPorter and splits its input into lines
// terminated by "\n", "\r" or "\r\n". It implements telemetry.Transport.
//
// BytesAvailable and ReadLine are meant for a single polling goroutine; Close
// may be called from any goroutine and unblocks an in-flight read.
type LineReader struct {
	name string
	port TimeoutSerialPorter
	peek time.Duration

	mu      sync.Mutex
	buf     []byte
	scratch []byte
	// skipLF is set when a line ended in '\r' at the end of the buffer, so a
	// '\n' arriving next belongs to that line.
	skipLF bool

	closed atomic.Bool
}

// NewLineReader wraps port. name is reported by Name and in errors.
func NewLineReader(name string, port TimeoutSerialPorter) *LineReader {
	return &LineReader{
		name:    name,
		port:    port,
		peek:    DefaultPeekTimeout,
		scratch: make([]byte, readChunk),
	}
}

// Name returns the port path the reader was opened with.
func (l *LineReader) Name() string { return l.name }

// IsOpen reports whether Close has not yet been called.
func (l *LineReader) IsOpen() bool { return !l.closed.Load() }

// BytesAvailable reports the number of buffered bytes, first reading from the
// port for at most the peek timeout if the buffer is empty.
func (l *LineReader) BytesAvailable() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed.Load() {
		return 0, ErrPortClosed
	}
	l.dropPendingLF()
	if len(l.buf) > 0 {
		return len(l.buf), nil
	}
	if err := l.fill(l.peek); err != nil {
		return 0, err
	}
	l.dropPendingLF()
	return len(l.buf), nil
}

// ReadLine returns the next line including its terminator. If no terminator
// arrives within timeout, whatever has been buffered is returned instead,
// possibly nothing.
func (l *LineReader) ReadLine(timeout time.Duration) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed.Load() {
		return nil, ErrPortClosed
	}

	deadline := time.Now().Add(timeout)
	for {
		if line, ok := l.takeLine(); ok {
			return line, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := l.fill(remaining); err != nil {
			return l.takeAll(), err
		}
	}
	return l.takeAll(), nil
}

// Close marks the reader closed and closes the underlying port.
func (l *LineReader) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	if err := l.port.Close(); err != nil {
		return fmt.Errorf("close %s: %w", l.name, err)
	}
	return nil
}

func (l *LineReader) fill(timeout time.Duration) error {
	if err := l.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("set read timeout: %w", err)
	}
	n, err := l.port.Read(l.scratch)
	if n > 0 {
		l.buf = append(l.buf, l.scratch[:n]...)
	}
	if err != nil {
		if l.closed.Load() {
			return ErrPortClosed
		}
		return err
	}
	return nil
}

func (l *LineReader) dropPendingLF() {
	if !l.skipLF || len(l.buf) == 0 {
		return
	}
	if l.buf[0] == '\n' {
		l.buf = l.buf[1:]
	}
	l.skipLF = false
}

func (l *LineReader) takeLine() ([]byte, bool) {
	l.dropPendingLF()
	i := bytes.IndexAny(l.buf, "\r\n")
	if i < 0 {
		if len(l.buf) >= MaxLineLength {
			return l.take(MaxLineLength), true
		}
		return nil, false
	}

	end := i + 1
	if l.buf[i] == '\r' {
		switch {
		case end < len(l.buf) && l.buf[end] == '\n':
			end++
		case end == len(l.buf):
			l.skipLF = true
		}
	}
	return l.take(end), true
}

func (l *LineReader) takeAll() []byte {
	if len(l.buf) == 0 {
		return nil
	}
	return l.take(len(l.buf))
}

func (l *LineReader) take(n int) []byte {
	line := make([]byte, n)
	copy(line, l.buf[:n])
	l.buf = l.buf[n:]
	if len(l.buf) == 0 {
		l.buf = l.buf[:0:0]
	}
	return line
}

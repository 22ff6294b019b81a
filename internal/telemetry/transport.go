package telemetry

import "time"

// Transport is the serial connection the decoder polls. It is opened, closed
// and configured exclusively by the caller; the decoder never closes it.
type Transport interface {
	// IsOpen reports whether the connection can currently be read.
	IsOpen() bool
	// BytesAvailable reports how many bytes can be read without waiting.
	BytesAvailable() (int, error)
	// ReadLine returns bytes up to and including the next line terminator,
	// or whatever has arrived when timeout elapses (possibly nothing).
	ReadLine(timeout time.Duration) ([]byte, error)
}

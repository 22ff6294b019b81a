package serialmux

import (
	"errors"
	"io"
	"time"

	"go.bug.st/serial"
)

// ErrPortClosed is returned by reads on a LineReader after Close.
var ErrPortClosed = errors.New("serial port closed")

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter extends SerialPorter with timeout capabilities. A Read
// that times out returns 0, nil, matching go.bug.st/serial.
type TimeoutSerialPorter interface {
	SerialPorter
	// SetReadTimeout sets the read timeout for the serial port.
	SetReadTimeout(timeout time.Duration) error
}

// SerialPortOpener opens a serial port. It is a variable so tests can open
// a TestableSerialPort in place of hardware.
type SerialPortOpener func(path string, mode *serial.Mode) (TimeoutSerialPorter, error)

var openSerialPort SerialPortOpener = func(path string, mode *serial.Mode) (TimeoutSerialPorter, error) {
	return serial.Open(path, mode)
}

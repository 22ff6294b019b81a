package telemetry

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned by Start, and by PollOnce, while a poll loop
// is active.
var ErrAlreadyRunning = errors.New("decoder already running")

// ParseError describes a line that decoded as text but did not hold two
// numeric fields. It is recoverable: the line is dropped.
type ParseError struct {
	Line   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %q: %s: %v", e.Line, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %q: %s", e.Line, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DecodeError describes a line that matched none of the text decoders. It is
// recoverable: the line degrades to hex display and the binary frame attempt.
type DecodeError struct {
	Raw []byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("no text encoding matched %d bytes: %s", len(e.Raw), HexString(e.Raw))
}

// TransportError wraps a failure of the transport itself. It ends the current
// run and is reported once through the error sink.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("serial %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Package telemetry turns the raw byte stream of the boat sensor rig into
// (heading, IR bearing) readings and display text.
//
// A Decoder polls a Transport one physical line at a time. Each line is
// decoded as text through an ordered list of strategies (UTF-8, then GBK),
// falling back to an uppercase hex rendering and, for hex lines of at least
// eight bytes, to a binary frame of two little-endian float32 values. Text
// lines are split on "," and the first two fields parsed as floats. Malformed
// lines are logged and dropped; only transport failures end a run.
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/heading.report/internal/monitoring"
	"github.com/banshee-data/heading.report/internal/timeutil"
)

const (
	// DefaultReadTimeout bounds a single ReadLine call.
	DefaultReadTimeout = time.Second
	// DefaultIdleInterval is the wait between polls when no bytes are
	// available.
	DefaultIdleInterval = 10 * time.Millisecond
	// DefaultQueueSize is the initial capacity of the emission queue.
	DefaultQueueSize = 64
)

// Option configures a Decoder.
type Option func(*Decoder)

// WithReadTimeout sets the per-line read timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(dec *Decoder) {
		if d > 0 {
			dec.readTimeout = d
		}
	}
}

// WithIdleInterval sets how long the loop waits when the transport has no
// bytes available or is not open.
func WithIdleInterval(d time.Duration) Option {
	return func(dec *Decoder) {
		if d > 0 {
			dec.idle = d
		}
	}
}

// WithTextDecoders replaces the text decoding chain.
func WithTextDecoders(decoders ...TextDecoder) Option {
	return func(dec *Decoder) {
		if len(decoders) > 0 {
			dec.decoders = decoders
		}
	}
}

// WithClock sets the clock used for idle waits.
func WithClock(c timeutil.Clock) Option {
	return func(dec *Decoder) {
		if c != nil {
			dec.clock = c
		}
	}
}

// WithQueueSize sets the initial capacity of the emission queue. The queue
// grows beyond it rather than blocking the poll loop.
func WithQueueSize(n int) Option {
	return func(dec *Decoder) {
		if n > 0 {
			dec.queueSize = n
		}
	}
}

// Stats counts what the decoder has seen since it was created.
type Stats struct {
	Lines         uint64 `json:"lines"`
	Readings      uint64 `json:"readings"`
	RawTexts      uint64 `json:"raw_texts"`
	ParseFailures uint64 `json:"parse_failures"`
	HexFallbacks  uint64 `json:"hex_fallbacks"`
	BinaryFrames  uint64 `json:"binary_frames"`
}

type counters struct {
	lines, readings, rawTexts, parseFailures, hexFallbacks, binaryFrames atomic.Uint64
}

// Decoder polls a Transport and emits readings, raw text and errors to its
// Sinks. It is in one of two states, stopped or running; Start and Stop move
// between them.
type Decoder struct {
	transport   Transport
	sinks       Sinks
	decoders    []TextDecoder
	readTimeout time.Duration
	idle        time.Duration
	clock       timeutil.Clock
	queueSize   int
	logf        monitoring.LogFunc

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	stats counters
}

// New creates a stopped Decoder for t.
func New(t Transport, sinks Sinks, opts ...Option) *Decoder {
	d := &Decoder{
		transport:   t,
		sinks:       sinks,
		decoders:    DefaultTextDecoders(),
		readTimeout: DefaultReadTimeout,
		idle:        DefaultIdleInterval,
		clock:       timeutil.RealClock{},
		queueSize:   DefaultQueueSize,
		logf:        monitoring.Prefixed("[telemetry] "),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start begins polling on a background goroutine. Emissions are delivered in
// read order on a separate delivery goroutine, so slow sinks never stall the
// serial read. Cancelling ctx ends the run like Stop, without waiting.
func (d *Decoder) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.running = true
	d.cancel = cancel
	d.done = done

	go d.run(runCtx, newDispatcher(d.sinks, d.queueSize), done)
	return nil
}

// Stop ends the current run and waits until the poll goroutine has exited and
// every queued emission has been delivered. No emission happens after Stop
// returns, so the caller may close the transport immediately. Stop is safe to
// call from any goroutine and when already stopped, but must not be called
// from inside a sink callback; watch Done instead.
func (d *Decoder) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether a poll loop is active.
func (d *Decoder) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Done returns a channel closed when the current (or last) run has fully
// ended. Before the first Start it returns a closed channel.
func (d *Decoder) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return d.done
}

// Stats returns a snapshot of the decoder counters.
func (d *Decoder) Stats() Stats {
	return Stats{
		Lines:         d.stats.lines.Load(),
		Readings:      d.stats.readings.Load(),
		RawTexts:      d.stats.rawTexts.Load(),
		ParseFailures: d.stats.parseFailures.Load(),
		HexFallbacks:  d.stats.hexFallbacks.Load(),
		BinaryFrames:  d.stats.binaryFrames.Load(),
	}
}

// PollOnce reads and decodes at most one line, calling the sinks on the
// caller's goroutine. It is a no-op when the transport is closed or has no
// bytes available, and returns a *TransportError if the transport fails.
// PollOnce may not be used while the decoder is running.
func (d *Decoder) PollOnce() error {
	if d.Running() {
		return ErrAlreadyRunning
	}
	_, err := d.pollOnce(directEmitter(d.sinks))
	return err
}

func (d *Decoder) run(ctx context.Context, disp *dispatcher, done chan struct{}) {
	defer func() {
		disp.close()
		d.mu.Lock()
		d.running = false
		if d.cancel != nil {
			d.cancel()
			d.cancel = nil
		}
		d.mu.Unlock()
		close(done)
	}()

	d.logf("poll loop started")
	for ctx.Err() == nil {
		read, err := d.safePoll(disp)
		if err != nil {
			msg := fmt.Sprintf("serial port error: %v", err)
			d.logf("%s", msg)
			disp.emit(emission{kind: emitError, text: msg})
			break
		}
		if read {
			continue
		}
		select {
		case <-ctx.Done():
		case <-d.clock.After(d.idle):
		}
	}
	d.logf("poll loop stopped")
}

// safePoll converts a panic inside an iteration into a transport failure so
// nothing escapes the background goroutine.
func (d *Decoder) safePoll(out emitter) (read bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TransportError{Op: "poll", Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return d.pollOnce(out)
}

// pollOnce reports whether any bytes were read.
func (d *Decoder) pollOnce(out emitter) (bool, error) {
	if !d.transport.IsOpen() {
		return false, nil
	}
	n, err := d.transport.BytesAvailable()
	if err != nil {
		return false, &TransportError{Op: "bytes available", Err: err}
	}
	if n == 0 {
		return false, nil
	}

	raw, err := d.transport.ReadLine(d.readTimeout)
	if len(raw) > 0 {
		d.handleLine(raw, out)
	}
	if err != nil {
		return len(raw) > 0, &TransportError{Op: "read line", Err: err}
	}
	return len(raw) > 0, nil
}

func (d *Decoder) handleLine(raw []byte, out emitter) {
	d.stats.lines.Add(1)
	line := DecodeText(raw, d.decoders)

	if display := strings.TrimSpace(line.Text); display != "" {
		d.stats.rawTexts.Add(1)
		out.emit(emission{kind: emitRawText, text: display})
	}

	if line.Hex {
		d.stats.hexFallbacks.Add(1)
		d.logf("%v", &DecodeError{Raw: raw})
		if r, ok := DecodeBinaryFrame(raw); ok {
			d.stats.binaryFrames.Add(1)
			d.stats.readings.Add(1)
			out.emit(emission{kind: emitReading, reading: r})
		}
		return
	}

	if strings.TrimSpace(line.Text) == "" {
		return
	}
	r, err := ParseReading(line.Text)
	if err != nil {
		d.stats.parseFailures.Add(1)
		d.logf("dropping line: %v", err)
		return
	}
	d.stats.readings.Add(1)
	out.emit(emission{kind: emitReading, reading: r})
}

// Package history keeps a bounded window of recent readings and renders it
// as summary statistics and charts for the debug routes.
package history

import (
	"sync"
	"time"

	"github.com/banshee-data/heading.report/internal/telemetry"
	"github.com/banshee-data/heading.report/internal/timeutil"
)

// DefaultCapacity is the number of samples kept when none is configured.
const DefaultCapacity = 1000

// Sample is one reading with the time it was received.
type Sample struct {
	Time      time.Time `json:"time"`
	Heading   float64   `json:"heading"`
	IRBearing float64   `json:"ir_bearing"`
}

// Buffer is a fixed-size ring of samples, safe for concurrent use. Once full,
// each Add overwrites the oldest sample.
type Buffer struct {
	mu    sync.Mutex
	ring  []Sample
	start int
	n     int
}

// NewBuffer returns an empty Buffer holding up to capacity samples.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{ring: make([]Sample, capacity)}
}

// Add appends s, evicting the oldest sample if the buffer is full.
func (b *Buffer) Add(s Sample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.n < len(b.ring) {
		b.ring[(b.start+b.n)%len(b.ring)] = s
		b.n++
		return
	}
	b.ring[b.start] = s
	b.start = (b.start + 1) % len(b.ring)
}

// Samples returns a copy of the buffered samples, oldest first.
func (b *Buffer) Samples() []Sample {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Sample, b.n)
	for i := range out {
		out[i] = b.ring[(b.start+i)%len(b.ring)]
	}
	return out
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int { return len(b.ring) }

// Reset discards all samples.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.start, b.n = 0, 0
}

// Sinks returns decoder sinks that add every reading to b, stamped with
// clock. A nil clock means wall time.
func (b *Buffer) Sinks(clock timeutil.Clock) telemetry.Sinks {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return telemetry.Sinks{
		OnReading: func(r telemetry.Reading) {
			b.Add(Sample{Time: clock.Now(), Heading: r.Heading, IRBearing: r.IRBearing})
		},
	}
}

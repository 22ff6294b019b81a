// Package serialmux owns the serial connection to the heading sensor. It opens
// and splits the port into lines, runs a telemetry.Decoder over it and fans
// the decoded events out to any number of subscribers, such as the live tail
// served on the debug routes.
package serialmux

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/heading.report/internal/httputil"
	"github.com/banshee-data/heading.report/internal/monitoring"
	"github.com/banshee-data/heading.report/internal/telemetry"
	"github.com/banshee-data/heading.report/internal/timeutil"
)

// Event types carried on subscriber channels.
const (
	EventReading = "reading"
	EventRawText = "raw"
	EventError   = "error"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls further behind misses events rather than stalling the others.
const subscriberBuffer = 32

// Event is one decoder emission as seen by a subscriber. Heading and
// IRBearing are set only on reading events, so a 0° angle stays distinct from
// no value.
type Event struct {
	Type      string    `json:"type"`
	Time      time.Time `json:"time"`
	Heading   *float64  `json:"heading,omitempty"`
	IRBearing *float64  `json:"ir_bearing,omitempty"`
	Text      string    `json:"text,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// readingEvent returns the event for r.
func readingEvent(r telemetry.Reading) Event {
	heading, ir := r.Heading, r.IRBearing
	return Event{Type: EventReading, Heading: &heading, IRBearing: &ir}
}

// SerialMux is a serial port multiplexer that decodes the sensor stream once
// and lets multiple clients subscribe to the resulting events.
type SerialMux struct {
	reader      *LineReader
	decoder     *telemetry.Decoder
	decoderOpts []telemetry.Option
	clock       timeutil.Clock

	subscribers  map[string]chan Event
	subscriberMu sync.Mutex
	closing      bool
}

// Option configures a SerialMux.
type Option func(*SerialMux)

// WithClock sets the clock used to timestamp events.
func WithClock(c timeutil.Clock) Option {
	return func(s *SerialMux) { s.clock = c }
}

// WithDecoderOptions passes options through to the telemetry.Decoder.
func WithDecoderOptions(opts ...telemetry.Option) Option {
	return func(s *SerialMux) { s.decoderOpts = append(s.decoderOpts, opts...) }
}

// NewSerialMux creates a SerialMux reading from reader. Every emission goes to
// sinks first and then to the subscribers.
func NewSerialMux(reader *LineReader, sinks telemetry.Sinks, opts ...Option) *SerialMux {
	s := &SerialMux{
		reader:      reader,
		clock:       timeutil.RealClock{},
		subscribers: make(map[string]chan Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.decoder = telemetry.New(reader, telemetry.Tee(sinks, s.fanOutSinks()), s.decoderOpts...)
	return s
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b) // never fails since Go 1.24
	return hex.EncodeToString(b)
}

// Subscribe creates a new channel for receiving events. The ID identifies the
// channel when unsubscribing. After Close the returned channel is already
// closed.
func (s *SerialMux) Subscribe() (string, chan Event) {
	id := randomID()
	ch := make(chan Event, subscriberBuffer)

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if s.closing {
		close(ch)
		return id, ch
	}
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux and closes its channel.
func (s *SerialMux) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Subscribers returns the number of open subscriptions.
func (s *SerialMux) Subscribers() int {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	return len(s.subscribers)
}

// Start begins decoding in the background.
func (s *SerialMux) Start(ctx context.Context) error {
	s.subscriberMu.Lock()
	closing := s.closing
	s.subscriberMu.Unlock()
	if closing {
		return ErrPortClosed
	}
	return s.decoder.Start(ctx)
}

// Stop halts decoding and waits until the last event has been delivered. The
// port stays open.
func (s *SerialMux) Stop() { s.decoder.Stop() }

// Done is closed when the current decoding run ends, for example after a
// transport error.
func (s *SerialMux) Done() <-chan struct{} { return s.decoder.Done() }

// Running reports whether decoding is active.
func (s *SerialMux) Running() bool { return s.decoder.Running() }

// Stats returns the decoder counters.
func (s *SerialMux) Stats() telemetry.Stats { return s.decoder.Stats() }

// Close stops decoding, closes all subscriber channels and finally closes the
// serial port.
func (s *SerialMux) Close() error {
	s.decoder.Stop()

	s.subscriberMu.Lock()
	s.closing = true
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()

	return s.reader.Close()
}

func (s *SerialMux) fanOutSinks() telemetry.Sinks {
	return telemetry.Sinks{
		OnReading: func(r telemetry.Reading) {
			s.publish(readingEvent(r))
		},
		OnRawText: func(text string) {
			s.publish(Event{Type: EventRawText, Text: text})
		},
		OnError: func(msg string) {
			s.publish(Event{Type: EventError, Error: msg})
		},
	}
}

func (s *SerialMux) publish(e Event) {
	e.Time = s.clock.Now()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- e:
		default:
			// if the channel is full/blocking skip so as not to block the decoder
		}
	}
}

// Status is the payload of the status debug route.
type Status struct {
	Port        string          `json:"port"`
	Open        bool            `json:"open"`
	Running     bool            `json:"running"`
	Subscribers int             `json:"subscribers"`
	Stats       telemetry.Stats `json:"stats"`
}

// Status reports the current port and decoder state.
func (s *SerialMux) Status() Status {
	return Status{
		Port:        s.reader.Name(),
		Open:        s.reader.IsOpen(),
		Running:     s.decoder.Running(),
		Subscribers: s.Subscribers(),
		Stats:       s.decoder.Stats(),
	}
}

// AttachAdminRoutes attaches debugging endpoints to the given HTTP mux served
// at /debug/. These routes are accessible only over localhost/via Tailscale.
func (s *SerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("status", "serial port and decoder status", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, s.Status())
	})

	// Server-Sent Events (SSE) stream of decoded events as JSON.
	debug.HandleFunc("tail", "live tail of decoded serial events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w, http.MethodGet)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case e, ok := <-c:
				if !ok {
					return
				}
				payload, err := json.Marshal(e)
				if err != nil {
					// NaN and ±Inf readings have no JSON form.
					monitoring.Logf("[serialmux] dropping %s event from tail: %v", e.Type, err)
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}

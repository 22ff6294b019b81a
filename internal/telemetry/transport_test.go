package telemetry

import (
	"errors"
	"sync"
	"time"
)

// scriptedTransport returns one scripted chunk per ReadLine call.
type scriptedTransport struct {
	mu       sync.Mutex
	chunks   [][]byte
	closed   bool
	readErr  error // returned once chunks are exhausted
	availErr error
	reads    int
	polls    int

	// gate, when set, makes ReadLine signal entered and wait for release
	// before returning its chunk.
	gate    bool
	entered chan struct{}
	release chan struct{}

	panicOnRead bool
}

func newScriptedTransport(lines ...string) *scriptedTransport {
	t := &scriptedTransport{}
	for _, l := range lines {
		t.chunks = append(t.chunks, []byte(l))
	}
	return t
}

func (t *scriptedTransport) push(chunk []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.chunks = append(t.chunks, chunk)
}

func (t *scriptedTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

func (t *scriptedTransport) BytesAvailable() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.polls++
	if t.availErr != nil {
		return 0, t.availErr
	}
	if len(t.chunks) > 0 {
		return len(t.chunks[0]), nil
	}
	if t.readErr != nil {
		return 1, nil
	}
	return 0, nil
}

func (t *scriptedTransport) ReadLine(time.Duration) ([]byte, error) {
	t.mu.Lock()
	t.reads++
	if t.panicOnRead {
		t.mu.Unlock()
		panic("driver fault")
	}
	gate := t.gate
	t.mu.Unlock()

	if gate {
		t.entered <- struct{}{}
		<-t.release
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.chunks) == 0 {
		if t.readErr != nil {
			return nil, t.readErr
		}
		return nil, nil
	}
	chunk := t.chunks[0]
	t.chunks = t.chunks[1:]
	return chunk, nil
}

func (t *scriptedTransport) readCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reads
}

func (t *scriptedTransport) pollCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.polls
}

var errUnplugged = errors.New("device unplugged")

// recorder captures sink emissions in arrival order.
type recorder struct {
	mu       sync.Mutex
	readings []Reading
	texts    []string
	errs     []string
	order    []string
}

func (r *recorder) sinks() Sinks {
	return Sinks{
		OnReading: func(rd Reading) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.readings = append(r.readings, rd)
			r.order = append(r.order, "reading")
		},
		OnRawText: func(text string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.texts = append(r.texts, text)
			r.order = append(r.order, "text")
		},
		OnError: func(msg string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, msg)
			r.order = append(r.order, "error")
		},
	}
}

func (r *recorder) snapshot() (readings []Reading, texts, errs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Reading(nil), r.readings...),
		append([]string(nil), r.texts...),
		append([]string(nil), r.errs...)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

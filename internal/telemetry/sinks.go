package telemetry

import "github.com/banshee-data/heading.report/internal/monitoring"

// Sinks are the three observer slots the decoder emits to. Nil slots are
// skipped.
type Sinks struct {
	OnReading func(Reading)
	OnRawText func(string)
	OnError   func(string)
}

// Tee returns Sinks that forward every emission to each of sinks in order.
func Tee(sinks ...Sinks) Sinks {
	return Sinks{
		OnReading: func(r Reading) {
			for _, s := range sinks {
				if s.OnReading != nil {
					s.OnReading(r)
				}
			}
		},
		OnRawText: func(text string) {
			for _, s := range sinks {
				if s.OnRawText != nil {
					s.OnRawText(text)
				}
			}
		},
		OnError: func(msg string) {
			for _, s := range sinks {
				if s.OnError != nil {
					s.OnError(msg)
				}
			}
		},
	}
}

type emissionKind uint8

const (
	emitReading emissionKind = iota
	emitRawText
	emitError
)

type emission struct {
	kind    emissionKind
	reading Reading
	text    string
}

// deliver calls the matching slot. A panicking sink is logged and does not
// take the dispatcher down with it.
func (s Sinks) deliver(e emission) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("[telemetry] sink panic: %v", r)
		}
	}()
	switch e.kind {
	case emitReading:
		if s.OnReading != nil {
			s.OnReading(e.reading)
		}
	case emitRawText:
		if s.OnRawText != nil {
			s.OnRawText(e.text)
		}
	case emitError:
		if s.OnError != nil {
			s.OnError(e.text)
		}
	}
}

type emitter interface {
	emit(emission)
}

// directEmitter calls sinks on the caller's goroutine; used by PollOnce
// outside a run.
type directEmitter Sinks

func (d directEmitter) emit(e emission) { Sinks(d).deliver(e) }

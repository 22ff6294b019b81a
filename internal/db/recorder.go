package db

import (
	"github.com/banshee-data/heading.report/internal/monitoring"
	"github.com/banshee-data/heading.report/internal/telemetry"
	"github.com/banshee-data/heading.report/internal/timeutil"
)

// Recorder persists decoder emissions for one session. Write failures are
// logged and never reach the decoder.
type Recorder struct {
	db        *DB
	sessionID string
	clock     timeutil.Clock
	recordRaw bool
}

// NewRecorder returns a Recorder for session. Raw text lines are stored only
// when recordRaw is set; readings and errors always are.
func (db *DB) NewRecorder(session Session, recordRaw bool) *Recorder {
	return &Recorder{
		db:        db,
		sessionID: session.ID,
		clock:     db.clock,
		recordRaw: recordRaw,
	}
}

// SessionID returns the session being recorded.
func (r *Recorder) SessionID() string { return r.sessionID }

// Sinks returns the decoder sinks that write to the database.
func (r *Recorder) Sinks() telemetry.Sinks {
	sinks := telemetry.Sinks{
		OnReading: func(reading telemetry.Reading) {
			if err := r.db.RecordReading(r.sessionID, r.clock.Now(), reading); err != nil {
				monitoring.Logf("[db] %v", err)
			}
		},
		OnError: func(msg string) {
			if err := r.db.RecordError(r.sessionID, r.clock.Now(), msg); err != nil {
				monitoring.Logf("[db] %v", err)
			}
		},
	}
	if r.recordRaw {
		sinks.OnRawText = func(text string) {
			if err := r.db.RecordRawLine(r.sessionID, r.clock.Now(), text); err != nil {
				monitoring.Logf("[db] %v", err)
			}
		}
	}
	return sinks
}

// Package db records sensor sessions, readings and raw lines in SQLite.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/heading.report/internal/telemetry"
	"github.com/banshee-data/heading.report/internal/timeutil"
)

// ErrSessionNotFound is returned when a session ID matches no open session.
var ErrSessionNotFound = errors.New("session not found")

// Raw line kinds.
const (
	KindRaw   = "raw"
	KindError = "error"
)

// pragmas are applied to every pooled connection through the DSN, since
// SQLite scopes them to a connection.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
}

type DB struct {
	*sql.DB
	path  string
	clock timeutil.Clock
}

// NewDB opens the database at path and migrates it to the latest schema.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	db := &DB{DB: sqlDB, path: path, clock: timeutil.RealClock{}}
	if err := db.MigrateUp(MigrationsFS()); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return path + "?" + q.Encode()
}

// Session is one period of reading from a port.
type Session struct {
	ID        string     `json:"id"`
	Port      string     `json:"port"`
	BaudRate  int        `json:"baud_rate"`
	Started   time.Time  `json:"started"`
	Ended     *time.Time `json:"ended,omitempty"`
	EndReason string     `json:"end_reason,omitempty"`
}

// StoredReading is a reading as persisted.
type StoredReading struct {
	Received time.Time `json:"received"`
	telemetry.Reading
}

// RawLine is a raw text line or error message as persisted.
type RawLine struct {
	Received time.Time `json:"received"`
	Kind     string    `json:"kind"`
	Text     string    `json:"text"`
}

// StartSession records a new session and returns it.
func (db *DB) StartSession(port string, baud int) (Session, error) {
	s := Session{
		ID:       uuid.NewString(),
		Port:     port,
		BaudRate: baud,
		Started:  db.clock.Now(),
	}
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, port, baud_rate, started_unix_nano) VALUES (?, ?, ?, ?)`,
		s.ID, s.Port, s.BaudRate, s.Started.UnixNano(),
	)
	if err != nil {
		return Session{}, fmt.Errorf("start session: %w", err)
	}
	return s, nil
}

// EndSession marks an open session as ended with reason.
func (db *DB) EndSession(id, reason string) error {
	res, err := db.Exec(
		`UPDATE sessions SET ended_unix_nano = ?, end_reason = ? WHERE session_id = ? AND ended_unix_nano IS NULL`,
		db.clock.Now().UnixNano(), reason, id,
	)
	if err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("end session %s: %w", id, ErrSessionNotFound)
	}
	return nil
}

// RecordReading stores r for session id.
func (db *DB) RecordReading(id string, t time.Time, r telemetry.Reading) error {
	_, err := db.Exec(
		`INSERT INTO readings (session_id, received_unix_nano, heading, ir_bearing) VALUES (?, ?, ?, ?)`,
		id, t.UnixNano(), nullFloat(r.Heading), nullFloat(r.IRBearing),
	)
	if err != nil {
		return fmt.Errorf("record reading: %w", err)
	}
	return nil
}

// RecordRawLine stores a raw text line for session id.
func (db *DB) RecordRawLine(id string, t time.Time, text string) error {
	return db.recordLine(id, t, KindRaw, text)
}

// RecordError stores an error message for session id.
func (db *DB) RecordError(id string, t time.Time, msg string) error {
	return db.recordLine(id, t, KindError, msg)
}

func (db *DB) recordLine(id string, t time.Time, kind, text string) error {
	_, err := db.Exec(
		`INSERT INTO raw_lines (session_id, received_unix_nano, kind, text) VALUES (?, ?, ?, ?)`,
		id, t.UnixNano(), kind, text,
	)
	if err != nil {
		return fmt.Errorf("record %s line: %w", kind, err)
	}
	return nil
}

// Readings returns the last limit readings of session id, oldest first. A
// limit of zero or less returns all of them.
func (db *DB) Readings(id string, limit int) ([]StoredReading, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := db.Query(`
		SELECT received_unix_nano, heading, ir_bearing FROM (
			SELECT reading_id, received_unix_nano, heading, ir_bearing
			FROM readings WHERE session_id = ?
			ORDER BY reading_id DESC LIMIT ?
		) ORDER BY reading_id ASC`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var out []StoredReading
	for rows.Next() {
		var received int64
		var heading, ir sql.NullFloat64
		if err := rows.Scan(&received, &heading, &ir); err != nil {
			return nil, err
		}
		out = append(out, StoredReading{
			Received: time.Unix(0, received),
			Reading:  telemetry.Reading{Heading: fromNull(heading), IRBearing: fromNull(ir)},
		})
	}
	return out, rows.Err()
}

// RawLines returns the last limit raw lines and errors of session id, oldest
// first. A limit of zero or less returns all of them.
func (db *DB) RawLines(id string, limit int) ([]RawLine, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`
		SELECT received_unix_nano, kind, text FROM (
			SELECT line_id, received_unix_nano, kind, text
			FROM raw_lines WHERE session_id = ?
			ORDER BY line_id DESC LIMIT ?
		) ORDER BY line_id ASC`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("query raw lines: %w", err)
	}
	defer rows.Close()

	var out []RawLine
	for rows.Next() {
		var received int64
		var l RawLine
		if err := rows.Scan(&received, &l.Kind, &l.Text); err != nil {
			return nil, err
		}
		l.Received = time.Unix(0, received)
		out = append(out, l)
	}
	return out, rows.Err()
}

// Sessions returns up to limit sessions, most recently started first.
func (db *DB) Sessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`
		SELECT session_id, port, baud_rate, started_unix_nano, ended_unix_nano, end_reason
		FROM sessions ORDER BY started_unix_nano DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		var started int64
		var ended sql.NullInt64
		var reason sql.NullString
		if err := rows.Scan(&s.ID, &s.Port, &s.BaudRate, &started, &ended, &reason); err != nil {
			return nil, err
		}
		s.Started = time.Unix(0, started)
		if ended.Valid {
			t := time.Unix(0, ended.Int64)
			s.Ended = &t
		}
		s.EndReason = reason.String
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

func fromNull(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

package telemetry

import (
	"errors"
	"strconv"
	"strings"
)

// ParseReading decodes a "heading,ir_bearing" line. Surrounding whitespace is
// ignored on the line and on each field, and fields after the second are
// ignored. Magnitudes too large for float64 parse as ±Inf rather than failing.
func ParseReading(text string) (Reading, error) {
	line := strings.TrimSpace(text)
	fields := strings.Split(line, ",")
	if len(fields) < 2 {
		return Reading{}, &ParseError{Line: line, Reason: "expected at least 2 comma-separated fields"}
	}

	heading, err := parseField(fields[0])
	if err != nil {
		return Reading{}, &ParseError{Line: line, Reason: "invalid heading", Err: err}
	}
	ir, err := parseField(fields[1])
	if err != nil {
		return Reading{}, &ParseError{Line: line, Reason: "invalid ir bearing", Err: err}
	}
	return Reading{Heading: heading, IRBearing: ir}, nil
}

func parseField(field string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil && errors.Is(err, strconv.ErrRange) {
		return v, nil
	}
	return v, err
}

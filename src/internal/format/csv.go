// FILE: thermwatch/src/internal/format/csv.go
package format

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"thermwatch/src/internal/core"
)

const (
	fieldDelimiter = ","
	fieldCount     = 4

	// Timestamps below this are unix seconds, at or above are milliseconds
	millisThreshold = 100_000_000_000
)

// Header is the optional first row of the input file
const Header = "sensor_id,timestamp,temperature,vibration"

// ErrHeader marks the header row, which is expected and skipped quietly
var ErrHeader = errors.New("header row")

// ParseError describes a row that could not be converted to a Reading
type ParseError struct {
	Line   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed row %q: %s", e.Line, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseRow converts one CSV line into a Reading. Rows must have exactly
// sensor_id, timestamp, temperature and vibration; timestamps are normalised
// to unix milliseconds.
func ParseRow(line string) (core.Reading, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return core.Reading{}, &ParseError{Line: line, Reason: "empty row"}
	}

	fields := strings.Split(trimmed, fieldDelimiter)
	if len(fields) != fieldCount {
		return core.Reading{}, &ParseError{
			Line:   line,
			Reason: fmt.Sprintf("expected %d fields, got %d", fieldCount, len(fields)),
		}
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	if strings.EqualFold(strings.Join(fields, fieldDelimiter), Header) {
		return core.Reading{}, &ParseError{Line: line, Reason: "header row", Err: ErrHeader}
	}

	sensorID := fields[0]
	if sensorID == "" {
		return core.Reading{}, &ParseError{Line: line, Reason: "empty sensor_id"}
	}

	ts, err := parseTimestamp(fields[1])
	if err != nil {
		return core.Reading{}, &ParseError{Line: line, Reason: "invalid timestamp", Err: err}
	}

	temperature, err := parseFinite(fields[2])
	if err != nil {
		return core.Reading{}, &ParseError{Line: line, Reason: "invalid temperature", Err: err}
	}

	vibration, err := parseFinite(fields[3])
	if err != nil {
		return core.Reading{}, &ParseError{Line: line, Reason: "invalid vibration", Err: err}
	}

	return core.Reading{
		SensorID:    sensorID,
		Timestamp:   ts,
		Temperature: temperature,
		Vibration:   vibration,
	}, nil
}

func parseTimestamp(s string) (int64, error) {
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if ts < 0 {
		return 0, fmt.Errorf("negative timestamp %d", ts)
	}
	if ts < millisThreshold {
		ts *= 1000
	}
	return ts, nil
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %s", s)
	}
	return v, nil
}

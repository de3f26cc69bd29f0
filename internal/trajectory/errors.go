package trajectory

import (
	"errors"
	"fmt"
)

// ErrUnknownTrajectory is returned when a requested test trajectory id is
// not present in the loaded records.
var ErrUnknownTrajectory = errors.New("unknown trajectory id")

// ParseError reports a corpus record that does not decode into
// (identifier, point list, optional speed). A ParseError aborts the whole
// load; no partial corpus is returned.
type ParseError struct {
	Line   int    // 1-based line number, 0 when parsing a single record
	Field  string // "record", "identifier", "points" or "speed"
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse %s", e.Field)
	if e.Line > 0 {
		msg = fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// EmptyCorpusError is returned when no reference trajectory remains once the
// test trajectory has been set aside.
type EmptyCorpusError struct {
	Records int // distinct trajectories seen, test included
}

func (e *EmptyCorpusError) Error() string {
	return fmt.Sprintf("empty corpus: %d trajectories loaded, none left besides the test trajectory", e.Records)
}

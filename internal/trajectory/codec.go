package trajectory

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Record format, one trajectory per line:
//
//	<identifier> -> [(x1, y1), (x2, y2), ...] (speed: <float>)
//
// The speed suffix is optional; raw tracker output omits it.
const (
	recordArrow  = "->"
	speedPrefix  = "(speed:"
	maxLineBytes = 64 * 1024 * 1024
)

// ParseRecord decodes a single record line. Errors are *ParseError with
// Line set to zero.
func ParseRecord(line string) (*Trajectory, error) {
	arrow := strings.Index(line, recordArrow)
	if arrow < 0 {
		return nil, &ParseError{Field: "record", Reason: "missing \"->\" separator"}
	}
	id := strings.TrimSpace(line[:arrow])
	if id == "" {
		return nil, &ParseError{Field: "identifier", Reason: "empty identifier"}
	}

	sc := &scanner{s: line, pos: arrow + len(recordArrow)}
	points, err := sc.pointList()
	if err != nil {
		return nil, err
	}

	t := &Trajectory{ID: id, Points: points}

	sc.skipSpace()
	if sc.done() {
		return t, nil
	}
	if !strings.HasPrefix(sc.s[sc.pos:], speedPrefix) {
		return nil, &ParseError{Field: "record", Reason: fmt.Sprintf("unexpected trailing text %q", sc.s[sc.pos:])}
	}
	sc.pos += len(speedPrefix)
	speed, err := sc.number("speed")
	if err != nil {
		return nil, err
	}
	if err := sc.expect(')', "speed"); err != nil {
		return nil, err
	}
	sc.skipSpace()
	if !sc.done() {
		return nil, &ParseError{Field: "record", Reason: fmt.Sprintf("unexpected trailing text %q", sc.s[sc.pos:])}
	}
	t.Speed = speed
	t.HasSpeed = true
	return t, nil
}

// ReadRecords parses every non-blank line of r in order. The first malformed
// line aborts the read.
func ReadRecords(r io.Reader) ([]*Trajectory, error) {
	br := bufio.NewScanner(r)
	br.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var out []*Trajectory
	lineNo := 0
	for br.Scan() {
		lineNo++
		line := strings.TrimSpace(br.Text())
		if line == "" {
			continue
		}
		t, err := ParseRecord(line)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				pe.Line = lineNo
			}
			return nil, err
		}
		out = append(out, t)
	}
	if err := br.Err(); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return out, nil
}

// FormatRecord encodes t in the record format. Floats use the shortest text
// that parses back to the identical value.
func FormatRecord(t *Trajectory) string {
	var b strings.Builder
	b.WriteString(t.ID)
	b.WriteString(" -> [")
	for i, p := range t.Points {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteByte(']')
	if t.HasSpeed {
		b.WriteString(" (speed: ")
		b.WriteString(formatFloat(t.Speed))
		b.WriteByte(')')
	}
	return b.String()
}

// WriteRecords writes one record per line.
func WriteRecords(w io.Writer, trajs []*Trajectory) error {
	bw := bufio.NewWriter(w)
	for _, t := range trajs {
		if _, err := bw.WriteString(FormatRecord(t)); err != nil {
			return fmt.Errorf("write record %q: %w", t.ID, err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("write record %q: %w", t.ID, err)
		}
	}
	return bw.Flush()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

type scanner struct {
	s   string
	pos int
}

func (sc *scanner) done() bool { return sc.pos >= len(sc.s) }

func (sc *scanner) skipSpace() {
	for sc.pos < len(sc.s) {
		switch sc.s[sc.pos] {
		case ' ', '\t', '\r', '\n':
			sc.pos++
		default:
			return
		}
	}
}

func (sc *scanner) peek() byte {
	if sc.done() {
		return 0
	}
	return sc.s[sc.pos]
}

func (sc *scanner) expect(c byte, field string) error {
	sc.skipSpace()
	if sc.peek() != c {
		got := "end of line"
		if !sc.done() {
			got = strconv.QuoteRune(rune(sc.s[sc.pos]))
		}
		return &ParseError{Field: field, Reason: fmt.Sprintf("expected %q at offset %d, got %s", c, sc.pos, got)}
	}
	sc.pos++
	return nil
}

func (sc *scanner) number(field string) (float64, error) {
	sc.skipSpace()
	start := sc.pos
	for sc.pos < len(sc.s) {
		c := sc.s[sc.pos]
		if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+' || c == 'e' || c == 'E' {
			sc.pos++
			continue
		}
		break
	}
	tok := sc.s[start:sc.pos]
	if tok == "" {
		return 0, &ParseError{Field: field, Reason: fmt.Sprintf("expected number at offset %d", start)}
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, &ParseError{Field: field, Reason: fmt.Sprintf("bad number %q", tok), Err: err}
	}
	return v, nil
}

// pointList parses "[(x, y), ...]". A trailing comma is tolerated, as in
// the literal lists the producers emit.
func (sc *scanner) pointList() ([]Point, error) {
	if err := sc.expect('[', "points"); err != nil {
		return nil, err
	}
	points := []Point{}
	for {
		sc.skipSpace()
		if sc.peek() == ']' {
			sc.pos++
			return points, nil
		}
		if len(points) > 0 {
			if err := sc.expect(',', "points"); err != nil {
				return nil, err
			}
			sc.skipSpace()
			if sc.peek() == ']' {
				sc.pos++
				return points, nil
			}
		}
		p, err := sc.tuple()
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
}

func (sc *scanner) tuple() (Point, error) {
	if err := sc.expect('(', "points"); err != nil {
		return Point{}, err
	}
	x, err := sc.number("points")
	if err != nil {
		return Point{}, err
	}
	if err := sc.expect(',', "points"); err != nil {
		return Point{}, err
	}
	y, err := sc.number("points")
	if err != nil {
		return Point{}, err
	}
	sc.skipSpace()
	if sc.peek() == ',' {
		sc.pos++
	}
	if err := sc.expect(')', "points"); err != nil {
		return Point{}, err
	}
	return Point{X: x, Y: y}, nil
}

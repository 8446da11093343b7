package netlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// TextOptions controls how events are rendered as text
type TextOptions struct {
	// PrivacyStripping hides cookies and credentials in logged headers
	PrivacyStripping bool
	// NumericDate prints raw millisecond timestamps instead of dates
	NumericDate bool
}

// TextRenderer renders a sequence of events as human readable text
type TextRenderer interface {
	Render(w io.Writer, events []*Event, opts TextOptions) error
}

const strippedValue = "[value was stripped]"

// Header names whose values are hidden when privacy stripping is on
var sensitiveHeaders = map[string]bool{
	"cookie":              true,
	"set-cookie":          true,
	"set-cookie2":         true,
	"authorization":       true,
	"proxy-authorization": true,
}

// TextWriter is the default TextRenderer. Events are printed one per line,
// indented by BEGIN/END nesting, followed by their params:
//
//	t=1338 [st=  0] +REQUEST_ALIVE  [dt=12]
//	t=1338 [st=  0]    URL_REQUEST_START_JOB
//	                   --> url = "http://example.com/"
type TextWriter struct {
	clock Clock
}

// NewTextWriter creates a TextWriter converting ticks with clock
func NewTextWriter(clock Clock) *TextWriter {
	if clock == nil {
		clock = TickClock{}
	}
	return &TextWriter{clock: clock}
}

// Render implements TextRenderer
func (t *TextWriter) Render(w io.Writer, events []*Event, opts TextOptions) error {
	if len(events) == 0 {
		return nil
	}

	bw := bufio.NewWriter(w)
	base := events[0].Time
	depth := 0

	for i, e := range events {
		if e.Phase == PhaseEnd && depth > 0 {
			depth--
		}

		prefix := fmt.Sprintf("t=%s [st=%5d] ", t.formatTime(e.Time, opts), e.Time-base)
		indent := strings.Repeat("  ", depth)

		line := prefix + indent + phaseMarker(e.Phase) + EventTypeName(e.Type)
		if e.Phase == PhaseBegin {
			if end := findEnd(events, i); end != nil {
				line += fmt.Sprintf("  [dt=%d]", end.Time-e.Time)
			} else {
				line += "  [dt=?]"
			}
		}
		if _, err := fmt.Fprintln(bw, line); err != nil {
			return err
		}

		paramIndent := strings.Repeat(" ", len(prefix)) + indent + " "
		if err := writeParams(bw, paramIndent, e, opts); err != nil {
			return err
		}

		if e.Phase == PhaseBegin {
			depth++
		}
	}

	return bw.Flush()
}

func (t *TextWriter) formatTime(ticks int64, opts TextOptions) string {
	at := t.clock.TicksToTime(ticks)
	if opts.NumericDate {
		return strconv.FormatInt(at.UnixMilli(), 10)
	}
	return at.Format("2006-01-02 15:04:05.000")
}

func phaseMarker(p EventPhase) string {
	switch p {
	case PhaseBegin:
		return "+"
	case PhaseEnd:
		return "-"
	default:
		return " "
	}
}

// findEnd returns the END event closing the BEGIN at index i
func findEnd(events []*Event, i int) *Event {
	begin := events[i]
	nested := 0
	for _, e := range events[i+1:] {
		if e.Type != begin.Type {
			continue
		}
		switch e.Phase {
		case PhaseBegin:
			nested++
		case PhaseEnd:
			if nested == 0 {
				return e
			}
			nested--
		}
	}
	return nil
}

func writeParams(w io.Writer, indent string, e *Event, opts TextOptions) error {
	if len(e.Params) == 0 {
		return nil
	}

	keys := make([]string, 0, len(e.Params))
	for k := range e.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := e.Params[k]
		if k == "headers" {
			if headers, ok := v.([]any); ok {
				if _, err := fmt.Fprintf(w, "%s--> %s =\n", indent, k); err != nil {
					return err
				}
				for _, h := range headers {
					line := fmt.Sprint(h)
					if opts.PrivacyStripping {
						line = StripHeader(line)
					}
					if _, err := fmt.Fprintf(w, "%s      %s\n", indent, line); err != nil {
						return err
					}
				}
				continue
			}
		}
		if _, err := fmt.Fprintf(w, "%s--> %s = %s\n", indent, k, formatValue(v)); err != nil {
			return err
		}
	}
	return nil
}

// StripHeader hides the value of a "Name: value" header line when the
// header carries cookies or credentials.
func StripHeader(line string) string {
	name, _, found := strings.Cut(line, ":")
	if !found {
		return line
	}
	if !sensitiveHeaders[strings.ToLower(strings.TrimSpace(name))] {
		return line
	}
	return name + ": " + strippedValue
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return strconv.Quote(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

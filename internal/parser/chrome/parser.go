package chrome

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"netlynx/internal/netlog"
	parsers "netlynx/internal/parser"

	"github.com/pterm/pterm"
)

// ParserType is the registry name of the NetLog parser
const ParserType = "netlog"

const headerPrefix = `{"constants"`

// ErrNoConstants is returned for coded events seen before the header
var ErrNoConstants = errors.New("event uses numeric codes but no constants were loaded")

// Parser implements parsers.StatefulParser for NetLog JSON captures as
// written by --log-net-log: a constants header line followed by one event
// per line, each with a trailing comma.
type Parser struct {
	logger *pterm.Logger
	mu     sync.RWMutex
	consts *Constants
}

// NewParser creates a parser with no constants loaded
func NewParser(logger *pterm.Logger) *Parser {
	return &Parser{logger: logger}
}

// Register adds the NetLog parser to reg
func Register(reg *parsers.Registry, logger *pterm.Logger) {
	reg.Register(ParserType, func() parsers.LogParser {
		return NewParser(logger)
	})
}

// Name returns the parser identifier
func (p *Parser) Name() string {
	return ParserType
}

// IsHeader reports whether line opens a capture
func IsHeader(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), headerPrefix)
}

// IsHeader implements parsers.SessionParser
func (p *Parser) IsHeader(line string) bool {
	return IsHeader(line)
}

// CanParse accepts the constants header and single-line event objects.
// Framing lines such as `"events": [` or `]}` are rejected.
func (p *Parser) CanParse(line string) bool {
	line = trimLine(line)
	if line == "" {
		return false
	}
	if IsHeader(line) {
		return true
	}
	return line[0] == '{' && line[len(line)-1] == '}'
}

// Parse decodes one line. Header lines load the constants and return
// parsers.ErrSkipLine.
func (p *Parser) Parse(line string) (*netlog.Event, error) {
	line = trimLine(line)
	if IsHeader(line) {
		if err := p.loadHeader(line); err != nil {
			return nil, err
		}
		return nil, parsers.ErrSkipLine
	}

	p.mu.RLock()
	consts := p.consts
	p.mu.RUnlock()

	return decodeEvent([]byte(line), consts)
}

// loadHeader reads `{"constants": {...},` possibly followed by the start
// of the events array on the same line.
func (p *Parser) loadHeader(line string) error {
	dec := json.NewDecoder(strings.NewReader(line))

	// Walk tokens up to the constants value instead of unmarshalling the
	// whole line, which is not valid JSON on its own.
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("invalid header: %w", err)
	}
	key, err := dec.Token()
	if err != nil || key != "constants" {
		return fmt.Errorf("invalid header: expected constants key")
	}
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("invalid header: %w", err)
	}

	consts, err := ParseConstants(raw)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.consts = consts
	p.mu.Unlock()

	p.logger.Debug("Loaded NetLog constants",
		p.logger.Args(
			"event_types", len(consts.EventTypes),
			"source_types", len(consts.SourceTypes),
			"time_tick_offset", int64(consts.TimeTickOffset),
		))
	return nil
}

// Constants returns the loaded constants, or nil before the header
func (p *Parser) Constants() *Constants {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.consts
}

// TimeTickOffset implements parsers.ClockedParser
func (p *Parser) TimeTickOffset() (int64, bool) {
	consts := p.Constants()
	if consts == nil {
		return 0, false
	}
	return int64(consts.TimeTickOffset), true
}

// State implements parsers.StatefulParser
func (p *Parser) State() ([]byte, error) {
	consts := p.Constants()
	if consts == nil {
		return nil, nil
	}
	return json.Marshal(consts)
}

// Restore implements parsers.StatefulParser
func (p *Parser) Restore(state []byte) error {
	if len(state) == 0 {
		return nil
	}
	consts, err := ParseConstants(state)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.consts = consts
	p.mu.Unlock()
	return nil
}

func trimLine(line string) string {
	line = strings.TrimSpace(line)
	return strings.TrimSuffix(line, ",")
}

// wireEvent is an event as serialized by NetLog. Type, phase and source
// type are numeric codes in captures, but names are accepted too so that
// live clients can push events without a constants table.
type wireEvent struct {
	Type   any   `json:"type"`
	Phase  any   `json:"phase"`
	Time   Ticks `json:"time"`
	Source struct {
		ID   int64 `json:"id"`
		Type any   `json:"type"`
	} `json:"source"`
	Params netlog.Params `json:"params"`
}

func decodeEvent(data []byte, consts *Constants) (*netlog.Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return w.resolve(consts)
}

func (w *wireEvent) resolve(consts *Constants) (*netlog.Event, error) {
	e := &netlog.Event{
		Time:   int64(w.Time),
		Params: w.Params,
	}
	e.Source.ID = w.Source.ID

	switch v := w.Type.(type) {
	case string:
		e.Type = netlog.EventType(v)
	case float64:
		if consts == nil {
			return nil, ErrNoConstants
		}
		e.Type = consts.eventType(int(v))
	default:
		return nil, fmt.Errorf("event has no type")
	}

	switch v := w.Source.Type.(type) {
	case string:
		e.Source.Type = netlog.SourceType(v)
	case float64:
		if consts == nil {
			return nil, ErrNoConstants
		}
		e.Source.Type = consts.sourceType(int(v))
	default:
		e.Source.Type = netlog.SourceNone
	}

	switch v := w.Phase.(type) {
	case string:
		e.Phase, _ = phaseByName(v)
	case float64:
		if consts != nil {
			e.Phase = consts.phase(int(v))
		} else {
			e.Phase = netlog.EventPhase(v)
		}
	}

	return e, nil
}

package chrome

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"netlynx/internal/netlog"
)

// Ticks is a tick count that NetLog writes either as a JSON number or as a
// decimal string (64 bit values do not survive JavaScript numbers).
type Ticks int64

func (t *Ticks) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*t = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(s)
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(string(b), 64)
		if ferr != nil {
			return fmt.Errorf("invalid tick value %q: %w", b, err)
		}
		n = int64(f)
	}
	*t = Ticks(n)
	return nil
}

// Constants is the dictionary that opens every NetLog capture. Events
// refer to types, sources and phases by the numeric codes defined here.
type Constants struct {
	EventTypes     map[string]int `json:"logEventTypes"`
	SourceTypes    map[string]int `json:"logSourceType"`
	EventPhases    map[string]int `json:"logEventPhase"`
	NetErrors      map[string]int `json:"netError"`
	TimeTickOffset Ticks          `json:"timeTickOffset"`

	eventNames  map[int]netlog.EventType
	sourceNames map[int]netlog.SourceType
	phases      map[int]netlog.EventPhase
	errorNames  map[int]string
}

// index builds the reverse lookup tables
func (c *Constants) index() {
	c.eventNames = make(map[int]netlog.EventType, len(c.EventTypes))
	for name, code := range c.EventTypes {
		c.eventNames[code] = netlog.EventType(name)
	}
	c.sourceNames = make(map[int]netlog.SourceType, len(c.SourceTypes))
	for name, code := range c.SourceTypes {
		c.sourceNames[code] = netlog.SourceType(name)
	}
	c.errorNames = make(map[int]string, len(c.NetErrors))
	for name, code := range c.NetErrors {
		c.errorNames[code] = name
	}

	c.phases = map[int]netlog.EventPhase{
		0: netlog.PhaseNone,
		1: netlog.PhaseBegin,
		2: netlog.PhaseEnd,
	}
	for name, code := range c.EventPhases {
		if p, ok := phaseByName(name); ok {
			c.phases[code] = p
		}
	}
}

// ParseConstants decodes a constants dictionary
func ParseConstants(data []byte) (*Constants, error) {
	var c Constants
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode constants: %w", err)
	}
	c.index()
	return &c, nil
}

// Clock returns a clock converting this capture's ticks to wall time
func (c *Constants) Clock() netlog.TickClock {
	return netlog.TickClock{Offset: int64(c.TimeTickOffset)}
}

func (c *Constants) eventType(code int) netlog.EventType {
	if name, ok := c.eventNames[code]; ok {
		return name
	}
	return netlog.EventType(fmt.Sprintf("UNKNOWN_EVENT_%d", code))
}

func (c *Constants) sourceType(code int) netlog.SourceType {
	if name, ok := c.sourceNames[code]; ok {
		return name
	}
	return netlog.SourceType(fmt.Sprintf("UNKNOWN_SOURCE_%d", code))
}

func (c *Constants) phase(code int) netlog.EventPhase {
	if p, ok := c.phases[code]; ok {
		return p
	}
	return netlog.PhaseNone
}

// ErrorName returns the symbolic name of a net error code, like
// ERR_NAME_NOT_RESOLVED, or "" if the code is unknown.
func (c *Constants) ErrorName(code int64) string {
	if c == nil {
		return ""
	}
	return c.errorNames[int(code)]
}

func phaseByName(name string) (netlog.EventPhase, bool) {
	switch name {
	case "PHASE_BEGIN", "BEGIN":
		return netlog.PhaseBegin, true
	case "PHASE_END", "END":
		return netlog.PhaseEnd, true
	case "PHASE_NONE", "NONE":
		return netlog.PhaseNone, true
	}
	return netlog.PhaseNone, false
}

package netlog

import (
	"encoding/json"
	"math"
	"strconv"
)

// Source identifies the activity an event was logged for
type Source struct {
	Type SourceType `json:"type"`
	ID   int64      `json:"id"`
}

// Params holds the free-form, event specific fields of an event
type Params map[string]any

// Event is a single decoded NetLog entry. Events are immutable once created.
type Event struct {
	Type   EventType  `json:"type"`
	Phase  EventPhase `json:"phase"`
	Time   int64      `json:"time"` // ticks in milliseconds
	Source Source     `json:"source"`
	Params Params     `json:"params,omitempty"`
}

// Has reports whether key is present and not null
func (p Params) Has(key string) bool {
	if p == nil {
		return false
	}
	v, ok := p[key]
	return ok && v != nil
}

// String returns the value of key if it is a string
func (p Params) String(key string) (string, bool) {
	if p == nil {
		return "", false
	}
	s, ok := p[key].(string)
	return s, ok
}

// Int returns the value of key as an integer. JSON numbers and decimal
// strings are both accepted, since NetLog writes 64-bit values as strings.
func (p Params) Int(key string) (int64, bool) {
	if p == nil {
		return 0, false
	}
	return toInt(p[key])
}

// Bool returns the value of key using JavaScript truthiness for non-bools
func (p Params) Bool(key string) bool {
	if p == nil {
		return false
	}
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		return v != ""
	case nil:
		return false
	default:
		n, ok := toInt(v)
		return ok && n != 0
	}
}

// SourceDependency returns params.source_dependency.id
func (p Params) SourceDependency() (int64, bool) {
	if p == nil {
		return 0, false
	}
	dep, ok := p["source_dependency"].(map[string]any)
	if !ok {
		return 0, false
	}
	return toInt(dep["id"])
}

// NetError returns params.net_error, or 0 when absent
func (p Params) NetError() int64 {
	code, _ := p.Int("net_error")
	return code
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if math.Trunc(n) != n {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

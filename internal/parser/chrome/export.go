package chrome

import (
	"encoding/json"
	"fmt"
	"io"

	"netlynx/internal/netlog"
)

// ProxySettings holds the proxy configuration dictionaries reported by
// the browser. Original is what was configured, Effective is what is in
// use after auto-detection and PAC resolution.
type ProxySettings struct {
	Original  map[string]any `json:"original"`
	Effective map[string]any `json:"effective"`
}

// BadProxy is a proxy the browser stopped using until BadUntil
type BadProxy struct {
	ProxyURI string `json:"proxy_uri"`
	BadUntil Ticks  `json:"bad_until"`
}

// HTTPCacheInfo carries the HTTP cache statistics
type HTTPCacheInfo struct {
	Stats map[string]any `json:"stats"`
}

// PolledData is the state snapshot appended to complete exports
type PolledData struct {
	ProxySettings *ProxySettings `json:"proxySettings"`
	BadProxies    []BadProxy     `json:"badProxies"`
	HTTPCacheInfo *HTTPCacheInfo `json:"httpCacheInfo"`
}

// Export is a complete NetLog dump, as saved from net-internals or
// written by a browser that exited cleanly.
type Export struct {
	Constants  *Constants
	Events     []*netlog.Event
	PolledData PolledData
	// Skipped counts events that could not be decoded
	Skipped int
}

type rawExport struct {
	Constants  json.RawMessage   `json:"constants"`
	Events     []json.RawMessage `json:"events"`
	PolledData PolledData        `json:"polledData"`
}

// DecodeExport reads a complete export. Events that fail to decode are
// counted in Skipped rather than failing the whole export.
func DecodeExport(r io.Reader) (*Export, error) {
	var raw rawExport
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode export: %w", err)
	}
	if len(raw.Constants) == 0 {
		return nil, fmt.Errorf("export has no constants")
	}

	consts, err := ParseConstants(raw.Constants)
	if err != nil {
		return nil, err
	}

	exp := &Export{
		Constants:  consts,
		Events:     make([]*netlog.Event, 0, len(raw.Events)),
		PolledData: raw.PolledData,
	}
	for _, data := range raw.Events {
		e, err := decodeEvent(data, consts)
		if err != nil {
			exp.Skipped++
			continue
		}
		exp.Events = append(exp.Events, e)
	}
	return exp, nil
}

// Clock returns a clock for the export. The clock is frozen at the last
// event so that sources still active at capture time get a duration
// relative to the capture, not to the present.
func (e *Export) Clock() netlog.TickClock {
	c := e.Constants.Clock()
	if n := len(e.Events); n > 0 {
		c.Frozen = c.TicksToTime(e.Events[n-1].Time)
	}
	return c
}

package views

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"netlynx/internal/netlog"
	"netlynx/internal/parser/chrome"
	"netlynx/internal/tracker"
)

// deletedText replaces the resolver log once its source is gone
const deletedText = "Deleted."

// ProxySettingsToString renders a proxy configuration dictionary as shown
// by net-internals
func ProxySettingsToString(config map[string]any) string {
	if config == nil {
		return ""
	}

	modes := []string{}
	if b, _ := config["auto_detect"].(bool); b {
		modes = append(modes, "Auto-detect")
	}
	if s, _ := config["pac_url"].(string); s != "" {
		modes = append(modes, "PAC script: "+s)
	}
	if s, _ := config["single_proxy"].(string); s != "" {
		modes = append(modes, "Proxy server: "+s)
	} else if perScheme, ok := config["proxy_per_scheme"].(map[string]any); ok {
		schemes := make([]string, 0, len(perScheme))
		for scheme := range perScheme {
			if scheme != "fallback" {
				schemes = append(schemes, scheme)
			}
		}
		sort.Strings(schemes)
		for _, scheme := range schemes {
			modes = append(modes, fmt.Sprintf("Proxy server for %s: %v", strings.ToUpper(scheme), perScheme[scheme]))
		}
		if fallback, ok := perScheme["fallback"]; ok {
			modes = append(modes, fmt.Sprintf("Proxy server for everything else: %v", fallback))
		}
	}

	if len(modes) == 0 {
		return "Use DIRECT connections."
	}

	lines := []string{}
	if len(modes) == 1 {
		lines = append(lines, modes[0])
	} else {
		lines = append(lines, "Try the following in order:")
		for i, m := range modes {
			lines = append(lines, fmt.Sprintf("  (%d) %s", i+1, m))
		}
	}

	if bypass, ok := config["bypass_list"].([]any); ok && len(bypass) > 0 {
		lines = append(lines, "  Bypass list: ")
		for _, b := range bypass {
			lines = append(lines, fmt.Sprintf("    %v", b))
		}
	}

	if s, _ := config["source"].(string); s != "" && s != "UNKNOWN" {
		lines = append(lines, "Source: "+s)
	}

	return strings.Join(lines, "\n")
}

// BadProxy is a proxy the browser avoids until BadUntil
type BadProxy struct {
	ProxyURI string    `json:"proxy_uri"`
	BadUntil time.Time `json:"bad_until"`
}

// ProxySnapshot is what the proxy view currently shows
type ProxySnapshot struct {
	Original         string     `json:"original"`
	Effective        string     `json:"effective"`
	BadProxies       []BadProxy `json:"bad_proxies"`
	ResolverSourceID int64      `json:"resolver_source_id"`
	ResolverLog      string     `json:"resolver_log"`
}

// ProxyView follows the proxy setup of a capture: the configured and
// effective settings, the proxies marked bad and the log of the most
// recent proxy resolver initialization.
type ProxyView struct {
	mu             sync.RWMutex
	clock          netlog.Clock
	original       string
	effective      string
	badProxies     []BadProxy
	latestSourceID int64
	resolverLog    string
}

// NewProxyView creates an empty view. clock converts bad-until ticks.
func NewProxyView(clock netlog.Clock) *ProxyView {
	if clock == nil {
		clock = netlog.TickClock{}
	}
	return &ProxyView{clock: clock}
}

// Attach registers the view with t and picks up the resolver source t
// already holds
func (v *ProxyView) Attach(t *tracker.Tracker) {
	resolvers := t.Summaries(tracker.Filter{SourceType: netlog.SourceInitProxyResolver})
	for i := len(resolvers) - 1; i >= 0; i-- {
		text, ok := t.Text(resolvers[i].SourceID)
		if !ok {
			continue
		}
		v.mu.Lock()
		if resolvers[i].SourceID >= v.latestSourceID {
			v.latestSourceID = resolvers[i].SourceID
			v.resolverLog = text
		}
		v.mu.Unlock()
		break
	}
	t.AddObserver(v)
}

// SetProxySettings shows new settings. It reports false, clearing the
// display, when either dictionary is missing.
func (v *ProxyView) SetProxySettings(settings *chrome.ProxySettings) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.original, v.effective = "", ""
	if settings == nil || settings.Original == nil || settings.Effective == nil {
		return false
	}
	v.original = ProxySettingsToString(settings.Original)
	v.effective = ProxySettingsToString(settings.Effective)
	return true
}

// SetBadProxies replaces the bad proxy list
func (v *ProxyView) SetBadProxies(bad []chrome.BadProxy) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.badProxies = nil
	if bad == nil {
		return false
	}
	v.badProxies = make([]BadProxy, len(bad))
	for i, b := range bad {
		v.badProxies[i] = BadProxy{
			ProxyURI: b.ProxyURI,
			BadUntil: v.clock.TicksToTime(int64(b.BadUntil)),
		}
	}
	return true
}

// Snapshot returns a copy of what the view shows
func (v *ProxyView) Snapshot() ProxySnapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()

	bad := make([]BadProxy, len(v.badProxies))
	copy(bad, v.badProxies)
	return ProxySnapshot{
		Original:         v.original,
		Effective:        v.effective,
		BadProxies:       bad,
		ResolverSourceID: v.latestSourceID,
		ResolverLog:      v.resolverLog,
	}
}

// OnSourceEntriesUpdated keeps the log of the resolver source with the
// greatest id
func (v *ProxyView) OnSourceEntriesUpdated(entries []*netlog.SourceEntry) {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.SourceType() != netlog.SourceInitProxyResolver {
			continue
		}

		v.mu.RLock()
		older := v.latestSourceID > e.SourceID()
		v.mu.RUnlock()
		if older {
			continue
		}

		var sb strings.Builder
		if err := e.PrintAsText(&sb); err != nil {
			continue
		}
		v.mu.Lock()
		v.latestSourceID = e.SourceID()
		v.resolverLog = sb.String()
		v.mu.Unlock()
	}
}

func (v *ProxyView) OnSourceEntriesDeleted(ids []int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, id := range ids {
		if id == v.latestSourceID {
			v.clearLogLocked()
			return
		}
	}
}

func (v *ProxyView) OnAllSourceEntriesDeleted() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.clearLogLocked()
}

// clearLogLocked bumps the latest id so that a source logged before the
// deletion cannot take the display back
func (v *ProxyView) clearLogLocked() {
	v.latestSourceID++
	v.resolverLog = deletedText
}

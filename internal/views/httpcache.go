package views

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"netlynx/internal/parser/chrome"

	"github.com/dustin/go-humanize"
)

// HTTPCacheView shows the HTTP cache statistics of a capture
type HTTPCacheView struct {
	mu    sync.RWMutex
	stats map[string]any
}

func NewHTTPCacheView() *HTTPCacheView {
	return &HTTPCacheView{}
}

// SetHTTPCacheInfo replaces the statistics; false when info is missing
func (v *HTTPCacheView) SetHTTPCacheInfo(info *chrome.HTTPCacheInfo) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.stats = nil
	if info == nil {
		return false
	}
	v.stats = make(map[string]any, len(info.Stats))
	for k, val := range info.Stats {
		v.stats[k] = val
	}
	return true
}

// Lines returns the statistics as "name: value" lines sorted by name
func (v *HTTPCacheView) Lines() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	names := make([]string, 0, len(v.stats))
	for name := range v.stats {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, len(names))
	for i, name := range names {
		lines[i] = name + ": " + formatStat(v.stats[name])
	}
	return lines
}

// formatStat groups the digits of whole numbers; the browser reports most
// counters as decimal strings
func formatStat(val any) string {
	switch n := val.(type) {
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return humanize.Comma(int64(n))
		}
		return humanize.Commaf(n)
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return humanize.Comma(i)
		}
		return n
	default:
		return fmt.Sprint(val)
	}
}

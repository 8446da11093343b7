package views

import (
	"encoding/json"
	"sync"

	"netlynx/internal/ingestion"
	"netlynx/internal/netlog"
	"netlynx/internal/parser/chrome"
	"netlynx/internal/tracker"

	"github.com/pterm/pterm"
)

// CaptureViews are the status views of one capture
type CaptureViews struct {
	Proxy     *ProxyView
	HTTPCache *HTTPCacheView
}

// Registry keeps the views of every capture being processed
type Registry struct {
	mu     sync.RWMutex
	views  map[string]*CaptureViews
	logger *pterm.Logger
}

func NewRegistry(logger *pterm.Logger) *Registry {
	return &Registry{
		views:  make(map[string]*CaptureViews),
		logger: logger,
	}
}

// Hook attaches views to each processor the coordinator starts
func (r *Registry) Hook() ingestion.ProcessorHook {
	return func(p *ingestion.CaptureProcessor) {
		r.Attach(p.Name(), p.Tracker(), p.Clock(), p.Capture().PolledData)
	}
}

// Attach creates the views of a capture, replacing earlier ones. polled
// is the stored polledData of a loaded export and may be empty.
func (r *Registry) Attach(name string, t *tracker.Tracker, clock netlog.Clock, polled string) *CaptureViews {
	cv := &CaptureViews{
		Proxy:     NewProxyView(clock),
		HTTPCache: NewHTTPCacheView(),
	}

	if polled != "" {
		var data chrome.PolledData
		if err := json.Unmarshal([]byte(polled), &data); err != nil {
			r.logger.Warn("Failed to decode polled data",
				r.logger.Args("capture", name, "error", err))
		} else {
			cv.Load(data)
		}
	}
	cv.Proxy.Attach(t)

	r.mu.Lock()
	r.views[name] = cv
	r.mu.Unlock()

	r.logger.Debug("Attached status views", r.logger.Args("capture", name))
	return cv
}

// Load shows the state snapshot of an export
func (cv *CaptureViews) Load(data chrome.PolledData) {
	cv.Proxy.SetProxySettings(data.ProxySettings)
	cv.Proxy.SetBadProxies(data.BadProxies)
	cv.HTTPCache.SetHTTPCacheInfo(data.HTTPCacheInfo)
}

// Get returns the views of a capture
func (r *Registry) Get(name string) (*CaptureViews, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cv, ok := r.views[name]
	return cv, ok
}

// Remove forgets the views of a deleted capture
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.views, name)
}

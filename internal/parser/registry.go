package parsers

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"netlynx/internal/netlog"
)

// ErrSkipLine is returned by Parse for lines that are valid but carry no
// event, such as a capture header.
var ErrSkipLine = errors.New("line carries no event")

// LogParser turns capture lines into NetLog events
type LogParser interface {
	Name() string
	CanParse(line string) bool
	Parse(line string) (*netlog.Event, error)
}

// StatefulParser is a LogParser whose output depends on a header read
// earlier in the file. State and Restore let a processor resume reading
// in the middle of a file without seeing the header again.
type StatefulParser interface {
	LogParser
	State() ([]byte, error)
	Restore(state []byte) error
}

// ClockedParser is a StatefulParser whose header also carries the offset
// that turns the capture's tick values into wall time
type ClockedParser interface {
	StatefulParser
	TimeTickOffset() (int64, bool)
}

// SessionParser is a LogParser whose header line starts a new logging
// session. Lines after a header must not be parsed before it.
type SessionParser interface {
	LogParser
	IsHeader(line string) bool
}

// Factory creates a fresh parser. Parsers may hold per-capture state, so
// every capture gets its own instance.
type Factory func() LogParser

// Registry maps parser types to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name, replacing any previous one
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Get returns a new parser of the given type
func (r *Registry) Get(name string) (LogParser, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown parser type %q", name)
	}
	return f(), nil
}

// Names lists the registered parser types
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

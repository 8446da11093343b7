package tracker

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"netlynx/internal/netlog"

	"github.com/pterm/pterm"
)

// Observer is notified about changes to the tracked sources. Callbacks run
// with the tracker locked: they may read the entries they are handed but
// must not call back into the tracker.
type Observer interface {
	OnSourceEntriesUpdated(entries []*netlog.SourceEntry)
	OnSourceEntriesDeleted(ids []int64)
	OnAllSourceEntriesDeleted()
}

// Config holds tracker settings
type Config struct {
	MaxSources       int // 0 = unlimited
	PrivacyStripping bool
	NumericDate      bool
}

// Tracker groups the events of one capture into SourceEntries keyed by
// source id. It is safe for concurrent use.
type Tracker struct {
	mu               sync.RWMutex
	sources          map[int64]*netlog.SourceEntry
	order            []int64 // creation order, oldest first
	maxSourceID      int64
	nextSourcelessID int64
	maxSources       int
	observers        []Observer
	deps             netlog.Deps
	privacy          atomic.Bool
	numericDate      atomic.Bool
	logger           *pterm.Logger
}

// New creates a tracker. clock converts the capture's ticks and may be nil.
func New(cfg Config, clock netlog.Clock, logger *pterm.Logger) *Tracker {
	if clock == nil {
		clock = netlog.TickClock{}
	}

	t := &Tracker{
		sources:          make(map[int64]*netlog.SourceEntry),
		nextSourcelessID: -1,
		maxSources:       cfg.MaxSources,
		logger:           logger,
	}
	t.privacy.Store(cfg.PrivacyStripping)
	t.numericDate.Store(cfg.NumericDate)
	t.deps = netlog.Deps{
		Lookup:   lockedLookup{t},
		Clock:    clock,
		Renderer: netlog.NewTextWriter(clock),
		Options:  t,
	}
	return t
}

// lockedLookup resolves parents while AddEvents already holds the lock
type lockedLookup struct {
	t *Tracker
}

func (l lockedLookup) SourceEntry(id int64) (*netlog.SourceEntry, bool) {
	e, ok := l.t.sources[id]
	return e, ok
}

// AddObserver registers o for future notifications
func (t *Tracker) AddObserver(o Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, o)
}

// AddEvents applies events in order and returns the entries they touched,
// in the order each was first touched.
func (t *Tracker) AddEvents(events []*netlog.Event) []*netlog.SourceEntry {
	if len(events) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	updated := make([]*netlog.SourceEntry, 0, len(events))
	seen := make(map[int64]bool, len(events))
	created := 0

	for _, e := range events {
		// Sourceless events each get a unique negative id
		if e.Source.ID == 0 {
			copied := *e
			copied.Source.ID = t.nextSourcelessID
			t.nextSourcelessID--
			e = &copied
		}

		id := e.Source.ID
		entry, ok := t.sources[id]
		if ok {
			entry.Update(e)
		} else {
			entry = netlog.NewSourceEntry(e, t.maxSourceID, t.deps)
			t.sources[id] = entry
			t.order = append(t.order, id)
			created++
		}
		if id > t.maxSourceID {
			t.maxSourceID = id
		}

		if !seen[id] {
			seen[id] = true
			updated = append(updated, entry)
		}
	}

	if t.logger != nil {
		t.logger.Trace("Applied events to tracker",
			t.logger.Args("events", len(events), "updated", len(updated), "created", created))
	}

	for _, o := range t.observers {
		o.OnSourceEntriesUpdated(updated)
	}

	t.evictLocked()
	return updated
}

// RestoredSource is a source persisted by an earlier run
type RestoredSource struct {
	Events              []*netlog.Event
	MaxPreviousSourceID int64
	Description         string
}

// Restore puts back sources persisted by an earlier run, keeping their
// stored ordering id and description. Sources are rebuilt in id order so
// that parents exist before the sockets that borrow their description.
// Observers are not notified.
func (t *Tracker) Restore(sources []RestoredSource) {
	restored := make([]RestoredSource, 0, len(sources))
	for _, r := range sources {
		if len(r.Events) > 0 {
			restored = append(restored, r)
		}
	}
	sort.SliceStable(restored, func(i, j int) bool {
		return restoreKey(restored[i]) < restoreKey(restored[j])
	})

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, r := range restored {
		id := r.Events[0].Source.ID
		if _, ok := t.sources[id]; ok {
			continue
		}
		t.sources[id] = netlog.RestoreSourceEntry(r.Events, r.MaxPreviousSourceID, r.Description, t.deps)
		t.order = append(t.order, id)
		if id > t.maxSourceID {
			t.maxSourceID = id
		}
		if id < 0 && id <= t.nextSourcelessID {
			t.nextSourcelessID = id - 1
		}
	}

	if t.logger != nil {
		t.logger.Trace("Restored sources", t.logger.Args("sources", len(restored)))
	}
}

// restoreKey orders sourceless entries right after the source seen before them
func restoreKey(r RestoredSource) float64 {
	if id := r.Events[0].Source.ID; id > 0 {
		return float64(id)
	}
	return float64(r.MaxPreviousSourceID) + 0.5
}

// evictLocked drops sources above capacity, inactive ones first
func (t *Tracker) evictLocked() {
	if t.maxSources <= 0 || len(t.sources) <= t.maxSources {
		return
	}

	excess := len(t.sources) - t.maxSources
	victims := make([]int64, 0, excess)
	picked := make(map[int64]bool, excess)

	for _, id := range t.order {
		if len(victims) == excess {
			break
		}
		if t.sources[id].IsInactive() {
			victims = append(victims, id)
			picked[id] = true
		}
	}
	for _, id := range t.order {
		if len(victims) == excess {
			break
		}
		if !picked[id] {
			victims = append(victims, id)
			picked[id] = true
		}
	}

	t.removeLocked(victims)

	if t.logger != nil {
		t.logger.Debug("Evicted sources above capacity",
			t.logger.Args("evicted", len(victims), "max_sources", t.maxSources))
	}
}

func (t *Tracker) removeLocked(ids []int64) []int64 {
	removed := make([]int64, 0, len(ids))
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if _, ok := t.sources[id]; ok {
			delete(t.sources, id)
			drop[id] = true
			removed = append(removed, id)
		}
	}
	if len(removed) == 0 {
		return removed
	}

	kept := t.order[:0]
	for _, id := range t.order {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	t.order = kept

	for _, o := range t.observers {
		o.OnSourceEntriesDeleted(removed)
	}
	return removed
}

// DeleteSources removes the given sources and returns the ids that existed
func (t *Tracker) DeleteSources(ids []int64) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(ids)
}

// DeleteAll removes every source. Source id bookkeeping is kept so that
// later sources still sort after the deleted ones.
func (t *Tracker) DeleteAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sources = make(map[int64]*netlog.SourceEntry)
	t.order = nil
	for _, o := range t.observers {
		o.OnAllSourceEntriesDeleted()
	}
}

// Reset deletes every source and forgets the id bookkeeping. Used when a
// capture starts over with a new logging session.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sources = make(map[int64]*netlog.SourceEntry)
	t.order = nil
	t.maxSourceID = 0
	t.nextSourcelessID = -1
	for _, o := range t.observers {
		o.OnAllSourceEntriesDeleted()
	}
}

// ReserveSourcelessIDs makes later sourceless events get ids below
// lowest, so they do not collide with ids handed out before a restart.
func (t *Tracker) ReserveSourcelessIDs(lowest int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if lowest <= t.nextSourcelessID {
		t.nextSourcelessID = lowest - 1
	}
}

// SourceEntry returns the entry for id. The returned entry must only be
// read while no events are being added; use Summary or Events for
// concurrent access.
func (t *Tracker) SourceEntry(id int64) (*netlog.SourceEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.sources[id]
	return e, ok
}

// Description returns the description of source id, or "" if unknown
func (t *Tracker) Description(id int64) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.sources[id]; ok {
		return e.Description()
	}
	return ""
}

// Len returns the number of tracked sources
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sources)
}

// MaxSourceID returns the largest source id received so far
func (t *Tracker) MaxSourceID() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.maxSourceID
}

// SetPrivacyStripping toggles hiding of cookies and credentials in text output
func (t *Tracker) SetPrivacyStripping(on bool) {
	t.privacy.Store(on)
}

// PrivacyStripping reports whether privacy stripping is on
func (t *Tracker) PrivacyStripping() bool {
	return t.privacy.Load()
}

// SetNumericDate toggles printing raw tick values instead of dates
func (t *Tracker) SetNumericDate(on bool) {
	t.numericDate.Store(on)
}

// TextOptions implements netlog.OptionsProvider
func (t *Tracker) TextOptions() netlog.TextOptions {
	return netlog.TextOptions{
		PrivacyStripping: t.privacy.Load(),
		NumericDate:      t.numericDate.Load(),
	}
}

// Summary is a point-in-time copy of a SourceEntry's classification
type Summary struct {
	SourceID            int64             `json:"source_id"`
	SourceType          netlog.SourceType `json:"source_type"`
	Description         string            `json:"description"`
	IsError             bool              `json:"is_error"`
	IsInactive          bool              `json:"is_inactive"`
	StartTime           time.Time         `json:"start_time"`
	EndTime             time.Time         `json:"end_time"`
	DurationMs          int64             `json:"duration_ms"`
	EventCount          int               `json:"event_count"`
	MaxPreviousSourceID int64             `json:"max_previous_source_id"`
}

// Summarize copies the classification of e. The caller must ensure e is
// not being updated concurrently.
func Summarize(e *netlog.SourceEntry) Summary {
	return Summary{
		SourceID:            e.SourceID(),
		SourceType:          e.SourceType(),
		Description:         e.Description(),
		IsError:             e.IsError(),
		IsInactive:          e.IsInactive(),
		StartTime:           e.StartTime(),
		EndTime:             e.EndTime(),
		DurationMs:          e.Duration().Milliseconds(),
		EventCount:          len(e.LogEntries()),
		MaxPreviousSourceID: e.MaxPreviousEntrySourceID(),
	}
}

// Filter narrows down Summaries
type Filter struct {
	SourceType netlog.SourceType
	Active     *bool
	Error      *bool
	Search     string // case-insensitive substring of the description
}

func (f Filter) matches(e *netlog.SourceEntry) bool {
	if f.SourceType != "" && e.SourceType() != f.SourceType {
		return false
	}
	if f.Active != nil && e.IsInactive() == *f.Active {
		return false
	}
	if f.Error != nil && e.IsError() != *f.Error {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(e.Description()), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

// Summaries returns the matching sources sorted by source id. Sourceless
// entries sort right after the largest id seen before they arrived.
func (t *Tracker) Summaries(f Filter) []Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := make([]*netlog.SourceEntry, 0, len(t.sources))
	for _, e := range t.sources {
		if f.matches(e) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return lessEntry(entries[i], entries[j])
	})

	out := make([]Summary, len(entries))
	for i, e := range entries {
		out[i] = Summarize(e)
	}
	return out
}

// sortKey places sourceless (negative id) entries between real ids
func sortKey(e *netlog.SourceEntry) (float64, int64) {
	if id := e.SourceID(); id > 0 {
		return float64(id), 0
	}
	// Among sourceless entries, the ones created first have the larger id.
	return float64(e.MaxPreviousEntrySourceID()) + 0.5, -e.SourceID()
}

func lessEntry(a, b *netlog.SourceEntry) bool {
	ka, ta := sortKey(a)
	kb, tb := sortKey(b)
	if ka != kb {
		return ka < kb
	}
	return ta < tb
}

// Summary returns the summary of source id
func (t *Tracker) Summary(id int64) (Summary, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.sources[id]
	if !ok {
		return Summary{}, false
	}
	return Summarize(e), true
}

// Events returns a copy of the events logged for source id
func (t *Tracker) Events(id int64) ([]*netlog.Event, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.sources[id]
	if !ok {
		return nil, false
	}
	events := make([]*netlog.Event, len(e.LogEntries()))
	copy(events, e.LogEntries())
	return events, true
}

// Text renders the events of source id as text
func (t *Tracker) Text(id int64) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.sources[id]
	if !ok {
		return "", false
	}
	var sb strings.Builder
	if err := e.PrintAsText(&sb); err != nil {
		if t.logger != nil {
			t.logger.Warn("Failed to render source as text", t.logger.Args("source_id", id, "error", err))
		}
		return "", false
	}
	return sb.String(), true
}

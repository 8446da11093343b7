package netlog

import (
	"io"
	"time"
)

// SourceLookup resolves sibling sources by id. Implementations must return
// false for ids they do not (or no longer) know about.
type SourceLookup interface {
	SourceEntry(id int64) (*SourceEntry, bool)
}

// OptionsProvider supplies the text rendering flags at print time
type OptionsProvider interface {
	TextOptions() TextOptions
}

// Deps groups the collaborators a SourceEntry reads from. Any field may be
// left nil: lookups then find nothing, the clock falls back to a TickClock
// with no offset and text is rendered with the default TextWriter.
type Deps struct {
	Lookup   SourceLookup
	Clock    Clock
	Renderer TextRenderer
	Options  OptionsProvider
}

// SourceEntry gathers all events logged for a single source and keeps a
// running classification of them: whether the source is still active,
// whether it hit a net error, and a short description for list views.
//
// A SourceEntry is not safe for concurrent use.
type SourceEntry struct {
	deps                Deps
	maxPreviousSourceID int64
	entries             []*Event
	description         string
	// description persisted by an earlier run, used while the parent a
	// socket description depends on is unknown
	storedDescription string
	isError           bool
	isInactive        bool
}

// NewSourceEntry creates an entry from the first event seen for a source.
// maxPreviousSourceID is the largest source id seen before this one and is
// only used to order sources that have no real id.
func NewSourceEntry(first *Event, maxPreviousSourceID int64, deps Deps) *SourceEntry {
	return newSourceEntry(first, maxPreviousSourceID, "", deps)
}

// RestoreSourceEntry rebuilds an entry persisted by an earlier run from its
// events. maxPreviousSourceID and description are the stored values; the
// stored description is kept when the parent source it was derived from
// was not restored.
func RestoreSourceEntry(events []*Event, maxPreviousSourceID int64, description string, deps Deps) *SourceEntry {
	if len(events) == 0 {
		return nil
	}
	s := newSourceEntry(events[0], maxPreviousSourceID, description, deps)
	for _, e := range events[1:] {
		s.Update(e)
	}
	return s
}

func newSourceEntry(first *Event, maxPreviousSourceID int64, stored string, deps Deps) *SourceEntry {
	if deps.Clock == nil {
		deps.Clock = TickClock{}
	}
	if deps.Renderer == nil {
		deps.Renderer = NewTextWriter(deps.Clock)
	}

	s := &SourceEntry{
		deps:                deps,
		maxPreviousSourceID: maxPreviousSourceID,
		storedDescription:   stored,
		isInactive:          first.Phase != PhaseBegin,
	}
	s.Update(first)
	return s
}

// Update applies one more event for this source
func (s *SourceEntry) Update(e *Event) {
	// Only an END matching the very first event's type closes the source.
	if !s.isInactive && len(s.entries) > 0 &&
		e.Phase == PhaseEnd && e.Type == s.entries[0].Type {
		s.isInactive = true
	}

	if code := e.Params.NetError(); code != ErrNone {
		// A cache miss is reported as ERR_FAILED and is not a real error.
		if e.Type != TypeHTTPCacheOpenEntry || code != ErrFailed {
			s.isError = true
		}
	}

	prevStart := s.startEntry()
	s.entries = append(s.entries, e)
	if s.startEntry() != prevStart {
		s.updateDescription()
	}
}

// startEntry returns the event that anchors the description. Conceptually
// this is the first event logged, but wrapper events such as REQUEST_ALIVE
// are skipped in favor of the event carrying the interesting params.
func (s *SourceEntry) startEntry() *Event {
	if len(s.entries) < 1 {
		return nil
	}

	switch s.entries[0].Source.Type {
	case SourceFileStream:
		if e := s.findFirst(TypeFileStreamOpen); e != nil {
			return e
		}
	case SourceDownload:
		// Most recent rename wins, then the opened file, then the history
		// activation which is all a never-opened download has.
		if e := s.findLastStart(TypeDownloadFileRenamed); e != nil {
			return e
		}
		if e := s.findFirst(TypeDownloadFileOpened); e != nil {
			return e
		}
		if e := s.findFirst(TypeDownloadItemActive); e != nil {
			return e
		}
	}

	if len(s.entries) >= 2 {
		if s.entries[0].Type == TypeSocketPoolConnectJob || s.entries[1].Type == TypeUDPConnect {
			return s.entries[1]
		}
		if s.entries[0].Type == TypeRequestAlive {
			i := 1
			for i+1 < len(s.entries) && s.entries[i].Type == TypeURLRequestBlockedOnDelegate {
				i++
			}
			return s.entries[i]
		}
		if s.entries[1].Type == TypeIPv6ProbeRunning {
			return s.entries[1]
		}
	}
	return s.entries[0]
}

func (s *SourceEntry) findFirst(t EventType) *Event {
	for _, e := range s.entries {
		if e.Type == t {
			return e
		}
	}
	return nil
}

// findLastStart returns the last event of type t that is not an END
func (s *SourceEntry) findLastStart(t EventType) *Event {
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].Type == t && s.entries[i].Phase != PhaseEnd {
			return s.entries[i]
		}
	}
	return nil
}

// Description returns the text shown for this source in list views, most
// often a URL or a host name.
func (s *SourceEntry) Description() string {
	return s.description
}

// LogEntries returns the events in arrival order. Callers must not modify
// the returned slice.
func (s *SourceEntry) LogEntries() []*Event {
	return s.entries
}

func (s *SourceEntry) SourceType() SourceType {
	return s.entries[0].Source.Type
}

func (s *SourceEntry) SourceTypeString() string {
	return SourceTypeName(s.entries[0].Source.Type)
}

func (s *SourceEntry) SourceID() int64 {
	return s.entries[0].Source.ID
}

// MaxPreviousEntrySourceID returns the largest source id seen before this
// entry was created. Used only for sorting entries without a source id.
func (s *SourceEntry) MaxPreviousEntrySourceID() int64 {
	return s.maxPreviousSourceID
}

func (s *SourceEntry) IsInactive() bool {
	return s.isInactive
}

func (s *SourceEntry) IsError() bool {
	return s.isError
}

// StartTime returns the wall time of the first event
func (s *SourceEntry) StartTime() time.Time {
	return s.deps.Clock.TicksToTime(s.entries[0].Time)
}

// EndTime returns the time of the last event if the source is inactive,
// and the current time otherwise.
func (s *SourceEntry) EndTime() time.Time {
	if !s.isInactive {
		return s.deps.Clock.Now()
	}
	return s.deps.Clock.TicksToTime(s.entries[len(s.entries)-1].Time)
}

// Duration returns the time between the first and the last event. Active
// sources are measured up to the current time.
func (s *SourceEntry) Duration() time.Duration {
	return s.EndTime().Sub(s.StartTime())
}

// PrintAsText writes all events of this source as text
func (s *SourceEntry) PrintAsText(w io.Writer) error {
	var opts TextOptions
	if s.deps.Options != nil {
		opts = s.deps.Options.TextOptions()
	}
	return s.deps.Renderer.Render(w, s.entries, opts)
}

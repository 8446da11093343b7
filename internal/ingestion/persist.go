package ingestion

import (
	"encoding/json"
	"sync"

	"netlynx/internal/database/models"
	"netlynx/internal/netlog"
)

// recorder is a tracker observer that turns source updates into pending
// database rows. It runs under the tracker lock, so it only copies data;
// the processor drains and writes it.
type recorder struct {
	capture   string
	clock     netlog.Clock
	mu        sync.Mutex
	persisted map[int64]int // events already queued, per source
	sources   map[int64]*models.SourceRecord
	order     []int64
	events    []*models.EventRecord
}

func newRecorder(capture string, clock netlog.Clock) *recorder {
	return &recorder{
		capture:   capture,
		clock:     clock,
		persisted: make(map[int64]int),
		sources:   make(map[int64]*models.SourceRecord),
	}
}

func (r *recorder) OnSourceEntriesUpdated(entries []*netlog.SourceEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range entries {
		id := e.SourceID()
		if _, pending := r.sources[id]; !pending {
			r.order = append(r.order, id)
		}
		r.sources[id] = sourceRecord(r.capture, e)

		logged := e.LogEntries()
		for seq := r.persisted[id]; seq < len(logged); seq++ {
			r.events = append(r.events, eventRecord(r.capture, id, seq, logged[seq], r.clock))
		}
		r.persisted[id] = len(logged)
	}
}

// Evicted sources stay in the database; only the bookkeeping goes.
func (r *recorder) OnSourceEntriesDeleted(ids []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.persisted, id)
	}
}

func (r *recorder) OnAllSourceEntriesDeleted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.persisted = make(map[int64]int)
}

// seed records n events of source id as already persisted
func (r *recorder) seed(id int64, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.persisted[id] = n
}

// discard drops queued rows of the given sources
func (r *recorder) discard(ids []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
		delete(r.sources, id)
		delete(r.persisted, id)
	}

	order := r.order[:0]
	for _, id := range r.order {
		if !drop[id] {
			order = append(order, id)
		}
	}
	r.order = order

	events := r.events[:0]
	for _, e := range r.events {
		if !drop[e.SourceID] {
			events = append(events, e)
		}
	}
	r.events = events
}

// discardAll drops every queued row
func (r *recorder) discardAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.persisted = make(map[int64]int)
	r.sources = make(map[int64]*models.SourceRecord)
	r.order = nil
	r.events = nil
}

// drain hands over everything queued since the previous call
func (r *recorder) drain() ([]*models.SourceRecord, []*models.EventRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sources := make([]*models.SourceRecord, 0, len(r.order))
	for _, id := range r.order {
		sources = append(sources, r.sources[id])
	}
	events := r.events

	r.sources = make(map[int64]*models.SourceRecord)
	r.order = nil
	r.events = nil
	return sources, events
}

// pending returns the number of queued events
func (r *recorder) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func sourceRecord(capture string, e *netlog.SourceEntry) *models.SourceRecord {
	return &models.SourceRecord{
		CaptureName:         capture,
		SourceID:            e.SourceID(),
		SourceType:          e.SourceTypeString(),
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

func eventRecord(capture string, sourceID int64, seq int, e *netlog.Event, clock netlog.Clock) *models.EventRecord {
	rec := &models.EventRecord{
		CaptureName: capture,
		SourceID:    sourceID,
		Seq:         seq,
		Type:        string(e.Type),
		Phase:       int(e.Phase),
		Ticks:       e.Time,
		Timestamp:   clock.TicksToTime(e.Time),
	}
	if len(e.Params) > 0 {
		if data, err := json.Marshal(e.Params); err == nil {
			rec.Params = string(data)
		}
	}
	return rec
}

// eventFromRecord rebuilds a NetLog event from its stored row
func eventFromRecord(rec *models.EventRecord, sourceType netlog.SourceType) (*netlog.Event, error) {
	e := &netlog.Event{
		Type:   netlog.EventType(rec.Type),
		Phase:  netlog.EventPhase(rec.Phase),
		Time:   rec.Ticks,
		Source: netlog.Source{Type: sourceType, ID: rec.SourceID},
	}
	if rec.Params != "" {
		if err := json.Unmarshal([]byte(rec.Params), &e.Params); err != nil {
			return nil, err
		}
	}
	return e, nil
}

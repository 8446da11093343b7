package tracker

import (
	"testing"

	"netlynx/internal/netlog"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	updated    [][]int64
	deleted    [][]int64
	deletedAll int
}

func (r *recorder) OnSourceEntriesUpdated(entries []*netlog.SourceEntry) {
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.SourceID()
	}
	r.updated = append(r.updated, ids)
}

func (r *recorder) OnSourceEntriesDeleted(ids []int64) {
	r.deleted = append(r.deleted, append([]int64(nil), ids...))
}

func (r *recorder) OnAllSourceEntriesDeleted() {
	r.deletedAll++
}

func ev(src netlog.SourceType, id int64, t netlog.EventType, phase netlog.EventPhase, ticks int64, params netlog.Params) *netlog.Event {
	return &netlog.Event{
		Type:   t,
		Phase:  phase,
		Time:   ticks,
		Source: netlog.Source{Type: src, ID: id},
		Params: params,
	}
}

func newTracker(cfg Config) *Tracker {
	return New(cfg, netlog.TickClock{}, pterm.DefaultLogger.WithLevel(pterm.LogLevelDisabled))
}

func TestTracker_GroupsEventsBySource(t *testing.T) {
	tr := newTracker(Config{})
	rec := &recorder{}
	tr.AddObserver(rec)

	updated := tr.AddEvents([]*netlog.Event{
		ev(netlog.SourceURLRequest, 1, netlog.TypeRequestAlive, netlog.PhaseBegin, 0, nil),
		ev(netlog.SourceURLRequest, 1, netlog.TypeURLRequestStartJob, netlog.PhaseBegin, 1, netlog.Params{"url": "http://a.test/"}),
		ev(netlog.SourceHostResolverRequest, 2, netlog.TypeHostResolverImplRequest, netlog.PhaseBegin, 2, netlog.Params{"host": "a.test"}),
		ev(netlog.SourceURLRequest, 1, netlog.TypeRequestAlive, netlog.PhaseEnd, 3, nil),
	})

	require.Len(t, updated, 2)
	assert.Equal(t, int64(1), updated[0].SourceID())
	assert.Equal(t, int64(2), updated[1].SourceID())
	assert.Equal(t, [][]int64{{1, 2}}, rec.updated)

	assert.Equal(t, 2, tr.Len())
	assert.Equal(t, int64(2), tr.MaxSourceID())
	assert.Equal(t, "http://a.test/", tr.Description(1))
	assert.Equal(t, "a.test", tr.Description(2))

	sum, ok := tr.Summary(1)
	require.True(t, ok)
	assert.True(t, sum.IsInactive)
	assert.Equal(t, 3, sum.EventCount)
	assert.Equal(t, int64(3), sum.DurationMs)
}

func TestTracker_MaxPreviousSourceID(t *testing.T) {
	tr := newTracker(Config{})
	tr.AddEvents([]*netlog.Event{
		ev(netlog.SourceURLRequest, 5, netlog.TypeRequestAlive, netlog.PhaseBegin, 0, nil),
		ev(netlog.SourceURLRequest, 3, netlog.TypeRequestAlive, netlog.PhaseBegin, 1, nil),
		ev(netlog.SourceURLRequest, 9, netlog.TypeRequestAlive, netlog.PhaseBegin, 2, nil),
	})

	for id, want := range map[int64]int64{5: 0, 3: 5, 9: 5} {
		e, ok := tr.SourceEntry(id)
		require.True(t, ok)
		assert.Equal(t, want, e.MaxPreviousEntrySourceID(), "source %d", id)
	}
}

func TestTracker_SocketResolvesParentThroughTracker(t *testing.T) {
	tr := newTracker(Config{})
	tr.AddEvents([]*netlog.Event{
		ev(netlog.SourceConnectJob, 10, netlog.TypeSocketPoolConnectJob, netlog.PhaseBegin, 0, nil),
		ev(netlog.SourceConnectJob, 10, netlog.TypeSocketPoolConnectJobConnect, netlog.PhaseBegin, 1, netlog.Params{"group_name": "a.test:443"}),
		ev(netlog.SourceSocket, 11, netlog.TypeSocketAlive, netlog.PhaseBegin, 2, netlog.Params{
			"source_dependency": map[string]any{"id": float64(10), "type": float64(4)},
		}),
	})

	assert.Equal(t, "a.test:443", tr.Description(10))
	assert.Equal(t, "a.test:443", tr.Description(11))
}

func TestTracker_SourcelessEventsGetUniqueIDs(t *testing.T) {
	tr := newTracker(Config{})
	tr.AddEvents([]*netlog.Event{
		ev(netlog.SourceURLRequest, 4, netlog.TypeRequestAlive, netlog.PhaseBegin, 0, nil),
		ev(netlog.SourceNone, 0, netlog.TypeNetworkChanged, netlog.PhaseNone, 1, nil),
		ev(netlog.SourceURLRequest, 7, netlog.TypeRequestAlive, netlog.PhaseBegin, 2, nil),
		ev(netlog.SourceNone, 0, netlog.TypeNetworkChanged, netlog.PhaseNone, 3, nil),
	})

	require.Equal(t, 4, tr.Len())

	sums := tr.Summaries(Filter{})
	ids := make([]int64, len(sums))
	for i, s := range sums {
		ids[i] = s.SourceID
	}
	assert.Equal(t, []int64{4, -1, 7, -2}, ids)
	assert.Equal(t, "NETWORK_CHANGED", sums[1].Description)
	assert.True(t, sums[1].IsInactive)
}

func TestTracker_SourcelessEventsSortInArrivalOrder(t *testing.T) {
	tr := newTracker(Config{})
	tr.AddEvents([]*netlog.Event{
		ev(netlog.SourceNone, 0, netlog.TypeNetworkChanged, netlog.PhaseNone, 0, nil),
		ev(netlog.SourceNone, 0, netlog.TypeNetworkChanged, netlog.PhaseNone, 1, nil),
		ev(netlog.SourceURLRequest, 1, netlog.TypeRequestAlive, netlog.PhaseBegin, 2, nil),
	})

	sums := tr.Summaries(Filter{})
	require.Len(t, sums, 3)
	assert.Equal(t, int64(-1), sums[0].SourceID)
	assert.Equal(t, int64(-2), sums[1].SourceID)
	assert.Equal(t, int64(1), sums[2].SourceID)
}

func TestTracker_EvictsInactiveFirst(t *testing.T) {
	tr := newTracker(Config{MaxSources: 2})
	rec := &recorder{}
	tr.AddObserver(rec)

	tr.AddEvents([]*netlog.Event{
		ev(netlog.SourceURLRequest, 1, netlog.TypeRequestAlive, netlog.PhaseBegin, 0, nil),
		ev(netlog.SourceURLRequest, 2, netlog.TypeRequestAlive, netlog.PhaseBegin, 1, nil),
		ev(netlog.SourceURLRequest, 2, netlog.TypeRequestAlive, netlog.PhaseEnd, 2, nil),
	})
	assert.Empty(t, rec.deleted)

	tr.AddEvents([]*netlog.Event{
		ev(netlog.SourceURLRequest, 3, netlog.TypeRequestAlive, netlog.PhaseBegin, 3, nil),
	})
	require.Len(t, rec.deleted, 1)
	assert.Equal(t, []int64{2}, rec.deleted[0], "inactive source should be evicted before older active ones")

	tr.AddEvents([]*netlog.Event{
		ev(netlog.SourceURLRequest, 4, netlog.TypeRequestAlive, netlog.PhaseBegin, 4, nil),
	})
	require.Len(t, rec.deleted, 2)
	assert.Equal(t, []int64{1}, rec.deleted[1], "oldest active source goes when nothing is inactive")

	assert.Equal(t, 2, tr.Len())
	_, ok := tr.SourceEntry(1)
	assert.False(t, ok)
}

func TestTracker_DeleteSources(t *testing.T) {
	tr := newTracker(Config{})
	rec := &recorder{}
	tr.AddObserver(rec)

	tr.AddEvents([]*netlog.Event{
		ev(netlog.SourceURLRequest, 1, netlog.TypeRequestAlive, netlog.PhaseBegin, 0, nil),
		ev(netlog.SourceURLRequest, 2, netlog.TypeRequestAlive, netlog.PhaseBegin, 1, nil),
	})

	removed := tr.DeleteSources([]int64{2, 42})
	assert.Equal(t, []int64{2}, removed)
	assert.Equal(t, [][]int64{{2}}, rec.deleted)
	assert.Equal(t, 1, tr.Len())

	assert.Empty(t, tr.DeleteSources([]int64{42}))
	assert.Len(t, rec.deleted, 1, "no notification when nothing was removed")
}

func TestTracker_DeleteAll(t *testing.T) {
	tr := newTracker(Config{})
	rec := &recorder{}
	tr.AddObserver(rec)

	tr.AddEvents([]*netlog.Event{
		ev(netlog.SourceURLRequest, 8, netlog.TypeRequestAlive, netlog.PhaseBegin, 0, nil),
	})
	tr.DeleteAll()

	assert.Equal(t, 0, tr.Len())
	assert.Equal(t, 1, rec.deletedAll)

	tr.AddEvents([]*netlog.Event{
		ev(netlog.SourceURLRequest, 9, netlog.TypeRequestAlive, netlog.PhaseBegin, 1, nil),
	})
	e, ok := tr.SourceEntry(9)
	require.True(t, ok)
	assert.Equal(t, int64(8), e.MaxPreviousEntrySourceID())
}

func TestTracker_SummariesFilter(t *testing.T) {
	tr := newTracker(Config{})
	tr.AddEvents([]*netlog.Event{
		ev(netlog.SourceURLRequest, 1, netlog.TypeRequestAlive, netlog.PhaseBegin, 0, nil),
		ev(netlog.SourceURLRequest, 1, netlog.TypeURLRequestStartJob, netlog.PhaseBegin, 1, netlog.Params{"url": "https://Example.test/a"}),
		ev(netlog.SourceURLRequest, 2, netlog.TypeRequestAlive, netlog.PhaseBegin, 2, nil),
		ev(netlog.SourceURLRequest, 2, netlog.TypeURLRequestStartJob, netlog.PhaseBegin, 3, netlog.Params{"url": "https://other.test/"}),
		ev(netlog.SourceURLRequest, 2, netlog.TypeRequestAlive, netlog.PhaseEnd, 4, netlog.Params{"net_error": float64(-105)}),
		ev(netlog.SourceHostResolverRequest, 3, netlog.TypeHostResolverImplRequest, netlog.PhaseBegin, 5, netlog.Params{"host": "example.test"}),
	})

	active, errored := true, true

	tests := []struct {
		name   string
		filter Filter
		want   []int64
	}{
		{"all", Filter{}, []int64{1, 2, 3}},
		{"by type", Filter{SourceType: netlog.SourceURLRequest}, []int64{1, 2}},
		{"active", Filter{Active: &active}, []int64{1, 3}},
		{"errors", Filter{Error: &errored}, []int64{2}},
		{"search is case insensitive", Filter{Search: "example"}, []int64{1, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sums := tr.Summaries(tt.filter)
			got := make([]int64, len(sums))
			for i, s := range sums {
				got[i] = s.SourceID
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTracker_TextHonorsPrivacyStripping(t *testing.T) {
	tr := newTracker(Config{NumericDate: true})
	tr.AddEvents([]*netlog.Event{
		ev(netlog.SourceURLRequest, 1, netlog.TypeHTTPTransactionSendHeaders, netlog.PhaseNone, 0, netlog.Params{
			"headers": []any{"Cookie: secret=1", "Accept: */*"},
		}),
	})

	text, ok := tr.Text(1)
	require.True(t, ok)
	assert.Contains(t, text, "Cookie: secret=1")

	tr.SetPrivacyStripping(true)
	assert.True(t, tr.PrivacyStripping())

	text, ok = tr.Text(1)
	require.True(t, ok)
	assert.Contains(t, text, "Cookie: [value was stripped]")
	assert.Contains(t, text, "Accept: */*")
	assert.Contains(t, text, "t=0 [st=    0]")

	_, ok = tr.Text(99)
	assert.False(t, ok)
}

func TestTracker_EventsReturnsCopy(t *testing.T) {
	tr := newTracker(Config{})
	tr.AddEvents([]*netlog.Event{
		ev(netlog.SourceURLRequest, 1, netlog.TypeRequestAlive, netlog.PhaseBegin, 0, nil),
	})

	events, ok := tr.Events(1)
	require.True(t, ok)
	events[0] = nil

	again, _ := tr.Events(1)
	assert.NotNil(t, again[0])
}

func TestTracker_ResetForgetsIDs(t *testing.T) {
	tr := newTracker(Config{})
	rec := &recorder{}
	tr.AddObserver(rec)

	tr.AddEvents([]*netlog.Event{
		ev(netlog.SourceURLRequest, 9, netlog.TypeRequestAlive, netlog.PhaseBegin, 0, nil),
		ev(netlog.SourceNone, 0, netlog.TypeNetworkChanged, netlog.PhaseNone, 1, nil),
	})
	tr.Reset()

	assert.Equal(t, 0, tr.Len())
	assert.Zero(t, tr.MaxSourceID())
	assert.Equal(t, 1, rec.deletedAll)

	updated := tr.AddEvents([]*netlog.Event{
		ev(netlog.SourceNone, 0, netlog.TypeNetworkChanged, netlog.PhaseNone, 2, nil),
	})
	require.Len(t, updated, 1)
	assert.Equal(t, int64(-1), updated[0].SourceID())
	assert.Zero(t, updated[0].MaxPreviousEntrySourceID())
}

func TestTracker_ReserveSourcelessIDs(t *testing.T) {
	tr := newTracker(Config{})
	tr.ReserveSourcelessIDs(-5)
	// A higher floor never moves ids back up
	tr.ReserveSourcelessIDs(-2)

	updated := tr.AddEvents([]*netlog.Event{
		ev(netlog.SourceNone, 0, netlog.TypeNetworkChanged, netlog.PhaseNone, 0, nil),
	})
	require.Len(t, updated, 1)
	assert.Equal(t, int64(-6), updated[0].SourceID())
}

func TestTracker_RestoreKeepsStoredValues(t *testing.T) {
	tr := newTracker(Config{})
	rec := &recorder{}
	tr.AddObserver(rec)

	dep := netlog.Params{"source_dependency": map[string]any{"id": float64(10), "type": float64(4)}}
	tr.Restore([]RestoredSource{
		{
			// The resolver job that owned the socket finished before the restart
			Events: []*netlog.Event{
				ev(netlog.SourceUDPSocket, 11, netlog.TypeSocketAlive, netlog.PhaseBegin, 1, dep),
				ev(netlog.SourceUDPSocket, 11, netlog.TypeUDPConnect, netlog.PhaseNone, 2, netlog.Params{"address": "8.8.8.8:53"}),
			},
			MaxPreviousSourceID: 10,
			Description:         "8.8.8.8:53 [example.com]",
		},
		{
			Events: []*netlog.Event{
				ev(netlog.SourceNone, -3, netlog.TypeNetworkChanged, netlog.PhaseBegin, 3, nil),
			},
			MaxPreviousSourceID: 11,
			Description:         "NETWORK_CHANGED",
		},
		{MaxPreviousSourceID: 5},
	})

	assert.Empty(t, rec.updated, "restoring does not notify observers")
	assert.Equal(t, 2, tr.Len())
	assert.Equal(t, int64(11), tr.MaxSourceID())
	assert.Equal(t, "8.8.8.8:53 [example.com]", tr.Description(11))

	sourceless, ok := tr.Summary(-3)
	require.True(t, ok)
	assert.Equal(t, int64(11), sourceless.MaxPreviousSourceID)

	// New events keep the stored description and do not reuse restored ids
	updated := tr.AddEvents([]*netlog.Event{
		ev(netlog.SourceUDPSocket, 11, netlog.TypeSocketAlive, netlog.PhaseEnd, 4, nil),
		ev(netlog.SourceNone, 0, netlog.TypeNetworkChanged, netlog.PhaseNone, 5, nil),
	})
	require.Len(t, updated, 2)
	assert.Equal(t, "8.8.8.8:53 [example.com]", updated[0].Description())
	assert.True(t, updated[0].IsInactive())
	assert.Equal(t, int64(-4), updated[1].SourceID())
}

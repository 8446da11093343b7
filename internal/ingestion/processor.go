package ingestion

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"netlynx/internal/database/models"
	"netlynx/internal/database/repositories"
	"netlynx/internal/enrichment"
	"netlynx/internal/netlog"
	parsers "netlynx/internal/parser"
	"netlynx/internal/tracker"

	"github.com/fsnotify/fsnotify"
	"github.com/pterm/pterm"
)

var (
	// ErrProcessorStopped is returned when lines are submitted to a stopped processor
	ErrProcessorStopped = errors.New("capture processor stopped")

	errUnsupportedLine = errors.New("line not supported by parser")
)

// Store bundles the repositories a processor writes to
type Store struct {
	Captures repositories.CaptureRepository
	Sources  repositories.SourceRepository
	Events   repositories.EventRepository
}

// BatchStats summarizes one batch of parsed lines
type BatchStats struct {
	Lines    int
	Events   int
	Skipped  int
	Errors   int
	Duration time.Duration
}

// FlushStats summarizes one database write
type FlushStats struct {
	Sources  int
	Events   int
	Duration time.Duration
	Err      error
}

// MetricsSink receives processing statistics. Implementations must be
// safe for concurrent use.
type MetricsSink interface {
	ObserveBatch(capture string, stats BatchStats)
	ObserveFlush(capture string, stats FlushStats)
}

// ProcessorOptions tunes a capture processor
type ProcessorOptions struct {
	BatchSize      int
	WorkerPoolSize int
	PollInterval   time.Duration
	BatchTimeout   time.Duration
	Watch          bool // wake up on file notifications in addition to polling
	Tracker        tracker.Config
}

func (o *ProcessorOptions) applyDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 1000
	}
	if o.WorkerPoolSize <= 0 {
		o.WorkerPoolSize = 4
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = 2 * time.Second
	}
}

// ProcessorStats is a snapshot of a processor's progress
type ProcessorStats struct {
	Capture        string  `json:"capture"`
	Live           bool    `json:"live"`
	Path           string  `json:"path,omitempty"`
	Position       int64   `json:"position"`
	Sources        int     `json:"sources"`
	TotalProcessed int64   `json:"total_processed"`
	TotalErrors    int64   `json:"total_errors"`
	RatePerSec     float64 `json:"rate_per_sec"`
}

// CaptureProcessor ingests one capture: it reads lines from the capture
// file, or takes them from a live connection, parses them, feeds the
// capture's tracker and persists what the tracker classified.
type CaptureProcessor struct {
	capture  *models.Capture
	parser   parsers.LogParser
	reader   *IncrementalReader // nil unless the capture is a file
	incoming chan []string
	clock    *netlog.AdjustableClock
	tracker  *tracker.Tracker
	recorder *recorder
	store    Store
	geoIP    *enrichment.GeoIPEnricher
	metrics  MetricsSink
	logger   *pterm.Logger
	opts     ProcessorOptions
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	flushMu  sync.Mutex // serializes database writes and explicit deletes
	// Statistics
	totalProcessed int64
	totalErrors    int64
	startTime      time.Time
	statsMu        sync.Mutex
	// Last read position, saved after each flush
	posMu         sync.Mutex
	lastReadPos   int64
	lastReadInode int64
	lastReadLine  string
	lastSavedPos  int64
	// First-load tracking
	isInitialLoad       bool
	initialLoadComplete bool
}

// NewCaptureProcessor creates a processor and rebuilds the tracker from
// what an earlier run persisted. A failed restore is logged and the
// processor starts empty.
func NewCaptureProcessor(
	capture *models.Capture,
	parser parsers.LogParser,
	store Store,
	geoIP *enrichment.GeoIPEnricher,
	metrics MetricsSink,
	logger *pterm.Logger,
	opts ProcessorOptions,
) *CaptureProcessor {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	clock := netlog.NewAdjustableClock(capture.TimeTickOffset)
	cp := &CaptureProcessor{
		capture:       capture,
		parser:        parser,
		incoming:      make(chan []string, 16),
		clock:         clock,
		tracker:       tracker.New(opts.Tracker, clock, logger),
		recorder:      newRecorder(capture.Name, clock),
		store:         store,
		geoIP:         geoIP,
		metrics:       metrics,
		logger:        logger,
		opts:          opts,
		ctx:           ctx,
		cancel:        cancel,
		startTime:     time.Now(),
		lastReadPos:   capture.LastPosition,
		lastReadInode: capture.LastInode,
		lastReadLine:  capture.LastLineContent,
		lastSavedPos:  capture.LastPosition,
		isInitialLoad: capture.LastPosition == 0,
	}

	if capture.Path != "" && !capture.Live {
		cp.reader = NewIncrementalReader(
			capture.Path,
			capture.LastPosition,
			capture.LastInode,
			capture.LastLineContent,
			logger,
		)
	}

	if sp, ok := parser.(parsers.StatefulParser); ok && capture.Constants != "" {
		if err := sp.Restore([]byte(capture.Constants)); err != nil {
			logger.Warn("Failed to restore parser state, waiting for a new header",
				logger.Args("capture", capture.Name, "error", err))
		}
	}

	if err := cp.restoreSources(); err != nil {
		logger.Warn("Failed to restore active sources, starting empty",
			logger.Args("capture", capture.Name, "error", err))
		cp.tracker.Reset()
		cp.recorder = newRecorder(capture.Name, clock)
	}
	cp.tracker.AddObserver(cp.recorder)

	return cp
}

// restoreSources replays the stored events of sources that were still
// active, so that their END events close them when they arrive.
func (cp *CaptureProcessor) restoreSources() error {
	if cp.store.Sources == nil || cp.store.Events == nil {
		return nil
	}
	name := cp.capture.Name

	lowest, _, err := cp.store.Sources.IDRange(name)
	if err != nil {
		return err
	}
	cp.tracker.ReserveSourcelessIDs(lowest)

	active := true
	records, _, err := cp.store.Sources.Find(repositories.SourceFilter{
		CaptureName: name,
		Active:      &active,
		Limit:       cp.opts.Tracker.MaxSources,
	})
	if err != nil || len(records) == 0 {
		return err
	}

	ids := make([]int64, len(records))
	types := make(map[int64]netlog.SourceType, len(records))
	for i, r := range records {
		ids[i] = r.SourceID
		types[r.SourceID] = netlog.SourceType(r.SourceType)
	}

	rows, err := cp.store.Events.FindBySources(name, ids)
	if err != nil {
		return err
	}

	grouped := make(map[int64][]*netlog.Event, len(records))
	for _, row := range rows {
		e, err := eventFromRecord(row, types[row.SourceID])
		if err != nil {
			return err
		}
		grouped[row.SourceID] = append(grouped[row.SourceID], e)
	}

	// The stored ordering id and description win over replayed ones: the
	// sources they were derived from may be gone.
	restored := make([]tracker.RestoredSource, 0, len(records))
	events := 0
	for _, r := range records {
		evs := grouped[r.SourceID]
		if len(evs) == 0 {
			continue
		}
		restored = append(restored, tracker.RestoredSource{
			Events:              evs,
			MaxPreviousSourceID: r.MaxPreviousSourceID,
			Description:         r.Description,
		})
		events += len(evs)
	}

	cp.tracker.Restore(restored)
	for _, r := range restored {
		cp.recorder.seed(r.Events[0].Source.ID, len(r.Events))
	}

	cp.logger.Info("Restored active sources",
		cp.logger.Args("capture", name, "sources", len(restored), "events", events))
	return nil
}

// Name returns the capture name
func (cp *CaptureProcessor) Name() string {
	return cp.capture.Name
}

// Capture returns the capture being processed
func (cp *CaptureProcessor) Capture() *models.Capture {
	return cp.capture
}

// Clock returns the clock the capture's ticks are converted with
func (cp *CaptureProcessor) Clock() netlog.Clock {
	return cp.clock
}

// Tracker returns the capture's tracker
func (cp *CaptureProcessor) Tracker() *tracker.Tracker {
	return cp.tracker
}

// Start begins processing the capture
func (cp *CaptureProcessor) Start() {
	cp.wg.Add(1)
	go cp.processLoop()
	cp.logger.Info("Started capture processor",
		cp.logger.Args("capture", cp.capture.Name, "path", cp.capture.Path, "live", cp.reader == nil))
}

// Stop gracefully stops the processor, flushing what is pending
func (cp *CaptureProcessor) Stop() {
	cp.logger.Debug("Stopping capture processor", cp.logger.Args("capture", cp.capture.Name))
	cp.cancel()
	cp.wg.Wait()
	cp.logger.Info("Stopped capture processor", cp.logger.Args("capture", cp.capture.Name))
}

// Submit queues lines received from a live connection
func (cp *CaptureProcessor) Submit(lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	select {
	case <-cp.ctx.Done():
		return ErrProcessorStopped
	default:
	}
	select {
	case cp.incoming <- lines:
		return nil
	case <-cp.ctx.Done():
		return ErrProcessorStopped
	}
}

// processLoop is the main processing loop
func (cp *CaptureProcessor) processLoop() {
	defer cp.wg.Done()

	var poll <-chan time.Time
	if cp.reader != nil {
		ticker := time.NewTicker(cp.opts.PollInterval)
		defer ticker.Stop()
		poll = ticker.C
	}
	wake := cp.watch()

	flushTimer := time.NewTimer(cp.opts.BatchTimeout)
	defer flushTimer.Stop()

	for {
		select {
		case <-cp.ctx.Done():
			// Take whatever is already queued before the final flush
		drain:
			for {
				select {
				case lines := <-cp.incoming:
					cp.processLines(lines)
				default:
					break drain
				}
			}
			cp.flush()
			return

		case <-flushTimer.C:
			cp.flush()
			flushTimer.Reset(cp.opts.BatchTimeout)

		case <-poll:
			cp.readFile()

		case <-wake:
			cp.readFile()

		case lines := <-cp.incoming:
			cp.processLines(lines)
		}

		if cp.recorder.pending() >= cp.opts.BatchSize {
			cp.logger.Trace("Batch full, flushing",
				cp.logger.Args("capture", cp.capture.Name, "count", cp.recorder.pending()))
			cp.flush()
			flushTimer.Reset(cp.opts.BatchTimeout)
		}
	}
}

// watch returns a channel that fires when the capture file changes, or
// nil when notifications are off or unavailable. The directory is
// watched so that a deleted and recreated file is still seen.
func (cp *CaptureProcessor) watch() <-chan struct{} {
	if cp.reader == nil || !cp.opts.Watch {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		cp.logger.Warn("File notifications unavailable, polling only",
			cp.logger.Args("capture", cp.capture.Name, "error", err))
		return nil
	}
	if err := w.Add(filepath.Dir(cp.capture.Path)); err != nil {
		cp.logger.Warn("Failed to watch capture directory, polling only",
			cp.logger.Args("capture", cp.capture.Name, "error", err))
		w.Close()
		return nil
	}

	target := filepath.Clean(cp.capture.Path)
	wake := make(chan struct{}, 1)

	cp.wg.Add(1)
	go func() {
		defer cp.wg.Done()
		defer w.Close()
		for {
			select {
			case <-cp.ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				cp.logger.Debug("File watcher error", cp.logger.Args("capture", cp.capture.Name, "error", err))
			}
		}
	}()

	return wake
}

// readFile consumes everything available in the capture file, a batch
// at a time
func (cp *CaptureProcessor) readFile() {
	for cp.ctx.Err() == nil {
		lines, newPos, newInode, newLastLine, err := cp.reader.ReadBatch(cp.opts.BatchSize)
		if err != nil {
			cp.logger.WithCaller().Error("Failed to read from capture file",
				cp.logger.Args("capture", cp.capture.Name, "error", err))
			return
		}

		if len(lines) > 0 {
			cp.logger.Trace("Read new capture lines",
				cp.logger.Args("capture", cp.capture.Name, "count", len(lines)))
			cp.processLines(lines)
		}

		// Lines are in the tracker now; the saved position follows at the
		// next flush
		cp.reader.UpdatePosition(newPos, newInode, newLastLine)
		cp.posMu.Lock()
		cp.lastReadPos, cp.lastReadInode, cp.lastReadLine = newPos, newInode, newLastLine
		cp.posMu.Unlock()

		if cp.recorder.pending() >= cp.opts.BatchSize {
			cp.flush()
		}

		if len(lines) < cp.opts.BatchSize {
			if len(lines) == 0 && cp.isInitialLoad && !cp.initialLoadComplete {
				cp.initialLoadComplete = true
				cp.flush()
				cp.logger.Info("Initial capture load completed - reached end of file",
					cp.logger.Args("capture", cp.capture.Name, "sources", cp.tracker.Len()))
			}
			return
		}
	}
}

type parseResult struct {
	event *netlog.Event
	err   error
}

// processLines parses lines in order and applies the events to the
// tracker. A header splits the batch: the lines before it belong to the
// previous session and are applied first, then the session starts over.
func (cp *CaptureProcessor) processLines(lines []string) {
	if len(lines) == 0 {
		return
	}
	start := time.Now()
	stats := BatchStats{Lines: len(lines)}

	from := 0
	for i, line := range lines {
		if !cp.isHeader(line) {
			continue
		}
		cp.applyLines(lines[from:i], &stats)
		from = i + 1

		// Parsed alone: it replaces the constants the other lines use
		if _, err := cp.parseLine(line); errors.Is(err, parsers.ErrSkipLine) {
			stats.Skipped++
			cp.startSession()
		} else {
			stats.Errors++
			cp.logger.Warn("Failed to parse capture header",
				cp.logger.Args("capture", cp.capture.Name, "error", err, "line_preview", truncate(line, 100)))
		}
	}
	cp.applyLines(lines[from:], &stats)

	stats.Duration = time.Since(start)

	cp.statsMu.Lock()
	cp.totalProcessed += int64(stats.Events)
	cp.totalErrors += int64(stats.Errors)
	cp.statsMu.Unlock()

	if cp.metrics != nil {
		cp.metrics.ObserveBatch(cp.capture.Name, stats)
	}
}

func (cp *CaptureProcessor) isHeader(line string) bool {
	sp, ok := cp.parser.(parsers.SessionParser)
	return ok && sp.IsHeader(line)
}

// applyLines parses header-free lines with the worker pool and feeds the
// events to the tracker in line order
func (cp *CaptureProcessor) applyLines(lines []string, stats *BatchStats) {
	if len(lines) == 0 {
		return
	}
	results := make([]parseResult, len(lines))
	cp.parseParallel(lines, results)

	events := make([]*netlog.Event, 0, len(lines))
	for i, r := range results {
		switch {
		case r.err == nil:
			events = append(events, r.event)
		case errors.Is(r.err, parsers.ErrSkipLine), errors.Is(r.err, errUnsupportedLine):
			stats.Skipped++
		default:
			stats.Errors++
			cp.logger.Warn("Failed to parse capture line",
				cp.logger.Args("capture", cp.capture.Name, "error", r.err, "line_preview", truncate(lines[i], 100)))
		}
	}

	cp.tracker.AddEvents(events)
	stats.Events += len(events)
}

func (cp *CaptureProcessor) parseLine(line string) (*netlog.Event, error) {
	if !cp.parser.CanParse(line) {
		cp.logger.Trace("Skipping line not supported by parser",
			cp.logger.Args("capture", cp.capture.Name, "parser", cp.parser.Name()))
		return nil, errUnsupportedLine
	}
	return cp.parser.Parse(line)
}

// parseParallel parses lines with the worker pool, keeping each result at
// its line's index
func (cp *CaptureProcessor) parseParallel(lines []string, results []parseResult) {
	if len(lines) == 0 {
		return
	}

	numWorkers := min(cp.opts.WorkerPoolSize, len(lines))
	jobs := make(chan int, len(lines))

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i].event, results[i].err = cp.parseLine(lines[i])
			}
		}()
	}

	for i := range lines {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

// startSession handles a header: the sources of an earlier session are
// dropped and the parser's new state is saved with the capture.
func (cp *CaptureProcessor) startSession() {
	name := cp.capture.Name

	if cp.tracker.MaxSourceID() != 0 || cp.tracker.Len() > 0 {
		cp.logger.Info("New NetLog session, discarding sources of the previous one",
			cp.logger.Args("capture", name, "sources", cp.tracker.Len()))
	}
	cp.flushMu.Lock()
	cp.tracker.Reset()
	cp.recorder.discardAll()
	if cp.store.Sources != nil {
		if _, err := cp.store.Sources.DeleteByCapture(name); err != nil {
			cp.logger.WithCaller().Error("Failed to delete sources of previous session",
				cp.logger.Args("capture", name, "error", err))
		}
	}
	cp.flushMu.Unlock()

	if p, ok := cp.parser.(parsers.ClockedParser); ok {
		if offset, ok := p.TimeTickOffset(); ok {
			cp.clock.SetOffset(offset)
		}
	}

	sp, ok := cp.parser.(parsers.StatefulParser)
	if !ok || cp.store.Captures == nil {
		return
	}
	state, err := sp.State()
	if err != nil {
		cp.logger.WithCaller().Error("Failed to serialize parser state",
			cp.logger.Args("capture", name, "error", err))
		return
	}
	if err := cp.store.Captures.UpdateConstants(name, string(state), cp.clock.Offset()); err != nil {
		cp.logger.WithCaller().Error("Failed to save capture constants",
			cp.logger.Args("capture", name, "error", err))
		return
	}
	cp.capture.Constants = string(state)
	cp.capture.TimeTickOffset = cp.clock.Offset()
}

// flush writes what the tracker produced since the previous flush, then
// saves the read position
func (cp *CaptureProcessor) flush() {
	cp.flushMu.Lock()
	defer cp.flushMu.Unlock()

	sources, events := cp.recorder.drain()
	if len(sources) > 0 || len(events) > 0 {
		cp.writeBatch(sources, events)
	}
	cp.saveTracking()
}

// writeBatch inserts the batch into the database
func (cp *CaptureProcessor) writeBatch(sources []*models.SourceRecord, events []*models.EventRecord) {
	if cp.store.Sources == nil || cp.store.Events == nil {
		return
	}
	startTime := time.Now()
	stats := FlushStats{Sources: len(sources), Events: len(events)}

	err := cp.store.Sources.UpsertBatch(sources)
	if err == nil {
		err = cp.store.Events.CreateBatch(events)
	}
	stats.Duration = time.Since(startTime)
	stats.Err = err
	if cp.metrics != nil {
		cp.metrics.ObserveFlush(cp.capture.Name, stats)
	}

	if err != nil {
		cp.logger.WithCaller().Error("Failed to write batch into database",
			cp.logger.Args(
				"capture", cp.capture.Name,
				"sources", len(sources),
				"events", len(events),
				"error", err,
			))
		return
	}

	cp.enrich(sources)

	cp.statsMu.Lock()
	totalProcessed := cp.totalProcessed
	cp.statsMu.Unlock()

	elapsed := time.Since(cp.startTime)
	rate := float64(totalProcessed) / elapsed.Seconds()

	cp.logger.Debug("Batch written successfully",
		cp.logger.Args(
			"capture", cp.capture.Name,
			"sources", len(sources),
			"events", len(events),
			"batch_duration_ms", stats.Duration.Milliseconds(),
			"total_processed", totalProcessed,
			"rate_per_sec", int(rate),
			"elapsed", elapsed.Round(time.Second).String(),
		))
}

// enrich adds geo data to written sources described by an IP address
func (cp *CaptureProcessor) enrich(sources []*models.SourceRecord) {
	if !cp.geoIP.IsEnabled() {
		return
	}

	descriptions := []string{}
	seen := map[string]bool{}
	for _, s := range sources {
		if seen[s.Description] || enrichment.HostIP(s.Description) == nil {
			continue
		}
		seen[s.Description] = true
		descriptions = append(descriptions, s.Description)
	}
	if len(descriptions) == 0 {
		return
	}

	records, err := cp.store.Sources.FindByDescriptions(descriptions)
	if err != nil {
		cp.logger.Debug("GeoIP candidate lookup failed",
			cp.logger.Args("capture", cp.capture.Name, "error", err))
		return
	}
	for _, r := range records {
		if !cp.geoIP.Enrich(r) {
			continue
		}
		if err := cp.store.Sources.UpdateGeo(r); err != nil {
			cp.logger.Debug("GeoIP enrichment failed",
				cp.logger.Args("description", r.Description, "error", err))
		}
	}
}

// saveTracking stores the read position once the lines before it are
// persisted. Caller must hold flushMu.
func (cp *CaptureProcessor) saveTracking() {
	if cp.reader == nil || cp.store.Captures == nil {
		return
	}

	cp.posMu.Lock()
	pos, inode, line := cp.lastReadPos, cp.lastReadInode, cp.lastReadLine
	changed := pos != cp.lastSavedPos
	cp.posMu.Unlock()
	if !changed {
		return
	}

	if err := cp.store.Captures.UpdateTracking(cp.capture.Name, pos, inode, line); err != nil {
		cp.logger.WithCaller().Error("Failed to update capture tracking",
			cp.logger.Args("capture", cp.capture.Name, "error", err))
		return
	}

	cp.posMu.Lock()
	cp.lastSavedPos = pos
	cp.posMu.Unlock()
	cp.logger.Trace("Updated capture tracking",
		cp.logger.Args("capture", cp.capture.Name, "position", pos, "inode", inode))
}

// DeleteSources removes sources from the tracker and the database and
// returns the ids the tracker still held
func (cp *CaptureProcessor) DeleteSources(ids []int64) ([]int64, error) {
	cp.flushMu.Lock()
	defer cp.flushMu.Unlock()

	removed := cp.tracker.DeleteSources(ids)
	cp.recorder.discard(ids)
	if cp.store.Sources == nil {
		return removed, nil
	}
	_, err := cp.store.Sources.DeleteByIDs(cp.capture.Name, ids)
	return removed, err
}

// DeleteAll removes every source of the capture
func (cp *CaptureProcessor) DeleteAll() error {
	cp.flushMu.Lock()
	defer cp.flushMu.Unlock()

	cp.tracker.DeleteAll()
	cp.recorder.discardAll()
	if cp.store.Sources == nil {
		return nil
	}
	_, err := cp.store.Sources.DeleteByCapture(cp.capture.Name)
	return err
}

// Text renders the text log of a source. Sources no longer tracked are
// rebuilt from their stored events.
func (cp *CaptureProcessor) Text(id int64) (string, bool, error) {
	if text, ok := cp.tracker.Text(id); ok {
		return text, true, nil
	}
	if cp.store.Sources == nil || cp.store.Events == nil {
		return "", false, nil
	}

	record, err := cp.store.Sources.FindByID(cp.capture.Name, id)
	if err != nil {
		return "", false, nil
	}
	rows, err := cp.store.Events.FindBySource(cp.capture.Name, id)
	if err != nil {
		return "", false, err
	}
	if len(rows) == 0 {
		return "", false, nil
	}

	events := make([]*netlog.Event, 0, len(rows))
	for _, row := range rows {
		e, err := eventFromRecord(row, netlog.SourceType(record.SourceType))
		if err != nil {
			return "", false, err
		}
		events = append(events, e)
	}

	var sb strings.Builder
	renderer := netlog.NewTextWriter(cp.clock)
	if err := renderer.Render(&sb, events, cp.tracker.TextOptions()); err != nil {
		return "", false, err
	}
	return sb.String(), true, nil
}

// Stats returns a snapshot of the processor's progress
func (cp *CaptureProcessor) Stats() ProcessorStats {
	cp.statsMu.Lock()
	processed, errs := cp.totalProcessed, cp.totalErrors
	cp.statsMu.Unlock()

	cp.posMu.Lock()
	pos := cp.lastReadPos
	cp.posMu.Unlock()

	stats := ProcessorStats{
		Capture:        cp.capture.Name,
		Live:           cp.reader == nil,
		Path:           cp.capture.Path,
		Position:       pos,
		Sources:        cp.tracker.Len(),
		TotalProcessed: processed,
		TotalErrors:    errs,
	}
	if elapsed := time.Since(cp.startTime).Seconds(); elapsed > 0 {
		stats.RatePerSec = float64(processed) / elapsed
	}
	return stats
}

// truncate truncates a string to maxLen characters for logging
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

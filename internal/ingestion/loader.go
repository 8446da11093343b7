package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"netlynx/internal/database/models"
	"netlynx/internal/netlog"
	"netlynx/internal/parser/chrome"
	"netlynx/internal/tracker"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

// LoadResult is a capture loaded from a complete export
type LoadResult struct {
	Capture  *models.Capture
	Export   *chrome.Export
	Tracker  *tracker.Tracker
	Events   int
	Skipped  int
	Duration time.Duration
}

// Loader reads finished NetLog exports in one go, as opposed to the
// processors that tail captures still being written
type Loader struct {
	store     *Store // nil to load without persisting
	trackerCf tracker.Config
	batchSize int
	logger    *pterm.Logger
}

// NewLoader creates a loader. store may be nil.
func NewLoader(store *Store, trackerCfg tracker.Config, batchSize int, logger *pterm.Logger) *Loader {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Loader{
		store:     store,
		trackerCf: trackerCfg,
		batchSize: batchSize,
		logger:    logger,
	}
}

// LoadFile loads the export at path under the given capture name
func (l *Loader) LoadFile(path, name string) (*LoadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()
	return l.Load(f, name)
}

// Load decodes an export and classifies its events. With a store, the
// capture replaces any earlier capture of the same name.
func (l *Loader) Load(r io.Reader, name string) (*LoadResult, error) {
	start := time.Now()

	export, err := chrome.DecodeExport(r)
	if err != nil {
		return nil, err
	}

	clock := export.Clock()
	result := &LoadResult{
		Export:  export,
		Tracker: tracker.New(l.trackerCf, clock, l.logger),
		Skipped: export.Skipped,
	}

	var rec *recorder
	if l.store != nil {
		capture, err := l.replaceCapture(name, export)
		if err != nil {
			return nil, err
		}
		result.Capture = capture
		rec = newRecorder(name, clock)
		result.Tracker.AddObserver(rec)
	}

	for i := 0; i < len(export.Events); i += l.batchSize {
		end := min(i+l.batchSize, len(export.Events))
		result.Tracker.AddEvents(export.Events[i:end])
		result.Events += end - i

		if rec != nil {
			if err := l.write(rec); err != nil {
				return nil, err
			}
		}
	}

	result.Duration = time.Since(start)
	l.logger.Info("Loaded NetLog export",
		l.logger.Args(
			"capture", name,
			"events", result.Events,
			"sources", result.Tracker.Len(),
			"skipped", result.Skipped,
			"duration", result.Duration.Round(time.Millisecond),
		))
	return result, nil
}

func (l *Loader) replaceCapture(name string, export *chrome.Export) (*models.Capture, error) {
	existing, err := l.store.Captures.FindByName(name)
	switch {
	case err == nil:
		l.logger.Info("Replacing existing capture", l.logger.Args("capture", existing.Name))
		if err := l.store.Captures.Delete(name); err != nil {
			return nil, fmt.Errorf("failed to delete existing capture: %w", err)
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	constants, err := json.Marshal(export.Constants)
	if err != nil {
		return nil, err
	}

	polled, err := json.Marshal(export.PolledData)
	if err != nil {
		return nil, err
	}

	capture := &models.Capture{
		Name:           name,
		CaptureID:      uuid.NewString(),
		ParserType:     chrome.ParserType,
		TimeTickOffset: int64(export.Constants.TimeTickOffset),
		Constants:      string(constants),
		PolledData:     string(polled),
	}
	if err := l.store.Captures.Create(capture); err != nil {
		return nil, fmt.Errorf("failed to create capture: %w", err)
	}
	return capture, nil
}

func (l *Loader) write(rec *recorder) error {
	sources, events := rec.drain()
	if err := l.store.Sources.UpsertBatch(sources); err != nil {
		return fmt.Errorf("failed to write sources: %w", err)
	}
	if err := l.store.Events.CreateBatch(events); err != nil {
		return fmt.Errorf("failed to write events: %w", err)
	}
	return nil
}

// Summaries is a convenience for callers printing a loaded capture
func (r *LoadResult) Summaries(f tracker.Filter) []tracker.Summary {
	return r.Tracker.Summaries(f)
}

// Clock returns the clock the capture's ticks are converted with
func (r *LoadResult) Clock() netlog.Clock {
	return r.Export.Clock()
}

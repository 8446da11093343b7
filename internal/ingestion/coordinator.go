package ingestion

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"netlynx/internal/database/models"
	"netlynx/internal/enrichment"
	parsers "netlynx/internal/parser"
	"netlynx/internal/parser/chrome"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

// ErrCaptureExists is returned when creating a capture whose name is taken
var ErrCaptureExists = errors.New("capture already exists")

// ProcessorHook is called for every processor the coordinator creates,
// before it starts
type ProcessorHook func(p *CaptureProcessor)

// Coordinator manages one processor per capture
type Coordinator struct {
	store      Store
	parserReg  *parsers.Registry
	geoIP      *enrichment.GeoIPEnricher
	metrics    MetricsSink
	processors map[string]*CaptureProcessor
	hooks      []ProcessorHook
	logger     *pterm.Logger
	opts       ProcessorOptions
	mu         sync.RWMutex
	isRunning  bool
}

// NewCoordinator creates a new ingestion coordinator
func NewCoordinator(
	store Store,
	parserReg *parsers.Registry,
	geoIP *enrichment.GeoIPEnricher,
	metrics MetricsSink,
	logger *pterm.Logger,
	opts ProcessorOptions,
) *Coordinator {
	return &Coordinator{
		store:      store,
		parserReg:  parserReg,
		geoIP:      geoIP,
		metrics:    metrics,
		processors: make(map[string]*CaptureProcessor),
		logger:     logger,
		opts:       opts,
		isRunning:  false,
	}
}

// OnProcessor registers a hook for processors created from now on
func (c *Coordinator) OnProcessor(h ProcessorHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, h)
}

// Start initializes and starts a processor for every capture
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isRunning {
		c.logger.Warn("Coordinator already running, skipping start")
		return nil
	}

	c.logger.Info("Starting ingestion coordinator...")

	captures, err := c.store.Captures.FindAll()
	if err != nil {
		c.logger.WithCaller().Error("Failed to load captures from database",
			c.logger.Args("error", err))
		return fmt.Errorf("failed to load captures: %w", err)
	}

	if len(captures) == 0 {
		c.logger.Warn("No captures found in database. Point NETLOG_PATH or NETLOG_DIR at a capture, or open a live capture.")
		c.logger.Info("Ingestion coordinator will run in standby mode, waiting for captures to be added.")
		c.isRunning = true
		return nil
	}

	c.logger.Info("Found captures", c.logger.Args("count", len(captures)))

	successCount := 0
	for _, capture := range captures {
		if err := c.startProcessorLocked(capture); err != nil {
			c.logger.WithCaller().Warn("Failed to start processor for capture (will retry)",
				c.logger.Args("capture", capture.Name, "error", err))
			continue
		}
		successCount++
	}

	if successCount == 0 {
		c.logger.Warn("No capture processors could be started yet. Coordinator will run in standby mode.")
	}

	c.isRunning = true
	c.logger.Info("Ingestion coordinator started",
		c.logger.Args("active_processors", successCount, "total_captures", len(captures)))

	return nil
}

// startProcessorLocked creates and starts a processor for a single capture
// IMPORTANT: Caller must hold c.mu lock
func (c *Coordinator) startProcessorLocked(capture *models.Capture) error {
	if _, exists := c.processors[capture.Name]; exists {
		c.logger.Debug("Processor already exists for capture, skipping", c.logger.Args("capture", capture.Name))
		return nil
	}

	parser, err := c.parserReg.Get(capture.ParserType)
	if err != nil {
		c.logger.WithCaller().Warn("Parser not found for capture",
			c.logger.Args("capture", capture.Name, "parser_type", capture.ParserType, "error", err))
		return fmt.Errorf("parser not found: %w", err)
	}

	c.logger.Debug("Creating processor for capture",
		c.logger.Args(
			"capture", capture.Name,
			"parser", capture.ParserType,
			"path", capture.Path,
			"live", capture.Live,
		))

	processor := NewCaptureProcessor(capture, parser, c.store, c.geoIP, c.metrics, c.logger, c.opts)
	for _, h := range c.hooks {
		h(processor)
	}
	processor.Start()

	c.processors[capture.Name] = processor

	c.logger.Info("Started processor for capture",
		c.logger.Args(
			"capture", capture.Name,
			"path", capture.Path,
			"last_position", capture.LastPosition,
		))

	return nil
}

// Stop gracefully stops all capture processors
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isRunning {
		c.logger.Debug("Coordinator not running, skipping stop")
		return
	}

	c.logger.Info("Stopping ingestion coordinator...",
		c.logger.Args("active_processors", len(c.processors)))

	var wg sync.WaitGroup
	for name, processor := range c.processors {
		wg.Add(1)
		go func(captureName string, proc *CaptureProcessor) {
			defer wg.Done()
			c.logger.Debug("Stopping processor", c.logger.Args("capture", captureName))
			proc.Stop()
		}(name, processor)
	}
	wg.Wait()

	c.processors = make(map[string]*CaptureProcessor)
	c.isRunning = false

	c.logger.Info("Ingestion coordinator stopped successfully")
}

// GetStatus returns the current status of the coordinator
func (c *Coordinator) GetStatus() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]interface{}{
		"is_running":        c.isRunning,
		"active_processors": len(c.processors),
	}
}

// IsRunning returns whether the coordinator is currently running
func (c *Coordinator) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isRunning
}

// GetProcessorCount returns the number of active processors
func (c *Coordinator) GetProcessorCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.processors)
}

// Processor returns the processor of a capture
func (c *Coordinator) Processor(name string) (*CaptureProcessor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.processors[name]
	return p, ok
}

// Stats returns the progress of every processor, ordered by capture name
func (c *Coordinator) Stats() []ProcessorStats {
	c.mu.RLock()
	procs := make([]*CaptureProcessor, 0, len(c.processors))
	for _, p := range c.processors {
		procs = append(procs, p)
	}
	c.mu.RUnlock()

	stats := make([]ProcessorStats, len(procs))
	for i, p := range procs {
		stats[i] = p.Stats()
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Capture < stats[j].Capture })
	return stats
}

// Restart stops and restarts the coordinator
func (c *Coordinator) Restart() error {
	c.logger.Info("Restarting ingestion coordinator...")
	c.Stop()
	return c.Start()
}

// AddProcessor dynamically adds a processor for a new capture
// This allows adding captures without stopping existing processors
func (c *Coordinator) AddProcessor(capture *models.Capture) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isRunning {
		return fmt.Errorf("coordinator is not running")
	}

	c.logger.Info("Adding new processor dynamically", c.logger.Args("capture", capture.Name))

	if err := c.startProcessorLocked(capture); err != nil {
		c.logger.WithCaller().Error("Failed to add processor",
			c.logger.Args("capture", capture.Name, "error", err))
		return fmt.Errorf("failed to add processor: %w", err)
	}

	c.logger.Info("Successfully added new processor",
		c.logger.Args("capture", capture.Name, "total_processors", len(c.processors)))

	return nil
}

// RemoveProcessor gracefully stops and removes the processor of a capture
func (c *Coordinator) RemoveProcessor(captureName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isRunning {
		return fmt.Errorf("coordinator is not running")
	}

	processor, exists := c.processors[captureName]
	if !exists {
		c.logger.Debug("Processor not found, nothing to remove", c.logger.Args("capture", captureName))
		return nil
	}

	c.logger.Info("Removing processor", c.logger.Args("capture", captureName))
	processor.Stop()
	delete(c.processors, captureName)

	c.logger.Info("Successfully removed processor",
		c.logger.Args("capture", captureName, "remaining_processors", len(c.processors)))

	return nil
}

// CreateLiveCapture registers a capture fed over a live connection and
// starts its processor
func (c *Coordinator) CreateLiveCapture(name string) (*models.Capture, error) {
	if name == "" {
		name = "live-" + uuid.NewString()[:8]
	}

	if _, err := c.store.Captures.FindByName(name); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrCaptureExists, name)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	capture := &models.Capture{
		Name:       name,
		CaptureID:  uuid.NewString(),
		ParserType: chrome.ParserType,
		Live:       true,
	}
	if err := c.store.Captures.Create(capture); err != nil {
		return nil, fmt.Errorf("failed to create capture: %w", err)
	}

	if err := c.AddProcessor(capture); err != nil {
		return nil, err
	}
	return capture, nil
}

// DeleteCapture stops the processor of a capture and removes the capture
// with everything stored for it
func (c *Coordinator) DeleteCapture(name string) error {
	if err := c.RemoveProcessor(name); err != nil {
		return err
	}
	return c.store.Captures.Delete(name)
}

// SyncWithDatabase reconciles active processors with the captures table
// Adds processors for new captures and removes processors for deleted ones
func (c *Coordinator) SyncWithDatabase() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isRunning {
		c.logger.Debug("Coordinator not running, skipping database sync")
		return nil
	}

	c.logger.Debug("Syncing processors with database...")

	captures, err := c.store.Captures.FindAll()
	if err != nil {
		c.logger.WithCaller().Error("Failed to load captures during sync",
			c.logger.Args("error", err))
		return fmt.Errorf("failed to load captures: %w", err)
	}

	dbCaptures := make(map[string]*models.Capture)
	for _, capture := range captures {
		dbCaptures[capture.Name] = capture
	}

	// Phase 1: Remove processors for captures that no longer exist in DB
	for name, processor := range c.processors {
		if _, exists := dbCaptures[name]; !exists {
			c.logger.Info("Capture removed from database, stopping processor",
				c.logger.Args("capture", name))
			processor.Stop()
			delete(c.processors, name)
		}
	}

	// Phase 2: Add processors for new captures in DB
	addedCount := 0
	for _, capture := range captures {
		if _, exists := c.processors[capture.Name]; !exists {
			c.logger.Info("New capture found in database, starting processor",
				c.logger.Args("capture", capture.Name))

			if err := c.startProcessorLocked(capture); err != nil {
				c.logger.WithCaller().Warn("Failed to start processor for new capture",
					c.logger.Args("capture", capture.Name, "error", err))
				continue
			}
			addedCount++
		}
	}

	if addedCount > 0 {
		c.logger.Info("Database sync completed - processors added",
			c.logger.Args("added", addedCount, "total_processors", len(c.processors)))
	} else {
		c.logger.Debug("Database sync completed - no changes",
			c.logger.Args("total_processors", len(c.processors)))
	}

	return nil
}

// StartSyncLoop starts a background goroutine that periodically syncs with the database
// This ensures new captures are automatically picked up without manual intervention
func (c *Coordinator) StartSyncLoop(interval time.Duration) {
	c.logger.Info("Starting database sync loop",
		c.logger.Args("interval", interval.String()))

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		// A stopped coordinator skips the sync; maintenance restarts it
		for range ticker.C {
			if err := c.SyncWithDatabase(); err != nil {
				c.logger.WithCaller().Warn("Database sync failed",
					c.logger.Args("error", err))
			}
		}
	}()
}

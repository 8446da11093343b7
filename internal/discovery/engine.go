package discovery

import (
	"errors"
	"fmt"

	"netlynx/internal/database/models"
	"netlynx/internal/database/repositories"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

// ServiceDetector finds captures of one kind
type ServiceDetector interface {
	Name() string
	Detect() ([]*models.Capture, error)
}

// Engine runs detectors and registers what they find
type Engine struct {
	captureRepo repositories.CaptureRepository
	detectors   []ServiceDetector
	logger      *pterm.Logger
}

// NewEngine creates an engine with the given detectors
func NewEngine(captureRepo repositories.CaptureRepository, logger *pterm.Logger, detectors ...ServiceDetector) *Engine {
	return &Engine{
		captureRepo: captureRepo,
		detectors:   detectors,
		logger:      logger,
	}
}

// Run detects captures and creates the ones not registered yet. It
// returns the captures it created.
func (e *Engine) Run() ([]*models.Capture, error) {
	created := []*models.Capture{}

	for _, detector := range e.detectors {
		e.logger.Debug("Running detector", e.logger.Args("detector", detector.Name()))

		found, err := detector.Detect()
		if err != nil {
			e.logger.WithCaller().Warn("Detector failed",
				e.logger.Args("detector", detector.Name(), "error", err))
			continue
		}

		for _, capture := range found {
			_, err := e.captureRepo.FindByName(capture.Name)
			if err == nil {
				e.logger.Trace("Capture already registered", e.logger.Args("capture", capture.Name))
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return created, fmt.Errorf("failed to look up capture %s: %w", capture.Name, err)
			}

			if capture.CaptureID == "" {
				capture.CaptureID = uuid.NewString()
			}
			if err := e.captureRepo.Create(capture); err != nil {
				return created, fmt.Errorf("failed to register capture %s: %w", capture.Name, err)
			}
			e.logger.Info("Registered capture",
				e.logger.Args("capture", capture.Name, "path", capture.Path, "detector", detector.Name()))
			created = append(created, capture)
		}
	}

	return created, nil
}

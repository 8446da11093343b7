package discovery

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"netlynx/internal/database/models"
	"netlynx/internal/parser/chrome"

	"github.com/pterm/pterm"
)

// headerProbeSize is how much of a file is read to recognize a capture
const headerProbeSize = 256

// NetLogDetector finds NetLog capture files written with --log-net-log
type NetLogDetector struct {
	logger         *pterm.Logger
	configuredPath string
	dir            string
	autoDiscover   bool
}

// NewNetLogDetector creates a detector. A valid configuredPath disables
// the directory scan.
func NewNetLogDetector(configuredPath, dir string, autoDiscover bool, logger *pterm.Logger) ServiceDetector {
	return &NetLogDetector{
		logger:         logger,
		configuredPath: configuredPath,
		dir:            dir,
		autoDiscover:   autoDiscover,
	}
}

func (d *NetLogDetector) Name() string {
	return "netlog"
}

func (d *NetLogDetector) Detect() ([]*models.Capture, error) {
	captures := []*models.Capture{}
	d.logger.Trace("Detecting NetLog captures...")

	// Build paths list with priority logic:
	// 1. If NETLOG_PATH is set and valid, use ONLY that path
	// 2. Otherwise scan NETLOG_DIR for *.json files when auto-discovery is on
	paths := []string{}

	configuredPathValid := false
	if d.configuredPath != "" {
		d.logger.Debug("Checking configured NetLog path", d.logger.Args("path", d.configuredPath))
		if fileInfo, err := os.Stat(d.configuredPath); err == nil && !fileInfo.IsDir() {
			configuredPathValid = true
			d.logger.Info("Using configured NETLOG_PATH (auto-discovery disabled)",
				d.logger.Args("path", d.configuredPath))
		} else {
			d.logger.Warn("Configured NETLOG_PATH not accessible, falling back to auto-discovery",
				d.logger.Args("path", d.configuredPath, "error", err))
		}
	}

	if configuredPathValid {
		paths = append(paths, d.configuredPath)
	} else if d.autoDiscover && d.dir != "" {
		d.logger.Debug("Using auto-discovery for NetLog captures",
			d.logger.Args("NETLOG_DIR", d.dir))
		matches, err := filepath.Glob(filepath.Join(d.dir, "*.json"))
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		paths = append(paths, matches...)
	} else {
		d.logger.Info("Auto-discovery disabled and no valid NETLOG_PATH configured",
			d.logger.Args("NETLOG_AUTO_DISCOVER", d.autoDiscover, "NETLOG_PATH", d.configuredPath))
	}

	for _, path := range paths {
		fileInfo, err := os.Stat(path)
		if err != nil {
			d.logger.Trace("File not accessible", d.logger.Args("path", path, "error", err.Error()))
			continue
		}
		if fileInfo.IsDir() || fileInfo.Size() == 0 {
			d.logger.Trace("File is directory or empty", d.logger.Args("path", path, "size", fileInfo.Size()))
			continue
		}
		if !isNetLogFormat(path) {
			d.logger.Debug("Format invalid - not a NetLog capture", d.logger.Args("path", path))
			continue
		}

		d.logger.Info("NetLog capture detected", d.logger.Args("path", path))
		captures = append(captures, &models.Capture{
			Name:       generateName(path),
			Path:       path,
			ParserType: chrome.ParserType,
		})
	}

	if len(captures) == 0 && (d.configuredPath != "" || d.autoDiscover) {
		d.logger.Warn("No NetLog captures found",
			d.logger.Args("hint", "Set NETLOG_PATH to a file written with --log-net-log, or NETLOG_DIR to a directory of captures"))
	}

	return captures, nil
}

// isNetLogFormat reports whether the file opens with a constants header.
// Only the start of the line is read: the header alone can be hundreds of
// kilobytes.
func isNetLogFormat(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	buf := make([]byte, headerProbeSize)
	n, err := io.ReadFull(bufio.NewReader(file), buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return false
	}
	return chrome.IsHeader(string(buf[:n]))
}

func generateName(path string) string {
	base := filepath.Base(path)
	return "netlog-" + strings.TrimSuffix(base, filepath.Ext(base))
}

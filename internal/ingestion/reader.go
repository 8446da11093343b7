package ingestion

import (
	"bufio"
	"errors"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/pterm/pterm"
)

// maxLineSize bounds a single capture line. The constants header of a
// NetLog capture alone is a few hundred kilobytes.
const maxLineSize = 32 * 1024 * 1024

// IncrementalReader reads capture files incrementally, tracking position
// and detecting rotation
type IncrementalReader struct {
	filePath        string
	lastPosition    int64
	lastInode       int64 // File identifier (inode on Unix, file index on Windows)
	lastLineContent string
	logger          *pterm.Logger
}

// NewIncrementalReader creates a new incremental reader
func NewIncrementalReader(filePath string, lastPos int64, lastInode int64, lastLine string, logger *pterm.Logger) *IncrementalReader {
	return &IncrementalReader{
		filePath:        filePath,
		lastPosition:    lastPos,
		lastInode:       lastInode,
		lastLineContent: lastLine,
		logger:          logger,
	}
}

// ReadBatch reads up to maxLines complete lines. A trailing line without
// a newline is still being written and is left for the next call.
// Returns: lines read, new position, new inode, last line content (for continuity check), error
func (r *IncrementalReader) ReadBatch(maxLines int) ([]string, int64, int64, string, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		r.logger.Debug("Capture file does not exist yet, waiting for creation",
			r.logger.Args("path", r.filePath))
		return []string{}, r.lastPosition, r.lastInode, r.lastLineContent, nil
	}

	file, err := os.Open(r.filePath)
	if err != nil {
		if os.IsPermission(err) {
			r.logger.Error("Permission denied accessing capture file",
				r.logger.Args("path", r.filePath, "error", err))
			return []string{}, r.lastPosition, r.lastInode, r.lastLineContent, nil
		}
		r.logger.Warn("Failed to open capture file, will retry",
			r.logger.Args("path", r.filePath, "error", err))
		return []string{}, r.lastPosition, r.lastInode, r.lastLineContent, nil
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		r.logger.WithCaller().Error("Failed to stat capture file", r.logger.Args("path", r.filePath, "error", err))
		return nil, 0, 0, "", err
	}
	fileSize := stat.Size()

	currentInode, err := getFileInode(file)
	if err != nil {
		r.logger.WithCaller().Warn("Failed to get file inode", r.logger.Args("path", r.filePath, "error", err))
		currentInode = 0
	}

	// Rotation case 1: the file was deleted and recreated
	if r.lastInode != 0 && currentInode != 0 && currentInode != r.lastInode {
		r.logger.Info("Capture rotation detected: file deleted and recreated (inode changed)",
			r.logger.Args(
				"path", r.filePath,
				"old_inode", r.lastInode,
				"new_inode", currentInode,
			))
		r.lastPosition = 0
		r.lastLineContent = ""
		r.lastInode = currentInode
	} else if currentInode != 0 {
		r.lastInode = currentInode
	}

	// Rotation case 2: the file was truncated, as when the browser restarts
	// logging to the same path
	if fileSize < r.lastPosition {
		r.logger.Info("Capture rotation detected: file truncated",
			r.logger.Args(
				"path", r.filePath,
				"old_size", r.lastPosition,
				"new_size", fileSize,
			))
		r.lastPosition = 0
		r.lastLineContent = ""
	}

	if _, err := file.Seek(r.lastPosition, io.SeekStart); err != nil {
		r.logger.WithCaller().Error("Failed to seek in capture file",
			r.logger.Args("path", r.filePath, "position", r.lastPosition, "error", err))
		return nil, 0, 0, "", err
	}

	// Positions always sit on a line boundary: only whole lines are
	// consumed, so the offset is advanced by exactly what was returned.
	br := bufio.NewReaderSize(file, 64*1024)
	lines := []string{}
	newPos := r.lastPosition

	for len(lines) < maxLines {
		raw, err := readLine(br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			r.logger.WithCaller().Error("Failed to read capture file",
				r.logger.Args("path", r.filePath, "error", err))
			return nil, 0, 0, "", err
		}
		newPos += int64(len(raw))

		line := strings.TrimRight(raw, "\r\n")
		if line != "" {
			lines = append(lines, line)
		}
	}

	if len(lines) > 0 {
		lastLineForCheck := getTail(lines[len(lines)-1], 500)

		r.logger.Trace("Read batch from capture file",
			r.logger.Args(
				"path", r.filePath,
				"lines_read", len(lines),
				"old_position", r.lastPosition,
				"new_position", newPos,
			))

		return lines, newPos, r.lastInode, lastLineForCheck, nil
	}

	// Only blank lines were consumed; still move past them
	return []string{}, newPos, r.lastInode, r.lastLineContent, nil
}

var errLineTooLong = errors.New("capture line exceeds maximum size")

// readLine returns the next complete line including its newline. A
// partial line at EOF is reported as io.EOF and not consumed.
func readLine(br *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		chunk, err := br.ReadSlice('\n')
		sb.Write(chunk)
		if sb.Len() > maxLineSize {
			return "", errLineTooLong
		}
		switch {
		case err == nil:
			return sb.String(), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return "", err
		}
	}
}

// UpdatePosition is called by the processor to confirm the position after a successful batch write.
func (r *IncrementalReader) UpdatePosition(position int64, inode int64, lastLine string) {
	r.lastPosition = position
	r.lastInode = inode
	r.lastLineContent = lastLine
	r.logger.Trace("Updated reader position by caller",
		r.logger.Args(
			"path", r.filePath,
			"position", position,
			"inode", inode,
		))
}

// Position returns the current read offset
func (r *IncrementalReader) Position() int64 {
	return r.lastPosition
}

// Reset resets the reader to the beginning of the file
func (r *IncrementalReader) Reset() {
	r.logger.Info("Resetting reader to beginning", r.logger.Args("path", r.filePath))
	r.lastPosition = 0
	r.lastInode = 0
	r.lastLineContent = ""
}

// getTail returns the last maxLen characters of a string
func getTail(s string, maxLen int) string {
	if s == "" {
		return ""
	}

	s = strings.TrimRight(s, " \t\n\r")

	if len(s) <= maxLen {
		return s
	}
	return s[len(s)-maxLen:]
}

// getFileInode returns a stable identifier for the file using reflection to access system-specific inode
// This works across platforms (Linux, macOS, Windows) without build tags
func getFileInode(file *os.File) (int64, error) {
	stat, err := file.Stat()
	if err != nil {
		return 0, err
	}

	sys := stat.Sys()
	if sys != nil {
		v := reflect.ValueOf(sys)
		if v.Kind() == reflect.Ptr {
			v = v.Elem()
		}
		if v.Kind() == reflect.Struct {
			// Unix/Linux/macOS
			inoField := v.FieldByName("Ino")
			if inoField.IsValid() && inoField.CanUint() {
				return int64(inoField.Uint()), nil
			}

			// Windows file index
			fileIndexField := v.FieldByName("FileIndexHigh")
			if fileIndexField.IsValid() && fileIndexField.CanUint() {
				fileIndexHigh := fileIndexField.Uint()
				fileIndexLow := uint64(0)
				if lowField := v.FieldByName("FileIndexLow"); lowField.IsValid() && lowField.CanUint() {
					fileIndexLow = lowField.Uint()
				}
				return int64((fileIndexHigh << 32) | fileIndexLow), nil
			}
		}
	}

	// Without an inode only truncation is detected
	return 0, nil
}

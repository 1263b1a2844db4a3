// Package audit appends fence events to three synchronized on-disk forms:
// an operational debug log for tailing, a grep-friendly readable line log,
// and a line-delimited JSON log for streaming ingestion.
package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fenceline/fenceline/types"
)

// File names within the log directory. Rotation is an external policy.
const (
	DebugLogName    = "fence-events.log"
	ReadableLogName = "fence-events-readable.log"
	JSONLogName     = "fence-events-detailed.jsonl"
)

const readableTimeFormat = "2006-01-02 15:04:05"

// Log is the fence event audit logger. All files are opened in append mode
// so concurrent recorders for different targets can write simultaneously;
// each record is a single bounded write per file.
type Log struct {
	mu       sync.Mutex
	dir      string
	jsonFile *os.File
	jsonW    *bufio.Writer
	readable *os.File
	debug    zerolog.Logger
	node     string
}

// Open creates or opens the audit log set in dir. The debug log is mirrored
// to stderr for operators running the agent by hand.
func Open(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	jsonFile, err := openAppend(filepath.Join(dir, JSONLogName))
	if err != nil {
		return nil, err
	}

	readable, err := openAppend(filepath.Join(dir, ReadableLogName))
	if err != nil {
		_ = jsonFile.Close()
		return nil, err
	}

	debugFile, err := openAppend(filepath.Join(dir, DebugLogName))
	if err != nil {
		_ = jsonFile.Close()
		_ = readable.Close()
		return nil, err
	}

	fileWriter := zerolog.ConsoleWriter{
		Out:        debugFile,
		NoColor:    true,
		TimeFormat: readableTimeFormat,
	}
	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		NoColor:    true,
		TimeFormat: readableTimeFormat,
	}

	hostname, _ := os.Hostname()

	debug := zerolog.New(zerolog.MultiLevelWriter(fileWriter, consoleWriter)).
		With().
		Timestamp().
		Logger()

	return &Log{
		dir:      dir,
		jsonFile: jsonFile,
		jsonW:    bufio.NewWriter(jsonFile),
		readable: readable,
		debug:    debug,
		node:     hostname,
	}, nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return f, nil
}

// Close flushes and closes all log files.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.jsonW.Flush(); err != nil {
		return err
	}
	if err := l.jsonFile.Close(); err != nil {
		return err
	}
	return l.readable.Close()
}

// Debug starts a debug event on the operational form, for notes that
// accompany a fence operation without being audit records themselves.
func (l *Log) Debug() *zerolog.Event {
	return l.debug.Debug()
}

// Dir returns the log directory.
func (l *Log) Dir() string {
	return l.dir
}

// Record appends event to all three forms. The JSON form is flushed and
// synced before Record returns so a crash never loses an acknowledged
// record. A failure in one form does not stop the others; the combined
// error is returned for reporting but callers must not let it change the
// fence outcome.
func (l *Log) Record(event types.FenceEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.RecorderNode == "" {
		event.RecorderNode = l.node
	}
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid fence event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []string

	if err := l.writeJSON(event); err != nil {
		errs = append(errs, err.Error())
	}
	if err := l.writeReadable(event); err != nil {
		errs = append(errs, err.Error())
	}

	l.debug.Info().
		Str("action", event.Action).
		Str("target", event.TargetNode).
		Str("status", event.Status).
		Msg("recorded fence event")

	if len(errs) > 0 {
		return fmt.Errorf("audit log: %s", strings.Join(errs, "; "))
	}
	return nil
}

// writeJSON appends one self-contained JSON record with a trailing newline,
// flushed and fsynced so a torn write can only affect the final line.
func (l *Log) writeJSON(event types.FenceEvent) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := l.jsonW.Write(line); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if err := l.jsonW.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := l.jsonW.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return l.jsonFile.Sync()
}

// writeReadable appends the fixed-field single-line form in one write call.
func (l *Log) writeReadable(event types.FenceEvent) error {
	fsList, err := json.Marshal(event.Filesystems)
	if err != nil {
		fsList = []byte("[]")
	}

	line := fmt.Sprintf("[%s] ACTION=%s TARGET=%s FILESYSTEMS=%s STATUS=%s DETAILS=%s\n",
		event.Timestamp.Format(readableTimeFormat),
		event.Action,
		event.TargetNode,
		fsList,
		event.Status,
		event.Details,
	)

	if _, err := l.readable.WriteString(line); err != nil {
		return fmt.Errorf("write readable line: %w", err)
	}
	return nil
}

// Reader replays the structured form of the audit log.
type Reader struct {
	scanner *bufio.Scanner
	file    *os.File
}

// NewReader opens the structured log at path for replay.
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	return &Reader{
		scanner: bufio.NewScanner(file),
		file:    file,
	}, nil
}

// ErrCorruptLine marks a record that does not parse. With fsync on every
// append this can only be a torn trailing line.
var ErrCorruptLine = fmt.Errorf("corrupt audit log line")

// Next reads the next event.
func (r *Reader) Next() (*types.FenceEvent, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	var event types.FenceEvent
	if err := json.Unmarshal(r.scanner.Bytes(), &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptLine, err)
	}

	return &event, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Replay invokes handler for every event in dir's structured log recorded
// after since. A torn trailing line ends the replay without error.
func Replay(dir string, since time.Time, handler func(*types.FenceEvent) error) error {
	reader, err := NewReader(filepath.Join(dir, JSONLogName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = reader.Close() }()

	for {
		event, err := reader.Next()
		if err == io.EOF || errors.Is(err, ErrCorruptLine) {
			return nil
		}
		if err != nil {
			return err
		}

		if event.Timestamp.After(since) {
			if err := handler(event); err != nil {
				return err
			}
		}
	}
}

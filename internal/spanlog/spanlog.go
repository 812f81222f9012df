// Package spanlog implements the append-only span log.
//
// Architecture:
//
//	Recorder → Append() → one JSON line per span → agent_telemetry.jsonl
//	External tools / CLI → ByTrace() / Recent() over the same file
//
// Every span is serialized as one self-contained JSON object per line and
// written with a single write call under the log mutex, so concurrent
// appenders never interleave partial records. The log is readable by
// external tools while the recorder holds it open for appending; readers
// re-open the file on every call so repeated reads over the same file are
// idempotent.
package spanlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/kansatsu-ai/kansatsu/internal/model"
)

// maxLineBytes bounds a single span record when reading. Lines beyond this
// are treated as corrupt and skipped.
const maxLineBytes = 1 << 20 // 1 MB

// Log is an append-only, line-oriented span log backed by a local file.
type Log struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex // guards appends; one span per write call
	f       *os.File
	written int64
}

// New opens (or creates) the span log at path. The open failure is fatal to
// the caller: a recorder without a sink must be constructed explicitly via
// a disabled path, never by accident.
func New(logger *slog.Logger, path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // path comes from validated config
	if err != nil {
		return nil, fmt.Errorf("spanlog: open %s: %w", path, err)
	}
	return &Log{path: path, logger: logger, f: f}, nil
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes one span as a single JSON line. The marshal happens outside
// the file write so a serialization failure never leaves a partial line.
func (l *Log) Append(span model.Span) error {
	payload, err := json.Marshal(span)
	if err != nil {
		return fmt.Errorf("spanlog: marshal span %s: %w", span.SpanID, err)
	}
	line := append(payload, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.f.Write(line); err != nil {
		return fmt.Errorf("spanlog: append span %s: %w", span.SpanID, err)
	}
	l.written++
	return nil
}

// Written returns the number of spans appended by this instance.
func (l *Log) Written() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}

// ByTrace returns all persisted spans with the given trace id, in append
// order. Reads the whole file fresh on every call.
func (l *Log) ByTrace(traceID string) ([]model.Span, error) {
	var matched []model.Span
	err := l.scan(func(s model.Span) {
		if s.TraceID == traceID {
			matched = append(matched, s)
		}
	})
	return matched, err
}

// All returns every persisted span in append order.
func (l *Log) All() ([]model.Span, error) {
	var all []model.Span
	if err := l.scan(func(s model.Span) { all = append(all, s) }); err != nil {
		return nil, err
	}
	return all, nil
}

// Recent returns the last n persisted spans in append order.
func (l *Log) Recent(n int) ([]model.Span, error) {
	var all []model.Span
	if err := l.scan(func(s model.Span) { all = append(all, s) }); err != nil {
		return nil, err
	}
	if n < len(all) {
		all = all[len(all)-n:]
	}
	return all, nil
}

// Close syncs and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.f.Sync(); err != nil {
		l.logger.Warn("spanlog: final sync failed", "error", err)
	}
	return l.f.Close()
}

// scan reads the log line by line, skipping records that do not parse.
// A torn final line (crash mid-append by an earlier process) is expected
// and logged at warn, not treated as an error.
func (l *Log) scan(fn func(model.Span)) error {
	f, err := os.Open(l.path) //nolint:gosec // path comes from validated config
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("spanlog: open for read: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var span model.Span
		if err := json.Unmarshal(line, &span); err != nil {
			l.logger.Warn("spanlog: skipping malformed record", "line", lineNum, "error", err)
			continue
		}
		fn(span)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("spanlog: scan: %w", err)
	}
	return nil
}

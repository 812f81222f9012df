// Package store provides an embedded SQLite index over recorded spans.
//
// The JSONL span log is the source of truth; the store is a queryable
// secondary sink for trace reconstruction and offline metric replay when
// scanning the whole log per query would be too slow. It runs fully
// in-process with no server and no network.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/kansatsu-ai/kansatsu/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS spans (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	span_id     TEXT NOT NULL,
	trace_id    TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	timestamp   TEXT NOT NULL,
	duration_ms REAL NOT NULL DEFAULT 0,
	data        TEXT,
	error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_spans_trace ON spans (trace_id, seq);
`

// Store is a SQLite-backed span index. Safe for concurrent use; SQLite
// serializes writers internally and the recorder already serializes appends.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the span index at path and ensures the schema.
func Open(ctx context.Context, logger *slog.Logger, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ensure schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Append inserts one span. Satisfies the recorder's sink interface, so the
// append must stay bounded and local.
func (s *Store) Append(span model.Span) error {
	var data any
	if span.Data != nil {
		payload, err := json.Marshal(span.Data)
		if err != nil {
			return fmt.Errorf("store: marshal span data %s: %w", span.SpanID, err)
		}
		data = string(payload)
	}

	_, err := s.db.Exec(
		`INSERT INTO spans (span_id, trace_id, event_type, timestamp, duration_ms, data, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		span.SpanID, span.TraceID, string(span.EventType),
		span.Timestamp.UTC().Format(time.RFC3339Nano),
		span.DurationMs, data, span.Error,
	)
	if err != nil {
		return fmt.Errorf("store: insert span %s: %w", span.SpanID, err)
	}
	return nil
}

// SpansByTrace returns all spans for a trace id in append order.
func (s *Store) SpansByTrace(ctx context.Context, traceID string) ([]model.Span, error) {
	return s.query(ctx,
		`SELECT span_id, trace_id, event_type, timestamp, duration_ms, data, error
		 FROM spans WHERE trace_id = ? ORDER BY seq`, traceID)
}

// Recent returns the last n spans in append order.
func (s *Store) Recent(ctx context.Context, n int) ([]model.Span, error) {
	spans, err := s.query(ctx,
		`SELECT span_id, trace_id, event_type, timestamp, duration_ms, data, error
		 FROM (SELECT * FROM spans ORDER BY seq DESC LIMIT ?) ORDER BY seq`, n)
	if err != nil {
		return nil, err
	}
	return spans, nil
}

// ReplayMetrics rebuilds the metrics aggregate from every persisted span.
func (s *Store) ReplayMetrics(ctx context.Context) (model.Metrics, error) {
	spans, err := s.query(ctx,
		`SELECT span_id, trace_id, event_type, timestamp, duration_ms, data, error
		 FROM spans ORDER BY seq`)
	if err != nil {
		return model.Metrics{}, err
	}
	return model.Accumulate(spans), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]model.Span, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query spans: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	var spans []model.Span
	for rows.Next() {
		var (
			span      model.Span
			eventType string
			timestamp string
			data      sql.NullString
		)
		if err := rows.Scan(&span.SpanID, &span.TraceID, &eventType, &timestamp,
			&span.DurationMs, &data, &span.Error); err != nil {
			return nil, fmt.Errorf("store: scan span: %w", err)
		}
		span.EventType = model.EventType(eventType)

		ts, err := time.Parse(time.RFC3339Nano, timestamp)
		if err != nil {
			return nil, fmt.Errorf("store: parse timestamp %q: %w", timestamp, err)
		}
		span.Timestamp = ts

		if data.Valid {
			if err := json.Unmarshal([]byte(data.String), &span.Data); err != nil {
				s.logger.Warn("store: span data does not parse, leaving empty",
					"span_id", span.SpanID, "error", err)
			}
		}
		spans = append(spans, span)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate spans: %w", err)
	}
	return spans, nil
}

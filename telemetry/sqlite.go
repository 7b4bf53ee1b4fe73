package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const readingsSchema = `
CREATE TABLE IF NOT EXISTS readings (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT    NOT NULL,
	user_id      TEXT,
	device_type  TEXT    NOT NULL,
	device_id    TEXT,
	kind         TEXT    NOT NULL,
	activity     TEXT,
	timestamp_ms INTEGER,
	value        REAL    NOT NULL,
	axis_values  TEXT,
	count        INTEGER,
	warming_up   INTEGER NOT NULL DEFAULT 0,
	recorded_at  TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_readings_session_kind ON readings (session_id, kind);
`

// SQLiteSink records readings in a local database.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(readingsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Write(ctx context.Context, r Reading) error {
	var values sql.NullString
	if len(r.Values) > 0 {
		b, err := json.Marshal(r.Values)
		if err != nil {
			return fmt.Errorf("failed to encode values: %w", err)
		}
		values = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO readings
			(session_id, user_id, device_type, device_id, kind, activity, timestamp_ms, value, axis_values, count, warming_up, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.UserID, r.DeviceType, r.DeviceID, r.Kind, r.Activity,
		r.TimestampMs, r.Value, values, r.Count, r.WarmingUp, r.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// Readings returns the readings of a session and kind in insertion order.
// An empty kind matches every kind.
func (s *SQLiteSink) Readings(ctx context.Context, sessionID, kind string) ([]Reading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, COALESCE(user_id, ''), device_type, COALESCE(device_id, ''), kind,
		       COALESCE(activity, ''), COALESCE(timestamp_ms, 0), value, axis_values,
		       COALESCE(count, 0), warming_up, recorded_at
		FROM readings
		WHERE session_id = ? AND (? = '' OR kind = ?)
		ORDER BY id`, sessionID, kind, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		var (
			r        Reading
			values   sql.NullString
			recorded string
		)
		if err := rows.Scan(&r.SessionID, &r.UserID, &r.DeviceType, &r.DeviceID, &r.Kind,
			&r.Activity, &r.TimestampMs, &r.Value, &values, &r.Count, &r.WarmingUp, &recorded); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		if values.Valid {
			if err := json.Unmarshal([]byte(values.String), &r.Values); err != nil {
				return nil, fmt.Errorf("bad axis_values %q: %w", values.String, err)
			}
		}
		if r.RecordedAt, err = time.Parse(time.RFC3339Nano, recorded); err != nil {
			return nil, fmt.Errorf("bad recorded_at %q: %w", recorded, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

package audit

import (
	"context"
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"

	"github.com/jllopis/semkernel/pkg/core"
)

// SQLiteStore persists events in SQLite.
type SQLiteStore struct {
	db     *sql.DB
	closer bool
}

// NewSQLiteStore wraps db and ensures the schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// OpenSQLite opens the database file at path and returns a store that owns
// it.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.closer = true
	return s, nil
}

// Close closes the database when the store opened it.
func (s *SQLiteStore) Close() error {
	if !s.closer {
		return nil
	}
	return s.db.Close()
}

// Record stores a single event.
func (s *SQLiteStore) Record(ctx context.Context, event core.Event) error {
	payload, err := encodePayload(event.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kernel_events (
			run_id, event_type, skill, function, step, payload_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		event.RunID,
		string(event.Type),
		event.Skill,
		event.Function,
		event.Step,
		string(payload),
		normalizeTime(event.Timestamp),
	)
	return err
}

// List returns events matching the filter in recording order.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]core.Event, error) {
	query := `
		SELECT run_id, event_type, skill, function, step, payload_json, created_at
		FROM kernel_events
	`
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if filter.RunID != "" {
		addFilter("run_id = ?", filter.RunID)
	}
	if filter.Skill != "" {
		addFilter("skill = ? COLLATE NOCASE", filter.Skill)
	}
	if filter.Function != "" {
		addFilter("function = ? COLLATE NOCASE", filter.Function)
	}
	if filter.Type != "" {
		addFilter("event_type = ?", string(filter.Type))
	}
	query += where + " ORDER BY id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []core.Event
	for rows.Next() {
		var (
			event       core.Event
			eventType   string
			payloadJSON sql.NullString
			created     sql.NullTime
		)
		if err := rows.Scan(
			&event.RunID,
			&eventType,
			&event.Skill,
			&event.Function,
			&event.Step,
			&payloadJSON,
			&created,
		); err != nil {
			return nil, err
		}
		event.Type = core.EventType(eventType)
		if payloadJSON.Valid {
			if payload, err := decodePayload([]byte(payloadJSON.String)); err == nil {
				event.Payload = payload
			}
		}
		if created.Valid {
			event.Timestamp = created.Time
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kernel_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			skill TEXT,
			function TEXT,
			step INTEGER NOT NULL DEFAULT 0,
			payload_json TEXT,
			created_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_kernel_events_run ON kernel_events(run_id);
		CREATE INDEX IF NOT EXISTS idx_kernel_events_function ON kernel_events(skill, function);
		CREATE INDEX IF NOT EXISTS idx_kernel_events_type ON kernel_events(event_type);
	`)
	return err
}

// Package store persists what must survive a restart: operator assigned
// sensor names and the history of which sensors were seen.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"arksync/backend/internal/sensor"
	"arksync/backend/pkg/dialect"
	"arksync/backend/pkg/utils"
)

// Sighting records the first and latest time a sensor was active.
type Sighting struct {
	SerialNumber string      `json:"serialNumber"`
	Kind         sensor.Kind `json:"kind"`
	FirstSeen    time.Time   `json:"firstSeen"`
	LastSeen     time.Time   `json:"lastSeen"`
}

type Store struct {
	db *sql.DB
	l  *slog.Logger
}

// Open connects to a migrated database.
func Open(l *slog.Logger, d dialect.Dialect, dsn string) (*Store, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(d.Driver(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if d == dialect.SQLite {
		// One writer at a time, otherwise concurrent writes fail with SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	return New(l, db), nil
}

// New wraps an open database handle.
func New(l *slog.Logger, db *sql.DB) *Store {
	return &Store{
		db: db,
		l:  l.With(slog.String("component", "store")),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Name returns the stored name of a sensor, "" when it has none.
func (s *Store) Name(ctx context.Context, serial string) (string, error) {
	var name string

	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM sensor_names WHERE serial_number = $1`, serial,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("failed to get name of %s: %w", serial, err)
	}

	return name, nil
}

// SetName stores name for a sensor. An empty name clears it.
func (s *Store) SetName(ctx context.Context, serial, name string) error {
	if name == "" {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM sensor_names WHERE serial_number = $1`, serial); err != nil {
			return fmt.Errorf("failed to clear name of %s: %w", serial, err)
		}

		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sensor_names (serial_number, name, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (serial_number) DO UPDATE
		SET name = excluded.name, updated_at = excluded.updated_at`,
		serial, name, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to set name of %s: %w", serial, err)
	}

	s.l.Debug("sensor name stored", slog.String("serialNumber", serial), slog.String("name", name))

	return nil
}

// Names returns every stored name keyed by serial number.
func (s *Store) Names(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT serial_number, name FROM sensor_names`)
	if err != nil {
		return nil, fmt.Errorf("failed to query names: %w", err)
	}
	defer utils.LogOnError(s.l, rows.Close, "failed to close name rows")

	names := make(map[string]string)

	for rows.Next() {
		var serial, name string
		if err := rows.Scan(&serial, &name); err != nil {
			return nil, fmt.Errorf("failed to scan name: %w", err)
		}

		names[serial] = name
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate names: %w", err)
	}

	return names, nil
}

// RecordSighting notes that a sensor was active at the given time.
func (s *Store) RecordSighting(ctx context.Context, serial string, kind sensor.Kind, at time.Time) error {
	at = at.UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sensor_sightings (serial_number, kind, first_seen, last_seen)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (serial_number) DO UPDATE
		SET kind = excluded.kind, last_seen = excluded.last_seen`,
		serial, string(kind), at,
	)
	if err != nil {
		return fmt.Errorf("failed to record sighting of %s: %w", serial, err)
	}

	return nil
}

// Sightings lists every sensor ever seen, ordered by serial number.
func (s *Store) Sightings(ctx context.Context) ([]Sighting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT serial_number, kind, first_seen, last_seen
		FROM sensor_sightings
		ORDER BY serial_number`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sightings: %w", err)
	}
	defer utils.LogOnError(s.l, rows.Close, "failed to close sighting rows")

	var sightings []Sighting

	for rows.Next() {
		var (
			sg   Sighting
			kind string
		)

		if err := rows.Scan(&sg.SerialNumber, &kind, &sg.FirstSeen, &sg.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan sighting: %w", err)
		}

		sg.Kind = sensor.Kind(kind)
		sightings = append(sightings, sg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sightings: %w", err)
	}

	return sightings, nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertSensorStateSQL = `INSERT INTO sensor_states (
        entity_id,
        state,
        recorded_at
    ) VALUES ($1,$2,$3);`

	// Equal timestamps fall back to id so that replay preserves the order
	// states were recorded in.
	listStatesBetweenSQL = `SELECT
        id,
        entity_id,
        state,
        recorded_at
    FROM sensor_states
    WHERE entity_id = $1
      AND recorded_at >= $2
      AND recorded_at < $3
    ORDER BY recorded_at, id;`

	deleteStatesBeforeSQL = `DELETE FROM sensor_states WHERE recorded_at < $1;`

	insertReadingSQL = `INSERT INTO gauge_readings (
        entity_id,
        value,
        recorded_at
    ) VALUES ($1,$2,$3);`

	lastReadingSQL = `SELECT
        entity_id,
        value,
        recorded_at
    FROM gauge_readings
    WHERE entity_id = $1
      AND recorded_at < $2
    ORDER BY recorded_at DESC, id DESC
    LIMIT 1;`

	listReadingsBetweenSQL = `SELECT
        entity_id,
        value,
        recorded_at
    FROM gauge_readings
    WHERE entity_id = $1
      AND recorded_at >= $2
      AND recorded_at < $3
    ORDER BY recorded_at, id;`

	listRecentReadingsSQL = `SELECT
        entity_id,
        value,
        recorded_at
    FROM gauge_readings
    WHERE entity_id = $1
    ORDER BY recorded_at DESC, id DESC
    LIMIT $2;`

	deleteReadingsBeforeSQL = `DELETE FROM gauge_readings WHERE recorded_at < $1;`
)

// StateLog defines operations on the raw binary sensor history.
type StateLog interface {
	InsertSensorState(ctx context.Context, entityID, state string, at time.Time) error
	ListStatesBetween(ctx context.Context, entityID string, from, to time.Time) ([]StateRecord, error)
}

// ReadingLog defines operations on the computed readings history.
type ReadingLog interface {
	InsertReadings(ctx context.Context, readings []ReadingRecord) error
	LastReading(ctx context.Context, entityID string, before time.Time) (*ReadingRecord, error)
	ListReadingsBetween(ctx context.Context, entityID string, from, to time.Time) ([]ReadingRecord, error)
	ListRecentReadings(ctx context.Context, entityID string, limit int) ([]ReadingRecord, error)
}

// Store aggregates access to the sensor state and readings logs.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertSensorState appends one raw binary state to the history log.
func (s *Store) InsertSensorState(ctx context.Context, entityID, state string, at time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, insertSensorStateSQL, entityID, state, at); execErr != nil {
		return fmt.Errorf("insert sensor state: %w", execErr)
	}
	return nil
}

// ListStatesBetween lists raw states within a time window, oldest first.
func (s *Store) ListStatesBetween(ctx context.Context, entityID string, from, to time.Time) ([]StateRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listStatesBetweenSQL, entityID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list states between: %w", queryErr)
	}
	defer rows.Close()

	states := make([]StateRecord, 0)
	for rows.Next() {
		var rec StateRecord
		if err := rows.Scan(&rec.ID, &rec.EntityID, &rec.State, &rec.RecordedAt); err != nil {
			return nil, err
		}
		states = append(states, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return states, nil
}

// DeleteStatesBefore trims old raw states from the log.
func (s *Store) DeleteStatesBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteStatesBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete states before: %w", execErr)
	}
	return nil
}

// InsertReadings appends a batch of computed readings.
func (s *Store) InsertReadings(ctx context.Context, readings []ReadingRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, r := range readings {
		batch.Queue(insertReadingSQL, r.EntityID, r.Value.String(), r.RecordedAt)
	}
	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	for range readings {
		if _, execErr := results.Exec(); execErr != nil {
			return fmt.Errorf("insert reading: %w", execErr)
		}
	}
	return nil
}

// LastReading returns the most recent reading for an entity before the
// given instant, or nil when none exists.
func (s *Store) LastReading(ctx context.Context, entityID string, before time.Time) (*ReadingRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	row := pool.QueryRow(ctx, lastReadingSQL, entityID, before)
	rec, scanErr := scanReading(row)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, scanErr
	}
	return &rec, nil
}

// ListReadingsBetween lists readings within a time window, oldest first.
func (s *Store) ListReadingsBetween(ctx context.Context, entityID string, from, to time.Time) ([]ReadingRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listReadingsBetweenSQL, entityID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list readings between: %w", queryErr)
	}
	defer rows.Close()

	return collectReadings(rows, 0)
}

// ListRecentReadings lists the most recent readings, newest first.
func (s *Store) ListRecentReadings(ctx context.Context, entityID string, limit int) ([]ReadingRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentReadingsSQL, entityID, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent readings: %w", queryErr)
	}
	defer rows.Close()

	return collectReadings(rows, limit)
}

// DeleteReadingsBefore trims old readings from the log.
func (s *Store) DeleteReadingsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteReadingsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete readings before: %w", execErr)
	}
	return nil
}

func collectReadings(rows pgx.Rows, capacity int) ([]ReadingRecord, error) {
	readings := make([]ReadingRecord, 0, capacity)
	for rows.Next() {
		rec, scanErr := scanReading(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		readings = append(readings, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return readings, nil
}

func scanReading(row pgx.Row) (ReadingRecord, error) {
	var (
		rec      ReadingRecord
		valueStr string
	)
	if err := row.Scan(&rec.EntityID, &valueStr, &rec.RecordedAt); err != nil {
		return ReadingRecord{}, err
	}

	value, convErr := decimal.NewFromString(valueStr)
	if convErr != nil {
		return ReadingRecord{}, fmt.Errorf("parse reading value: %w", convErr)
	}
	rec.Value = value
	return rec, nil
}

var (
	_ StateLog   = (*Store)(nil)
	_ ReadingLog = (*Store)(nil)
)

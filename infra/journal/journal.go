// Package journal persists charging outcomes, stock movements and order
// transitions to SQLite. The Store doubles as a metrics sink so it can be
// fed by the event collector.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	coremetrics "github.com/kilianp07/warehouse/core/metrics"
)

// Config defines the journal settings.
type Config struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Path == "" {
		c.Path = "warehouse.db"
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS charging_events (
    id TEXT PRIMARY KEY,
    ts INTEGER,
    agv_id TEXT,
    station_id TEXT,
    outcome TEXT,
    failure TEXT,
    battery INTEGER,
    wait_ns INTEGER
);
CREATE INDEX IF NOT EXISTS charging_events_ts ON charging_events (ts);
CREATE TABLE IF NOT EXISTS stock_events (
    id TEXT PRIMARY KEY,
    ts INTEGER,
    location_id TEXT,
    op TEXT,
    amount INTEGER,
    load INTEGER,
    capacity INTEGER,
    sync INTEGER,
    error TEXT
);
CREATE TABLE IF NOT EXISTS order_events (
    id TEXT PRIMARY KEY,
    ts INTEGER,
    order_id TEXT,
    medicine TEXT,
    quantity INTEGER,
    location_id TEXT,
    status TEXT,
    error TEXT
);`

// writeTimeout bounds a single insert issued through the sink methods.
const writeTimeout = 5 * time.Second

// Store is a SQLite backed journal.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &Store{db: db}, nil
}

// AppendCharging stores a charging outcome.
func (s *Store) AppendCharging(ctx context.Context, rec coremetrics.ChargingRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO charging_events (id, ts, agv_id, station_id, outcome, failure, battery, wait_ns)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), stamp(rec.Time), rec.AGVID, rec.StationID, rec.Outcome, rec.Failure,
		rec.Battery, int64(rec.Wait))
	return err
}

// AppendStock stores a stock operation.
func (s *Store) AppendStock(ctx context.Context, rec coremetrics.StockRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stock_events (id, ts, location_id, op, amount, load, capacity, sync, error)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), stamp(rec.Time), rec.LocationID, rec.Op, rec.Amount, rec.Load,
		rec.Capacity, rec.Sync, rec.Error)
	return err
}

// AppendOrder stores an order transition.
func (s *Store) AppendOrder(ctx context.Context, rec coremetrics.OrderRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO order_events (id, ts, order_id, medicine, quantity, location_id, status, error)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), stamp(rec.Time), rec.OrderID, rec.Medicine, rec.Quantity,
		rec.LocationID, rec.Status, rec.Error)
	return err
}

// RecordCharging implements coremetrics.MetricsSink.
func (s *Store) RecordCharging(rec coremetrics.ChargingRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return s.AppendCharging(ctx, rec)
}

// RecordStock implements coremetrics.StockRecorder.
func (s *Store) RecordStock(rec coremetrics.StockRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return s.AppendStock(ctx, rec)
}

// RecordOrder implements coremetrics.OrderRecorder.
func (s *Store) RecordOrder(rec coremetrics.OrderRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return s.AppendOrder(ctx, rec)
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func stamp(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UnixNano()
}

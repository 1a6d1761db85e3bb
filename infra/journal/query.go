package journal

import (
	"context"
	"time"

	coremetrics "github.com/kilianp07/warehouse/core/metrics"
)

// ChargingQuery filters charging outcomes. Zero values match everything.
type ChargingQuery struct {
	Start   time.Time
	End     time.Time
	AGVID   string
	Outcome string
}

// StockQuery filters stock operations.
type StockQuery struct {
	Start      time.Time
	End        time.Time
	LocationID string
}

// QueryCharging returns charging outcomes matching q, oldest first.
func (s *Store) QueryCharging(ctx context.Context, q ChargingQuery) ([]coremetrics.ChargingRecord, error) {
	query := `SELECT ts, agv_id, station_id, outcome, failure, battery, wait_ns FROM charging_events WHERE 1=1`
	var args []any
	query, args = window(query, args, q.Start, q.End)
	if q.AGVID != "" {
		query += ` AND agv_id = ?`
		args = append(args, q.AGVID)
	}
	if q.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, q.Outcome)
	}
	query += ` ORDER BY ts`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []coremetrics.ChargingRecord
	for rows.Next() {
		var (
			ts, wait int64
			r        coremetrics.ChargingRecord
		)
		if err := rows.Scan(&ts, &r.AGVID, &r.StationID, &r.Outcome, &r.Failure, &r.Battery, &wait); err != nil {
			return nil, err
		}
		r.Time = time.Unix(0, ts)
		r.Wait = time.Duration(wait)
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// QueryStock returns stock operations matching q, oldest first.
func (s *Store) QueryStock(ctx context.Context, q StockQuery) ([]coremetrics.StockRecord, error) {
	query := `SELECT ts, location_id, op, amount, load, capacity, sync, error FROM stock_events WHERE 1=1`
	var args []any
	query, args = window(query, args, q.Start, q.End)
	if q.LocationID != "" {
		query += ` AND location_id = ?`
		args = append(args, q.LocationID)
	}
	query += ` ORDER BY ts`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []coremetrics.StockRecord
	for rows.Next() {
		var (
			ts int64
			r  coremetrics.StockRecord
		)
		if err := rows.Scan(&ts, &r.LocationID, &r.Op, &r.Amount, &r.Load, &r.Capacity, &r.Sync, &r.Error); err != nil {
			return nil, err
		}
		r.Time = time.Unix(0, ts)
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// CountOrders returns the number of order transitions per status.
func (s *Store) CountOrders(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM order_events GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make(map[string]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func window(query string, args []any, start, end time.Time) (string, []any) {
	if !start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, start.UnixNano())
	}
	if !end.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, end.UnixNano())
	}
	return query, args
}

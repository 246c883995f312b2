package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Delivery is one attempted send of one part of a post to one destination.
type Delivery struct {
	PostID      string
	Destination string
	Part        string
	OK          bool
	Error       string
	At          time.Time
}

// PartStats aggregates delivery outcomes for a single part kind.
type PartStats struct {
	Part   string
	Total  int
	OK     int
	Failed int
	Last   time.Time
}

// RecordDelivery appends d to the delivery history.
func (s *Store) RecordDelivery(ctx context.Context, d Delivery) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if strings.TrimSpace(d.PostID) == "" {
		return errors.New("post_id is required")
	}
	if strings.TrimSpace(d.Part) == "" {
		return errors.New("part is required")
	}
	if d.At.IsZero() {
		d.At = time.Now()
	}

	var errVal sql.NullString
	if d.Error != "" {
		errVal = sql.NullString{String: d.Error, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries(post_id, destination, part, ok, error, at)
		VALUES(?, ?, ?, ?, ?, ?)
	`, d.PostID, d.Destination, d.Part, boolToInt(d.OK), errVal, formatTime(d.At))
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// PruneOld deletes deliveries older than retainDays. Returns the number of
// rows removed.
func (s *Store) PruneOld(ctx context.Context, retainDays int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	if retainDays <= 0 {
		return 0, nil
	}

	cutoff := formatTime(time.Now().AddDate(0, 0, -retainDays))
	res, err := s.db.ExecContext(ctx, "DELETE FROM deliveries WHERE at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune deliveries: %w", err)
	}

	n, _ := res.RowsAffected()
	return n, nil
}

// GetPartStats returns per-part delivery aggregates since the given time.
func (s *Store) GetPartStats(ctx context.Context, since time.Time) ([]PartStats, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT part,
			COUNT(*) AS total,
			SUM(CASE WHEN ok = 1 THEN 1 ELSE 0 END) AS ok,
			SUM(CASE WHEN ok = 0 THEN 1 ELSE 0 END) AS failed,
			MAX(at) AS last
		FROM deliveries
		WHERE at >= ?
		GROUP BY part
		ORDER BY part
	`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("get part stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []PartStats
	for rows.Next() {
		var ps PartStats
		var last string
		if err := rows.Scan(&ps.Part, &ps.Total, &ps.OK, &ps.Failed, &last); err != nil {
			return nil, fmt.Errorf("scan part stats: %w", err)
		}
		ps.Last, err = parseTime(last)
		if err != nil {
			return nil, fmt.Errorf("parse last: %w", err)
		}
		stats = append(stats, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate part stats: %w", err)
	}

	return stats, nil
}

// RecentFailures returns the newest failed deliveries, newest first.
func (s *Store) RecentFailures(ctx context.Context, limit int) ([]Delivery, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT post_id, destination, part, ok, error, at
		FROM deliveries
		WHERE ok = 0
		ORDER BY at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent failures: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent failures: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelivery(scanner rowScanner) (Delivery, error) {
	var (
		d      Delivery
		ok     int
		errVal sql.NullString
		at     string
	)
	if err := scanner.Scan(&d.PostID, &d.Destination, &d.Part, &ok, &errVal, &at); err != nil {
		return Delivery{}, fmt.Errorf("scan delivery: %w", err)
	}
	d.OK = ok == 1
	d.Error = errVal.String

	var err error
	d.At, err = parseTime(at)
	if err != nil {
		return Delivery{}, fmt.Errorf("parse at: %w", err)
	}
	return d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

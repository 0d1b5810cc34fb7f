// Package audit keeps the local scan log in sqlite. The document store owns
// ticket state; this table just answers operator questions cheaply.
package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-checkin/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// Open connects the audit database and creates the schema if needed.
func Open(ctx context.Context, path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	db := &DB{Bun: bunDB}
	if err := db.CreateTables(ctx); err != nil {
		bunDB.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) CreateTables(ctx context.Context) error {
	_, err := d.Bun.NewCreateTable().
		Model((*models.ScanRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create scan_records table: %w", err)
	}
	return nil
}

func (d *DB) RecordScan(ctx context.Context, record models.ScanRecord) error {
	_, err := d.Bun.NewInsert().Model(&record).Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert scan record: %w", err)
	}
	return nil
}

// RecentScans returns the latest scans for an event, newest first.
func (d *DB) RecentScans(ctx context.Context, eventID string, limit int) ([]models.ScanRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []models.ScanRecord
	err := d.Bun.NewSelect().
		Model(&records).
		Where("event_id = ?", eventID).
		Order("scanned_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("query recent scans: %w", err)
	}
	return records, nil
}

// CountByOutcome aggregates an event's audit rows per outcome.
func (d *DB) CountByOutcome(ctx context.Context, eventID string) (map[string]int, error) {
	var rows []struct {
		Outcome string `bun:"outcome"`
		Count   int    `bun:"count"`
	}
	err := d.Bun.NewSelect().
		Model((*models.ScanRecord)(nil)).
		ColumnExpr("outcome").
		ColumnExpr("COUNT(*) AS count").
		Where("event_id = ?", eventID).
		Group("outcome").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("count scans by outcome: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Outcome] = row.Count
	}
	return counts, nil
}

func (d *DB) Close() error {
	return d.Bun.Close()
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"car-sniper/models"
	"car-sniper/utils"
)

// PostgresStore persists subscriber filters and the notification ledger.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection to PostgreSQL, waits for it to accept
// pings, runs schema migrations and returns a ready-to-use store.
func NewPostgresStore(ctx context.Context, dsn string, logger *utils.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	retry := utils.RetryConfig{MaxAttempts: 10, BaseDelay: 500 * time.Millisecond, Logger: logger}
	if err := retry.Do(ctx, "postgres ping", func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	ps := &PostgresStore{db: db}
	if err := ps.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return ps, nil
}

// The ledger key treats NULL price as its own value via COALESCE; prices
// are never negative so -1 cannot collide with a real one.
func (ps *PostgresStore) migrate(ctx context.Context) error {
	_, err := ps.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS subscriber_filters (
			subscriber_id BIGINT      PRIMARY KEY,
			filters       TEXT        NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS notification_ledger (
			id            BIGSERIAL   PRIMARY KEY,
			subscriber_id BIGINT      NOT NULL,
			listing_id    TEXT        NOT NULL,
			price         BIGINT      NULL,
			source        TEXT        NOT NULL DEFAULT '',
			url           TEXT        NOT NULL DEFAULT '',
			title         TEXT        NOT NULL DEFAULT '',
			notified_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_key
			ON notification_ledger (subscriber_id, listing_id, (COALESCE(price, -1)));
		CREATE INDEX IF NOT EXISTS idx_ledger_notified_at ON notification_ledger(notified_at);
	`)
	return err
}

// SaveFilterSpec upserts the encoded spec, replacing any previous one.
func (ps *PostgresStore) SaveFilterSpec(ctx context.Context, subscriberID int64, spec models.FilterSpec) error {
	_, err := ps.db.ExecContext(ctx, `
		INSERT INTO subscriber_filters (subscriber_id, filters, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (subscriber_id) DO UPDATE
		SET filters = EXCLUDED.filters, updated_at = EXCLUDED.updated_at
	`, subscriberID, spec.Encode())
	if err != nil {
		return fmt.Errorf("postgres: save filter %d: %w", subscriberID, err)
	}
	return nil
}

func (ps *PostgresStore) LoadFilterSpec(ctx context.Context, subscriberID int64) (models.FilterSpec, bool, error) {
	var raw string
	err := ps.db.QueryRowContext(ctx,
		`SELECT filters FROM subscriber_filters WHERE subscriber_id = $1`, subscriberID).Scan(&raw)
	if err == sql.ErrNoRows {
		return models.FilterSpec{}, false, nil
	}
	if err != nil {
		return models.FilterSpec{}, false, fmt.Errorf("postgres: load filter %d: %w", subscriberID, err)
	}
	return models.ParseFilterSpec(raw), true, nil
}

// AllFilterSpecs retrieves every saved spec, used by the orchestrator once per tick.
func (ps *PostgresStore) AllFilterSpecs(ctx context.Context) ([]models.SubscriberFilter, error) {
	rows, err := ps.db.QueryContext(ctx, `
		SELECT subscriber_id, filters
		FROM subscriber_filters
		ORDER BY subscriber_id
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch filters: %w", err)
	}
	defer rows.Close()

	var out []models.SubscriberFilter
	for rows.Next() {
		var (
			id  int64
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("postgres: scan filter row: %w", err)
		}
		out = append(out, models.SubscriberFilter{SubscriberID: id, Spec: models.ParseFilterSpec(raw)})
	}
	return out, rows.Err()
}

func (ps *PostgresStore) AlreadyNotified(ctx context.Context, subscriberID int64, listingID string, price *int) (bool, error) {
	var exists bool
	err := ps.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notification_ledger
			WHERE subscriber_id = $1 AND listing_id = $2 AND price IS NOT DISTINCT FROM $3
		)
	`, subscriberID, listingID, nullablePrice(price)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: ledger lookup %s: %w", listingID, err)
	}
	return exists, nil
}

func (ps *PostgresStore) RecordNotified(ctx context.Context, subscriberID int64, listingID string, price *int, meta models.LedgerMeta) error {
	_, err := ps.db.ExecContext(ctx, `
		INSERT INTO notification_ledger (subscriber_id, listing_id, price, source, url, title)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (subscriber_id, listing_id, (COALESCE(price, -1))) DO NOTHING
	`, subscriberID, listingID, nullablePrice(price), meta.Source, meta.URL, meta.Title)
	if err != nil {
		return fmt.Errorf("postgres: ledger record %s: %w", listingID, err)
	}
	return nil
}

// LedgerEntries returns a subscriber's most recent notifications, newest first.
func (ps *PostgresStore) LedgerEntries(ctx context.Context, subscriberID int64, limit int) ([]models.LedgerEntry, error) {
	rows, err := ps.db.QueryContext(ctx, `
		SELECT subscriber_id, listing_id, price, source, url, title, notified_at
		FROM notification_ledger
		WHERE subscriber_id = $1
		ORDER BY notified_at DESC, id DESC
		LIMIT $2
	`, subscriberID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch ledger: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var (
			e     models.LedgerEntry
			price sql.NullInt64
		)
		if err := rows.Scan(&e.SubscriberID, &e.ListingID, &price,
			&e.Meta.Source, &e.Meta.URL, &e.Meta.Title, &e.NotifiedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan ledger row: %w", err)
		}
		if price.Valid {
			e.Price = models.IntPtr(int(price.Int64))
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}

func nullablePrice(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

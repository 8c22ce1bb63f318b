package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type WatermarkRepository interface {
	Get(ctx context.Context, stage string) (time.Time, error)
	// Advance moves the stage watermark forward; it never moves backward,
	// so overlapping runs cannot regress already-processed boundaries.
	Advance(ctx context.Context, stage string, to time.Time) error
}

type watermarkRepository struct {
	db *sql.DB
}

func NewWatermarkRepository(db *sql.DB) WatermarkRepository {
	return &watermarkRepository{db: db}
}

func (r *watermarkRepository) Get(ctx context.Context, stage string) (time.Time, error) {
	const query = `SELECT last_processed_at FROM watermarks WHERE stage = $1`
	var at time.Time
	err := r.db.QueryRowContext(ctx, query, stage).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return at, nil
}

func (r *watermarkRepository) Advance(ctx context.Context, stage string, to time.Time) error {
	const query = `
		INSERT INTO watermarks (stage, last_processed_at, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (stage) DO UPDATE SET
			last_processed_at = GREATEST(watermarks.last_processed_at, EXCLUDED.last_processed_at),
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, stage, to)
	return err
}

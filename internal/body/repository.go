package body

import (
	"context"
	"fmt"

	"smartfit-coach/internal/database"

	"github.com/jmoiron/sqlx"
)

// Repository stores weight samples and body measurements.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a new Repository.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// AddWeight appends a weight sample.
func (r *Repository) AddWeight(ctx context.Context, userID int64, date database.Date, value float64) (*WeightSample, error) {
	s := &WeightSample{UserID: userID, Date: date, Value: value}
	err := r.db.QueryRowxContext(ctx,
		r.db.Rebind(`INSERT INTO weight_samples (user_id, date, value) VALUES (?, ?, ?) RETURNING id`),
		userID, date, value,
	).Scan(&s.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert weight sample: %w", err)
	}
	return s, nil
}

// WeightsSince returns the user's samples from since onwards, oldest first.
func (r *Repository) WeightsSince(ctx context.Context, userID int64, since database.Date) ([]WeightSample, error) {
	var samples []WeightSample
	err := r.db.SelectContext(ctx, &samples, r.db.Rebind(`
		SELECT id, user_id, date, value FROM weight_samples
		WHERE user_id = ? AND date >= ?
		ORDER BY date, id`), userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list weight samples: %w", err)
	}
	return samples, nil
}

// AddMeasurement appends a body measurement row.
func (r *Repository) AddMeasurement(ctx context.Context, m Measurement) (*Measurement, error) {
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`
		INSERT INTO body_measurements (user_id, date, chest, bicep, thigh, waist, hips, abdomen, calf, neck, shoulders)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		m.UserID, m.Date, m.Chest, m.Bicep, m.Thigh, m.Waist, m.Hips, m.Abdomen, m.Calf, m.Neck, m.Shoulders,
	).Scan(&m.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert body measurement: %w", err)
	}
	return &m, nil
}

// MeasurementsSince returns the user's measurements from since onwards, oldest
// first.
func (r *Repository) MeasurementsSince(ctx context.Context, userID int64, since database.Date) ([]Measurement, error) {
	var rows []Measurement
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT id, user_id, date, chest, bicep, thigh, waist, hips, abdomen, calf, neck, shoulders
		FROM body_measurements
		WHERE user_id = ? AND date >= ?
		ORDER BY date, id`), userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list body measurements: %w", err)
	}
	return rows, nil
}

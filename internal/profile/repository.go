package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Repository stores users and profiles.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a new Repository.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// CreateUser inserts an account and an empty profile.
func (r *Repository) CreateUser(ctx context.Context, username string, telegramID *int64, isAdmin bool) (*User, error) {
	user := &User{Username: username, TelegramID: telegramID, IsAdmin: isAdmin}
	err := r.db.QueryRowxContext(ctx,
		r.db.Rebind(`INSERT INTO users (username, telegram_id, is_admin) VALUES (?, ?, ?) RETURNING id`),
		username, telegramID, isAdmin,
	).Scan(&user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user %s: %w", username, err)
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO profiles (user_id) VALUES (?)`), user.ID); err != nil {
		return nil, fmt.Errorf("failed to insert profile for user %d: %w", user.ID, err)
	}
	return user, nil
}

// GetUser returns the user with the given id.
func (r *Repository) GetUser(ctx context.Context, id int64) (*User, error) {
	var user User
	err := r.db.GetContext(ctx, &user, r.db.Rebind(`SELECT id, username, telegram_id, is_admin FROM users WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return &user, nil
}

// UserByTelegramID maps a Telegram account to a user.
func (r *Repository) UserByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	var user User
	err := r.db.GetContext(ctx, &user, r.db.Rebind(`SELECT id, username, telegram_id, is_admin FROM users WHERE telegram_id = ?`), telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by telegram id: %w", err)
	}
	return &user, nil
}

// GetProfile returns the user's profile. A user without a profile row gets an
// empty one.
func (r *Repository) GetProfile(ctx context.Context, userID int64) (*Profile, error) {
	var p Profile
	err := r.db.GetContext(ctx, &p,
		r.db.Rebind(`SELECT user_id, goal_description, goal_category, goal_explanation FROM profiles WHERE user_id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return &Profile{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile for user %d: %w", userID, err)
	}
	return &p, nil
}

// Save upserts the profile.
func (r *Repository) Save(ctx context.Context, p *Profile) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO profiles (user_id, goal_description, goal_category, goal_explanation)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			goal_description = excluded.goal_description,
			goal_category = excluded.goal_category,
			goal_explanation = excluded.goal_explanation`),
		p.UserID, p.GoalDescription, p.GoalCategory, p.GoalExplanation)
	if err != nil {
		return fmt.Errorf("failed to save profile for user %d: %w", p.UserID, err)
	}
	return nil
}

// GoalDescription returns the user's goal text, empty when unset.
func (r *Repository) GoalDescription(ctx context.Context, userID int64) (string, error) {
	p, err := r.GetProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	return p.GoalDescription, nil
}

package gym

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"smartfit-coach/internal/database"
	"smartfit-coach/internal/matcher"

	"github.com/jmoiron/sqlx"
)

const exerciseColumns = `id, author_id, name, force, level, mechanic, category, equipment, primary_muscle,
	secondary_muscles, instructions, images`

const setColumns = `s.id, s.plan_item_id, s.exercise_id, s.position, s.set_number, s.warmup, s.prescribed_reps_1,
	s.prescribed_reps_2, s.actual_reps_1, s.actual_reps_2, s.rir, s.rest_seconds, s.weight, s.tempo`

// Repository stores exercises and gym plans. Sections, items and sets are owned
// through their plan's author.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a new Repository.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// CreateExercise validates and inserts an exercise.
func (r *Repository) CreateExercise(ctx context.Context, e *Exercise) error {
	if err := e.Validate(); err != nil {
		return err
	}
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`
		INSERT INTO exercises (author_id, name, force, level, mechanic, category, equipment, primary_muscle,
			secondary_muscles, instructions, images)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		e.AuthorID, e.Name, e.Force, e.Level, e.Mechanic, e.Category, e.Equipment, e.PrimaryMuscle,
		e.SecondaryMuscles, e.Instructions, e.Images,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to insert exercise %q: %w", e.Name, err)
	}
	return nil
}

// GetExercise returns an exercise visible to userID.
func (r *Repository) GetExercise(ctx context.Context, userID, id int64) (*Exercise, error) {
	var e Exercise
	err := r.db.GetContext(ctx, &e, r.db.Rebind(`SELECT `+exerciseColumns+` FROM exercises
		WHERE id = ? AND (author_id = ? OR author_id IS NULL)`), id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get exercise %d: %w", id, err)
	}
	return &e, nil
}

// CreatePlan rejects plans that do not run Monday to Sunday, then inserts.
func (r *Repository) CreatePlan(ctx context.Context, p *Plan) error {
	if err := ValidatePlanDates(p.StartDate, p.EndDate); err != nil {
		return err
	}
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`
		INSERT INTO gym_plans (author_id, start_date, end_date, note) VALUES (?, ?, ?, ?) RETURNING id`),
		p.AuthorID, p.StartDate, p.EndDate, p.Note,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to insert gym plan: %w", err)
	}
	return nil
}

// GetPlan returns the plan if it belongs to userID.
func (r *Repository) GetPlan(ctx context.Context, userID, planID int64) (*Plan, error) {
	var p Plan
	err := r.db.GetContext(ctx, &p, r.db.Rebind(`SELECT id, author_id, start_date, end_date, note FROM gym_plans
		WHERE id = ? AND author_id = ?`), planID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get gym plan %d: %w", planID, err)
	}
	return &p, nil
}

// CreateSection inserts a training day into a plan.
func (r *Repository) CreateSection(ctx context.Context, s *Section) error {
	if s.Day.Offset() < 0 {
		return fmt.Errorf("invalid day %q", s.Day)
	}
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`
		INSERT INTO gym_plan_sections (plan_id, day, type, note) VALUES (?, ?, ?, ?) RETURNING id`),
		s.PlanID, s.Day, s.Type, s.Note,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to insert gym section: %w", err)
	}
	return nil
}

// GetSection returns the section if its plan belongs to userID.
func (r *Repository) GetSection(ctx context.Context, userID, sectionID int64) (*Section, error) {
	var s Section
	err := r.db.GetContext(ctx, &s, r.db.Rebind(`
		SELECT gs.id, gs.plan_id, gs.day, gs.type, gs.note
		FROM gym_plan_sections gs
		JOIN gym_plans gp ON gp.id = gs.plan_id
		WHERE gs.id = ? AND gp.author_id = ?`), sectionID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get gym section %d: %w", sectionID, err)
	}
	return &s, nil
}

// Sections lists a plan's sections in insertion order.
func (r *Repository) Sections(ctx context.Context, planID int64) ([]Section, error) {
	var out []Section
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`SELECT id, plan_id, day, type, note FROM gym_plan_sections
		WHERE plan_id = ? ORDER BY id`), planID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sections of gym plan %d: %w", planID, err)
	}
	return out, nil
}

// CreateItem inserts an exercise slot into a section.
func (r *Repository) CreateItem(ctx context.Context, it *Item) error {
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`
		INSERT INTO gym_plan_items (section_id, position, notes, intensity_techniques) VALUES (?, ?, ?, ?) RETURNING id`),
		it.SectionID, it.Position, it.Notes, it.IntensityTechniques,
	).Scan(&it.ID)
	if err != nil {
		return fmt.Errorf("failed to insert gym item: %w", err)
	}
	return nil
}

// GetItem returns the item if its plan belongs to userID.
func (r *Repository) GetItem(ctx context.Context, userID, itemID int64) (*Item, error) {
	var it Item
	err := r.db.GetContext(ctx, &it, r.db.Rebind(`
		SELECT gi.id, gi.section_id, gi.position, gi.notes, gi.intensity_techniques
		FROM gym_plan_items gi
		JOIN gym_plan_sections gs ON gs.id = gi.section_id
		JOIN gym_plans gp ON gp.id = gs.plan_id
		WHERE gi.id = ? AND gp.author_id = ?`), itemID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get gym item %d: %w", itemID, err)
	}
	return &it, nil
}

// Items lists a section's items by position.
func (r *Repository) Items(ctx context.Context, sectionID int64) ([]Item, error) {
	var out []Item
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`SELECT id, section_id, position, notes, intensity_techniques
		FROM gym_plan_items WHERE section_id = ? ORDER BY position, id`), sectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items of section %d: %w", sectionID, err)
	}
	return out, nil
}

// AddSet inserts a set.
func (r *Repository) AddSet(ctx context.Context, s *SetDetail) error {
	return insertSet(ctx, r.db, s)
}

func insertSet(ctx context.Context, q sqlx.ExtContext, s *SetDetail) error {
	err := sqlx.GetContext(ctx, q, &s.ID, q.Rebind(`
		INSERT INTO gym_set_details (plan_item_id, exercise_id, position, set_number, warmup, prescribed_reps_1,
			prescribed_reps_2, actual_reps_1, actual_reps_2, rir, rest_seconds, weight, tempo)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		s.PlanItemID, s.ExerciseID, s.Position, s.SetNumber, s.Warmup, s.PrescribedReps1,
		s.PrescribedReps2, s.ActualReps1, s.ActualReps2, s.RIR, s.RestSeconds, s.Weight, s.Tempo)
	if err != nil {
		return fmt.Errorf("failed to insert set: %w", err)
	}
	return nil
}

// Sets lists an item's sets by position with their exercise names.
func (r *Repository) Sets(ctx context.Context, itemID int64) ([]SetWithExercise, error) {
	return listSets(ctx, r.db, itemID)
}

func listSets(ctx context.Context, q sqlx.ExtContext, itemID int64) ([]SetWithExercise, error) {
	var out []SetWithExercise
	err := sqlx.SelectContext(ctx, q, &out, q.Rebind(`
		SELECT `+setColumns+`, e.name AS exercise_name
		FROM gym_set_details s
		JOIN exercises e ON e.id = s.exercise_id
		WHERE s.plan_item_id = ?
		ORDER BY s.position, s.id`), itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sets of item %d: %w", itemID, err)
	}
	return out, nil
}

// DeleteSet removes a set owned by userID. When it was the item's last set the
// item is removed too; itemDeleted reports that.
func (r *Repository) DeleteSet(ctx context.Context, userID, setID int64) (itemDeleted bool, err error) {
	err = database.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var itemID int64
		err := tx.GetContext(ctx, &itemID, tx.Rebind(`
			SELECT s.plan_item_id
			FROM gym_set_details s
			JOIN gym_plan_items gi ON gi.id = s.plan_item_id
			JOIN gym_plan_sections gs ON gs.id = gi.section_id
			JOIN gym_plans gp ON gp.id = gs.plan_id
			WHERE s.id = ? AND gp.author_id = ?`), setID, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to find set %d: %w", setID, err)
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM gym_set_details WHERE id = ?`), setID); err != nil {
			return fmt.Errorf("failed to delete set %d: %w", setID, err)
		}

		var remaining int
		if err := tx.GetContext(ctx, &remaining, tx.Rebind(`SELECT COUNT(*) FROM gym_set_details WHERE plan_item_id = ?`), itemID); err != nil {
			return fmt.Errorf("failed to count sets of item %d: %w", itemID, err)
		}
		if remaining > 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM gym_plan_items WHERE id = ?`), itemID); err != nil {
			return fmt.Errorf("failed to delete empty item %d: %w", itemID, err)
		}
		itemDeleted = true
		return nil
	})
	return itemDeleted, err
}

// LoggedSet is a performed working set with the week it belongs to.
type LoggedSet struct {
	Date       database.Date `db:"start_date"`
	ActualReps int           `db:"actual_reps_1"`
	Weight     *float64      `db:"weight"`
	RIR        *int          `db:"rir"`
}

// RecentSets returns the user's latest performed working sets of an exercise,
// newest first.
func (r *Repository) RecentSets(ctx context.Context, userID, exerciseID int64, limit int) ([]LoggedSet, error) {
	var out []LoggedSet
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
		SELECT gp.start_date, s.actual_reps_1, s.weight, s.rir
		FROM gym_set_details s
		JOIN gym_plan_items gi ON gi.id = s.plan_item_id
		JOIN gym_plan_sections gs ON gs.id = gi.section_id
		JOIN gym_plans gp ON gp.id = gs.plan_id
		WHERE gp.author_id = ? AND s.exercise_id = ? AND s.warmup = ? AND s.actual_reps_1 IS NOT NULL
		ORDER BY gp.start_date DESC, s.id DESC
		LIMIT ?`), userID, exerciseID, false, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent sets of exercise %d: %w", exerciseID, err)
	}
	return out, nil
}

// SetPlanNote writes the plan note.
func (r *Repository) SetPlanNote(ctx context.Context, planID int64, note string) error {
	return r.exec(ctx, `UPDATE gym_plans SET note = ? WHERE id = ?`, note, planID)
}

// SetSectionNote writes the section note.
func (r *Repository) SetSectionNote(ctx context.Context, sectionID int64, note string) error {
	return r.exec(ctx, `UPDATE gym_plan_sections SET note = ? WHERE id = ?`, note, sectionID)
}

// SetSectionType writes the section classification.
func (r *Repository) SetSectionType(ctx context.Context, sectionID int64, sectionType string) error {
	return r.exec(ctx, `UPDATE gym_plan_sections SET type = ? WHERE id = ?`, sectionType, sectionID)
}

// SetItemNotes writes the item notes.
func (r *Repository) SetItemNotes(ctx context.Context, itemID int64, notes string) error {
	return r.exec(ctx, `UPDATE gym_plan_items SET notes = ? WHERE id = ?`, notes, itemID)
}

func (r *Repository) exec(ctx context.Context, query string, args ...any) error {
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to update: %w", err)
	}
	return nil
}

// Exercises is the exercise catalog visible to a user, for the entity matcher.
func (r *Repository) Exercises() matcher.Catalog {
	return exerciseCatalog{db: r.db}
}

type exerciseCatalog struct {
	db *sqlx.DB
}

func (exerciseCatalog) Kind() string { return "exercise" }

func (c exerciseCatalog) SearchByKeywords(ctx context.Context, userID int64, keywords []string) ([]matcher.Candidate, error) {
	clause, args := matcher.KeywordClause("name", keywords)
	var out []matcher.Candidate
	err := c.db.SelectContext(ctx, &out, c.db.Rebind(`SELECT id, name FROM exercises
		WHERE (author_id = ? OR author_id IS NULL) AND `+clause+` ORDER BY id`), append([]any{userID}, args...)...)
	return out, err
}

func (c exerciseCatalog) Sample(ctx context.Context, userID int64, limit int) ([]matcher.Candidate, error) {
	var out []matcher.Candidate
	err := c.db.SelectContext(ctx, &out, c.db.Rebind(`SELECT id, name FROM exercises
		WHERE author_id = ? OR author_id IS NULL ORDER BY RANDOM() LIMIT ?`), userID, limit)
	return out, err
}

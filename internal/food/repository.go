package food

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"smartfit-coach/internal/matcher"

	"github.com/jmoiron/sqlx"
)

const itemColumns = `id, author_id, name, brand, barcode, kcal_per_100g, protein_per_100g, carbs_per_100g,
	sugars_per_100g, fats_per_100g, saturated_fats_per_100g, fiber_per_100g`

const planColumns = `id, author_id, start_date, end_date, max_kcal, max_protein, max_carbs, max_fats`

// Repository stores food items, plans, sections and plan items.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a new Repository.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// CreateItem inserts a food item and sets its id.
func (r *Repository) CreateItem(ctx context.Context, item *Item) error {
	return insertItem(ctx, r.db, item)
}

func insertItem(ctx context.Context, q sqlx.ExtContext, item *Item) error {
	err := sqlx.GetContext(ctx, q, &item.ID, q.Rebind(`
		INSERT INTO food_items (author_id, name, brand, barcode, kcal_per_100g, protein_per_100g, carbs_per_100g,
			sugars_per_100g, fats_per_100g, saturated_fats_per_100g, fiber_per_100g)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		item.AuthorID, item.Name, item.Brand, item.Barcode, item.Kcal, item.Protein, item.Carbs,
		item.Sugars, item.Fats, item.SaturatedFats, item.Fiber)
	if err != nil {
		return fmt.Errorf("failed to insert food item %q: %w", item.Name, err)
	}
	return nil
}

// GetItem returns a food item visible to userID.
func (r *Repository) GetItem(ctx context.Context, userID, id int64) (*Item, error) {
	var item Item
	err := r.db.GetContext(ctx, &item, r.db.Rebind(`SELECT `+itemColumns+` FROM food_items
		WHERE id = ? AND (author_id = ? OR author_id IS NULL)`), id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get food item %d: %w", id, err)
	}
	return &item, nil
}

// FindItemID looks an item up by its name and barcode.
func (r *Repository) FindItemID(ctx context.Context, name, barcode string) (int64, bool, error) {
	var id int64
	err := r.db.GetContext(ctx, &id, r.db.Rebind(`SELECT id FROM food_items WHERE name = ? AND barcode = ? ORDER BY id LIMIT 1`), name, barcode)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up food item %q: %w", name, err)
	}
	return id, true, nil
}

// CreatePlan inserts a food plan and sets its id.
func (r *Repository) CreatePlan(ctx context.Context, plan *Plan) error {
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`
		INSERT INTO food_plans (author_id, start_date, end_date, max_kcal, max_protein, max_carbs, max_fats)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		plan.AuthorID, plan.StartDate, plan.EndDate, plan.MaxKcal, plan.MaxProtein, plan.MaxCarbs, plan.MaxFats,
	).Scan(&plan.ID)
	if err != nil {
		return fmt.Errorf("failed to insert food plan: %w", err)
	}
	return nil
}

// GetPlan returns the plan if it belongs to userID.
func (r *Repository) GetPlan(ctx context.Context, userID, planID int64) (*Plan, error) {
	var plan Plan
	err := r.db.GetContext(ctx, &plan, r.db.Rebind(`SELECT `+planColumns+` FROM food_plans WHERE id = ? AND author_id = ?`), planID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get food plan %d: %w", planID, err)
	}
	return &plan, nil
}

// UpdatePlanMaxima writes new daily maximums onto a plan.
func (r *Repository) UpdatePlanMaxima(ctx context.Context, plan *Plan) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE food_plans SET max_kcal = ?, max_protein = ?, max_carbs = ?, max_fats = ?
		WHERE id = ? AND author_id = ?`),
		plan.MaxKcal, plan.MaxProtein, plan.MaxCarbs, plan.MaxFats, plan.ID, plan.AuthorID)
	if err != nil {
		return fmt.Errorf("failed to update food plan %d: %w", plan.ID, err)
	}
	return nil
}

// CreateSection inserts a section and sets its id.
func (r *Repository) CreateSection(ctx context.Context, section *Section) error {
	return insertSection(ctx, r.db, section)
}

func insertSection(ctx context.Context, q sqlx.ExtContext, section *Section) error {
	err := sqlx.GetContext(ctx, q, &section.ID, q.Rebind(`
		INSERT INTO food_plan_sections (author_id, name, start_time) VALUES (?, ?, ?) RETURNING id`),
		section.AuthorID, section.Name, section.StartTime)
	if err != nil {
		return fmt.Errorf("failed to insert section %q: %w", section.Name, err)
	}
	return nil
}

// GetSection returns the section if it belongs to userID.
func (r *Repository) GetSection(ctx context.Context, userID, sectionID int64) (*Section, error) {
	var s Section
	err := r.db.GetContext(ctx, &s, r.db.Rebind(`SELECT id, author_id, name, start_time FROM food_plan_sections
		WHERE id = ? AND author_id = ?`), sectionID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get section %d: %w", sectionID, err)
	}
	return &s, nil
}

// AddPlanItem inserts a plan item and sets its id.
func (r *Repository) AddPlanItem(ctx context.Context, item *PlanItem) error {
	return insertPlanItem(ctx, r.db, item)
}

func insertPlanItem(ctx context.Context, q sqlx.ExtContext, item *PlanItem) error {
	err := sqlx.GetContext(ctx, q, &item.ID, q.Rebind(`
		INSERT INTO food_plan_items (plan_id, food_item_id, section_id, quantity_in_grams, eaten)
		VALUES (?, ?, ?, ?, ?) RETURNING id`),
		item.PlanID, item.FoodItemID, item.SectionID, item.QuantityInGrams, item.Eaten)
	if err != nil {
		return fmt.Errorf("failed to insert plan item: %w", err)
	}
	return nil
}

// PlanItems lists a plan's items with their food, in insertion order.
func (r *Repository) PlanItems(ctx context.Context, planID int64) ([]PlanItemDetail, error) {
	var items []PlanItemDetail
	err := r.db.SelectContext(ctx, &items, r.db.Rebind(`
		SELECT fpi.id, fpi.plan_id, fpi.food_item_id, fpi.section_id, fpi.quantity_in_grams, fpi.eaten,
			fi.name, fi.kcal_per_100g, fi.protein_per_100g, fi.carbs_per_100g, fi.sugars_per_100g,
			fi.fats_per_100g, fi.saturated_fats_per_100g, fi.fiber_per_100g
		FROM food_plan_items fpi
		JOIN food_items fi ON fi.id = fpi.food_item_id
		WHERE fpi.plan_id = ?
		ORDER BY fpi.id`), planID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items of plan %d: %w", planID, err)
	}
	return items, nil
}

const totalsSelect = `
	SELECT
		COALESCE(SUM(fi.kcal_per_100g * fpi.quantity_in_grams / 100), 0) AS kcal,
		COALESCE(SUM(fi.protein_per_100g * fpi.quantity_in_grams / 100), 0) AS protein,
		COALESCE(SUM(fi.carbs_per_100g * fpi.quantity_in_grams / 100), 0) AS carbs,
		COALESCE(SUM(fi.fats_per_100g * fpi.quantity_in_grams / 100), 0) AS fats
	FROM food_plan_items fpi
	JOIN food_items fi ON fi.id = fpi.food_item_id
	WHERE fpi.plan_id = ?`

// PlanTotals sums the macros of every item in the plan.
func (r *Repository) PlanTotals(ctx context.Context, planID int64) (Totals, error) {
	var t Totals
	if err := r.db.GetContext(ctx, &t, r.db.Rebind(totalsSelect), planID); err != nil {
		return Totals{}, fmt.Errorf("failed to sum plan %d: %w", planID, err)
	}
	return t, nil
}

// SectionTotals sums the macros of the plan's items in one section.
func (r *Repository) SectionTotals(ctx context.Context, planID, sectionID int64) (Totals, error) {
	var t Totals
	if err := r.db.GetContext(ctx, &t, r.db.Rebind(totalsSelect+` AND fpi.section_id = ?`), planID, sectionID); err != nil {
		return Totals{}, fmt.Errorf("failed to sum section %d of plan %d: %w", sectionID, planID, err)
	}
	return t, nil
}

// ResetEaten clears the eaten flag on items of multi-day plans and returns how
// many items changed.
func (r *Repository) ResetEaten(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE food_plan_items SET eaten = ?
		WHERE eaten = ? AND plan_id IN (SELECT id FROM food_plans WHERE start_date <> end_date)`), false, true)
	if err != nil {
		return 0, fmt.Errorf("failed to reset eaten flags: %w", err)
	}
	return res.RowsAffected()
}

// Items is the food catalog visible to a user, for the entity matcher.
func (r *Repository) Items() matcher.Catalog {
	return itemCatalog{db: r.db}
}

// Sections is the user's section catalog, for the entity matcher.
func (r *Repository) Sections() matcher.Catalog {
	return sectionCatalog{db: r.db}
}

type itemCatalog struct {
	db *sqlx.DB
}

func (itemCatalog) Kind() string { return "food" }

func (c itemCatalog) SearchByKeywords(ctx context.Context, userID int64, keywords []string) ([]matcher.Candidate, error) {
	clause, args := matcher.KeywordClause("name", keywords)
	var out []matcher.Candidate
	err := c.db.SelectContext(ctx, &out, c.db.Rebind(`SELECT id, name FROM food_items
		WHERE (author_id = ? OR author_id IS NULL) AND `+clause+` ORDER BY id`), append([]any{userID}, args...)...)
	return out, err
}

func (c itemCatalog) Sample(ctx context.Context, userID int64, limit int) ([]matcher.Candidate, error) {
	var out []matcher.Candidate
	err := c.db.SelectContext(ctx, &out, c.db.Rebind(`SELECT id, name FROM food_items
		WHERE author_id = ? OR author_id IS NULL ORDER BY RANDOM() LIMIT ?`), userID, limit)
	return out, err
}

type sectionCatalog struct {
	db *sqlx.DB
}

func (sectionCatalog) Kind() string { return "meal of the day" }

func (c sectionCatalog) SearchByKeywords(ctx context.Context, userID int64, keywords []string) ([]matcher.Candidate, error) {
	clause, args := matcher.KeywordClause("name", keywords)
	var out []matcher.Candidate
	err := c.db.SelectContext(ctx, &out, c.db.Rebind(`SELECT id, name FROM food_plan_sections
		WHERE author_id = ? AND `+clause+` ORDER BY id`), append([]any{userID}, args...)...)
	return out, err
}

func (c sectionCatalog) Sample(ctx context.Context, userID int64, limit int) ([]matcher.Candidate, error) {
	var out []matcher.Candidate
	err := c.db.SelectContext(ctx, &out, c.db.Rebind(`SELECT id, name FROM food_plan_sections
		WHERE author_id = ? ORDER BY id LIMIT ?`), userID, limit)
	return out, err
}

// QuantityTarget reconciles quantity_in_grams of the items of one plan. Items of
// other plans are reported as not found.
type QuantityTarget struct {
	PlanID int64
}

func (t QuantityTarget) Current(ctx context.Context, q sqlx.ExtContext, id int64) (float64, bool, error) {
	var quantity float64
	err := sqlx.GetContext(ctx, q, &quantity,
		q.Rebind(`SELECT quantity_in_grams FROM food_plan_items WHERE id = ? AND plan_id = ?`), id, t.PlanID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return quantity, true, nil
}

func (t QuantityTarget) Update(ctx context.Context, q sqlx.ExtContext, id int64, value float64) error {
	_, err := q.ExecContext(ctx, q.Rebind(`UPDATE food_plan_items SET quantity_in_grams = ? WHERE id = ? AND plan_id = ?`), value, id, t.PlanID)
	return err
}

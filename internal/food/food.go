package food

import (
	"errors"
	"fmt"
	"strings"

	"smartfit-coach/internal/database"
)

const (
	// MinQuantity is the smallest quantity in grams a generated adjustment may set.
	MinQuantity = 10.0
	// MaxQuantity is the largest quantity in grams macro optimization may propose.
	MaxQuantity = 200.0
	// Materiality is the smallest quantity change worth writing.
	Materiality = 0.01
)

var (
	ErrNotFound = errors.New("not found")
	// ErrEmptyGeneration is returned when the model produced nothing usable and
	// the plan was left untouched.
	ErrEmptyGeneration = errors.New("generation returned no usable foods")
)

// ValidationError reports generated values that break the plan's constraints.
// Nothing is written when it is returned.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid generated values: %s", strings.Join(e.Problems, "; "))
}

// Nutrients are values per 100 g.
type Nutrients struct {
	Kcal          float64 `db:"kcal_per_100g" json:"kcal_per_100g"`
	Protein       float64 `db:"protein_per_100g" json:"protein_per_100g"`
	Carbs         float64 `db:"carbs_per_100g" json:"carbs_per_100g"`
	Sugars        float64 `db:"sugars_per_100g" json:"sugars_per_100g"`
	Fats          float64 `db:"fats_per_100g" json:"fats_per_100g"`
	SaturatedFats float64 `db:"saturated_fats_per_100g" json:"saturated_fats_per_100g"`
	Fiber         float64 `db:"fiber_per_100g" json:"fiber_per_100g"`
}

func (n Nutrients) validate() error {
	values := map[string]float64{
		"kcal": n.Kcal, "protein": n.Protein, "carbs": n.Carbs, "sugars": n.Sugars,
		"fats": n.Fats, "saturated_fats": n.SaturatedFats, "fiber": n.Fiber,
	}
	for name, v := range values {
		if v < 0 {
			return fmt.Errorf("negative %s", name)
		}
	}
	return nil
}

// Item is a food with its nutritional values. Items without an author are shared.
type Item struct {
	ID       int64  `db:"id" json:"id"`
	AuthorID *int64 `db:"author_id" json:"author_id"`
	Name     string `db:"name" json:"name"`
	Brand    string `db:"brand" json:"brand"`
	Barcode  string `db:"barcode" json:"barcode"`
	Nutrients
}

// Plan is a food plan with its daily maximums. A zero maximum is unconstrained.
type Plan struct {
	ID         int64         `db:"id" json:"id"`
	AuthorID   int64         `db:"author_id" json:"author_id"`
	StartDate  database.Date `db:"start_date" json:"start_date"`
	EndDate    database.Date `db:"end_date" json:"end_date"`
	MaxKcal    float64       `db:"max_kcal" json:"max_kcal"`
	MaxProtein float64       `db:"max_protein" json:"max_protein"`
	MaxCarbs   float64       `db:"max_carbs" json:"max_carbs"`
	MaxFats    float64       `db:"max_fats" json:"max_fats"`
}

// Section is a moment of the day such as breakfast. Sections are reused across
// the author's plans.
type Section struct {
	ID        int64  `db:"id" json:"id"`
	AuthorID  int64  `db:"author_id" json:"author_id"`
	Name      string `db:"name" json:"name"`
	StartTime string `db:"start_time" json:"start_time"`
}

// PlanItem is a quantity of a food in a plan.
type PlanItem struct {
	ID              int64   `db:"id" json:"id"`
	PlanID          int64   `db:"plan_id" json:"plan_id"`
	FoodItemID      int64   `db:"food_item_id" json:"food_item_id"`
	SectionID       *int64  `db:"section_id" json:"section_id"`
	QuantityInGrams float64 `db:"quantity_in_grams" json:"quantity_in_grams"`
	Eaten           bool    `db:"eaten" json:"eaten"`
}

// PlanItemDetail is a plan item joined with its food.
type PlanItemDetail struct {
	PlanItem
	Name string `db:"name" json:"name"`
	Nutrients
}

// Totals are macro sums in grams, kcal for energy.
type Totals struct {
	Kcal    float64 `db:"kcal" json:"kcal"`
	Protein float64 `db:"protein" json:"protein"`
	Carbs   float64 `db:"carbs" json:"carbs"`
	Fats    float64 `db:"fats" json:"fats"`
}

func (t *Totals) add(n Nutrients, grams float64) {
	t.Kcal += n.Kcal * grams / 100
	t.Protein += n.Protein * grams / 100
	t.Carbs += n.Carbs * grams / 100
	t.Fats += n.Fats * grams / 100
}

// ResolvedFood is a generated food and the catalog item it resolved to. FoodItemID
// is nil when it could neither be matched nor fabricated.
type ResolvedFood struct {
	Meal         string   `json:"meal"`
	Keywords     []string `json:"keywords"`
	Quantity     float64  `json:"quantity"`
	FoodItemID   *int64   `json:"food_item_id"`
	FoodItemName *string  `json:"food_item_name"`
	Fabricated   bool     `json:"fabricated"`
}

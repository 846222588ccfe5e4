package gym

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"smartfit-coach/internal/database"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrInvalidPlanDates is returned when a plan does not run Monday to Sunday.
	ErrInvalidPlanDates = errors.New("gym plan must start on a Monday and end on the following Sunday")
	// ErrUnknownTechnique is returned for intensity techniques outside Techniques.
	ErrUnknownTechnique = errors.New("unknown intensity technique")
	// ErrNoSets is returned when an item has no working sets to work from.
	ErrNoSets = errors.New("plan item has no working sets")
)

// Day is a day of the week as stored on sections.
type Day string

// Days lists the week from Monday.
var Days = []Day{"lun", "mar", "mer", "gio", "ven", "sab", "dom"}

var dayNames = map[Day]string{
	"lun": "Lunedì", "mar": "Martedì", "mer": "Mercoledì", "gio": "Giovedì",
	"ven": "Venerdì", "sab": "Sabato", "dom": "Domenica",
}

// Offset is the number of days after Monday, or -1 for an unknown day.
func (d Day) Offset() int {
	return slices.Index(Days, d)
}

// Name is the full day name.
func (d Day) Name() string {
	if n, ok := dayNames[d]; ok {
		return n
	}
	return string(d)
}

// Techniques are the accepted intensity techniques.
var Techniques = []string{
	"linear", "drop_set", "super_set", "forced_reps", "half_reps", "rest_pause", "myoreps",
	"pre_fatigue", "negative", "peak_contraction", "tempo", "isometric", "seven_seven",
	"cluster", "pyramid", "wave_loading", "isometric_overload", "accomodating", "pause_reps",
	"emom", "amrap", "death_set",
}

// ValidTechnique reports whether t is one of Techniques.
func ValidTechnique(t string) bool {
	return slices.Contains(Techniques, t)
}

var (
	forces     = []string{"pull", "push", "static"}
	levels     = []string{"beginner", "intermediate", "expert"}
	mechanics  = []string{"compound", "isolation"}
	categories = []string{"cardio", "olympic weightlifting", "plyometrics", "powerlifting", "strength", "stretching", "strongman"}
	equipments = []string{
		"bands", "barbell", "body only", "cable", "dumbbell", "e-z curl bar", "exercise ball",
		"foam roll", "kettlebells", "machine", "medicine ball", "other",
	}
	muscles = []string{
		"abdominals", "abductors", "adductors", "biceps", "calves", "chest", "forearms", "glutes",
		"hamstrings", "lats", "lower back", "middle back", "neck", "quadriceps", "shoulders", "traps", "triceps",
	}
)

// Exercise is a catalog entry. Entries without an author are shared reference
// data.
type Exercise struct {
	ID               int64               `db:"id" json:"id"`
	AuthorID         *int64              `db:"author_id" json:"author_id"`
	Name             string              `db:"name" json:"name"`
	Force            string              `db:"force" json:"force"`
	Level            string              `db:"level" json:"level"`
	Mechanic         string              `db:"mechanic" json:"mechanic"`
	Category         string              `db:"category" json:"category"`
	Equipment        string              `db:"equipment" json:"equipment"`
	PrimaryMuscle    string              `db:"primary_muscle" json:"primary_muscle"`
	SecondaryMuscles database.StringList `db:"secondary_muscles" json:"secondary_muscles"`
	Instructions     string              `db:"instructions" json:"instructions"`
	Images           database.StringList `db:"images" json:"images"`
}

// Validate checks the enumerated fields. Empty values are allowed.
func (e Exercise) Validate() error {
	if e.Name == "" {
		return errors.New("exercise name is required")
	}
	checks := []struct {
		field, value string
		allowed      []string
	}{
		{"force", e.Force, forces},
		{"level", e.Level, levels},
		{"mechanic", e.Mechanic, mechanics},
		{"category", e.Category, categories},
		{"equipment", e.Equipment, equipments},
		{"primary_muscle", e.PrimaryMuscle, muscles},
	}
	for _, c := range checks {
		if c.value != "" && !slices.Contains(c.allowed, c.value) {
			return fmt.Errorf("invalid %s %q", c.field, c.value)
		}
	}
	for _, m := range e.SecondaryMuscles {
		if !slices.Contains(muscles, m) {
			return fmt.Errorf("invalid secondary muscle %q", m)
		}
	}
	return nil
}

// Plan is one training week.
type Plan struct {
	ID        int64         `db:"id" json:"id"`
	AuthorID  int64         `db:"author_id" json:"author_id"`
	StartDate database.Date `db:"start_date" json:"start_date"`
	EndDate   database.Date `db:"end_date" json:"end_date"`
	Note      string        `db:"note" json:"note"`
}

// ValidatePlanDates accepts a Monday start and the Sunday after it.
func ValidatePlanDates(start, end database.Date) error {
	if start.IsZero() || end.IsZero() {
		return ErrInvalidPlanDates
	}
	if start.Weekday() != time.Monday || start.DaysUntil(end) != 6 {
		return ErrInvalidPlanDates
	}
	return nil
}

// Section is one training day of a plan.
type Section struct {
	ID     int64  `db:"id" json:"id"`
	PlanID int64  `db:"plan_id" json:"plan_id"`
	Day    Day    `db:"day" json:"day"`
	Type   string `db:"type" json:"type"`
	Note   string `db:"note" json:"note"`
}

// Item is one exercise slot of a section, holding its sets.
type Item struct {
	ID                  int64               `db:"id" json:"id"`
	SectionID           int64               `db:"section_id" json:"section_id"`
	Position            int                 `db:"position" json:"position"`
	Notes               string              `db:"notes" json:"notes"`
	IntensityTechniques database.StringList `db:"intensity_techniques" json:"intensity_techniques"`
}

// SetDetail is one prescribed set. Tempo is "eccentric-pause-concentric".
type SetDetail struct {
	ID              int64    `db:"id" json:"id"`
	PlanItemID      int64    `db:"plan_item_id" json:"plan_item_id"`
	ExerciseID      int64    `db:"exercise_id" json:"exercise_id"`
	Position        int      `db:"position" json:"position"`
	SetNumber       int      `db:"set_number" json:"set_number"`
	Warmup          bool     `db:"warmup" json:"warmup"`
	PrescribedReps1 int      `db:"prescribed_reps_1" json:"prescribed_reps_1"`
	PrescribedReps2 *int     `db:"prescribed_reps_2" json:"prescribed_reps_2"`
	ActualReps1     *int     `db:"actual_reps_1" json:"actual_reps_1"`
	ActualReps2     *int     `db:"actual_reps_2" json:"actual_reps_2"`
	RIR             *int     `db:"rir" json:"rir"`
	RestSeconds     *int     `db:"rest_seconds" json:"rest_seconds"`
	Weight          *float64 `db:"weight" json:"weight"`
	Tempo           string   `db:"tempo" json:"tempo"`
}

// SetWithExercise is a set joined with its exercise name.
type SetWithExercise struct {
	SetDetail
	ExerciseName string `db:"exercise_name" json:"exercise_name"`
}

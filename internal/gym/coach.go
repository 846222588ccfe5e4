package gym

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"smartfit-coach/internal/database"
	"smartfit-coach/internal/generation"
	"smartfit-coach/internal/matcher"
	"smartfit-coach/internal/prompt"
	"smartfit-coach/internal/reconcile"

	"github.com/jmoiron/sqlx"
)

// suggestionHistory is how many logged sets feed a load suggestion.
const suggestionHistory = 20

// GoalSource provides the user's goal description.
type GoalSource interface {
	GoalDescription(ctx context.Context, userID int64) (string, error)
}

// Coach runs the workout generations.
type Coach struct {
	repo      *Repository
	matcher   *matcher.Matcher
	pipelines generation.Pipelines
	goals     GoalSource
	language  string
}

// NewCoach creates a new Coach.
func NewCoach(repo *Repository, m *matcher.Matcher, pipelines generation.Pipelines, goals GoalSource, language string) *Coach {
	return &Coach{repo: repo, matcher: m, pipelines: pipelines, goals: goals, language: language}
}

func (c *Coach) note(ctx context.Context, scope, summary string) (string, error) {
	text, _, err := c.pipelines.Creative.Text(ctx, generation.Request{
		Template: prompt.GymNote,
		Params:   prompt.Params{"Scope": scope, "Language": c.language, "Summary": summary},
	})
	return text, err
}

// GeneratePlanNote writes a note for the whole week. An empty answer leaves the
// plan unchanged.
func (c *Coach) GeneratePlanNote(ctx context.Context, userID, planID int64) (string, error) {
	plan, err := c.repo.GetPlan(ctx, userID, planID)
	if err != nil {
		return "", err
	}
	summary, err := c.repo.planSummary(ctx, *plan)
	if err != nil {
		return "", err
	}
	text, err := c.note(ctx, "training week", summary)
	if err != nil || text == "" {
		return text, err
	}
	return text, c.repo.SetPlanNote(ctx, plan.ID, text)
}

// GenerateSectionNote writes a note for one training day.
func (c *Coach) GenerateSectionNote(ctx context.Context, userID, sectionID int64) (string, error) {
	section, err := c.repo.GetSection(ctx, userID, sectionID)
	if err != nil {
		return "", err
	}
	summary, err := c.repo.sectionSummary(ctx, *section)
	if err != nil {
		return "", err
	}
	text, err := c.note(ctx, "training day", summary)
	if err != nil || text == "" {
		return text, err
	}
	return text, c.repo.SetSectionNote(ctx, section.ID, text)
}

// GenerateItemNote writes a note for one exercise slot.
func (c *Coach) GenerateItemNote(ctx context.Context, userID, itemID int64) (string, error) {
	item, err := c.repo.GetItem(ctx, userID, itemID)
	if err != nil {
		return "", err
	}
	sets, err := c.repo.Sets(ctx, item.ID)
	if err != nil {
		return "", err
	}
	text, err := c.note(ctx, "exercise", itemSummary(*item, sets))
	if err != nil || text == "" {
		return text, err
	}
	return text, c.repo.SetItemNotes(ctx, item.ID, text)
}

// ClassifySection labels a training day from its exercises and stores the label
// as the section type.
func (c *Coach) ClassifySection(ctx context.Context, userID, sectionID int64) (string, error) {
	section, err := c.repo.GetSection(ctx, userID, sectionID)
	if err != nil {
		return "", err
	}
	summary, err := c.repo.sectionSummary(ctx, *section)
	if err != nil {
		return "", err
	}
	label, _, err := c.pipelines.Precise.Text(ctx, generation.Request{
		Template: prompt.GymSectionClassification,
		Params:   prompt.Params{"Summary": summary},
	})
	if err != nil {
		return "", err
	}
	label = strings.Trim(strings.TrimSuffix(label, "."), "\"'` ")
	if label == "" {
		return "", nil
	}
	return label, c.repo.SetSectionType(ctx, section.ID, label)
}

type generatedSet struct {
	PrescribedReps1 int      `json:"prescribed_reps_1"`
	PrescribedReps2 *int     `json:"prescribed_reps_2"`
	RIR             *int     `json:"rir"`
	RestSeconds     *int     `json:"rest_seconds"`
	Weight          *float64 `json:"weight"`
	Tempo           string   `json:"tempo"`
}

// Alternative is a replacement exercise applied to an item.
type Alternative struct {
	Exercise matcher.Candidate `json:"exercise"`
	Notes    string            `json:"notes"`
	Sets     []SetDetail       `json:"sets"`
}

// ProposeAlternative replaces the item's working sets with a different exercise
// programmed with technique. The new exercise must exist in the catalog.
func (c *Coach) ProposeAlternative(ctx context.Context, userID, itemID int64, technique string) (*Alternative, error) {
	if !ValidTechnique(technique) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTechnique, technique)
	}
	item, err := c.repo.GetItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}
	sets, err := c.repo.Sets(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	working := workingSets(sets)
	if len(working) == 0 {
		return nil, ErrNoSets
	}

	lines := make([]string, len(working))
	for i, s := range working {
		lines[i] = fmt.Sprintf("- set %d: %s", s.SetNumber, describeSet(s.SetDetail))
	}

	var generated struct {
		ExerciseName string         `json:"exercise_name"`
		Keywords     []string       `json:"keywords"`
		Notes        string         `json:"notes"`
		Sets         []generatedSet `json:"sets"`
	}
	meta, err := c.pipelines.Creative.Object(ctx, generation.Request{
		Template: prompt.ExerciseAlternative,
		Params: prompt.Params{
			"Exercise":  working[0].ExerciseName,
			"Sets":      lines,
			"Technique": technique,
			"Language":  c.language,
		},
	}, &generated)
	if err != nil {
		return nil, err
	}
	if len(generated.Sets) == 0 {
		return nil, &generation.MalformedOutputError{Template: meta.AgentName, Shape: generation.ShapeObject, Err: errors.New("no sets proposed")}
	}

	exercise, err := c.matcher.ResolveRequired(ctx, c.repo.Exercises(), userID, generated.ExerciseName, generated.Keywords)
	if err != nil {
		return nil, err
	}

	warmups := len(sets) - len(working)
	alt := &Alternative{Exercise: exercise, Notes: strings.TrimSpace(generated.Notes)}
	err = reconcile.Replace(ctx, c.repo.db,
		func(tx *sqlx.Tx) error {
			_, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM gym_set_details WHERE plan_item_id = ? AND warmup = ?`), item.ID, false)
			return err
		},
		func(tx *sqlx.Tx) error {
			for i, g := range generated.Sets {
				s := SetDetail{
					PlanItemID:      item.ID,
					ExerciseID:      exercise.ID,
					Position:        warmups + i,
					SetNumber:       i + 1,
					PrescribedReps1: g.PrescribedReps1,
					PrescribedReps2: g.PrescribedReps2,
					RIR:             g.RIR,
					RestSeconds:     g.RestSeconds,
					Weight:          g.Weight,
					Tempo:           g.Tempo,
				}
				if err := insertSet(ctx, tx, &s); err != nil {
					return err
				}
				alt.Sets = append(alt.Sets, s)
			}

			notes := item.Notes
			if alt.Notes != "" {
				notes = alt.Notes
			}
			_, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE gym_plan_items SET intensity_techniques = ?, notes = ? WHERE id = ?`),
				database.StringList{technique}, notes, item.ID)
			return err
		})
	if err != nil {
		return nil, fmt.Errorf("failed to apply alternative to item %d: %w", item.ID, err)
	}

	slog.Info("exercise alternative applied", "item_id", item.ID, "exercise", exercise.Name, "technique", technique, "sets", len(alt.Sets))
	return alt, nil
}

type generatedWarmup struct {
	ExerciseName string   `json:"exercise_name"`
	Keywords     []string `json:"keywords"`
	Reps         int      `json:"reps"`
	Weight       *float64 `json:"weight"`
	RestSeconds  *int     `json:"rest_seconds"`
}

// GenerateWarmup plans warm-up sets for an item and puts them before its working
// sets, replacing any previous warm-up. Every exercise must exist in the catalog.
func (c *Coach) GenerateWarmup(ctx context.Context, userID, itemID int64) ([]SetDetail, error) {
	item, err := c.repo.GetItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}
	sets, err := c.repo.Sets(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	working := workingSets(sets)
	if len(working) == 0 {
		return nil, ErrNoSets
	}
	first := working[0]
	var workingWeight float64
	if first.Weight != nil {
		workingWeight = *first.Weight
	}

	var generated []generatedWarmup
	meta, err := c.pipelines.Precise.Array(ctx, generation.Request{
		Template: prompt.Warmup,
		Params: prompt.Params{
			"Exercise":      first.ExerciseName,
			"WorkingReps":   first.PrescribedReps1,
			"WorkingWeight": workingWeight,
		},
	}, &generated)
	if err != nil {
		return nil, err
	}
	if len(generated) == 0 {
		return nil, &generation.MalformedOutputError{Template: meta.AgentName, Shape: generation.ShapeArray, Err: errors.New("no warm-up sets proposed")}
	}

	exerciseIDs := make([]int64, len(generated))
	for i, g := range generated {
		exercise, err := c.matcher.ResolveRequired(ctx, c.repo.Exercises(), userID, g.ExerciseName, g.Keywords)
		if err != nil {
			return nil, err
		}
		exerciseIDs[i] = exercise.ID
	}

	var created []SetDetail
	err = reconcile.Replace(ctx, c.repo.db,
		func(tx *sqlx.Tx) error {
			_, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM gym_set_details WHERE plan_item_id = ? AND warmup = ?`), item.ID, true)
			return err
		},
		func(tx *sqlx.Tx) error {
			remaining, err := listSets(ctx, tx, item.ID)
			if err != nil {
				return err
			}
			for i, s := range remaining {
				if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE gym_set_details SET position = ? WHERE id = ?`), len(generated)+i, s.ID); err != nil {
					return err
				}
			}
			for i, g := range generated {
				s := SetDetail{
					PlanItemID:      item.ID,
					ExerciseID:      exerciseIDs[i],
					Position:        i,
					SetNumber:       i + 1,
					Warmup:          true,
					PrescribedReps1: g.Reps,
					RestSeconds:     g.RestSeconds,
					Weight:          g.Weight,
				}
				if err := insertSet(ctx, tx, &s); err != nil {
					return err
				}
				created = append(created, s)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to apply warm-up to item %d: %w", item.ID, err)
	}
	return created, nil
}

// SuggestWeight proposes the next working load for an exercise from the user's
// recent sets. It is best effort: no history or any generation failure gives 0.
func (c *Coach) SuggestWeight(ctx context.Context, userID, exerciseID int64) (float64, error) {
	exercise, err := c.repo.GetExercise(ctx, userID, exerciseID)
	if err != nil {
		return 0, err
	}
	history, err := c.repo.RecentSets(ctx, userID, exercise.ID, suggestionHistory)
	if err != nil {
		slog.Warn("loading set history failed", "exercise_id", exercise.ID, "error", err)
		return 0, nil
	}
	if len(history) == 0 {
		return 0, nil
	}
	goal, err := c.goals.GoalDescription(ctx, userID)
	if err != nil {
		slog.Warn("loading goal failed", "user_id", userID, "error", err)
	}

	lines := make([]string, len(history))
	for i, h := range history {
		line := fmt.Sprintf("%s: %d reps", h.Date, h.ActualReps)
		if h.Weight != nil {
			line += fmt.Sprintf(" x %g kg", *h.Weight)
		}
		if h.RIR != nil {
			line += fmt.Sprintf(", RIR %d", *h.RIR)
		}
		lines[i] = line
	}

	weight, _, err := c.pipelines.Precise.Number(ctx, generation.Request{
		Template: prompt.SuggestedWeight,
		Params: prompt.Params{
			"Exercise": exercise.Name,
			"Goal":     goal,
			"History":  strings.Join(lines, "\n"),
		},
	})
	if err != nil {
		slog.Warn("weight suggestion failed, using default", "exercise_id", exercise.ID, "error", err)
		return 0, nil
	}
	if weight < 0 {
		return 0, nil
	}
	return weight, nil
}

func workingSets(sets []SetWithExercise) []SetWithExercise {
	var out []SetWithExercise
	for _, s := range sets {
		if !s.Warmup {
			out = append(out, s)
		}
	}
	return out
}

package food

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"smartfit-coach/internal/generation"
	"smartfit-coach/internal/prompt"
	"smartfit-coach/internal/reconcile"

	"github.com/PuerkitoBio/goquery"
	"github.com/jmoiron/sqlx"
)

type generatedFood struct {
	parsedFood
	Section         string   `json:"section"`
	SectionKeywords []string `json:"section_keywords"`
}

// GeneratedPlan is the result of a full plan generation.
type GeneratedPlan struct {
	PlanID          int64          `json:"plan_id"`
	Items           []PlanItem     `json:"items"`
	Unresolved      []string       `json:"unresolved"`
	CreatedSections []string       `json:"created_sections"`
	Foods           []ResolvedFood `json:"foods"`
}

// GeneratePlan creates a complete daily plan from the user's goal and recent
// history and replaces every item of the plan with it. Foods are matched or
// fabricated first; the replacement itself is one transaction.
func (s *Service) GeneratePlan(ctx context.Context, userID, planID int64) (*GeneratedPlan, error) {
	plan, err := s.repo.GetPlan(ctx, userID, planID)
	if err != nil {
		return nil, err
	}
	params, err := s.historyParams(ctx, userID, plan)
	if err != nil {
		return nil, err
	}

	var generated []generatedFood
	if _, err := s.pipelines.Creative.Array(ctx, generation.Request{
		Template: prompt.FoodPlanGeneration,
		Params:   params,
	}, &generated); err != nil {
		return nil, err
	}
	if len(generated) == 0 {
		return nil, ErrEmptyGeneration
	}

	result := &GeneratedPlan{PlanID: plan.ID, Unresolved: []string{}, CreatedSections: []string{}}
	type pending struct {
		food    ResolvedFood
		section string
	}
	var rows []pending
	sectionIDs := make(map[string]*int64)

	for _, g := range generated {
		if strings.TrimSpace(g.Meal) == "" {
			continue
		}
		resolved, err := s.resolveFood(ctx, userID, g.parsedFood)
		if err != nil {
			return nil, err
		}
		result.Foods = append(result.Foods, resolved)
		if resolved.FoodItemID == nil {
			result.Unresolved = append(result.Unresolved, g.Meal)
			continue
		}

		section := strings.TrimSpace(g.Section)
		if _, seen := sectionIDs[section]; !seen && section != "" {
			match, err := s.matcher.Resolve(ctx, s.repo.Sections(), userID, section, g.SectionKeywords)
			if err != nil && !isGenerationFailure(err) {
				return nil, err
			}
			sectionIDs[section] = match.ID
		}
		rows = append(rows, pending{food: resolved, section: section})
	}
	if len(rows) == 0 {
		return nil, ErrEmptyGeneration
	}

	err = reconcile.Replace(ctx, s.repo.db,
		func(tx *sqlx.Tx) error {
			_, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM food_plan_items WHERE plan_id = ?`), plan.ID)
			return err
		},
		func(tx *sqlx.Tx) error {
			created := make(map[string]int64)
			for _, row := range rows {
				var sectionID *int64
				if row.section != "" {
					sectionID = sectionIDs[row.section]
					if sectionID == nil {
						id, ok := created[row.section]
						if !ok {
							sec := &Section{AuthorID: userID, Name: row.section}
							if err := insertSection(ctx, tx, sec); err != nil {
								return err
							}
							id = sec.ID
							created[row.section] = id
							result.CreatedSections = append(result.CreatedSections, row.section)
						}
						sectionID = &id
					}
				}

				item := PlanItem{
					PlanID:          plan.ID,
					FoodItemID:      *row.food.FoodItemID,
					SectionID:       sectionID,
					QuantityInGrams: max(row.food.Quantity, MinQuantity),
				}
				if err := insertPlanItem(ctx, tx, &item); err != nil {
					return err
				}
				result.Items = append(result.Items, item)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to replace items of plan %d: %w", plan.ID, err)
	}

	slog.Info("food plan generated", "plan_id", plan.ID, "items", len(result.Items),
		"unresolved", len(result.Unresolved), "new_sections", len(result.CreatedSections))
	return result, nil
}

func (s *Service) historyParams(ctx context.Context, userID int64, plan *Plan) (prompt.Params, error) {
	goal, err := s.goals.GoalDescription(ctx, userID)
	if err != nil {
		return nil, err
	}
	history, err := s.history.RecentHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	return prompt.Params{
		"Goal":         goal,
		"Weights":      history.Weights,
		"Measurements": history.Measurements,
		"PrevProtein":  plan.MaxProtein,
		"PrevCarbs":    plan.MaxCarbs,
		"PrevFats":     plan.MaxFats,
		"PrevKcal":     plan.MaxKcal,
		"Language":     s.language,
	}, nil
}

// MacroTargets are generated daily maximums.
type MacroTargets struct {
	MaxKcal    float64 `json:"max_kcal"`
	MaxProtein float64 `json:"max_protein"`
	MaxCarbs   float64 `json:"max_carbs"`
	MaxFats    float64 `json:"max_fats"`
	Reason     string  `json:"reason"`
	ReasonText string  `json:"reason_text"`
	Applied    bool    `json:"applied"`
}

// GenerateMacroTargets proposes new maximums for the plan. When apply is set they
// are written onto the plan.
func (s *Service) GenerateMacroTargets(ctx context.Context, userID, planID int64, apply bool) (*MacroTargets, error) {
	plan, err := s.repo.GetPlan(ctx, userID, planID)
	if err != nil {
		return nil, err
	}
	params, err := s.historyParams(ctx, userID, plan)
	if err != nil {
		return nil, err
	}

	var generated struct {
		MaxProtein float64 `json:"max_protein"`
		MaxCarbs   float64 `json:"max_carbs"`
		MaxFats    float64 `json:"max_fats"`
		Reason     string  `json:"reason"`
	}
	if _, err := s.pipelines.Creative.Object(ctx, generation.Request{
		Template: prompt.MacroTargets,
		Params:   params,
	}, &generated); err != nil {
		return nil, err
	}

	var problems []string
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"max_protein", generated.MaxProtein},
		{"max_carbs", generated.MaxCarbs},
		{"max_fats", generated.MaxFats},
	} {
		if f.value <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive, got %g", f.name, f.value))
		}
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	targets := &MacroTargets{
		MaxProtein: generated.MaxProtein,
		MaxCarbs:   generated.MaxCarbs,
		MaxFats:    generated.MaxFats,
		MaxKcal:    KcalFromMacros(generated.MaxProtein, generated.MaxCarbs, generated.MaxFats),
		Reason:     generated.Reason,
		ReasonText: HTMLToText(generated.Reason),
	}

	if apply {
		plan.MaxKcal, plan.MaxProtein, plan.MaxCarbs, plan.MaxFats = targets.MaxKcal, targets.MaxProtein, targets.MaxCarbs, targets.MaxFats
		if err := s.repo.UpdatePlanMaxima(ctx, plan); err != nil {
			return nil, err
		}
		targets.Applied = true
	}
	return targets, nil
}

// KcalFromMacros converts grams of protein, carbs and fats to kcal.
func KcalFromMacros(protein, carbs, fats float64) float64 {
	return 4*protein + 4*carbs + 9*fats
}

// HTMLToText flattens a small HTML fragment to plain text: one line per paragraph,
// list items prefixed by "- ".
func HTMLToText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}

	var lines []string
	doc.Find("p, li").Each(func(_ int, sel *goquery.Selection) {
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if text == "" {
			return
		}
		if goquery.NodeName(sel) == "li" {
			text = "- " + text
		}
		lines = append(lines, text)
	})
	if len(lines) == 0 {
		return strings.Join(strings.Fields(doc.Text()), " ")
	}
	return strings.Join(lines, "\n")
}

// Alternatives proposes a different set of foods for one section of a plan with
// about the same totals. Foods are matched or fabricated but the plan is not
// changed.
func (s *Service) Alternatives(ctx context.Context, userID, planID, sectionID int64) ([]ResolvedFood, error) {
	plan, err := s.repo.GetPlan(ctx, userID, planID)
	if err != nil {
		return nil, err
	}
	section, err := s.repo.GetSection(ctx, userID, sectionID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.PlanItems(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	totals, err := s.repo.SectionTotals(ctx, plan.ID, section.ID)
	if err != nil {
		return nil, err
	}

	var current []string
	for _, it := range items {
		if it.SectionID != nil && *it.SectionID == section.ID {
			current = append(current, fmt.Sprintf("- %s: %gg", it.Name, it.QuantityInGrams))
		}
	}
	if len(current) == 0 {
		return nil, ErrNotFound
	}

	var parsed []parsedFood
	if _, err := s.pipelines.Creative.Array(ctx, generation.Request{
		Template: prompt.AlternativeMeals,
		Params: prompt.Params{
			"Section":  section.Name,
			"Current":  current,
			"Kcal":     round1(totals.Kcal),
			"Protein":  round1(totals.Protein),
			"Carbs":    round1(totals.Carbs),
			"Fats":     round1(totals.Fats),
			"Language": s.language,
		},
	}, &parsed); err != nil {
		return nil, err
	}
	return s.resolveAll(ctx, userID, parsed)
}

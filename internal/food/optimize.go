package food

import (
	"context"
	"fmt"
	"math"

	"smartfit-coach/internal/generation"
	"smartfit-coach/internal/prompt"
	"smartfit-coach/internal/reconcile"
)

// totalsTolerance is how far projected totals may exceed a maximum.
const totalsTolerance = 0.01

type adjustment struct {
	ID       int64    `json:"id"`
	Quantity *float64 `json:"adjusted_quantity_in_grams"`
}

// Optimize asks the model to rebalance item quantities so the plan's totals fall
// between 95% and 100% of each maximum, validates the answer and applies it.
func (s *Service) Optimize(ctx context.Context, userID, planID int64) (reconcile.Report, error) {
	plan, err := s.repo.GetPlan(ctx, userID, planID)
	if err != nil {
		return reconcile.Report{}, err
	}
	items, err := s.repo.PlanItems(ctx, plan.ID)
	if err != nil {
		return reconcile.Report{}, err
	}
	if len(items) == 0 {
		return reconcile.Report{Changed: []int64{}, Skipped: []reconcile.Skipped{}}, nil
	}

	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = optimizationLine(it)
	}

	var adjustments []adjustment
	if _, err := s.pipelines.Precise.Array(ctx, generation.Request{
		Template: prompt.MacroOptimization,
		Params: prompt.Params{
			"MinKcal":    lowerBound(plan.MaxKcal),
			"MaxKcal":    plan.MaxKcal,
			"MinProtein": lowerBound(plan.MaxProtein),
			"MaxProtein": plan.MaxProtein,
			"MinCarbs":   lowerBound(plan.MaxCarbs),
			"MaxCarbs":   plan.MaxCarbs,
			"MinFats":    lowerBound(plan.MaxFats),
			"MaxFats":    plan.MaxFats,
			"Items":      lines,
		},
	}, &adjustments); err != nil {
		return reconcile.Report{}, err
	}

	if err := validateAdjustments(plan, items, adjustments); err != nil {
		return reconcile.Report{}, err
	}

	proposals := make([]reconcile.Proposal, len(adjustments))
	for i, a := range adjustments {
		proposals[i] = reconcile.Proposal{TargetID: a.ID, Value: a.Quantity}
	}
	return reconcile.Apply(ctx, s.repo.db, QuantityTarget{PlanID: plan.ID}, reconcile.Rules{
		Minimum:     MinQuantity,
		Materiality: Materiality,
	}, proposals)
}

func optimizationLine(it PlanItemDetail) string {
	return fmt.Sprintf("- ID %d - %s: %gg (kcal: %g, protein: %g, carbs: %g, sugars: %g, fats: %g, fiber: %g)",
		it.ID, it.Name, it.QuantityInGrams, it.Kcal, it.Protein, it.Carbs, it.Sugars, it.Fats, it.Fiber)
}

// lowerBound is 95% of max rounded to one decimal.
func lowerBound(max float64) float64 {
	return round1(max * 0.95)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// validateAdjustments rejects quantities outside [MinQuantity, MaxQuantity] and
// answers whose projected totals exceed a positive plan maximum. Ids that are not
// in the plan are left to reconciliation.
func validateAdjustments(plan *Plan, items []PlanItemDetail, adjustments []adjustment) error {
	var problems []string
	proposed := make(map[int64]float64, len(adjustments))
	for _, a := range adjustments {
		if a.Quantity == nil {
			continue
		}
		q := *a.Quantity
		if q < MinQuantity || q > MaxQuantity || math.IsNaN(q) {
			problems = append(problems, fmt.Sprintf("item %d: %gg outside [%g, %g]", a.ID, q, MinQuantity, MaxQuantity))
			continue
		}
		proposed[a.ID] = q
	}

	var projected Totals
	for _, it := range items {
		grams := it.QuantityInGrams
		if q, ok := proposed[it.ID]; ok {
			grams = q
		}
		projected.add(it.Nutrients, grams)
	}

	limits := []struct {
		name       string
		total, max float64
	}{
		{"kcal", projected.Kcal, plan.MaxKcal},
		{"protein", projected.Protein, plan.MaxProtein},
		{"carbs", projected.Carbs, plan.MaxCarbs},
		{"fats", projected.Fats, plan.MaxFats},
	}
	for _, l := range limits {
		if l.max > 0 && l.total > l.max+totalsTolerance {
			problems = append(problems, fmt.Sprintf("%s total %.2f exceeds maximum %g", l.name, l.total, l.max))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

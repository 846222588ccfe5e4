package food

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"smartfit-coach/internal/body"
	"smartfit-coach/internal/database"
	"smartfit-coach/internal/generation"
	"smartfit-coach/internal/llm/llmtest"
	"smartfit-coach/internal/matcher"
	"smartfit-coach/internal/prompt"
	"smartfit-coach/internal/testutil"
)

type fakeContext struct{}

func (fakeContext) GoalDescription(context.Context, int64) (string, error) {
	return "ricomposizione corporea", nil
}

func (fakeContext) RecentHistory(context.Context, int64) (body.History, error) {
	return body.History{Weights: "2025-01-01: 80 kg", Measurements: "none"}, nil
}

type fixture struct {
	svc    *Service
	repo   *Repository
	gen    *llmtest.Generator
	userID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	renderer, err := prompt.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}
	gen := llmtest.New()
	p := generation.New(gen, renderer)
	repo := NewRepository(db)
	svc := NewService(repo, matcher.New(p), generation.Pipelines{Precise: p, Creative: p, Vision: p}, fakeContext{}, fakeContext{}, "Italian")
	return &fixture{svc: svc, repo: repo, gen: gen, userID: testutil.CreateUser(t, db, "chiara")}
}

func (f *fixture) item(t *testing.T, name string, n Nutrients) *Item {
	t.Helper()
	item := &Item{Name: name, Nutrients: n}
	if err := f.repo.CreateItem(context.Background(), item); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	return item
}

func (f *fixture) plan(t *testing.T, p Plan) *Plan {
	t.Helper()
	p.AuthorID = f.userID
	if p.StartDate.IsZero() {
		p.StartDate = database.NewDate(2025, 3, 3)
		p.EndDate = database.NewDate(2025, 3, 9)
	}
	if err := f.repo.CreatePlan(context.Background(), &p); err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}
	return &p
}

func (f *fixture) planItem(t *testing.T, planID, foodID int64, grams float64, sectionID *int64) *PlanItem {
	t.Helper()
	it := &PlanItem{PlanID: planID, FoodItemID: foodID, QuantityInGrams: grams, SectionID: sectionID}
	if err := f.repo.AddPlanItem(context.Background(), it); err != nil {
		t.Fatalf("AddPlanItem failed: %v", err)
	}
	return it
}

func TestParseMealMatchesAndFabricates(t *testing.T) {
	f := newFixture(t)
	pasta := f.item(t, "Pasta al pomodoro", Nutrients{Kcal: 150})
	f.gen.
		On("# Meal Parsing", "Ecco il risultato:\n```json\n[{\"meal\":\"pasta\",\"keywords\":[\"pasta\"],\"quantity\":120},{\"meal\":\"mela\",\"keywords\":[\"mela\",\"mele\"],\"quantity\":150}]\n```").
		On(`best matches "pasta"`, "Pasta al pomodoro").
		On(`best matches "mela"`, "nessuna").
		On("# Food Item Nutrition Estimate", `{"name":"Mela","brand":"","kcal_per_100g":52,"protein_per_100g":0.3,"carbs_per_100g":14,"sugars_per_100g":10,"fats_per_100g":0.2,"saturated_fats_per_100g":0,"fiber_per_100g":2.4}`)

	foods, err := f.svc.ParseMeal(context.Background(), f.userID, "un piatto di pasta e una mela")
	if err != nil {
		t.Fatalf("ParseMeal failed: %v", err)
	}
	if len(foods) != 2 {
		t.Fatalf("expected 2 foods, got %d", len(foods))
	}
	if foods[0].FoodItemID == nil || *foods[0].FoodItemID != pasta.ID || foods[0].Fabricated {
		t.Errorf("expected pasta to match item %d, got %+v", pasta.ID, foods[0])
	}
	if !foods[1].Fabricated || foods[1].FoodItemID == nil || *foods[1].FoodItemName != "Mela" {
		t.Fatalf("expected a fabricated apple, got %+v", foods[1])
	}

	created, err := f.repo.GetItem(context.Background(), f.userID, *foods[1].FoodItemID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if created.AuthorID == nil || *created.AuthorID != f.userID || created.Kcal != 52 {
		t.Errorf("fabricated item not attributed or stored correctly: %+v", created)
	}
}

func TestParseMealFabricationFailureLeavesFoodUnresolved(t *testing.T) {
	f := newFixture(t)
	f.gen.
		On("# Meal Parsing", `[{"meal":"zuppa misteriosa","keywords":["zuppa"],"quantity":300}]`).
		On("# Food Item Nutrition Estimate", `{"name":"Zuppa","kcal_per_100g":-5}`)

	foods, err := f.svc.ParseMeal(context.Background(), f.userID, "zuppa")
	if err != nil {
		t.Fatalf("ParseMeal failed: %v", err)
	}
	if len(foods) != 1 || foods[0].FoodItemID != nil {
		t.Errorf("expected one unresolved food, got %+v", foods)
	}
	// Empty catalog: no selection call is made.
	if f.gen.CallsContaining("# Best Match Selection") != 0 {
		t.Error("expected no selection call against an empty catalog")
	}
}

func TestParseMealMalformed(t *testing.T) {
	f := newFixture(t)
	f.gen.On("# Meal Parsing", "Non ho capito la richiesta.")

	_, err := f.svc.ParseMeal(context.Background(), f.userID, "boh")
	var malformed *generation.MalformedOutputError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedOutputError, got %v", err)
	}
	if malformed.Raw != "Non ho capito la richiesta." {
		t.Errorf("expected raw text to be kept, got %q", malformed.Raw)
	}
}

func TestOptimizeMacroBounds(t *testing.T) {
	f := newFixture(t)
	chicken := f.item(t, "Petto di pollo", Nutrients{Kcal: 165, Protein: 31, Fats: 3.6})
	whey := f.item(t, "Proteine whey", Nutrients{Kcal: 400, Protein: 80, Carbs: 8, Fats: 6})
	rice := f.item(t, "Riso", Nutrients{Kcal: 360, Protein: 7, Carbs: 80, Fats: 1})
	plan := f.plan(t, Plan{MaxProtein: 150})
	ci := f.planItem(t, plan.ID, chicken.ID, 100, nil)
	wi := f.planItem(t, plan.ID, whey.ID, 30, nil)
	ri := f.planItem(t, plan.ID, rice.ID, 100, nil)

	t.Run("ExceedingMaximumIsRejected", func(t *testing.T) {
		f.gen.Reset()
		f.gen.On("# Food Plan Macro Optimization", jsonAdjustments([]int64{ci.ID, wi.ID, ri.ID}, 200, 110, 200))

		_, err := f.svc.Optimize(context.Background(), f.userID, plan.ID)
		var invalid *ValidationError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		totals, _ := f.repo.PlanTotals(context.Background(), plan.ID)
		if totals.Protein != 62 {
			t.Errorf("nothing must be written, protein total is %v", totals.Protein)
		}
	})

	t.Run("OutOfRangeQuantityIsRejected", func(t *testing.T) {
		f.gen.Reset()
		f.gen.On("# Food Plan Macro Optimization", jsonAdjustments([]int64{ci.ID, wi.ID, ri.ID}, 250, 30, 100))

		_, err := f.svc.Optimize(context.Background(), f.userID, plan.ID)
		var invalid *ValidationError
		if !errors.As(err, &invalid) || !strings.Contains(invalid.Error(), "outside [10, 200]") {
			t.Fatalf("expected range ValidationError, got %v", err)
		}
	})

	t.Run("WithinBoundsIsApplied", func(t *testing.T) {
		f.gen.Reset()
		f.gen.On("# Food Plan Macro Optimization", jsonAdjustments([]int64{ci.ID, wi.ID, ri.ID, 99999}, 200, 90, 200, 50))

		report, err := f.svc.Optimize(context.Background(), f.userID, plan.ID)
		if err != nil {
			t.Fatalf("Optimize failed: %v", err)
		}
		if len(report.Changed) != 3 {
			t.Errorf("expected 3 changed items, got %v", report.Changed)
		}
		if len(report.Skipped) != 1 || report.Skipped[0].TargetID != 99999 {
			t.Errorf("expected the foreign id to be skipped, got %+v", report.Skipped)
		}

		totals, err := f.repo.PlanTotals(context.Background(), plan.ID)
		if err != nil {
			t.Fatalf("PlanTotals failed: %v", err)
		}
		if totals.Protein < 142.5 || totals.Protein > 150 {
			t.Errorf("protein total %v outside [142.5, 150]", totals.Protein)
		}

		sent := f.gen.Prompts[len(f.gen.Prompts)-1]
		if !strings.Contains(sent, "protein: between 142.5 g and 150 g") {
			t.Errorf("expected protein bounds in prompt:\n%s", sent)
		}
		if !strings.Contains(sent, "- ID "+itoa(ci.ID)+" - Petto di pollo: 100g (kcal: 165, protein: 31, carbs: 0, sugars: 0, fats: 3.6, fiber: 0)") {
			t.Errorf("expected item line in prompt:\n%s", sent)
		}
	})
}

func TestOptimizeOtherUsersPlan(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, Plan{MaxProtein: 100})

	if _, err := f.svc.Optimize(context.Background(), f.userID+1, plan.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if f.gen.Calls() != 0 {
		t.Error("expected no model call")
	}
}

func TestGeneratePlanReplacesItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	yogurt := f.item(t, "Yogurt greco", Nutrients{Kcal: 97, Protein: 9})
	rice := f.item(t, "Riso basmati", Nutrients{Kcal: 350, Carbs: 78})
	old := f.item(t, "Biscotti", Nutrients{Kcal: 450})
	breakfast := &Section{AuthorID: f.userID, Name: "Colazione", StartTime: "07:30"}
	if err := f.repo.CreateSection(ctx, breakfast); err != nil {
		t.Fatalf("CreateSection failed: %v", err)
	}
	plan := f.plan(t, Plan{MaxKcal: 2200, MaxProtein: 140, MaxCarbs: 250, MaxFats: 70})
	f.planItem(t, plan.ID, old.ID, 50, &breakfast.ID)

	f.gen.
		On("# Personalized Food Plan", `[
			{"meal":"yogurt greco","keywords":["yogurt"],"quantity":150,"section":"Colazione","section_keywords":["colazione"]},
			{"meal":"riso","keywords":["riso"],"quantity":5,"section":"Pranzo","section_keywords":["pranzo"]}
		]`).
		On(`best matches "yogurt greco"`, "Yogurt greco").
		On(`best matches "riso"`, "Riso basmati").
		On(`best matches "Colazione"`, "Colazione").
		On(`best matches "Pranzo"`, "Pranzo")

	result, err := f.svc.GeneratePlan(ctx, f.userID, plan.ID)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}
	if len(result.CreatedSections) != 1 || result.CreatedSections[0] != "Pranzo" {
		t.Errorf("expected Pranzo to be created, got %v", result.CreatedSections)
	}

	items, err := f.repo.PlanItems(ctx, plan.ID)
	if err != nil {
		t.Fatalf("PlanItems failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected the old item to be replaced by 2 new ones, got %d", len(items))
	}
	if items[0].FoodItemID != yogurt.ID || items[0].SectionID == nil || *items[0].SectionID != breakfast.ID {
		t.Errorf("yogurt should be in the existing breakfast section, got %+v", items[0])
	}
	if items[1].FoodItemID != rice.ID || items[1].QuantityInGrams != MinQuantity {
		t.Errorf("rice quantity should be raised to %v, got %+v", MinQuantity, items[1])
	}
	if items[1].SectionID == nil || *items[1].SectionID == breakfast.ID {
		t.Errorf("rice should be in the new section, got %+v", items[1])
	}

	sent := f.gen.Prompts[0]
	if !strings.Contains(sent, "ricomposizione corporea") || !strings.Contains(sent, "2025-01-01: 80 kg") || !strings.Contains(sent, "protein: 140 g") {
		t.Errorf("expected goal, history and previous macros in prompt:\n%s", sent)
	}
}

func TestGeneratePlanEmptyKeepsPlan(t *testing.T) {
	f := newFixture(t)
	old := f.item(t, "Biscotti", Nutrients{Kcal: 450})
	plan := f.plan(t, Plan{})
	f.planItem(t, plan.ID, old.ID, 50, nil)
	f.gen.On("# Personalized Food Plan", "[]")

	if _, err := f.svc.GeneratePlan(context.Background(), f.userID, plan.ID); !errors.Is(err, ErrEmptyGeneration) {
		t.Fatalf("expected ErrEmptyGeneration, got %v", err)
	}
	items, _ := f.repo.PlanItems(context.Background(), plan.ID)
	if len(items) != 1 {
		t.Errorf("plan must be left untouched, got %d items", len(items))
	}
}

func TestGenerateMacroTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plan := f.plan(t, Plan{MaxKcal: 2000, MaxProtein: 120, MaxCarbs: 220, MaxFats: 70})

	f.gen.On("# Macro Targets", `{"max_protein":150,"max_carbs":200,"max_fats":60,"reason":"<p>Più <b>proteine</b>.</p><ul><li>meno zuccheri</li></ul>"}`)

	targets, err := f.svc.GenerateMacroTargets(ctx, f.userID, plan.ID, true)
	if err != nil {
		t.Fatalf("GenerateMacroTargets failed: %v", err)
	}
	if targets.MaxKcal != 1940 {
		t.Errorf("expected 1940 kcal, got %v", targets.MaxKcal)
	}
	if targets.ReasonText != "Più proteine.\n- meno zuccheri" {
		t.Errorf("unexpected reason text %q", targets.ReasonText)
	}

	stored, _ := f.repo.GetPlan(ctx, f.userID, plan.ID)
	if stored.MaxProtein != 150 || stored.MaxKcal != 1940 {
		t.Errorf("targets not applied: %+v", stored)
	}
}

func TestGenerateMacroTargetsRejectsNonPositive(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, Plan{MaxProtein: 120})
	f.gen.On("# Macro Targets", `{"max_protein":0,"max_carbs":200,"max_fats":60,"reason":""}`)

	_, err := f.svc.GenerateMacroTargets(context.Background(), f.userID, plan.ID, true)
	var invalid *ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	stored, _ := f.repo.GetPlan(context.Background(), f.userID, plan.ID)
	if stored.MaxProtein != 120 {
		t.Errorf("plan must not change, got %+v", stored)
	}
}

func TestAlternatives(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	oats := f.item(t, "Fiocchi d'avena", Nutrients{Kcal: 370, Protein: 13, Carbs: 60, Fats: 7})
	f.item(t, "Pane integrale", Nutrients{Kcal: 250})
	section := &Section{AuthorID: f.userID, Name: "Colazione"}
	if err := f.repo.CreateSection(ctx, section); err != nil {
		t.Fatalf("CreateSection failed: %v", err)
	}
	plan := f.plan(t, Plan{})
	f.planItem(t, plan.ID, oats.ID, 80, &section.ID)

	f.gen.
		On("# Alternative Meal", `[{"meal":"pane integrale","keywords":["pane"],"quantity":90}]`).
		On(`best matches "pane integrale"`, "Pane integrale")

	foods, err := f.svc.Alternatives(ctx, f.userID, plan.ID, section.ID)
	if err != nil {
		t.Fatalf("Alternatives failed: %v", err)
	}
	if len(foods) != 1 || foods[0].FoodItemName == nil || *foods[0].FoodItemName != "Pane integrale" {
		t.Errorf("unexpected alternatives %+v", foods)
	}
	if !strings.Contains(f.gen.Prompts[0], "296 kcal, 10.4 g protein") {
		t.Errorf("expected section totals in prompt:\n%s", f.gen.Prompts[0])
	}
	items, _ := f.repo.PlanItems(ctx, plan.ID)
	if len(items) != 1 || items[0].FoodItemID != oats.ID {
		t.Error("alternatives must not change the plan")
	}
}

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"<p>Uno</p><p>Due  <b>tre</b></p>", "Uno\nDue tre"},
		{"solo testo", "solo testo"},
		{"<ul><li>a</li><li>b</li></ul>", "- a\n- b"},
	}
	for _, tt := range tests {
		if got := HTMLToText(tt.in); got != tt.want {
			t.Errorf("HTMLToText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestImportCSV(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.item(t, "Mela", Nutrients{Kcal: 52})

	csvData := strings.Join([]string{
		strings.Join(importHeader, ","),
		",Mela,,,52,0.3,14,10,0.2,0,2.4",
		",Pane,800123,Mulino,265,9,49,5,3.2,0.7,2.7",
		",Pane,800123,Mulino,265,9,49,5,3.2,0.7,2.7",
		",,,,1,1,1,1,1,1,1",
		",Latte,,,abc,3,5,5,1,1,0",
	}, "\n")

	report, err := f.repo.ImportCSV(ctx, strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("ImportCSV failed: %v", err)
	}
	if report.Created != 1 || report.Existing != 2 {
		t.Errorf("expected 1 created and 2 existing, got %+v", report)
	}
	if len(report.Errors) != 2 || report.Errors[0].Line != 5 || report.Errors[1].Line != 6 {
		t.Errorf("expected errors on lines 5 and 6, got %+v", report.Errors)
	}
	if _, found, _ := f.repo.FindItemID(ctx, "Pane", "800123"); !found {
		t.Error("expected Pane to be imported")
	}
}

func TestImportCSVMissingColumn(t *testing.T) {
	f := newFixture(t)
	if _, err := f.repo.ImportCSV(context.Background(), strings.NewReader("name,kcal_per_100g\nMela,52")); err == nil {
		t.Fatal("expected an error for a missing column")
	}
}

func TestResetEaten(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	food := f.item(t, "Mela", Nutrients{Kcal: 52})
	weekly := f.plan(t, Plan{})
	daily := f.plan(t, Plan{StartDate: database.NewDate(2025, 3, 3), EndDate: database.NewDate(2025, 3, 3)})

	for _, planID := range []int64{weekly.ID, daily.ID} {
		it := &PlanItem{PlanID: planID, FoodItemID: food.ID, QuantityInGrams: 100, Eaten: true}
		if err := f.repo.AddPlanItem(ctx, it); err != nil {
			t.Fatalf("AddPlanItem failed: %v", err)
		}
	}

	n, err := f.repo.ResetEaten(ctx)
	if err != nil {
		t.Fatalf("ResetEaten failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 item reset, got %d", n)
	}
	items, _ := f.repo.PlanItems(ctx, daily.ID)
	if !items[0].Eaten {
		t.Error("single-day plan items must keep their flag")
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

// jsonAdjustments renders an optimization answer setting ids[i] to quantities[i].
func jsonAdjustments(ids []int64, quantities ...float64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf(`{"id":%d,"adjusted_quantity_in_grams":%g}`, id, quantities[i])
	}
	return "[" + strings.Join(parts, ",") + "]"
}

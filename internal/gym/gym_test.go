package gym

import (
	"context"
	"errors"
	"strings"
	"testing"

	"smartfit-coach/internal/database"
	"smartfit-coach/internal/generation"
	"smartfit-coach/internal/llm/llmtest"
	"smartfit-coach/internal/matcher"
	"smartfit-coach/internal/prompt"
	"smartfit-coach/internal/testutil"

	ical "github.com/arran4/golang-ical"
)

type staticGoal string

func (g staticGoal) GoalDescription(context.Context, int64) (string, error) {
	return string(g), nil
}

type fixture struct {
	coach     *Coach
	repo      *Repository
	gen       *llmtest.Generator
	userID    int64
	plan      *Plan
	section   *Section
	item      *Item
	bench     *Exercise
	exercises map[string]*Exercise
}

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := testutil.NewTestDB(t)
	renderer, err := prompt.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}
	gen := llmtest.New()
	p := generation.New(gen, renderer)
	repo := NewRepository(db)
	f := &fixture{
		coach:     NewCoach(repo, matcher.New(p), generation.Pipelines{Precise: p, Creative: p, Vision: p}, staticGoal("powerlifting"), "Italian"),
		repo:      repo,
		gen:       gen,
		userID:    testutil.CreateUser(t, db, "giulia"),
		exercises: map[string]*Exercise{},
	}

	for _, name := range []string{"Barbell Bench Press", "Dumbbell Bench Press", "Push-up"} {
		e := &Exercise{Name: name, Category: "strength"}
		if err := repo.CreateExercise(ctx, e); err != nil {
			t.Fatalf("CreateExercise failed: %v", err)
		}
		f.exercises[name] = e
	}
	f.bench = f.exercises["Barbell Bench Press"]

	f.plan = &Plan{AuthorID: f.userID, StartDate: database.NewDate(2025, 3, 3), EndDate: database.NewDate(2025, 3, 9)}
	if err := repo.CreatePlan(ctx, f.plan); err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}
	f.section = &Section{PlanID: f.plan.ID, Day: "lun", Type: "Push"}
	if err := repo.CreateSection(ctx, f.section); err != nil {
		t.Fatalf("CreateSection failed: %v", err)
	}
	f.item = &Item{SectionID: f.section.ID, IntensityTechniques: database.StringList{"linear"}}
	if err := repo.CreateItem(ctx, f.item); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		f.addSet(t, SetDetail{ExerciseID: f.bench.ID, Position: i, SetNumber: i + 1, PrescribedReps1: 8, Weight: floatp(80), RIR: intp(2)})
	}
	return f
}

func (f *fixture) addSet(t *testing.T, s SetDetail) *SetDetail {
	t.Helper()
	s.PlanItemID = f.item.ID
	if err := f.repo.AddSet(context.Background(), &s); err != nil {
		t.Fatalf("AddSet failed: %v", err)
	}
	return &s
}

func TestValidatePlanDates(t *testing.T) {
	monday := database.NewDate(2025, 3, 3)
	tests := []struct {
		name       string
		start, end database.Date
		wantErr    bool
	}{
		{"MondayToSunday", monday, monday.AddDays(6), false},
		{"TuesdayStart", monday.AddDays(1), monday.AddDays(7), true},
		{"EightDays", monday, monday.AddDays(7), true},
		{"EndsSaturday", monday, monday.AddDays(5), true},
		{"Zero", database.Date{}, monday, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePlanDates(tt.start, tt.end)
			if tt.wantErr != errors.Is(err, ErrInvalidPlanDates) {
				t.Errorf("ValidatePlanDates(%s, %s) = %v", tt.start, tt.end, err)
			}
		})
	}
}

func TestCreatePlanRejectsInvalidDatesBeforeWrite(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewRepository(db)
	userID := testutil.CreateUser(t, db, "marco")

	err := repo.CreatePlan(context.Background(), &Plan{AuthorID: userID, StartDate: database.NewDate(2025, 3, 4), EndDate: database.NewDate(2025, 3, 10)})
	if !errors.Is(err, ErrInvalidPlanDates) {
		t.Fatalf("expected ErrInvalidPlanDates, got %v", err)
	}
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM gym_plans`); err != nil || n != 0 {
		t.Errorf("expected no plans, got %d (%v)", n, err)
	}
}

func TestDeleteSetCascadeOnEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sets, _ := f.repo.Sets(ctx, f.item.ID)

	if _, err := f.repo.DeleteSet(ctx, f.userID+100, sets[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for another user, got %v", err)
	}

	for i, s := range sets {
		deleted, err := f.repo.DeleteSet(ctx, f.userID, s.ID)
		if err != nil {
			t.Fatalf("DeleteSet failed: %v", err)
		}
		last := i == len(sets)-1
		if deleted != last {
			t.Errorf("set %d: itemDeleted = %v, want %v", i, deleted, last)
		}
		_, err = f.repo.GetItem(ctx, f.userID, f.item.ID)
		if last && !errors.Is(err, ErrNotFound) {
			t.Errorf("expected item to be removed with its last set, got %v", err)
		}
		if !last && err != nil {
			t.Errorf("item must survive while sets remain, got %v", err)
		}
	}
}

func TestProposeAlternative(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addSet(t, SetDetail{ExerciseID: f.exercises["Push-up"].ID, Position: -1, SetNumber: 1, Warmup: true, PrescribedReps1: 15})

	f.gen.
		On("# Exercise Alternative", `{"exercise_name":"Dumbbell Bench Press","keywords":["bench"],"notes":"Scala il peso del 20% a cedimento.","sets":[
			{"prescribed_reps_1":10,"prescribed_reps_2":12,"rir":1,"rest_seconds":90,"weight":30,"tempo":"3-0-1"},
			{"prescribed_reps_1":10,"prescribed_reps_2":null,"rir":0,"rest_seconds":90,"weight":26,"tempo":"3-0-1"}]}`).
		On(`best matches "Dumbbell Bench Press"`, "Dumbbell Bench Press")

	alt, err := f.coach.ProposeAlternative(ctx, f.userID, f.item.ID, "drop_set")
	if err != nil {
		t.Fatalf("ProposeAlternative failed: %v", err)
	}
	if alt.Exercise.ID != f.exercises["Dumbbell Bench Press"].ID || len(alt.Sets) != 2 {
		t.Errorf("unexpected alternative %+v", alt)
	}

	sets, _ := f.repo.Sets(ctx, f.item.ID)
	if len(sets) != 3 || !sets[0].Warmup {
		t.Fatalf("expected the warm-up kept plus 2 new sets, got %+v", sets)
	}
	for _, s := range sets[1:] {
		if s.ExerciseName != "Dumbbell Bench Press" || s.Tempo != "3-0-1" {
			t.Errorf("unexpected working set %+v", s)
		}
	}

	item, _ := f.repo.GetItem(ctx, f.userID, f.item.ID)
	if len(item.IntensityTechniques) != 1 || item.IntensityTechniques[0] != "drop_set" {
		t.Errorf("expected techniques [drop_set], got %v", item.IntensityTechniques)
	}
	if item.Notes != "Scala il peso del 20% a cedimento." {
		t.Errorf("unexpected notes %q", item.Notes)
	}
	if !strings.Contains(f.gen.Prompts[0], "8 reps @ 80 kg, RIR 2") {
		t.Errorf("expected current sets in prompt:\n%s", f.gen.Prompts[0])
	}
}

func TestProposeAlternativeUnknownTechnique(t *testing.T) {
	f := newFixture(t)
	if _, err := f.coach.ProposeAlternative(context.Background(), f.userID, f.item.ID, "superslow"); !errors.Is(err, ErrUnknownTechnique) {
		t.Errorf("expected ErrUnknownTechnique, got %v", err)
	}
	if f.gen.Calls() != 0 {
		t.Error("expected no model call")
	}
}

func TestProposeAlternativeNoMatchIsFatal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gen.
		On("# Exercise Alternative", `{"exercise_name":"Cable Fly","keywords":["fly"],"notes":"","sets":[{"prescribed_reps_1":12}]}`).
		On("# Best Match Selection", "Cable Fly")

	_, err := f.coach.ProposeAlternative(ctx, f.userID, f.item.ID, "myoreps")
	var noMatch *matcher.NoMatchFoundError
	if !errors.As(err, &noMatch) {
		t.Fatalf("expected NoMatchFoundError, got %v", err)
	}
	sets, _ := f.repo.Sets(ctx, f.item.ID)
	if len(sets) != 3 || sets[0].ExerciseID != f.bench.ID {
		t.Errorf("sets must be untouched, got %+v", sets)
	}
}

func TestGenerateWarmup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addSet(t, SetDetail{ExerciseID: f.bench.ID, Position: 10, SetNumber: 1, Warmup: true, PrescribedReps1: 20})

	f.gen.
		On("# Warm-up Sets", `[
			{"exercise_name":"Push-up","keywords":["push"],"reps":15,"weight":0,"rest_seconds":60},
			{"exercise_name":"Barbell Bench Press","keywords":["bench"],"reps":5,"weight":60,"rest_seconds":90}]`).
		On(`best matches "Push-up"`, "Push-up").
		On(`best matches "Barbell Bench Press"`, "Barbell Bench Press")

	created, err := f.coach.GenerateWarmup(ctx, f.userID, f.item.ID)
	if err != nil {
		t.Fatalf("GenerateWarmup failed: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 warm-up sets, got %d", len(created))
	}

	sets, _ := f.repo.Sets(ctx, f.item.ID)
	if len(sets) != 5 {
		t.Fatalf("expected 2 warm-ups and 3 working sets, got %d", len(sets))
	}
	for i, s := range sets {
		if s.Position != i {
			t.Errorf("set %d has position %d", i, s.Position)
		}
		if (i < 2) != s.Warmup {
			t.Errorf("set %d warmup = %v", i, s.Warmup)
		}
	}
	if sets[0].ExerciseName != "Push-up" || sets[1].PrescribedReps1 != 5 {
		t.Errorf("unexpected warm-up order %+v", sets[:2])
	}
	if !strings.Contains(f.gen.Prompts[0], "8 reps at 80 kg") {
		t.Errorf("expected first working set in prompt:\n%s", f.gen.Prompts[0])
	}
}

func TestGenerateWarmupNoMatchIsFatal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addSet(t, SetDetail{ExerciseID: f.bench.ID, Position: 10, SetNumber: 1, Warmup: true, PrescribedReps1: 20})

	f.gen.
		On("# Warm-up Sets", `[
			{"exercise_name":"Push-up","keywords":["push"],"reps":15,"weight":0,"rest_seconds":60},
			{"exercise_name":"Band Pull Apart","keywords":["band"],"reps":20,"weight":0,"rest_seconds":30}]`).
		On(`best matches "Push-up"`, "Push-up").
		On(`best matches "Band Pull Apart"`, "Band Pull Apart")

	_, err := f.coach.GenerateWarmup(ctx, f.userID, f.item.ID)
	var noMatch *matcher.NoMatchFoundError
	if !errors.As(err, &noMatch) {
		t.Fatalf("expected NoMatchFoundError, got %v", err)
	}

	sets, _ := f.repo.Sets(ctx, f.item.ID)
	if len(sets) != 4 {
		t.Fatalf("sets must be untouched, got %d", len(sets))
	}
	warmups := 0
	for _, s := range sets {
		if s.Warmup {
			warmups++
			if s.PrescribedReps1 != 20 {
				t.Errorf("previous warm-up was replaced: %+v", s)
			}
		}
	}
	if warmups != 1 {
		t.Errorf("expected the previous warm-up to survive, got %d warm-ups", warmups)
	}
}

func TestSuggestWeight(t *testing.T) {
	ctx := context.Background()

	t.Run("NoHistory", func(t *testing.T) {
		f := newFixture(t)
		w, err := f.coach.SuggestWeight(ctx, f.userID, f.bench.ID)
		if err != nil || w != 0 {
			t.Errorf("expected 0, nil; got %v, %v", w, err)
		}
		if f.gen.Calls() != 0 {
			t.Error("expected no model call without history")
		}
	})

	tests := []struct {
		name   string
		answer string
		want   float64
	}{
		{"Number", "62.5", 62.5},
		{"Malformed", "circa sessanta chili", 0},
		{"Negative", "-5", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.addSet(t, SetDetail{ExerciseID: f.bench.ID, Position: 3, SetNumber: 4, PrescribedReps1: 8, ActualReps1: intp(7), Weight: floatp(60)})
			f.gen.On("# Suggested Load", tt.answer)

			w, err := f.coach.SuggestWeight(ctx, f.userID, f.bench.ID)
			if err != nil {
				t.Fatalf("SuggestWeight failed: %v", err)
			}
			if w != tt.want {
				t.Errorf("expected %v, got %v", tt.want, w)
			}
			if !strings.Contains(f.gen.Prompts[0], "2025-03-03: 7 reps x 60 kg") {
				t.Errorf("expected history in prompt:\n%s", f.gen.Prompts[0])
			}
		})
	}
}

func TestClassifySectionAndNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gen.
		On("# Workout Day Classification", `"Upper Body".`).
		On("# Workout Note", "   ")

	label, err := f.coach.ClassifySection(ctx, f.userID, f.section.ID)
	if err != nil {
		t.Fatalf("ClassifySection failed: %v", err)
	}
	if label != "Upper Body" {
		t.Errorf("expected Upper Body, got %q", label)
	}
	section, _ := f.repo.GetSection(ctx, f.userID, f.section.ID)
	if section.Type != "Upper Body" {
		t.Errorf("expected stored type, got %q", section.Type)
	}

	if _, err := f.coach.GenerateSectionNote(ctx, f.userID, f.section.ID); err != nil {
		t.Fatalf("GenerateSectionNote failed: %v", err)
	}
	section, _ = f.repo.GetSection(ctx, f.userID, f.section.ID)
	if section.Note != "" {
		t.Errorf("empty note must leave the section unchanged, got %q", section.Note)
	}

	f.gen.Reset()
	f.gen.On("# Workout Note", "Spingi con le gambe.")
	if _, err := f.coach.GenerateItemNote(ctx, f.userID, f.item.ID); err != nil {
		t.Fatalf("GenerateItemNote failed: %v", err)
	}
	item, _ := f.repo.GetItem(ctx, f.userID, f.item.ID)
	if item.Notes != "Spingi con le gambe." {
		t.Errorf("expected item notes, got %q", item.Notes)
	}
	if _, err := f.coach.GeneratePlanNote(ctx, f.userID, f.plan.ID); err != nil {
		t.Fatalf("GeneratePlanNote failed: %v", err)
	}
	plan, _ := f.repo.GetPlan(ctx, f.userID, f.plan.ID)
	if plan.Note != "Spingi con le gambe." {
		t.Errorf("expected plan note, got %q", plan.Note)
	}
}

func TestExportCalendar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.repo.CreateSection(ctx, &Section{PlanID: f.plan.ID, Day: "mer", Type: "Legs"}); err != nil {
		t.Fatalf("CreateSection failed: %v", err)
	}

	feed, err := f.coach.ExportCalendar(ctx, f.userID, f.plan.ID)
	if err != nil {
		t.Fatalf("ExportCalendar failed: %v", err)
	}

	cal, err := ical.ParseCalendar(strings.NewReader(feed))
	if err != nil {
		t.Fatalf("ParseCalendar failed: %v", err)
	}
	events := cal.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	wantDays := []string{"2025-03-03", "2025-03-05"}
	for i, e := range events {
		start, err := e.GetAllDayStartAt()
		if err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
		if got := start.Format("2006-01-02"); got != wantDays[i] {
			t.Errorf("event %d starts %s, want %s", i, got, wantDays[i])
		}
	}
	if summary := events[1].GetProperty(ical.ComponentPropertySummary); summary == nil || summary.Value != "Legs - Mercoledì" {
		t.Errorf("unexpected summary %+v", summary)
	}

	if _, err := f.coach.ExportCalendar(ctx, f.userID+1, f.plan.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for another user, got %v", err)
	}
}

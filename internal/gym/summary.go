package gym

import (
	"context"
	"fmt"
	"strings"
)

// describeSet renders a set as "8-10 reps @ 80 kg, RIR 2, rest 120s, tempo 3-1-1".
func describeSet(s SetDetail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", s.PrescribedReps1)
	if s.PrescribedReps2 != nil && *s.PrescribedReps2 != s.PrescribedReps1 {
		fmt.Fprintf(&b, "-%d", *s.PrescribedReps2)
	}
	b.WriteString(" reps")
	if s.Weight != nil {
		fmt.Fprintf(&b, " @ %g kg", *s.Weight)
	}
	if s.RIR != nil {
		fmt.Fprintf(&b, ", RIR %d", *s.RIR)
	}
	if s.RestSeconds != nil {
		fmt.Fprintf(&b, ", rest %ds", *s.RestSeconds)
	}
	if s.Tempo != "" {
		fmt.Fprintf(&b, ", tempo %s", s.Tempo)
	}
	if s.Warmup {
		b.WriteString(" (warm-up)")
	}
	return b.String()
}

// itemSummary renders an item as its exercise followed by one line per set.
func itemSummary(it Item, sets []SetWithExercise) string {
	var b strings.Builder
	name := "exercise"
	if len(sets) > 0 {
		name = sets[0].ExerciseName
	}
	b.WriteString(name)
	if len(it.IntensityTechniques) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(it.IntensityTechniques, ", "))
	}
	for _, s := range sets {
		prefix := ""
		if s.ExerciseName != name {
			prefix = s.ExerciseName + ": "
		}
		fmt.Fprintf(&b, "\n  - set %d: %s%s", s.SetNumber, prefix, describeSet(s.SetDetail))
	}
	return b.String()
}

func (r *Repository) sectionSummary(ctx context.Context, s Section) (string, error) {
	items, err := r.Items(ctx, s.ID)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s", s.Day.Name())
	if s.Type != "" {
		fmt.Fprintf(&b, " (%s)", s.Type)
	}
	b.WriteString(":")
	for i, it := range items {
		sets, err := r.Sets(ctx, it.ID)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "\n%d. %s", i+1, itemSummary(it, sets))
	}
	return b.String(), nil
}

func (r *Repository) planSummary(ctx context.Context, p Plan) (string, error) {
	sections, err := r.Sections(ctx, p.ID)
	if err != nil {
		return "", err
	}
	parts := []string{fmt.Sprintf("Week from %s to %s", p.StartDate, p.EndDate)}
	for _, s := range sections {
		summary, err := r.sectionSummary(ctx, s)
		if err != nil {
			return "", err
		}
		parts = append(parts, summary)
	}
	return strings.Join(parts, "\n\n"), nil
}

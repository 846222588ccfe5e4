package gym

import (
	"context"
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
)

// ExportCalendar renders a plan as an iCalendar feed with one all-day event per
// training day.
func (c *Coach) ExportCalendar(ctx context.Context, userID, planID int64) (string, error) {
	plan, err := c.repo.GetPlan(ctx, userID, planID)
	if err != nil {
		return "", err
	}
	sections, err := c.repo.Sections(ctx, plan.ID)
	if err != nil {
		return "", err
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//smartfit-coach//gym plan//IT")

	stamp := time.Now().UTC()
	for _, s := range sections {
		offset := s.Day.Offset()
		if offset < 0 {
			continue
		}
		day := plan.StartDate.AddDays(offset)

		summary, err := c.repo.sectionSummary(ctx, s)
		if err != nil {
			return "", err
		}
		title := s.Day.Name()
		if s.Type != "" {
			title = fmt.Sprintf("%s - %s", s.Type, title)
		}
		description := summary
		if s.Note != "" {
			description = s.Note + "\n\n" + summary
		}

		event := cal.AddEvent(fmt.Sprintf("gym-section-%d@smartfit-coach", s.ID))
		event.SetDtStampTime(stamp)
		event.SetAllDayStartAt(day.Time)
		event.SetAllDayEndAt(day.AddDays(1).Time)
		event.SetSummary(title)
		event.SetDescription(description)
	}
	return cal.Serialize(), nil
}

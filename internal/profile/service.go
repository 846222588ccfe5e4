package profile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"smartfit-coach/internal/generation"
	"smartfit-coach/internal/prompt"
)

// Service saves goals and keeps their classification in sync.
type Service struct {
	repo     *Repository
	pipeline *generation.Pipeline
	language string
}

// NewService creates a new Service.
func NewService(repo *Repository, pipeline *generation.Pipeline, language string) *Service {
	return &Service{repo: repo, pipeline: pipeline, language: language}
}

// SaveGoal stores a new goal description. Classification runs when the text
// differs from the stored one, or when the stored text never got a category. When
// it fails the description is still saved with
// no category, and ErrGoalNotClassified is returned next to the profile.
func (s *Service) SaveGoal(ctx context.Context, userID int64, description string) (*Profile, error) {
	current, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	description = strings.TrimSpace(description)
	if description == current.GoalDescription && (description == "" || current.GoalCategory != "") {
		return current, nil
	}

	updated := &Profile{UserID: userID, GoalDescription: description}

	var classifyErr error
	if description != "" {
		category, explanation, err := s.classify(ctx, description)
		if err != nil {
			slog.Warn("goal classification failed", "user_id", userID, "error", err)
			classifyErr = err
		} else {
			updated.GoalCategory = category
			updated.GoalExplanation = explanation
		}
	}

	if err := s.repo.Save(ctx, updated); err != nil {
		return nil, err
	}
	if classifyErr != nil {
		return updated, fmt.Errorf("%w: %w", ErrGoalNotClassified, classifyErr)
	}
	return updated, nil
}

func (s *Service) classify(ctx context.Context, description string) (GoalCategory, string, error) {
	answer, _, err := s.pipeline.Text(ctx, generation.Request{
		Template: prompt.GoalCategory,
		Params:   prompt.Params{"Description": description},
	})
	if err != nil {
		return "", "", err
	}
	category, ok := ParseGoalCategory(answer)
	if !ok {
		return "", "", &generation.MalformedOutputError{
			Template: prompt.GoalCategory,
			Shape:    generation.ShapeText,
			Raw:      answer,
			Err:      fmt.Errorf("unknown goal category"),
		}
	}

	explanation, _, err := s.pipeline.Text(ctx, generation.Request{
		Template: prompt.GoalExplanation,
		Params: prompt.Params{
			"Description": description,
			"Category":    string(category),
			"Language":    s.language,
		},
	})
	if err != nil {
		return "", "", err
	}
	return category, truncate(explanation, 300), nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max]))
}

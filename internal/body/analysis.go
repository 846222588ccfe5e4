package body

import (
	"context"
	"strings"

	"smartfit-coach/internal/database"
	"smartfit-coach/internal/generation"
	"smartfit-coach/internal/prompt"
)

const maxCommentLength = 500

// GoalSource provides the user's goal description.
type GoalSource interface {
	GoalDescription(ctx context.Context, userID int64) (string, error)
}

// Analyst comments on weight and measurement trends. It never writes.
type Analyst struct {
	repo     *Repository
	goals    GoalSource
	pipeline *generation.Pipeline
	language string
}

// NewAnalyst creates a new Analyst.
func NewAnalyst(repo *Repository, goals GoalSource, pipeline *generation.Pipeline, language string) *Analyst {
	return &Analyst{repo: repo, goals: goals, pipeline: pipeline, language: language}
}

// AnalyzeWeights comments on the last days of weight samples. days <= 0 means
// DefaultWindowDays.
func (a *Analyst) AnalyzeWeights(ctx context.Context, userID int64, days int) (string, error) {
	samples, err := a.repo.WeightsSince(ctx, userID, windowStart(days))
	if err != nil {
		return "", err
	}
	if len(samples) == 0 {
		return "", ErrNoData
	}
	goal, err := a.goals.GoalDescription(ctx, userID)
	if err != nil {
		return "", err
	}

	text, _, err := a.pipeline.Text(ctx, generation.Request{
		Template: prompt.WeightAnalysis,
		Params: prompt.Params{
			"Goal":     goal,
			"Weights":  FormatWeights(samples),
			"Language": a.language,
		},
	})
	if err != nil {
		return "", err
	}
	return clip(text), nil
}

// AnalyzeMeasurements comments on the last days of body measurements.
func (a *Analyst) AnalyzeMeasurements(ctx context.Context, userID int64, days int) (string, error) {
	rows, err := a.repo.MeasurementsSince(ctx, userID, windowStart(days))
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", ErrNoData
	}
	goal, err := a.goals.GoalDescription(ctx, userID)
	if err != nil {
		return "", err
	}

	text, _, err := a.pipeline.Text(ctx, generation.Request{
		Template: prompt.BodyAnalysis,
		Params: prompt.Params{
			"Goal":         goal,
			"Measurements": FormatMeasurements(rows),
			"Language":     a.language,
		},
	})
	if err != nil {
		return "", err
	}
	return clip(text), nil
}

// History is the recent trend used as context by other generations.
type History struct {
	Weights      string
	Measurements string
}

// RecentHistory formats the last DefaultWindowDays of both series. Empty series
// render as "none".
func (r *Repository) RecentHistory(ctx context.Context, userID int64) (History, error) {
	since := windowStart(0)
	weights, err := r.WeightsSince(ctx, userID, since)
	if err != nil {
		return History{}, err
	}
	measurements, err := r.MeasurementsSince(ctx, userID, since)
	if err != nil {
		return History{}, err
	}
	h := History{Weights: FormatWeights(weights), Measurements: FormatMeasurements(measurements)}
	if h.Weights == "" {
		h.Weights = "none"
	}
	if h.Measurements == "" {
		h.Measurements = "none"
	}
	return h, nil
}

func windowStart(days int) database.Date {
	if days <= 0 {
		days = DefaultWindowDays
	}
	return database.Today().AddDays(-days)
}

func clip(s string) string {
	r := []rune(s)
	if len(r) <= maxCommentLength {
		return s
	}
	return strings.TrimSpace(string(r[:maxCommentLength]))
}

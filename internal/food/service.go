package food

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"smartfit-coach/internal/body"
	"smartfit-coach/internal/generation"
	"smartfit-coach/internal/llm"
	"smartfit-coach/internal/matcher"
	"smartfit-coach/internal/prompt"
)

// GoalSource provides the user's goal description.
type GoalSource interface {
	GoalDescription(ctx context.Context, userID int64) (string, error)
}

// HistorySource provides the recent weight and measurement trend.
type HistorySource interface {
	RecentHistory(ctx context.Context, userID int64) (body.History, error)
}

// Service runs the food generations on top of the repository.
type Service struct {
	repo      *Repository
	matcher   *matcher.Matcher
	pipelines generation.Pipelines
	goals     GoalSource
	history   HistorySource
	language  string
}

// NewService creates a new Service.
func NewService(repo *Repository, m *matcher.Matcher, pipelines generation.Pipelines, goals GoalSource, history HistorySource, language string) *Service {
	return &Service{
		repo:      repo,
		matcher:   m,
		pipelines: pipelines,
		goals:     goals,
		history:   history,
		language:  language,
	}
}

// parsedFood is one element of the meal parsing contract.
type parsedFood struct {
	Meal     string   `json:"meal"`
	Keywords []string `json:"keywords"`
	Quantity float64  `json:"quantity"`
}

// ParseMeal splits a free-text meal description into foods and resolves each to
// a catalog item, fabricating items that do not exist yet.
func (s *Service) ParseMeal(ctx context.Context, userID int64, description string) ([]ResolvedFood, error) {
	var parsed []parsedFood
	if _, err := s.pipelines.Precise.Array(ctx, generation.Request{
		Template: prompt.MealParsing,
		Params:   prompt.Params{"Description": description},
	}, &parsed); err != nil {
		return nil, err
	}
	return s.resolveAll(ctx, userID, parsed)
}

// ParseMealImage does the same as ParseMeal for a photo. hint may be empty.
func (s *Service) ParseMealImage(ctx context.Context, userID int64, image llm.Image, hint string) ([]ResolvedFood, error) {
	var parsed []parsedFood
	if _, err := s.pipelines.Vision.Array(ctx, generation.Request{
		Template: prompt.MealParsingImage,
		Params:   prompt.Params{"Hint": strings.TrimSpace(hint), "Language": s.language},
		Image:    &image,
	}, &parsed); err != nil {
		return nil, err
	}
	return s.resolveAll(ctx, userID, parsed)
}

func (s *Service) resolveAll(ctx context.Context, userID int64, parsed []parsedFood) ([]ResolvedFood, error) {
	out := make([]ResolvedFood, 0, len(parsed))
	for _, p := range parsed {
		if strings.TrimSpace(p.Meal) == "" {
			continue
		}
		resolved, err := s.resolveFood(ctx, userID, p)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}

// resolveFood matches a generated food against the catalog and fabricates a new
// item when nothing matches. Model failures leave the food unresolved; only
// storage errors are returned.
func (s *Service) resolveFood(ctx context.Context, userID int64, p parsedFood) (ResolvedFood, error) {
	resolved := ResolvedFood{Meal: p.Meal, Keywords: p.Keywords, Quantity: p.Quantity}
	if resolved.Keywords == nil {
		resolved.Keywords = []string{}
	}

	match, err := s.matcher.Resolve(ctx, s.repo.Items(), userID, p.Meal, p.Keywords)
	if err != nil {
		if !isGenerationFailure(err) {
			return ResolvedFood{}, err
		}
		slog.Warn("food selection failed, fabricating", "meal", p.Meal, "error", err)
	}
	if match.Found() {
		resolved.FoodItemID, resolved.FoodItemName = match.ID, match.Name
		return resolved, nil
	}

	item, err := s.FabricateItem(ctx, userID, p.Meal)
	if err != nil {
		if !isGenerationFailure(err) {
			return ResolvedFood{}, err
		}
		slog.Warn("food fabrication failed", "meal", p.Meal, "error", err)
		return resolved, nil
	}
	resolved.FoodItemID, resolved.FoodItemName = &item.ID, &item.Name
	resolved.Fabricated = true
	return resolved, nil
}

func isGenerationFailure(err error) bool {
	var malformed *generation.MalformedOutputError
	return errors.As(err, &malformed)
}

type fabricatedItem struct {
	Name  string `json:"name"`
	Brand string `json:"brand"`
	Nutrients
}

// FabricateItem asks the model for the nutritional values of name and stores the
// result as a new item owned by userID.
func (s *Service) FabricateItem(ctx context.Context, userID int64, name string) (*Item, error) {
	var generated fabricatedItem
	meta, err := s.pipelines.Precise.Object(ctx, generation.Request{
		Template: prompt.FoodItemFabrication,
		Params:   prompt.Params{"Name": name},
	}, &generated)
	if err != nil {
		return nil, err
	}
	if err := generated.Nutrients.validate(); err != nil {
		return nil, &generation.MalformedOutputError{
			Template: meta.AgentName,
			Shape:    generation.ShapeObject,
			Raw:      fmt.Sprintf("%+v", generated),
			Err:      err,
		}
	}

	item := &Item{
		AuthorID:  &userID,
		Name:      strings.TrimSpace(generated.Name),
		Brand:     strings.TrimSpace(generated.Brand),
		Nutrients: generated.Nutrients,
	}
	if item.Name == "" {
		item.Name = name
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, err
	}
	slog.Info("fabricated food item", "user_id", userID, "item_id", item.ID, "name", item.Name)
	return item, nil
}

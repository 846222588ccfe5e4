package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"smartfit-coach/internal/generation"
	"smartfit-coach/internal/prompt"
)

// FallbackSampleSize caps how many catalog entries are offered to the model when
// the keyword filter finds nothing.
const FallbackSampleSize = 15

// Candidate is a named catalog entry.
type Candidate struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// Catalog is a searchable collection of entities visible to one user.
type Catalog interface {
	// Kind names the entity in prompts, e.g. "food".
	Kind() string
	// SearchByKeywords returns entries whose name contains any keyword,
	// case-insensitively.
	SearchByKeywords(ctx context.Context, userID int64, keywords []string) ([]Candidate, error)
	// Sample returns up to limit entries.
	Sample(ctx context.Context, userID int64, limit int) ([]Candidate, error)
}

// Match is the resolved entity. ID and Name are nil when nothing matched.
type Match struct {
	ID   *int64  `json:"id"`
	Name *string `json:"name"`
}

// Found reports whether the match points at an entity.
func (m Match) Found() bool {
	return m.ID != nil
}

// NoMatchFoundError is returned by ResolveRequired when a label resolves to nothing.
type NoMatchFoundError struct {
	Kind  string
	Label string
}

func (e *NoMatchFoundError) Error() string {
	return fmt.Sprintf("no %s matches %q", e.Kind, e.Label)
}

// Matcher resolves free-text labels to catalog entities.
type Matcher struct {
	pipeline *generation.Pipeline
}

// New creates a Matcher that disambiguates with pipeline.
func New(pipeline *generation.Pipeline) *Matcher {
	return &Matcher{pipeline: pipeline}
}

// Resolve filters the catalog by keywords (falling back to a bounded sample), then
// asks the model to pick one candidate. The answer must equal a candidate name
// exactly; anything else is no match.
func (m *Matcher) Resolve(ctx context.Context, catalog Catalog, userID int64, label string, keywords []string) (Match, error) {
	candidates, err := m.Candidates(ctx, catalog, userID, label, keywords)
	if err != nil {
		return Match{}, err
	}
	if len(candidates) == 0 {
		return Match{}, nil
	}

	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}

	choice, _, err := m.pipeline.Text(ctx, generation.Request{
		Template: prompt.EntitySelection,
		Params: prompt.Params{
			"Kind":       catalog.Kind(),
			"Label":      label,
			"Candidates": names,
		},
	})
	if err != nil {
		return Match{}, fmt.Errorf("selecting %s for %q: %w", catalog.Kind(), label, err)
	}

	return SelectExact(choice, candidates), nil
}

// ResolveRequired is Resolve for use sites that cannot continue without a match.
func (m *Matcher) ResolveRequired(ctx context.Context, catalog Catalog, userID int64, label string, keywords []string) (Candidate, error) {
	match, err := m.Resolve(ctx, catalog, userID, label, keywords)
	if err != nil {
		return Candidate{}, err
	}
	if !match.Found() {
		return Candidate{}, &NoMatchFoundError{Kind: catalog.Kind(), Label: label}
	}
	return Candidate{ID: *match.ID, Name: *match.Name}, nil
}

// Candidates runs the keyword filter step alone.
func (m *Matcher) Candidates(ctx context.Context, catalog Catalog, userID int64, label string, keywords []string) ([]Candidate, error) {
	keywords = normalizeKeywords(keywords)
	if len(keywords) == 0 && strings.TrimSpace(label) != "" {
		keywords = []string{strings.TrimSpace(label)}
	}

	var candidates []Candidate
	if len(keywords) > 0 {
		found, err := catalog.SearchByKeywords(ctx, userID, keywords)
		if err != nil {
			return nil, fmt.Errorf("searching %s candidates: %w", catalog.Kind(), err)
		}
		candidates = found
	}

	if len(candidates) == 0 {
		sample, err := catalog.Sample(ctx, userID, FallbackSampleSize)
		if err != nil {
			return nil, fmt.Errorf("sampling %s candidates: %w", catalog.Kind(), err)
		}
		if len(sample) > FallbackSampleSize {
			sample = sample[:FallbackSampleSize]
		}
		slog.Debug("keyword filter empty, using sample", "kind", catalog.Kind(), "label", label, "sample", len(sample))
		candidates = sample
	}
	return candidates, nil
}

// SelectExact returns the candidate whose name equals choice, case-sensitively.
func SelectExact(choice string, candidates []Candidate) Match {
	for _, c := range candidates {
		if c.Name == choice {
			id, name := c.ID, c.Name
			return Match{ID: &id, Name: &name}
		}
	}
	return Match{}
}

func normalizeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// KeywordClause builds "LOWER(column) LIKE ? OR ..." with one argument per
// keyword, for catalogs backed by SQL.
func KeywordClause(column string, keywords []string) (string, []any) {
	parts := make([]string, 0, len(keywords))
	args := make([]any, 0, len(keywords))
	for _, k := range keywords {
		parts = append(parts, "LOWER("+column+`) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(k))+"%")
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

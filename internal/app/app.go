package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"smartfit-coach/internal/body"
	"smartfit-coach/internal/config"
	"smartfit-coach/internal/database"
	"smartfit-coach/internal/food"
	"smartfit-coach/internal/generation"
	"smartfit-coach/internal/gym"
	"smartfit-coach/internal/llm"
	"smartfit-coach/internal/matcher"
	"smartfit-coach/internal/metrics"
	"smartfit-coach/internal/profile"
	"smartfit-coach/internal/prompt"
)

// Generators are the model clients behind each pipeline role.
type Generators struct {
	Precise  llm.TextGenerator
	Creative llm.TextGenerator
	Vision   llm.VisionGenerator
}

// App holds the application's dependencies.
type App struct {
	cfg *config.Config
	db  *database.DB

	Metrics *metrics.Store
	Hub     *metrics.Hub

	Users    *profile.Repository
	Profiles *profile.Service
	Body     *body.Repository
	Analyst  *body.Analyst
	Foods    *food.Repository
	Food     *food.Service
	Gym      *gym.Repository
	Coach    *gym.Coach

	closers []llm.Closer
}

// NewLogger builds a text logger at level and installs it as the default.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

// NewGenerators creates the provider clients: the precise one at temperature 0,
// the creative one at the configured temperature and the vision one at 0.
func NewGenerators(ctx context.Context, cfg *config.Config) (Generators, []llm.Closer, error) {
	switch cfg.LLMProvider {
	case config.ProviderGroq:
		return Generators{
			Precise:  llm.NewGroqClient(cfg, cfg.PreciseModel, 0),
			Creative: llm.NewGroqClient(cfg, cfg.CreativeModel, cfg.CreativeTemperature),
			Vision:   llm.NewGroqClient(cfg, cfg.VisionModel, 0),
		}, nil, nil
	default:
		var closers []llm.Closer
		closeAll := func() {
			for _, c := range closers {
				c.Close()
			}
		}
		precise, err := llm.NewGeminiClient(ctx, cfg, cfg.PreciseModel, 0)
		if err != nil {
			return Generators{}, nil, err
		}
		closers = append(closers, precise)
		creative, err := llm.NewGeminiClient(ctx, cfg, cfg.CreativeModel, cfg.CreativeTemperature)
		if err != nil {
			closeAll()
			return Generators{}, nil, err
		}
		closers = append(closers, creative)
		vision, err := llm.NewGeminiClient(ctx, cfg, cfg.VisionModel, 0)
		if err != nil {
			closeAll()
			return Generators{}, nil, err
		}
		closers = append(closers, vision)
		return Generators{Precise: precise, Creative: creative, Vision: vision}, closers, nil
	}
}

// New opens the database and wires every service against the configured
// provider.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.NewDB(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	gens, closers, err := NewGenerators(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create LLM clients: %w", err)
	}
	a, err := NewWithGenerators(cfg, db, gens)
	if err != nil {
		db.Close()
		return nil, err
	}
	a.closers = closers
	return a, nil
}

// NewWithGenerators wires every service on an open database with the given
// generators.
func NewWithGenerators(cfg *config.Config, db *database.DB, gens Generators) (*App, error) {
	renderer, err := prompt.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}

	store := metrics.NewStore(db.SQL)
	hub := metrics.NewHub()
	store.OnRecord(hub.Broadcast)

	opts := []generation.Option{
		generation.WithTimeout(cfg.LLMTimeout),
		generation.WithRecorder(store),
	}
	pipelines := generation.Pipelines{
		Precise:  generation.New(gens.Precise, renderer, opts...),
		Creative: generation.New(gens.Creative, renderer, opts...),
		Vision:   generation.New(gens.Vision, renderer, opts...),
	}
	m := matcher.New(pipelines.Precise)

	users := profile.NewRepository(db.SQL)
	bodyRepo := body.NewRepository(db.SQL)
	foods := food.NewRepository(db.SQL)
	gymRepo := gym.NewRepository(db.SQL)

	return &App{
		cfg:      cfg,
		db:       db,
		Metrics:  store,
		Hub:      hub,
		Users:    users,
		Profiles: profile.NewService(users, pipelines.Precise, cfg.ResponseLanguage),
		Body:     bodyRepo,
		Analyst:  body.NewAnalyst(bodyRepo, users, pipelines.Creative, cfg.ResponseLanguage),
		Foods:    foods,
		Food:     food.NewService(foods, m, pipelines, users, bodyRepo, cfg.ResponseLanguage),
		Gym:      gymRepo,
		Coach:    gym.NewCoach(gymRepo, m, pipelines, users, cfg.ResponseLanguage),
	}, nil
}

// Config returns the configuration the app was built with.
func (a *App) Config() *config.Config {
	return a.cfg
}

// DataDir is the directory measured by health reports.
func (a *App) DataDir() string {
	if a.db.Dialect == database.SQLite {
		return filepath.Dir(a.cfg.DatabaseURL)
	}
	return "."
}

// Health reports runtime and host health.
func (a *App) Health() metrics.SysHealth {
	return metrics.GetSysHealth(a.DataDir())
}

// Close releases the model clients and the database.
func (a *App) Close() error {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			slog.Warn("closing LLM client", "error", err)
		}
	}
	return a.db.Close()
}

// ResetEaten clears the eaten flag on multi-day plans and prints the count.
func (a *App) ResetEaten(ctx context.Context, w io.Writer) error {
	n, err := a.Foods.ResetEaten(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset eaten flags: %w", err)
	}
	fmt.Fprintf(w, "Reset %d plan items.\n", n)
	return nil
}

// ImportFoods loads a food catalog CSV and prints a report.
func (a *App) ImportFoods(ctx context.Context, path string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	report, err := a.Foods.ImportCSV(ctx, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Created: %d\nExisting: %d\nErrors: %d\n", report.Created, report.Existing, len(report.Errors))
	for _, rowErr := range report.Errors {
		fmt.Fprintf(w, "  line %d: %v\n", rowErr.Line, rowErr.Err)
	}
	return nil
}

// CleanupMetrics deletes execution metrics older than days.
func (a *App) CleanupMetrics(ctx context.Context, days int, w io.Writer) error {
	n, err := a.Metrics.Cleanup(ctx, days)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Deleted %d execution metrics older than %d days.\n", n, days)
	return nil
}

// PrintUsage prints daily token usage for the last days.
func (a *App) PrintUsage(ctx context.Context, days int, w io.Writer) error {
	usage, err := a.Metrics.GetDailyUsage(ctx, days)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "=== TOKEN USAGE ===")
	if len(usage) == 0 {
		fmt.Fprintln(w, "No executions recorded.")
		return nil
	}
	for _, u := range usage {
		fmt.Fprintf(w, "%s: %d runs, %d prompt, %d completion\n", u.Date, u.TotalExecution, u.TotalPrompt, u.TotalCompletion)
	}
	return nil
}

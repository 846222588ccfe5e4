package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"smartfit-coach/internal/shared"

	"github.com/jmoiron/sqlx"
)

const timestampLayout = "2006-01-02 15:04:05"

// ExecutionMetric records metadata for a single agent execution.
type ExecutionMetric struct {
	AgentName        string    `db:"agent_name" json:"agent_name"`
	Model            string    `db:"model" json:"model"`
	PromptTokens     int       `db:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int       `db:"completion_tokens" json:"completion_tokens"`
	LatencyMS        int64     `db:"latency_ms" json:"latency_ms"`
	Timestamp        time.Time `db:"-" json:"timestamp"`
}

// Store handles persistence of metrics.
type Store struct {
	db *sqlx.DB

	mu       sync.RWMutex
	onRecord []func(ExecutionMetric)
}

// NewStore initializes the Store with an existing database connection.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// OnRecord registers fn to be called after every stored metric.
func (s *Store) OnRecord(fn func(ExecutionMetric)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRecord = append(s.onRecord, fn)
}

// Record saves a metric to the database.
func (s *Store) Record(ctx context.Context, m ExecutionMetric) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO execution_metrics (agent_name, model, prompt_tokens, completion_tokens, latency_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`),
		m.AgentName, m.Model, m.PromptTokens, m.CompletionTokens, m.LatencyMS, m.Timestamp.UTC().Format(timestampLayout))
	if err != nil {
		return fmt.Errorf("failed to insert execution metric: %w", err)
	}

	s.mu.RLock()
	hooks := s.onRecord
	s.mu.RUnlock()
	for _, fn := range hooks {
		fn(m)
	}
	return nil
}

// RecordMeta records metrics directly from shared.AgentMeta. Runs without token
// usage are skipped.
func (s *Store) RecordMeta(meta shared.AgentMeta) error {
	if meta.Usage.PromptTokens == 0 && meta.Usage.CompletionTokens == 0 {
		return nil
	}
	return s.Record(context.Background(), MapUsage(meta.AgentName, meta.Usage, meta.Latency))
}

// DailyUsage represents token totals for a single day.
type DailyUsage struct {
	Date            string `db:"day" json:"date"`
	TotalPrompt     int    `db:"total_prompt" json:"total_prompt"`
	TotalCompletion int    `db:"total_completion" json:"total_completion"`
	TotalExecution  int    `db:"total_execution" json:"total_execution"`
}

// GetDailyUsage retrieves usage for the last N days, oldest first.
func (s *Store) GetDailyUsage(ctx context.Context, days int) ([]DailyUsage, error) {
	since := time.Now().UTC().AddDate(0, 0, -days).Format(timestampLayout)
	var out []DailyUsage
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
		SELECT SUBSTR(timestamp, 1, 10) AS day,
			COALESCE(SUM(prompt_tokens), 0) AS total_prompt,
			COALESCE(SUM(completion_tokens), 0) AS total_completion,
			COUNT(*) AS total_execution
		FROM execution_metrics
		WHERE timestamp >= ?
		GROUP BY SUBSTR(timestamp, 1, 10)
		ORDER BY day`), since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily usage: %w", err)
	}
	return out, nil
}

// Cleanup removes records older than the specified number of days and returns
// how many were deleted.
func (s *Store) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	threshold := time.Now().UTC().AddDate(0, 0, -olderThanDays).Format(timestampLayout)
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM execution_metrics WHERE timestamp < ?`), threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up execution metrics: %w", err)
	}
	return res.RowsAffected()
}

// MapUsage converts token usage to an ExecutionMetric.
func MapUsage(agentName string, usage shared.TokenUsage, latency time.Duration) ExecutionMetric {
	return ExecutionMetric{
		AgentName:        agentName,
		Model:            usage.Model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		LatencyMS:        latency.Milliseconds(),
		Timestamp:        time.Now().UTC(),
	}
}

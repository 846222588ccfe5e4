package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"smartfit-coach/internal/database"

	"github.com/jmoiron/sqlx"
)

// Proposal is a generated value for one record. A nil Value means the model left
// it out.
type Proposal struct {
	TargetID int64
	Value    *float64
}

// SkipReason explains why a proposal was not applied.
type SkipReason string

const (
	SkipNotFound     SkipReason = "not_found"
	SkipMissingValue SkipReason = "missing_value"
	SkipBelowMinimum SkipReason = "below_minimum"
	SkipImmaterial   SkipReason = "immaterial"
)

// Skipped is the per-item outcome of a proposal that was not applied.
type Skipped struct {
	TargetID int64      `json:"target_id"`
	Reason   SkipReason `json:"reason"`
}

// Report lists the ids that were changed and the proposals that were skipped.
type Report struct {
	Changed []int64   `json:"changed"`
	Skipped []Skipped `json:"skipped"`
}

// Rules are the entity-specific guards applied to every proposal.
type Rules struct {
	// Minimum is the smallest value that may be written.
	Minimum float64
	// Materiality is the smallest change worth writing.
	Materiality float64
}

// Target reads and writes one numeric field of one kind of record. Both methods
// run inside the reconciliation transaction and must only see records in the
// caller's scope.
type Target interface {
	Current(ctx context.Context, q sqlx.ExtContext, id int64) (value float64, found bool, err error)
	Update(ctx context.Context, q sqlx.ExtContext, id int64, value float64) error
}

// Apply writes every acceptable proposal inside one transaction. Skips never abort
// the batch; any read or write error rolls everything back.
func Apply(ctx context.Context, db *sqlx.DB, target Target, rules Rules, proposals []Proposal) (Report, error) {
	report := Report{Changed: []int64{}, Skipped: []Skipped{}}

	err := database.InTx(ctx, db, func(tx *sqlx.Tx) error {
		for _, p := range proposals {
			if p.Value == nil {
				report.skip(p.TargetID, SkipMissingValue)
				continue
			}
			proposed := *p.Value
			if proposed < rules.Minimum {
				report.skip(p.TargetID, SkipBelowMinimum)
				continue
			}

			current, found, err := target.Current(ctx, tx, p.TargetID)
			if err != nil {
				return fmt.Errorf("reading target %d: %w", p.TargetID, err)
			}
			if !found {
				report.skip(p.TargetID, SkipNotFound)
				continue
			}
			if math.Abs(proposed-current) < rules.Materiality {
				report.skip(p.TargetID, SkipImmaterial)
				continue
			}

			if err := target.Update(ctx, tx, p.TargetID, proposed); err != nil {
				return fmt.Errorf("updating target %d: %w", p.TargetID, err)
			}
			report.Changed = append(report.Changed, p.TargetID)
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}
	return report, nil
}

func (r *Report) skip(id int64, reason SkipReason) {
	slog.Info("reconciliation skipped", "target_id", id, "reason", reason)
	r.Skipped = append(r.Skipped, Skipped{TargetID: id, Reason: reason})
}

// Replace runs a delete-then-recreate of child records in one transaction, so a
// failure part way leaves the previous children untouched.
func Replace(ctx context.Context, db *sqlx.DB, deleteOld func(tx *sqlx.Tx) error, createNew func(tx *sqlx.Tx) error) error {
	return database.InTx(ctx, db, func(tx *sqlx.Tx) error {
		if err := deleteOld(tx); err != nil {
			return fmt.Errorf("deleting previous records: %w", err)
		}
		if err := createNew(tx); err != nil {
			return fmt.Errorf("creating replacement records: %w", err)
		}
		return nil
	})
}

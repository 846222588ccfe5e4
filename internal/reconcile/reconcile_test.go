package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"

	"smartfit-coach/internal/testutil"

	"github.com/jmoiron/sqlx"
)

// quantityTarget reconciles weight_samples.value, which is enough to exercise the
// engine against a real transaction.
type quantityTarget struct {
	userID   int64
	failOnID int64
}

func (t quantityTarget) Current(ctx context.Context, q sqlx.ExtContext, id int64) (float64, bool, error) {
	var v float64
	err := sqlx.GetContext(ctx, q, &v, q.Rebind(`SELECT value FROM weight_samples WHERE id = ? AND user_id = ?`), id, t.userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	return v, err == nil, err
}

func (t quantityTarget) Update(ctx context.Context, q sqlx.ExtContext, id int64, value float64) error {
	if id == t.failOnID {
		return errors.New("boom")
	}
	_, err := q.ExecContext(ctx, q.Rebind(`UPDATE weight_samples SET value = ? WHERE id = ?`), value, id)
	return err
}

func ptr(v float64) *float64 { return &v }

func seed(t *testing.T, db *sqlx.DB, userID int64, values ...float64) []int64 {
	t.Helper()
	var ids []int64
	for _, v := range values {
		var id int64
		if err := db.QueryRowx(`INSERT INTO weight_samples (user_id, date, value) VALUES (?, '2025-01-01', ?) RETURNING id`, userID, v).Scan(&id); err != nil {
			t.Fatalf("seed: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func value(t *testing.T, db *sqlx.DB, id int64) float64 {
	t.Helper()
	var v float64
	if err := db.Get(&v, `SELECT value FROM weight_samples WHERE id = ?`, id); err != nil {
		t.Fatalf("read: %v", err)
	}
	return v
}

var rules = Rules{Minimum: 10, Materiality: 0.01}

func TestApply(t *testing.T) {
	db := testutil.NewTestDB(t)
	owner := testutil.CreateUser(t, db, "owner")
	other := testutil.CreateUser(t, db, "other")
	ids := seed(t, db, owner, 100, 50, 80, 60)
	foreign := seed(t, db, other, 70)[0]

	report, err := Apply(context.Background(), db, quantityTarget{userID: owner}, rules, []Proposal{
		{TargetID: ids[0], Value: ptr(120)},    // changed
		{TargetID: ids[1], Value: ptr(50.005)}, // immaterial
		{TargetID: ids[2], Value: ptr(9.99)},   // below minimum
		{TargetID: ids[3], Value: nil},         // missing
		{TargetID: 999999, Value: ptr(40)},     // not found
		{TargetID: foreign, Value: ptr(40)},    // other user's record
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if !reflect.DeepEqual(report.Changed, []int64{ids[0]}) {
		t.Errorf("expected only %d changed, got %v", ids[0], report.Changed)
	}
	wantSkips := []Skipped{
		{ids[1], SkipImmaterial},
		{ids[2], SkipBelowMinimum},
		{ids[3], SkipMissingValue},
		{999999, SkipNotFound},
		{foreign, SkipNotFound},
	}
	if !reflect.DeepEqual(report.Skipped, wantSkips) {
		t.Errorf("skips = %v, want %v", report.Skipped, wantSkips)
	}

	if got := value(t, db, ids[0]); got != 120 {
		t.Errorf("expected 120, got %v", got)
	}
	if got := value(t, db, ids[1]); got != 50 {
		t.Errorf("immaterial change must not be written, got %v", got)
	}
	if got := value(t, db, ids[2]); got != 80 {
		t.Errorf("below-minimum change must not be written, got %v", got)
	}
	if got := value(t, db, foreign); got != 70 {
		t.Errorf("other user's record must be untouched, got %v", got)
	}
}

func TestApplyMaterialityProperty(t *testing.T) {
	db := testutil.NewTestDB(t)
	owner := testutil.CreateUser(t, db, "owner")
	ids := seed(t, db, owner, 42)

	for _, delta := range []float64{0, 0.001, -0.005, 0.0099, -0.0099} {
		report, err := Apply(context.Background(), db, quantityTarget{userID: owner}, rules, []Proposal{{TargetID: ids[0], Value: ptr(42 + delta)}})
		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		if len(report.Changed) != 0 {
			t.Errorf("delta %v should be immaterial, changed %v", delta, report.Changed)
		}
	}
	if got := value(t, db, ids[0]); got != 42 {
		t.Errorf("value must be unchanged, got %v", got)
	}
}

func TestApplyFloorProperty(t *testing.T) {
	db := testutil.NewTestDB(t)
	owner := testutil.CreateUser(t, db, "owner")
	ids := seed(t, db, owner, 150)

	for _, proposed := range []float64{9.999, 5, 0, -20} {
		report, err := Apply(context.Background(), db, quantityTarget{userID: owner}, rules, []Proposal{{TargetID: ids[0], Value: ptr(proposed)}})
		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		if len(report.Changed) != 0 || report.Skipped[0].Reason != SkipBelowMinimum {
			t.Errorf("proposal %v should be skipped as below minimum, got %+v", proposed, report)
		}
	}
}

func TestApplyRollsBackOnError(t *testing.T) {
	db := testutil.NewTestDB(t)
	owner := testutil.CreateUser(t, db, "owner")
	ids := seed(t, db, owner, 100, 100)

	_, err := Apply(context.Background(), db, quantityTarget{userID: owner, failOnID: ids[1]}, rules, []Proposal{
		{TargetID: ids[0], Value: ptr(150)},
		{TargetID: ids[1], Value: ptr(150)},
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := value(t, db, ids[0]); got != 100 {
		t.Errorf("first update must be rolled back, got %v", got)
	}
}

func TestReplace(t *testing.T) {
	db := testutil.NewTestDB(t)
	owner := testutil.CreateUser(t, db, "owner")
	seed(t, db, owner, 1, 2, 3)

	count := func() int {
		var n int
		db.Get(&n, `SELECT COUNT(*) FROM weight_samples WHERE user_id = ?`, owner)
		return n
	}

	deleteAll := func(tx *sqlx.Tx) error {
		_, err := tx.Exec(`DELETE FROM weight_samples WHERE user_id = ?`, owner)
		return err
	}

	err := Replace(context.Background(), db, deleteAll, func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(`INSERT INTO weight_samples (user_id, date, value) VALUES (?, '2025-02-01', 10)`, owner); err != nil {
			return err
		}
		return errors.New("generation ran out of items")
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := count(); got != 3 {
		t.Errorf("failed replacement must keep the old rows, got %d", got)
	}

	err = Replace(context.Background(), db, deleteAll, func(tx *sqlx.Tx) error {
		_, err := tx.Exec(`INSERT INTO weight_samples (user_id, date, value) VALUES (?, '2025-02-01', 10)`, owner)
		return err
	})
	if err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if got := count(); got != 1 {
		t.Errorf("expected only the new row, got %d", got)
	}
}

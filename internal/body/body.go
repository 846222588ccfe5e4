package body

import (
	"errors"
	"fmt"
	"strings"

	"smartfit-coach/internal/database"
)

// DefaultWindowDays is how far back analyses look when the caller does not say.
const DefaultWindowDays = 30

// ErrNoData is returned by analyses when the window holds no samples.
var ErrNoData = errors.New("no data in the requested period")

// WeightSample is one body weight reading in kg.
type WeightSample struct {
	ID     int64         `db:"id" json:"id"`
	UserID int64         `db:"user_id" json:"user_id"`
	Date   database.Date `db:"date" json:"date"`
	Value  float64       `db:"value" json:"value"`
}

// Measurement is a set of circumferences in cm taken on one day. Every field is
// optional.
type Measurement struct {
	ID        int64         `db:"id" json:"id"`
	UserID    int64         `db:"user_id" json:"user_id"`
	Date      database.Date `db:"date" json:"date"`
	Chest     *float64      `db:"chest" json:"chest,omitempty"`
	Bicep     *float64      `db:"bicep" json:"bicep,omitempty"`
	Thigh     *float64      `db:"thigh" json:"thigh,omitempty"`
	Waist     *float64      `db:"waist" json:"waist,omitempty"`
	Hips      *float64      `db:"hips" json:"hips,omitempty"`
	Abdomen   *float64      `db:"abdomen" json:"abdomen,omitempty"`
	Calf      *float64      `db:"calf" json:"calf,omitempty"`
	Neck      *float64      `db:"neck" json:"neck,omitempty"`
	Shoulders *float64      `db:"shoulders" json:"shoulders,omitempty"`
}

type namedValue struct {
	name  string
	value *float64
}

func (m Measurement) fields() []namedValue {
	return []namedValue{
		{"Chest", m.Chest},
		{"Bicep", m.Bicep},
		{"Thigh", m.Thigh},
		{"Waist", m.Waist},
		{"Hips", m.Hips},
		{"Abdomen", m.Abdomen},
		{"Calf", m.Calf},
		{"Neck", m.Neck},
		{"Shoulders", m.Shoulders},
	}
}

// Average is the mean of the recorded values, or 0 when none is set.
func (m Measurement) Average() float64 {
	var sum float64
	var n int
	for _, f := range m.fields() {
		if f.value != nil {
			sum += *f.value
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// FormatWeights renders samples one per line as "YYYY-MM-DD: 80.5 kg".
func FormatWeights(samples []WeightSample) string {
	var b strings.Builder
	for i, s := range samples {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s kg", s.Date, formatNumber(s.Value))
	}
	return b.String()
}

// FormatMeasurements renders one line per day listing only recorded values, e.g.
// "2025-01-02: Chest 102 cm Waist 84 cm".
func FormatMeasurements(measurements []Measurement) string {
	var b strings.Builder
	for i, m := range measurements {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Date.String())
		b.WriteByte(':')
		for _, f := range m.fields() {
			if f.value != nil {
				fmt.Fprintf(&b, " %s %s cm", f.name, formatNumber(*f.value))
			}
		}
	}
	return b.String()
}

func formatNumber(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}

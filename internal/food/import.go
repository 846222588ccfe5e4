package food

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var importHeader = []string{
	"author_id", "name", "barcode", "brand", "kcal_per_100g", "protein_per_100g", "carbs_per_100g",
	"sugars_per_100g", "fats_per_100g", "saturated_fats_per_100g", "fiber_per_100g",
}

// RowError is an import row that could not be stored. Line is 1-based and counts
// the header.
type RowError struct {
	Line int    `json:"line"`
	Err  string `json:"error"`
}

// ImportReport summarizes a CSV import.
type ImportReport struct {
	Created  int        `json:"created"`
	Existing int        `json:"existing"`
	Errors   []RowError `json:"errors"`
}

// ImportCSV reads food items from r and creates the ones whose name and barcode
// are not stored yet. Bad rows are reported and skipped.
func (r *Repository) ImportCSV(ctx context.Context, in io.Reader) (*ImportReport, error) {
	reader := csv.NewReader(in)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	columns, err := headerIndex(header)
	if err != nil {
		return nil, err
	}

	report := &ImportReport{Errors: []RowError{}}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			report.Errors = append(report.Errors, RowError{Line: line, Err: err.Error()})
			continue
		}

		item, err := itemFromRecord(record, columns)
		if err != nil {
			report.Errors = append(report.Errors, RowError{Line: line, Err: err.Error()})
			continue
		}

		_, found, err := r.FindItemID(ctx, item.Name, item.Barcode)
		if err != nil {
			return report, err
		}
		if found {
			report.Existing++
			continue
		}
		if err := r.CreateItem(ctx, item); err != nil {
			report.Errors = append(report.Errors, RowError{Line: line, Err: err.Error()})
			continue
		}
		report.Created++
	}
	return report, nil
}

func headerIndex(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, h := range header {
		columns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, want := range importHeader {
		if _, ok := columns[want]; !ok {
			return nil, fmt.Errorf("CSV header is missing column %q", want)
		}
	}
	return columns, nil
}

func itemFromRecord(record []string, columns map[string]int) (*Item, error) {
	field := func(name string) string {
		i := columns[name]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	number := func(name string) (float64, error) {
		raw := strings.ReplaceAll(field(name), ",", ".")
		if raw == "" {
			return 0, nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q", name, field(name))
		}
		if v < 0 {
			return 0, fmt.Errorf("negative %s", name)
		}
		return v, nil
	}

	item := &Item{Name: field("name"), Barcode: field("barcode"), Brand: field("brand")}
	if item.Name == "" {
		return nil, errors.New("missing name")
	}
	if raw := field("author_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid author_id %q", raw)
		}
		item.AuthorID = &id
	}

	targets := []struct {
		column string
		dst    *float64
	}{
		{"kcal_per_100g", &item.Kcal},
		{"protein_per_100g", &item.Protein},
		{"carbs_per_100g", &item.Carbs},
		{"sugars_per_100g", &item.Sugars},
		{"fats_per_100g", &item.Fats},
		{"saturated_fats_per_100g", &item.SaturatedFats},
		{"fiber_per_100g", &item.Fiber},
	}
	for _, t := range targets {
		v, err := number(t.column)
		if err != nil {
			return nil, err
		}
		*t.dst = v
	}
	return item, nil
}

package query

import (
	"sort"

	"github.com/logflow/coursedb/internal/model"
	cerrors "github.com/logflow/coursedb/pkg/errors"
)

// MaxResultRows is the row-count cap enforced after filter/transform
// and before projection, per §4.8.
const MaxResultRows = 5000

// Run executes the filter, optional transform, limit, order, and
// projection stages over ds in sequence (C7→C8→C9). q must already
// have passed Validate against ds.
func Run(q *Query, ds *model.Dataset) ([]map[string]interface{}, error) {
	var matched []Row
	for _, row := range ds.Rows() {
		if Evaluate(&q.Where, row) {
			matched = append(matched, row)
		}
	}

	var records []map[string]interface{}
	if q.Transformations != nil {
		records = Transform(q.Transformations, matched)
	} else {
		records = make([]map[string]interface{}, len(matched))
		for i, row := range matched {
			records[i] = rowToRecord(row, q.Options.Columns)
		}
	}

	if len(records) > MaxResultRows {
		return nil, cerrors.ResultTooLarge(len(records), MaxResultRows)
	}

	if q.Options.Order != nil {
		sortRecords(records, q.Options.Order)
	}

	return project(records, q.Options.Columns), nil
}

// rowToRecord materializes a raw row's requested fields into a map,
// keyed by dataset key so later stages don't need the Row interface.
func rowToRecord(row Row, columns []string) map[string]interface{} {
	rec := make(map[string]interface{}, len(columns))
	for _, col := range columns {
		_, field, _ := splitKey(col, nil)
		v, _ := row.Field(field)
		rec[col] = v
	}
	return rec
}

// project reduces each record to exactly the requested columns, in order.
func project(records []map[string]interface{}, columns []string) []map[string]interface{} {
	out := make([]map[string]interface{}, len(records))
	for i, rec := range records {
		projected := make(map[string]interface{}, len(columns))
		for _, col := range columns {
			projected[col] = rec[col]
		}
		out[i] = projected
	}
	return out
}

// sortRecords sorts in place by ORDER's key priority, stable so rows
// tied on every key keep their relative input order.
func sortRecords(records []map[string]interface{}, order *Order) {
	ascending := order.Dir != "DOWN"
	sort.SliceStable(records, func(i, j int) bool {
		for _, key := range order.Keys {
			cmp := compareValues(records[i][key], records[j][key])
			if cmp == 0 {
				continue
			}
			if ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
}

// compareValues compares two projected scalar values: numerically if
// both are float64, lexicographically if both are strings.
func compareValues(a, b interface{}) int {
	switch av := a.(type) {
	case float64:
		bv, _ := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		bv, _ := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

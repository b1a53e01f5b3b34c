package query

import (
	"strings"

	"github.com/logflow/coursedb/internal/model"
	cerrors "github.com/logflow/coursedb/pkg/errors"
)

// DatasetLookup resolves a dataset id to its Dataset, so Validate can
// check field closed-sets and numeric/string typing against the
// dataset's actual Kind. Returns (nil, false) if id is not loaded.
type DatasetLookup func(id string) (*model.Dataset, bool)

// Validate checks query shape and key references per §4.5. lookup
// resolves the single dataset id the query names; a missing dataset
// surfaces as InvalidQuery (S5: referencing an unloaded dataset is a
// query-level failure, not a store-level NotFound).
func Validate(q *Query, lookup DatasetLookup) (*model.Dataset, error) {
	if len(q.Options.Columns) == 0 {
		return nil, cerrors.InvalidQuery("OPTIONS.COLUMNS must be non-empty")
	}

	applyKeys := map[string]bool{}
	if q.Transformations != nil {
		if len(q.Transformations.Group) == 0 {
			return nil, cerrors.InvalidQuery("TRANSFORMATIONS.GROUP must be non-empty")
		}
		seen := map[string]bool{}
		for _, rule := range q.Transformations.Apply {
			if seen[rule.ApplyKey] {
				return nil, cerrors.InvalidQueryf("duplicate APPLY key %q", rule.ApplyKey)
			}
			seen[rule.ApplyKey] = true
			applyKeys[rule.ApplyKey] = true
		}
	}

	datasetIDs := map[string]bool{}
	var collectErr error
	collect := func(key string) {
		id, field, isApply := splitKey(key, applyKeys)
		if isApply {
			return
		}
		if field == "" {
			collectErr = cerrors.InvalidQueryf("key %q is neither a dataset key nor a declared APPLY key", key)
			return
		}
		datasetIDs[id] = true
	}

	collectWhereKeys(&q.Where, collect)
	for _, col := range q.Options.Columns {
		collect(col)
	}
	if q.Options.Order != nil {
		for _, k := range q.Options.Order.Keys {
			collect(k)
		}
	}
	if q.Transformations != nil {
		for _, g := range q.Transformations.Group {
			collect(g)
		}
		for _, rule := range q.Transformations.Apply {
			collect(rule.DatasetKey)
		}
	}
	if collectErr != nil {
		return nil, collectErr
	}

	if len(datasetIDs) != 1 {
		return nil, cerrors.InvalidQueryf("query must reference exactly one dataset, found %d", len(datasetIDs))
	}
	var datasetID string
	for id := range datasetIDs {
		datasetID = id
	}

	ds, ok := lookup(datasetID)
	if !ok {
		return nil, cerrors.InvalidQueryf("no such dataset %q", datasetID)
	}

	if err := validateKeyMembership(q, ds, applyKeys); err != nil {
		return nil, err
	}
	if err := validateFieldTypes(&q.Where, ds); err != nil {
		return nil, err
	}
	if q.Transformations != nil {
		if err := validateApplyTypes(q.Transformations, ds); err != nil {
			return nil, err
		}
	}
	if err := validateOrder(q); err != nil {
		return nil, err
	}
	if err := validateWherePatterns(&q.Where); err != nil {
		return nil, err
	}

	return ds, nil
}

// splitKey splits "<datasetId>_<field>" using the fact that dataset
// ids (validated at add-time) never contain an underscore, so the
// first underscore is always the separator. A key with no underscore
// at all is either a bare apply key or invalid.
func splitKey(key string, applyKeys map[string]bool) (id, field string, isApply bool) {
	if applyKeys[key] {
		return "", "", true
	}
	idx := strings.IndexByte(key, '_')
	if idx < 0 {
		return "", "", false
	}
	return key[:idx], key[idx+1:], false
}

func collectWhereKeys(w *Where, collect func(string)) {
	switch w.Kind {
	case OpAnd:
		for i := range w.And {
			collectWhereKeys(&w.And[i], collect)
		}
	case OpOr:
		for i := range w.Or {
			collectWhereKeys(&w.Or[i], collect)
		}
	case OpNot:
		collectWhereKeys(w.Not, collect)
	case OpGT, OpLT, OpEQ, OpIS:
		collect(w.Key)
	}
}

// validateKeyMembership enforces rule 2 (COLUMNS <-> APPLY correspondence)
// and rule 3 (GROUP must cover every dataset key in COLUMNS).
func validateKeyMembership(q *Query, ds *model.Dataset, applyKeys map[string]bool) error {
	columnSet := map[string]bool{}
	for _, c := range q.Options.Columns {
		columnSet[c] = true
		_, field, isApply := splitKey(c, applyKeys)
		if isApply {
			continue
		}
		if !ds.ValidFields()[field] {
			return cerrors.InvalidQueryf("unknown field in column %q", c)
		}
	}
	for applyKey := range applyKeys {
		if !columnSet[applyKey] {
			return cerrors.InvalidQueryf("APPLY key %q declared but not in COLUMNS", applyKey)
		}
	}

	if q.Transformations != nil {
		groupSet := map[string]bool{}
		for _, g := range q.Transformations.Group {
			_, field, _ := splitKey(g, nil)
			if !ds.ValidFields()[field] {
				return cerrors.InvalidQueryf("unknown field in GROUP key %q", g)
			}
			groupSet[g] = true
		}
		for _, c := range q.Options.Columns {
			if applyKeys[c] {
				continue
			}
			if !groupSet[c] {
				return cerrors.InvalidQueryf("dataset key %q in COLUMNS must also appear in GROUP", c)
			}
		}
	}
	return nil
}

func validateFieldTypes(w *Where, ds *model.Dataset) error {
	numeric := ds.NumericFields()
	switch w.Kind {
	case OpAnd:
		for i := range w.And {
			if err := validateFieldTypes(&w.And[i], ds); err != nil {
				return err
			}
		}
	case OpOr:
		for i := range w.Or {
			if err := validateFieldTypes(&w.Or[i], ds); err != nil {
				return err
			}
		}
	case OpNot:
		return validateFieldTypes(w.Not, ds)
	case OpGT, OpLT, OpEQ:
		_, field, _ := splitKey(w.Key, nil)
		if !ds.ValidFields()[field] {
			return cerrors.InvalidQueryf("unknown field in %s key %q", w.Kind, w.Key)
		}
		if !numeric[field] {
			return cerrors.InvalidQueryf("%s requires a numeric field, got %q", w.Kind, w.Key)
		}
	case OpIS:
		_, field, _ := splitKey(w.Key, nil)
		if !ds.ValidFields()[field] {
			return cerrors.InvalidQueryf("unknown field in IS key %q", w.Key)
		}
		if numeric[field] {
			return cerrors.InvalidQueryf("IS requires a string field, got %q", w.Key)
		}
	}
	return nil
}

func validateApplyTypes(t *Transformations, ds *model.Dataset) error {
	numeric := ds.NumericFields()
	for _, rule := range t.Apply {
		_, field, _ := splitKey(rule.DatasetKey, nil)
		if !ds.ValidFields()[field] {
			return cerrors.InvalidQueryf("unknown field in APPLY rule %q", rule.DatasetKey)
		}
		switch rule.Op {
		case OpMax, OpMin, OpAvg, OpSum:
			if !numeric[field] {
				return cerrors.InvalidQueryf("%s requires a numeric field, got %q", rule.Op, rule.DatasetKey)
			}
		case OpCount:
			// accepts either type
		}
	}
	return nil
}

func validateOrder(q *Query) error {
	if q.Options.Order == nil {
		return nil
	}
	if len(q.Options.Order.Keys) == 0 {
		return cerrors.InvalidQuery("ORDER.keys must be non-empty")
	}
	if q.Options.Order.Dir != "UP" && q.Options.Order.Dir != "DOWN" {
		return cerrors.InvalidQueryf("ORDER.dir must be UP or DOWN, got %q", q.Options.Order.Dir)
	}
	colSet := map[string]bool{}
	for _, c := range q.Options.Columns {
		colSet[c] = true
	}
	for _, k := range q.Options.Order.Keys {
		if !colSet[k] {
			return cerrors.InvalidQueryf("ORDER key %q must appear in COLUMNS", k)
		}
	}
	return nil
}

// validateWherePatterns rejects IS patterns with an interior '*'.
func validateWherePatterns(w *Where) error {
	switch w.Kind {
	case OpAnd:
		for i := range w.And {
			if err := validateWherePatterns(&w.And[i]); err != nil {
				return err
			}
		}
	case OpOr:
		for i := range w.Or {
			if err := validateWherePatterns(&w.Or[i]); err != nil {
				return err
			}
		}
	case OpNot:
		return validateWherePatterns(w.Not)
	case OpIS:
		pattern, _ := w.Value.(string)
		if err := validatePattern(pattern); err != nil {
			return err
		}
	}
	return nil
}

func validatePattern(pattern string) error {
	inner := pattern
	if strings.HasPrefix(inner, "*") {
		inner = inner[1:]
	}
	if strings.HasSuffix(inner, "*") {
		inner = inner[:len(inner)-1]
	}
	if strings.Contains(inner, "*") {
		return cerrors.InvalidQueryf("wildcard may only appear as a leading or trailing character: %q", pattern)
	}
	return nil
}

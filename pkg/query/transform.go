package query

import (
	"math/big"
	"strconv"
)

// groupKey is a comparable tuple of a group's GROUP field values, used
// as a map key to collect rows belonging to the same group.
type groupKey string

// Transform groups filtered rows by the GROUP key tuple and produces
// one synthetic row per group carrying the GROUP values plus each
// APPLY result. Aggregation uses arbitrary-precision decimal addition
// for SUM/AVG so results match exactly at 2 decimal places regardless
// of summation order, per §4.7.
func Transform(t *Transformations, rows []Row) []map[string]interface{} {
	order := []groupKey{}
	groups := map[groupKey][]Row{}

	for _, row := range rows {
		key := buildGroupKey(t.Group, row)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], row)
	}

	out := make([]map[string]interface{}, 0, len(order))
	for _, key := range order {
		members := groups[key]
		record := map[string]interface{}{}
		for _, g := range t.Group {
			_, field, _ := splitKey(g, nil)
			v, _ := members[0].Field(field)
			record[g] = v
		}
		for _, rule := range t.Apply {
			record[rule.ApplyKey] = applyRule(rule, members)
		}
		out = append(out, record)
	}
	return out
}

func buildGroupKey(groupFields []string, row Row) groupKey {
	var b []byte
	for _, g := range groupFields {
		_, field, _ := splitKey(g, nil)
		v, _ := row.Field(field)
		b = append(b, []byte(toKeyFragment(v))...)
		b = append(b, 0x1f) // unit separator, never present in field values
	}
	return groupKey(b)
}

func toKeyFragment(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return big.NewFloat(t).Text('f', -1)
	default:
		return ""
	}
}

func applyRule(rule ApplyRule, members []Row) interface{} {
	_, field, _ := splitKey(rule.DatasetKey, nil)
	switch rule.Op {
	case OpMax:
		return maxOf(field, members)
	case OpMin:
		return minOf(field, members)
	case OpSum:
		return roundRat(sumOf(field, members))
	case OpAvg:
		sum := sumOf(field, members)
		avg := new(big.Rat).Quo(sum, big.NewRat(int64(len(members)), 1))
		return roundRat(avg)
	case OpCount:
		return float64(distinctCount(field, members))
	default:
		return nil
	}
}

func numericValue(field string, row Row) (float64, bool) {
	raw, ok := row.Field(field)
	if !ok {
		return 0, false
	}
	f, ok := raw.(float64)
	return f, ok
}

func maxOf(field string, rows []Row) float64 {
	var max float64
	first := true
	for _, r := range rows {
		v, ok := numericValue(field, r)
		if !ok {
			continue
		}
		if first || v > max {
			max = v
			first = false
		}
	}
	return max
}

func minOf(field string, rows []Row) float64 {
	var min float64
	first := true
	for _, r := range rows {
		v, ok := numericValue(field, r)
		if !ok {
			continue
		}
		if first || v < min {
			min = v
			first = false
		}
	}
	return min
}

// sumOf adds field across rows using arbitrary-precision rationals, so
// the result never accumulates IEEE-754 drift regardless of row order.
// Each value enters the sum as its shortest decimal representation
// (e.g. 1.005, not the nearest binary fraction below it).
func sumOf(field string, rows []Row) *big.Rat {
	sum := new(big.Rat)
	for _, r := range rows {
		v, ok := numericValue(field, r)
		if !ok {
			continue
		}
		dec, ok := new(big.Rat).SetString(strconv.FormatFloat(v, 'g', -1, 64))
		if !ok {
			dec = new(big.Rat).SetFloat64(v)
		}
		sum.Add(sum, dec)
	}
	return sum
}

// roundRat rounds r to 2 decimal places, half away from zero, and
// returns the result as a float64 for JSON encoding.
func roundRat(r *big.Rat) float64 {
	scaled := new(big.Rat).Mul(r, big.NewRat(100, 1))
	num := scaled.Num()
	den := scaled.Denom()

	q := new(big.Int)
	rem := new(big.Int)
	q.QuoRem(num, den, rem)

	rem2 := new(big.Int).Mul(rem, big.NewInt(2))
	rem2.Abs(rem2)
	if rem2.Cmp(den) >= 0 {
		if scaled.Sign() >= 0 {
			q.Add(q, big.NewInt(1))
		} else {
			q.Sub(q, big.NewInt(1))
		}
	}

	rounded := new(big.Rat).SetFrac(q, big.NewInt(100))
	f, _ := rounded.Float64()
	return f
}

func distinctCount(field string, rows []Row) int {
	seen := map[string]bool{}
	for _, r := range rows {
		raw, ok := r.Field(field)
		if !ok {
			continue
		}
		seen[toKeyFragment(raw)] = true
	}
	return len(seen)
}

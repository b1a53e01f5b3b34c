// Package query parses, validates, and evaluates the JSON query
// language CourseDB exposes over its datasets: a WHERE filter tree, an
// optional GROUP/APPLY transformation, and a COLUMNS/ORDER projection.
package query

import (
	"encoding/json"

	"github.com/logflow/coursedb/internal/model"
	cerrors "github.com/logflow/coursedb/pkg/errors"
)

// Op names a WHERE comparison or an APPLY aggregation.
type Op string

const (
	OpAnd Op = "AND"
	OpOr  Op = "OR"
	OpNot Op = "NOT"
	OpGT  Op = "GT"
	OpLT  Op = "LT"
	OpEQ  Op = "EQ"
	OpIS  Op = "IS"

	OpMax   Op = "MAX"
	OpMin   Op = "MIN"
	OpAvg   Op = "AVG"
	OpSum   Op = "SUM"
	OpCount Op = "COUNT"
)

// Where is one node of the WHERE filter tree. Exactly one of its
// fields is populated, mirroring the one-of shape the wire format
// allows; Kind records which.
type Where struct {
	Kind Op

	And []Where
	Or  []Where
	Not *Where

	// Comparison node: Key is the dataset key, Value the literal.
	Key   string
	Value interface{} // float64 for GT/LT/EQ, string for IS
}

// whereWire is the raw JSON shape of a Where node, used only for
// decoding; every key is optional and exactly one must be present
// (enforced by UnmarshalJSON, not by the Go type system).
type whereWire struct {
	AND []json.RawMessage         `json:"AND"`
	OR  []json.RawMessage         `json:"OR"`
	NOT json.RawMessage           `json:"NOT"`
	GT  map[string]float64        `json:"GT"`
	LT  map[string]float64        `json:"LT"`
	EQ  map[string]float64        `json:"EQ"`
	IS  map[string]string         `json:"IS"`
}

// UnmarshalJSON decodes one WHERE node, rejecting shapes with more
// than one operator or an operator with the wrong literal type.
func (w *Where) UnmarshalJSON(data []byte) error {
	// Empty object {} matches every row.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return cerrors.InvalidQueryf("WHERE node must be a JSON object: %v", err)
	}
	if len(probe) == 0 {
		*w = Where{Kind: ""}
		return nil
	}
	if len(probe) > 1 {
		return cerrors.InvalidQuery("WHERE node must have exactly one operator")
	}

	var wire whereWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return cerrors.InvalidQueryf("malformed WHERE node: %v", err)
	}

	switch {
	case probe["AND"] != nil:
		children, err := decodeWhereList(wire.AND)
		if err != nil {
			return err
		}
		if len(children) == 0 {
			return cerrors.InvalidQuery("AND requires a non-empty array")
		}
		*w = Where{Kind: OpAnd, And: children}
	case probe["OR"] != nil:
		children, err := decodeWhereList(wire.OR)
		if err != nil {
			return err
		}
		if len(children) == 0 {
			return cerrors.InvalidQuery("OR requires a non-empty array")
		}
		*w = Where{Kind: OpOr, Or: children}
	case probe["NOT"] != nil:
		var child Where
		if err := json.Unmarshal(wire.NOT, &child); err != nil {
			return err
		}
		*w = Where{Kind: OpNot, Not: &child}
	case probe["GT"] != nil:
		k, v, err := singleFloat(wire.GT)
		if err != nil {
			return err
		}
		*w = Where{Kind: OpGT, Key: k, Value: v}
	case probe["LT"] != nil:
		k, v, err := singleFloat(wire.LT)
		if err != nil {
			return err
		}
		*w = Where{Kind: OpLT, Key: k, Value: v}
	case probe["EQ"] != nil:
		k, v, err := singleFloat(wire.EQ)
		if err != nil {
			return err
		}
		*w = Where{Kind: OpEQ, Key: k, Value: v}
	case probe["IS"] != nil:
		k, v, err := singleString(wire.IS)
		if err != nil {
			return err
		}
		*w = Where{Kind: OpIS, Key: k, Value: v}
	default:
		return cerrors.InvalidQuery("unrecognized WHERE operator")
	}
	return nil
}

func decodeWhereList(raw []json.RawMessage) ([]Where, error) {
	out := make([]Where, len(raw))
	for i, r := range raw {
		if err := json.Unmarshal(r, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func singleFloat(m map[string]float64) (string, float64, error) {
	if len(m) != 1 {
		return "", 0, cerrors.InvalidQuery("comparison node requires exactly one key")
	}
	for k, v := range m {
		return k, v, nil
	}
	return "", 0, nil
}

func singleString(m map[string]string) (string, string, error) {
	if len(m) != 1 {
		return "", "", cerrors.InvalidQuery("IS requires exactly one key")
	}
	for k, v := range m {
		return k, v, nil
	}
	return "", "", nil
}

// ApplyRule is one TRANSFORMATIONS.APPLY entry: applyKey: {OP: datasetKey}.
type ApplyRule struct {
	ApplyKey   string
	Op         Op
	DatasetKey string
}

func (a *ApplyRule) UnmarshalJSON(data []byte) error {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(data, &outer); err != nil {
		return cerrors.InvalidQueryf("malformed APPLY rule: %v", err)
	}
	if len(outer) != 1 {
		return cerrors.InvalidQuery("each APPLY rule must have exactly one key")
	}
	var applyKey string
	var opBody json.RawMessage
	for k, v := range outer {
		applyKey, opBody = k, v
	}

	var inner map[string]string
	if err := json.Unmarshal(opBody, &inner); err != nil {
		return cerrors.InvalidQueryf("malformed APPLY rule body: %v", err)
	}
	if len(inner) != 1 {
		return cerrors.InvalidQuery("APPLY rule body must have exactly one operator")
	}

	var op Op
	var datasetKey string
	for k, v := range inner {
		op, datasetKey = Op(k), v
	}
	switch op {
	case OpMax, OpMin, OpAvg, OpSum, OpCount:
	default:
		return cerrors.InvalidQueryf("unknown APPLY operator %q", op)
	}

	a.ApplyKey = applyKey
	a.Op = op
	a.DatasetKey = datasetKey
	return nil
}

// Transformations holds an optional GROUP/APPLY clause.
type Transformations struct {
	Group []string    `json:"GROUP"`
	Apply []ApplyRule `json:"APPLY"`
}

// Order is either a bare key string or {dir, keys}.
type Order struct {
	Dir  string // "UP" or "DOWN"
	Keys []string
}

func (o *Order) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*o = Order{Dir: "UP", Keys: []string{single}}
		return nil
	}

	var object struct {
		Dir  string   `json:"dir"`
		Keys []string `json:"keys"`
	}
	if err := json.Unmarshal(data, &object); err != nil {
		return cerrors.InvalidQueryf("ORDER must be a string or {dir,keys} object: %v", err)
	}
	*o = Order{Dir: object.Dir, Keys: object.Keys}
	return nil
}

// Options is the OPTIONS clause: required COLUMNS, optional ORDER.
type Options struct {
	Columns []string `json:"COLUMNS"`
	Order   *Order   `json:"ORDER"`
}

// Query is a fully parsed query document.
type Query struct {
	Where           Where            `json:"WHERE"`
	Options         Options          `json:"OPTIONS"`
	Transformations *Transformations `json:"TRANSFORMATIONS"`
}

// Parse decodes a raw query document. Shape errors at this stage
// (malformed JSON, ill-typed operator bodies) surface as InvalidQuery;
// semantic validation (key references, field types) is Validate's job.
func Parse(data []byte) (*Query, error) {
	var q Query
	if err := json.Unmarshal(data, &q); err != nil {
		if _, ok := err.(*cerrors.CourseDBError); ok {
			return nil, err
		}
		return nil, cerrors.InvalidQueryf("malformed query document: %v", err)
	}
	return &q, nil
}

// Row is the kind-agnostic accessor the evaluator and projector use.
type Row = model.Row

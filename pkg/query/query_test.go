package query

import (
	"encoding/json"
	"testing"

	"github.com/logflow/coursedb/internal/model"
	cerrors "github.com/logflow/coursedb/pkg/errors"
)

func sectionsDataset() *model.Dataset {
	return &model.Dataset{
		ID:   "sections",
		Kind: model.KindSections,
		Sections: []model.Section{
			{UUID: "1", ID: "310", Title: "t", Instructor: "a", Dept: "cpsc", Year: 2014, Avg: 90, Pass: 10, Fail: 0, Audit: 0},
			{UUID: "2", ID: "310", Title: "t", Instructor: "b", Dept: "cpsc", Year: 2015, Avg: 80, Pass: 10, Fail: 0, Audit: 0},
			{UUID: "3", ID: "310", Title: "t", Instructor: "c", Dept: "cpsc", Year: 2015, Avg: 100, Pass: 10, Fail: 0, Audit: 0},
			{UUID: "4", ID: "210", Title: "t", Instructor: "d", Dept: "math", Year: 2015, Avg: 60, Pass: 10, Fail: 0, Audit: 0},
		},
	}
}

func lookupFor(datasets ...*model.Dataset) DatasetLookup {
	byID := map[string]*model.Dataset{}
	for _, d := range datasets {
		byID[d.ID] = d
	}
	return func(id string) (*model.Dataset, bool) {
		d, ok := byID[id]
		return d, ok
	}
}

func mustParse(t *testing.T, doc string) *Query {
	t.Helper()
	q, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return q
}

func TestRunFilterAndOrder(t *testing.T) {
	ds := sectionsDataset()
	q := mustParse(t, `{
		"WHERE": {"GT": {"sections_avg": 79}},
		"OPTIONS": {"COLUMNS": ["sections_dept", "sections_avg"], "ORDER": "sections_avg"}
	}`)
	if _, err := Validate(q, lookupFor(ds)); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	rows, err := Run(q, ds)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if rows[i-1]["sections_avg"].(float64) > rows[i]["sections_avg"].(float64) {
			t.Fatalf("rows not ascending by sections_avg: %v", rows)
		}
	}
}

func TestRunGroupByAndAvg(t *testing.T) {
	ds := sectionsDataset()
	q := mustParse(t, `{
		"WHERE": {"IS": {"sections_dept": "cpsc"}},
		"OPTIONS": {"COLUMNS": ["sections_year", "avgGrade"], "ORDER": {"dir": "UP", "keys": ["sections_year"]}},
		"TRANSFORMATIONS": {"GROUP": ["sections_year"], "APPLY": [{"avgGrade": {"AVG": "sections_avg"}}]}
	}`)
	if _, err := Validate(q, lookupFor(ds)); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	rows, err := Run(q, ds)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d groups, want 2", len(rows))
	}
	if rows[0]["sections_year"].(float64) != 2014 {
		t.Errorf("first group year = %v, want 2014", rows[0]["sections_year"])
	}
	if rows[1]["avgGrade"].(float64) != 90 {
		t.Errorf("2015 avgGrade = %v, want 90 ((80+100)/2)", rows[1]["avgGrade"])
	}
}

func TestRunResultTooLarge(t *testing.T) {
	sections := make([]model.Section, MaxResultRows+1)
	for i := range sections {
		sections[i] = model.Section{UUID: "x", ID: "310", Dept: "cpsc", Avg: 1}
	}
	ds := &model.Dataset{ID: "sections", Kind: model.KindSections, Sections: sections}
	q := mustParse(t, `{"WHERE": {}, "OPTIONS": {"COLUMNS": ["sections_uuid"]}}`)
	if _, err := Validate(q, lookupFor(ds)); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	_, err := Run(q, ds)
	if cerrors.CodeOf(err) != cerrors.CodeResultTooLarge {
		t.Fatalf("got code %s, want RESULT_TOO_LARGE", cerrors.CodeOf(err))
	}
}

func TestValidateRejectsMultipleDatasets(t *testing.T) {
	ds1 := sectionsDataset()
	ds2 := &model.Dataset{ID: "rooms", Kind: model.KindRooms, Rooms: []model.Room{{Name: "x"}}}
	q := mustParse(t, `{"WHERE": {}, "OPTIONS": {"COLUMNS": ["sections_uuid", "rooms_name"]}}`)
	_, err := Validate(q, lookupFor(ds1, ds2))
	if cerrors.CodeOf(err) != cerrors.CodeInvalidQuery {
		t.Fatalf("got code %s, want INVALID_QUERY", cerrors.CodeOf(err))
	}
}

func TestValidateRejectsMidPatternWildcard(t *testing.T) {
	ds := sectionsDataset()
	q := mustParse(t, `{"WHERE": {"IS": {"sections_dept": "cp*sc"}}, "OPTIONS": {"COLUMNS": ["sections_dept"]}}`)
	_, err := Validate(q, lookupFor(ds))
	if cerrors.CodeOf(err) != cerrors.CodeInvalidQuery {
		t.Fatalf("got code %s, want INVALID_QUERY", cerrors.CodeOf(err))
	}
}

func TestValidateRejectsUnknownDataset(t *testing.T) {
	ds := sectionsDataset()
	q := mustParse(t, `{"WHERE": {}, "OPTIONS": {"COLUMNS": ["missing_field"]}}`)
	_, err := Validate(q, lookupFor(ds))
	if cerrors.CodeOf(err) != cerrors.CodeInvalidQuery {
		t.Fatalf("got code %s, want INVALID_QUERY", cerrors.CodeOf(err))
	}
}

func TestValidateRejectsNumericFieldWithIS(t *testing.T) {
	ds := sectionsDataset()
	q := mustParse(t, `{"WHERE": {"IS": {"sections_avg": "90"}}, "OPTIONS": {"COLUMNS": ["sections_avg"]}}`)
	_, err := Validate(q, lookupFor(ds))
	if cerrors.CodeOf(err) != cerrors.CodeInvalidQuery {
		t.Fatalf("got code %s, want INVALID_QUERY", cerrors.CodeOf(err))
	}
}

func TestParseRejectsEmptyAnd(t *testing.T) {
	_, err := Parse([]byte(`{"WHERE": {"AND": []}, "OPTIONS": {"COLUMNS": ["sections_avg"]}}`))
	if cerrors.CodeOf(err) != cerrors.CodeInvalidQuery {
		t.Fatalf("got code %s, want INVALID_QUERY", cerrors.CodeOf(err))
	}
}

func TestParseRejectsMultiOperatorWhereNode(t *testing.T) {
	_, err := Parse([]byte(`{"WHERE": {"GT": {"sections_avg": 1}, "LT": {"sections_avg": 2}}, "OPTIONS": {"COLUMNS": ["sections_avg"]}}`))
	if cerrors.CodeOf(err) != cerrors.CodeInvalidQuery {
		t.Fatalf("got code %s, want INVALID_QUERY", cerrors.CodeOf(err))
	}
}

func TestParseRoundTripsOrderString(t *testing.T) {
	var o Order
	if err := json.Unmarshal([]byte(`"sections_avg"`), &o); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if o.Dir != "UP" || len(o.Keys) != 1 || o.Keys[0] != "sections_avg" {
		t.Errorf("got %+v", o)
	}
}

// Package model defines the row types CourseDB persists and queries.
package model

// Section is one offering of a course, as recorded in a university's
// academic transcript archive. Sections are immutable once ingested.
type Section struct {
	UUID       string
	ID         string // course code, e.g. "310"
	Title      string
	Instructor string
	Dept       string
	Year       int
	Avg        float64
	Pass       int
	Fail       int
	Audit      int
}

// SectionOverallYear is substituted for the archive-declared year when
// a row's source "Section" field equals the literal "overall".
const SectionOverallYear = 1900

// Field looks up a Sections-kind field by its dataset-key suffix and
// reports whether the row has a value for it. Numeric fields are
// returned as float64 so callers need not branch on the underlying Go
// type; string fields are returned as string.
func (s Section) Field(name string) (interface{}, bool) {
	switch name {
	case "uuid":
		return s.UUID, true
	case "id":
		return s.ID, true
	case "title":
		return s.Title, true
	case "instructor":
		return s.Instructor, true
	case "dept":
		return s.Dept, true
	case "year":
		return float64(s.Year), true
	case "avg":
		return s.Avg, true
	case "pass":
		return float64(s.Pass), true
	case "fail":
		return float64(s.Fail), true
	case "audit":
		return float64(s.Audit), true
	default:
		return nil, false
	}
}

// SectionFields lists every valid Sections dataset-key suffix.
var SectionFields = map[string]bool{
	"avg": true, "pass": true, "fail": true, "audit": true, "year": true,
	"dept": true, "instructor": true, "title": true, "uuid": true, "id": true,
}

// SectionNumericFields lists the Sections fields with numeric type.
var SectionNumericFields = map[string]bool{
	"avg": true, "pass": true, "fail": true, "audit": true, "year": true,
}

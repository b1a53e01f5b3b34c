// Package ingest turns a base64-encoded archive into the typed rows a
// Dataset holds, validating layout and required fields along the way.
package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/logflow/coursedb/internal/model"
	cerrors "github.com/logflow/coursedb/pkg/errors"
)

// coursesDir is the single legal top-level directory in a sections archive.
const coursesDir = "courses/"

// rawSection is the shape of one element of a course file's "result" array.
type rawSection struct {
	ID         *string  `json:"id"`
	Course     *string  `json:"Course"`
	Title      *string  `json:"Title"`
	Professor  *string  `json:"Professor"`
	Subject    *string  `json:"Subject"`
	Avg        *float64 `json:"Avg"`
	Pass       *float64 `json:"Pass"`
	Fail       *float64 `json:"Fail"`
	Audit      *float64 `json:"Audit"`
	Year       *string  `json:"Year"`
	Section    string   `json:"Section"`
}

type courseFile struct {
	Result []json.RawMessage `json:"result"`
}

// Sections decodes, unzips, and parses a Sections archive into a
// model.Dataset with the given id. Concurrency bounds how many
// course files parse in parallel; zero means runtime.NumCPU().
func Sections(ctx context.Context, id string, payloadBase64 string, concurrency int) (*model.Dataset, error) {
	raw, err := base64.StdEncoding.DecodeString(payloadBase64)
	if err != nil {
		return nil, cerrors.InvalidContentf("malformed base64 payload: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, cerrors.InvalidContentf("not a valid zip archive: %v", err)
	}

	files, err := coursesFiles(zr)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, cerrors.InvalidContent("courses/ directory contains no files")
	}

	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	results := make([][]model.Section, len(files))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			sections, err := parseCourseFile(f)
			if err != nil {
				return err
			}
			results[i] = sections
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var rows []model.Section
	for _, r := range results {
		rows = append(rows, r...)
	}
	if len(rows) == 0 {
		return nil, cerrors.InvalidContent("archive produced zero sections")
	}

	return &model.Dataset{ID: id, Kind: model.KindSections, Sections: rows}, nil
}

// coursesFiles validates the archive layout (exactly one top-level
// directory, "courses/") and returns its non-directory entries.
func coursesFiles(zr *zip.Reader) ([]*zip.File, error) {
	topDirs := map[string]bool{}
	var files []*zip.File

	for _, f := range zr.File {
		parts := strings.SplitN(f.Name, "/", 2)
		top := parts[0] + "/"
		if top != coursesDir {
			return nil, cerrors.InvalidContentf("unexpected top-level entry %q", parts[0])
		}
		topDirs[top] = true
		if !f.FileInfo().IsDir() && len(parts) == 2 && parts[1] != "" {
			files = append(files, f)
		}
	}
	if len(topDirs) != 1 {
		return nil, cerrors.InvalidContent("archive must contain exactly one top-level directory, courses/")
	}
	return files, nil
}

func parseCourseFile(f *zip.File) ([]model.Section, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, cerrors.InvalidContentf("open %s: %v", f.Name, err)
	}
	defer rc.Close()

	var cf courseFile
	dec := json.NewDecoder(rc)
	if err := dec.Decode(&cf); err != nil {
		return nil, cerrors.InvalidContentf("%s: not a JSON object with a result array: %v", f.Name, err)
	}
	if cf.Result == nil {
		return nil, cerrors.InvalidContentf("%s: missing result array", f.Name)
	}

	sections := make([]model.Section, 0, len(cf.Result))
	for _, raw := range cf.Result {
		var rs rawSection
		if err := json.Unmarshal(raw, &rs); err != nil {
			return nil, cerrors.InvalidContentf("%s: malformed result element: %v", f.Name, err)
		}
		sec, err := toSection(rs)
		if err != nil {
			return nil, cerrors.InvalidContentf("%s: %v", f.Name, err)
		}
		sections = append(sections, sec)
	}
	return sections, nil
}

func toSection(rs rawSection) (model.Section, error) {
	if rs.ID == nil || rs.Course == nil || rs.Title == nil || rs.Professor == nil ||
		rs.Subject == nil || rs.Avg == nil || rs.Pass == nil || rs.Fail == nil ||
		rs.Audit == nil || rs.Year == nil {
		return model.Section{}, cerrors.InvalidContent("result element missing a required field")
	}

	year := model.SectionOverallYear
	if rs.Section != "overall" {
		y, err := strconv.Atoi(*rs.Year)
		if err != nil {
			return model.Section{}, cerrors.InvalidContentf("non-numeric Year %q", *rs.Year)
		}
		year = y
	}

	return model.Section{
		UUID:       *rs.ID,
		ID:         *rs.Course,
		Title:      *rs.Title,
		Instructor: *rs.Professor,
		Dept:       *rs.Subject,
		Year:       year,
		Avg:        *rs.Avg,
		Pass:       int(*rs.Pass),
		Fail:       int(*rs.Fail),
		Audit:      int(*rs.Audit),
	}, nil
}

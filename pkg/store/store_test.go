package store

import (
	"context"
	"testing"

	"github.com/logflow/coursedb/internal/model"
	cerrors "github.com/logflow/coursedb/pkg/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ds := &model.Dataset{
		ID:   "cpsc 310",
		Kind: model.KindSections,
		Sections: []model.Section{
			{UUID: "1", ID: "310", Title: "Intro", Dept: "cpsc", Year: 2015, Avg: 78.5},
		},
	}

	if err := s.Save(ctx, ds); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(ctx, "cpsc 310")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ID != ds.ID || got.Kind != ds.Kind || len(got.Sections) != 1 {
		t.Fatalf("Load returned %+v, want %+v", got, ds)
	}
	if got.Sections[0].Title != "Intro" {
		t.Errorf("Sections[0].Title = %q, want Intro", got.Sections[0].Title)
	}
}

func TestLoadMissingIsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load(context.Background(), "nope")
	if cerrors.CodeOf(err) != cerrors.CodeNotFound {
		t.Fatalf("Load missing: got code %s, want NOT_FOUND", cerrors.CodeOf(err))
	}
}

func TestDeleteMissingIsNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.Delete(context.Background(), "nope")
	if cerrors.CodeOf(err) != cerrors.CodeNotFound {
		t.Fatalf("Delete missing: got code %s, want NOT_FOUND", cerrors.CodeOf(err))
	}
}

func TestListIdsRoundTripsEncodedNames(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ids := []string{"sections", "a/b/c", "cpsc 310"}
	for _, id := range ids {
		ds := &model.Dataset{ID: id, Kind: model.KindRooms, Rooms: []model.Room{{Name: "x"}}}
		if err := s.Save(ctx, ds); err != nil {
			t.Fatalf("Save(%q): %v", id, err)
		}
	}

	got, err := s.ListIds(ctx)
	if err != nil {
		t.Fatalf("ListIds: %v", err)
	}
	if len(got) != len(ids) {
		t.Fatalf("ListIds returned %d ids, want %d", len(got), len(ids))
	}
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	for _, id := range got {
		if !want[id] {
			t.Errorf("ListIds returned unexpected id %q", id)
		}
		delete(want, id)
	}
	if len(want) != 0 {
		t.Errorf("ListIds missing ids: %v", want)
	}
}

func TestExistsAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ds := &model.Dataset{ID: "rooms", Kind: model.KindRooms}

	if ok, _ := s.Exists(ctx, "rooms"); ok {
		t.Fatalf("Exists before Save = true, want false")
	}
	if err := s.Save(ctx, ds); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ok, _ := s.Exists(ctx, "rooms"); !ok {
		t.Fatalf("Exists after Save = false, want true")
	}
	if err := s.Delete(ctx, "rooms"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := s.Exists(ctx, "rooms"); ok {
		t.Fatalf("Exists after Delete = true, want false")
	}
}

func TestListAllSkipsNothingWhenStable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, id := range []string{"one", "two"} {
		if err := s.Save(ctx, &model.Dataset{ID: id, Kind: model.KindRooms}); err != nil {
			t.Fatalf("Save(%q): %v", id, err)
		}
	}
	datasets, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(datasets) != 2 {
		t.Fatalf("ListAll returned %d datasets, want 2", len(datasets))
	}
}

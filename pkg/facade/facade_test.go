package facade

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"testing"

	"github.com/logflow/coursedb/internal/model"
	cerrors "github.com/logflow/coursedb/pkg/errors"
	"github.com/logflow/coursedb/pkg/store"
)

const oneSectionJSON = `{"result":[
  {"id":"1000","Course":"310","Title":"intro","Professor":"reid","Subject":"cpsc","Avg":85.5,"Pass":100,"Fail":2,"Audit":0,"Year":"2015","Section":"1"}
]}`

func sectionsPayload(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("courses/CPSC310")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := w.Write([]byte(oneSectionJSON)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func newTestFacade(t *testing.T) *Facade {
	t.Helper()
	s, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	return New(s, nil, nil, 0)
}

func TestAddListRemoveLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t)
	payload := sectionsPayload(t)

	ids, err := f.AddDataset(ctx, "sections", payload, model.KindSections)
	if err != nil {
		t.Fatalf("AddDataset: %v", err)
	}
	if len(ids) != 1 || ids[0] != "sections" {
		t.Fatalf("AddDataset ids = %v, want [sections]", ids)
	}

	infos, err := f.ListDatasets(ctx)
	if err != nil {
		t.Fatalf("ListDatasets: %v", err)
	}
	if len(infos) != 1 || infos[0].ID != "sections" || infos[0].Kind != "sections" || infos[0].NumRows != 1 {
		t.Fatalf("ListDatasets = %+v", infos)
	}

	removed, err := f.RemoveDataset(ctx, "sections")
	if err != nil {
		t.Fatalf("RemoveDataset: %v", err)
	}
	if removed != "sections" {
		t.Errorf("RemoveDataset returned %q, want sections", removed)
	}

	infos, err = f.ListDatasets(ctx)
	if err != nil {
		t.Fatalf("ListDatasets after remove: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("ListDatasets after remove = %+v, want empty", infos)
	}
}

func TestAddDuplicateFails(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t)
	payload := sectionsPayload(t)

	if _, err := f.AddDataset(ctx, "sections", payload, model.KindSections); err != nil {
		t.Fatalf("first AddDataset: %v", err)
	}
	_, err := f.AddDataset(ctx, "sections", payload, model.KindSections)
	if cerrors.CodeOf(err) != cerrors.CodeInvalidContent {
		t.Fatalf("second AddDataset got code %s, want INVALID_CONTENT", cerrors.CodeOf(err))
	}
}

func TestRemoveMissingFails(t *testing.T) {
	f := newTestFacade(t)
	_, err := f.RemoveDataset(context.Background(), "nope")
	if cerrors.CodeOf(err) != cerrors.CodeNotFound {
		t.Fatalf("got code %s, want NOT_FOUND", cerrors.CodeOf(err))
	}
}

func TestAddRejectsInvalidID(t *testing.T) {
	f := newTestFacade(t)
	_, err := f.AddDataset(context.Background(), "has_underscore", sectionsPayload(t), model.KindSections)
	if cerrors.CodeOf(err) != cerrors.CodeInvalidID {
		t.Fatalf("got code %s, want INVALID_ID", cerrors.CodeOf(err))
	}
}

func TestPerformQueryAgainstLoadedDataset(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t)
	if _, err := f.AddDataset(ctx, "sections", sectionsPayload(t), model.KindSections); err != nil {
		t.Fatalf("AddDataset: %v", err)
	}

	result, err := f.PerformQuery(ctx, []byte(`{"WHERE":{},"OPTIONS":{"COLUMNS":["sections_dept"]}}`))
	if err != nil {
		t.Fatalf("PerformQuery: %v", err)
	}
	if len(result) != 1 || result[0]["sections_dept"] != "cpsc" {
		t.Fatalf("got %v", result)
	}
}

func TestPerformQueryAgainstMissingDatasetIsInvalidQuery(t *testing.T) {
	f := newTestFacade(t)
	_, err := f.PerformQuery(context.Background(), []byte(`{"WHERE":{},"OPTIONS":{"COLUMNS":["sections_dept"]}}`))
	if cerrors.CodeOf(err) != cerrors.CodeInvalidQuery {
		t.Fatalf("got code %s, want INVALID_QUERY", cerrors.CodeOf(err))
	}
}

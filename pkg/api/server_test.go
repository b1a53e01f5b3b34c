package api

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/logflow/coursedb/pkg/facade"
	"github.com/logflow/coursedb/pkg/store"
)

const oneSectionJSON = `{"result":[
  {"id":"1000","Course":"310","Title":"intro","Professor":"reid","Subject":"cpsc","Avg":85.5,"Pass":100,"Fail":2,"Audit":0,"Year":"2015","Section":"1"}
]}`

func sectionsArchive(t *testing.T) []byte {
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
	return buf.Bytes()
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	f := facade.New(s, nil, nil, 0)
	return NewServer(Config{Facade: f})
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestEcho(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/echo/cpsc", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if resp["result"] != "cpsccpsc" {
		t.Errorf("result = %q, want cpsccpsc", resp["result"])
	}
}

func TestAddListQueryRemoveLifecycle(t *testing.T) {
	s := newTestServer(t)
	archive := sectionsArchive(t)

	addReq := httptest.NewRequest(http.MethodPut, "/dataset/sections/sections", bytes.NewReader(archive))
	addW := httptest.NewRecorder()
	s.ServeHTTP(addW, addReq)
	if addW.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body = %s", addW.Code, addW.Body.String())
	}

	listReq := httptest.NewRequest(http.MethodGet, "/datasets", nil)
	listW := httptest.NewRecorder()
	s.ServeHTTP(listW, listReq)
	if listW.Code != http.StatusOK {
		t.Fatalf("GET /datasets status = %d", listW.Code)
	}
	var listResp struct {
		Result []facade.DatasetInfo `json:"result"`
	}
	if err := json.Unmarshal(listW.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(listResp.Result) != 1 || listResp.Result[0].ID != "sections" {
		t.Fatalf("got %+v", listResp.Result)
	}

	queryBody := []byte(`{"WHERE":{},"OPTIONS":{"COLUMNS":["sections_dept"]}}`)
	queryReq := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(queryBody))
	queryW := httptest.NewRecorder()
	s.ServeHTTP(queryW, queryReq)
	if queryW.Code != http.StatusOK {
		t.Fatalf("POST /query status = %d, body = %s", queryW.Code, queryW.Body.String())
	}

	delReq := httptest.NewRequest(http.MethodDelete, "/dataset/sections", nil)
	delW := httptest.NewRecorder()
	s.ServeHTTP(delW, delReq)
	if delW.Code != http.StatusOK {
		t.Fatalf("DELETE status = %d", delW.Code)
	}

	delAgainReq := httptest.NewRequest(http.MethodDelete, "/dataset/sections", nil)
	delAgainW := httptest.NewRecorder()
	s.ServeHTTP(delAgainW, delAgainReq)
	if delAgainW.Code != http.StatusNotFound {
		t.Fatalf("second DELETE status = %d, want 404", delAgainW.Code)
	}
}

func TestAddDatasetRejectsUnknownKind(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPut, "/dataset/sections/bogus", bytes.NewReader(sectionsArchive(t)))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestAddDatasetRejectsOversizeArchive(t *testing.T) {
	s, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	srv := NewServer(Config{Facade: facade.New(s, nil, nil, 0), MaxArchiveSize: 4})
	req := httptest.NewRequest(http.MethodPut, "/dataset/sections/sections", bytes.NewReader(sectionsArchive(t)))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestQueryAgainstMissingDataset(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader([]byte(`{"WHERE":{},"OPTIONS":{"COLUMNS":["sections_dept"]}}`)))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

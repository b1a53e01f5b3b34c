// Package store persists datasets to the local filesystem, one
// self-describing document per dataset, grounded on the teacher's
// file-based catalog (pkg/storage/catalog) and local object storage
// (pkg/storage/object) patterns: a directory root, JSON documents, and
// directory-listing enumeration rather than an in-memory cache — a
// removed dataset is observed on the next call only, never cached.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/logflow/coursedb/internal/model"
	cerrors "github.com/logflow/coursedb/pkg/errors"
	"github.com/logflow/coursedb/pkg/identifier"
)

// Extension is the suffix every dataset document file carries.
const Extension = ".json"

// document is the on-disk, self-describing shape of one dataset. It
// carries enough to rebuild a model.Dataset without any external
// metadata, per spec.md §3 invariant 3.
type document struct {
	ID       string          `json:"id"`
	Kind     string          `json:"kind"`
	Sections []model.Section `json:"sections,omitempty"`
	Rooms    []model.Room    `json:"rooms,omitempty"`
}

// Store is a single local directory holding one file per dataset.
type Store struct {
	root string
}

// New creates a Store rooted at dir, creating it if it does not exist.
func New(dir string) (*Store, error) {
	absRoot, err := filepath.Abs(dir)
	if err != nil {
		return nil, cerrors.Internal(fmt.Errorf("resolve store root: %w", err))
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, cerrors.Internal(fmt.Errorf("create store root: %w", err))
	}
	return &Store{root: absRoot}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.root, identifier.Encode(id)+Extension)
}

// Exists reports whether a dataset with the given id is on disk.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	_, err := os.Stat(s.path(id))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, cerrors.Internal(err)
	}
	return true, nil
}

// Save writes dataset to disk via write-to-temp-then-rename, so a
// process crash or cancelled context never leaves a partial file where
// a valid dataset is expected. Overwriting an existing file is a
// programmer error: callers (the facade) must check Exists first.
func (s *Store) Save(ctx context.Context, ds *model.Dataset) error {
	doc := document{ID: ds.ID, Kind: ds.Kind.String()}
	switch ds.Kind {
	case model.KindSections:
		doc.Sections = ds.Sections
	case model.KindRooms:
		doc.Rooms = ds.Rooms
	default:
		return cerrors.Internal(fmt.Errorf("save: unknown dataset kind %v", ds.Kind))
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return cerrors.Internal(fmt.Errorf("marshal dataset: %w", err))
	}

	final := s.path(ds.ID)
	tmp := final + ".tmp-" + uuid.NewString()

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return cerrors.Internal(fmt.Errorf("create temp file: %w", err))
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return cerrors.Internal(fmt.Errorf("write temp file: %w", err))
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return cerrors.Internal(fmt.Errorf("sync temp file: %w", err))
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return cerrors.Internal(fmt.Errorf("close temp file: %w", err))
	}

	if ctx.Err() != nil {
		os.Remove(tmp)
		return cerrors.Internal(fmt.Errorf("save cancelled: %w", ctx.Err()))
	}

	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return cerrors.Internal(fmt.Errorf("rename temp file: %w", err))
	}
	return nil
}

// Load parses the stored document for id and rebuilds the typed rows
// based on the embedded kind. Returns a NotFound error if id is absent.
func (s *Store) Load(ctx context.Context, id string) (*model.Dataset, error) {
	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return nil, cerrors.NotFound(id)
	}
	if err != nil {
		return nil, cerrors.Internal(err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, cerrors.Internal(fmt.Errorf("parse dataset document: %w", err))
	}

	kind, err := model.ParseKind(doc.Kind)
	if err != nil {
		return nil, cerrors.Internal(fmt.Errorf("dataset %s: %w", id, err))
	}

	return &model.Dataset{
		ID:       doc.ID,
		Kind:     kind,
		Sections: doc.Sections,
		Rooms:    doc.Rooms,
	}, nil
}

// Delete removes the file for id. Returns NotFound if id is absent.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := os.Remove(s.path(id))
	if os.IsNotExist(err) {
		return cerrors.NotFound(id)
	}
	if err != nil {
		return cerrors.Internal(err)
	}
	return nil
}

// ListIds enumerates every dataset id currently on disk, decoding each
// basename. Order is unspecified; this always re-reads the directory,
// since spec.md §4.2/§9 Open Question 1 rules out a stale in-memory
// cache.
func (s *Store) ListIds(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, cerrors.Internal(err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		base := strings.TrimSuffix(e.Name(), Extension)
		id, err := identifier.Decode(base)
		if err != nil {
			return nil, cerrors.Internal(fmt.Errorf("decode filename %q: %w", e.Name(), err))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ListAll enumerates and parses every dataset currently on disk.
func (s *Store) ListAll(ctx context.Context) ([]*model.Dataset, error) {
	ids, err := s.ListIds(ctx)
	if err != nil {
		return nil, err
	}
	datasets := make([]*model.Dataset, 0, len(ids))
	for _, id := range ids {
		ds, err := s.Load(ctx, id)
		if err != nil {
			if cerrors.CodeOf(err) == cerrors.CodeNotFound {
				// Raced with a concurrent delete; listDatasets is a
				// point-in-time snapshot, so skip rather than fail.
				continue
			}
			return nil, err
		}
		datasets = append(datasets, ds)
	}
	return datasets, nil
}

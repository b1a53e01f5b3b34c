// Package facade exposes the operations the HTTP layer calls, serializing
// mutation per dataset id while letting reads and operations on
// different ids proceed independently, per §5.
package facade

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/logflow/coursedb/internal/model"
	cerrors "github.com/logflow/coursedb/pkg/errors"
	"github.com/logflow/coursedb/pkg/identifier"
	"github.com/logflow/coursedb/pkg/ingest"
	"github.com/logflow/coursedb/pkg/query"
	"github.com/logflow/coursedb/pkg/query/cache"
	"github.com/logflow/coursedb/pkg/store"
)

// DatasetInfo is one row of listDatasets's result.
type DatasetInfo struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	NumRows int    `json:"numRows"`
}

// Facade orchestrates the store, the ingesters, and the query engine
// behind a per-id lock, so a concurrent add/remove of the same id
// never races and a query never observes a half-written dataset.
type Facade struct {
	store    *store.Store
	geocoder ingest.Geocoder
	cache    *cache.Cache

	parseConcurrency int

	locksMu sync.Mutex
	locks   map[string]*sync.RWMutex
}

// New builds a Facade over the given store. geocoder may be nil if
// Rooms ingestion is never exercised; resultCache may be nil to
// disable query result caching entirely.
func New(s *store.Store, geocoder ingest.Geocoder, resultCache *cache.Cache, parseConcurrency int) *Facade {
	return &Facade{
		store:            s,
		geocoder:         geocoder,
		cache:            resultCache,
		parseConcurrency: parseConcurrency,
		locks:            make(map[string]*sync.RWMutex),
	}
}

func (f *Facade) lockFor(id string) *sync.RWMutex {
	f.locksMu.Lock()
	defer f.locksMu.Unlock()
	l, ok := f.locks[id]
	if !ok {
		l = &sync.RWMutex{}
		f.locks[id] = l
	}
	return l
}

// AddDataset validates id, asserts it does not already exist, ingests
// payloadBase64 per kind, and on success returns the full sorted list
// of dataset ids now in the store.
func (f *Facade) AddDataset(ctx context.Context, id string, payloadBase64 string, kind model.Kind) ([]string, error) {
	if err := identifier.Validate(id); err != nil {
		return nil, err
	}

	lock := f.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	exists, err := f.store.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, cerrors.InvalidContentf("dataset %q already exists", id)
	}

	var ds *model.Dataset
	switch kind {
	case model.KindSections:
		ds, err = ingest.Sections(ctx, id, payloadBase64, f.parseConcurrency)
	case model.KindRooms:
		if f.geocoder == nil {
			return nil, cerrors.Internal(errNoGeocoder)
		}
		ds, err = ingest.Rooms(ctx, id, payloadBase64, f.geocoder, f.parseConcurrency)
	default:
		return nil, cerrors.InvalidContentf("unknown kind %v", kind)
	}
	if err != nil {
		return nil, err
	}

	if err := f.store.Save(ctx, ds); err != nil {
		return nil, err
	}

	ids, err := f.store.ListIds(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

var errNoGeocoder = errors.New("no geocoder configured for rooms ingestion")

// RemoveDataset validates id, fails NotFound if absent, and deletes it.
func (f *Facade) RemoveDataset(ctx context.Context, id string) (string, error) {
	if err := identifier.Validate(id); err != nil {
		return "", err
	}

	lock := f.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if err := f.store.Delete(ctx, id); err != nil {
		return "", err
	}
	if f.cache != nil {
		f.cache.InvalidateAll(ctx)
	}
	return id, nil
}

// ListDatasets returns a point-in-time snapshot of every stored dataset.
func (f *Facade) ListDatasets(ctx context.Context) ([]DatasetInfo, error) {
	datasets, err := f.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]DatasetInfo, len(datasets))
	for i, ds := range datasets {
		infos[i] = DatasetInfo{ID: ds.ID, Kind: ds.Kind.String(), NumRows: ds.NumRows()}
	}
	return infos, nil
}

// PerformQuery parses, validates, and runs a query document, using the
// result cache if one is configured. A query may only reference a
// dataset that is currently loaded; referencing an absent dataset
// surfaces InvalidQuery, per S5.
func (f *Facade) PerformQuery(ctx context.Context, queryJSON []byte) ([]map[string]interface{}, error) {
	q, err := query.Parse(queryJSON)
	if err != nil {
		return nil, err
	}

	var resolved *model.Dataset
	lookup := func(id string) (*model.Dataset, bool) {
		lock := f.lockFor(id)
		lock.RLock()
		defer lock.RUnlock()
		ds, loadErr := f.store.Load(ctx, id)
		if loadErr != nil {
			return nil, false
		}
		resolved = ds
		return ds, true
	}

	if _, err := query.Validate(q, lookup); err != nil {
		return nil, err
	}

	var cacheKey string
	if f.cache != nil {
		cacheKey = cache.Key(queryJSON, resolved.ID, resolved.NumRows())
		if result, ok := f.cache.Get(ctx, cacheKey); ok {
			return result, nil
		}
	}

	lock := f.lockFor(resolved.ID)
	lock.RLock()
	result, err := query.Run(q, resolved)
	lock.RUnlock()
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		f.cache.Put(ctx, cacheKey, result)
	}
	return result, nil
}

// api/store/dataset_store.go
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"shoplens/api/engine"
)

// DatasetInfo is the metadata the API exposes for one loaded dataset.
type DatasetInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Rows      int       `json:"rows"`
	CreatedAt time.Time `json:"createdAt"`
}

type entry struct {
	info DatasetInfo
	data *engine.Dataset
}

// DatasetStore holds the loaded datasets of the current process, one
// immutable snapshot per upload. Snapshots are never shared across uploads
// and never evicted; callers delete them explicitly.
type DatasetStore struct {
	mu       sync.RWMutex
	datasets map[string]entry
}

func NewDatasetStore() *DatasetStore {
	return &DatasetStore{datasets: make(map[string]entry)}
}

// Put registers a freshly loaded dataset under a new id.
func (s *DatasetStore) Put(name string, ds *engine.Dataset) DatasetInfo {
	info := DatasetInfo{
		ID:        uuid.New().String(),
		Name:      name,
		Rows:      ds.Len(),
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.datasets[info.ID] = entry{info: info, data: ds}
	s.mu.Unlock()
	return info
}

// Get returns the dataset registered under id.
func (s *DatasetStore) Get(id string) (*engine.Dataset, bool) {
	s.mu.RLock()
	e, ok := s.datasets[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return e.data, true
}

// Info returns the metadata of the dataset registered under id.
func (s *DatasetStore) Info(id string) (DatasetInfo, bool) {
	s.mu.RLock()
	e, ok := s.datasets[id]
	s.mu.RUnlock()
	return e.info, ok
}

// Delete removes the dataset registered under id and reports whether it
// existed.
func (s *DatasetStore) Delete(id string) bool {
	s.mu.Lock()
	_, ok := s.datasets[id]
	delete(s.datasets, id)
	s.mu.Unlock()
	return ok
}

// List returns metadata for every loaded dataset, oldest first.
func (s *DatasetStore) List() []DatasetInfo {
	s.mu.RLock()
	infos := make([]DatasetInfo, 0, len(s.datasets))
	for _, e := range s.datasets {
		infos = append(infos, e.info)
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].CreatedAt.Before(infos[j].CreatedAt)
		}
		return infos[i].ID < infos[j].ID
	})
	return infos
}

// Count returns the number of loaded datasets.
func (s *DatasetStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.datasets)
}

package orchestrator

import (
	"sort"
	"sync"

	"github.com/nao1215/toxguard/internal/model"
)

// entry is the stored state of one tab.
type entry struct {
	status model.Status

	// floor is the lowest run id whose progress is still accepted. It is
	// raised past a run that was cancelled by navigation.
	floor uint64

	// requested is the lowest run id the last RUN_SCAN allowed.
	requested uint64
	// awaitingStart is set from RUN_SCAN until the run reports progress.
	awaitingStart bool
	// dropping discards all progress until the next RUN_SCAN. It is set when
	// a run is abandoned before it reported anything.
	dropping bool
}

// StatusStore holds the orchestrator's per-tab status, keyed by tab id.
type StatusStore struct {
	mu      sync.Mutex
	entries map[int]*entry
}

// NewStatusStore creates an empty store.
func NewStatusStore() *StatusStore {
	return &StatusStore{entries: make(map[int]*entry)}
}

// Get returns a copy of the status of tab.
func (s *StatusStore) Get(tab int) (*model.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[tab]
	if !ok {
		return nil, false
	}
	return e.status.Clone(), true
}

// Delete forgets tab.
func (s *StatusStore) Delete(tab int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, tab)
}

// Tabs returns the ids of all known tabs in ascending order.
func (s *StatusStore) Tabs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// currentRun returns the id of the latest run of tab, or the id its pending
// RUN_SCAN asked for when that run has not reported yet.
func (s *StatusStore) currentRun(tab int) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[tab]
	switch {
	case !ok:
		return 0
	case e.awaitingStart:
		return e.requested
	}
	return e.status.LastRunID
}

// update runs fn on the entry of tab under the store lock, creating the
// entry when create is true.
func (s *StatusStore) update(tab int, create bool, fn func(e *entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[tab]
	if !ok {
		if !create {
			return
		}
		e = &entry{}
		s.entries[tab] = e
	}
	fn(e)
}

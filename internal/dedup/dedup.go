// Package dedup decides whether a lead's identity key has already been seen,
// either earlier in the current run or in persisted storage.
package dedup

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// Lookup reports whether a key has been seen.
type Lookup interface {
	Contains(key string) bool
}

// Keep reports whether a lead with key should be kept. Empty keys are never
// kept.
func Keep(key string, seen Lookup) bool {
	return key != "" && !seen.Contains(key)
}

// RunSet is the in-run set of identity keys. The zero value is ready to use.
type RunSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewRunSet returns an empty set.
func NewRunSet() *RunSet {
	return &RunSet{}
}

// Add inserts key and reports whether it was not already present.
func (s *RunSet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		s.keys = make(map[string]struct{})
	}
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// Contains implements Lookup.
func (s *RunSet) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

// Remove deletes key from the set.
func (s *RunSet) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
}

// Len returns the number of keys in the set.
func (s *RunSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// Persisted is the storage side of the view.
type Persisted interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// View composes a RunSet with persisted storage so keys saved by earlier
// runs are treated as seen.
type View struct {
	run   *RunSet
	store Persisted
}

// NewView creates a View. store may be nil, in which case only the run set
// is consulted.
func NewView(run *RunSet, store Persisted) *View {
	if run == nil {
		run = NewRunSet()
	}
	return &View{run: run, store: store}
}

// Claim reports whether key is new to both the run and storage, and records
// it in the run set when it is. A key already in storage is also added to
// the run set so later lookups skip the store round trip.
func (v *View) Claim(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	if v.run.Contains(key) {
		return false, nil
	}
	if v.store != nil {
		exists, err := v.store.Exists(ctx, key)
		if err != nil {
			return false, eris.Wrapf(err, "dedup: check %s", key)
		}
		if exists {
			v.run.Add(key)
			return false, nil
		}
	}
	return v.run.Add(key), nil
}

// Release gives up a claim on key so a later record with the same key in
// this run is processed again. Call it when the claimed lead was not stored.
func (v *View) Release(key string) {
	v.run.Remove(key)
}

// Run returns the underlying run set.
func (v *View) Run() *RunSet {
	return v.run
}

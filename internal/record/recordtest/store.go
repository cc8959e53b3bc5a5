// Package recordtest provides an in-memory record.Store for tests.
package recordtest

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/flemzord/parserdesk/internal/record"
)

// Store is an in-memory record.Store. It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	records map[int64]record.Record
	nextID  int64

	// Err, when set, is returned by every method.
	Err error
}

// NewStore returns an empty store, optionally seeded with records.
func NewStore(seed ...record.Record) *Store {
	s := &Store{records: make(map[int64]record.Record)}
	for _, r := range seed {
		if err := s.Create(context.Background(), &r); err != nil {
			panic(err)
		}
	}
	return s
}

// Create implements record.Store.
func (s *Store) Create(_ context.Context, r *record.Record) error {
	if s.Err != nil {
		return s.Err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nameTaken(r.Name, 0) {
		return fmt.Errorf("recordtest: create %q: %w", r.Name, record.ErrDuplicateName)
	}
	s.nextID++
	now := time.Now().UTC()
	r.ID = s.nextID
	r.CreatedAt, r.UpdatedAt = now, now
	s.records[r.ID] = *r
	return nil
}

// Get implements record.Store.
func (s *Store) Get(_ context.Context, id int64) (record.Record, error) {
	if s.Err != nil {
		return record.Record{}, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return record.Record{}, fmt.Errorf("recordtest: get %d: %w", id, record.ErrNotFound)
	}
	return r, nil
}

// GetByName implements record.Store.
func (s *Store) GetByName(_ context.Context, name string) (record.Record, error) {
	if s.Err != nil {
		return record.Record{}, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.Name == name {
			return r, nil
		}
	}
	return record.Record{}, fmt.Errorf("recordtest: get %q: %w", name, record.ErrNotFound)
}

// List implements record.Store.
func (s *Store) List(context.Context) ([]record.Record, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]record.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b record.Record) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

// Update implements record.Store.
func (s *Store) Update(_ context.Context, r *record.Record) error {
	if s.Err != nil {
		return s.Err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.records[r.ID]
	if !ok {
		return fmt.Errorf("recordtest: update %d: %w", r.ID, record.ErrNotFound)
	}
	if s.nameTaken(r.Name, r.ID) {
		return fmt.Errorf("recordtest: update %q: %w", r.Name, record.ErrDuplicateName)
	}
	r.CreatedAt = old.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	s.records[r.ID] = *r
	return nil
}

// Delete implements record.Store.
func (s *Store) Delete(_ context.Context, id int64) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("recordtest: delete %d: %w", id, record.ErrNotFound)
	}
	delete(s.records, id)
	return nil
}

func (s *Store) nameTaken(name string, except int64) bool {
	for id, r := range s.records {
		if r.Name == name && id != except {
			return true
		}
	}
	return false
}

// Interface guard.
var _ record.Store = (*Store)(nil)

// Package sections holds the ordered section instances of one in-progress
// request. The store is a plain collection: it enforces index bounds and
// keeps a (template id, duplication id) lookup index current, while every
// domain rule lives in the packages that mutate it.
package sections

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/goliatone/go-formflow/pkg/model"
)

// ErrIndexOutOfRange is returned for indices outside the collection.
var ErrIndexOutOfRange = errors.New("sections: index out of range")

// Store is an ordered, concurrency-safe list of section instances. Sections
// are copied on the way in and out.
type Store struct {
	mu       sync.RWMutex
	sections []model.SectionInstance
	index    map[model.Key]int
	version  uint64
}

// NewStore creates a store seeded with sections.
func NewStore(sections ...model.SectionInstance) *Store {
	s := &Store{}
	s.sections = model.CloneSections(sections)
	s.reindex()
	return s
}

// Len returns the number of sections.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sections)
}

// Version increases on every successful mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// At returns a copy of the section at index.
func (s *Store) At(index int) (model.SectionInstance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.sections) {
		return model.SectionInstance{}, false
	}
	return s.sections[index].Clone(), true
}

// All returns a copy of every section in order.
func (s *Store) All() []model.SectionInstance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.CloneSections(s.sections)
}

// Insert places section at index; index may equal Len to append.
func (s *Store) Insert(index int, section model.SectionInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index > len(s.sections) {
		return fmt.Errorf("%w: insert at %d (len %d)", ErrIndexOutOfRange, index, len(s.sections))
	}
	s.sections = append(s.sections, model.SectionInstance{})
	copy(s.sections[index+1:], s.sections[index:])
	s.sections[index] = section.Clone()
	s.touch()
	return nil
}

// Append adds section at the end.
func (s *Store) Append(section model.SectionInstance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sections = append(s.sections, section.Clone())
	s.touch()
}

// Remove deletes the sections at the given indices. Index zero is a valid
// target. The batch is validated first and applied from the highest index
// down so the positions refer to the state before the call.
func (s *Store) Remove(indices ...int) error {
	if len(indices) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	unique := make(map[int]struct{}, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(s.sections) {
			return fmt.Errorf("%w: remove %d (len %d)", ErrIndexOutOfRange, idx, len(s.sections))
		}
		unique[idx] = struct{}{}
	}
	ordered := make([]int, 0, len(unique))
	for idx := range unique {
		ordered = append(ordered, idx)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ordered)))
	for _, idx := range ordered {
		s.sections = append(s.sections[:idx], s.sections[idx+1:]...)
	}
	s.touch()
	return nil
}

// Update replaces the section at index.
func (s *Store) Update(index int, section model.SectionInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.sections) {
		return fmt.Errorf("%w: update %d (len %d)", ErrIndexOutOfRange, index, len(s.sections))
	}
	s.sections[index] = section.Clone()
	s.touch()
	return nil
}

// Replace swaps the whole collection.
func (s *Store) Replace(sections []model.SectionInstance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sections = model.CloneSections(sections)
	s.touch()
}

// Mutate runs fn against a copy of the sections and commits its result
// atomically. Returning an error leaves the store untouched.
func (s *Store) Mutate(fn func([]model.SectionInstance) ([]model.SectionInstance, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(model.CloneSections(s.sections))
	if err != nil {
		return err
	}
	s.sections = model.CloneSections(next)
	s.touch()
	return nil
}

// Lookup returns the index of the section identified by key.
func (s *Store) Lookup(key model.Key) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.index[key]
	return idx, ok
}

// IndicesOf lists the positions of every instance of a template.
func (s *Store) IndicesOf(templateID string) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int
	for i, section := range s.sections {
		if section.SectionID == templateID {
			out = append(out, i)
		}
	}
	return out
}

// LastIndexOf returns the position of the last instance of a template, or -1.
func (s *Store) LastIndexOf(templateID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.sections) - 1; i >= 0; i-- {
		if s.sections[i].SectionID == templateID {
			return i
		}
	}
	return -1
}

// DuplicationIDs returns the set of non-empty duplication ids in use.
func (s *Store) DuplicationIDs() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{})
	for _, section := range s.sections {
		for _, field := range section.Fields {
			if field.DuplicationID != "" {
				out[field.DuplicationID] = struct{}{}
			}
		}
	}
	return out
}

func (s *Store) touch() {
	s.version++
	s.reindex()
}

// reindex keeps the first occurrence of each key.
func (s *Store) reindex() {
	s.index = make(map[model.Key]int, len(s.sections))
	for i, section := range s.sections {
		key := section.Key()
		if _, exists := s.index[key]; exists {
			continue
		}
		s.index[key] = i
	}
}

package obfuscate

import (
	"encoding/json"
	"regexp"
	"sync"
)

var placeholderPattern = regexp.MustCompile(`field[0-9]+`)

// Mapping is the two-way table between original names and placeholders for one
// obfuscation pass.
type Mapping struct {
	forward map[string]string
	reverse map[string]string
	order   []string
}

// Entry is one original/placeholder pair.
type Entry struct {
	Placeholder string `json:"placeholder"`
	Original    string `json:"original"`
}

// NewMapping returns an empty Mapping.
func NewMapping() *Mapping {
	return &Mapping{forward: map[string]string{}, reverse: map[string]string{}}
}

func (m *Mapping) add(original, placeholder string) {
	m.forward[original] = placeholder
	m.reverse[placeholder] = original
	m.order = append(m.order, placeholder)
}

// Placeholder returns the placeholder assigned to original.
func (m *Mapping) Placeholder(original string) (string, bool) {
	if m == nil {
		return "", false
	}
	ph, ok := m.forward[original]
	return ph, ok
}

// Original returns the name a placeholder stands for.
func (m *Mapping) Original(placeholder string) (string, bool) {
	if m == nil {
		return "", false
	}
	o, ok := m.reverse[placeholder]
	return o, ok
}

// Len is the number of distinct names replaced.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}

// Entries lists the pairs in allocation order.
func (m *Mapping) Entries() []Entry {
	if m == nil {
		return nil
	}
	out := make([]Entry, 0, len(m.order))
	for _, ph := range m.order {
		out = append(out, Entry{Placeholder: ph, Original: m.reverse[ph]})
	}
	return out
}

// MarshalJSON encodes the placeholder to original direction.
func (m *Mapping) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m.reverse)
}

// Restore replaces each mapped placeholder in text with its original name.
// A placeholder is matched together with all of its trailing digits, so field1
// is never substituted inside field12, and unmapped placeholders stay as they
// are.
func Restore(text string, m *Mapping) string {
	if m.Len() == 0 {
		return text
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(ph string) string {
		if o, ok := m.reverse[ph]; ok {
			return o
		}
		return ph
	})
}

// Store keeps mappings between the obfuscation step and the restoration of
// the model's answer. Keys identify a single request.
type Store struct {
	mu       sync.Mutex
	mappings map[string]*Mapping
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{mappings: map[string]*Mapping{}}
}

// Put records m for id, replacing any earlier mapping.
func (s *Store) Put(id string, m *Mapping) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[id] = m
}

// Get returns the mapping for id without removing it.
func (s *Store) Get(id string) (*Mapping, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mappings[id]
	return m, ok
}

// Take returns and removes the mapping for id.
func (s *Store) Take(id string) (*Mapping, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mappings[id]
	delete(s.mappings, id)
	return m, ok
}

// Len is the number of mappings waiting for restoration.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mappings)
}

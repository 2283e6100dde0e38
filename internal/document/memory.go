package document

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps documents in memory. Documents without a "name" field
// get a generated one on Create.
type MemoryStore struct {
	mu    sync.RWMutex
	docs  map[string]map[string]json.RawMessage
	order map[string][]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:  make(map[string]map[string]json.RawMessage),
		order: make(map[string][]string),
	}
}

// LoadFixture reads a JSON file of the form {"<doctype>": [{...}, ...]}
// into a new MemoryStore. Every document must carry a "name".
func LoadFixture(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture is LoadFixture over raw bytes.
func ParseFixture(data []byte) (*MemoryStore, error) {
	var fixture map[string][]json.RawMessage
	if err := json.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}

	s := NewMemoryStore()
	for doctype, docs := range fixture {
		for i, doc := range docs {
			name, err := nameOf(doc)
			if err != nil || name == "" {
				return nil, fmt.Errorf("fixture %s[%d]: missing name", doctype, i)
			}
			s.put(doctype, name, doc)
		}
	}
	return s, nil
}

// Doctypes returns every document type held by the store.
func (s *MemoryStore) Doctypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.order))
	for dt := range s.order {
		out = append(out, dt)
	}
	return out
}

func (s *MemoryStore) Create(_ context.Context, doctype string, payload any) (string, error) {
	doc, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", doctype, err)
	}
	name, _ := nameOf(doc)
	if name == "" {
		name = uuid.NewString()
		doc, err = withName(doc, name)
		if err != nil {
			return "", err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doctype][name]; exists {
		return "", fmt.Errorf("%s %q already exists", doctype, name)
	}
	s.putLocked(doctype, name, doc)
	return name, nil
}

func (s *MemoryStore) Update(_ context.Context, doctype, name string, payload any) (string, error) {
	doc, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", doctype, err)
	}
	doc, err = withName(doc, name)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, exists := s.docs[doctype][name]
	if !exists {
		return "", ErrNotFound
	}
	merged, err := mergeFields(stored, doc)
	if err != nil {
		return "", fmt.Errorf("update %s %q: %w", doctype, name, err)
	}
	s.docs[doctype][name] = merged
	return name, nil
}

func (s *MemoryStore) Get(_ context.Context, doctype, name string, out any) error {
	s.mu.RLock()
	doc, ok := s.docs[doctype][name]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(doc, out)
}

func (s *MemoryStore) List(_ context.Context, doctype string) ([]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]json.RawMessage, 0, len(s.order[doctype]))
	for _, name := range s.order[doctype] {
		out = append(out, s.docs[doctype][name])
	}
	return out, nil
}

func (s *MemoryStore) put(doctype, name string, doc json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(doctype, name, doc)
}

func (s *MemoryStore) putLocked(doctype, name string, doc json.RawMessage) {
	if s.docs[doctype] == nil {
		s.docs[doctype] = make(map[string]json.RawMessage)
	}
	if _, exists := s.docs[doctype][name]; !exists {
		s.order[doctype] = append(s.order[doctype], name)
	}
	s.docs[doctype][name] = doc
}

func nameOf(doc []byte) (string, error) {
	var head struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(doc, &head); err != nil {
		return "", err
	}
	return head.Name, nil
}

func withName(doc []byte, name string) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, fmt.Errorf("document is not an object: %w", err)
	}
	n, _ := json.Marshal(name)
	fields["name"] = n
	return json.Marshal(fields)
}

// mergeFields overlays the top-level fields of patch onto stored. Fields
// absent from patch keep their stored value.
func mergeFields(stored, patch []byte) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(stored, &fields); err != nil {
		return nil, fmt.Errorf("stored document is not an object: %w", err)
	}
	var changes map[string]json.RawMessage
	if err := json.Unmarshal(patch, &changes); err != nil {
		return nil, fmt.Errorf("document is not an object: %w", err)
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage, len(changes))
	}
	for k, v := range changes {
		fields[k] = v
	}
	return json.Marshal(fields)
}

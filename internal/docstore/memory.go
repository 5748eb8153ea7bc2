package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is an in-process Store used by tests and offline runs.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]json.RawMessage
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]json.RawMessage)}
}

func (s *Memory) QueryCollections(ctx context.Context, names []string) (map[string][]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]json.RawMessage, len(names))
	for _, name := range names {
		coll, ok := s.collections[name]
		if !ok {
			continue
		}
		docs := make([]json.RawMessage, 0, len(coll))
		for _, doc := range coll {
			docs = append(docs, doc)
		}
		out[name] = docs
	}
	return out, nil
}

func (s *Memory) Create(ctx context.Context, collection string, doc any) error {
	id, data, err := encode(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]json.RawMessage)
		s.collections[collection] = coll
	}
	coll[id] = data
	return nil
}

func (s *Memory) Update(ctx context.Context, collection string, doc any) error {
	id, data, err := encode(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("collection %s does not exist", collection)
	}
	if _, ok := coll[id]; !ok {
		return fmt.Errorf("document %s not found in %s", id, collection)
	}
	coll[id] = data
	return nil
}

func (s *Memory) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("collection %s does not exist", collection)
	}
	if _, ok := coll[id]; !ok {
		return fmt.Errorf("document %s not found in %s", id, collection)
	}
	delete(coll, id)
	return nil
}

func encode(doc any) (string, json.RawMessage, error) {
	id, err := documentID(doc)
	if err != nil {
		return "", nil, err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", nil, fmt.Errorf("marshal document: %w", err)
	}
	return id, data, nil
}

var _ Store = (*Memory)(nil)

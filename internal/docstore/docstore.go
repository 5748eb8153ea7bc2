// Package docstore provides extension-scoped document collections: named
// sets of small JSON documents identified by an "id" field.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store is the document surface the free-form event engine needs.
type Store interface {
	// QueryCollections returns the documents of each named collection.
	// Collections that do not exist yet are simply absent from the result.
	QueryCollections(ctx context.Context, names []string) (map[string][]json.RawMessage, error)

	// Create adds a document to a collection, creating the collection on
	// first use. The document must carry a non-empty "id".
	Create(ctx context.Context, collection string, doc any) error

	// Update replaces the document with the same "id" in the collection.
	Update(ctx context.Context, collection string, doc any) error

	// Delete removes a document by id. Deleting a missing document is an
	// error.
	Delete(ctx context.Context, collection, id string) error
}

// documentID extracts the "id" field of a document.
func documentID(doc any) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", fmt.Errorf("read document id: %w", err)
	}
	if probe.ID == "" {
		return "", fmt.Errorf("document has no id")
	}
	return probe.ID, nil
}

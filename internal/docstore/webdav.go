package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-webdav"
)

// WebDAV stores each collection as a directory of "<id>.json" files on a
// WebDAV share.
type WebDAV struct {
	client *webdav.Client
}

// NewWebDAV creates a store rooted at the given endpoint. Credentials are
// optional; when set, requests use basic auth.
func NewWebDAV(endpoint, username, password string) (*WebDAV, error) {
	httpClient := webdav.HTTPClient(&http.Client{Timeout: 60 * time.Second})
	if username != "" {
		httpClient = webdav.HTTPClientWithBasicAuth(&http.Client{Timeout: 60 * time.Second}, username, password)
	}

	client, err := webdav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("create webdav client: %w", err)
	}
	return &WebDAV{client: client}, nil
}

// QueryCollections lists and reads each named collection. A collection whose
// directory cannot be listed is treated as not-yet-created and skipped.
func (s *WebDAV) QueryCollections(ctx context.Context, names []string) (map[string][]json.RawMessage, error) {
	out := make(map[string][]json.RawMessage, len(names))

	for _, name := range names {
		infos, err := s.client.ReadDir(ctx, name, false)
		if err != nil {
			slog.Debug("collection not readable, skipping", "collection", name, "error", err)
			continue
		}

		var docs []json.RawMessage
		for _, info := range infos {
			if info.IsDir || !strings.HasSuffix(info.Path, ".json") {
				continue
			}
			doc, err := s.read(ctx, info.Path)
			if err != nil {
				slog.Warn("skip unreadable document", "path", info.Path, "error", err)
				continue
			}
			docs = append(docs, doc)
		}
		out[name] = docs
	}

	return out, nil
}

func (s *WebDAV) read(ctx context.Context, p string) (json.RawMessage, error) {
	r, err := s.client.Open(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("document is not valid JSON")
	}
	return json.RawMessage(data), nil
}

// Create writes a new document, creating the collection directory on first
// use.
func (s *WebDAV) Create(ctx context.Context, collection string, doc any) error {
	if err := s.client.Mkdir(ctx, collection); err != nil {
		// Already exists on reruns; the write below surfaces real failures.
		slog.Debug("mkdir collection", "collection", collection, "error", err)
	}
	return s.write(ctx, collection, doc)
}

// Update replaces an existing document in place.
func (s *WebDAV) Update(ctx context.Context, collection string, doc any) error {
	return s.write(ctx, collection, doc)
}

func (s *WebDAV) write(ctx context.Context, collection string, doc any) error {
	id, err := documentID(doc)
	if err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	w, err := s.client.Create(ctx, docPath(collection, id))
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write document: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close document: %w", err)
	}
	return nil
}

// Delete removes a document by id.
func (s *WebDAV) Delete(ctx context.Context, collection, id string) error {
	if err := s.client.RemoveAll(ctx, docPath(collection, id)); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func docPath(collection, id string) string {
	return path.Join(collection, id+".json")
}

var _ Store = (*WebDAV)(nil)

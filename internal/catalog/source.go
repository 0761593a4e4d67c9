package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

//go:embed default_catalog.json
var defaultCatalogJSON []byte

// Source loads templates from a backing store.
type Source interface {
	Load(ctx context.Context) ([]Template, error)
	Name() string
}

// EmbeddedSource serves the catalog compiled into the binary.
type EmbeddedSource struct{}

func (EmbeddedSource) Name() string { return "embedded" }

func (EmbeddedSource) Load(context.Context) ([]Template, error) {
	return Decode(defaultCatalogJSON)
}

// FileSource reads a JSON array of templates from disk.
type FileSource struct {
	Path string
}

func (f FileSource) Name() string { return "file:" + f.Path }

func (f FileSource) Load(context.Context) ([]Template, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", f.Path, err)
	}
	templates, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", f.Path, err)
	}
	return templates, nil
}

// Decode parses a JSON catalog. Both a bare array and an object with a
// "cats" array are accepted.
func Decode(data []byte) ([]Template, error) {
	var templates []Template
	if err := json.Unmarshal(data, &templates); err == nil {
		return templates, nil
	}
	var wrapped struct {
		Cats []Template `json:"cats"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Cats, nil
}

// Store holds the current catalog and swaps it atomically on reload.
type Store struct {
	source  Source
	now     func() time.Time
	current atomic.Pointer[Catalog]
	reloads singleflight.Group
}

// NewStore builds a store backed by source. Until Load succeeds the store
// serves an empty catalog.
func NewStore(source Source, now func() time.Time) *Store {
	if source == nil {
		source = EmbeddedSource{}
	}
	if now == nil {
		now = time.Now
	}
	s := &Store{source: source, now: now}
	s.current.Store(Empty())
	return s
}

// Current returns the active catalog. It is never nil.
func (s *Store) Current() *Catalog {
	return s.current.Load()
}

// SourceName names the backing source.
func (s *Store) SourceName() string {
	return s.source.Name()
}

// Load fetches the catalog from the source and makes it current. Concurrent
// calls share a single fetch; shared reports whether this caller joined one
// already in flight.
func (s *Store) Load(ctx context.Context) (cat *Catalog, shared bool, err error) {
	v, err, shared := s.reloads.Do("load", func() (any, error) {
		templates, err := s.source.Load(ctx)
		if err != nil {
			return nil, err
		}
		built, err := New(templates, s.source.Name(), s.now())
		if err != nil {
			return nil, err
		}
		s.current.Store(built)
		return built, nil
	})
	if err != nil {
		return nil, shared, fmt.Errorf("load catalog from %s: %w", s.source.Name(), err)
	}
	return v.(*Catalog), shared, nil
}

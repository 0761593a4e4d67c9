package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestEmbeddedCatalogLoads(t *testing.T) {
	store := NewStore(EmbeddedSource{}, nil)
	if store.Current().Len() != 0 {
		t.Fatalf("expected empty catalog before load")
	}
	cat, _, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cat.Len() == 0 {
		t.Fatalf("expected embedded templates")
	}
	if store.Current() != cat {
		t.Fatalf("expected loaded catalog to become current")
	}
	if _, ok := cat.Get("tabby"); !ok {
		t.Fatalf("expected tabby template in embedded catalog")
	}
}

func TestNewValidatesTemplates(t *testing.T) {
	cases := []struct {
		name      string
		templates []Template
	}{
		{"missing name", []Template{{IconURL: "/x.png"}}},
		{"missing icon", []Template{{Name: "Tabby"}}},
		{"bad rarity", []Template{{Name: "Tabby", IconURL: "/x.png", Rarity: "mythic"}}},
		{"duplicate id", []Template{{Name: "Tabby", IconURL: "/a.png"}, {Name: "tabby", IconURL: "/b.png"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.templates, "test", time.Time{}); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	cat, err := New([]Template{{Name: "  Maine Coon ", IconURL: "/m.png"}}, "test", time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tmpl, ok := cat.Get("maine-coon")
	if !ok || tmpl.Name != "Maine Coon" {
		t.Fatalf("expected slug id and trimmed name, got %+v", cat.Templates())
	}
}

func TestPickFromEmptyCatalog(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if _, err := Empty().Pick(rng); !errors.Is(err, ErrCatalogEmpty) {
		t.Fatalf("expected ErrCatalogEmpty, got %v", err)
	}
}

func TestPickIsUniform(t *testing.T) {
	cat, err := New([]Template{
		{Name: "A", IconURL: "/a.png"},
		{Name: "B", IconURL: "/b.png"},
		{Name: "C", IconURL: "/c.png"},
	}, "test", time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rng := rand.New(rand.NewSource(42))
	counts := map[string]int{}
	const draws = 30000
	for i := 0; i < draws; i++ {
		tmpl, err := cat.Pick(rng)
		if err != nil {
			t.Fatalf("pick failed: %v", err)
		}
		counts[tmpl.ID]++
	}
	for id, count := range counts {
		if count < 9000 || count > 11000 {
			t.Fatalf("template %s drawn %d times out of %d", id, count, draws)
		}
	}
}

func TestFileSourceAcceptsWrappedDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cats.json")
	doc := map[string]any{"cats": []map[string]string{{"name": "Tabby", "iconUrl": "/t.png"}}}
	data, _ := json.Marshal(doc)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	store := NewStore(FileSource{Path: path}, nil)
	cat, _, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cat.Len() != 1 || cat.Source() != "file:"+path {
		t.Fatalf("unexpected catalog %+v from %s", cat.Templates(), cat.Source())
	}

	if _, _, err := NewStore(FileSource{Path: filepath.Join(dir, "missing.json")}, nil).Load(context.Background()); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

type blockingSource struct {
	calls   atomic.Int32
	release chan struct{}
}

func (b *blockingSource) Name() string { return "blocking" }

func (b *blockingSource) Load(context.Context) ([]Template, error) {
	b.calls.Add(1)
	<-b.release
	return []Template{{Name: "Tabby", IconURL: "/t.png"}}, nil
}

func TestSQLiteSourceSeedsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	embedded, err := EmbeddedSource{}.Load(context.Background())
	if err != nil {
		t.Fatalf("embedded load failed: %v", err)
	}

	store := NewStore(SQLiteSource{Path: path}, nil)
	cat, _, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("sqlite load failed: %v", err)
	}
	if cat.Len() != len(embedded) || cat.Source() != "sqlite:"+path {
		t.Fatalf("expected %d seeded templates from %s, got %d from %s", len(embedded), path, cat.Len(), cat.Source())
	}

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	removed := cat.Templates()[0].ID
	if err := db.Delete(&templateRow{ID: removed}).Error; err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	cat, _, err = store.Load(context.Background())
	if err != nil {
		t.Fatalf("second load failed: %v", err)
	}
	if cat.Len() != len(embedded)-1 {
		t.Fatalf("expected no reseed of a populated table, got %d templates", cat.Len())
	}
	if _, ok := cat.Get(removed); ok {
		t.Fatalf("deleted template %s came back", removed)
	}
}

func TestSQLiteSourceUsesExplicitSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	src := SQLiteSource{Path: path, Seed: []Template{{Name: "Night Fury", IconURL: "/icons/night.png", Rarity: "legendary"}}}

	templates, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(templates) != 1 || templates[0].ID != Slug("Night Fury") || templates[0].Rarity != "legendary" {
		t.Fatalf("unexpected templates %+v", templates)
	}
}

func TestStoreDeduplicatesConcurrentLoads(t *testing.T) {
	src := &blockingSource{release: make(chan struct{})}
	store := NewStore(src, nil)

	var wg sync.WaitGroup
	results := make([]*Catalog, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cat, _, err := store.Load(context.Background())
			if err != nil {
				t.Errorf("load failed: %v", err)
				return
			}
			results[i] = cat
		}(i)
	}

	deadline := time.Now().Add(2 * time.Second)
	for src.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(src.release)
	wg.Wait()

	if calls := src.calls.Load(); calls < 1 || calls > 5 {
		t.Fatalf("unexpected number of source loads: %d", calls)
	}
	if store.Current().Len() != 1 {
		t.Fatalf("expected loaded catalog to be current")
	}
}

func TestBuildSchema(t *testing.T) {
	schema, err := BuildSchema()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	data, err := json.Marshal(schema)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if doc["type"] != "array" {
		t.Fatalf("expected array schema, got %v", doc["type"])
	}
	items, ok := doc["items"].(map[string]any)
	if !ok {
		t.Fatalf("expected items schema, got %T", doc["items"])
	}
	props, ok := items["properties"].(map[string]any)
	if !ok || props["iconUrl"] == nil || props["name"] == nil {
		t.Fatalf("expected template properties in schema, got %v", items["properties"])
	}
}

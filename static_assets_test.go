package server

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveClientDirFromPrefersLocalClient(t *testing.T) {
	root := t.TempDir()
	clientDir := filepath.Join(root, "client")
	if err := os.MkdirAll(clientDir, 0o755); err != nil {
		t.Fatalf("failed to create client dir: %v", err)
	}

	resolved, ok := resolveClientDirFrom(root, "client")
	if !ok {
		t.Fatalf("expected to resolve client dir under %s", root)
	}
	if resolved != clientDir {
		t.Fatalf("expected %s, got %s", clientDir, resolved)
	}
}

func TestResolveClientDirFromFallsBackToParent(t *testing.T) {
	workspace := t.TempDir()
	clientDir := filepath.Join(workspace, "web")
	if err := os.MkdirAll(clientDir, 0o755); err != nil {
		t.Fatalf("failed to create client dir: %v", err)
	}
	serverDir := filepath.Join(workspace, "server")
	if err := os.MkdirAll(serverDir, 0o755); err != nil {
		t.Fatalf("failed to create server dir: %v", err)
	}

	resolved, ok := resolveClientDirFrom(serverDir, "web")
	if !ok {
		t.Fatalf("expected to resolve client dir from parent")
	}
	if resolved != clientDir {
		t.Fatalf("expected %s, got %s", clientDir, resolved)
	}
}

func TestResolveClientDirFromMissing(t *testing.T) {
	if _, ok := resolveClientDirFrom(t.TempDir(), "client"); ok {
		t.Fatalf("expected resolution to fail when client dir missing")
	}
}

func TestResolveClientDirAbsolute(t *testing.T) {
	dir := t.TempDir()
	resolved, err := ResolveClientDir(dir)
	if err != nil || resolved != dir {
		t.Fatalf("expected absolute dir %s, got %s (%v)", dir, resolved, err)
	}
	if _, err := ResolveClientDir(filepath.Join(dir, "missing")); err == nil {
		t.Fatalf("expected missing absolute dir to fail")
	}
}

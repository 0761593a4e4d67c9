package server

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResolveClientDir finds the directory served as the web client. A
// configured path wins when it exists; otherwise a "client" directory next
// to the working directory or the executable is used.
func ResolveClientDir(configured string) (string, error) {
	if configured != "" && filepath.IsAbs(configured) {
		if isDir(configured) {
			return configured, nil
		}
		return "", fmt.Errorf("client directory %s not found", configured)
	}
	name := configured
	if name == "" {
		name = "client"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve client dir: %w", err)
	}
	if dir, ok := resolveClientDirFrom(cwd, name); ok {
		return dir, nil
	}
	exePath, err := os.Executable()
	if err == nil {
		if dir, ok := resolveClientDirFrom(filepath.Dir(exePath), name); ok {
			return dir, nil
		}
	}
	return "", fmt.Errorf("client directory %q not found", name)
}

func resolveClientDirFrom(base, name string) (string, bool) {
	candidates := []string{
		filepath.Join(base, name),
		filepath.Join(base, "..", name),
	}
	for _, candidate := range candidates {
		if !isDir(candidate) {
			continue
		}
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		return abs, true
	}
	return "", false
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

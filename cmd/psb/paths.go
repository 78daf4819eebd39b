package main

import (
	"os"
	"path/filepath"
	"strings"
)

const envOutDir = "PSBKIT_OUT_DIR"

// resolveOutDir returns the directory outputs go to, creating it if
// needed. An empty flag falls back to $PSBKIT_OUT_DIR and then to ""
// (next to each input).
func resolveOutDir(flag string) (string, error) {
	dir := strings.TrimSpace(flag)
	if dir == "" {
		dir = strings.TrimSpace(os.Getenv(envOutDir))
	}
	if dir == "" {
		return "", nil
	}
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Package store provides persistence for the Site Profiler and Pattern
// Tracker: atomic write-then-rename JSON files by default (spec.md §6),
// tolerant of absence or corruption, with an optional Redis-backed
// implementation for multi-process deployments.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LoadJSON reads path into dst. A missing file or corrupt JSON is
// treated as "empty" rather than an error, per spec.md §6.
func LoadJSON(path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return nil // corruption is tolerated, not surfaced
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return nil
	}
	return nil
}

// SaveJSON atomically rewrites path with the JSON encoding of src, via a
// temp file in the same directory followed by os.Rename (grounded on
// Streamy's internal/registry/cache.go).
func SaveJSON(path string, src interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: creating directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(src, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshaling %s: %w", path, err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("store: writing temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("store: renaming temp file for %s: %w", path, err)
	}
	return nil
}

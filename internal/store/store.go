package store

import "context"

// Backend persists named JSON blobs for the Site Profiler and Pattern
// Tracker. The file-backed implementation (LoadJSON/SaveJSON) is used
// by default; RedisStore satisfies the same shape for multi-process
// deployments (SPEC_FULL.md §3).
type Backend interface {
	LoadJSON(ctx context.Context, name string, dst interface{}) error
	SaveJSON(ctx context.Context, name string, src interface{}) error
}

// FileBackend adapts the package-level LoadJSON/SaveJSON functions to
// the Backend interface, using name as a path relative to nothing
// (callers pass an absolute path as name).
type FileBackend struct{}

func (FileBackend) LoadJSON(_ context.Context, name string, dst interface{}) error {
	return LoadJSON(name, dst)
}

func (FileBackend) SaveJSON(_ context.Context, name string, src interface{}) error {
	return SaveJSON(name, src)
}

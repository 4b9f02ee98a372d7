// Package archive persists completed solution documents outside the
// in-memory job registry, so results survive process restarts and can be
// fetched by offline tooling. The registry remains the source of truth
// while a job record exists; the archive is write-only from the server's
// point of view.
package archive

import (
	"context"
	"fmt"
)

// Store receives solution documents keyed by job-derived paths.
type Store interface {
	// Put writes one document. Keys use forward slashes regardless of
	// platform.
	Put(ctx context.Context, key string, contentType string, body []byte) error
}

// Backend names for Config.Backend.
const (
	BackendNone = "none"
	BackendFile = "file"
	BackendS3   = "s3"
)

// Config selects and configures an archive backend.
type Config struct {
	// Backend is one of "none", "file", "s3". Empty means none.
	Backend string

	// Dir is the root directory for the file backend.
	Dir string

	// S3 backend settings.
	Bucket          string
	Region          string
	Endpoint        string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool

	// Prefix is prepended to every key, for both backends.
	Prefix string
}

// New builds the configured archive store. A "none" backend returns
// (nil, nil); callers treat a nil Store as archival disabled.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendFile:
		return NewFileStore(cfg.Dir, cfg.Prefix)
	case BackendS3:
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("archive: unknown backend %q", cfg.Backend)
	}
}

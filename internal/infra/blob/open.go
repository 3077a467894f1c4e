// Package blob selects the object store the audit archive writes to.
package blob

import (
	"context"
	"fmt"

	"talentcore/internal/infra/blob/core"
	"talentcore/internal/infra/blob/fs"
	"talentcore/internal/infra/blob/memory"
	"talentcore/internal/infra/blob/s3"
)

// Store aliases core.Store for callers that only need the factory.
type Store = core.Store

// Config selects and parameterises a driver.
type Config struct {
	Driver string // fs|s3|memory; empty disables archiving
	FSRoot string
	S3     s3.Config
}

// Open returns the configured store, or nil when no driver is set.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch core.Driver(cfg.Driver) {
	case "":
		return nil, nil
	case core.DriverFilesystem:
		store, err := fs.New(cfg.FSRoot)
		if err != nil {
			return nil, fmt.Errorf("open fs archive: %w", err)
		}
		return store, nil
	case core.DriverS3:
		store, err := s3.New(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("open s3 archive: %w", err)
		}
		return store, nil
	case core.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
}

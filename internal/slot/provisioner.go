package slot

import (
	"context"
)

// Provisioner abstracts the external tools that prepare a slot region.
// Injecting it keeps the update agent's install logic testable without real
// block devices.
type Provisioner interface {
	// Format creates a fresh filesystem on dev with the given label,
	// discarding all prior contents.
	Format(ctx context.Context, dev, label string) error

	// Mount makes dev available at dir.
	Mount(ctx context.Context, dev, dir string) error

	// Unmount syncs and detaches the filesystem at dir.
	Unmount(ctx context.Context, dir string) error
}

// Extractor unpacks a verified update artifact into a mounted slot region.
type Extractor interface {
	// Extract unpacks the archive at path into dir.
	Extract(ctx context.Context, path, dir string) error
}

package blob

import (
	"context"
	"fmt"
	"os"
)

// Config selects and parameterises a backend. Zero values fall back to the
// backend defaults.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// OpenConfig constructs the backend named by cfg.Driver. An empty driver
// selects the filesystem.
func OpenConfig(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}

// Open selects a blob.Store implementation using environment variables.
//
//	NUCLEICORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	NUCLEICORE_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	(S3 specific variables documented in infra/blob/s3)
func Open(ctx context.Context) (Store, error) {
	driver := Driver(os.Getenv("NUCLEICORE_BLOB_DRIVER"))
	if driver == DriverS3 {
		return OpenS3FromEnv(ctx)
	}
	return OpenConfig(ctx, Config{Driver: driver, FSRoot: os.Getenv("NUCLEICORE_BLOB_FS_ROOT")})
}

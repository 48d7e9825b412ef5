// Package archive provides long-term storage of retired records. Retirement
// keeps history in the store; the archive is the off-box audit copy, written
// best-effort after each retire.
package archive

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Driver identifies a concrete archive backend.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverFS     Driver = "fs"
	DriverS3     Driver = "s3"
)

// Store is a minimal key/value object store for archived records.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Driver() Driver
}

// Open selects a backend using environment variables. Defaults to fs.
//
//	PBXCORE_ARCHIVE_DRIVER: memory|fs|s3 (default fs)
//	PBXCORE_ARCHIVE_FS_ROOT: root directory for fs driver (default ./archive)
//	PBXCORE_ARCHIVE_S3_BUCKET: bucket for s3 driver (required)
//	PBXCORE_ARCHIVE_S3_REGION: region for s3 driver (default us-east-1)
//	PBXCORE_ARCHIVE_S3_ENDPOINT: custom endpoint (optional, for MinIO)
func Open(ctx context.Context) (Store, error) {
	driver := strings.ToLower(os.Getenv("PBXCORE_ARCHIVE_DRIVER"))
	if driver == "" {
		driver = string(DriverFS)
	}
	switch Driver(driver) {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverFS:
		return NewFSStore(os.Getenv("PBXCORE_ARCHIVE_FS_ROOT"))
	case DriverS3:
		return OpenS3FromEnv(ctx)
	default:
		return nil, fmt.Errorf("unknown archive driver %s", driver)
	}
}

package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Locator references a stored object; it never carries the bytes themselves.
type Locator struct {
	Container   string `json:"container"`
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
	Checksum    string `json:"checksum"`
}

// IsZero reports whether the locator references nothing.
func (l Locator) IsZero() bool {
	return l.Container == "" && l.Key == ""
}

// Store is the content-addressed object store contract. Objects are
// write-once: Put never overwrites an existing key with different bytes in
// practice because keys embed revision identity. Delete is idempotent;
// deleting a missing key is not an error.
type Store interface {
	Put(ctx context.Context, container, key string, data []byte, contentType string) (Locator, error)
	Get(ctx context.Context, container, key string) ([]byte, error)
	Delete(ctx context.Context, container, key string) error
}

// Checksum returns the hex-encoded SHA-256 digest used for locator checksums.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

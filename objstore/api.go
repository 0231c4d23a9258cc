package objstore

import (
	"context"
	"time"
)

// Client is the interface to the object store. Implementations must tolerate keys being overwritten with the
// same or different values, and must not assume read-after-write consistency for listings.
type Client interface {
	// Get returns the value for the key, or nil if it does not exist
	Get(ctx context.Context, bucket string, key string) ([]byte, error)

	// Put stores value with the given key, overwriting any previous value for the key
	Put(ctx context.Context, bucket string, key string, value []byte) error

	// Delete deletes the value with the given key. No error is returned if the key does not exist
	Delete(ctx context.Context, bucket string, key string) error

	// DeleteAll deletes all the values with the given keys
	DeleteAll(ctx context.Context, bucket string, keys []string) error

	// ListObjectsWithPrefix returns infos for all objects whose keys start with prefix, in order of key.
	// If maxKeys is -1 then all matching objects are returned, otherwise at most maxKeys. Note that S3 pages
	// listings at 1000 keys so implementations may need to make multiple calls to the store
	ListObjectsWithPrefix(ctx context.Context, bucket string, prefix string, maxKeys int) ([]ObjectInfo, error)

	Start() error

	Stop() error
}

type ObjectInfo struct {
	Key          string
	LastModified time.Time
}

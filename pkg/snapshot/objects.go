// Package snapshot exports a raw BTT extent to an S3-compatible bucket and
// restores it.
//
// The extent is cut into fixed-size parts. Each non-zero part is stored as
// its own object and a YAML manifest records the part size, extent size and
// a SHA-256 per part. All-zero parts are not uploaded, so a freshly
// formatted device snapshots in a few objects regardless of its size.
//
// A snapshot of a live device is only crash-consistent if writes are
// quiesced while Export runs.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"path"
)

// ErrObjectNotFound is returned by ObjectClient.Get for a missing key.
var ErrObjectNotFound = errors.New("object not found")

// ObjectClient is the subset of object storage used by Export and Import.
type ObjectClient interface {
	// Put stores body under key, replacing any existing object. body is
	// not retained after Put returns.
	Put(ctx context.Context, key string, body []byte) error

	// Get returns the object stored under key, or ErrObjectNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

const manifestName = "manifest.yaml"

// ManifestKey returns the manifest object key under prefix.
func ManifestKey(prefix string) string {
	return path.Join(prefix, manifestName)
}

// PartKey returns the object key of part idx under prefix.
func PartKey(prefix string, idx int) string {
	return path.Join(prefix, fmt.Sprintf("part-%08d", idx))
}

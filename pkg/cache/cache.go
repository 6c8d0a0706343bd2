// Package cache provides byte-level caching of rendered artifacts and the
// key scheme shared by every backend.
//
// Backends:
//   - [NullCache]: never stores anything (caching disabled)
//   - [MemoryCache]: in-process map, the service default
//   - [FileCache]: JSON entries on disk, used by the CLI
//   - [RedisCache]: shared cache for several service replicas
//
// Keys are produced by a [Keyer] so that the CLI and the service agree on
// them. A rendered artifact is addressed by the SHA-256 of the source bytes
// plus the render options:
//
//	key := keyer.ArtifactKey(cache.Hash(src), cache.ArtifactKeyOpts{
//	    Style:   "Modern",
//	    Quality: 85,
//	})
//	if data, ok, _ := c.Get(ctx, key); ok {
//	    return data
//	}
package cache

import (
	"context"
	"time"
)

// Cache TTLs.
const (
	// TTLArtifact is how long a rendered JPEG stays cached. Renders are
	// deterministic, so the only reason to expire them is disk or memory.
	TTLArtifact = 7 * 24 * time.Hour
)

// Cache stores opaque byte values by key.
//
// Get reports a miss with (nil, false, nil); errors are reserved for
// backend failures. A ttl of zero on Set means no expiry.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// ArtifactKeyOpts are the render options that change an artifact's bytes.
type ArtifactKeyOpts struct {
	Style   string `json:"style"`
	Quality int    `json:"quality"`
}

// Keyer generates cache keys.
type Keyer interface {
	// ArtifactKey addresses a rendered image by source hash and options.
	ArtifactKey(sourceHash string, opts ArtifactKeyOpts) string
	// SessionKey addresses a stored session.
	SessionKey(id string) string
}

// DefaultKeyer produces unprefixed keys.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default key scheme.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// ArtifactKey returns "artifact:<sha256(sourceHash, opts)>".
func (DefaultKeyer) ArtifactKey(sourceHash string, opts ArtifactKeyOpts) string {
	return hashKey("artifact", sourceHash, opts)
}

// SessionKey returns "session:<id>".
func (DefaultKeyer) SessionKey(id string) string {
	return "session:" + id
}

var _ Keyer = DefaultKeyer{}

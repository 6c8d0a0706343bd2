// Package pipeline runs style renders for the CLI and the HTTP service.
//
// It wraps [style] with the parts every entry point needs: option
// validation, artifact caching, bounded concurrency and instrumentation.
// By centralizing this logic, both front ends produce byte-identical
// output for the same photo, style and quality.
//
// # Stages
//
//  1. Decode: parse the uploaded bytes into a raster
//  2. Apply: tint, flatten, smooth and boost contrast
//  3. Encode: serialize as JPEG
//
// A cache hit on the artifact key skips all three.
//
// # Usage
//
//	runner := pipeline.NewRunner(c, nil, logger, pipeline.WithMaxConcurrent(4))
//	result, err := runner.Execute(ctx, photo, pipeline.Options{Style: "Nordic"})
//	if err != nil {
//	    return err
//	}
//	os.WriteFile("room_Nordic.jpg", result.Artifact, 0o644)
package pipeline

import (
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/restyle/pkg/cache"
	"github.com/matzehuels/restyle/pkg/errors"
	"github.com/matzehuels/restyle/pkg/style"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and API
// =============================================================================

// DefaultQuality is the JPEG quality used when Options.Quality is zero.
const DefaultQuality = style.DefaultQuality

// =============================================================================
// Options - Render Configuration
// =============================================================================

// Options configures a single render.
// This struct supports JSON serialization for API requests.
type Options struct {
	// Style is the style name. Matching is case-sensitive; unknown names
	// render without a tint unless Strict is set.
	Style string `json:"style"`

	// Quality is the JPEG quality, 1-100. Zero selects DefaultQuality.
	Quality int `json:"quality,omitempty"`

	// Strict rejects unknown style names with INVALID_STYLE.
	Strict bool `json:"strict,omitempty"`

	// Refresh bypasses the cache lookup. The result is still stored.
	Refresh bool `json:"refresh,omitempty"`

	// Runtime options (not serialized)
	Logger *log.Logger `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// Result contains the output of a render.
type Result struct {
	// Artifact is the encoded JPEG.
	Artifact []byte

	// Style is the resolved style name ("None" for unknown names).
	Style string

	// Width and Height of the output, equal to the input's.
	Width, Height int

	// SourceHash is the SHA-256 of the input bytes.
	SourceHash string

	// ContentType of Artifact, always image/jpeg.
	ContentType string

	// Stats contains timing and size information.
	Stats Stats

	// CacheInfo tracks whether the artifact came from cache.
	CacheInfo CacheInfo
}

// Stats contains render statistics. Stage timings are zero on a cache hit.
type Stats struct {
	DecodeTime  time.Duration
	RenderTime  time.Duration
	EncodeTime  time.Duration
	InputBytes  int
	OutputBytes int
}

// Total returns the summed stage time.
func (s Stats) Total() time.Duration {
	return s.DecodeTime + s.RenderTime + s.EncodeTime
}

// CacheInfo tracks cache usage for a render.
type CacheInfo struct {
	RenderHit bool // Whether the artifact came from cache
}

// =============================================================================
// Options Methods
// =============================================================================

// ValidateAndSetDefaults checks fields and applies defaults.
// This method is idempotent - calling it multiple times has the same effect as calling it once.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if err := errors.ValidateQuality(o.Quality); err != nil {
		return err
	}
	if o.Quality == 0 {
		o.Quality = DefaultQuality
	}
	if o.Strict {
		if err := errors.ValidateStyleName(o.Style, style.Names()); err != nil {
			return err
		}
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
	return nil
}

// ResolvedStyle returns the style the render will apply.
func (o *Options) ResolvedStyle() style.Style {
	return style.Parse(o.Style)
}

// ArtifactKeyOpts returns cache key options. Unknown names share the
// "None" key because they produce identical output.
func (o *Options) ArtifactKeyOpts() cache.ArtifactKeyOpts {
	return cache.ArtifactKeyOpts{
		Style:   o.ResolvedStyle().String(),
		Quality: o.Quality,
	}
}

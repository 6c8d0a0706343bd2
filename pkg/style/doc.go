// Package style renders room photos in a named interior style.
//
// # Overview
//
// A render is a fixed, deterministic raster pipeline. It is a placeholder for a
// real image-generation model and performs no inference:
//
//  1. Drop the alpha channel; every pixel keeps its stored colour.
//  2. Look up the style's overlay colour (unknown names get a transparent one).
//  3. Blend the overlay in: out = src*(1-a) + overlay*a.
//  4. Smooth with the 5x5 SMOOTH_MORE kernel, leaving a 2 pixel frame as is.
//  5. Boost contrast by [DefaultContrast] around the mean luminance,
//     truncating the result.
//  6. Encode as JPEG.
//
// The byte-level entry point is [Render]:
//
//	out, err := style.Render(photo, "Nordic", style.WithQuality(90))
//	var de *style.DecodeError
//	if errors.As(err, &de) {
//	    // not an image
//	}
//
// The raster stages are exported individually ([Decode], [Apply], [Tint],
// [Flatten], [Smooth], [Contrast], [Encode]) so callers can time them or
// build reference transforms.
//
// # Styles
//
// The style table is a closed enumeration ([Modern], [Classic], [Nordic],
// [Japanese]). Names are matched case-sensitively by [Parse]. Unrecognised
// names map to [None], whose overlay is fully transparent, so the render
// degrades to smoothing and contrast only instead of failing.
//
// # Properties
//
// Rendering preserves width and height, is deterministic for identical
// input bytes, style and quality, and holds no shared mutable state, so it
// is safe to call from many goroutines. It is not idempotent: rendering an
// already rendered image tints and smooths it again.
package style

package style

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// DefaultContrast is the contrast multiplier applied by Apply.
const DefaultContrast = 1.05

// smoothMore is the 5x5 SMOOTH_MORE kernel. It sums to 100 and is normalized
// by the convolution.
var smoothMore = [25]float64{
	1, 1, 1, 1, 1,
	1, 5, 5, 5, 1,
	1, 5, 44, 5, 1,
	1, 5, 5, 5, 1,
	1, 1, 1, 1, 1,
}

// Apply runs the raster stages of a render on img: flatten, tint, smooth,
// contrast. Every source pixel is treated as opaque, so transparent areas
// keep their stored colour. The result has the same width and height as
// img, and its bounds start at (0, 0).
func Apply(img image.Image, s Style) *image.NRGBA {
	return Contrast(Smooth(Tint(Flatten(img), s.Overlay())), DefaultContrast)
}

// Tint blends a solid overlay colour into every pixel using the overlay's
// alpha only:
//
//	out = src*(1-oa) + overlay*oa
//
// The source alpha is carried through unchanged and does not weigh the
// blend. A transparent overlay returns an unmodified copy.
func Tint(img image.Image, overlay color.NRGBA) *image.NRGBA {
	if overlay.A == 0 {
		return imaging.Clone(img)
	}
	oa := float64(overlay.A) / 255
	keep := 1 - oa
	tr, tg, tb := float64(overlay.R)*oa, float64(overlay.G)*oa, float64(overlay.B)*oa

	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clamp8(float64(c.R)*keep + tr),
			G: clamp8(float64(c.G)*keep + tg),
			B: clamp8(float64(c.B)*keep + tb),
			A: c.A,
		}
	})
}

// Flatten drops the alpha channel, keeping the stored colour of every
// pixel and marking it opaque.
func Flatten(img image.Image) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		c.A = 0xff
		return c
	})
}

// smoothBorder is the width of the frame Smooth leaves unfiltered.
const smoothBorder = 2

// Smooth convolves img with the SMOOTH_MORE kernel. The outer two rows and
// columns, where the kernel would reach past the edge, are copied through
// unfiltered; images narrower or shorter than the kernel are returned as an
// unmodified copy.
func Smooth(img image.Image) *image.NRGBA {
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if w < 2*smoothBorder+1 || h < 2*smoothBorder+1 {
		return src
	}

	out := imaging.Convolve5x5(src, smoothMore, &imaging.ConvolveOptions{Normalize: true})
	for y := 0; y < h; y++ {
		srow := src.Pix[y*src.Stride : y*src.Stride+w*4]
		orow := out.Pix[y*out.Stride : y*out.Stride+w*4]
		if y < smoothBorder || y >= h-smoothBorder {
			copy(orow, srow)
			continue
		}
		copy(orow[:smoothBorder*4], srow[:smoothBorder*4])
		copy(orow[(w-smoothBorder)*4:], srow[(w-smoothBorder)*4:])
	}
	return out
}

// Contrast scales every colour channel away from the image's mean
// luminance: out = mean + (in - mean) * factor, computed in single
// precision, truncated toward zero and clipped to [0, 255].
// A factor of 1 returns an identical copy.
func Contrast(img *image.NRGBA, factor float64) *image.NRGBA {
	mean := MeanLuminance(img)
	f := float32(factor)

	var lut [256]uint8
	for i := range lut {
		// The explicit conversion keeps the product from being fused.
		lut[i] = trunc8(float32(mean) + float32(f*float32(i-mean)))
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: lut[c.R], G: lut[c.G], B: lut[c.B], A: c.A}
	})
}

// MeanLuminance returns the rounded mean ITU-R 601-2 luma of img
// (L = R*299/1000 + G*587/1000 + B*114/1000). Alpha is ignored.
func MeanLuminance(img *image.NRGBA) int {
	b := img.Rect
	n := b.Dx() * b.Dy()
	if n == 0 {
		return 0
	}
	var sum uint64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			p := row[x*4 : x*4+3 : x*4+3]
			sum += uint64(luma(p[0], p[1], p[2]))
		}
	}
	return int(float64(sum)/float64(n) + 0.5)
}

// luma uses 16-bit fixed point weights, rounded.
func luma(r, g, b uint8) uint32 {
	return (uint32(r)*19595 + uint32(g)*38470 + uint32(b)*7471 + 0x8000) >> 16
}

func trunc8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

func clamp8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

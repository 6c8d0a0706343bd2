package style

// Option configures Render.
type Option func(*renderer)

type renderer struct {
	quality int
}

// WithQuality sets the JPEG quality (default DefaultQuality).
// Values outside [MinQuality, MaxQuality] are clamped.
func WithQuality(q int) Option {
	return func(r *renderer) { r.quality = ClampQuality(q) }
}

// Render decodes src, applies the named style and encodes the result as JPEG.
//
// Unknown names render without a tint. The only errors are *DecodeError for
// input that is not a supported image and *EncodeError if serialization
// fails; on error no bytes are returned.
func Render(src []byte, name string, opts ...Option) ([]byte, error) {
	r := renderer{quality: DefaultQuality}
	for _, opt := range opts {
		opt(&r)
	}

	img, _, err := Decode(src)
	if err != nil {
		return nil, err
	}
	return Encode(Apply(img, Parse(name)), r.quality)
}

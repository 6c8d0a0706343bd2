package style

import "image/color"

// Style identifies one of the built-in interior styles.
// The zero value is None.
type Style int

const (
	// None is the fallback for unrecognised names. Its overlay is transparent.
	None Style = iota
	Modern
	Classic
	Nordic
	Japanese
)

var names = [...]string{
	None:     "None",
	Modern:   "Modern",
	Classic:  "Classic",
	Nordic:   "Nordic",
	Japanese: "Japanese",
}

// overlays is the tint applied by each style (8-bit straight alpha).
var overlays = [...]color.NRGBA{
	None:     {R: 0, G: 0, B: 0, A: 0},
	Modern:   {R: 30, G: 144, B: 255, A: 40},
	Classic:  {R: 160, G: 82, B: 45, A: 40},
	Nordic:   {R: 240, G: 248, B: 255, A: 40},
	Japanese: {R: 255, G: 182, B: 193, A: 40},
}

// Styles returns the named styles in table order. None is not included.
func Styles() []Style {
	return []Style{Modern, Classic, Nordic, Japanese}
}

// Names returns the names accepted by Parse, in table order.
func Names() []string {
	styles := Styles()
	out := make([]string, len(styles))
	for i, s := range styles {
		out[i] = s.String()
	}
	return out
}

// Lookup returns the style with the given name and whether it was recognised.
// Matching is case-sensitive; "modern" is not Modern.
func Lookup(name string) (Style, bool) {
	for _, s := range Styles() {
		if names[s] == name {
			return s, true
		}
	}
	return None, false
}

// Parse returns the style with the given name, or None if the name is unknown.
func Parse(name string) Style {
	s, _ := Lookup(name)
	return s
}

// String returns the style name.
func (s Style) String() string {
	if !s.valid() {
		return names[None]
	}
	return names[s]
}

// Overlay returns the RGBA tint for s. Out-of-range values get None's overlay.
func (s Style) Overlay() color.NRGBA {
	if !s.valid() {
		return overlays[None]
	}
	return overlays[s]
}

// IsNone reports whether s applies no tint.
func (s Style) IsNone() bool {
	return s.Overlay().A == 0
}

func (s Style) valid() bool {
	return s >= None && int(s) < len(names)
}

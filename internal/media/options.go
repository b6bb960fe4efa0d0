package media

import (
	"strconv"
	"strings"

	"media-cdn/internal/modifiers"
)

// Fit modes, named after the sharp/ipx options the URLs use.
const (
	FitCover   = "cover"
	FitContain = "contain"
	FitFill    = "fill"
	FitInside  = "inside"
	FitOutside = "outside"
)

const (
	// DefaultQuality applies when no quality modifier is given.
	DefaultQuality = 80

	// MaxImageDimension is the maximum width or height a request may ask for.
	MaxImageDimension = 8192

	// MaxImagePixels bounds decoded source images (~80MB in RGBA).
	MaxImagePixels = 20_000_000
)

// Color is an opaque RGB background.
type Color struct {
	R, G, B uint8
}

// Options is the engine-neutral form of an image modifier set.
type Options struct {
	Width      int
	Height     int
	Fit        string
	Position   string
	Format     string
	Quality    int
	Animated   bool
	Background *Color
	Rotate     int
	Flip       bool
	Flop       bool
	Blur       float64
	Sharpen    float64
	Grayscale  bool
	Negate     bool
	Normalize  bool
}

// OptionsFromSet maps a resolved modifier set onto engine options. Values that
// do not parse are ignored, matching the parser's skip-on-malformed rule.
func OptionsFromSet(set modifiers.Set) Options {
	opts := Options{
		Fit:      FitCover,
		Format:   strings.ToLower(set.Get(modifiers.Format)),
		Quality:  DefaultQuality,
		Animated: set.Bool(modifiers.Animated),
		Flip:     set.Bool(modifiers.Flip),
		Flop:     set.Bool(modifiers.Flop),

		Grayscale: set.Bool(modifiers.Grayscale),
		Negate:    set.Bool(modifiers.Negate),
		Normalize: set.Bool(modifiers.Normalize),
		Position:  strings.ToLower(set.Get(modifiers.Position)),
	}

	if w, ok := set.Int(modifiers.Width); ok {
		opts.Width = clampInt(w, 0, MaxImageDimension)
	}
	if h, ok := set.Int(modifiers.Height); ok {
		opts.Height = clampInt(h, 0, MaxImageDimension)
	}

	switch fit := strings.ToLower(set.Get(modifiers.Fit)); fit {
	case FitCover, FitContain, FitFill, FitInside, FitOutside:
		opts.Fit = fit
	}

	if q, ok := set.Int(modifiers.Quality); ok && q > 0 {
		opts.Quality = clampInt(q, 1, 100)
	}
	if c, ok := ParseColor(set.Get(modifiers.Background)); ok {
		opts.Background = &c
	}
	if r, ok := set.Int(modifiers.Rotate); ok {
		opts.Rotate = normalizeRotation(r)
	}

	opts.Blur = sigma(set, modifiers.Blur)
	opts.Sharpen = sigma(set, modifiers.Sharpen)
	return opts
}

// sigma reads a filter strength. A bare flag gets a mild default.
func sigma(set modifiers.Set, name string) float64 {
	if !set.Has(name) {
		return 0
	}
	if v, ok := set.Float(name); ok && v > 0 {
		return min(v, 100)
	}
	if set.Bool(name) {
		return 1
	}
	return 0
}

// normalizeRotation snaps an angle to a multiple of 90 in [0, 360).
func normalizeRotation(deg int) int {
	deg = ((deg % 360) + 360) % 360
	return (deg + 45) / 90 * 90 % 360
}

// ParseColor parses "fff", "ffffff" or "#ffffff".
func ParseColor(s string) (Color, bool) {
	s = strings.TrimPrefix(strings.ToLower(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return Color{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return Color{}, false
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, true
}

// Resizes reports whether the options change the image dimensions.
func (o Options) Resizes() bool {
	return o.Width > 0 || o.Height > 0
}

// targetSize fills a missing dimension from the source aspect ratio.
func (o Options) targetSize(srcW, srcH int) (int, int) {
	w, h := o.Width, o.Height
	switch {
	case w == 0 && h == 0:
		return srcW, srcH
	case w == 0:
		w = max(1, srcW*h/max(srcH, 1))
	case h == 0:
		h = max(1, srcH*w/max(srcW, 1))
	}
	return w, h
}

func clampInt(n, lo, hi int) int {
	return min(hi, max(lo, n))
}

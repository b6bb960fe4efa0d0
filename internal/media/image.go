package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"media-cdn/internal/logging"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // WebP decode support
)

// ImagingEngine is the pure-Go fallback used when libvips is unavailable.
// It decodes webp but can only encode jpeg, png, gif and tiff.
type ImagingEngine struct{}

// NewImagingEngine returns the pure-Go engine.
func NewImagingEngine() *ImagingEngine {
	return &ImagingEngine{}
}

// Name implements Engine.
func (e *ImagingEngine) Name() string { return "imaging" }

// Transform implements Engine.
func (e *ImagingEngine) Transform(ctx context.Context, src []byte, opts Options) ([]byte, error) {
	format, err := imagingFormat(opts.Format)
	if err != nil {
		return nil, err
	}

	img, err := decodeConstrained(src, MaxImagePixels)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img = imagingResize(img, opts)
	img = imagingAdjust(img, opts)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(opts.Quality)); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", opts.Format, err)
	}
	return buf.Bytes(), nil
}

func imagingFormat(format string) (imaging.Format, error) {
	switch format {
	case "jpeg":
		return imaging.JPEG, nil
	case "png":
		return imaging.PNG, nil
	case "gif":
		return imaging.GIF, nil
	case "tiff":
		return imaging.TIFF, nil
	}
	return 0, fmt.Errorf("%w: %s (imaging engine)", ErrUnsupportedFormat, format)
}

// decodeConstrained decodes src, downscaling sources above maxPixels so very
// large uploads cannot exhaust memory.
func decodeConstrained(src []byte, maxPixels int) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	pixels := cfg.Width * cfg.Height
	if pixels <= maxPixels {
		return img, nil
	}

	scale := float64(maxPixels) / float64(pixels)
	b := img.Bounds()
	w := max(1, int(float64(b.Dx())*math.Sqrt(scale)))
	h := max(1, int(float64(b.Dy())*math.Sqrt(scale)))
	logging.Info("Constraining large image from %dx%d to %dx%d", b.Dx(), b.Dy(), w, h)
	return imaging.Resize(img, w, h, imaging.Lanczos), nil
}

func imagingResize(img image.Image, opts Options) image.Image {
	if !opts.Resizes() {
		return img
	}
	b := img.Bounds()
	w, h := opts.targetSize(b.Dx(), b.Dy())

	switch opts.Fit {
	case FitFill:
		return imaging.Resize(img, w, h, imaging.Lanczos)
	case FitInside:
		if b.Dx() <= w && b.Dy() <= h {
			return img
		}
		return imaging.Fit(img, w, h, imaging.Lanczos)
	case FitOutside:
		scale := max(float64(w)/float64(b.Dx()), float64(h)/float64(b.Dy()))
		return imaging.Resize(img, int(float64(b.Dx())*scale+0.5), int(float64(b.Dy())*scale+0.5), imaging.Lanczos)
	case FitContain:
		fitted := imaging.Fit(img, w, h, imaging.Lanczos)
		bg := color.NRGBA{A: 255}
		if opts.Background != nil {
			bg = color.NRGBA{R: opts.Background.R, G: opts.Background.G, B: opts.Background.B, A: 255}
		}
		return imaging.PasteCenter(imaging.New(w, h, bg), fitted)
	default:
		return imaging.Fill(img, w, h, imagingAnchor(opts.Position), imaging.Lanczos)
	}
}

func imagingAnchor(position string) imaging.Anchor {
	switch position {
	case "top", "north":
		return imaging.Top
	case "bottom", "south":
		return imaging.Bottom
	case "left", "west":
		return imaging.Left
	case "right", "east":
		return imaging.Right
	case "topleft", "northwest":
		return imaging.TopLeft
	case "topright", "northeast":
		return imaging.TopRight
	case "bottomleft", "southwest":
		return imaging.BottomLeft
	case "bottomright", "southeast":
		return imaging.BottomRight
	default:
		return imaging.Center
	}
}

func imagingAdjust(img image.Image, opts Options) image.Image {
	// imaging rotates counter-clockwise; rotate modifiers are clockwise.
	switch opts.Rotate {
	case 90:
		img = imaging.Rotate270(img)
	case 180:
		img = imaging.Rotate180(img)
	case 270:
		img = imaging.Rotate90(img)
	}
	if opts.Flip {
		img = imaging.FlipV(img)
	}
	if opts.Flop {
		img = imaging.FlipH(img)
	}
	if opts.Blur > 0 {
		img = imaging.Blur(img, opts.Blur)
	}
	if opts.Sharpen > 0 {
		img = imaging.Sharpen(img, opts.Sharpen)
	}
	if opts.Grayscale {
		img = imaging.Grayscale(img)
	}
	if opts.Negate {
		img = imaging.Invert(img)
	}
	if opts.Normalize {
		img = normalize(img)
	}
	return img
}

// normalize stretches each channel to the full 0-255 range.
func normalize(img image.Image) image.Image {
	nrgba := imaging.Clone(img)
	lo := [3]uint8{255, 255, 255}
	hi := [3]uint8{}
	for i := 0; i+3 < len(nrgba.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			v := nrgba.Pix[i+c]
			lo[c] = min(lo[c], v)
			hi[c] = max(hi[c], v)
		}
	}
	return imaging.AdjustFunc(nrgba, func(px color.NRGBA) color.NRGBA {
		ch := [3]uint8{px.R, px.G, px.B}
		for c := range ch {
			if hi[c] > lo[c] {
				ch[c] = uint8((int(ch[c]) - int(lo[c])) * 255 / (int(hi[c]) - int(lo[c])))
			}
		}
		return color.NRGBA{R: ch[0], G: ch[1], B: ch[2], A: px.A}
	})
}

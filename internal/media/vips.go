package media

import (
	"context"
	"fmt"
	"sync"

	"media-cdn/internal/logging"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
	vipsAvailable   bool
)

// InitVips initializes the libvips library
// This should be called once at startup
func InitVips() error {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	// Configure vips logging BEFORE Startup() so it follows LOG_LEVEL
	var vipsLogLevel vips.LogLevel
	var logHandler func(string, vips.LogLevel, string)

	switch logging.GetLevel() {
	case logging.LevelDebug:
		vipsLogLevel = vips.LogLevelInfo
		logHandler = func(domain string, level vips.LogLevel, msg string) {
			switch level {
			case vips.LogLevelError, vips.LogLevelCritical:
				logging.Error("[%s] %s", domain, msg)
			case vips.LogLevelWarning:
				logging.Warn("[%s] %s", domain, msg)
			case vips.LogLevelMessage, vips.LogLevelInfo, vips.LogLevelDebug:
				logging.Debug("[%s] %s", domain, msg)
			}
		}
	case logging.LevelInfo, logging.LevelWarn:
		vipsLogLevel = vips.LogLevelWarning
		logHandler = func(domain string, level vips.LogLevel, msg string) {
			switch level {
			case vips.LogLevelError, vips.LogLevelCritical:
				logging.Error("[%s] %s", domain, msg)
			case vips.LogLevelWarning:
				logging.Warn("[%s] %s", domain, msg)
			}
		}
	default:
		vipsLogLevel = vips.LogLevelCritical
		logHandler = func(domain string, level vips.LogLevel, msg string) {
			if level >= vips.LogLevelCritical {
				logging.Error("[%s] %s", domain, msg)
			}
		}
	}

	vips.LoggingSettings(logHandler, vipsLogLevel)

	// Derivatives run one at a time per scheduler slot, so keep the
	// operation cache small.
	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
	})

	vipsInitialized = true
	vipsAvailable = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
	return nil
}

// ShutdownVips cleans up libvips resources
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		vipsAvailable = false
		logging.Info("libvips shutdown complete")
	}
}

// IsVipsAvailable returns whether libvips is initialized and available
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}

// VipsEngine transforms images with libvips. It supports every output
// format libvips was built with, including webp and avif.
type VipsEngine struct{}

// NewVipsEngine initializes libvips and returns the engine.
func NewVipsEngine() (*VipsEngine, error) {
	if err := InitVips(); err != nil {
		return nil, err
	}
	return &VipsEngine{}, nil
}

// Name implements Engine.
func (e *VipsEngine) Name() string { return "vips" }

// Transform implements Engine.
func (e *VipsEngine) Transform(ctx context.Context, src []byte, opts Options) ([]byte, error) {
	if !IsVipsAvailable() {
		return nil, fmt.Errorf("libvips not available")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	params := vips.NewImportParams()
	if opts.Animated {
		params.NumPages.Set(-1)
	}
	ref, err := vips.LoadImageFromBuffer(src, params)
	if err != nil {
		return nil, fmt.Errorf("vips failed to load image: %w", err)
	}
	defer ref.Close()

	if ref.Width()*ref.Height() > MaxImagePixels*4 {
		return nil, fmt.Errorf("source image too large: %dx%d", ref.Width(), ref.Height())
	}

	if err := vipsResize(ref, opts); err != nil {
		return nil, fmt.Errorf("vips resize failed: %w", err)
	}
	if err := vipsAdjust(ref, opts); err != nil {
		return nil, fmt.Errorf("vips adjust failed: %w", err)
	}

	data, err := vipsExport(ref, opts)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func vipsResize(ref *vips.ImageRef, opts Options) error {
	if !opts.Resizes() {
		return nil
	}
	w, h := opts.targetSize(ref.Width(), ref.Height())

	switch opts.Fit {
	case FitFill:
		return ref.ThumbnailWithSize(w, h, vips.InterestingNone, vips.SizeForce)
	case FitInside:
		return ref.ThumbnailWithSize(w, h, vips.InterestingNone, vips.SizeDown)
	case FitOutside:
		scale := max(float64(w)/float64(ref.Width()), float64(h)/float64(ref.Height()))
		return ref.Resize(scale, vips.KernelLanczos3)
	case FitContain:
		if err := ref.Thumbnail(w, h, vips.InterestingNone); err != nil {
			return err
		}
		bg := opts.Background
		if bg == nil {
			bg = &Color{}
		}
		left := (w - ref.Width()) / 2
		top := (h - ref.Height()) / 2
		return ref.EmbedBackground(left, top, w, h, &vips.Color{R: bg.R, G: bg.G, B: bg.B})
	default:
		return ref.Thumbnail(w, h, vipsInteresting(opts.Position))
	}
}

func vipsInteresting(position string) vips.Interesting {
	switch position {
	case "entropy":
		return vips.InterestingEntropy
	case "attention":
		return vips.InterestingAttention
	default:
		return vips.InterestingCentre
	}
}

func vipsAdjust(ref *vips.ImageRef, opts Options) error {
	switch opts.Rotate {
	case 90:
		if err := ref.Rotate(vips.Angle90); err != nil {
			return err
		}
	case 180:
		if err := ref.Rotate(vips.Angle180); err != nil {
			return err
		}
	case 270:
		if err := ref.Rotate(vips.Angle270); err != nil {
			return err
		}
	}

	// sharp naming: flip mirrors vertically, flop horizontally
	if opts.Flip {
		if err := ref.Flip(vips.DirectionVertical); err != nil {
			return err
		}
	}
	if opts.Flop {
		if err := ref.Flip(vips.DirectionHorizontal); err != nil {
			return err
		}
	}
	if opts.Blur > 0 {
		if err := ref.GaussianBlur(opts.Blur); err != nil {
			return err
		}
	}
	if opts.Sharpen > 0 {
		if err := ref.Sharpen(opts.Sharpen, 1, 2); err != nil {
			return err
		}
	}
	if opts.Grayscale {
		if err := ref.ToColorSpace(vips.InterpretationBW); err != nil {
			return err
		}
	}
	if opts.Negate {
		if err := ref.Invert(); err != nil {
			return err
		}
	}
	if opts.Normalize {
		logging.Debug("normalize is not supported by the vips engine, skipping")
	}
	if opts.Background != nil && ref.HasAlpha() && !formatHasAlpha(opts.Format) {
		bg := opts.Background
		if err := ref.Flatten(&vips.Color{R: bg.R, G: bg.G, B: bg.B}); err != nil {
			return err
		}
	}
	return nil
}

func formatHasAlpha(format string) bool {
	switch format {
	case "png", "webp", "avif", "gif", "tiff", "heif":
		return true
	}
	return false
}

func vipsExport(ref *vips.ImageRef, opts Options) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	switch opts.Format {
	case "jpeg":
		p := vips.NewJpegExportParams()
		p.Quality = opts.Quality
		p.StripMetadata = true
		p.OptimizeCoding = true
		data, _, err = ref.ExportJpeg(p)
	case "png":
		p := vips.NewPngExportParams()
		p.StripMetadata = true
		data, _, err = ref.ExportPng(p)
	case "webp":
		p := vips.NewWebpExportParams()
		p.Quality = opts.Quality
		p.StripMetadata = true
		data, _, err = ref.ExportWebp(p)
	case "avif":
		p := vips.NewAvifExportParams()
		p.Quality = opts.Quality
		p.StripMetadata = true
		data, _, err = ref.ExportAvif(p)
	case "heif":
		p := vips.NewHeifExportParams()
		p.Quality = opts.Quality
		data, _, err = ref.ExportHeif(p)
	case "gif":
		data, _, err = ref.ExportGIF(vips.NewGifExportParams())
	case "tiff":
		p := vips.NewTiffExportParams()
		p.Quality = opts.Quality
		data, _, err = ref.ExportTiff(p)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, opts.Format)
	}

	if err != nil {
		return nil, fmt.Errorf("vips export failed: %w", err)
	}
	return data, nil
}

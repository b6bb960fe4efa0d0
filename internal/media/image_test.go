package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func decodeSize(t *testing.T, data []byte) (int, int, string) {
	t.Helper()
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output does not decode: %v", err)
	}
	return cfg.Width, cfg.Height, format
}

func TestImagingEngineFits(t *testing.T) {
	src := testPNG(t, 400, 200)
	engine := NewImagingEngine()

	tests := []struct {
		fit          string
		w, h         int
		wantW, wantH int
	}{
		{FitCover, 100, 100, 100, 100},
		{FitFill, 100, 100, 100, 100},
		{FitContain, 100, 100, 100, 100},
		{FitInside, 100, 100, 100, 50},
		{FitOutside, 100, 100, 200, 100},
		{FitCover, 100, 0, 100, 50},
	}

	for _, tt := range tests {
		t.Run(tt.fit, func(t *testing.T) {
			out, err := engine.Transform(context.Background(), src, Options{
				Width: tt.w, Height: tt.h, Fit: tt.fit, Format: "png", Quality: 80,
			})
			if err != nil {
				t.Fatalf("Transform: %v", err)
			}
			w, h, format := decodeSize(t, out)
			if w != tt.wantW || h != tt.wantH || format != "png" {
				t.Errorf("got %dx%d %s, want %dx%d png", w, h, format, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestImagingEngineRotateAndEncode(t *testing.T) {
	src := testPNG(t, 40, 20)
	out, err := NewImagingEngine().Transform(context.Background(), src, Options{
		Format: "jpeg", Quality: 60, Rotate: 90, Grayscale: true, Normalize: true,
	})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	w, h, format := decodeSize(t, out)
	if w != 20 || h != 40 || format != "jpeg" {
		t.Errorf("got %dx%d %s, want 20x40 jpeg", w, h, format)
	}
}

func TestImagingEngineUnsupportedFormat(t *testing.T) {
	_, err := NewImagingEngine().Transform(context.Background(), testPNG(t, 4, 4), Options{Format: "webp"})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestDecodeConstrained(t *testing.T) {
	img, err := decodeConstrained(testPNG(t, 100, 100), 2500)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 50 || b.Dy() != 50 {
		t.Errorf("constrained to %dx%d, want 50x50", b.Dx(), b.Dy())
	}
}

func TestNormalizeStretchesRange(t *testing.T) {
	img := imaging.New(2, 1, color.NRGBA{R: 100, G: 100, B: 100, A: 255})
	img.Set(1, 0, color.NRGBA{R: 150, G: 150, B: 150, A: 255})

	out := imaging.Clone(normalize(img))
	if out.Pix[0] != 0 || out.Pix[4] != 255 {
		t.Errorf("normalized = %v", out.Pix)
	}
}

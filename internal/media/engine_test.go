package media

import (
	"context"
	"errors"
	"testing"
)

type stubEngine struct {
	out   []byte
	err   error
	calls int
	opts  Options
}

func (s *stubEngine) Name() string { return "stub" }

func (s *stubEngine) Transform(_ context.Context, _ []byte, opts Options) ([]byte, error) {
	s.calls++
	s.opts = opts
	return s.out, s.err
}

func TestTransformContentType(t *testing.T) {
	engine := &stubEngine{out: testPNG(t, 2, 2)}
	res, err := Transform(context.Background(), engine, testPNG(t, 2, 2), Options{Format: "webp"})
	if err != nil {
		t.Fatal(err)
	}
	if res.ContentType != "image/webp" {
		t.Errorf("ContentType = %q", res.ContentType)
	}
}

func TestTransformDefaultsToJPEG(t *testing.T) {
	engine := &stubEngine{out: testPNG(t, 2, 2)}
	res, err := Transform(context.Background(), engine, testPNG(t, 2, 2), Options{Format: "jpg"})
	if err != nil {
		t.Fatal(err)
	}
	if engine.opts.Format != "jpeg" || res.ContentType != "image/jpeg" {
		t.Errorf("format = %q, content type = %q", engine.opts.Format, res.ContentType)
	}
}

func TestTransformRejectsNonBinary(t *testing.T) {
	tests := []struct {
		name string
		src  []byte
		out  []byte
	}{
		{"text source", []byte("<html><body>Access denied</body></html>"), nil},
		{"text output", nil, []byte("error: unsupported")},
		{"empty output", nil, []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := tt.src
			if src == nil {
				src = testPNG(t, 2, 2)
			}
			engine := &stubEngine{out: tt.out}
			if _, err := Transform(context.Background(), engine, src, Options{}); !errors.Is(err, ErrNonBinary) {
				t.Errorf("err = %v, want ErrNonBinary", err)
			}
		})
	}
}

func TestTransformPropagatesEngineError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Transform(context.Background(), &stubEngine{err: boom}, testPNG(t, 2, 2), Options{})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

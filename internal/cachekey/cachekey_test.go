package cachekey

import (
	"strings"
	"testing"

	"media-cdn/internal/mediatypes"
	"media-cdn/internal/modifiers"
)

func TestDeriveDeterministic(t *testing.T) {
	variants := []string{
		"w_300,h_200,f_webp",
		"h=200,w=300,f=webp",
		"format_webp&width_300&height_200",
		"w_300%2Ch_200%2Cf_webp",
	}

	want := ForRequest(mediatypes.KindImage, "photo1", modifiers.Parse(variants[0]))
	for _, v := range variants[1:] {
		if got := ForRequest(mediatypes.KindImage, "photo1", modifiers.Parse(v)); got != want {
			t.Errorf("key for %q = %q, want %q", v, got, want)
		}
	}

	if !strings.HasPrefix(want, "cache/image/") || !strings.HasSuffix(want, ".webp") {
		t.Errorf("unexpected key shape %q", want)
	}
	if err := Validate(want); err != nil {
		t.Errorf("Validate(%q) = %v", want, err)
	}
}

func TestDeriveStableAcrossRuns(t *testing.T) {
	// Fixed inputs must always hash to the same value.
	a := Derive("cache/image", "photo1", modifiers.Set{"width": "300"}, "jpeg")
	b := Derive("cache/image", "photo1", modifiers.Set{"width": "300"}, "jpeg")
	if a != b {
		t.Fatalf("Derive is not stable: %q vs %q", a, b)
	}
}

func TestDeriveDistinguishesInputs(t *testing.T) {
	base := Derive("cache/image", "photo1", modifiers.Set{"width": "300"}, "jpeg")

	others := map[string]string{
		"origin":    Derive("cache/image", "photo2", modifiers.Set{"width": "300"}, "jpeg"),
		"modifiers": Derive("cache/image", "photo1", modifiers.Set{"width": "301"}, "jpeg"),
		"namespace": Derive("cache/video", "photo1", modifiers.Set{"width": "300"}, "jpeg"),
		"format":    Derive("cache/image", "photo1", modifiers.Set{"width": "300"}, "webp"),
		"boundary":  Derive("cache/image", "photo", modifiers.Set{"1width": "300"}, "jpeg"),
	}
	for name, k := range others {
		if k == base {
			t.Errorf("changing %s did not change the key", name)
		}
	}
}

func TestExtension(t *testing.T) {
	tests := map[string]string{
		"webp":   "webp",
		"MP4":    "mp4",
		"":       "bin",
		"../etc": "etc",
		"///":    "bin",
	}
	for in, want := range tests {
		if got := Extension(in); got != want {
			t.Errorf("Extension(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	bad := []string{
		"",
		"cache/image/../../etc/passwd",
		"cache/image/abc.webp",
		"other/image/0123456789abcdef0123456789abcdef.webp",
	}
	for _, k := range bad {
		if err := Validate(k); err == nil {
			t.Errorf("Validate(%q) should fail", k)
		}
	}
}

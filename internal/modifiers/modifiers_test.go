package modifiers

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Set
	}{
		{"empty", "", Set{}},
		{"underscore passthrough", "_", Set{}},
		{"aliases", "w_300,h_200,f_webp", Set{Width: "300", Height: "200", Format: "webp"}},
		{"equals and ampersand", "h=200&w=300&f=webp", Set{Width: "300", Height: "200", Format: "webp"}},
		{"colon separator", "q:80", Set{Quality: "80"}},
		{"encoded comma", "w_300%2Ch_200", Set{Width: "300", Height: "200"}},
		{"whitespace stripped", " w_300 , h_200 ", Set{Width: "300", Height: "200"}},
		{"boolean flag", "grayscale,flip", Set{Grayscale: "true", Flip: "true"}},
		{"size shorthand", "s_640x480", Set{Width: "640", Height: "480"}},
		{"non-size resize kept", "s_cover", Set{Resize: "cover"}},
		{"value separators folded", "b_ff:00=aa", Set{Background: "ff_00_aa"}},
		{"uppercase key", "W_300", Set{Width: "300"}},
		{"malformed tokens skipped", ",,_x,=5,w_10", Set{Width: "10"}},
		{"unknown key kept", "kernel_lanczos3", Set{"kernel": "lanczos3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseTieBreak(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"long form beats alias", "w_100,width_200", "200"},
		{"long form beats alias regardless of order", "width_200,w_100", "200"},
		{"same form smallest token wins", "w_300,w_100", "100"},
		{"same form smallest token wins reversed", "w_100,w_300", "100"},
		{"explicit width beats size shorthand", "s_640x480,width_10", "10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Parse(tt.raw).Get(Width); got != tt.want {
				t.Errorf("Parse(%q) width = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCanonicalIsOrderIndependent(t *testing.T) {
	variants := []string{
		"w_300,h_200,f_webp",
		"h=200,w=300,f=webp",
		"f:webp&h:200&w:300",
		"width_300,height_200,format_webp",
		"w_300%2Ch_200%2Cf_webp",
		" f_webp , w_300 , h_200 ",
		"W_300,H_200,F_WEBP",
	}

	want := Parse(variants[0]).Canonical()
	if want != "format_webp,height_200,width_300" {
		t.Fatalf("unexpected canonical form %q", want)
	}
	for _, v := range variants[1:] {
		if got := Parse(v).Canonical(); got != want {
			t.Errorf("Parse(%q).Canonical() = %q, want %q", v, got, want)
		}
	}
}

func TestParseLowercasesKeywords(t *testing.T) {
	tests := []struct {
		upper string
		lower string
	}{
		{"c_AVC,f_MP4", "c_avc,f_mp4"},
		{"d_GPU,c_HEVC", "d_gpu,c_hevc"},
		{"fit_Contain,pos_Top,b_FFF", "fit_contain,pos_top,b_fff"},
		{"f_AUTO", "f_auto"},
	}

	for _, tt := range tests {
		t.Run(tt.upper, func(t *testing.T) {
			if got, want := Parse(tt.upper).Canonical(), Parse(tt.lower).Canonical(); got != want {
				t.Errorf("Parse(%q).Canonical() = %q, want %q", tt.upper, got, want)
			}
		})
	}
}

func TestSetAccessors(t *testing.T) {
	s := Parse("w_300,q_abc,blur_1.5,grayscale,f_auto")

	if n, ok := s.Int(Width); !ok || n != 300 {
		t.Errorf("Int(width) = %d, %v", n, ok)
	}
	if _, ok := s.Int(Quality); ok {
		t.Error("Int(quality) should fail for non-numeric value")
	}
	if f, ok := s.Float(Blur); !ok || f != 1.5 {
		t.Errorf("Float(blur) = %v, %v", f, ok)
	}
	if !s.Bool(Grayscale) {
		t.Error("grayscale should be true")
	}
	if !s.IsAuto(Format) || !s.IsAuto(Codec) {
		t.Error("format and codec should be auto")
	}

	w := s.With(Width, "10")
	if s.Get(Width) != "300" || w.Get(Width) != "10" {
		t.Error("With must not mutate the receiver")
	}
}

func TestNormalizeArgs(t *testing.T) {
	if got := NormalizeArgs("w_300&h_200"); got != "h_200,w_300" {
		t.Errorf("NormalizeArgs = %q", got)
	}
	if got := NormalizeArgs("_"); got != "" {
		t.Errorf("NormalizeArgs(_) = %q", got)
	}
}

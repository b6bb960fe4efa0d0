package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"media-cdn/internal/cachekey"
	"media-cdn/internal/mediatypes"
	"media-cdn/internal/modifiers"
)

func TestRun(t *testing.T) {
	tests := []struct {
		name    string
		argv    []string
		kind    mediatypes.Kind
		args    string
		accept  string
		id      string
		wantErr bool
	}{
		{
			name: "image",
			argv: []string{"--kind", "image", "--args", "w_300,f_webp", "--id", "photo1"},
			kind: mediatypes.KindImage, args: "w_300,f_webp", id: "photo1",
		},
		{
			name: "video negotiated from accept",
			argv: []string{"--kind=video", "--args=h_720", "--id=clip", "--accept=video/webm"},
			kind: mediatypes.KindVideo, args: "h_720", accept: "video/webm", id: "clip",
		},
		{
			name: "default args",
			argv: []string{"--kind", "audio", "--id", "song"},
			kind: mediatypes.KindAudio, args: "_", id: "song",
		},
		{name: "unknown kind", argv: []string{"--kind", "pdf", "--id", "x"}, wantErr: true},
		{name: "missing id", argv: []string{"--kind", "image"}, wantErr: true},
		{name: "unknown flag", argv: []string{"--size", "3"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := run(tt.argv, &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("run() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			want := cachekey.ForRequest(tt.kind, tt.id, modifiers.Parse(tt.args).Resolve(string(tt.kind), tt.accept))
			if got := strings.TrimSpace(out.String()); got != want {
				t.Errorf("run() printed %q, want %q", got, want)
			}
			if err := cachekey.Validate(want); err != nil {
				t.Errorf("printed key is invalid: %v", err)
			}
		})
	}
}

func TestRunJSON(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"--kind", "image", "--args", "w_100", "--id", "photo1", "--json"}, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	var keys []string
	if err := json.Unmarshal(out.Bytes(), &keys); err != nil {
		t.Fatalf("output is not a JSON array: %v", err)
	}
	if len(keys) != 1 || !strings.HasPrefix(keys[0], "cache/image/") {
		t.Errorf("keys = %v", keys)
	}
}

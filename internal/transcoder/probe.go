package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"media-cdn/internal/metrics"
)

var frameCounter = regexp.MustCompile(`frame=\s*(\d+)`)

type probeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
}

// Probe returns the dimensions of the first video stream.
func (t *Transcoder) Probe(ctx context.Context, path string) (Dimensions, error) {
	var stdout, stderr bytes.Buffer
	err := t.runner.Run(ctx, Command{
		Name: t.ffprobe,
		Args: []string{
			"-v", "error",
			"-select_streams", "v:0",
			"-show_entries", "stream=width,height",
			"-of", "json",
			path,
		},
		Stdout: &stdout,
		Stderr: &stderr,
	})
	if err != nil {
		return Dimensions{}, fmt.Errorf("ffprobe error: %w - %s", err, tail(stderr.String()))
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return Dimensions{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 || out.Streams[0].Width == 0 || out.Streams[0].Height == 0 {
		return Dimensions{}, fmt.Errorf("no video stream in %s", path)
	}
	return Dimensions{Width: out.Streams[0].Width, Height: out.Streams[0].Height}, nil
}

// CountFrames decodes the first video stream once with no output and returns
// the last reported frame number. This costs roughly one full decode.
func (t *Transcoder) CountFrames(ctx context.Context, path string) (int, error) {
	start := time.Now()
	defer func() {
		metrics.FrameCountDuration.Observe(time.Since(start).Seconds())
	}()

	var stderr bytes.Buffer
	err := t.runner.Run(ctx, Command{
		Name:   t.ffmpeg,
		Args:   []string{"-i", path, "-map", "0:v:0", "-f", "null", "-"},
		Stderr: &stderr,
	})
	if err != nil {
		return 0, fmt.Errorf("unable to count frames of %s: %w", path, err)
	}

	matches := frameCounter.FindAllStringSubmatch(stderr.String(), -1)
	if len(matches) == 0 {
		return 0, nil
	}
	return strconv.Atoi(matches[len(matches)-1][1])
}

func tail(s string) string {
	const n = 1024
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"media-cdn/internal/logging"
)

// DefaultFrameOffset is where poster frames are taken unless a time modifier
// says otherwise. Clips shorter than this fall back to the first frame.
const DefaultFrameOffset = time.Second

// CommandFunc runs a command and returns its stdout.
type CommandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// FrameExtractor pulls still frames out of video files with ffmpeg.
type FrameExtractor struct {
	ffmpeg string
	run    CommandFunc
}

// NewFrameExtractor returns an extractor using the ffmpeg binary on PATH.
func NewFrameExtractor() *FrameExtractor {
	return &FrameExtractor{ffmpeg: "ffmpeg", run: runCommand}
}

// NewFrameExtractorWithRunner returns an extractor that executes through run.
func NewFrameExtractorWithRunner(ffmpeg string, run CommandFunc) *FrameExtractor {
	return &FrameExtractor{ffmpeg: ffmpeg, run: run}
}

// ExtractFrame returns a PNG of the frame at offset. If seeking fails (short
// clips), the first frame is used instead.
func (f *FrameExtractor) ExtractFrame(ctx context.Context, videoPath string, offset time.Duration) ([]byte, error) {
	logging.Debug("Extracting video frame: %s at %v", videoPath, offset)

	out, err := f.run(ctx, f.ffmpeg, frameArgs(videoPath, offset)...)
	if err == nil && len(out) > 0 {
		return out, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	logging.Debug("FFmpeg seek attempt failed for %s: %v, retrying first frame", videoPath, err)

	out, err = f.run(ctx, f.ffmpeg, frameArgs(videoPath, 0)...)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output for %s", videoPath)
	}
	return out, nil
}

func frameArgs(videoPath string, offset time.Duration) []string {
	var args []string
	if offset > 0 {
		args = append(args, "-ss", strconv.FormatFloat(offset.Seconds(), 'f', 3, 64))
	}
	return append(args,
		"-i", videoPath,
		"-vframes", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
}

// ParseOffset reads a time modifier given in seconds ("1.5") or as a Go
// duration ("1500ms").
func ParseOffset(s string) (time.Duration, bool) {
	if s == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second)), true
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d, true
	}
	return 0, false
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%v, stderr: %s", err, tail(stderr.String(), 512))
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

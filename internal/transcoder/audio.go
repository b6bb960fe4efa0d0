package transcoder

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"media-cdn/internal/logging"
	"media-cdn/internal/metrics"
)

// audioEncoders maps an output format to its ffmpeg audio encoder.
var audioEncoders = map[string]string{
	"mp3":  "libmp3lame",
	"aac":  "aac",
	"opus": "libopus",
	"ogg":  "libvorbis",
	"webm": "libopus",
}

// AudioBitrate maps a 0-100 quality score onto 64-320 kbps in 32k steps.
func AudioBitrate(quality int) int {
	q := float64(clamp(quality, 0, 100)) / 100
	steps := int(math.Round(q * 8))
	return 64 + steps*32
}

// AudioJob is one audio transcode. Output's extension selects the format.
type AudioJob struct {
	Source  string
	Output  string
	Quality int
}

// TranscodeAudio re-encodes the audio stream of job.Source.
func (t *Transcoder) TranscodeAudio(ctx context.Context, job AudioJob) (Outcome, error) {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(job.Output)), ".")
	lib, ok := audioEncoders[format]
	if !ok {
		metrics.TranscodesTotal.WithLabelValues(format, string(DeviceCPU), "unsupported").Inc()
		return Outcome{}, fmt.Errorf("%w: audio format %q", ErrUnsupported, format)
	}

	kbps := AudioBitrate(job.Quality)
	preset := fmt.Sprintf("audio-%s-%dk", format, kbps)
	name := filepath.Base(job.Source)
	t.notify(Progress{Name: name, Status: "start-" + preset, ETA: math.Inf(1)})

	if err := os.MkdirAll(filepath.Dir(job.Output), 0o755); err != nil {
		return Outcome{Status: StatusRejected, Preset: preset, Reason: err.Error()}, nil
	}

	start := time.Now()
	stderr := &tailBuffer{max: 4096}
	err := t.runner.Run(ctx, Command{
		Name: t.ffmpeg,
		Args: []string{
			"-y", "-nostats",
			"-i", job.Source,
			"-vn",
			"-c:a", lib,
			"-b:a", strconv.Itoa(kbps) + "k",
			job.Output,
		},
		Stderr: stderr,
	})
	metrics.TranscodeDuration.WithLabelValues(format).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.TranscodesTotal.WithLabelValues(format, string(DeviceCPU), string(StatusRejected)).Inc()
		_ = os.Remove(job.Output)
		reason := err.Error()
		if msg := stderr.String(); msg != "" {
			reason += ": " + lastLine(msg)
		}
		logging.Error("Audio conversion rejected %s to %s: %s", name, preset, reason)
		return Outcome{Status: StatusRejected, Preset: preset, Reason: reason}, nil
	}

	metrics.TranscodesTotal.WithLabelValues(format, string(DeviceCPU), string(StatusFulfilled)).Inc()
	logging.Info("Audio conversion complete %s to %s in %v", name, preset, time.Since(start).Round(time.Millisecond))
	t.notify(Progress{Name: name, Status: "complete-" + preset, Completion: 100})
	return Outcome{Status: StatusFulfilled, Preset: preset}, nil
}

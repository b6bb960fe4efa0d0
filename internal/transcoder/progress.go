package transcoder

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"sync"
)

// Progress is one sample of a running encode.
type Progress struct {
	Name       string
	Status     string
	Completion float64 // percent
	ETA        float64 // seconds, +Inf when unknown
	FPS        float64
}

// Observer receives progress samples. It is called from the sampling
// goroutine and must not block.
type Observer func(Progress)

// progressReader consumes ffmpeg's "-progress pipe:1" key=value stream.
type progressReader struct {
	mu      sync.Mutex
	partial []byte
	values  map[string]string
}

func newProgressReader() *progressReader {
	return &progressReader{values: make(map[string]string)}
}

func (p *progressReader) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.partial = append(p.partial, b...)
	for {
		idx := bytes.IndexByte(p.partial, '\n')
		if idx < 0 {
			break
		}
		line := string(p.partial[:idx])
		p.partial = p.partial[idx+1:]

		key, value, ok := strings.Cut(line, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if ok && key != "" && value != "" {
			p.values[key] = value
		}
	}
	return len(b), nil
}

// sample returns completion against totalFrames. ok is false until ffmpeg
// has reported an output time and a parseable frame and fps.
func (p *progressReader) sample(totalFrames int) (Progress, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, started := p.values["out_time_ms"]; !started {
		return Progress{}, false
	}
	frames, err := strconv.Atoi(p.values["frame"])
	if err != nil {
		return Progress{}, false
	}
	fps, err := strconv.ParseFloat(p.values["fps"], 64)
	if err != nil {
		return Progress{}, false
	}

	pr := Progress{FPS: fps, ETA: math.Inf(1)}
	if totalFrames > 0 {
		pr.Completion = round2(float64(frames) / float64(totalFrames) * 100)
		if fps > 0 {
			pr.ETA = round2(float64(totalFrames-frames) / fps)
		}
	}
	return pr, true
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, b...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(b), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

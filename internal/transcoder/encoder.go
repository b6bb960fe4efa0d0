package transcoder

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// ErrUnsupported means the requested codec, device or container combination
// has no encoder. It is returned before any subprocess is started.
var ErrUnsupported = errors.New("unsupported encoder")

// Codec is an abstract video codec name as used in URLs.
type Codec string

// Supported codecs.
const (
	CodecAVC    Codec = "avc"
	CodecVP9    Codec = "vp9"
	CodecHEVC   Codec = "hevc"
	CodecAV1    Codec = "av1"
	CodecTheora Codec = "theora"
)

// Device selects CPU or GPU (NVENC) encoding.
type Device string

// Supported devices.
const (
	DeviceCPU Device = "cpu"
	DeviceGPU Device = "gpu"
)

// ParseDevice maps a modifier value to a Device, defaulting to CPU.
func ParseDevice(s string) (Device, error) {
	switch strings.ToLower(s) {
	case "", "cpu", "auto":
		return DeviceCPU, nil
	case "gpu":
		return DeviceGPU, nil
	}
	return "", fmt.Errorf("%w: device %q", ErrUnsupported, s)
}

// Dimensions is a frame size in pixels.
type Dimensions struct {
	Width  int
	Height int
}

// RateControl is the quality flag passed to the encoder.
type RateControl struct {
	Flag  string
	Value int
	Extra []string
}

// Encoder builds the ffmpeg arguments for one codec on one device.
type Encoder interface {
	Codec() Codec
	Device() Device
	// Containers lists the output containers this encoder can be muxed into.
	Containers() []string
	// RateControl maps a 0-100 quality score (higher is better) onto the
	// encoder's native quality parameter.
	RateControl(quality int) RateControl
	// Args returns everything between the input and the output path.
	Args(in, out Dimensions, quality int) []string
}

type videoEncoder struct {
	codec      Codec
	device     Device
	lib        string
	preset     string
	deadline   string
	threads    bool
	audio      string
	containers []string
	quality    func(t float64) RateControl
}

func (e *videoEncoder) Codec() Codec         { return e.codec }
func (e *videoEncoder) Device() Device       { return e.device }
func (e *videoEncoder) Containers() []string { return e.containers }

func (e *videoEncoder) RateControl(quality int) RateControl {
	q := clamp(quality, 0, 100)
	return e.quality(float64(q) / 100)
}

func (e *videoEncoder) Args(in, out Dimensions, quality int) []string {
	rc := e.RateControl(quality)

	args := []string{
		"-c:v", e.lib,
		"-vf", ScaleFilter(in, out),
		rc.Flag, strconv.Itoa(rc.Value),
	}
	// CPU constant-quality modes need an unconstrained bitrate
	if e.device == DeviceCPU && rc.Flag == "-crf" {
		args = append(args, "-b:v", "0")
	}
	switch {
	case e.preset != "":
		args = append(args, "-preset", e.preset)
	case e.deadline != "":
		args = append(args, "-deadline", e.deadline)
	}
	args = append(args, rc.Extra...)
	if e.threads {
		args = append(args, "-threads", "0")
	}
	return append(args, "-c:a", e.audio)
}

// ScaleFilter scales into out preserving aspect ratio with even dimensions,
// padding to exactly out when the source is smaller.
func ScaleFilter(in, out Dimensions) string {
	filter := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease:force_divisible_by=2", out.Width, out.Height)
	if in.Width < out.Width || in.Height < out.Height {
		filter += fmt.Sprintf(",pad=%d:%d:(ow-iw)/2:(oh-ih)/2", out.Width, out.Height)
	}
	return filter
}

func crf(hi, lo, limit int) func(float64) RateControl {
	return func(t float64) RateControl {
		v := int(math.Round(float64(hi) - t*float64(hi-lo)))
		return RateControl{Flag: "-crf", Value: clamp(v, 0, limit)}
	}
}

// nvencCQ maps 0..100 onto NVENC CQ 40..20 with VBR rate control.
func nvencCQ(t float64) RateControl {
	v := int(math.Round(40 - t*20))
	return RateControl{Flag: "-cq", Value: clamp(v, 1, 51), Extra: []string{"-rc", "vbr"}}
}

// theoraQ maps 0..100 onto libtheora's 0..10 quality scale.
func theoraQ(t float64) RateControl {
	return RateControl{Flag: "-q:v", Value: clamp(int(math.Round(t*10)), 0, 10)}
}

var encoders = map[Codec]map[Device]Encoder{
	CodecAVC: {
		DeviceCPU: &videoEncoder{codec: CodecAVC, device: DeviceCPU, lib: "libx264", preset: "slower", threads: true, audio: "aac", containers: []string{"mp4"}, quality: crf(28, 18, 51)},
		DeviceGPU: &videoEncoder{codec: CodecAVC, device: DeviceGPU, lib: "h264_nvenc", preset: "slow", audio: "aac", containers: []string{"mp4"}, quality: nvencCQ},
	},
	CodecVP9: {
		DeviceCPU: &videoEncoder{codec: CodecVP9, device: DeviceCPU, lib: "libvpx-vp9", deadline: "best", threads: true, audio: "libvorbis", containers: []string{"webm"}, quality: crf(40, 20, 63)},
	},
	CodecHEVC: {
		DeviceCPU: &videoEncoder{codec: CodecHEVC, device: DeviceCPU, lib: "libx265", preset: "slow", threads: true, audio: "aac", containers: []string{"mp4"}, quality: crf(30, 20, 51)},
		DeviceGPU: &videoEncoder{codec: CodecHEVC, device: DeviceGPU, lib: "hevc_nvenc", preset: "slow", audio: "aac", containers: []string{"mp4"}, quality: nvencCQ},
	},
	CodecAV1: {
		DeviceCPU: &videoEncoder{codec: CodecAV1, device: DeviceCPU, lib: "libsvtav1", preset: "1", threads: true, audio: "libopus", containers: []string{"webm", "mp4"}, quality: crf(40, 20, 63)},
		DeviceGPU: &videoEncoder{codec: CodecAV1, device: DeviceGPU, lib: "av1_nvenc", preset: "slow", audio: "libopus", containers: []string{"webm", "mp4"}, quality: nvencCQ},
	},
	CodecTheora: {
		DeviceCPU: &videoEncoder{codec: CodecTheora, device: DeviceCPU, lib: "libtheora", audio: "libvorbis", containers: []string{"ogg"}, quality: theoraQ},
	},
}

// LookupEncoder returns the encoder for codec on device. Asking for a device
// the codec has no encoder for is an error, never a silent fallback.
func LookupEncoder(codec Codec, device Device) (Encoder, error) {
	byDevice, ok := encoders[codec]
	if !ok {
		return nil, fmt.Errorf("%w: codec %q", ErrUnsupported, codec)
	}
	enc, ok := byDevice[device]
	if !ok {
		return nil, fmt.Errorf("%w: %s not supported for codec %s", ErrUnsupported, device, codec)
	}
	return enc, nil
}

// supportsContainer reports whether enc can be muxed into container.
func supportsContainer(enc Encoder, container string) bool {
	return slices.Contains(enc.Containers(), container)
}

func clamp(n, lo, hi int) int {
	return min(hi, max(lo, n))
}

package modifiers

import (
	"regexp"
	"strings"

	"github.com/munnerz/goautoneg"
)

var acceptCodecs = regexp.MustCompile(`(?i)codecs="([^"]+)"`)

// accepts reports whether the Accept header explicitly lists mime with q > 0.
// Wildcards do not count: a browser sending */* gets the safe default.
func accepts(header, mime string) bool {
	typ, sub, _ := strings.Cut(mime, "/")
	for _, a := range goautoneg.ParseAccept(header) {
		if strings.EqualFold(a.Type, typ) && strings.EqualFold(a.SubType, sub) {
			return a.Q > 0
		}
	}
	return false
}

// NegotiateImageFormat picks webp, then avif, then jpeg from an Accept header.
func NegotiateImageFormat(accept string) string {
	switch {
	case accepts(accept, "image/webp"):
		return "webp"
	case accepts(accept, "image/avif"):
		return "avif"
	default:
		return "jpeg"
	}
}

// NegotiateVideo picks a container and codec from an Accept header.
func NegotiateVideo(accept string) (container, codec string) {
	switch {
	case accepts(accept, "video/webm"), accepts(accept, "video/av1"):
		container = "webm"
	case accepts(accept, "video/ogg"):
		container = "ogg"
	default:
		container = "mp4"
	}

	codec = codecFromAccept(accept)
	if codec == "" {
		codec = DefaultVideoCodec(container)
	}
	return container, codec
}

// DefaultVideoCodec returns the codec used when a container is requested without one.
func DefaultVideoCodec(container string) string {
	switch container {
	case "webm":
		return "vp9"
	case "ogg":
		return "theora"
	default:
		return "avc"
	}
}

func codecFromAccept(accept string) string {
	m := acceptCodecs.FindStringSubmatch(accept)
	if m == nil {
		return ""
	}
	codecs := strings.ToLower(m[1])
	switch {
	case strings.Contains(codecs, "av1"), strings.Contains(codecs, "av01"):
		return "av1"
	case strings.Contains(codecs, "vp9"), strings.Contains(codecs, "vp09"):
		return "vp9"
	case strings.Contains(codecs, "hevc"), strings.Contains(codecs, "hvc1"):
		return "hevc"
	case strings.Contains(codecs, "avc"), strings.Contains(codecs, "h264"):
		return "avc"
	}
	return ""
}

// NegotiateAudioFormat picks opus in webm when accepted, mp3 otherwise.
func NegotiateAudioFormat(accept string) string {
	if accepts(accept, "audio/webm") || accepts(accept, "audio/ogg") {
		return "opus"
	}
	return "mp3"
}

// Resolve fills "auto" or missing format and codec values for the given kind
// and returns the resolved copy. The input set is not modified.
func (s Set) Resolve(kind, accept string) Set {
	out := s.Clone()
	switch kind {
	case "image":
		if out.IsAuto(Format) {
			out[Format] = NegotiateImageFormat(accept)
		}
		out[Format] = strings.ToLower(out[Format])
		if out[Format] == "jpg" {
			out[Format] = "jpeg"
		}
	case "video":
		container, codec := NegotiateVideo(accept)
		if out.IsAuto(Format) {
			out[Format] = container
		}
		if out.IsAuto(Codec) {
			if out[Format] == container {
				out[Codec] = codec
			} else {
				out[Codec] = DefaultVideoCodec(out[Format])
			}
		}
	case "audio":
		if out.IsAuto(Format) {
			switch codec := strings.ToLower(out[Codec]); codec {
			case "mp3", "aac", "opus":
				out[Format] = codec
			default:
				out[Format] = NegotiateAudioFormat(accept)
			}
		}
	}
	return out
}

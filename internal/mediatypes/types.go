package mediatypes

import (
	"fmt"
	"strings"
)

// Kind identifies which derivative pipeline handles a request.
type Kind string

const (
	// KindImage covers resized or recoded stills, including video poster frames.
	KindImage Kind = "image"
	// KindVideo covers transcoded video.
	KindVideo Kind = "video"
	// KindAudio covers transcoded audio.
	KindAudio Kind = "audio"
)

// Kinds lists every supported kind in routing order.
var Kinds = []Kind{KindImage, KindVideo, KindAudio}

// ParseKind validates a route segment.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(s)) {
	case KindImage:
		return KindImage, true
	case KindVideo:
		return KindVideo, true
	case KindAudio:
		return KindAudio, true
	}
	return "", false
}

// FileType represents the type of an origin object, derived from its extension.
type FileType string

const (
	// FileTypeImage represents an image origin.
	FileTypeImage FileType = "image"
	// FileTypeVideo represents a video origin.
	FileTypeVideo FileType = "video"
	// FileTypeAudio represents an audio origin.
	FileTypeAudio FileType = "audio"
	// FileTypeOther represents an unknown or unsupported origin.
	FileTypeOther FileType = "other"
)

// ImageExtensions maps file extensions to whether they are supported image formats.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".avif": true,
	".tiff": true,
	".tif":  true,
	".heic": true,
	".heif": true,
}

// VideoExtensions maps file extensions to whether they are supported video formats.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".webm": true,
	".m4v":  true,
	".mpeg": true,
	".mpg":  true,
	".3gp":  true,
	".ts":   true,
	".ogv":  true,
}

// AudioExtensions maps file extensions to whether they are supported audio formats.
var AudioExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".aac":  true,
	".wav":  true,
	".flac": true,
	".ogg":  true,
	".oga":  true,
	".opus": true,
}

// GetFileType returns the FileType for a given file extension.
// The extension is matched case-insensitively and must include the leading dot.
func GetFileType(ext string) FileType {
	ext = strings.ToLower(ext)
	if ImageExtensions[ext] {
		return FileTypeImage
	}
	if VideoExtensions[ext] {
		return FileTypeVideo
	}
	if AudioExtensions[ext] {
		return FileTypeAudio
	}
	return FileTypeOther
}

// ImageFormats maps an output image format name to its MIME type.
var ImageFormats = map[string]string{
	"jpeg": "image/jpeg",
	"jpg":  "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"avif": "image/avif",
	"gif":  "image/gif",
	"tiff": "image/tiff",
	"heif": "image/heif",
}

// VideoContainers maps an output container name to its base MIME type.
var VideoContainers = map[string]string{
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"ogg":  "video/ogg",
}

// AudioFormats maps an output audio format name to its MIME type.
var AudioFormats = map[string]string{
	"mp3":  "audio/mpeg",
	"aac":  "audio/aac",
	"opus": "audio/ogg",
	"ogg":  "audio/ogg",
	"webm": "audio/webm",
}

// ImageContentType returns the MIME type for an image output format.
// Unknown formats map to application/octet-stream.
func ImageContentType(format string) string {
	if mime, ok := ImageFormats[strings.ToLower(format)]; ok {
		return mime
	}
	return "application/octet-stream"
}

// VideoCodecDetail returns the RFC 6381 codecs parameter advertised for a video codec.
func VideoCodecDetail(codec string) string {
	switch codec {
	case "av1":
		return "av01.0.05M.08, opus"
	case "vp9":
		return "vp9, vorbis"
	case "avc":
		return "avc1.42E01E, mp4a.40.2"
	case "hevc":
		return "hvc1, mp4a.40.2"
	case "theora":
		return "theora, vorbis"
	default:
		return codec
	}
}

// VideoContentType builds the Content-Type for a transcoded video, including codecs.
func VideoContentType(container, codec string) string {
	base, ok := VideoContainers[container]
	if !ok {
		base = "video/" + container
	}
	return fmt.Sprintf("%s; codecs=\"%s\"", base, VideoCodecDetail(codec))
}

// AudioContentType returns the MIME type for an audio output format.
func AudioContentType(format string) string {
	if mime, ok := AudioFormats[strings.ToLower(format)]; ok {
		return mime
	}
	return "application/octet-stream"
}

// ContentTypeForExtension maps a stored derivative's extension back to a MIME
// type. The codecs parameter is not recoverable from the extension alone.
func ContentTypeForExtension(ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if mime, ok := ImageFormats[ext]; ok {
		return mime
	}
	if mime, ok := VideoContainers[ext]; ok {
		return mime
	}
	if mime, ok := AudioFormats[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

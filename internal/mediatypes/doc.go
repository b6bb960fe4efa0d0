// Package mediatypes provides shared type definitions for media-cdn.
//
// It is a dependency-free foundation imported by the parser, the engines and
// the HTTP layer without creating import cycles.
//
// # Kinds
//
// A Kind selects the derivative pipeline: image, video or audio. ParseKind
// validates the route segment.
//
// # Origin detection
//
// GetFileType classifies an origin object by extension so that, for example,
// an image request against a video origin extracts a poster frame first.
//
// # Output formats
//
// ImageContentType, VideoContentType and AudioContentType map negotiated
// output formats to response Content-Type values. Video types carry a codecs
// parameter:
//
//	mediatypes.VideoContentType("mp4", "avc") // video/mp4; codecs="avc1.42E01E, mp4a.40.2"
package mediatypes

// Package media turns origin images into derivatives.
//
// Two engines implement Engine: VipsEngine (libvips via govips, all output
// formats) and ImagingEngine (pure Go, jpeg/png/gif/tiff output). Transform
// wraps either one, rejecting text payloads with ErrNonBinary and recording
// metrics. FrameExtractor pulls poster frames out of video origins with
// ffmpeg so they can be fed through the same engines.
package media

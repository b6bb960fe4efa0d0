// Package handlers provides the HTTP surface of the media CDN.
//
// It includes handlers for:
//   - Derivative delivery with byte-range support for video and audio
//   - Cache burst and transcode scratch maintenance
//   - Health, readiness, version and metrics endpoints
//
// Pipeline errors are mapped to status codes in one place (errors.go).
package handlers

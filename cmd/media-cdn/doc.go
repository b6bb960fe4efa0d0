// Package main is the entry point for the media CDN.
//
// The server answers GET /media/{kind}/{args}/{id} with derivative images,
// videos and audio produced on demand from an origin bucket. Derivatives are
// cached in a local directory and, when configured, an R2 bucket. A separate
// listener exposes Prometheus metrics.
//
// See package startup for configuration.
package main

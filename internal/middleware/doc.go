// Package middleware provides HTTP middleware for the media CDN.
//
// It includes:
//   - Request ids (X-Request-ID)
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics
//   - gzip compression for JSON API responses
package middleware

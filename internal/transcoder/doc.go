// Package transcoder drives ffmpeg to produce video and audio derivatives.
//
// Each codec/device pair has an Encoder that owns its rate-control mapping
// from a 0-100 quality score. GPU encoding is only offered where an NVENC
// encoder exists; asking for it elsewhere fails with ErrUnsupported before
// any subprocess starts. Subprocesses run through the Runner interface so
// tests can substitute a fake. A transcode first probes the source
// dimensions and counts its frames, then samples ffmpeg's progress stream on
// a fixed interval and reports completion, ETA and fps to an Observer.
//
// Encoder failures are reported as a rejected Outcome rather than an error.
package transcoder

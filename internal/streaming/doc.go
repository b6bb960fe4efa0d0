// Package streaming writes cached media bodies to HTTP clients.
//
// Serve answers full and single-range requests from any io.ReadSeeker:
//
// 	err := streaming.Serve(ctx, w, r, obj.Body, obj.Size, true, streaming.DefaultWriterConfig())
//
// A request with "Range: bytes=1000-1999" against a 5000 byte entity gets a 206
// with "Content-Range: bytes 1000-1999/5000" and exactly 1000 bytes. A range
// starting past the end gets a 416 with "Content-Range: bytes */5000".
// Malformed and multi-range headers are ignored and the whole entity is sent.
//
// Writes go through a TimeoutWriter, which splits large writes into chunks,
// bounds each write with WriteTimeout and cancels a stream that has been idle
// for IdleTimeout. Client disconnects surface as ErrClientGone:
//
// 	if errors.Is(err, streaming.ErrClientGone) {
// 		return
// 	}
package streaming

// Package media is the ingest and egress core of a broadcast playout
// server: it decodes video into host frames and encodes channel output
// into container files and network streams.
//
// Key pieces include:
//   - ResolvePixelFormat: plane geometry of decoded pixel formats
//   - VideoDecoder: numbered, plane-copied frames from a PacketSource
//   - Stream: one filtered and encoded output track
//   - MediaWriter: a queue, encode and mux pipeline behind a non-blocking Send
//   - PatternSource: color bars and tone for testing writers end to end
//
// # Architecture
//
//	Decode: PacketSource -> VideoCodecContext -> [ColorConverter] -> WriteFrame
//	Encode: Send -> frame queue -> Stream (FilterGraph -> Encoder) -> packet queue -> Muxer -> sink
//
// Writer arguments use ffmpeg syntax ("-codec:v libx264 -filter:a volume=0.5
// -format mpegts"). Options ending in :v or :a configure one track; the
// rest go to the container and its I/O.
//
// # Providers
//
// Codecs, filter graphs, color converters and muxers come from providers:
//   - go: pure Go rawvideo/PCM codecs, linear filter chains, the null,
//     framecrc, framemd5, yuv4mpegpipe, wav and mpegts muxers
//   - ffmpeg: libavcodec, libavfilter, libavformat and libswscale through
//     go-astiav; built with CGO enabled
//   - swscale: libswscale loaded at runtime through purego when CGO is
//     disabled; set MEDIA_SWSCALE_LIB_PATH to a file or directory
//
// The best available provider wins; ProvidersWith lists them in order.
//
// # Sinks
//
// Plain paths and file: URLs are written to disk under the media folder.
// udp:// and rtp:// send MPEG-TS datagrams, srt:// dials an SRT listener
// and rtmp:// publishes FLV to an RTMP server.
//
// # Build Tags
//
//   - noffmpeg: leave out the go-astiav backend even with CGO enabled
//
// # Metrics
//
// Writer and decoder counters are registered with the default Prometheus
// registry under the media_ prefix.
package media

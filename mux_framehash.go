package media

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

func init() {
	registerOutputFormat(&OutputFormat{
		Name:       "framecrc",
		LongName:   "framecrc testing",
		VideoCodec: CodecIDRawVideo,
		AudioCodec: CodecIDPCMS16LE,
		Provider:   ProviderGo,
		alloc: func(of *OutputFormat) (Muxer, error) {
			return newGoMuxer(of, &frameHashMuxer{hash: adler32Hex}), nil
		},
	})
	registerOutputFormat(&OutputFormat{
		Name:       "framemd5",
		LongName:   "Per-frame MD5 testing",
		VideoCodec: CodecIDRawVideo,
		AudioCodec: CodecIDPCMS16LE,
		Provider:   ProviderGo,
		alloc: func(of *OutputFormat) (Muxer, error) {
			return newGoMuxer(of, &frameHashMuxer{hash: md5Hex, name: "MD5"}), nil
		},
	})
}

// frameHashMuxer writes one text line per packet with its timestamps,
// size and a checksum of the payload.
type frameHashMuxer struct {
	hash func([]byte) string
	name string
}

func (h *frameHashMuxer) writeHeader(m *goMuxer) error {
	var b []byte
	b = fmt.Appendf(b, "#format: frame checksums\n#version: 2\n")
	if h.name != "" {
		b = fmt.Appendf(b, "#hash: %s\n", h.name)
	}
	for _, s := range m.streams {
		p := s.Params
		b = fmt.Appendf(b, "#tb %d: %s\n", s.Index, s.TimeBase)
		b = fmt.Appendf(b, "#media_type %d: %s\n", s.Index, p.MediaType)
		b = fmt.Appendf(b, "#codec_id %d: %s\n", s.Index, p.CodecID)
		switch p.MediaType {
		case MediaTypeVideo:
			b = fmt.Appendf(b, "#dimensions %d: %dx%d\n", s.Index, p.Width, p.Height)
			sar := p.SampleAspectRatio
			if sar.IsZero() {
				sar = Rational{Num: 0, Den: 1}
			}
			b = fmt.Appendf(b, "#sar %d: %s\n", s.Index, sar)
		case MediaTypeAudio:
			b = fmt.Appendf(b, "#sample_rate %d: %d\n", s.Index, p.SampleRate)
			b = fmt.Appendf(b, "#channel_layout_name %d: %s\n", s.Index, p.ChannelLayout)
		}
	}
	b = fmt.Appendf(b, "#stream#, dts,        pts, duration,     size, hash\n")
	return m.write(b)
}

func (h *frameHashMuxer) writePacket(m *goMuxer, p *Packet) error {
	line := fmt.Sprintf("%d, %10d, %10d, %8d, %8d, %s", p.StreamIndex, p.DTS, p.PTS, p.Duration, len(p.Data), h.hash(p.Data))
	if !p.Key {
		line += ", F=0x0"
	}
	return m.write([]byte(line + "\n"))
}

func (h *frameHashMuxer) writeTrailer(*goMuxer) error { return nil }

// adler32Hex is Adler-32 seeded with 0, as the framecrc format uses.
// hash/adler32 always seeds with 1.
func adler32Hex(b []byte) string {
	const mod = 65521
	var s1, s2 uint32
	for len(b) > 0 {
		n := min(len(b), 5552)
		for _, c := range b[:n] {
			s1 += uint32(c)
			s2 += s1
		}
		s1 %= mod
		s2 %= mod
		b = b[n:]
	}
	return fmt.Sprintf("0x%08x", s2<<16|s1)
}

func md5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

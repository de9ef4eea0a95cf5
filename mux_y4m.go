package media

import "fmt"

func init() {
	registerOutputFormat(&OutputFormat{
		Name:       "yuv4mpegpipe",
		LongName:   "YUV4MPEG pipe",
		Extensions: []string{"y4m"},
		VideoCodec: CodecIDRawVideo,
		Provider:   ProviderGo,
		alloc: func(of *OutputFormat) (Muxer, error) {
			return newGoMuxer(of, &y4mMuxer{}), nil
		},
	})
}

var y4mColorspaces = map[PixelFormat]string{
	PixelFormatYUV420P: "420jpeg",
	PixelFormatYUV422P: "422",
	PixelFormatYUV444P: "444",
	PixelFormatYUV411P: "411",
	PixelFormatGray8:   "mono",
}

// y4mMuxer writes planar rawvideo as a YUV4MPEG2 stream.
type y4mMuxer struct{}

func (y *y4mMuxer) writeHeader(m *goMuxer) error {
	if len(m.streams) != 1 || m.streams[0].Params.MediaType != MediaTypeVideo {
		return fmt.Errorf("yuv4mpegpipe: exactly one video stream is supported")
	}
	s := m.streams[0]
	p := s.Params
	if p.CodecID != CodecIDRawVideo {
		return fmt.Errorf("yuv4mpegpipe: codec %s is not rawvideo", p.CodecID)
	}
	cs, ok := y4mColorspaces[p.PixelFormat]
	if !ok {
		return fmt.Errorf("yuv4mpegpipe: pixel format %s is not supported", p.PixelFormat)
	}
	interlace := "p"
	switch p.FieldMode {
	case FieldModeUpper:
		interlace = "t"
	case FieldModeLower:
		interlace = "b"
	}
	sar := p.SampleAspectRatio
	if sar.IsZero() {
		sar = Rational{Num: 0, Den: 0}
	}
	rate := s.TimeBase.Invert().Reduce()
	return m.write(fmt.Appendf(nil, "YUV4MPEG2 W%d H%d F%d:%d I%s A%d:%d C%s\n",
		p.Width, p.Height, rate.Num, rate.Den, interlace, sar.Num, sar.Den, cs))
}

func (y *y4mMuxer) writePacket(m *goMuxer, p *Packet) error {
	if err := m.write([]byte("FRAME\n")); err != nil {
		return err
	}
	return m.write(p.Data)
}

func (y *y4mMuxer) writeTrailer(*goMuxer) error { return nil }

//go:build cgo && !noffmpeg

package media

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/asticode/go-astiav"
)

// avioBufferSize is the buffer of AVIO contexts bridged to Go sinks.
const avioBufferSize = 32 * 1024

// bridgedSchemes are written through the Go sinks rather than
// libavformat's protocols.
var bridgedSchemes = map[string]bool{"udp": true, "rtp": true, "srt": true, "rtmp": true}

// formatDefaults are libavformat's default codecs for the formats the
// writer can fill without explicit codec options.
var formatDefaults = map[string]struct {
	video, audio CodecID
	extensions   []string
}{
	"mp4":          {CodecIDH264, CodecIDAAC, []string{"mp4"}},
	"mov":          {CodecIDH264, CodecIDAAC, []string{"mov"}},
	"matroska":     {CodecIDH264, CodecIDAC3, []string{"mkv"}},
	"webm":         {CodecIDVP9, CodecIDOpus, []string{"webm"}},
	"mpegts":       {CodecIDMPEG2Video, CodecIDMP2, []string{"ts", "m2t", "m2ts", "mts"}},
	"flv":          {CodecIDFLV1, CodecIDMP3, []string{"flv"}},
	"avi":          {CodecIDMPEG4, CodecIDMP3, []string{"avi"}},
	"mxf":          {CodecIDMPEG2Video, CodecIDPCMS16LE, []string{"mxf"}},
	"dv":           {CodecIDDVVideo, CodecIDPCMS16LE, []string{"dv"}},
	"nut":          {CodecIDMPEG4, CodecIDMP2, []string{"nut"}},
	"null":         {CodecIDRawVideo, CodecIDPCMS16LE, nil},
	"wav":          {CodecIDNone, CodecIDPCMS16LE, []string{"wav"}},
	"mp3":          {CodecIDNone, CodecIDMP3, []string{"mp3"}},
	"yuv4mpegpipe": {CodecIDRawVideo, CodecIDNone, []string{"y4m"}},
	"framecrc":     {CodecIDRawVideo, CodecIDPCMS16LE, nil},
	"framemd5":     {CodecIDRawVideo, CodecIDPCMS16LE, nil},
}

func init() {
	formatRegistry.native = ffmpegOutputFormat
	formatRegistry.guess = guessFFmpegOutputFormat
}

// ffmpegOutputFormat describes a libavformat muxer, or returns nil when
// libavformat lacks it.
func ffmpegOutputFormat(name string) *OutputFormat {
	d, ok := formatDefaults[name]
	if !ok {
		return nil
	}
	af := astiav.FindOutputFormat(name)
	if af == nil {
		return nil
	}
	of := &OutputFormat{
		Name:       af.Name(),
		LongName:   af.LongName(),
		Extensions: d.extensions,
		VideoCodec: d.video,
		AudioCodec: d.audio,
		Provider:   ProviderFFmpeg,
		alloc:      newFFmpegMuxer,
	}
	// Without libx264 the mp4 family falls back like libavformat does.
	if of.VideoCodec == CodecIDH264 && astiav.FindEncoder(astiav.CodecIDH264) == nil {
		of.VideoCodec = CodecIDMPEG4
	}
	if af.Flags().Has(astiav.IOFormatFlagGlobalheader) {
		of.Flags |= FormatGlobalHeader
	}
	if af.Flags().Has(astiav.IOFormatFlagNofile) {
		of.Flags |= FormatNoFile
	}
	return of
}

func guessFFmpegOutputFormat(path string) *OutputFormat {
	fc, err := astiav.AllocOutputFormatContext(nil, "", path)
	if err != nil || fc == nil {
		return nil
	}
	defer fc.Free()
	return ffmpegOutputFormat(fc.OutputFormat().Name())
}

// ffmpegMuxer writes through libavformat. Track parameters are read when
// the header is written, after the encoders have been opened.
type ffmpegMuxer struct {
	format  *OutputFormat
	fc      *astiav.FormatContext
	ioc     *astiav.IOContext
	sink    io.WriteCloser
	streams []*MuxStream
	av      []*astiav.Stream
	pkt     *astiav.Packet
}

func newFFmpegMuxer(of *OutputFormat) (Muxer, error) {
	fc, err := astiav.AllocOutputFormatContext(nil, of.Name, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFormatNotFound, of.Name, err)
	}
	if fc == nil {
		return nil, fmt.Errorf("%w: %s", ErrFormatNotFound, of.Name)
	}
	return &ffmpegMuxer{format: of, fc: fc, pkt: astiav.AllocPacket()}, nil
}

func (m *ffmpegMuxer) Format() *OutputFormat { return m.format }
func (m *ffmpegMuxer) Streams() []*MuxStream { return m.streams }

func (m *ffmpegMuxer) NewStream(params CodecParameters, tb Rational) (*MuxStream, error) {
	if len(m.av) > 0 {
		return nil, fmt.Errorf("%s: cannot add streams after the header", m.format.Name)
	}
	s := &MuxStream{Index: len(m.streams), Params: params, TimeBase: tb}
	m.streams = append(m.streams, s)
	return s, nil
}

func (m *ffmpegMuxer) OpenIO(path string, opts Options) (Options, error) {
	if u, err := url.Parse(path); err == nil && bridgedSchemes[strings.ToLower(u.Scheme)] {
		w, rest, err := OpenSink(path, opts)
		if err != nil {
			return opts, err
		}
		ioc, err := astiav.AllocIOContext(avioBufferSize, true, nil, nil, func(b []byte) (int, error) {
			return w.Write(b)
		})
		if err != nil {
			w.Close()
			return opts, fmt.Errorf("avio bridge %s: %w", path, err)
		}
		m.sink, m.ioc = w, ioc
		m.fc.SetPb(ioc)
		return rest, nil
	}

	dict := toDictionary(opts)
	defer dict.Free()
	ioc, err := astiav.OpenIOContext(path, astiav.NewIOContextFlags(astiav.IOContextFlagWrite), nil, dict)
	if err != nil {
		return opts, fmt.Errorf("open %s: %w", path, err)
	}
	m.ioc = ioc
	m.fc.SetPb(ioc)
	return fromDictionary(dict), nil
}

func (m *ffmpegMuxer) WriteHeader(opts Options) (Options, error) {
	for _, s := range m.streams {
		st := m.fc.NewStream(nil)
		if st == nil {
			return opts, fmt.Errorf("%s: allocate stream %d", m.format.Name, s.Index)
		}
		if err := fillCodecParameters(st.CodecParameters(), s); err != nil {
			return opts, fmt.Errorf("%s: stream %d parameters: %w", m.format.Name, s.Index, err)
		}
		st.SetTimeBase(avRational(s.TimeBase))
		m.av = append(m.av, st)
	}

	dict := toDictionary(opts)
	defer dict.Free()
	if err := m.fc.WriteHeader(dict); err != nil {
		return opts, fmt.Errorf("%s: write header: %w", m.format.Name, err)
	}
	for i, st := range m.av {
		m.streams[i].TimeBase = fromAVRational(st.TimeBase())
	}
	return fromDictionary(dict), nil
}

func fillCodecParameters(cp *astiav.CodecParameters, s *MuxStream) error {
	if enc, ok := s.Encoder.(*ffmpegEncoder); ok && enc.cc != nil {
		return enc.cc.ToCodecParameters(cp)
	}
	p := s.Params
	cp.SetCodecID(astiav.CodecID(p.CodecID))
	cp.SetMediaType(astiav.MediaType(p.MediaType))
	cp.SetBitRate(p.BitRate)
	if len(p.Extradata) > 0 {
		if err := cp.SetExtraData(p.Extradata); err != nil {
			return err
		}
	}
	switch p.MediaType {
	case MediaTypeVideo:
		cp.SetWidth(p.Width)
		cp.SetHeight(p.Height)
		cp.SetPixelFormat(astiav.PixelFormat(p.PixelFormat))
		if !p.SampleAspectRatio.IsZero() {
			cp.SetSampleAspectRatio(avRational(p.SampleAspectRatio))
		}
	case MediaTypeAudio:
		layout, err := avChannelLayout(p.ChannelLayout)
		if err != nil {
			return err
		}
		cp.SetSampleFormat(astiav.SampleFormat(p.SampleFormat))
		cp.SetSampleRate(p.SampleRate)
		cp.SetChannelLayout(layout)
		cp.SetFrameSize(p.FrameSize)
	}
	return nil
}

func (m *ffmpegMuxer) WriteInterleaved(pkt *Packet) error {
	if pkt.StreamIndex < 0 || pkt.StreamIndex >= len(m.av) {
		return fmt.Errorf("%s: invalid stream index %d", m.format.Name, pkt.StreamIndex)
	}
	p := m.pkt
	if err := p.FromData(pkt.Data); err != nil {
		return err
	}
	defer p.Unref()
	p.SetStreamIndex(pkt.StreamIndex)
	p.SetPts(pkt.PTS)
	dts := pkt.DTS
	if dts == NoPTS {
		dts = pkt.PTS
	}
	p.SetDts(dts)
	p.SetDuration(pkt.Duration)
	if pkt.Key {
		p.SetFlags(p.Flags().Add(astiav.PacketFlagKey))
	}
	if err := m.fc.WriteInterleavedFrame(p); err != nil {
		return fmt.Errorf("%s: write packet: %w", m.format.Name, err)
	}
	return nil
}

func (m *ffmpegMuxer) WriteTrailer() error {
	if err := m.fc.WriteTrailer(); err != nil {
		return fmt.Errorf("%s: write trailer: %w", m.format.Name, err)
	}
	return nil
}

// CloseIO closes the destination and releases the format context; the
// muxer cannot be used afterwards.
func (m *ffmpegMuxer) CloseIO() error {
	var err error
	switch {
	case m.sink != nil:
		m.ioc.Free()
		err = m.sink.Close()
	case m.ioc != nil:
		err = m.ioc.Close()
	}
	m.ioc, m.sink = nil, nil
	if m.fc != nil {
		m.fc.Free()
		m.fc = nil
	}
	if m.pkt != nil {
		m.pkt.Free()
		m.pkt = nil
	}
	return err
}

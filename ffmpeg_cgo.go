//go:build cgo && !noffmpeg

// libavcodec, libavutil and libswscale through go-astiav.
//
// Enabling this backend makes every libav encoder, decoder and pixel
// format reachable. PixelFormat, SampleFormat, CodecID and MediaType
// share libav's numbering, so values convert by cast.

package media

import (
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/asticode/go-astiav"
)

func init() {
	setProviderAvailable(ProviderFFmpeg)
	registerColorConverter(ProviderFFmpeg, newFFmpegColorConverter)
	registerFallbackDecoder(ProviderFFmpeg, newFFmpegDecoder)
	registerEncoderLookup(ProviderFFmpeg, encoderLookup{
		byID: func(id CodecID) *Encoder {
			return ffmpegEncoderInfo(astiav.FindEncoder(astiav.CodecID(id)))
		},
		byName: func(name string) *Encoder {
			return ffmpegEncoderInfo(astiav.FindEncoderByName(name))
		},
	})
}

// mapAVError turns libav's EAGAIN/EOF into the package sentinels.
func mapAVError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, astiav.ErrEagain):
		return ErrAgain
	case errors.Is(err, astiav.ErrEof):
		return io.EOF
	default:
		return err
	}
}

func avRational(r Rational) astiav.Rational { return astiav.NewRational(r.Num, r.Den) }

func fromAVRational(r astiav.Rational) Rational { return Rational{Num: r.Num(), Den: r.Den()} }

var avChannelLayouts = []struct {
	layout ChannelLayout
	av     astiav.ChannelLayout
}{
	{ChannelLayoutMono, astiav.ChannelLayoutMono},
	{ChannelLayoutStereo, astiav.ChannelLayoutStereo},
	{ChannelLayoutSurround, astiav.ChannelLayoutSurround},
	{ChannelLayoutQuad, astiav.ChannelLayout4Point0},
	{ChannelLayout5Point0, astiav.ChannelLayout5Point0},
	{ChannelLayout5Point1, astiav.ChannelLayout5Point1},
	{ChannelLayout6Point1, astiav.ChannelLayout6Point1},
	{ChannelLayout7Point1, astiav.ChannelLayout7Point1},
	{ChannelLayout7Point1Wide, astiav.ChannelLayout7Point1Wide},
}

func avChannelLayout(l ChannelLayout) (astiav.ChannelLayout, error) {
	for _, e := range avChannelLayouts {
		if e.layout == l {
			return e.av, nil
		}
	}
	return astiav.ChannelLayout{}, fmt.Errorf("%w: channel layout %s", ErrNotSupported, l)
}

func fromAVChannelLayout(l astiav.ChannelLayout) ChannelLayout {
	for _, e := range avChannelLayouts {
		if e.av.Equal(l) {
			return e.layout
		}
	}
	return DefaultChannelLayout(l.Channels())
}

// avFrameRef keeps a libav frame alive for as long as the Frame that
// points to it.
type avFrameRef struct {
	f *astiav.Frame
}

func newAVFrameRef(f *astiav.Frame) *avFrameRef {
	r := &avFrameRef{f: f}
	runtime.SetFinalizer(r, (*avFrameRef).free)
	return r
}

func (r *avFrameRef) free() {
	if r.f != nil {
		r.f.Free()
		r.f = nil
		runtime.SetFinalizer(r, nil)
	}
}

// toAVFrame returns a libav frame holding f. owned reports whether the
// caller must free it.
func toAVFrame(f *Frame) (af *astiav.Frame, owned bool, err error) {
	if r, ok := f.native.(*avFrameRef); ok && r.f != nil {
		r.f.SetPts(f.PTS)
		return r.f, false, nil
	}

	out := astiav.AllocFrame()
	defer func() {
		if err != nil {
			out.Free()
		}
	}()
	var buf []byte
	switch f.MediaType {
	case MediaTypeVideo:
		planes := tightPlanes(f.PixelFormat, f.Width, f.Height)
		if planes == nil {
			return nil, false, fmt.Errorf("%w: pixel format %s", ErrNotSupported, f.PixelFormat)
		}
		out.SetWidth(f.Width)
		out.SetHeight(f.Height)
		out.SetPixelFormat(astiav.PixelFormat(f.PixelFormat))
		if !f.SampleAspectRatio.IsZero() {
			out.SetSampleAspectRatio(avRational(f.SampleAspectRatio))
		}
		for i, p := range planes {
			if i >= len(f.Data) {
				return nil, false, fmt.Errorf("frame has %d planes, want %d", len(f.Data), len(planes))
			}
			for y := 0; y < p.Height; y++ {
				off := y * f.Linesize[i]
				buf = append(buf, f.Data[i][off:off+p.Linesize]...)
			}
		}
	case MediaTypeAudio:
		layout, err := avChannelLayout(f.ChannelLayout)
		if err != nil {
			return nil, false, err
		}
		out.SetNbSamples(f.NbSamples)
		out.SetSampleFormat(astiav.SampleFormat(f.SampleFormat))
		out.SetSampleRate(f.SampleRate)
		out.SetChannelLayout(layout)
		n := f.NbSamples * f.SampleFormat.BytesPerSample()
		if !f.SampleFormat.Planar() {
			n *= f.ChannelLayout.Channels()
		}
		for _, p := range f.Data {
			buf = append(buf, p[:n]...)
		}
	default:
		return nil, false, fmt.Errorf("%w: %s frame", ErrMediaType, f.MediaType)
	}

	if err := out.AllocBuffer(0); err != nil {
		return nil, false, fmt.Errorf("alloc frame buffer: %w", err)
	}
	if err := out.Data().SetBytes(buf, 1); err != nil {
		return nil, false, fmt.Errorf("fill frame: %w", err)
	}
	out.SetPts(f.PTS)
	return out, true, nil
}

// fromAVFrame wraps af, which the returned Frame takes ownership of.
// Video planes the Go side knows the layout of are referenced in place
// with libav's line sizes; bottom-up frames are copied upright.
func fromAVFrame(af *astiav.Frame, mt MediaType) (*Frame, error) {
	f := &Frame{MediaType: mt, PTS: af.Pts()}
	switch mt {
	case MediaTypeVideo:
		f.Width, f.Height = af.Width(), af.Height()
		f.PixelFormat = PixelFormat(af.PixelFormat())
		f.SampleAspectRatio = fromAVRational(af.SampleAspectRatio())
		planes := tightPlanes(f.PixelFormat, f.Width, f.Height)
		if planes == nil {
			break
		}
		if f.Data, f.Linesize = avFramePlanes(af, planes); f.Data != nil {
			break
		}
		n, err := af.ImageBufferSize(1)
		if err != nil {
			af.Free()
			return nil, err
		}
		buf := make([]byte, n)
		if _, err := af.ImageCopyToBuffer(buf, 1); err != nil {
			af.Free()
			return nil, err
		}
		for _, p := range planes {
			size := p.Linesize * p.Height
			f.Data = append(f.Data, buf[:size:size])
			f.Linesize = append(f.Linesize, p.Linesize)
			buf = buf[size:]
		}
	case MediaTypeAudio:
		f.NbSamples = af.NbSamples()
		f.SampleFormat = SampleFormat(af.SampleFormat())
		f.SampleRate = af.SampleRate()
		f.ChannelLayout = fromAVChannelLayout(af.ChannelLayout())
		buf, err := af.Data().Bytes(1)
		if err != nil {
			af.Free()
			return nil, err
		}
		planes := 1
		if f.SampleFormat.Planar() {
			planes = f.ChannelLayout.Channels()
		}
		size := len(buf) / max(1, planes)
		for i := 0; i < planes; i++ {
			f.Data = append(f.Data, buf[i*size:(i+1)*size:(i+1)*size])
			f.Linesize = append(f.Linesize, size)
		}
	}
	f.native = newAVFrameRef(af)
	return f, nil
}

// --- Color conversion ---

type ffmpegColorConverter struct {
	ctx      *astiav.SoftwareScaleContext
	src, dst PixelFormat
	w, h     int
}

func newFFmpegColorConverter(src PixelFormat, width, height int, dst PixelFormat) (ColorConverter, error) {
	ctx, err := astiav.CreateSoftwareScaleContext(width, height, astiav.PixelFormat(src),
		width, height, astiav.PixelFormat(dst), astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear))
	if err != nil {
		return nil, fmt.Errorf("%w: swscale %s -> %s: %w", ErrNotSupported, src, dst, err)
	}
	return &ffmpegColorConverter{ctx: ctx, src: src, dst: dst, w: width, h: height}, nil
}

func (c *ffmpegColorConverter) Provider() Provider { return ProviderFFmpeg }

func (c *ffmpegColorConverter) Convert(src, dst *Frame) error {
	if c.ctx == nil {
		return fmt.Errorf("color converter closed")
	}
	if src.PixelFormat != c.src || src.Width != c.w || src.Height != c.h {
		return fmt.Errorf("converter configured for %s %dx%d, got %s %dx%d",
			c.src, c.w, c.h, src.PixelFormat, src.Width, src.Height)
	}
	in, owned, err := toAVFrame(src)
	if err != nil {
		return err
	}
	if owned {
		defer in.Free()
	}

	out := astiav.AllocFrame()
	defer out.Free()
	out.SetWidth(c.w)
	out.SetHeight(c.h)
	out.SetPixelFormat(astiav.PixelFormat(c.dst))
	if err := out.AllocBuffer(1); err != nil {
		return err
	}
	if err := c.ctx.ScaleFrame(in, out); err != nil {
		return fmt.Errorf("sws_scale: %w", err)
	}

	n, err := out.ImageBufferSize(1)
	if err != nil {
		return err
	}
	buf := make([]byte, n)
	if _, err := out.ImageCopyToBuffer(buf, 1); err != nil {
		return err
	}
	planes := tightPlanes(c.dst, c.w, c.h)
	if planes == nil {
		return fmt.Errorf("%w: destination format %s", ErrNotSupported, c.dst)
	}
	for i, p := range planes {
		for y := 0; y < p.Height; y++ {
			copy(dst.Data[i][y*dst.Linesize[i]:], buf[y*p.Linesize:(y+1)*p.Linesize])
		}
		buf = buf[p.Linesize*p.Height:]
	}
	return nil
}

func (c *ffmpegColorConverter) Close() error {
	if c.ctx != nil {
		c.ctx.Free()
		c.ctx = nil
	}
	return nil
}

// --- Decoding ---

type ffmpegDecoder struct {
	cfg   DecoderConfig
	codec *astiav.Codec
	cc    *astiav.CodecContext
	pkt   *astiav.Packet
	err   error // set when a flush could not reopen the context
}

func newFFmpegDecoder(cfg DecoderConfig) (VideoCodecContext, error) {
	codec := astiav.FindDecoder(astiav.CodecID(cfg.CodecID))
	if codec == nil {
		return nil, fmt.Errorf("%w: no libavcodec decoder for %s", ErrNotSupported, cfg.CodecID)
	}
	d := &ffmpegDecoder{cfg: cfg, codec: codec, pkt: astiav.AllocPacket()}
	if err := d.open(); err != nil {
		d.pkt.Free()
		return nil, err
	}
	return d, nil
}

func (d *ffmpegDecoder) open() error {
	cc := astiav.AllocCodecContext(d.codec)
	if cc == nil {
		return fmt.Errorf("allocate %s decoder context", d.codec.Name())
	}
	cc.SetWidth(d.cfg.Width)
	cc.SetHeight(d.cfg.Height)
	if d.cfg.PixelFormat != PixelFormatNone {
		cc.SetPixelFormat(astiav.PixelFormat(d.cfg.PixelFormat))
	}
	if len(d.cfg.Extradata) > 0 {
		if err := cc.SetExtraData(d.cfg.Extradata); err != nil {
			cc.Free()
			return err
		}
	}
	cc.SetThreadCount(d.cfg.Threads)
	if err := cc.Open(d.codec, nil); err != nil {
		cc.Free()
		return fmt.Errorf("open %s decoder: %w", d.codec.Name(), err)
	}
	d.cc = cc
	return nil
}

func (d *ffmpegDecoder) CodecID() CodecID   { return d.cfg.CodecID }
func (d *ffmpegDecoder) Provider() Provider { return ProviderFFmpeg }

func (d *ffmpegDecoder) Width() int {
	if d.cc == nil {
		return d.cfg.Width
	}
	return d.cc.Width()
}

func (d *ffmpegDecoder) Height() int {
	if d.cc == nil {
		return d.cfg.Height
	}
	return d.cc.Height()
}

func (d *ffmpegDecoder) PixelFormat() PixelFormat {
	if d.cc == nil || d.cc.PixelFormat() == astiav.PixelFormatNone {
		return d.cfg.PixelFormat
	}
	return PixelFormat(d.cc.PixelFormat())
}

func (d *ffmpegDecoder) Decode(pkt *Packet) ([]*Frame, error) {
	if d.cc == nil {
		return nil, fmt.Errorf("%w: decoder unavailable: %w", ErrDecode, d.err)
	}
	if err := d.pkt.FromData(pkt.Data); err != nil {
		return nil, err
	}
	d.pkt.SetPts(pkt.PTS)
	d.pkt.SetDts(pkt.DTS)
	if pkt.Key {
		d.pkt.SetFlags(d.pkt.Flags().Add(astiav.PacketFlagKey))
	}
	err := d.cc.SendPacket(d.pkt)
	d.pkt.Unref()
	if err != nil && !errors.Is(err, astiav.ErrEagain) {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	var out []*Frame
	for {
		af := astiav.AllocFrame()
		if err := d.cc.ReceiveFrame(af); err != nil {
			af.Free()
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return out, nil
			}
			return out, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		f, err := fromAVFrame(af, MediaTypeVideo)
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
}

// Flush reopens the context, which drops every buffered frame.
func (d *ffmpegDecoder) Flush() {
	if d.cc != nil {
		d.cc.Free()
		d.cc = nil
	}
	d.err = d.open()
}

func (d *ffmpegDecoder) Close() error {
	if d.cc != nil {
		d.cc.Free()
		d.cc = nil
	}
	if d.pkt != nil {
		d.pkt.Free()
		d.pkt = nil
	}
	return nil
}

// --- Encoding ---

// ffmpegEncoderInfo describes a libavcodec encoder. Sample rates are left
// open; fixed frame size audio encoders get their input rechunked.
func ffmpegEncoderInfo(c *astiav.Codec) *Encoder {
	if c == nil {
		return nil
	}
	e := &Encoder{
		Name:      c.Name(),
		CodecID:   CodecID(c.ID()),
		MediaType: MediaType(c.MediaType()),
		Provider:  ProviderFFmpeg,
	}
	for _, p := range c.PixelFormats() {
		e.Caps.PixelFormats = append(e.Caps.PixelFormats, PixelFormat(p))
	}
	for _, s := range c.SampleFormats() {
		e.Caps.SampleFormats = append(e.Caps.SampleFormats, SampleFormat(s))
	}
	for _, l := range c.ChannelLayouts() {
		for _, known := range avChannelLayouts {
			if known.av.Equal(l) {
				e.Caps.ChannelLayouts = append(e.Caps.ChannelLayouts, known.layout)
			}
		}
	}
	e.alloc = func() (EncoderContext, error) {
		return &ffmpegEncoder{codec: c, pkt: astiav.AllocPacket()}, nil
	}
	return e
}

type ffmpegEncoder struct {
	codec  *astiav.Codec
	cc     *astiav.CodecContext
	pkt    *astiav.Packet
	params EncoderParams
}

func (e *ffmpegEncoder) Open(params EncoderParams, opts Options) (Options, error) {
	cc := astiav.AllocCodecContext(e.codec)
	if cc == nil {
		return opts, fmt.Errorf("allocate %s context", e.codec.Name())
	}
	cc.SetTimeBase(avRational(params.TimeBase))
	switch params.MediaType {
	case MediaTypeVideo:
		cc.SetWidth(params.Width)
		cc.SetHeight(params.Height)
		cc.SetPixelFormat(astiav.PixelFormat(params.PixelFormat))
		if !params.SampleAspectRatio.IsZero() {
			cc.SetSampleAspectRatio(avRational(params.SampleAspectRatio))
		}
		if !params.FrameRate.IsZero() {
			cc.SetFramerate(avRational(params.FrameRate))
		}
	case MediaTypeAudio:
		layout, err := avChannelLayout(params.ChannelLayout)
		if err != nil {
			cc.Free()
			return opts, err
		}
		cc.SetSampleFormat(astiav.SampleFormat(params.SampleFormat))
		cc.SetSampleRate(params.SampleRate)
		cc.SetChannelLayout(layout)
	}
	if params.Flags.Has(EncoderFlagGlobalHeader) {
		cc.SetFlags(cc.Flags().Add(astiav.CodecContextFlagGlobalHeader))
	}

	dict := toDictionary(opts)
	defer dict.Free()
	if err := cc.Open(e.codec, dict); err != nil {
		cc.Free()
		return opts, err
	}
	e.cc, e.params = cc, params
	return fromDictionary(dict), nil
}

func (e *ffmpegEncoder) SendFrame(f *Frame) error {
	if f == nil {
		return mapAVError(e.cc.SendFrame(nil))
	}
	af, owned, err := toAVFrame(f)
	if err != nil {
		return err
	}
	if owned {
		defer af.Free()
	}
	return mapAVError(e.cc.SendFrame(af))
}

func (e *ffmpegEncoder) ReceivePacket() (*Packet, error) {
	if err := e.cc.ReceivePacket(e.pkt); err != nil {
		return nil, mapAVError(err)
	}
	defer e.pkt.Unref()
	return &Packet{
		Data:     append([]byte(nil), e.pkt.Data()...),
		PTS:      e.pkt.Pts(),
		DTS:      e.pkt.Dts(),
		Duration: e.pkt.Duration(),
		Key:      e.pkt.Flags().Has(astiav.PacketFlagKey),
	}, nil
}

func (e *ffmpegEncoder) TimeBase() Rational { return fromAVRational(e.cc.TimeBase()) }
func (e *ffmpegEncoder) FrameSize() int     { return e.cc.FrameSize() }

func (e *ffmpegEncoder) Parameters() CodecParameters {
	p := CodecParameters{
		CodecID:   CodecID(e.codec.ID()),
		MediaType: e.params.MediaType,
		BitRate:   e.cc.BitRate(),
		Extradata: append([]byte(nil), e.cc.ExtraData()...),
	}
	switch e.params.MediaType {
	case MediaTypeVideo:
		p.Width, p.Height = e.cc.Width(), e.cc.Height()
		p.PixelFormat = PixelFormat(e.cc.PixelFormat())
		p.SampleAspectRatio = e.params.SampleAspectRatio
		p.FieldMode = e.params.FieldMode
	case MediaTypeAudio:
		p.SampleFormat = SampleFormat(e.cc.SampleFormat())
		p.SampleRate = e.cc.SampleRate()
		p.ChannelLayout = e.params.ChannelLayout
		p.FrameSize = e.cc.FrameSize()
	}
	return p
}

func (e *ffmpegEncoder) Close() error {
	if e.cc != nil {
		e.cc.Free()
		e.cc = nil
	}
	if e.pkt != nil {
		e.pkt.Free()
		e.pkt = nil
	}
	return nil
}

// --- Options ---

func toDictionary(opts Options) *astiav.Dictionary {
	d := astiav.NewDictionary()
	for _, k := range opts.Keys() {
		_ = d.Set(k, opts[k], 0)
	}
	return d
}

// fromDictionary returns what libav left in d, i.e. the options it did
// not consume.
func fromDictionary(d *astiav.Dictionary) Options {
	out := Options{}
	var e *astiav.DictionaryEntry
	for {
		e = d.Get("", e, astiav.NewDictionaryFlags(astiav.DictionaryFlagIgnoreSuffix))
		if e == nil {
			return out
		}
		out[e.Key()] = e.Value()
	}
}

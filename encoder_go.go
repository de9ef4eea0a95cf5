package media

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

func init() {
	registerEncoder(&Encoder{
		Name:      "rawvideo",
		CodecID:   CodecIDRawVideo,
		MediaType: MediaTypeVideo,
		Provider:  ProviderGo,
		Caps: EncoderCaps{PixelFormats: []PixelFormat{
			PixelFormatYUV420P, PixelFormatYUV422P, PixelFormatYUV444P, PixelFormatYUV411P,
			PixelFormatYUV410P, PixelFormatYUVA420P, PixelFormatGray8, PixelFormatBGRA,
			PixelFormatRGBA, PixelFormatARGB, PixelFormatABGR, PixelFormatRGB24,
			PixelFormatBGR24, PixelFormatNV12, PixelFormatNV21, PixelFormatYUYV422,
			PixelFormatUYVY422,
		}},
		alloc: func() (EncoderContext, error) { return &rawVideoEncoder{}, nil },
	})
	for _, pcm := range []struct {
		id     CodecID
		format SampleFormat
	}{
		{CodecIDPCMS16LE, SampleFormatS16},
		{CodecIDPCMS32LE, SampleFormatS32},
		{CodecIDPCMF32LE, SampleFormatFLT},
	} {
		registerEncoder(&Encoder{
			Name:      pcm.id.String(),
			CodecID:   pcm.id,
			MediaType: MediaTypeAudio,
			Provider:  ProviderGo,
			Caps:      EncoderCaps{SampleFormats: []SampleFormat{pcm.format}, VariableFrameSize: true},
			alloc: func() (EncoderContext, error) {
				return &pcmEncoder{id: pcm.id, format: pcm.format}, nil
			},
		})
	}
}

// packetFIFO is the one-in one-out buffering shared by the Go encoders.
type packetFIFO struct {
	pending  []*Packet
	draining bool
}

func (q *packetFIFO) push(p *Packet) { q.pending = append(q.pending, p) }

func (q *packetFIFO) receive() (*Packet, error) {
	if len(q.pending) == 0 {
		if q.draining {
			return nil, io.EOF
		}
		return nil, ErrAgain
	}
	p := q.pending[0]
	q.pending = q.pending[1:]
	return p, nil
}

// rawVideoEncoder packs frames into tightly packed planes.
type rawVideoEncoder struct {
	packetFIFO
	params EncoderParams
	planes []Plane
	size   int
}

func (e *rawVideoEncoder) Open(params EncoderParams, opts Options) (Options, error) {
	e.params = params
	e.planes = tightPlanes(params.PixelFormat, params.Width, params.Height)
	if e.planes == nil {
		return opts, fmt.Errorf("%w: rawvideo cannot carry %s", ErrNotSupported, params.PixelFormat)
	}
	for _, p := range e.planes {
		e.size += p.Size()
	}
	return opts.Clone(), nil
}

func (e *rawVideoEncoder) SendFrame(f *Frame) error {
	if f == nil {
		e.draining = true
		return nil
	}
	if e.draining {
		return io.EOF
	}
	if f.PixelFormat != e.params.PixelFormat || f.Width != e.params.Width || f.Height != e.params.Height {
		return fmt.Errorf("rawvideo: frame is %s %dx%d, encoder expects %s %dx%d",
			f.PixelFormat, f.Width, f.Height, e.params.PixelFormat, e.params.Width, e.params.Height)
	}
	buf := make([]byte, 0, e.size)
	for i, p := range e.planes {
		for y := 0; y < p.Height; y++ {
			off := y * f.Linesize[i]
			buf = append(buf, f.Data[i][off:off+p.Linesize]...)
		}
	}
	e.push(&Packet{Data: buf, PTS: f.PTS, DTS: f.PTS, Duration: 1, Key: true})
	return nil
}

func (e *rawVideoEncoder) ReceivePacket() (*Packet, error) { return e.receive() }
func (e *rawVideoEncoder) TimeBase() Rational              { return e.params.TimeBase }
func (e *rawVideoEncoder) FrameSize() int                  { return 0 }
func (e *rawVideoEncoder) Close() error                    { return nil }

func (e *rawVideoEncoder) Parameters() CodecParameters {
	return CodecParameters{
		CodecID:           CodecIDRawVideo,
		MediaType:         MediaTypeVideo,
		Width:             e.params.Width,
		Height:            e.params.Height,
		PixelFormat:       e.params.PixelFormat,
		SampleAspectRatio: e.params.SampleAspectRatio,
		FieldMode:         e.params.FieldMode,
		BitRate:           int64(e.size) * 8 * int64(max(1, int(e.params.FrameRate.Float64()+0.5))),
	}
}

// pcmEncoder serializes interleaved samples little-endian.
type pcmEncoder struct {
	packetFIFO
	id     CodecID
	format SampleFormat
	params EncoderParams
}

func (e *pcmEncoder) Open(params EncoderParams, opts Options) (Options, error) {
	if params.SampleFormat != e.format {
		return opts, fmt.Errorf("%s: unsupported sample format %s", e.id, params.SampleFormat)
	}
	if params.SampleRate <= 0 || params.ChannelLayout.Channels() == 0 {
		return opts, fmt.Errorf("%s: invalid rate %d or layout %s", e.id, params.SampleRate, params.ChannelLayout)
	}
	e.params = params
	return opts.Clone(), nil
}

func (e *pcmEncoder) SendFrame(f *Frame) error {
	if f == nil {
		e.draining = true
		return nil
	}
	if e.draining {
		return io.EOF
	}
	if f.SampleFormat != e.format {
		return fmt.Errorf("%s: frame has sample format %s", e.id, f.SampleFormat)
	}
	n := f.NbSamples * f.ChannelLayout.Channels() * e.format.BytesPerSample()
	data := append([]byte(nil), f.Data[0][:n]...)
	e.push(&Packet{Data: data, PTS: f.PTS, DTS: f.PTS, Duration: int64(f.NbSamples), Key: true})
	return nil
}

func (e *pcmEncoder) ReceivePacket() (*Packet, error) { return e.receive() }
func (e *pcmEncoder) TimeBase() Rational              { return e.params.TimeBase }
func (e *pcmEncoder) FrameSize() int                  { return 0 }
func (e *pcmEncoder) Close() error                    { return nil }

func (e *pcmEncoder) Parameters() CodecParameters {
	ch := e.params.ChannelLayout.Channels()
	return CodecParameters{
		CodecID:       e.id,
		MediaType:     MediaTypeAudio,
		SampleFormat:  e.format,
		SampleRate:    e.params.SampleRate,
		ChannelLayout: e.params.ChannelLayout,
		BitRate:       int64(e.params.SampleRate * ch * e.format.BytesPerSample() * 8),
	}
}

// putSample writes v (a full-scale float in [-1, 1]) as one sample of f.
func putSample(b []byte, f SampleFormat, v float64) {
	v = math.Max(-1, math.Min(1, v))
	switch f.Packed() {
	case SampleFormatU8:
		b[0] = uint8(int(v*127) + 128)
	case SampleFormatS16:
		binary.LittleEndian.PutUint16(b, uint16(int16(v*math.MaxInt16)))
	case SampleFormatS32:
		binary.LittleEndian.PutUint32(b, uint32(int32(v*math.MaxInt32)))
	case SampleFormatFLT:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case SampleFormatDBL:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	}
}

// getSample reads one sample of f as a float in [-1, 1].
func getSample(b []byte, f SampleFormat) float64 {
	switch f.Packed() {
	case SampleFormatU8:
		return float64(int(b[0])-128) / 128
	case SampleFormatS16:
		return float64(int16(binary.LittleEndian.Uint16(b))) / (math.MaxInt16 + 1)
	case SampleFormatS32:
		return float64(int32(binary.LittleEndian.Uint32(b))) / (math.MaxInt32 + 1)
	case SampleFormatFLT:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case SampleFormatDBL:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return 0
}

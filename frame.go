// Core frame and packet types used across the media package.
package media

// MediaType mirrors AVMediaType.
type MediaType int32

const (
	MediaTypeUnknown MediaType = -1
	MediaTypeVideo   MediaType = 0
	MediaTypeAudio   MediaType = 1
)

func (t MediaType) String() string {
	switch t {
	case MediaTypeVideo:
		return "video"
	case MediaTypeAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Frame is the native frame shape exchanged between filter graphs,
// encoders and color converters. Video frames use Data/Linesize per plane;
// audio frames hold one plane for packed formats or one per channel for
// planar formats.
type Frame struct {
	MediaType MediaType
	PTS       int64

	// Video
	Width             int
	Height            int
	PixelFormat       PixelFormat
	SampleAspectRatio Rational
	Interlaced        bool
	TopFieldFirst     bool

	// Audio
	NbSamples     int
	SampleFormat  SampleFormat
	SampleRate    int
	ChannelLayout ChannelLayout

	Data     [][]byte
	Linesize []int

	// native holds the libav frame this frame was read from, when the
	// FFmpeg provider produced it. Data may be empty for formats the Go
	// side does not describe.
	native any
}

// NewVideoFrame allocates a frame with 32-byte aligned planes for any
// format the converter understands.
func NewVideoFrame(format PixelFormat, width, height int) *Frame {
	f := &Frame{
		MediaType:   MediaTypeVideo,
		PTS:         NoPTS,
		Width:       width,
		Height:      height,
		PixelFormat: format,
	}
	for _, p := range planeLayout(format, width, height) {
		f.Data = append(f.Data, make([]byte, p.Size()))
		f.Linesize = append(f.Linesize, p.Linesize)
	}
	return f
}

// NewAudioFrame allocates an audio frame holding n samples per channel.
func NewAudioFrame(format SampleFormat, rate int, layout ChannelLayout, n int) *Frame {
	f := &Frame{
		MediaType:     MediaTypeAudio,
		PTS:           NoPTS,
		NbSamples:     n,
		SampleFormat:  format,
		SampleRate:    rate,
		ChannelLayout: layout,
	}
	ch := layout.Channels()
	bps := format.BytesPerSample()
	if format.Planar() {
		for i := 0; i < ch; i++ {
			f.Data = append(f.Data, make([]byte, n*bps))
			f.Linesize = append(f.Linesize, n*bps)
		}
	} else {
		f.Data = [][]byte{make([]byte, n*bps*ch)}
		f.Linesize = []int{n * bps * ch}
	}
	return f
}

// Clone creates a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	c := *f
	c.native = nil
	c.Data = make([][]byte, len(f.Data))
	c.Linesize = append([]int(nil), f.Linesize...)
	for i, p := range f.Data {
		c.Data[i] = append([]byte(nil), p...)
	}
	return &c
}

// ChannelFrame is the frame a channel's mixer hands to its consumers:
// one BGRA image of the channel's size plus interleaved signed 32-bit
// audio samples.
type ChannelFrame struct {
	Image []byte
	Audio []int32
}

// DecodedFrame is a numbered frame produced by a VideoDecoder.
type DecodedFrame struct {
	Number int
	PTS    int64
	Frame  WriteFrame
}

// Packet is a compressed unit of one stream.
type Packet struct {
	Data        []byte
	StreamIndex int
	PTS         int64
	DTS         int64
	Duration    int64
	Key         bool
}

// RescaleTS converts the packet timestamps from one time base to another.
func (p *Packet) RescaleTS(from, to Rational) {
	p.PTS = Rescale(p.PTS, from, to)
	p.DTS = Rescale(p.DTS, from, to)
	if p.Duration > 0 {
		p.Duration = Rescale(p.Duration, from, to)
	}
}

// Clone creates a deep copy of the packet.
func (p *Packet) Clone() *Packet {
	c := *p
	c.Data = append([]byte(nil), p.Data...)
	return &c
}

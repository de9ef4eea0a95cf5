package media

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testVideoCodec CodecID = 0x7fff0001
	testAudioCodec CodecID = 0x7fff0002
)

// testFormat is a small channel format so tests move little data.
var testFormat = VideoFormatDesc{
	Name: "test", Width: 32, Height: 18, SquareWidth: 32, SquareHeight: 18,
	TimeScale: 25, Duration: 1, SampleRate: 48000, Channels: 2, AudioCadence: []int{1920},
}

func testChannelFrame(format VideoFormatDesc) *ChannelFrame {
	return &ChannelFrame{
		Image: make([]byte, format.ImageSize()),
		Audio: make([]int32, format.SamplesForFrame(0)*format.Channels),
	}
}

// recordingEncoder emits one packet per frame and remembers what it saw.
type recordingEncoder struct {
	packetFIFO
	id        CodecID
	mt        MediaType
	frameSize int
	sendErr   error

	params EncoderParams
	opts   Options
	frames []*Frame
}

func (e *recordingEncoder) Open(params EncoderParams, opts Options) (Options, error) {
	e.params, e.opts = params, opts
	return opts.Clone(), nil
}

func (e *recordingEncoder) SendFrame(f *Frame) error {
	if f == nil {
		e.draining = true
		return nil
	}
	if e.sendErr != nil {
		return e.sendErr
	}
	e.frames = append(e.frames, f)
	e.push(&Packet{Data: []byte{byte(len(e.frames))}, PTS: f.PTS, DTS: f.PTS, Key: true})
	return nil
}

func (e *recordingEncoder) ReceivePacket() (*Packet, error) { return e.receive() }
func (e *recordingEncoder) TimeBase() Rational              { return e.params.TimeBase }
func (e *recordingEncoder) FrameSize() int                  { return e.frameSize }
func (e *recordingEncoder) Close() error                    { return nil }

func (e *recordingEncoder) Parameters() CodecParameters {
	return CodecParameters{
		CodecID: e.id, MediaType: e.mt,
		Width: e.params.Width, Height: e.params.Height, PixelFormat: e.params.PixelFormat,
		SampleFormat: e.params.SampleFormat, SampleRate: e.params.SampleRate,
		ChannelLayout: e.params.ChannelLayout, FrameSize: e.frameSize,
	}
}

// testEncoders registers the fake video and audio encoders and collects
// every context they allocate.
type testEncoders struct {
	mu        sync.Mutex
	frameSize int
	sendErr   error
	video     []*recordingEncoder
	audio     []*recordingEncoder
}

func registerTestEncoders(frameSize int, sendErr error) *testEncoders {
	te := &testEncoders{frameSize: frameSize, sendErr: sendErr}
	registerEncoder(&Encoder{
		Name: "testvideo", CodecID: testVideoCodec, MediaType: MediaTypeVideo, Provider: ProviderGo,
		Caps: EncoderCaps{PixelFormats: []PixelFormat{PixelFormatBGRA}},
		alloc: func() (EncoderContext, error) {
			te.mu.Lock()
			defer te.mu.Unlock()
			e := &recordingEncoder{id: testVideoCodec, mt: MediaTypeVideo, sendErr: te.sendErr}
			te.video = append(te.video, e)
			return e, nil
		},
	})
	registerEncoder(&Encoder{
		Name: "testaudio", CodecID: testAudioCodec, MediaType: MediaTypeAudio, Provider: ProviderGo,
		Caps: EncoderCaps{SampleFormats: []SampleFormat{SampleFormatS32}},
		alloc: func() (EncoderContext, error) {
			te.mu.Lock()
			defer te.mu.Unlock()
			e := &recordingEncoder{id: testAudioCodec, mt: MediaTypeAudio, frameSize: te.frameSize}
			te.audio = append(te.audio, e)
			return e, nil
		},
	})
	return te
}

// recordingMux is a Go container that keeps the packets it is given.
type recordingMux struct {
	mu        sync.Mutex
	headers   int
	trailers  int
	packets   []*Packet
	streams   []*MuxStream
	packetErr error
}

func (r *recordingMux) writeHeader(m *goMuxer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.headers++
	r.streams = m.streams
	return nil
}

func (r *recordingMux) writePacket(_ *goMuxer, pkt *Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.packetErr != nil {
		return r.packetErr
	}
	r.packets = append(r.packets, pkt)
	return nil
}

func (r *recordingMux) writeTrailer(*goMuxer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trailers++
	return nil
}

func registerTestMux(name string, flags FormatFlags, video, audio CodecID) *recordingMux {
	rec := &recordingMux{}
	registerOutputFormat(&OutputFormat{
		Name:       name,
		Extensions: []string{name},
		VideoCodec: video,
		AudioCodec: audio,
		Flags:      flags | FormatNoFile,
		Provider:   ProviderGo,
		alloc: func(of *OutputFormat) (Muxer, error) {
			return newGoMuxer(of, rec), nil
		},
	})
	return rec
}

func newTestMuxer(t *testing.T, name string, flags FormatFlags) Muxer {
	t.Helper()
	registerTestMux(name, flags, testVideoCodec, testAudioCodec)
	of, err := FindOutputFormat(name)
	require.NoError(t, err)
	m, err := of.NewMuxer()
	require.NoError(t, err)
	return m
}

func collect(pkts *[]*Packet) func(*Packet) error {
	return func(p *Packet) error {
		*pkts = append(*pkts, p)
		return nil
	}
}

func TestStreamVideo(t *testing.T) {
	te := registerTestEncoders(0, nil)
	mux := newTestMuxer(t, "teststream", 0)

	opts := Options{"codec:v": "testvideo", "tune:v": "zerolatency", "g": "50", "codec:a": "testaudio"}
	s, rest, err := NewStream(mux, ":v", CodecIDRawVideo, testFormat, opts, StreamConfig{})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, MediaTypeVideo, s.MediaType())
	assert.Equal(t, 0, s.Index())
	assert.Equal(t, Options{"g": "50", "codec:a": "testaudio", "tune:v": "zerolatency"}, rest)

	require.Len(t, te.video, 1)
	enc := te.video[0]
	assert.Equal(t, Options{"tune": "zerolatency"}, enc.opts)
	assert.Equal(t, 32, enc.params.Width)
	assert.Equal(t, 18, enc.params.Height)
	assert.Equal(t, PixelFormatBGRA, enc.params.PixelFormat)
	assert.Equal(t, 1.0/25, enc.params.TimeBase.Float64())
	assert.False(t, enc.params.Flags.Has(EncoderFlagGlobalHeader))
	assert.Equal(t, testVideoCodec, s.Track().Params.CodecID)
	assert.Same(t, enc, s.Track().Encoder)

	var pkts []*Packet
	for range 3 {
		require.NoError(t, s.Send(testChannelFrame(testFormat), testFormat, collect(&pkts)))
	}
	assert.Equal(t, int64(3), s.PTS())
	require.NoError(t, s.Send(nil, testFormat, collect(&pkts)))
	assert.True(t, s.Finished())

	require.Len(t, pkts, 3)
	for i, p := range pkts {
		assert.Equal(t, int64(i), p.PTS)
		assert.Equal(t, 0, p.StreamIndex)
	}

	err = s.Send(testChannelFrame(testFormat), testFormat, collect(&pkts))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestStreamAudioFrameSize(t *testing.T) {
	te := registerTestEncoders(1000, nil)
	mux := newTestMuxer(t, "teststream", 0)

	s, _, err := NewStream(mux, ":a", testAudioCodec, testFormat, Options{}, StreamConfig{})
	require.NoError(t, err)
	defer s.Close()

	require.Len(t, te.audio, 1)
	enc := te.audio[0]
	assert.Equal(t, SampleFormatS32, enc.params.SampleFormat)
	assert.Equal(t, 48000, enc.params.SampleRate)
	assert.Equal(t, ChannelLayoutStereo, enc.params.ChannelLayout)
	assert.Equal(t, Rational{Num: 1, Den: 48000}, enc.params.TimeBase)

	var pkts []*Packet
	require.NoError(t, s.Send(testChannelFrame(testFormat), testFormat, collect(&pkts)))
	require.Len(t, pkts, 1)
	require.NoError(t, s.Send(testChannelFrame(testFormat), testFormat, collect(&pkts)))
	require.Len(t, pkts, 3)
	assert.Equal(t, int64(3840), s.PTS())

	// Frames without samples do not advance the clock.
	require.NoError(t, s.Send(&ChannelFrame{Image: make([]byte, testFormat.ImageSize())}, testFormat, collect(&pkts)))
	assert.Equal(t, int64(3840), s.PTS())

	require.NoError(t, s.Send(nil, testFormat, collect(&pkts)))
	require.Len(t, pkts, 4)
	var pts []int64
	for _, p := range pkts {
		pts = append(pts, p.PTS)
	}
	assert.Equal(t, []int64{0, 1000, 2000, 3000}, pts)
	assert.Equal(t, 840, enc.frames[3].NbSamples)
}

func TestStreamGlobalHeader(t *testing.T) {
	te := registerTestEncoders(0, nil)
	mux := newTestMuxer(t, "testglobal", FormatGlobalHeader)

	s, _, err := NewStream(mux, ":v", testVideoCodec, testFormat, Options{}, StreamConfig{})
	require.NoError(t, err)
	defer s.Close()
	require.Len(t, te.video, 1)
	assert.True(t, te.video[0].params.Flags.Has(EncoderFlagGlobalHeader))
}

func TestStreamShortImage(t *testing.T) {
	registerTestEncoders(0, nil)
	mux := newTestMuxer(t, "testshortimage", 0)

	s, _, err := NewStream(mux, ":v", testVideoCodec, testFormat, Options{}, StreamConfig{})
	require.NoError(t, err)
	defer s.Close()

	var pkts []*Packet
	err = s.Send(&ChannelFrame{Image: make([]byte, testFormat.ImageSize()-1)}, testFormat, collect(&pkts))
	assert.ErrorIs(t, err, ErrShortFrame)
	err = s.Send(&ChannelFrame{Audio: make([]int32, 3840)}, testFormat, collect(&pkts))
	assert.ErrorIs(t, err, ErrShortFrame)
	assert.Empty(t, pkts)
	assert.Zero(t, s.PTS(), "rejected frames do not advance the clock")
}

func TestStreamErrors(t *testing.T) {
	registerTestEncoders(0, nil)

	tests := []struct {
		name   string
		suffix string
		codec  CodecID
		opts   Options
		want   error
	}{
		{"unknown encoder", ":v", testVideoCodec, Options{"codec:v": "nosuchencoder"}, ErrEncoderNotFound},
		{"unknown default codec", ":v", CodecID(0x7ffffff0), Options{}, ErrEncoderNotFound},
		{"filter output type", ":v", testVideoCodec, Options{"filter:v": "volume=0.5"}, ErrMediaType},
		{"two outputs", ":v", testVideoCodec, Options{"filter:v": "split"}, ErrFilterGraph},
		{"bad filter", ":a", testAudioCodec, Options{"filter:a": "nosuchfilter"}, ErrFilterNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestMuxer(t, "testerrors", 0)
			_, rest, err := NewStream(mux, tt.suffix, tt.codec, testFormat, tt.opts, StreamConfig{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrConfig)
			assert.Equal(t, tt.opts, rest)
		})
	}
}

func TestStreamEncoderFailure(t *testing.T) {
	boom := errors.New("encoder exploded")
	registerTestEncoders(0, boom)
	mux := newTestMuxer(t, "testfail", 0)

	s, _, err := NewStream(mux, ":v", testVideoCodec, testFormat, Options{}, StreamConfig{})
	require.NoError(t, err)
	defer s.Close()

	err = s.Send(testChannelFrame(testFormat), testFormat, func(*Packet) error { return nil })
	assert.ErrorIs(t, err, boom)
}

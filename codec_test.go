package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecID_String(t *testing.T) {
	tests := []struct {
		codec CodecID
		want  string
	}{
		{CodecIDH264, "h264"},
		{CodecIDRawVideo, "rawvideo"},
		{CodecIDPCMS16LE, "pcm_s16le"},
		{CodecIDAAC, "aac"},
		{CodecIDNone, "none"},
		{CodecID(99999), "none"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.codec.String())
		})
	}
}

func TestCodecID_MediaType(t *testing.T) {
	assert.Equal(t, MediaTypeVideo, CodecIDH264.MediaType())
	assert.Equal(t, MediaTypeAudio, CodecIDMP2.MediaType())
	assert.Equal(t, MediaTypeUnknown, CodecIDNone.MediaType())
}

func TestCodecByName(t *testing.T) {
	id, ok := CodecByName("PCM_S32LE")
	require.True(t, ok)
	assert.Equal(t, CodecIDPCMS32LE, id)

	_, ok = CodecByName("libx264")
	assert.False(t, ok)
}

func TestSampleFormat(t *testing.T) {
	tests := []struct {
		format SampleFormat
		name   string
		bytes  int
		planar bool
		packed SampleFormat
	}{
		{SampleFormatU8, "u8", 1, false, SampleFormatU8},
		{SampleFormatS16, "s16", 2, false, SampleFormatS16},
		{SampleFormatS32, "s32", 4, false, SampleFormatS32},
		{SampleFormatFLTP, "fltp", 4, true, SampleFormatFLT},
		{SampleFormatDBLP, "dblp", 8, true, SampleFormatDBL},
		{SampleFormatS16P, "s16p", 2, true, SampleFormatS16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.format.String())
			assert.Equal(t, tt.format, ParseSampleFormat(tt.name))
			assert.Equal(t, tt.bytes, tt.format.BytesPerSample())
			assert.Equal(t, tt.planar, tt.format.Planar())
			assert.Equal(t, tt.packed, tt.format.Packed())
		})
	}
	assert.Equal(t, SampleFormatNone, ParseSampleFormat("s24"))
}

func TestChannelLayout(t *testing.T) {
	tests := []struct {
		name     string
		layout   ChannelLayout
		channels int
	}{
		{"mono", ChannelLayoutMono, 1},
		{"stereo", ChannelLayoutStereo, 2},
		{"3.0", ChannelLayoutSurround, 3},
		{"4.0", ChannelLayoutQuad, 4},
		{"5.0(side)", ChannelLayout5Point0, 5},
		{"5.1(side)", ChannelLayout5Point1, 6},
		{"6.1", ChannelLayout6Point1, 7},
		{"7.1", ChannelLayout7Point1, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.layout.String())
			assert.Equal(t, tt.layout, ParseChannelLayout(tt.name))
			assert.Equal(t, tt.channels, tt.layout.Channels())
			assert.Equal(t, tt.layout, DefaultChannelLayout(tt.channels))
		})
	}

	assert.Equal(t, ChannelLayout5Point1, ParseChannelLayout("5.1"))
	assert.Equal(t, ChannelLayoutStereo, ParseChannelLayout("2c"))
	assert.Equal(t, 16, ParseChannelLayout("16 channels").Channels())
	assert.Equal(t, "16 channels", DefaultChannelLayout(16).String())
	assert.Equal(t, ChannelLayout(0), ParseChannelLayout("bogus"))
}

func TestRescale(t *testing.T) {
	tests := []struct {
		name   string
		a      int64
		bq, cq Rational
		want   int64
	}{
		{"frames to 90k", 3, Rational{1, 25}, Rational{1, 90000}, 10800},
		{"90k to ms", 3003, Rational{1, 90000}, Rational{1, 1000}, 33},
		{"round half away", 1, Rational{1, 2}, Rational{1, 1}, 1},
		{"negative round half away", -1, Rational{1, 2}, Rational{1, 1}, -1},
		{"ntsc", 1, Rational{1001, 30000}, Rational{1, 48000}, 1602},
		{"nopts", NoPTS, Rational{1, 25}, Rational{1, 50}, NoPTS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Rescale(tt.a, tt.bq, tt.cq))
		})
	}
}

func TestRational(t *testing.T) {
	assert.Equal(t, Rational{2, 3}, Rational{4, 6}.Reduce())
	assert.Equal(t, Rational{-2, 3}, Rational{4, -6}.Reduce())
	assert.True(t, Rational{0, 1}.IsZero())
	assert.Equal(t, Rational{25, 1}, Rational{1, 25}.Invert())

	for _, s := range []string{"30000/1001", "30000:1001"} {
		r, err := ParseRational(s)
		require.NoError(t, err)
		assert.Equal(t, Rational{30000, 1001}, r)
	}
	r, err := ParseRational("25")
	require.NoError(t, err)
	assert.Equal(t, Rational{25, 1}, r)
	_, err = ParseRational("x")
	assert.Error(t, err)
}

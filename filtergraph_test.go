package media

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilterGraphLinear(t *testing.T) {
	d, err := ParseFilterGraph("scale=1280:720, setsar=1")
	require.NoError(t, err)
	require.Len(t, d.Chains, 1)
	require.Len(t, d.Chains[0], 2)
	assert.Equal(t, FilterNode{Name: "scale", Args: "1280:720"}, d.Chains[0][0])
	assert.Equal(t, "setsar", d.Chains[0][1].Name)
	assert.True(t, d.Linear())

	assert.Equal(t, []FilterPad{{MediaType: MediaTypeVideo}}, d.Inputs)
	assert.Equal(t, []FilterPad{{MediaType: MediaTypeVideo, Node: 1}}, d.Outputs)
	assert.Equal(t, "scale=1280:720,setsar=1", d.String())
}

func TestParseFilterGraphLabels(t *testing.T) {
	d, err := ParseFilterGraph("[in]split[a][b];[a]hflip[l];[b]vflip[r];[l][r]hstack")
	require.NoError(t, err)
	assert.Len(t, d.Chains, 4)
	assert.False(t, d.Linear())

	require.Len(t, d.Inputs, 1)
	assert.Equal(t, "in", d.Inputs[0].Label)
	require.Len(t, d.Outputs, 1)
	assert.Equal(t, 3, d.Outputs[0].Chain)

	text, err := d.Attach("")
	require.NoError(t, err)
	assert.Equal(t, "[in]split[a][b];[a]hflip[l];[b]vflip[r];[l][r]hstack[graph_out];[graph_out]null[out]", text)
}

func TestParseFilterGraphQuotedArgs(t *testing.T) {
	d, err := ParseFilterGraph("drawbox=x=10:y=10:color='red@0.5,x',hflip")
	require.NoError(t, err)
	require.Len(t, d.Chains[0], 2)
	assert.Equal(t, "x=10:y=10:color='red@0.5,x'", d.Chains[0][0].Args)
	assert.Equal(t, "hflip", d.Chains[0][1].Name)
}

func TestParseFilterGraphErrors(t *testing.T) {
	tests := []struct {
		name string
		spec string
		want error
	}{
		{"unknown filter", "nosuchfilter=1", ErrFilterNotFound},
		{"unterminated label", "[in scale=1:1", ErrFilterGraph},
		{"empty label", "[]scale=1:1", ErrFilterGraph},
		{"missing name", "scale=1:1,", ErrFilterGraph},
		{"media type mismatch", "hflip,volume=2", ErrMediaType},
		{"too many labels", "[a][b]hflip", ErrFilterGraph},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFilterGraph(tt.spec)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestFilterGraphAttach(t *testing.T) {
	d, err := ParseFilterGraph("scale=1280:720")
	require.NoError(t, err)
	text, err := d.Attach("format=pix_fmts=yuv420p")
	require.NoError(t, err)
	assert.Equal(t, "[in]scale=1280:720[graph_out];[graph_out]format=pix_fmts=yuv420p[out]", text)
	assert.Equal(t, "scale=1280:720", d.String(), "Attach must not modify the parsed graph")

	a, err := ParseFilterGraph("volume=0.5")
	require.NoError(t, err)
	text, err = a.Attach("")
	require.NoError(t, err)
	assert.Equal(t, "[in]volume=0.5[graph_out];[graph_out]anull[out]", text)

	split, err := ParseFilterGraph("split")
	require.NoError(t, err)
	_, err = split.Attach("")
	assert.ErrorIs(t, err, ErrConfig)
}

func TestSinkConstraintsFilter(t *testing.T) {
	tests := []struct {
		name string
		c    SinkConstraints
		mt   MediaType
		want string
	}{
		{"empty video", SinkConstraints{}, MediaTypeVideo, ""},
		{"empty audio", SinkConstraints{}, MediaTypeAudio, ""},
		{"pixel formats", SinkConstraints{PixelFormats: []PixelFormat{PixelFormatYUV420P, PixelFormatNV12}},
			MediaTypeVideo, "format=pix_fmts=yuv420p|nv12"},
		{"audio", SinkConstraints{
			SampleFormats:  []SampleFormat{SampleFormatFLTP},
			ChannelLayouts: []ChannelLayout{ChannelLayoutStereo, ChannelLayout5Point1},
			SampleRates:    []int{48000, 44100},
		}, MediaTypeAudio, "aformat=sample_fmts=fltp:channel_layouts=stereo|5.1(side):sample_rates=48000|44100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.constraintFilter(tt.mt))
		})
	}
}

func TestLinkParamsBufferArgs(t *testing.T) {
	v := LinkParams{
		MediaType:         MediaTypeVideo,
		TimeBase:          Rational{1, 25},
		Width:             1920,
		Height:            1080,
		PixelFormat:       PixelFormatYUV420P,
		SampleAspectRatio: Rational{1, 1},
		FrameRate:         Rational{25, 1},
	}
	assert.Equal(t, "video_size=1920x1080:pix_fmt=0:time_base=1/25:sar=1/1:frame_rate=25/1", v.BufferArgs())

	a := LinkParams{
		MediaType:     MediaTypeAudio,
		TimeBase:      Rational{1, 48000},
		SampleRate:    48000,
		SampleFormat:  SampleFormatS32,
		ChannelLayout: ChannelLayoutStereo,
	}
	assert.Equal(t, "time_base=1/48000:sample_rate=48000:sample_fmt=s32:channel_layout=stereo", a.BufferArgs())
}

func TestFilterArg(t *testing.T) {
	v, ok := filterArg("1280:h=720", "w", 0)
	assert.True(t, ok)
	assert.Equal(t, "1280", v)

	v, ok = filterArg("1280:h=720", "h", 1)
	assert.True(t, ok)
	assert.Equal(t, "720", v)

	_, ok = filterArg("", "w", 0)
	assert.False(t, ok)

	assert.Equal(t, []string{"a:b", "c"}, splitUnescaped(`a\:b:c`, ':'))
	assert.Equal(t, 3, argInt("outputs=3", "outputs", 0, 2))
}

func TestGoFilterGraphEOF(t *testing.T) {
	desc, err := ParseFilterGraph("null")
	require.NoError(t, err)
	g, err := newGoFilterGraph(desc)
	require.NoError(t, err)
	require.NoError(t, g.AddSource(LinkParams{
		MediaType:   MediaTypeVideo,
		TimeBase:    Rational{1, 25},
		Width:       2,
		Height:      2,
		PixelFormat: PixelFormatBGRA,
	}))
	require.NoError(t, g.AddSink(MediaTypeVideo, SinkConstraints{}))
	require.NoError(t, g.Configure())

	f := NewVideoFrame(PixelFormatBGRA, 2, 2)
	f.PTS = 7
	require.NoError(t, g.Push(f))
	// The closing pts does not matter, any value ends the stream the same.
	require.NoError(t, g.PushEOF(1<<40))
	assert.ErrorIs(t, g.Push(f), io.EOF)

	out, err := g.Pull()
	require.NoError(t, err)
	assert.Equal(t, int64(7), out.PTS)
	_, err = g.Pull()
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, g.Close())
}

package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVideoFrame(t *testing.T) {
	f := NewVideoFrame(PixelFormatYUV420P, 64, 36)
	require.Len(t, f.Data, 3)
	assert.Equal(t, []int{64, 32, 32}, f.Linesize)
	assert.Len(t, f.Data[0], 64*36)
	assert.Len(t, f.Data[1], 32*18)
	assert.Equal(t, NoPTS, f.PTS)
	assert.Equal(t, MediaTypeVideo, f.MediaType)
}

func TestNewAudioFrame(t *testing.T) {
	tests := []struct {
		name     string
		format   SampleFormat
		layout   ChannelLayout
		n        int
		planes   int
		linesize int
	}{
		{"packed s32 stereo", SampleFormatS32, ChannelLayoutStereo, 1920, 1, 1920 * 4 * 2},
		{"planar fltp 5.1", SampleFormatFLTP, ChannelLayout5Point1, 1024, 6, 1024 * 4},
		{"packed s16 mono", SampleFormatS16, ChannelLayoutMono, 10, 1, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewAudioFrame(tt.format, 48000, tt.layout, tt.n)
			require.Len(t, f.Data, tt.planes)
			for i := range f.Data {
				assert.Len(t, f.Data[i], tt.linesize)
				assert.Equal(t, tt.linesize, f.Linesize[i])
			}
			assert.Equal(t, tt.n, f.NbSamples)
		})
	}
}

func TestFrameClone(t *testing.T) {
	f := NewVideoFrame(PixelFormatBGRA, 4, 4)
	f.Data[0][0] = 7
	f.PTS = 3

	c := f.Clone()
	c.Data[0][0] = 9
	c.Linesize[0] = 1

	assert.Equal(t, byte(7), f.Data[0][0])
	assert.Equal(t, 32, f.Linesize[0])
	assert.Equal(t, int64(3), c.PTS)
}

func TestPacketRescaleTS(t *testing.T) {
	p := &Packet{PTS: 2, DTS: 1, Duration: 1}
	p.RescaleTS(Rational{1, 25}, Rational{1, 90000})
	assert.Equal(t, int64(7200), p.PTS)
	assert.Equal(t, int64(3600), p.DTS)
	assert.Equal(t, int64(3600), p.Duration)

	p = &Packet{PTS: NoPTS, DTS: NoPTS}
	p.RescaleTS(Rational{1, 25}, Rational{1, 90000})
	assert.Equal(t, NoPTS, p.PTS)
	assert.Equal(t, int64(0), p.Duration)
}

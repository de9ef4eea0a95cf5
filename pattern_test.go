package media

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func patternFormat(w, h int) VideoFormatDesc {
	return VideoFormatDesc{
		Name: "test", Width: w, Height: h, SquareWidth: w, SquareHeight: h,
		TimeScale: 1000, Duration: 1, SampleRate: 48000, Channels: 2,
		AudioCadence: []int{3, 2},
	}
}

func pixelAt(f *ChannelFrame, w, x, y int) [4]byte {
	i := (y*w + x) * 4
	return [4]byte(f.Image[i : i+4])
}

func TestPatternSourcePictures(t *testing.T) {
	tests := []struct {
		name   string
		config PatternConfig
		x, y   int
		want   [4]byte
	}{
		{"solid", PatternConfig{Pattern: PatternSolidColor, SolidR: 10, SolidG: 20, SolidB: 30}, 5, 3, [4]byte{30, 20, 10, 255}},
		{"bars white", PatternConfig{Pattern: PatternColorBars}, 0, 0, [4]byte{192, 192, 192, 255}},
		{"bars yellow", PatternConfig{Pattern: PatternColorBars}, 1, 0, [4]byte{0, 192, 192, 255}},
		{"bars black", PatternConfig{Pattern: PatternColorBars}, 7, 3, [4]byte{16, 16, 16, 255}},
		{"gradient left", PatternConfig{Pattern: PatternGradient}, 0, 0, [4]byte{0, 0, 0, 255}},
		{"gradient right", PatternConfig{Pattern: PatternGradient}, 4, 0, [4]byte{127, 127, 127, 255}},
		{"checker light", PatternConfig{Pattern: PatternCheckerboard, CheckerSize: 2}, 1, 1, [4]byte{235, 235, 235, 255}},
		{"checker dark", PatternConfig{Pattern: PatternCheckerboard, CheckerSize: 2}, 2, 1, [4]byte{16, 16, 16, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Format = patternFormat(8, 4)
			f := NewPatternSource(tt.config).Next()
			require.Len(t, f.Image, 8*4*4)
			assert.Equal(t, tt.want, pixelAt(f, 8, tt.x, tt.y))
		})
	}
}

func TestPatternSourceMovingBox(t *testing.T) {
	s := NewPatternSource(PatternConfig{Format: patternFormat(64, 64), Pattern: PatternMovingBox})
	first := s.Next()
	// Frame 0 puts the box right of the centre.
	assert.Equal(t, [4]byte{235, 235, 235, 255}, pixelAt(first, 64, 44, 28))
	assert.Equal(t, [4]byte{0, 0, 192, 255}, pixelAt(first, 64, 43, 28), "red bar left of the box")

	var second *ChannelFrame
	for range 20 {
		second = s.Next()
	}
	assert.NotEqual(t, first.Image, second.Image)
}

func TestPatternSourceTone(t *testing.T) {
	s := NewPatternSource(PatternConfig{Format: patternFormat(2, 2), Pattern: PatternSolidColor})
	f0, f1 := s.Next(), s.Next()
	require.Len(t, f0.Audio, 3*2)
	require.Len(t, f1.Audio, 2*2)

	assert.Zero(t, f0.Audio[0], "phase starts at zero")
	assert.NotZero(t, f0.Audio[2])
	gain := math.Pow(10, -20.0/20) * math.MaxInt32
	for i := 0; i < len(f0.Audio); i += 2 {
		assert.Equal(t, f0.Audio[i], f0.Audio[i+1], "channels carry the same tone")
		assert.LessOrEqual(t, math.Abs(float64(f0.Audio[i])), gain)
	}

	want := int32(gain * math.Sin(3*2*math.Pi*1000/48000))
	assert.InDelta(t, float64(want), float64(f1.Audio[0]), 2, "phase continues across frames")
}

func TestPatternSourceSilence(t *testing.T) {
	s := NewPatternSource(PatternConfig{Format: patternFormat(2, 2), ToneHz: -1})
	for _, v := range s.Next().Audio {
		assert.Zero(t, v)
	}
}

func TestPatternSourceRun(t *testing.T) {
	s := NewPatternSource(PatternConfig{Format: patternFormat(4, 4)})
	n := 0
	err := s.Run(context.Background(), func(f *ChannelFrame) bool {
		n++
		return n < 3
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = s.Run(ctx, func(*ChannelFrame) bool { return true })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPatternTypeString(t *testing.T) {
	assert.Equal(t, "ColorBars", PatternColorBars.String())
	assert.Equal(t, "MovingBox", PatternMovingBox.String())
	assert.Equal(t, "Unknown", PatternType(42).String())
}

func TestVideoFormatByName(t *testing.T) {
	f, ok := VideoFormatByName("pal")
	require.True(t, ok)
	assert.Equal(t, "PAL", f.Name)
	assert.Equal(t, Rational{25000, 1000}, f.FrameRate())
	assert.Equal(t, Rational{64, 45}, f.SampleAspectRatio())
	assert.Equal(t, 720*576*4, f.ImageSize())

	f.AudioCadence[0] = 1
	again, _ := VideoFormatByName("PAL")
	assert.Equal(t, 1920, again.SamplesForFrame(7), "lookups return a copy of the cadence")

	ntsc, ok := VideoFormatByName("1080i5994")
	require.True(t, ok)
	assert.Equal(t, []int{1602, 1601, 1602, 1601, 1602, 1602}, []int{
		ntsc.SamplesForFrame(0), ntsc.SamplesForFrame(1), ntsc.SamplesForFrame(2),
		ntsc.SamplesForFrame(3), ntsc.SamplesForFrame(4), ntsc.SamplesForFrame(5),
	})

	_, ok = VideoFormatByName("4320p")
	assert.False(t, ok)
	assert.Contains(t, VideoFormats(), "2160p5000")
}

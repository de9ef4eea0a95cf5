package media

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingFrame(start, n int, pts int64) *Frame {
	f := NewAudioFrame(SampleFormatS16, 48000, ChannelLayoutStereo, n)
	f.PTS = pts
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(f.Data[0][i*4:], uint16(start+i))
		binary.LittleEndian.PutUint16(f.Data[0][i*4+2:], uint16(start+i))
	}
	return f
}

func TestAudioFrameSizer(t *testing.T) {
	s := NewAudioFrameSizer(1024)
	assert.Equal(t, 1024, s.Size())

	s.Push(countingFrame(0, 960, 0))
	assert.Nil(t, s.Pop(false))
	s.Push(countingFrame(960, 960, 960))
	assert.Equal(t, 1920, s.Buffered())

	f := s.Pop(false)
	require.NotNil(t, f)
	assert.Equal(t, 1024, f.NbSamples)
	assert.Equal(t, int64(0), f.PTS)
	assert.Equal(t, uint16(1023), binary.LittleEndian.Uint16(f.Data[0][1023*4:]))
	assert.Nil(t, s.Pop(false))

	last := s.Pop(true)
	require.NotNil(t, last)
	assert.Equal(t, 896, last.NbSamples)
	assert.Equal(t, int64(1024), last.PTS)
	assert.Equal(t, uint16(1024), binary.LittleEndian.Uint16(last.Data[0]))
	assert.Zero(t, s.Buffered())
	assert.Nil(t, s.Pop(true))
}

func TestAudioFrameSizerPlanar(t *testing.T) {
	s := NewAudioFrameSizer(4)
	f := NewAudioFrame(SampleFormatFLTP, 48000, ChannelLayoutStereo, 6)
	f.PTS = 100
	f.Data[1][0] = 0xAB
	s.Push(f)
	s.Push(nil)

	out := s.Pop(false)
	require.NotNil(t, out)
	require.Len(t, out.Data, 2)
	assert.Len(t, out.Data[0], 16)
	assert.Equal(t, byte(0xAB), out.Data[1][0])
	assert.Equal(t, int64(100), out.PTS)
	assert.Equal(t, int64(104), s.Pop(true).PTS)
}

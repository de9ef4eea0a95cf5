package media

import (
	"math/bits"
	"strings"
)

// SampleFormat identifies an audio sample layout. Values mirror
// libavutil's AVSampleFormat.
type SampleFormat int32

const (
	SampleFormatNone SampleFormat = -1
	SampleFormatU8   SampleFormat = 0
	SampleFormatS16  SampleFormat = 1
	SampleFormatS32  SampleFormat = 2
	SampleFormatFLT  SampleFormat = 3
	SampleFormatDBL  SampleFormat = 4
	SampleFormatU8P  SampleFormat = 5
	SampleFormatS16P SampleFormat = 6
	SampleFormatS32P SampleFormat = 7
	SampleFormatFLTP SampleFormat = 8
	SampleFormatDBLP SampleFormat = 9
)

var sampleFormatNames = [...]string{"u8", "s16", "s32", "flt", "dbl", "u8p", "s16p", "s32p", "fltp", "dblp"}

func (f SampleFormat) String() string {
	if f < 0 || int(f) >= len(sampleFormatNames) {
		return "none"
	}
	return sampleFormatNames[f]
}

// ParseSampleFormat returns the format with the given FFmpeg name.
func ParseSampleFormat(name string) SampleFormat {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range sampleFormatNames {
		if n == name {
			return SampleFormat(i)
		}
	}
	return SampleFormatNone
}

// BytesPerSample returns the size of one sample of one channel.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatU8, SampleFormatU8P:
		return 1
	case SampleFormatS16, SampleFormatS16P:
		return 2
	case SampleFormatS32, SampleFormatS32P, SampleFormatFLT, SampleFormatFLTP:
		return 4
	case SampleFormatDBL, SampleFormatDBLP:
		return 8
	default:
		return 0
	}
}

// Planar reports whether each channel lives in its own plane.
func (f SampleFormat) Planar() bool { return f >= SampleFormatU8P && f <= SampleFormatDBLP }

// Packed returns the interleaved variant of f.
func (f SampleFormat) Packed() SampleFormat {
	if f.Planar() {
		return f - SampleFormatU8P
	}
	return f
}

// ChannelLayout is a speaker position mask, as in AV_CH_LAYOUT_*.
type ChannelLayout uint64

const (
	ChannelFrontLeft          ChannelLayout = 0x1
	ChannelFrontRight         ChannelLayout = 0x2
	ChannelFrontCenter        ChannelLayout = 0x4
	ChannelLowFrequency       ChannelLayout = 0x8
	ChannelBackLeft           ChannelLayout = 0x10
	ChannelBackRight          ChannelLayout = 0x20
	ChannelFrontLeftOfCenter  ChannelLayout = 0x40
	ChannelFrontRightOfCenter ChannelLayout = 0x80
	ChannelBackCenter         ChannelLayout = 0x100
	ChannelSideLeft           ChannelLayout = 0x200
	ChannelSideRight          ChannelLayout = 0x400
)

const (
	ChannelLayoutMono         = ChannelFrontCenter
	ChannelLayoutStereo       = ChannelFrontLeft | ChannelFrontRight
	ChannelLayoutSurround     = ChannelLayoutStereo | ChannelFrontCenter
	ChannelLayoutQuad         = ChannelLayoutSurround | ChannelBackCenter
	ChannelLayout5Point0      = ChannelLayoutSurround | ChannelSideLeft | ChannelSideRight
	ChannelLayout5Point1      = ChannelLayout5Point0 | ChannelLowFrequency
	ChannelLayout6Point1      = ChannelLayout5Point1 | ChannelBackCenter
	ChannelLayout7Point1      = ChannelLayout5Point1 | ChannelBackLeft | ChannelBackRight
	ChannelLayout8Channels    = ChannelLayout7Point1 | ChannelFrontLeftOfCenter
	ChannelLayout7Point1Wide  = ChannelLayout5Point1 | ChannelFrontLeftOfCenter | ChannelFrontRightOfCenter
	channelLayoutDefaultCount = 8
)

var channelLayoutNames = []struct {
	layout ChannelLayout
	name   string
}{
	{ChannelLayoutMono, "mono"},
	{ChannelLayoutStereo, "stereo"},
	{ChannelLayoutSurround, "3.0"},
	{ChannelLayoutQuad, "4.0"},
	{ChannelLayout5Point0, "5.0(side)"},
	{ChannelLayout5Point1, "5.1(side)"},
	{ChannelLayout6Point1, "6.1"},
	{ChannelLayout7Point1, "7.1"},
	{ChannelLayout7Point1Wide, "7.1(wide-side)"},
}

// DefaultChannelLayout returns libavutil's default layout for n channels.
// Counts without a named layout get the first n speaker positions.
func DefaultChannelLayout(n int) ChannelLayout {
	switch n {
	case 1:
		return ChannelLayoutMono
	case 2:
		return ChannelLayoutStereo
	case 3:
		return ChannelLayoutSurround
	case 4:
		return ChannelLayoutQuad
	case 5:
		return ChannelLayout5Point0
	case 6:
		return ChannelLayout5Point1
	case 7:
		return ChannelLayout6Point1
	case 8:
		return ChannelLayout7Point1
	}
	if n <= 0 || n > 63 {
		return 0
	}
	return ChannelLayout(1)<<n - 1
}

// Channels returns the number of speakers in the layout.
func (l ChannelLayout) Channels() int { return bits.OnesCount64(uint64(l)) }

func (l ChannelLayout) String() string {
	for _, e := range channelLayoutNames {
		if e.layout == l {
			return e.name
		}
	}
	if l == 0 {
		return "none"
	}
	return itoa(l.Channels()) + " channels"
}

// ParseChannelLayout accepts FFmpeg layout names and "N channels"/"Nc".
func ParseChannelLayout(name string) ChannelLayout {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, e := range channelLayoutNames {
		if e.name == name {
			return e.layout
		}
	}
	switch name {
	case "5.0":
		return ChannelLayout5Point0
	case "5.1":
		return ChannelLayout5Point1
	case "quad":
		return ChannelLayoutQuad
	}
	name = strings.TrimSuffix(strings.TrimSuffix(name, " channels"), "c")
	n := 0
	for _, c := range name {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return DefaultChannelLayout(n)
}

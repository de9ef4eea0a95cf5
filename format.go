package media

import "strings"

// FieldMode describes the scan order of a video format.
type FieldMode uint8

const (
	FieldModeProgressive FieldMode = iota
	FieldModeUpper                 // upper field first
	FieldModeLower                 // lower field first
)

func (m FieldMode) String() string {
	switch m {
	case FieldModeUpper:
		return "upper"
	case FieldModeLower:
		return "lower"
	default:
		return "progressive"
	}
}

// VideoFormatDesc describes a channel's output format.
type VideoFormatDesc struct {
	Name         string
	Width        int
	Height       int
	SquareWidth  int
	SquareHeight int
	FieldMode    FieldMode
	TimeScale    int // frame rate = TimeScale/Duration
	Duration     int
	SampleRate   int
	Channels     int
	AudioCadence []int // samples per frame, cycled
}

// FrameRate returns TimeScale/Duration.
func (d VideoFormatDesc) FrameRate() Rational { return Rational{Num: d.TimeScale, Den: d.Duration} }

// TimeBase returns Duration/TimeScale, the duration of one frame.
func (d VideoFormatDesc) TimeBase() Rational { return Rational{Num: d.Duration, Den: d.TimeScale} }

// FPS returns the frame rate as a float.
func (d VideoFormatDesc) FPS() float64 { return d.FrameRate().Float64() }

// SampleAspectRatio returns the pixel aspect ratio implied by the square
// dimensions.
func (d VideoFormatDesc) SampleAspectRatio() Rational {
	if d.Width == 0 || d.Height == 0 || d.SquareWidth == 0 || d.SquareHeight == 0 {
		return Rational{Num: 1, Den: 1}
	}
	return Rational{Num: d.SquareWidth * d.Height, Den: d.SquareHeight * d.Width}.Reduce()
}

// ImageSize returns the BGRA byte size of one frame.
func (d VideoFormatDesc) ImageSize() int { return d.Width * d.Height * 4 }

// SamplesForFrame returns the audio cadence entry for frame n.
func (d VideoFormatDesc) SamplesForFrame(n int) int {
	if len(d.AudioCadence) == 0 {
		return 0
	}
	return d.AudioCadence[n%len(d.AudioCadence)]
}

var ntscCadence = []int{1602, 1601, 1602, 1601, 1602}

func formatDesc(name string, w, h, sw, sh int, mode FieldMode, scale, dur int, cadence []int) VideoFormatDesc {
	return VideoFormatDesc{
		Name: name, Width: w, Height: h, SquareWidth: sw, SquareHeight: sh,
		FieldMode: mode, TimeScale: scale, Duration: dur,
		SampleRate: 48000, Channels: 2, AudioCadence: cadence,
	}
}

var videoFormats = []VideoFormatDesc{
	formatDesc("PAL", 720, 576, 1024, 576, FieldModeUpper, 25000, 1000, []int{1920}),
	formatDesc("NTSC", 720, 486, 720, 540, FieldModeLower, 30000, 1001, ntscCadence),
	formatDesc("576p2500", 720, 576, 1024, 576, FieldModeProgressive, 25000, 1000, []int{1920}),
	formatDesc("720p2500", 1280, 720, 1280, 720, FieldModeProgressive, 25000, 1000, []int{1920}),
	formatDesc("720p5000", 1280, 720, 1280, 720, FieldModeProgressive, 50000, 1000, []int{960}),
	formatDesc("720p5994", 1280, 720, 1280, 720, FieldModeProgressive, 60000, 1001, []int{801, 800, 801, 801, 801}),
	formatDesc("720p6000", 1280, 720, 1280, 720, FieldModeProgressive, 60000, 1000, []int{800}),
	formatDesc("1080p2398", 1920, 1080, 1920, 1080, FieldModeProgressive, 24000, 1001, []int{2002}),
	formatDesc("1080p2400", 1920, 1080, 1920, 1080, FieldModeProgressive, 24000, 1000, []int{2000}),
	formatDesc("1080i5000", 1920, 1080, 1920, 1080, FieldModeUpper, 25000, 1000, []int{1920}),
	formatDesc("1080i5994", 1920, 1080, 1920, 1080, FieldModeUpper, 30000, 1001, ntscCadence),
	formatDesc("1080i6000", 1920, 1080, 1920, 1080, FieldModeUpper, 30000, 1000, []int{1600}),
	formatDesc("1080p2500", 1920, 1080, 1920, 1080, FieldModeProgressive, 25000, 1000, []int{1920}),
	formatDesc("1080p2997", 1920, 1080, 1920, 1080, FieldModeProgressive, 30000, 1001, ntscCadence),
	formatDesc("1080p3000", 1920, 1080, 1920, 1080, FieldModeProgressive, 30000, 1000, []int{1600}),
	formatDesc("1080p5000", 1920, 1080, 1920, 1080, FieldModeProgressive, 50000, 1000, []int{960}),
	formatDesc("1080p5994", 1920, 1080, 1920, 1080, FieldModeProgressive, 60000, 1001, []int{801, 800, 801, 801, 801}),
	formatDesc("1080p6000", 1920, 1080, 1920, 1080, FieldModeProgressive, 60000, 1000, []int{800}),
	formatDesc("2160p2500", 3840, 2160, 3840, 2160, FieldModeProgressive, 25000, 1000, []int{1920}),
	formatDesc("2160p5000", 3840, 2160, 3840, 2160, FieldModeProgressive, 50000, 1000, []int{960}),
}

// VideoFormatByName looks up a standard format, case-insensitively.
func VideoFormatByName(name string) (VideoFormatDesc, bool) {
	for _, f := range videoFormats {
		if strings.EqualFold(f.Name, name) {
			f.AudioCadence = append([]int(nil), f.AudioCadence...)
			return f, true
		}
	}
	return VideoFormatDesc{}, false
}

// VideoFormats returns the names of the standard formats.
func VideoFormats() []string {
	names := make([]string, len(videoFormats))
	for i, f := range videoFormats {
		names[i] = f.Name
	}
	return names
}

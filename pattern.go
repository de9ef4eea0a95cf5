package media

import (
	"context"
	"math"
	"time"
)

// PatternType selects the picture of a PatternSource.
type PatternType int

const (
	PatternColorBars    PatternType = iota // SMPTE color bars
	PatternGradient                        // Horizontal gradient
	PatternCheckerboard                    // Checkerboard pattern
	PatternSolidColor                      // Solid color
	PatternMovingBox                       // Color bars with a moving box
)

func (p PatternType) String() string {
	switch p {
	case PatternColorBars:
		return "ColorBars"
	case PatternGradient:
		return "Gradient"
	case PatternCheckerboard:
		return "Checkerboard"
	case PatternSolidColor:
		return "SolidColor"
	case PatternMovingBox:
		return "MovingBox"
	default:
		return "Unknown"
	}
}

// PatternConfig configures a PatternSource.
type PatternConfig struct {
	Format  VideoFormatDesc
	Pattern PatternType

	// For SolidColor pattern
	SolidR, SolidG, SolidB uint8

	// For Checkerboard pattern (default: 32)
	CheckerSize int

	// ToneHz is the frequency of the audio tone (default: 1000). A
	// negative value gives silence.
	ToneHz float64
	// ToneLevel is the tone amplitude in dBFS (default: -20).
	ToneLevel float64
}

// PatternSource generates channel frames: a BGRA test picture and a sine
// tone following the format's audio cadence.
type PatternSource struct {
	config PatternConfig
	still  []byte
	frame  int
	phase  float64
	gain   float64
}

// NewPatternSource creates a source for config.Format.
func NewPatternSource(config PatternConfig) *PatternSource {
	if config.CheckerSize <= 0 {
		config.CheckerSize = 32
	}
	if config.ToneHz == 0 {
		config.ToneHz = 1000
	}
	if config.ToneLevel == 0 {
		config.ToneLevel = -20
	}
	s := &PatternSource{
		config: config,
		gain:   math.Pow(10, config.ToneLevel/20) * math.MaxInt32,
	}
	s.still = make([]byte, config.Format.ImageSize())
	s.drawStill(s.still)
	return s
}

// Format returns the channel format.
func (s *PatternSource) Format() VideoFormatDesc { return s.config.Format }

// Next returns the next frame.
func (s *PatternSource) Next() *ChannelFrame {
	img := make([]byte, len(s.still))
	copy(img, s.still)
	if s.config.Pattern == PatternMovingBox {
		s.drawBox(img, s.frame)
	}
	f := &ChannelFrame{Image: img, Audio: s.tone(s.config.Format.SamplesForFrame(s.frame))}
	s.frame++
	return f
}

// Run calls fn with a new frame at the channel rate until ctx is done or
// fn returns false.
func (s *PatternSource) Run(ctx context.Context, fn func(*ChannelFrame) bool) error {
	fps := s.config.Format.FPS()
	if fps <= 0 {
		fps = 25
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !fn(s.Next()) {
				return nil
			}
		}
	}
}

func (s *PatternSource) tone(n int) []int32 {
	channels := max(1, s.config.Format.Channels)
	out := make([]int32, n*channels)
	if s.config.ToneHz < 0 || s.config.Format.SampleRate <= 0 {
		return out
	}
	step := 2 * math.Pi * s.config.ToneHz / float64(s.config.Format.SampleRate)
	for i := 0; i < n; i++ {
		v := int32(s.gain * math.Sin(s.phase))
		for c := 0; c < channels; c++ {
			out[i*channels+c] = v
		}
		s.phase = math.Mod(s.phase+step, 2*math.Pi)
	}
	return out
}

// SMPTE color bars (simplified 8-bar pattern), RGB.
var colorBarsRGB = [][3]uint8{
	{192, 192, 192}, // White (75%)
	{192, 192, 0},   // Yellow
	{0, 192, 192},   // Cyan
	{0, 192, 0},     // Green
	{192, 0, 192},   // Magenta
	{192, 0, 0},     // Red
	{0, 0, 192},     // Blue
	{16, 16, 16},    // Black
}

func putBGRA(img []byte, i int, r, g, b uint8) {
	img[i], img[i+1], img[i+2], img[i+3] = b, g, r, 255
}

func (s *PatternSource) drawStill(img []byte) {
	w, h := s.config.Format.Width, s.config.Format.Height
	if w <= 0 || h <= 0 {
		return
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			switch s.config.Pattern {
			case PatternGradient:
				v := uint8(x * 255 / w)
				putBGRA(img, i, v, v, v)
			case PatternCheckerboard:
				v := uint8(16)
				if (x/s.config.CheckerSize+y/s.config.CheckerSize)%2 == 0 {
					v = 235
				}
				putBGRA(img, i, v, v, v)
			case PatternSolidColor:
				putBGRA(img, i, s.config.SolidR, s.config.SolidG, s.config.SolidB)
			default:
				bar := min(x*len(colorBarsRGB)/w, len(colorBarsRGB)-1)
				rgb := colorBarsRGB[bar]
				putBGRA(img, i, rgb[0], rgb[1], rgb[2])
			}
		}
	}
}

// drawBox draws a white box moving on a circle around the centre.
func (s *PatternSource) drawBox(img []byte, frame int) {
	w, h := s.config.Format.Width, s.config.Format.Height
	size := max(8, min(w, h)/8)
	radius := float64(min(w, h)) / 4
	angle := float64(frame) * 0.05
	bx := w/2 + int(radius*math.Cos(angle)) - size/2
	by := h/2 + int(radius*math.Sin(angle)) - size/2

	for y := max(0, by); y < min(h, by+size); y++ {
		for x := max(0, bx); x < min(w, bx+size); x++ {
			putBGRA(img, (y*w+x)*4, 235, 235, 235)
		}
	}
}

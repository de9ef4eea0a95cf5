package media

// AudioFrameSizer rechunks audio frames into frames of a fixed sample
// count, as encoders with a fixed frame size require. Timestamps are
// assumed to count samples (time base 1/sample_rate).
type AudioFrameSizer struct {
	size    int
	tmpl    *Frame
	planes  [][]byte
	samples int
	pts     int64
}

// NewAudioFrameSizer returns a sizer emitting frames of size samples.
func NewAudioFrameSizer(size int) *AudioFrameSizer {
	return &AudioFrameSizer{size: size, pts: NoPTS}
}

// Size returns the output frame size.
func (s *AudioFrameSizer) Size() int { return s.size }

// Buffered returns the number of samples waiting.
func (s *AudioFrameSizer) Buffered() int { return s.samples }

func (s *AudioFrameSizer) bytesPerSample(f *Frame) int {
	if f.SampleFormat.Planar() {
		return f.SampleFormat.BytesPerSample()
	}
	return f.SampleFormat.BytesPerSample() * f.ChannelLayout.Channels()
}

// Push queues the samples of f.
func (s *AudioFrameSizer) Push(f *Frame) {
	if f == nil || f.NbSamples == 0 {
		return
	}
	if s.tmpl == nil {
		s.tmpl = &Frame{
			MediaType:     MediaTypeAudio,
			SampleFormat:  f.SampleFormat,
			SampleRate:    f.SampleRate,
			ChannelLayout: f.ChannelLayout,
		}
		s.planes = make([][]byte, len(f.Data))
	}
	if s.samples == 0 {
		s.pts = f.PTS
	}
	n := f.NbSamples * s.bytesPerSample(f)
	for i := range s.planes {
		s.planes[i] = append(s.planes[i], f.Data[i][:n]...)
	}
	s.samples += f.NbSamples
}

// Pop returns the next full frame, or nil. With flush set, a final partial
// frame is returned as well.
func (s *AudioFrameSizer) Pop(flush bool) *Frame {
	if s.samples == 0 || (s.samples < s.size && !flush) {
		return nil
	}
	n := min(s.size, s.samples)
	out := NewAudioFrame(s.tmpl.SampleFormat, s.tmpl.SampleRate, s.tmpl.ChannelLayout, n)
	out.PTS = s.pts
	bytes := n * s.bytesPerSample(s.tmpl)
	for i := range s.planes {
		copy(out.Data[i], s.planes[i][:bytes])
		s.planes[i] = s.planes[i][bytes:]
	}
	s.samples -= n
	if s.pts != NoPTS {
		s.pts += int64(n)
	}
	return out
}

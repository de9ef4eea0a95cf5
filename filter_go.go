package media

import (
	"fmt"
	"image"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// goFilter is one stage of the pure Go filter chain.
type goFilter interface {
	configure(in LinkParams) (LinkParams, error)
	filter(f *Frame) (*Frame, error)
}

type goFilterFactory func(args string) (goFilter, error)

var goFilters = map[string]goFilterFactory{
	"null":    func(string) (goFilter, error) { return passFilter{MediaTypeVideo, false}, nil },
	"copy":    func(string) (goFilter, error) { return passFilter{MediaTypeVideo, true}, nil },
	"anull":   func(string) (goFilter, error) { return passFilter{MediaTypeAudio, false}, nil },
	"acopy":   func(string) (goFilter, error) { return passFilter{MediaTypeAudio, true}, nil },
	"format":  newFormatFilter,
	"scale":   newScaleFilter,
	"hflip":   func(string) (goFilter, error) { return &flipFilter{horizontal: true}, nil },
	"vflip":   func(string) (goFilter, error) { return &flipFilter{}, nil },
	"setsar":  newSetSARFilter,
	"aformat": newAFormatFilter,
	"volume":  newVolumeFilter,
}

func init() {
	registerFilterGraph(ProviderGo, newGoFilterGraph)
}

// goFilterGraph runs a single linear chain of Go filters.
type goFilterGraph struct {
	desc    *FilterGraphDesc
	chain   []goFilter
	src     LinkParams
	sinkMT  MediaType
	sink    SinkConstraints
	out     LinkParams
	pending []*Frame
	eof     bool
}

func newGoFilterGraph(desc *FilterGraphDesc) (FilterGraph, error) {
	if !desc.Linear() {
		return nil, fmt.Errorf("%w: only linear chains run without ffmpeg", ErrNotSupported)
	}
	g := &goFilterGraph{desc: desc}
	for _, n := range desc.Chains[0] {
		newFilter, ok := goFilters[n.Name]
		if !ok {
			return nil, fmt.Errorf("%w: filter %q needs ffmpeg", ErrNotSupported, n.Name)
		}
		f, err := newFilter(n.Args)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n.Name, err)
		}
		g.chain = append(g.chain, f)
	}
	return g, nil
}

func (g *goFilterGraph) Provider() Provider { return ProviderGo }

func (g *goFilterGraph) AddSource(params LinkParams) error {
	if in := g.desc.Inputs[0].MediaType; in != params.MediaType {
		return fmt.Errorf("%w: %w: graph input is %s, source is %s", ErrConfig, ErrMediaType, in, params.MediaType)
	}
	g.src = params
	return nil
}

func (g *goFilterGraph) AddSink(mt MediaType, c SinkConstraints) error {
	g.sinkMT, g.sink = mt, c
	return nil
}

func (g *goFilterGraph) Configure() error {
	cur := g.src
	for i, f := range g.chain {
		next, err := f.configure(cur)
		if err != nil {
			return fmt.Errorf("%w: %w: %s: %w", ErrConfig, ErrFilterGraph, g.desc.Chains[0][i].Name, err)
		}
		cur = next
	}
	if cur.MediaType != g.sinkMT {
		return fmt.Errorf("%w: %w: graph output is %s, sink is %s", ErrConfig, ErrMediaType, cur.MediaType, g.sinkMT)
	}

	// Meet the sink constraints with a trailing conversion.
	var final goFilter
	switch cur.MediaType {
	case MediaTypeVideo:
		if len(g.sink.PixelFormats) > 0 && !slices.Contains(g.sink.PixelFormats, cur.PixelFormat) {
			final = &formatFilter{formats: g.sink.PixelFormats}
		}
	case MediaTypeAudio:
		final = &aformatFilter{formats: g.sink.SampleFormats, layouts: g.sink.ChannelLayouts, rates: g.sink.SampleRates}
	}
	if final != nil {
		next, err := final.configure(cur)
		if err != nil {
			return fmt.Errorf("%w: %w: sink: %w", ErrConfig, ErrFilterGraph, err)
		}
		g.chain = append(g.chain, final)
		cur = next
	}
	g.out = cur
	return nil
}

func (g *goFilterGraph) Output() LinkParams { return g.out }

func (g *goFilterGraph) Push(f *Frame) error {
	if g.eof {
		return io.EOF
	}
	var err error
	for _, stage := range g.chain {
		if f, err = stage.filter(f); err != nil {
			return err
		}
	}
	g.pending = append(g.pending, f)
	return nil
}

// PushEOF ignores pts. No Go filter holds frames back or emits frames
// past the last input, so nothing needs the closing timestamp.
func (g *goFilterGraph) PushEOF(int64) error {
	g.eof = true
	return nil
}

func (g *goFilterGraph) Pull() (*Frame, error) {
	if len(g.pending) == 0 {
		if g.eof {
			return nil, io.EOF
		}
		return nil, ErrAgain
	}
	f := g.pending[0]
	g.pending = g.pending[1:]
	return f, nil
}

func (g *goFilterGraph) Close() error {
	g.pending = nil
	return nil
}

func checkMediaType(in LinkParams, want MediaType) error {
	if in.MediaType != want {
		return fmt.Errorf("%w: expects %s input, got %s", ErrMediaType, want, in.MediaType)
	}
	return nil
}

type passFilter struct {
	mt    MediaType
	clone bool
}

func (p passFilter) configure(in LinkParams) (LinkParams, error) {
	return in, checkMediaType(in, p.mt)
}

func (p passFilter) filter(f *Frame) (*Frame, error) {
	if p.clone {
		return f.Clone(), nil
	}
	return f, nil
}

// formatFilter converts to the first listed pixel format unless the input
// already uses one of them.
type formatFilter struct {
	formats []PixelFormat
	target  PixelFormat
}

func newFormatFilter(args string) (goFilter, error) {
	list, ok := filterArg(args, "pix_fmts", 0)
	if !ok {
		return nil, fmt.Errorf("missing pix_fmts")
	}
	f := &formatFilter{}
	for _, name := range strings.Split(list, "|") {
		pf := ParsePixelFormat(name)
		if pf == PixelFormatNone {
			return nil, fmt.Errorf("unknown pixel format %q", name)
		}
		f.formats = append(f.formats, pf)
	}
	return f, nil
}

func (f *formatFilter) configure(in LinkParams) (LinkParams, error) {
	if err := checkMediaType(in, MediaTypeVideo); err != nil {
		return in, err
	}
	if slices.Contains(f.formats, in.PixelFormat) {
		f.target = in.PixelFormat
		return in, nil
	}
	for _, pf := range f.formats {
		c, err := NewColorConverter(in.PixelFormat, in.Width, in.Height, pf)
		if err != nil {
			continue
		}
		c.Close()
		f.target = pf
		in.PixelFormat = pf
		return in, nil
	}
	return in, fmt.Errorf("%w: no conversion from %s to %v", ErrConversion, in.PixelFormat, f.formats)
}

func (f *formatFilter) filter(fr *Frame) (*Frame, error) {
	return ConvertFrame(fr, f.target)
}

// scaleFilter resizes frames and keeps the display aspect ratio by
// adjusting the sample aspect ratio.
type scaleFilter struct {
	w, h   string
	mode   ScaleMode
	outW   int
	outH   int
	outSAR Rational
}

func newScaleFilter(args string) (goFilter, error) {
	w, okw := filterArg(args, "w", 0)
	h, okh := filterArg(args, "h", 1)
	if !okw {
		w, okw = filterArg(args, "width", -1)
	}
	if !okh {
		h, okh = filterArg(args, "height", -1)
	}
	if !okw || !okh {
		return nil, fmt.Errorf("scale needs a width and a height")
	}
	s := &scaleFilter{w: w, h: h, mode: ScaleModeStretch}
	if v, ok := filterArg(args, "force_original_aspect_ratio", -1); ok {
		switch v {
		case "disable", "0":
		case "decrease", "1":
			s.mode = ScaleModeFit
		case "increase", "2":
			s.mode = ScaleModeFill
		default:
			return nil, fmt.Errorf("force_original_aspect_ratio %q", v)
		}
	}
	return s, nil
}

func scaleDim(expr string, iw, ih int) (int, error) {
	switch expr {
	case "iw":
		return iw, nil
	case "ih":
		return ih, nil
	}
	return strconv.Atoi(expr)
}

func (s *scaleFilter) configure(in LinkParams) (LinkParams, error) {
	if err := checkMediaType(in, MediaTypeVideo); err != nil {
		return in, err
	}
	w, err := scaleDim(s.w, in.Width, in.Height)
	if err != nil {
		return in, fmt.Errorf("width %q: %w", s.w, err)
	}
	h, err := scaleDim(s.h, in.Width, in.Height)
	if err != nil {
		return in, fmt.Errorf("height %q: %w", s.h, err)
	}
	// -1 keeps the aspect ratio, -2 also rounds to an even size.
	switch {
	case w < 0 && h < 0:
		w, h = in.Width, in.Height
	case w < 0:
		n := -w
		w = in.Width * h / in.Height
		w -= w % n
	case h < 0:
		n := -h
		h = in.Height * w / in.Width
		h -= h % n
	}
	if w <= 0 || h <= 0 {
		return in, fmt.Errorf("invalid output size %dx%d", w, h)
	}
	w, h = CalculateScaledSize(in.Width, in.Height, w, h, s.mode)
	sar := in.SampleAspectRatio
	if sar.IsZero() {
		sar = Rational{Num: 1, Den: 1}
	}
	s.outSAR = Rational{Num: sar.Num * h * in.Width, Den: sar.Den * w * in.Height}.Reduce()
	s.outW, s.outH = w, h
	in.Width, in.Height, in.SampleAspectRatio = w, h, s.outSAR
	return in, nil
}

func (s *scaleFilter) filter(f *Frame) (*Frame, error) {
	out, err := ScaleFrame(f, s.outW, s.outH)
	if err != nil {
		return nil, err
	}
	if out != f {
		out.SampleAspectRatio = s.outSAR
	}
	return out, nil
}

type flipFilter struct {
	horizontal bool
}

func (fl *flipFilter) configure(in LinkParams) (LinkParams, error) {
	return in, checkMediaType(in, MediaTypeVideo)
}

func (fl *flipFilter) filter(f *Frame) (*Frame, error) {
	switch {
	case isPacked4(f.PixelFormat):
		return flipPacked(f, fl.horizontal), nil
	case isPlanar(f.PixelFormat):
		return flipPlanar(f, fl.horizontal), nil
	}
	bgra, err := ConvertFrame(f, PixelFormatBGRA)
	if err != nil {
		return nil, err
	}
	return ConvertFrame(flipPacked(bgra, fl.horizontal), f.PixelFormat)
}

// flipPacked flips a 4-byte-per-pixel frame. The channel order does not
// matter, so the pixels are handed to imaging as NRGBA untouched.
func flipPacked(f *Frame, horizontal bool) *Frame {
	img := &image.NRGBA{Pix: f.Data[0], Stride: f.Linesize[0], Rect: image.Rect(0, 0, f.Width, f.Height)}
	var flipped *image.NRGBA
	if horizontal {
		flipped = imaging.FlipH(img)
	} else {
		flipped = imaging.FlipV(img)
	}
	out := newVideoFrameLike(f)
	row := f.Width * 4
	for y := 0; y < f.Height; y++ {
		copy(out.Data[0][y*out.Linesize[0]:][:row], flipped.Pix[y*flipped.Stride:][:row])
	}
	return out
}

func flipPlanar(f *Frame, horizontal bool) *Frame {
	out := newVideoFrameLike(f)
	for i, p := range planeLayout(f.PixelFormat, f.Width, f.Height) {
		for y := 0; y < p.Height; y++ {
			sy := y
			if !horizontal {
				sy = p.Height - 1 - y
			}
			src := f.Data[i][sy*f.Linesize[i]:][:p.Width]
			dst := out.Data[i][y*out.Linesize[i]:][:p.Width]
			if !horizontal {
				copy(dst, src)
				continue
			}
			for x := range dst {
				dst[x] = src[p.Width-1-x]
			}
		}
	}
	return out
}

func newVideoFrameLike(f *Frame) *Frame {
	out := NewVideoFrame(f.PixelFormat, f.Width, f.Height)
	out.PTS = f.PTS
	out.SampleAspectRatio = f.SampleAspectRatio
	out.Interlaced, out.TopFieldFirst = f.Interlaced, f.TopFieldFirst
	return out
}

type setSARFilter struct {
	sar Rational
}

func newSetSARFilter(args string) (goFilter, error) {
	v, ok := filterArg(args, "sar", 0)
	if !ok {
		if v, ok = filterArg(args, "r", -1); !ok {
			return nil, fmt.Errorf("missing sar")
		}
	}
	r, err := ParseRational(v)
	if err != nil {
		return nil, err
	}
	return &setSARFilter{sar: r.Reduce()}, nil
}

func (s *setSARFilter) configure(in LinkParams) (LinkParams, error) {
	in.SampleAspectRatio = s.sar
	return in, checkMediaType(in, MediaTypeVideo)
}

func (s *setSARFilter) filter(f *Frame) (*Frame, error) {
	f.SampleAspectRatio = s.sar
	return f, nil
}

// aformatFilter converts the sample format. Layout and rate constraints
// are checked but not converted.
type aformatFilter struct {
	formats []SampleFormat
	layouts []ChannelLayout
	rates   []int
	target  SampleFormat
}

func newAFormatFilter(args string) (goFilter, error) {
	f := &aformatFilter{}
	if v, ok := filterArg(args, "sample_fmts", 0); ok {
		for _, name := range strings.Split(v, "|") {
			sf := ParseSampleFormat(name)
			if sf == SampleFormatNone {
				return nil, fmt.Errorf("unknown sample format %q", name)
			}
			f.formats = append(f.formats, sf)
		}
	}
	if v, ok := filterArg(args, "channel_layouts", 2); ok {
		for _, name := range strings.Split(v, "|") {
			l := ParseChannelLayout(name)
			if l == 0 {
				return nil, fmt.Errorf("unknown channel layout %q", name)
			}
			f.layouts = append(f.layouts, l)
		}
	}
	if v, ok := filterArg(args, "sample_rates", 1); ok {
		for _, s := range strings.Split(v, "|") {
			r, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("invalid sample rate %q", s)
			}
			f.rates = append(f.rates, r)
		}
	}
	return f, nil
}

func (a *aformatFilter) configure(in LinkParams) (LinkParams, error) {
	if err := checkMediaType(in, MediaTypeAudio); err != nil {
		return in, err
	}
	if len(a.layouts) > 0 && !slices.Contains(a.layouts, in.ChannelLayout) {
		return in, fmt.Errorf("%w: remixing %s to %v needs ffmpeg", ErrNotSupported, in.ChannelLayout, a.layouts)
	}
	if len(a.rates) > 0 && !slices.Contains(a.rates, in.SampleRate) {
		return in, fmt.Errorf("%w: resampling %d to %v needs ffmpeg", ErrNotSupported, in.SampleRate, a.rates)
	}
	a.target = in.SampleFormat
	if len(a.formats) > 0 && !slices.Contains(a.formats, in.SampleFormat) {
		a.target = a.formats[0]
	}
	in.SampleFormat = a.target
	return in, nil
}

func (a *aformatFilter) filter(f *Frame) (*Frame, error) {
	if f.SampleFormat == a.target {
		return f, nil
	}
	return convertSamples(f, a.target), nil
}

type volumeFilter struct {
	gain float64
}

func newVolumeFilter(args string) (goFilter, error) {
	v, ok := filterArg(args, "volume", 0)
	if !ok {
		return &volumeFilter{gain: 1}, nil
	}
	if db, isDB := strings.CutSuffix(v, "dB"); isDB {
		n, err := strconv.ParseFloat(db, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid volume %q", v)
		}
		return &volumeFilter{gain: math.Pow(10, n/20)}, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid volume %q", v)
	}
	return &volumeFilter{gain: n}, nil
}

func (v *volumeFilter) configure(in LinkParams) (LinkParams, error) {
	return in, checkMediaType(in, MediaTypeAudio)
}

func (v *volumeFilter) filter(f *Frame) (*Frame, error) {
	if v.gain == 1 {
		return f, nil
	}
	out := NewAudioFrame(f.SampleFormat, f.SampleRate, f.ChannelLayout, f.NbSamples)
	out.PTS = f.PTS
	ch := f.ChannelLayout.Channels()
	for i := 0; i < f.NbSamples; i++ {
		for c := 0; c < ch; c++ {
			putSample(sampleAt(out, i, c), f.SampleFormat, getSample(sampleAt(f, i, c), f.SampleFormat)*v.gain)
		}
	}
	return out, nil
}

// sampleAt returns the bytes of sample i of channel c.
func sampleAt(f *Frame, i, c int) []byte {
	bps := f.SampleFormat.BytesPerSample()
	if f.SampleFormat.Planar() {
		return f.Data[c][i*bps:]
	}
	return f.Data[0][(i*f.ChannelLayout.Channels()+c)*bps:]
}

func convertSamples(f *Frame, dst SampleFormat) *Frame {
	out := NewAudioFrame(dst, f.SampleRate, f.ChannelLayout, f.NbSamples)
	out.PTS = f.PTS
	ch := f.ChannelLayout.Channels()
	same := f.SampleFormat.Packed() == dst.Packed()
	bps := dst.BytesPerSample()
	for i := 0; i < f.NbSamples; i++ {
		for c := 0; c < ch; c++ {
			if same {
				copy(sampleAt(out, i, c)[:bps], sampleAt(f, i, c))
				continue
			}
			putSample(sampleAt(out, i, c), dst, getSample(sampleAt(f, i, c), f.SampleFormat))
		}
	}
	return out
}

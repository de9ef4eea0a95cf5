//go:build cgo && !noffmpeg

package media

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/asticode/go-astiav"
)

func init() {
	registerFilterGraph(ProviderFFmpeg, newFFmpegFilterGraph)
	filterRegistry.native = ffmpegFilterInfo
}

// ffmpegFilterInfo reads the static pads of a libavfilter filter. Filters
// with argument dependent pads keep their Go description. The caller
// holds filterRegistry.mu.
func ffmpegFilterInfo(name string) (FilterInfo, bool) {
	if fi, ok := filterRegistry.info[name]; ok && fi.Pads != nil {
		return fi, true
	}
	f := astiav.FindFilterByName(name)
	if f == nil {
		return FilterInfo{}, false
	}
	fi := FilterInfo{Name: name}
	for _, p := range f.Inputs() {
		fi.Inputs = append(fi.Inputs, MediaType(p.MediaType()))
	}
	for _, p := range f.Outputs() {
		fi.Outputs = append(fi.Outputs, MediaType(p.MediaType()))
	}
	return fi, true
}

// ffmpegFilterGraph runs a graph description in libavfilter between a
// buffer source and a buffer sink.
type ffmpegFilterGraph struct {
	desc   *FilterGraphDesc
	g      *astiav.FilterGraph
	src    *astiav.BuffersrcFilterContext
	sink   *astiav.BuffersinkFilterContext
	sinkMT MediaType
	filter string
	out    LinkParams
}

func newFFmpegFilterGraph(desc *FilterGraphDesc) (FilterGraph, error) {
	g := astiav.AllocFilterGraph()
	if g == nil {
		return nil, errors.New("allocate filter graph")
	}
	return &ffmpegFilterGraph{desc: desc, g: g}, nil
}

func (fg *ffmpegFilterGraph) Provider() Provider { return ProviderFFmpeg }

func (fg *ffmpegFilterGraph) AddSource(p LinkParams) error {
	name := "buffer"
	args := astiav.FilterArgs{"time_base": p.TimeBase.String()}
	switch p.MediaType {
	case MediaTypeVideo:
		args["width"] = strconv.Itoa(p.Width)
		args["height"] = strconv.Itoa(p.Height)
		args["pix_fmt"] = strconv.Itoa(int(p.PixelFormat))
		args["sar"] = p.SampleAspectRatio.String()
		if !p.FrameRate.IsZero() {
			args["frame_rate"] = p.FrameRate.String()
		}
	case MediaTypeAudio:
		name = "abuffer"
		args["sample_rate"] = strconv.Itoa(p.SampleRate)
		args["sample_fmt"] = p.SampleFormat.String()
		args["channel_layout"] = p.ChannelLayout.String()
	default:
		return fmt.Errorf("%w: %s source", ErrMediaType, p.MediaType)
	}
	f := astiav.FindFilterByName(name)
	if f == nil {
		return fmt.Errorf("%w: %s", ErrFilterNotFound, name)
	}
	src, err := fg.g.NewBuffersrcFilterContext(f, sourceLabel, args)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFilterGraph, name, err)
	}
	fg.src = src
	return nil
}

func (fg *ffmpegFilterGraph) AddSink(mt MediaType, c SinkConstraints) error {
	name := "buffersink"
	if mt == MediaTypeAudio {
		name = "abuffersink"
	}
	f := astiav.FindFilterByName(name)
	if f == nil {
		return fmt.Errorf("%w: %s", ErrFilterNotFound, name)
	}
	sink, err := fg.g.NewBuffersinkFilterContext(f, sinkLabel, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFilterGraph, name, err)
	}
	fg.sink, fg.sinkMT = sink, mt
	fg.filter = c.constraintFilter(mt)
	return nil
}

func (fg *ffmpegFilterGraph) Configure() error {
	if fg.src == nil || fg.sink == nil {
		return fmt.Errorf("%w: source and sink must be added before configure", ErrFilterGraph)
	}
	text, err := fg.desc.Attach(fg.filter)
	if err != nil {
		return err
	}

	outputs := astiav.AllocFilterInOut()
	defer outputs.Free()
	outputs.SetName(sourceLabel)
	outputs.SetFilterContext(fg.src.FilterContext())
	outputs.SetPadIdx(0)
	outputs.SetNext(nil)

	inputs := astiav.AllocFilterInOut()
	defer inputs.Free()
	inputs.SetName(sinkLabel)
	inputs.SetFilterContext(fg.sink.FilterContext())
	inputs.SetPadIdx(0)
	inputs.SetNext(nil)

	if err := fg.g.Parse(text, inputs, outputs); err != nil {
		return fmt.Errorf("%w: %w: parse %q: %w", ErrConfig, ErrFilterGraph, text, err)
	}
	if err := fg.g.Configure(); err != nil {
		return fmt.Errorf("%w: %w: configure %q: %w", ErrConfig, ErrFilterGraph, text, err)
	}

	s := fg.sink
	fg.out = LinkParams{MediaType: fg.sinkMT, TimeBase: fromAVRational(s.TimeBase())}
	if fg.sinkMT == MediaTypeVideo {
		fg.out.Width, fg.out.Height = s.Width(), s.Height()
		fg.out.PixelFormat = PixelFormat(s.PixelFormat())
		fg.out.SampleAspectRatio = fromAVRational(s.SampleAspectRatio())
		fg.out.FrameRate = fromAVRational(s.FrameRate())
	} else {
		fg.out.SampleRate = s.SampleRate()
		fg.out.SampleFormat = SampleFormat(s.SampleFormat())
		fg.out.ChannelLayout = fromAVChannelLayout(s.ChannelLayout())
	}
	return nil
}

func (fg *ffmpegFilterGraph) Output() LinkParams { return fg.out }

func (fg *ffmpegFilterGraph) Push(f *Frame) error {
	af, owned, err := toAVFrame(f)
	if err != nil {
		return err
	}
	if owned {
		defer af.Free()
	}
	if err := fg.src.AddFrame(af, astiav.NewBuffersrcFlags(astiav.BuffersrcFlagKeepRef)); err != nil {
		return fmt.Errorf("%w: push: %w", ErrFilterGraph, err)
	}
	return nil
}

// PushEOF closes the buffer source at pts, so filters that pad or
// duplicate up to the end (fps, apad, trim) know where the stream stops.
func (fg *ffmpegFilterGraph) PushEOF(pts int64) error {
	if err := fg.src.Close(pts, astiav.NewBuffersrcFlags()); err != nil {
		return fmt.Errorf("%w: close source: %w", ErrFilterGraph, err)
	}
	return nil
}

func (fg *ffmpegFilterGraph) Pull() (*Frame, error) {
	af := astiav.AllocFrame()
	if err := fg.sink.GetFrame(af, astiav.NewBuffersinkFlags()); err != nil {
		af.Free()
		err = mapAVError(err)
		if errors.Is(err, ErrAgain) || errors.Is(err, io.EOF) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: pull: %w", ErrFilterGraph, err)
	}
	return fromAVFrame(af, fg.sinkMT)
}

func (fg *ffmpegFilterGraph) Close() error {
	if fg.g != nil {
		fg.g.Free()
		fg.g, fg.src, fg.sink = nil, nil, nil
	}
	return nil
}

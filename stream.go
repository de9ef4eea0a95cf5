package media

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// StreamConfig holds the optional collaborators of a Stream.
type StreamConfig struct {
	Logger *slog.Logger
}

// Stream filters and encodes one output track of a container. Frames go
// in through Send; packets come out through the callback passed to Send.
type Stream struct {
	log       *slog.Logger
	mediaType MediaType
	encoder   *Encoder
	enc       EncoderContext
	graph     FilterGraph
	track     *MuxStream
	sizer     *AudioFrameSizer
	graphTB   Rational

	pts      int64
	eof      bool
	finished bool
}

// NewStream builds the filter graph and encoder for one track of mux.
// Options whose key ends with suffix configure this track. It returns the
// options left for other consumers; options the encoder did not use go
// back with their suffix.
func NewStream(mux Muxer, suffix string, defaultCodec CodecID, format VideoFormatDesc, opts Options, cfg StreamConfig) (*Stream, Options, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Stream{}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	// 1. Options for this track.
	matched, rest := opts.Partition(suffix)
	filterSpec, codecName := matched["filter"], matched["codec"]
	matched = matched.Without("filter", "codec")

	// 2. Encoder.
	var err error
	if codecName != "" {
		s.encoder, err = FindEncoderByName(codecName)
	} else {
		s.encoder, err = FindEncoder(defaultCodec)
	}
	if err != nil {
		return nil, opts, err
	}
	s.mediaType = s.encoder.MediaType
	s.log = log.With("component", "stream", "media", s.mediaType.String(), "encoder", s.encoder.Name)

	// 3. Filter graph with exactly one input and one output.
	if filterSpec == "" {
		filterSpec = "null"
		if s.mediaType == MediaTypeAudio {
			filterSpec = "anull"
		}
	}
	desc, err := ParseFilterGraph(filterSpec)
	if err != nil {
		return nil, opts, err
	}
	if len(desc.Inputs) != 1 {
		return nil, opts, fmt.Errorf("%w: %w: %q has %d inputs, want 1", ErrConfig, ErrFilterGraph, filterSpec, len(desc.Inputs))
	}
	if len(desc.Outputs) != 1 {
		return nil, opts, fmt.Errorf("%w: %w: %q has %d outputs, want 1", ErrConfig, ErrFilterGraph, filterSpec, len(desc.Outputs))
	}
	if s.graph, err = NewFilterGraph(desc); err != nil {
		return nil, opts, err
	}

	// 4. Source from the channel format.
	src, err := sourceParams(desc.Inputs[0].MediaType, format)
	if err != nil {
		return nil, opts, err
	}
	if err := s.graph.AddSource(src); err != nil {
		return nil, opts, err
	}

	// 5. Sink constrained to the encoder.
	caps := s.encoder.Caps
	constraints := SinkConstraints{PixelFormats: caps.PixelFormats}
	if desc.Outputs[0].MediaType == MediaTypeAudio {
		constraints = SinkConstraints{
			SampleFormats:  caps.SampleFormats,
			ChannelLayouts: caps.ChannelLayouts,
			SampleRates:    caps.SampleRates,
		}
	}
	if err := s.graph.AddSink(desc.Outputs[0].MediaType, constraints); err != nil {
		return nil, opts, err
	}

	// 6. Output pad must feed the encoder's media type.
	if out := desc.Outputs[0].MediaType; out != s.mediaType {
		return nil, opts, fmt.Errorf("%w: %w: filter output is %s, encoder %s takes %s",
			ErrConfig, ErrMediaType, out, s.encoder.Name, s.mediaType)
	}

	// 7. Configure.
	if err := s.graph.Configure(); err != nil {
		return nil, opts, err
	}
	sink := s.graph.Output()
	s.graphTB = sink.TimeBase

	// 8. Track and encoder parameters from the sink.
	params := EncoderParams{MediaType: s.mediaType}
	switch s.mediaType {
	case MediaTypeVideo:
		params.Width, params.Height = sink.Width, sink.Height
		params.PixelFormat = sink.PixelFormat
		params.SampleAspectRatio = sink.SampleAspectRatio
		params.FrameRate = sink.FrameRate
		if params.FrameRate.IsZero() {
			params.FrameRate = format.FrameRate()
		}
		params.TimeBase = params.FrameRate.Invert()
		params.FieldMode = format.FieldMode
	case MediaTypeAudio:
		params.SampleRate = sink.SampleRate
		params.SampleFormat = sink.SampleFormat
		params.ChannelLayout = sink.ChannelLayout
		params.TimeBase = Rational{Num: 1, Den: sink.SampleRate}
	}
	if s.track, err = mux.NewStream(CodecParameters{CodecID: s.encoder.CodecID, MediaType: s.mediaType}, params.TimeBase); err != nil {
		return nil, opts, fmt.Errorf("create %s track: %w", s.mediaType, err)
	}

	// 11. Global header before open.
	if mux.Format().Flags.Has(FormatGlobalHeader) {
		params.Flags |= EncoderFlagGlobalHeader
	}

	// 9. Open with the remaining track options.
	if s.enc, err = s.encoder.NewContext(); err != nil {
		return nil, opts, fmt.Errorf("allocate %s: %w", s.encoder.Name, err)
	}
	unused, err := s.enc.Open(params, matched)
	if err != nil {
		return nil, opts, fmt.Errorf("open %s: %w", s.encoder.Name, err)
	}
	for _, k := range unused.Keys() {
		s.log.Warn("unused option", "option", k+suffix, "value", unused[k])
	}
	rest = rest.Merge(unused.WithSuffix(suffix))
	s.track.Params = s.enc.Parameters()
	s.track.Encoder = s.enc

	// 10. Fixed frame size encoders get rechunked audio.
	if s.mediaType == MediaTypeAudio && !caps.VariableFrameSize {
		if n := s.enc.FrameSize(); n > 0 {
			s.sizer = NewAudioFrameSizer(n)
		}
	}

	s.log.Debug("stream ready", "filter", filterSpec, "track", s.track.Index, "time_base", params.TimeBase.String())
	ok = true
	return s, rest, nil
}

// sourceParams describes the frames a channel produces for one media type.
func sourceParams(mt MediaType, format VideoFormatDesc) (LinkParams, error) {
	switch mt {
	case MediaTypeVideo:
		return LinkParams{
			MediaType:         MediaTypeVideo,
			Width:             format.Width,
			Height:            format.Height,
			PixelFormat:       PixelFormatBGRA,
			TimeBase:          format.TimeBase(),
			SampleAspectRatio: format.SampleAspectRatio(),
			FrameRate:         format.FrameRate(),
		}, nil
	case MediaTypeAudio:
		return LinkParams{
			MediaType:     MediaTypeAudio,
			TimeBase:      Rational{Num: 1, Den: format.SampleRate},
			SampleRate:    format.SampleRate,
			SampleFormat:  SampleFormatS32,
			ChannelLayout: DefaultChannelLayout(format.Channels),
		}, nil
	}
	return LinkParams{}, fmt.Errorf("%w: %w: %s", ErrConfig, ErrMediaType, mt)
}

// MediaType returns the track media type.
func (s *Stream) MediaType() MediaType { return s.mediaType }

// Index returns the container track index.
func (s *Stream) Index() int { return s.track.Index }

// Track returns the container track.
func (s *Stream) Track() *MuxStream { return s.track }

// PTS returns the timestamp the next frame will get.
func (s *Stream) PTS() int64 { return s.pts }

// Finished reports whether the encoder has been fully drained.
func (s *Stream) Finished() bool { return s.finished }

// Send pushes one channel frame, or end of stream when frame is nil, and
// drains every packet that became ready into cb.
func (s *Stream) Send(frame *ChannelFrame, format VideoFormatDesc, cb func(*Packet) error) error {
	if s.eof {
		return fmt.Errorf("%s stream: %w", s.mediaType, io.ErrClosedPipe)
	}
	if frame == nil {
		s.eof = true
		if err := s.graph.PushEOF(s.pts); err != nil {
			return fmt.Errorf("%s stream eof: %w", s.mediaType, err)
		}
	} else if f, err := s.nativeFrame(frame, format); err != nil {
		return fmt.Errorf("%s stream: %w", s.mediaType, err)
	} else if f != nil {
		if err := s.graph.Push(f); err != nil {
			return fmt.Errorf("%s stream push: %w", s.mediaType, err)
		}
	}

	return s.drain(cb)
}

// nativeFrame wraps a channel frame for the graph source and advances the
// stream clock. Audio frames without samples are skipped.
func (s *Stream) nativeFrame(frame *ChannelFrame, format VideoFormatDesc) (*Frame, error) {
	switch s.mediaType {
	case MediaTypeVideo:
		if n := format.ImageSize(); len(frame.Image) < n {
			return nil, fmt.Errorf("%w: %d bytes, %dx%d needs %d", ErrShortFrame, len(frame.Image), format.Width, format.Height, n)
		}
		f := &Frame{
			MediaType:         MediaTypeVideo,
			PTS:               s.pts,
			Width:             format.Width,
			Height:            format.Height,
			PixelFormat:       PixelFormatBGRA,
			SampleAspectRatio: format.SampleAspectRatio(),
			Interlaced:        format.FieldMode != FieldModeProgressive,
			TopFieldFirst:     format.FieldMode == FieldModeUpper,
			Data:              [][]byte{frame.Image},
			Linesize:          []int{format.Width * 4},
		}
		s.pts++
		return f, nil
	case MediaTypeAudio:
		channels := max(1, format.Channels)
		n := len(frame.Audio) / channels
		if n == 0 {
			return nil, nil
		}
		f := NewAudioFrame(SampleFormatS32, format.SampleRate, DefaultChannelLayout(channels), n)
		for i, v := range frame.Audio[:n*channels] {
			binary.LittleEndian.PutUint32(f.Data[0][i*4:], uint32(v))
		}
		f.PTS = s.pts
		s.pts += int64(n)
		return f, nil
	}
	return nil, nil
}

// drain moves data from graph to encoder to cb until either side needs
// more input.
func (s *Stream) drain(cb func(*Packet) error) error {
	for !s.finished {
		pkt, err := s.enc.ReceivePacket()
		switch {
		case errors.Is(err, ErrAgain):
			f, err := s.pull()
			switch {
			case errors.Is(err, ErrAgain):
				return nil
			case errors.Is(err, io.EOF):
				if err := s.enc.SendFrame(nil); err != nil {
					return fmt.Errorf("%s encoder flush: %w", s.mediaType, err)
				}
			case err != nil:
				return fmt.Errorf("%s filter: %w", s.mediaType, err)
			default:
				if tb := s.enc.TimeBase(); !tb.IsZero() && tb != s.graphTB && f.PTS != NoPTS {
					f.PTS = Rescale(f.PTS, s.graphTB, tb)
				}
				if err := s.enc.SendFrame(f); err != nil {
					return fmt.Errorf("%s encode: %w", s.mediaType, err)
				}
			}
		case errors.Is(err, io.EOF):
			s.finished = true
		case err != nil:
			return fmt.Errorf("%s encode: %w", s.mediaType, err)
		default:
			pkt.StreamIndex = s.track.Index
			pkt.RescaleTS(s.enc.TimeBase(), s.track.TimeBase)
			if err := cb(pkt); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Stream) pull() (*Frame, error) {
	if s.sizer == nil {
		return s.graph.Pull()
	}
	for {
		if f := s.sizer.Pop(false); f != nil {
			return f, nil
		}
		f, err := s.graph.Pull()
		if errors.Is(err, io.EOF) {
			if f := s.sizer.Pop(true); f != nil {
				return f, nil
			}
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
		s.sizer.Push(f)
	}
}

// Close releases the graph and encoder.
func (s *Stream) Close() error {
	var errs []error
	if s.graph != nil {
		errs = append(errs, s.graph.Close())
		s.graph = nil
	}
	if s.enc != nil {
		errs = append(errs, s.enc.Close())
		s.enc = nil
	}
	return errors.Join(errs...)
}

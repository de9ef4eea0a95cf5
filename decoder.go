package media

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// maxPacketsPerReceive bounds the packets one Receive call consumes while
// waiting for a displayable frame.
const maxPacketsPerReceive = 32

// minRowsPerCopy keeps row ranges large enough to be worth a goroutine.
const minRowsPerCopy = 64

// VideoCodecContext is a persistent video decode context.
type VideoCodecContext interface {
	CodecID() CodecID
	Width() int
	Height() int
	PixelFormat() PixelFormat
	// Decode runs one decode step and returns the frames it completed.
	// An empty result means the decoder needs more input.
	Decode(pkt *Packet) ([]*Frame, error)
	// Flush drops all buffered decoder state.
	Flush()
	Close() error
	Provider() Provider
}

// DecoderConfig configures a video decode context.
type DecoderConfig struct {
	CodecID     CodecID
	Provider    Provider // ProviderAuto = library chooses
	Width       int
	Height      int
	PixelFormat PixelFormat
	Extradata   []byte
	Threads     int
}

type decoderFactory func(DecoderConfig) (VideoCodecContext, error)

type decoderRegistry struct {
	mu        sync.RWMutex
	providers map[CodecID]map[Provider]decoderFactory
	defaults  map[CodecID]Provider
	fallback  map[Provider]decoderFactory // handles any codec
}

var globalDecoderRegistry = &decoderRegistry{
	providers: make(map[CodecID]map[Provider]decoderFactory),
	defaults:  make(map[CodecID]Provider),
	fallback:  make(map[Provider]decoderFactory),
}

// registerVideoDecoder registers a decoder factory for a codec+provider.
func registerVideoDecoder(codec CodecID, provider Provider, factory decoderFactory) {
	r := globalDecoderRegistry
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.providers[codec] == nil {
		r.providers[codec] = make(map[Provider]decoderFactory)
	}
	r.providers[codec][provider] = factory

	current, exists := r.defaults[codec]
	if !exists || provider.preferred(current) {
		r.defaults[codec] = provider
	}
}

// registerFallbackDecoder registers a provider able to decode any codec it
// recognises at runtime.
func registerFallbackDecoder(provider Provider, factory decoderFactory) {
	r := globalDecoderRegistry
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback[provider] = factory
}

// NewVideoCodecContext opens a decode context for cfg.CodecID.
func NewVideoCodecContext(cfg DecoderConfig) (VideoCodecContext, error) {
	r := globalDecoderRegistry
	r.mu.RLock()
	defer r.mu.RUnlock()

	p := cfg.Provider
	if p == ProviderAuto {
		p = r.defaults[cfg.CodecID]
		for fp := range r.fallback {
			if fp.Available() && (p == ProviderAuto || fp.preferred(p)) {
				p = fp
			}
		}
	}
	if !p.Available() {
		return nil, fmt.Errorf("%w: %w: %s for %s", ErrConfig, ErrProviderNotFound, p, cfg.CodecID)
	}
	if f, ok := r.providers[cfg.CodecID][p]; ok {
		return f(cfg)
	}
	if f, ok := r.fallback[p]; ok {
		return f(cfg)
	}
	return nil, fmt.Errorf("%w: %w: %s", ErrConfig, ErrDecoderNotFound, cfg.CodecID)
}

// PacketSource is the upstream demuxer feeding a VideoDecoder.
type PacketSource interface {
	// TryPopVideoPacket returns the next queued packet. ok=false means
	// nothing is queued; a nil packet with ok=true is end of stream.
	TryPopVideoPacket() (pkt *Packet, ok bool)
	// VideoCodecContext returns the decode context of the video track,
	// or nil when the input has no video.
	VideoCodecContext() VideoCodecContext
}

// DecoderStats reports decoder counters.
type DecoderStats struct {
	PacketsDecoded uint64
	FramesDecoded  uint64
	Errors         uint64
	Flushes        uint64
}

// VideoDecoder turns compressed packets into numbered frames allocated by
// a FrameFactory.
type VideoDecoder struct {
	input     PacketSource
	codec     VideoCodecContext
	factory   FrameFactory
	desc      PixelFormatDesc
	converter ColorConverter
	seq       int
	log       *slog.Logger

	packets atomic.Uint64
	frames  atomic.Uint64
	errors  atomic.Uint64
	flushes atomic.Uint64
}

// NewVideoDecoder binds a decoder to the video track of input. When the
// native pixel format is not directly representable the decoder converts
// every frame to BGRA. If log is nil, slog.Default() is used.
func NewVideoDecoder(input PacketSource, factory FrameFactory, log *slog.Logger) (*VideoDecoder, error) {
	if log == nil {
		log = slog.Default()
	}
	codec := input.VideoCodecContext()
	if codec == nil {
		return nil, fmt.Errorf("%w: %w: input has no video track", ErrConfig, ErrMediaType)
	}

	d := &VideoDecoder{
		input:   input,
		codec:   codec,
		factory: factory,
		log:     log.With("component", "video-decoder", "codec", codec.CodecID().String()),
	}

	w, h := codec.Width(), codec.Height()
	d.desc = ResolvePixelFormat(codec.PixelFormat(), w, h)
	if !d.desc.Valid() {
		conv, err := NewColorConverter(codec.PixelFormat(), w, h, PixelFormatBGRA)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
		d.converter = conv
		d.desc = ResolvePixelFormat(PixelFormatBGRA, w, h)
		d.log.Debug("converting to bgra", "native", codec.PixelFormat().String(), "converter", conv.Provider().String())
	}
	return d, nil
}

// PixelFormat returns the layout of the frames this decoder produces.
func (d *VideoDecoder) PixelFormat() PixelFormatDesc { return d.desc }

// Receive pulls up to 32 queued packets, stopping at the first one that
// completes a frame.
func (d *VideoDecoder) Receive() ([]DecodedFrame, error) {
	var out []DecodedFrame
	for n := 0; n < maxPacketsPerReceive && len(out) == 0; n++ {
		pkt, ok := d.input.TryPopVideoPacket()
		if !ok {
			break
		}
		frames, err := d.Decode(pkt)
		if err != nil {
			return out, err
		}
		out = append(out, frames...)
	}
	return out, nil
}

// Decode decodes one packet. A nil packet flushes the decoder and resets
// the frame numbering.
func (d *VideoDecoder) Decode(pkt *Packet) ([]DecodedFrame, error) {
	if pkt == nil {
		d.codec.Flush()
		d.seq = 0
		d.flushes.Add(1)
		return nil, nil
	}

	d.packets.Add(1)
	frames, err := d.codec.Decode(pkt)
	if err != nil {
		d.errors.Add(1)
		decoderErrors.Inc()
		if errors.Is(err, ErrDecode) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	out := make([]DecodedFrame, 0, len(frames))
	for _, f := range frames {
		wf, err := d.materialize(f)
		if err != nil {
			d.errors.Add(1)
			decoderErrors.Inc()
			return out, err
		}
		out = append(out, DecodedFrame{Number: d.seq, PTS: f.PTS, Frame: wf})
		d.seq++
		d.frames.Add(1)
		decoderFrames.Inc()
	}
	return out, nil
}

func (d *VideoDecoder) materialize(src *Frame) (WriteFrame, error) {
	wf := d.factory.CreateFrame(d, d.desc)

	if d.converter != nil {
		dst := &Frame{
			MediaType:   MediaTypeVideo,
			Width:       src.Width,
			Height:      src.Height,
			PixelFormat: PixelFormatBGRA,
			Data:        [][]byte{wf.ImageData(0)},
			Linesize:    []int{d.desc.Planes[0].Linesize},
		}
		if err := d.converter.Convert(src, dst); err != nil {
			return nil, fmt.Errorf("%w: convert %s: %w", ErrDecode, src.PixelFormat, err)
		}
		wf.CommitAll()
	} else if err := copyPlanes(src, wf, d.desc); err != nil {
		return nil, err
	}

	if needsUpperFieldCorrection(d.codec.CodecID(), d.factory.VideoFormat().FieldMode) && src.Height > 0 {
		wf.Transform().SetFillTranslation(0, 0.5/float64(src.Height))
	}
	return wf, nil
}

// copyPlanes copies every plane of src into wf row by row, planes and row
// ranges in parallel, committing each plane once its rows are done.
func copyPlanes(src *Frame, wf WriteFrame, desc PixelFormatDesc) error {
	if len(src.Data) < len(desc.Planes) {
		return fmt.Errorf("%w: frame has %d planes, want %d", ErrDecode, len(src.Data), len(desc.Planes))
	}
	workers := runtime.GOMAXPROCS(0)

	var g errgroup.Group
	for n, plane := range desc.Planes {
		g.Go(func() error {
			dst := wf.ImageData(n)
			srcData, srcStride := src.Data[n], src.Linesize[n]
			width := min(plane.Linesize, srcStride)
			chunk := max(minRowsPerCopy, (plane.Height+workers-1)/workers)

			var rows errgroup.Group
			for y0 := 0; y0 < plane.Height; y0 += chunk {
				y1 := min(y0+chunk, plane.Height)
				rows.Go(func() error {
					for y := y0; y < y1; y++ {
						off := y * srcStride
						if off >= len(srcData) {
							return fmt.Errorf("%w: plane %d truncated at row %d", ErrDecode, n, y)
						}
						copy(dst[y*plane.Linesize:y*plane.Linesize+width], srcData[off:])
					}
					return nil
				})
			}
			if err := rows.Wait(); err != nil {
				return err
			}
			wf.Commit(n)
			return nil
		})
	}
	return g.Wait()
}

// needsUpperFieldCorrection reports whether frames of codec carry the
// opposite field order to an upper-field-first output.
func needsUpperFieldCorrection(codec CodecID, mode FieldMode) bool {
	return codec == CodecIDDVVideo && mode == FieldModeUpper
}

// Stats returns decoder counters.
func (d *VideoDecoder) Stats() DecoderStats {
	return DecoderStats{
		PacketsDecoded: d.packets.Load(),
		FramesDecoded:  d.frames.Load(),
		Errors:         d.errors.Load(),
		Flushes:        d.flushes.Load(),
	}
}

// Close releases the color converter. The codec context belongs to the input.
func (d *VideoDecoder) Close() error {
	if d.converter != nil {
		err := d.converter.Close()
		d.converter = nil
		return err
	}
	return nil
}

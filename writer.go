package media

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Queue capacities of the writer pipeline.
const (
	realtimeFrameBuffer = 1
	fileFrameBuffer     = 128
	packetBuffer        = 128
)

// writerIndexBase offsets the channel index in Index.
const writerIndexBase = 100000

// DefaultMediaFolder is where relative output paths are resolved when
// WriterConfig.MediaFolder is empty.
const DefaultMediaFolder = "media"

// WriterConfig configures a MediaWriter.
type WriterConfig struct {
	// Path is a file path or a stream URL.
	Path string
	// Args is an ffmpeg-style argument string, see ParseArgs.
	Args string
	// Realtime selects a one frame queue where the newest frame wins.
	Realtime bool
	// MediaFolder is the root for relative file paths.
	MediaFolder string
	Logger      *slog.Logger
}

// PreconfiguredWriterConfig is the configuration file form of a writer.
type PreconfiguredWriterConfig struct {
	Path        string `json:"path"`
	Args        string `json:"args"`
	Realtime    bool   `json:"realtime"`
	MediaFolder string `json:"media_folder,omitempty"`
}

// WriterStats reports writer counters.
type WriterStats struct {
	FramesSent    uint64
	FramesDropped uint64
	PacketsOut    uint64
	BytesOut      uint64
}

// MediaWriter encodes channel frames into a container file or stream.
//
// Frames are queued by Send, filtered and encoded by one goroutine and
// muxed by another. Send never blocks; when the frame queue is full the
// frame is dropped.
type MediaWriter struct {
	path        string
	args        string
	realtime    bool
	mediaFolder string
	log         *slog.Logger

	channelIndex atomic.Int64
	initialized  atomic.Bool

	frames  *Queue[*ChannelFrame]
	packets *Queue[*Packet]

	mux     Muxer
	streams []*Stream
	media   map[int]MediaType
	g       errgroup.Group

	sent    atomic.Uint64
	dropped atomic.Uint64
	pkts    atomic.Uint64
	bytes   atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

// NewMediaWriter creates a writer. Nothing is opened until Initialize.
func NewMediaWriter(cfg WriterConfig) *MediaWriter {
	if cfg.MediaFolder == "" {
		cfg.MediaFolder = DefaultMediaFolder
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	capacity := fileFrameBuffer
	if cfg.Realtime {
		capacity = realtimeFrameBuffer
	}
	w := &MediaWriter{
		path:        cfg.Path,
		args:        cfg.Args,
		realtime:    cfg.Realtime,
		mediaFolder: cfg.MediaFolder,
		frames:      NewQueue[*ChannelFrame](capacity),
		packets:     NewQueue[*Packet](packetBuffer),
		media:       make(map[int]MediaType),
	}
	w.channelIndex.Store(int64(crc16([]byte(cfg.Path))))
	w.log = cfg.Logger.With("component", "writer", "writer", w.String())
	return w
}

// crc16 is CRC-16/ARC (reflected polynomial 0x8005, zero init).
func crc16(b []byte) uint16 {
	var crc uint16
	for _, c := range b {
		crc ^= uint16(c)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// Initialize opens the container and starts the pipeline. It may only be
// called once.
func (w *MediaWriter) Initialize(format VideoFormatDesc, channelIndex int) (err error) {
	if !w.initialized.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %w: %s", ErrConfig, ErrReinitialize, w)
	}
	w.channelIndex.Store(int64(channelIndex))
	defer func() {
		if err != nil {
			w.frames.Abort()
		}
	}()

	opts := ParseArgs(w.args)
	target, err := w.resolvePath()
	if err != nil {
		return err
	}

	var of *OutputFormat
	if name, ok := opts["format"]; ok {
		opts = opts.Without("format")
		of, err = FindOutputFormat(name)
	} else {
		of, err = GuessOutputFormat(w.path)
	}
	if err != nil {
		return err
	}
	if w.mux, err = of.NewMuxer(); err != nil {
		return fmt.Errorf("allocate %s muxer: %w", of.Name, err)
	}

	defer func() {
		if err != nil {
			w.closeStreams()
			w.mux.CloseIO()
		}
	}()

	cfg := StreamConfig{Logger: w.log}
	for _, track := range []struct {
		suffix string
		codec  CodecID
	}{{":v", of.VideoCodec}, {":a", of.AudioCodec}} {
		if track.codec == CodecIDNone {
			continue
		}
		s, rest, err := NewStream(w.mux, track.suffix, track.codec, format, opts, cfg)
		if err != nil {
			return err
		}
		opts = rest
		w.streams = append(w.streams, s)
		w.media[s.Index()] = s.MediaType()
	}

	if !of.Flags.Has(FormatNoFile) {
		if opts, err = w.mux.OpenIO(target, opts); err != nil {
			return fmt.Errorf("open %s: %w", target, err)
		}
	}
	if opts, err = w.mux.WriteHeader(opts); err != nil {
		return fmt.Errorf("write %s header: %w", of.Name, err)
	}
	for _, k := range opts.Keys() {
		w.log.Warn("unused option", "option", k, "value", opts[k])
	}

	w.log.Info("initialized",
		"format", of.Name,
		"provider", of.Provider.String(),
		"streams", len(w.streams),
		"video_format", format.Name,
		"realtime", w.realtime)

	w.g.Go(func() error { return w.encodeLoop(format) })
	w.g.Go(w.writeLoop)
	return nil
}

// resolvePath places local paths under the media folder and prepares
// the destination. URLs are returned unchanged.
func (w *MediaWriter) resolvePath() (string, error) {
	if HasScheme(w.path) {
		return w.path, nil
	}
	p := w.path
	if u, err := url.Parse(p); err == nil && u.Scheme == "file" {
		p = u.Path
		if p == "" {
			p = u.Opaque
		}
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(w.mediaFolder, p)
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("remove %s: %w", p, err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Dir(p), err)
	}
	return p, nil
}

// Send queues a frame, or end of stream when frame is nil. The returned
// channel already holds the result: false once the pipeline has stopped.
func (w *MediaWriter) Send(frame *ChannelFrame) <-chan bool {
	ch := make(chan bool, 1)
	ch <- w.send(frame)
	return ch
}

func (w *MediaWriter) send(frame *ChannelFrame) bool {
	if frame == nil {
		return w.frames.Close() == nil
	}
	if w.realtime {
		evicted, err := w.frames.PushLatest(frame)
		if err != nil {
			return false
		}
		w.drop(evicted)
	} else if !w.frames.TryPush(frame) {
		if w.frames.Closed() {
			return false
		}
		w.drop(1)
		return true
	}
	w.sent.Add(1)
	writerFramesTotal.WithLabelValues(w.metricLabel()).Inc()
	return true
}

func (w *MediaWriter) drop(n int) {
	if n == 0 {
		return
	}
	w.dropped.Add(uint64(n))
	writerFramesDropped.WithLabelValues(w.metricLabel()).Add(float64(n))
	w.log.Debug("dropped frame", "count", n)
}

// encodeLoop is stage 2: frames in, packets out.
func (w *MediaWriter) encodeLoop(format VideoFormatDesc) error {
	err := recovered(func() error { return w.encode(format) })
	if err != nil {
		w.log.Error("encode failed", "error", err)
		w.frames.Abort()
	}
	// Stage 3 still finalizes whatever reached it.
	w.packets.Close()
	return err
}

// recovered runs fn and turns a panic into an error, so a stage that
// fails this way still releases the other stages.
func recovered(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn()
}

func (w *MediaWriter) encode(format VideoFormatDesc) error {
	elapsed := writerFrameSeconds.WithLabelValues(w.metricLabel())
	push := func(pkt *Packet) error { return w.packets.Push(pkt) }
	for {
		frame, err := w.frames.Pop()
		if errors.Is(err, io.EOF) {
			for _, s := range w.streams {
				if err := s.Send(nil, format, push); err != nil {
					return err
				}
			}
			return nil
		}
		if err != nil {
			return err
		}

		start := time.Now()
		for _, s := range w.streams {
			if err := s.Send(frame, format, push); err != nil {
				return err
			}
		}
		elapsed.Observe(time.Since(start).Seconds())
	}
}

// writeLoop is stage 3: packets into the container, then the trailer.
func (w *MediaWriter) writeLoop() error {
	err := recovered(w.write)
	if err != nil {
		w.log.Error("write failed", "error", err)
		w.packets.Abort()
		w.mux.CloseIO()
		return err
	}
	if err := w.mux.CloseIO(); err != nil {
		w.log.Error("close failed", "error", err)
		return err
	}
	w.log.Info("finalized", "packets", w.pkts.Load(), "bytes", w.bytes.Load())
	return nil
}

func (w *MediaWriter) write() error {
	label := w.metricLabel()
	for {
		pkt, err := w.packets.Pop()
		if errors.Is(err, io.EOF) {
			return w.mux.WriteTrailer()
		}
		if err != nil {
			return err
		}
		mt, size := w.media[pkt.StreamIndex], len(pkt.Data)
		if err := w.mux.WriteInterleaved(pkt); err != nil {
			return err
		}
		w.pkts.Add(1)
		w.bytes.Add(uint64(size))
		writerPacketsTotal.WithLabelValues(label, mt.String()).Inc()
		writerBytesTotal.WithLabelValues(label).Add(float64(size))
	}
}

// Close ends the stream if Send(nil) has not, waits for the container to
// be finalized and returns the first pipeline error.
func (w *MediaWriter) Close() error {
	w.closeOnce.Do(func() {
		w.frames.Close()
		if w.initialized.Load() {
			w.closeErr = w.g.Wait()
		}
		w.closeStreams()
	})
	return w.closeErr
}

func (w *MediaWriter) closeStreams() {
	for _, s := range w.streams {
		if err := s.Close(); err != nil {
			w.log.Warn("close stream", "media", s.MediaType().String(), "error", err)
		}
	}
	w.streams = nil
}

// String returns ffmpeg[path].
func (w *MediaWriter) String() string { return "ffmpeg[" + w.path + "]" }

// Name returns the consumer type name.
func (w *MediaWriter) Name() string { return "ffmpeg" }

// metricLabel identifies the writer in metrics. Paths and URLs are not
// used since they may carry stream keys and are unbounded.
func (w *MediaWriter) metricLabel() string { return strconv.Itoa(w.Index()) }

// Index orders the writer among a channel's consumers.
func (w *MediaWriter) Index() int { return writerIndexBase + int(w.channelIndex.Load()) }

// HasSynchronizationClock is false: a writer never paces its channel.
func (w *MediaWriter) HasSynchronizationClock() bool { return false }

// BufferDepth is -1: the writer adds no output delay.
func (w *MediaWriter) BufferDepth() int { return -1 }

// Realtime reports whether the writer drops all but the newest frame.
func (w *MediaWriter) Realtime() bool { return w.realtime }

// Stats returns writer counters.
func (w *MediaWriter) Stats() WriterStats {
	return WriterStats{
		FramesSent:    w.sent.Load(),
		FramesDropped: w.dropped.Load(),
		PacketsOut:    w.pkts.Load(),
		BytesOut:      w.bytes.Load(),
	}
}

// CreateConsumer builds a writer from "FILE|STREAM <path> [args...]".
// STREAM selects realtime buffering. It returns nil, nil when params are
// not a writer command.
func CreateConsumer(params []string, mediaFolder string) (*MediaWriter, error) {
	if len(params) < 2 {
		return nil, nil
	}
	var realtime bool
	switch {
	case strings.EqualFold(params[0], "STREAM"):
		realtime = true
	case strings.EqualFold(params[0], "FILE"):
	default:
		return nil, nil
	}
	if params[1] == "" {
		return nil, fmt.Errorf("%w: %s needs a path", ErrConfig, strings.ToUpper(params[0]))
	}
	return NewMediaWriter(WriterConfig{
		Path:        params[1],
		Args:        strings.Join(params[2:], " "),
		Realtime:    realtime,
		MediaFolder: mediaFolder,
	}), nil
}

// CreatePreconfiguredConsumer builds a writer from its configuration
// file form. A media_folder in the file wins over mediaFolder.
func CreatePreconfiguredConsumer(cfg PreconfiguredWriterConfig, mediaFolder string) (*MediaWriter, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: preconfigured writer needs a path", ErrConfig)
	}
	if cfg.MediaFolder != "" {
		mediaFolder = cfg.MediaFolder
	}
	return NewMediaWriter(WriterConfig{
		Path:        cfg.Path,
		Args:        cfg.Args,
		Realtime:    cfg.Realtime,
		MediaFolder: mediaFolder,
	}), nil
}

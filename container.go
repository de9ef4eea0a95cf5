package media

import (
	"fmt"
	"io"
	"maps"
	"math/big"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// FormatFlags describe container requirements.
type FormatFlags uint32

const (
	// FormatGlobalHeader means codec headers go in the stream parameters,
	// so encoders must be opened with EncoderFlagGlobalHeader.
	FormatGlobalHeader FormatFlags = 1 << iota
	// FormatNoFile means the muxer handles its own I/O.
	FormatNoFile
)

// Has returns true if all of f2 is set.
func (f FormatFlags) Has(f2 FormatFlags) bool { return f&f2 == f2 }

// OutputFormat describes a container format.
type OutputFormat struct {
	Name       string
	LongName   string
	Extensions []string
	VideoCodec CodecID
	AudioCodec CodecID
	Flags      FormatFlags
	Provider   Provider

	alloc func(of *OutputFormat) (Muxer, error)
}

// NewMuxer allocates a muxer for the format.
func (of *OutputFormat) NewMuxer() (Muxer, error) { return of.alloc(of) }

// MuxStream is one track of a muxer.
type MuxStream struct {
	Index  int
	Params CodecParameters
	// TimeBase is the track time base. Muxers may change it when the
	// header is written.
	TimeBase Rational
	// Encoder is the context producing the track, if any.
	Encoder EncoderContext
}

// Muxer writes packets of one or more streams into a container.
type Muxer interface {
	Format() *OutputFormat
	NewStream(params CodecParameters, tb Rational) (*MuxStream, error)
	Streams() []*MuxStream
	// OpenIO opens the destination and returns the options it did not use.
	OpenIO(url string, opts Options) (Options, error)
	WriteHeader(opts Options) (Options, error)
	// WriteInterleaved takes ownership of pkt. Timestamps are in the
	// track time base.
	WriteInterleaved(pkt *Packet) error
	WriteTrailer() error
	CloseIO() error
}

var formatRegistry = struct {
	mu      sync.RWMutex
	formats map[string]*OutputFormat
	native  func(name string) *OutputFormat
	guess   func(path string) *OutputFormat
}{formats: make(map[string]*OutputFormat)}

func registerOutputFormat(of *OutputFormat) {
	formatRegistry.mu.Lock()
	defer formatRegistry.mu.Unlock()
	formatRegistry.formats[of.Name] = of
}

// FindOutputFormat returns the named container format, preferring the
// native implementation.
func FindOutputFormat(name string) (*OutputFormat, error) {
	formatRegistry.mu.RLock()
	defer formatRegistry.mu.RUnlock()
	if formatRegistry.native != nil && ProviderFFmpeg.Available() {
		if of := formatRegistry.native(name); of != nil {
			return of, nil
		}
	}
	if of, ok := formatRegistry.formats[name]; ok {
		return of, nil
	}
	return nil, fmt.Errorf("%w: %w: %q", ErrConfig, ErrFormatNotFound, name)
}

// schemeFormats maps stream URL schemes to their container.
var schemeFormats = map[string]string{
	"srt":  "mpegts",
	"udp":  "mpegts",
	"rtp":  "mpegts",
	"rtmp": "flv",
}

// GuessOutputFormat picks a container for path from its URL scheme or
// file extension.
func GuessOutputFormat(path string) (*OutputFormat, error) {
	if u, err := url.Parse(path); err == nil {
		if name, ok := schemeFormats[strings.ToLower(u.Scheme)]; ok {
			return FindOutputFormat(name)
		}
	}

	formatRegistry.mu.RLock()
	native, guess := formatRegistry.native, formatRegistry.guess
	formatRegistry.mu.RUnlock()
	if guess != nil && native != nil && ProviderFFmpeg.Available() {
		if of := guess(path); of != nil {
			return of, nil
		}
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext != "" {
		formatRegistry.mu.RLock()
		defer formatRegistry.mu.RUnlock()
		for _, name := range slices.Sorted(maps.Keys(formatRegistry.formats)) {
			if of := formatRegistry.formats[name]; slices.Contains(of.Extensions, ext) {
				return of, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %w: cannot guess format of %q", ErrConfig, ErrFormatNotFound, path)
}

// goMuxerImpl is the container-specific part of a pure Go muxer.
type goMuxerImpl interface {
	writeHeader(m *goMuxer) error
	writePacket(m *goMuxer, pkt *Packet) error
	writeTrailer(m *goMuxer) error
}

// goMuxer handles streams, I/O and interleaving for the Go containers.
type goMuxer struct {
	format  *OutputFormat
	impl    goMuxerImpl
	streams []*MuxStream
	w       io.WriteCloser
	il      interleaver
	header  bool
}

func newGoMuxer(of *OutputFormat, impl goMuxerImpl) *goMuxer {
	return &goMuxer{format: of, impl: impl}
}

func (m *goMuxer) Format() *OutputFormat { return m.format }
func (m *goMuxer) Streams() []*MuxStream { return m.streams }

func (m *goMuxer) write(b []byte) error {
	_, err := m.w.Write(b)
	return err
}

func (m *goMuxer) NewStream(params CodecParameters, tb Rational) (*MuxStream, error) {
	if m.header {
		return nil, fmt.Errorf("%s: cannot add streams after the header", m.format.Name)
	}
	s := &MuxStream{Index: len(m.streams), Params: params, TimeBase: tb}
	m.streams = append(m.streams, s)
	return s, nil
}

func (m *goMuxer) OpenIO(url string, opts Options) (Options, error) {
	w, rest, err := OpenSink(url, opts)
	if err != nil {
		return opts, err
	}
	m.w = w
	return rest, nil
}

func (m *goMuxer) WriteHeader(opts Options) (Options, error) {
	if m.w == nil && !m.format.Flags.Has(FormatNoFile) {
		return opts, fmt.Errorf("%s: I/O not open", m.format.Name)
	}
	if err := m.impl.writeHeader(m); err != nil {
		return opts, err
	}
	m.header = true
	m.il.streams = m.streams
	return opts, nil
}

func (m *goMuxer) WriteInterleaved(pkt *Packet) error {
	if !m.header {
		return fmt.Errorf("%s: header not written", m.format.Name)
	}
	if pkt.StreamIndex < 0 || pkt.StreamIndex >= len(m.streams) {
		return fmt.Errorf("%s: invalid stream index %d", m.format.Name, pkt.StreamIndex)
	}
	if pkt.DTS == NoPTS {
		pkt.DTS = pkt.PTS
	}
	m.il.push(pkt)
	for {
		p := m.il.pop(false)
		if p == nil {
			return nil
		}
		if err := m.impl.writePacket(m, p); err != nil {
			return err
		}
	}
}

func (m *goMuxer) WriteTrailer() error {
	for {
		p := m.il.pop(true)
		if p == nil {
			break
		}
		if err := m.impl.writePacket(m, p); err != nil {
			return err
		}
	}
	return m.impl.writeTrailer(m)
}

func (m *goMuxer) CloseIO() error {
	if m.w == nil {
		return nil
	}
	err := m.w.Close()
	m.w = nil
	return err
}

// interleaver orders packets of all streams by DTS. A packet is released
// once every stream has at least one packet queued, or on flush.
type interleaver struct {
	streams []*MuxStream
	queue   []*Packet
	counts  []int
}

func (il *interleaver) before(a, b *Packet) bool {
	ta, tb := il.streams[a.StreamIndex].TimeBase, il.streams[b.StreamIndex].TimeBase
	return compareTS(a.DTS, ta, b.DTS, tb) < 0
}

func (il *interleaver) push(p *Packet) {
	if len(il.counts) < len(il.streams) {
		il.counts = make([]int, len(il.streams))
	}
	i := len(il.queue)
	for i > 0 && il.before(p, il.queue[i-1]) {
		i--
	}
	il.queue = slices.Insert(il.queue, i, p)
	il.counts[p.StreamIndex]++
}

func (il *interleaver) pop(flush bool) *Packet {
	if len(il.queue) == 0 {
		return nil
	}
	if !flush {
		for _, n := range il.counts {
			if n == 0 {
				return nil
			}
		}
	}
	p := il.queue[0]
	il.queue = il.queue[1:]
	il.counts[p.StreamIndex]--
	return p
}

// compareTS compares timestamps in different time bases, like
// av_compare_ts.
func compareTS(a int64, ta Rational, b int64, tb Rational) int {
	l := new(big.Int).Mul(big.NewInt(a), big.NewInt(int64(ta.Num)*int64(tb.Den)))
	r := new(big.Int).Mul(big.NewInt(b), big.NewInt(int64(tb.Num)*int64(ta.Den)))
	return l.Cmp(r)
}

func init() {
	registerOutputFormat(&OutputFormat{
		Name:       "null",
		LongName:   "raw null video",
		VideoCodec: CodecIDRawVideo,
		AudioCodec: CodecIDPCMS16LE,
		Flags:      FormatNoFile,
		Provider:   ProviderGo,
		alloc: func(of *OutputFormat) (Muxer, error) {
			return newGoMuxer(of, nullMuxer{}), nil
		},
	})
}

type nullMuxer struct{}

func (nullMuxer) writeHeader(*goMuxer) error          { return nil }
func (nullMuxer) writePacket(*goMuxer, *Packet) error { return nil }
func (nullMuxer) writeTrailer(*goMuxer) error         { return nil }

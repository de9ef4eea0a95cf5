package media

import (
	"fmt"
	"slices"
	"sync"
)

// EncoderFlags are codec context flags set before opening.
type EncoderFlags uint32

const (
	// EncoderFlagGlobalHeader places codec headers in extradata instead of
	// every keyframe.
	EncoderFlagGlobalHeader EncoderFlags = 1 << iota
)

// Has returns true if all of f2 is set.
func (f EncoderFlags) Has(f2 EncoderFlags) bool { return f&f2 == f2 }

// EncoderParams configures an encoder before Open.
type EncoderParams struct {
	MediaType MediaType
	TimeBase  Rational
	Flags     EncoderFlags

	// Video
	Width             int
	Height            int
	PixelFormat       PixelFormat
	SampleAspectRatio Rational
	FrameRate         Rational
	FieldMode         FieldMode

	// Audio
	SampleFormat  SampleFormat
	SampleRate    int
	ChannelLayout ChannelLayout
}

// EncoderCaps lists what an encoder accepts. Empty lists mean anything.
type EncoderCaps struct {
	PixelFormats      []PixelFormat
	SampleFormats     []SampleFormat
	ChannelLayouts    []ChannelLayout
	SampleRates       []int
	VariableFrameSize bool
}

// EncoderContext is an opened (or openable) encoder instance.
type EncoderContext interface {
	// Open configures the encoder. It returns the options it did not use.
	Open(params EncoderParams, opts Options) (Options, error)
	// SendFrame queues a frame; nil starts draining.
	SendFrame(f *Frame) error
	// ReceivePacket returns ErrAgain when more input is needed and io.EOF
	// once fully drained.
	ReceivePacket() (*Packet, error)
	TimeBase() Rational
	// FrameSize is the fixed number of audio samples per frame, or 0.
	FrameSize() int
	Parameters() CodecParameters
	Close() error
}

// Encoder describes an available encoder implementation.
type Encoder struct {
	Name      string
	CodecID   CodecID
	MediaType MediaType
	Provider  Provider
	Caps      EncoderCaps

	alloc func() (EncoderContext, error)
}

// NewContext allocates an unopened encoder context.
func (e *Encoder) NewContext() (EncoderContext, error) { return e.alloc() }

// --- Registry ---

type encoderLookup struct {
	byID   func(CodecID) *Encoder
	byName func(string) *Encoder
}

type encoderRegistry struct {
	mu sync.RWMutex

	// Provider-aware registry: codec -> provider -> encoder
	providers map[CodecID]map[Provider]*Encoder
	// Providers that resolve encoders at runtime, e.g. from libavcodec.
	lookups map[Provider]encoderLookup
}

var globalEncoderRegistry = &encoderRegistry{
	providers: make(map[CodecID]map[Provider]*Encoder),
	lookups:   make(map[Provider]encoderLookup),
}

// registerEncoder registers a static encoder.
func registerEncoder(e *Encoder) {
	r := globalEncoderRegistry
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.providers[e.CodecID] == nil {
		r.providers[e.CodecID] = make(map[Provider]*Encoder)
	}
	r.providers[e.CodecID][e.Provider] = e
}

func registerEncoderLookup(p Provider, l encoderLookup) {
	r := globalEncoderRegistry
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups[p] = l
}

func (r *encoderRegistry) candidates(id CodecID) []*Encoder {
	var out []*Encoder
	for _, e := range r.providers[id] {
		if e.Provider.Available() {
			out = append(out, e)
		}
	}
	for p, l := range r.lookups {
		if p.Available() && l.byID != nil {
			if e := l.byID(id); e != nil {
				out = append(out, e)
			}
		}
	}
	slices.SortFunc(out, func(a, b *Encoder) int {
		if a.Provider.preferred(b.Provider) {
			return -1
		}
		if b.Provider.preferred(a.Provider) {
			return 1
		}
		return 0
	})
	return out
}

// FindEncoder returns the preferred encoder for a codec.
func FindEncoder(id CodecID) (*Encoder, error) {
	globalEncoderRegistry.mu.RLock()
	defer globalEncoderRegistry.mu.RUnlock()

	if c := globalEncoderRegistry.candidates(id); len(c) > 0 {
		return c[0], nil
	}
	return nil, fmt.Errorf("%w: %w: %s", ErrConfig, ErrEncoderNotFound, id)
}

// FindEncoderByName resolves an encoder by implementation name (such as
// "libx264") or by codec name.
func FindEncoderByName(name string) (*Encoder, error) {
	r := globalEncoderRegistry
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, byProvider := range r.providers {
		for _, e := range byProvider {
			if e.Name == name && e.Provider.Available() {
				return e, nil
			}
		}
	}
	for p, l := range r.lookups {
		if p.Available() && l.byName != nil {
			if e := l.byName(name); e != nil {
				return e, nil
			}
		}
	}
	if id, ok := CodecByName(name); ok {
		if c := r.candidates(id); len(c) > 0 {
			return c[0], nil
		}
	}
	return nil, fmt.Errorf("%w: %w: %q", ErrConfig, ErrEncoderNotFound, name)
}

// EncoderProviders returns available providers for a codec.
func EncoderProviders(id CodecID) []Provider {
	globalEncoderRegistry.mu.RLock()
	defer globalEncoderRegistry.mu.RUnlock()

	var out []Provider
	for _, e := range globalEncoderRegistry.candidates(id) {
		out = append(out, e.Provider)
	}
	return out
}

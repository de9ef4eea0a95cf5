package media

import "sync"

// ImageTransform is the presentation transform a mixer applies to a frame.
type ImageTransform struct {
	FillTranslation [2]float64
	FillScale       [2]float64
}

// SetFillTranslation sets the sub-frame translation in normalized units.
func (t *ImageTransform) SetFillTranslation(x, y float64) {
	t.FillTranslation = [2]float64{x, y}
}

// WriteFrame is a writable multi-plane frame allocated by a FrameFactory.
type WriteFrame interface {
	// ImageData returns the writable bytes of plane n.
	ImageData(n int) []byte
	// Commit signals that plane n is complete.
	Commit(n int)
	// CommitAll signals that every plane is complete.
	CommitAll()
	Transform() *ImageTransform
	PixelFormat() PixelFormatDesc
	Tag() any
}

// FrameFactory allocates frames for producers.
type FrameFactory interface {
	CreateFrame(tag any, desc PixelFormatDesc) WriteFrame
	VideoFormat() VideoFormatDesc
}

// HostFrame is a WriteFrame backed by host memory. Consumers can wait on
// individual planes with PlaneReady.
type HostFrame struct {
	tag       any
	desc      PixelFormatDesc
	planes    [][]byte
	ready     []chan struct{}
	once      []sync.Once
	transform ImageTransform
}

// NewHostFrame allocates one buffer per plane of desc.
func NewHostFrame(tag any, desc PixelFormatDesc) *HostFrame {
	f := &HostFrame{
		tag:       tag,
		desc:      desc,
		planes:    make([][]byte, len(desc.Planes)),
		ready:     make([]chan struct{}, len(desc.Planes)),
		once:      make([]sync.Once, len(desc.Planes)),
		transform: ImageTransform{FillScale: [2]float64{1, 1}},
	}
	for i, p := range desc.Planes {
		f.planes[i] = make([]byte, p.Size())
		f.ready[i] = make(chan struct{})
	}
	return f
}

func (f *HostFrame) ImageData(n int) []byte       { return f.planes[n] }
func (f *HostFrame) Transform() *ImageTransform   { return &f.transform }
func (f *HostFrame) PixelFormat() PixelFormatDesc { return f.desc }
func (f *HostFrame) Tag() any                     { return f.tag }

func (f *HostFrame) Commit(n int) {
	f.once[n].Do(func() { close(f.ready[n]) })
}

func (f *HostFrame) CommitAll() {
	for i := range f.ready {
		f.Commit(i)
	}
}

// PlaneReady returns a channel closed once plane n is committed.
func (f *HostFrame) PlaneReady(n int) <-chan struct{} { return f.ready[n] }

// Committed reports whether every plane has been committed.
func (f *HostFrame) Committed() bool {
	for _, c := range f.ready {
		select {
		case <-c:
		default:
			return false
		}
	}
	return true
}

type hostFrameFactory struct {
	format VideoFormatDesc
}

// NewFrameFactory returns a FrameFactory producing HostFrames for a
// channel of the given format.
func NewFrameFactory(format VideoFormatDesc) FrameFactory {
	return &hostFrameFactory{format: format}
}

func (h *hostFrameFactory) CreateFrame(tag any, desc PixelFormatDesc) WriteFrame {
	return NewHostFrame(tag, desc)
}

func (h *hostFrameFactory) VideoFormat() VideoFormatDesc { return h.format }

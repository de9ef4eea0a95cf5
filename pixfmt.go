package media

import "strings"

// PixelFormat identifies a native pixel layout. Values mirror libavutil's
// AVPixelFormat so native backends convert by value.
type PixelFormat int32

const (
	PixelFormatNone     PixelFormat = -1
	PixelFormatYUV420P  PixelFormat = 0
	PixelFormatYUYV422  PixelFormat = 1
	PixelFormatRGB24    PixelFormat = 2
	PixelFormatBGR24    PixelFormat = 3
	PixelFormatYUV422P  PixelFormat = 4
	PixelFormatYUV444P  PixelFormat = 5
	PixelFormatYUV410P  PixelFormat = 6
	PixelFormatYUV411P  PixelFormat = 7
	PixelFormatGray8    PixelFormat = 8
	PixelFormatPAL8     PixelFormat = 11
	PixelFormatYUVJ420P PixelFormat = 12
	PixelFormatYUVJ422P PixelFormat = 13
	PixelFormatYUVJ444P PixelFormat = 14
	PixelFormatUYVY422  PixelFormat = 15
	PixelFormatNV12     PixelFormat = 23
	PixelFormatNV21     PixelFormat = 24
	PixelFormatARGB     PixelFormat = 25
	PixelFormatRGBA     PixelFormat = 26
	PixelFormatABGR     PixelFormat = 27
	PixelFormatBGRA     PixelFormat = 28
	PixelFormatGray16LE PixelFormat = 30
	PixelFormatYUVA420P PixelFormat = 33
)

var pixelFormatNames = map[PixelFormat]string{
	PixelFormatYUV420P:  "yuv420p",
	PixelFormatYUYV422:  "yuyv422",
	PixelFormatRGB24:    "rgb24",
	PixelFormatBGR24:    "bgr24",
	PixelFormatYUV422P:  "yuv422p",
	PixelFormatYUV444P:  "yuv444p",
	PixelFormatYUV410P:  "yuv410p",
	PixelFormatYUV411P:  "yuv411p",
	PixelFormatGray8:    "gray",
	PixelFormatPAL8:     "pal8",
	PixelFormatYUVJ420P: "yuvj420p",
	PixelFormatYUVJ422P: "yuvj422p",
	PixelFormatYUVJ444P: "yuvj444p",
	PixelFormatUYVY422:  "uyvy422",
	PixelFormatNV12:     "nv12",
	PixelFormatNV21:     "nv21",
	PixelFormatARGB:     "argb",
	PixelFormatRGBA:     "rgba",
	PixelFormatABGR:     "abgr",
	PixelFormatBGRA:     "bgra",
	PixelFormatGray16LE: "gray16le",
	PixelFormatYUVA420P: "yuva420p",
}

func (f PixelFormat) String() string {
	if n, ok := pixelFormatNames[f]; ok {
		return n
	}
	return "none"
}

// ParsePixelFormat returns the format with the given FFmpeg name.
func ParsePixelFormat(name string) PixelFormat {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "gray8" {
		return PixelFormatGray8
	}
	for f, n := range pixelFormatNames {
		if n == name {
			return f
		}
	}
	return PixelFormatNone
}

// PixelKind classifies a resolved pixel layout.
type PixelKind uint8

const (
	PixelKindInvalid PixelKind = iota
	PixelKindGray
	PixelKindBGRA
	PixelKindARGB
	PixelKindRGBA
	PixelKindABGR
	PixelKindYCbCr
	PixelKindYCbCrA
)

func (k PixelKind) String() string {
	switch k {
	case PixelKindGray:
		return "gray"
	case PixelKindBGRA:
		return "bgra"
	case PixelKindARGB:
		return "argb"
	case PixelKindRGBA:
		return "rgba"
	case PixelKindABGR:
		return "abgr"
	case PixelKindYCbCr:
		return "ycbcr"
	case PixelKindYCbCrA:
		return "ycbcra"
	default:
		return "invalid"
	}
}

// Plane describes one buffer of a frame.
type Plane struct {
	Linesize int // bytes per row, including padding
	Width    int // logical width in pixels
	Height   int // rows
	Channels int // interleaved channels per pixel
}

// Size returns the plane size in bytes.
func (p Plane) Size() int { return p.Linesize * p.Height }

// PixelFormatDesc is the portable description of a native pixel layout.
type PixelFormatDesc struct {
	Kind   PixelKind
	Format PixelFormat
	Planes []Plane
}

// Valid reports whether the layout was resolved.
func (d PixelFormatDesc) Valid() bool { return d.Kind != PixelKindInvalid }

// Size returns the total number of bytes over all planes.
func (d PixelFormatDesc) Size() int {
	n := 0
	for _, p := range d.Planes {
		n += p.Size()
	}
	return n
}

// linesizeAlign matches av_image_fill_linesizes with align=32.
const linesizeAlign = 32

func alignLinesize(n int) int {
	return (n + linesizeAlign - 1) &^ (linesizeAlign - 1)
}

// chromaShift returns log2 horizontal/vertical chroma subsampling for
// planar YCbCr formats.
func chromaShift(f PixelFormat) (sx, sy int, ok bool) {
	switch f {
	case PixelFormatYUV444P, PixelFormatYUVJ444P:
		return 0, 0, true
	case PixelFormatYUV422P, PixelFormatYUVJ422P:
		return 1, 0, true
	case PixelFormatYUV420P, PixelFormatYUVJ420P, PixelFormatYUVA420P:
		return 1, 1, true
	case PixelFormatYUV411P:
		return 2, 0, true
	case PixelFormatYUV410P:
		return 2, 2, true
	}
	return 0, 0, false
}

// ceilShift is -((-v) >> s), i.e. AV_CEIL_RSHIFT.
func ceilShift(v, s int) int { return -((-v) >> s) }

// ResolvePixelFormat maps a native pixel format to its plane layout.
// Unsupported formats resolve to PixelKindInvalid with no planes; callers
// fall back to converting into BGRA.
func ResolvePixelFormat(format PixelFormat, width, height int) PixelFormatDesc {
	desc := PixelFormatDesc{Format: format}
	if width <= 0 || height <= 0 {
		return PixelFormatDesc{Format: format}
	}

	packed := func(kind PixelKind) PixelFormatDesc {
		desc.Kind = kind
		desc.Planes = []Plane{{Linesize: alignLinesize(width * 4), Width: width, Height: height, Channels: 4}}
		return desc
	}

	switch format {
	case PixelFormatGray8:
		desc.Kind = PixelKindGray
		desc.Planes = []Plane{{Linesize: alignLinesize(width), Width: width, Height: height, Channels: 1}}
		return desc
	case PixelFormatBGRA:
		return packed(PixelKindBGRA)
	case PixelFormatARGB:
		return packed(PixelKindARGB)
	case PixelFormatRGBA:
		return packed(PixelKindRGBA)
	case PixelFormatABGR:
		return packed(PixelKindABGR)
	case PixelFormatYUV444P, PixelFormatYUV422P, PixelFormatYUV420P,
		PixelFormatYUV411P, PixelFormatYUV410P, PixelFormatYUVA420P:
		sx, sy, _ := chromaShift(format)
		cw, ch := ceilShift(width, sx), ceilShift(height, sy)
		luma := Plane{Linesize: alignLinesize(width), Width: width, Height: height, Channels: 1}
		chroma := Plane{Linesize: alignLinesize(cw), Width: cw, Height: ch, Channels: 1}
		desc.Kind = PixelKindYCbCr
		desc.Planes = []Plane{luma, chroma, chroma}
		if format == PixelFormatYUVA420P {
			desc.Kind = PixelKindYCbCrA
			desc.Planes = append(desc.Planes, luma)
		}
		return desc
	}
	return PixelFormatDesc{Format: format}
}

package media

import (
	"fmt"
	"sync"
)

// ColorConverter converts frames between pixel formats of the same size.
type ColorConverter interface {
	// Convert writes src into dst. dst must already be allocated with the
	// converter's target format and dimensions.
	Convert(src, dst *Frame) error
	Close() error
	Provider() Provider
}

type colorConverterFactory func(src PixelFormat, width, height int, dst PixelFormat) (ColorConverter, error)

var converterRegistry = struct {
	mu        sync.RWMutex
	factories map[Provider]colorConverterFactory
}{factories: make(map[Provider]colorConverterFactory)}

func registerColorConverter(p Provider, f colorConverterFactory) {
	converterRegistry.mu.Lock()
	defer converterRegistry.mu.Unlock()
	converterRegistry.factories[p] = f
}

func init() {
	registerColorConverter(ProviderGo, newGoColorConverter)
}

// NewColorConverter returns a converter from src to dst using the best
// available provider. It fails with ErrConversion when no provider can
// handle the pair.
func NewColorConverter(src PixelFormat, width, height int, dst PixelFormat) (ColorConverter, error) {
	converterRegistry.mu.RLock()
	defer converterRegistry.mu.RUnlock()

	var errs []error
	for _, p := range ProvidersWith(FeatureColorConvert) {
		f, ok := converterRegistry.factories[p]
		if !ok {
			continue
		}
		c, err := f(src, width, height, dst)
		if err == nil {
			return c, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p, err))
	}
	return nil, fmt.Errorf("%w: %s -> %s (%dx%d): %v", ErrConversion, src, dst, width, height, errs)
}

// planeLayout returns the 32-byte aligned plane layout for any format the
// pure Go converter understands, or nil.
func planeLayout(format PixelFormat, w, h int) []Plane {
	if d := ResolvePixelFormat(format, w, h); d.Valid() {
		return d.Planes
	}
	plane := func(bpp int) Plane {
		return Plane{Linesize: alignLinesize(w * bpp), Width: w, Height: h, Channels: bpp}
	}
	switch format {
	case PixelFormatYUVJ420P, PixelFormatYUVJ422P, PixelFormatYUVJ444P:
		sx, sy, _ := chromaShift(format)
		cw, ch := ceilShift(w, sx), ceilShift(h, sy)
		c := Plane{Linesize: alignLinesize(cw), Width: cw, Height: ch, Channels: 1}
		return []Plane{plane(1), c, c}
	case PixelFormatNV12, PixelFormatNV21:
		cw, ch := ceilShift(w, 1), ceilShift(h, 1)
		return []Plane{plane(1), {Linesize: alignLinesize(cw * 2), Width: cw, Height: ch, Channels: 2}}
	case PixelFormatYUYV422, PixelFormatUYVY422:
		return []Plane{{Linesize: alignLinesize(ceilShift(w, 1) * 4), Width: w, Height: h, Channels: 2}}
	case PixelFormatRGB24, PixelFormatBGR24:
		return []Plane{plane(3)}
	case PixelFormatGray16LE:
		return []Plane{plane(2)}
	}
	return nil
}

// goConvertible reports whether the pure Go converter handles format.
func goConvertible(format PixelFormat) bool {
	return planeLayout(format, 2, 2) != nil
}

type goColorConverter struct {
	src, dst PixelFormat
	w, h     int
	rgba     []byte
}

func newGoColorConverter(src PixelFormat, width, height int, dst PixelFormat) (ColorConverter, error) {
	if !goConvertible(src) || !goConvertible(dst) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNotSupported, src, dst)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid size %dx%d", width, height)
	}
	return &goColorConverter{src: src, dst: dst, w: width, h: height, rgba: make([]byte, width*height*4)}, nil
}

func (c *goColorConverter) Provider() Provider { return ProviderGo }
func (c *goColorConverter) Close() error       { return nil }

func (c *goColorConverter) Convert(src, dst *Frame) error {
	if src.Width != c.w || src.Height != c.h || src.PixelFormat != c.src {
		return fmt.Errorf("converter configured for %s %dx%d, got %s %dx%d",
			c.src, c.w, c.h, src.PixelFormat, src.Width, src.Height)
	}
	if dst.PixelFormat != c.dst || dst.Width != c.w || dst.Height != c.h {
		return fmt.Errorf("destination is %s %dx%d, want %s %dx%d",
			dst.PixelFormat, dst.Width, dst.Height, c.dst, c.w, c.h)
	}
	readRGBA(src, c.rgba)
	writeRGBA(c.rgba, dst)
	return nil
}

// ConvertFrame converts f into a newly allocated frame of format dst.
func ConvertFrame(f *Frame, dst PixelFormat) (*Frame, error) {
	if f.PixelFormat == dst {
		return f, nil
	}
	c, err := NewColorConverter(f.PixelFormat, f.Width, f.Height, dst)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	out := NewVideoFrame(dst, f.Width, f.Height)
	out.PTS = f.PTS
	out.SampleAspectRatio = f.SampleAspectRatio
	out.Interlaced, out.TopFieldFirst = f.Interlaced, f.TopFieldFirst
	if err := c.Convert(f, out); err != nil {
		return nil, err
	}
	return out, nil
}

func fullRange(f PixelFormat) bool {
	return f == PixelFormatYUVJ420P || f == PixelFormatYUVJ422P || f == PixelFormatYUVJ444P
}

func clamp8(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// yuvToRGB converts one BT.601 sample.
func yuvToRGB(y, u, v uint8, full bool) (r, g, b uint8) {
	d, e := int32(u)-128, int32(v)-128
	if full {
		c := int32(y) << 16
		return clamp8((c + 91881*e + 32768) >> 16),
			clamp8((c - 22554*d - 46802*e + 32768) >> 16),
			clamp8((c + 116130*d + 32768) >> 16)
	}
	c := 298 * (int32(y) - 16)
	return clamp8((c + 409*e + 128) >> 8),
		clamp8((c - 100*d - 208*e + 128) >> 8),
		clamp8((c + 516*d + 128) >> 8)
}

// rgbToYUV converts one pixel to BT.601.
func rgbToYUV(r, g, b uint8, full bool) (y, u, v uint8) {
	R, G, B := int32(r), int32(g), int32(b)
	if full {
		return clamp8((19595*R + 38470*G + 7471*B + 32768) >> 16),
			clamp8(((-11059*R - 21709*G + 32768*B + 32768) >> 16) + 128),
			clamp8(((32768*R - 27439*G - 5329*B + 32768) >> 16) + 128)
	}
	return clamp8(((66*R + 129*G + 25*B + 128) >> 8) + 16),
		clamp8(((-38*R - 74*G + 112*B + 128) >> 8) + 128),
		clamp8(((112*R - 94*G - 18*B + 128) >> 8) + 128)
}

// packedOrder returns the byte offsets of r, g, b, a within a pixel, with
// a = -1 when the format has no alpha.
func packedOrder(f PixelFormat) (r, g, b, a, bpp int) {
	switch f {
	case PixelFormatBGRA:
		return 2, 1, 0, 3, 4
	case PixelFormatRGBA:
		return 0, 1, 2, 3, 4
	case PixelFormatARGB:
		return 1, 2, 3, 0, 4
	case PixelFormatABGR:
		return 3, 2, 1, 0, 4
	case PixelFormatRGB24:
		return 0, 1, 2, -1, 3
	case PixelFormatBGR24:
		return 2, 1, 0, -1, 3
	}
	return 0, 0, 0, -1, 0
}

func readRGBA(f *Frame, out []byte) {
	w, h := f.Width, f.Height
	full := fullRange(f.PixelFormat)
	put := func(x, y int, r, g, b, a uint8) {
		i := (y*w + x) * 4
		out[i], out[i+1], out[i+2], out[i+3] = r, g, b, a
	}

	switch f.PixelFormat {
	case PixelFormatGray8:
		for y := 0; y < h; y++ {
			row := f.Data[0][y*f.Linesize[0]:]
			for x := 0; x < w; x++ {
				put(x, y, row[x], row[x], row[x], 255)
			}
		}
	case PixelFormatGray16LE:
		for y := 0; y < h; y++ {
			row := f.Data[0][y*f.Linesize[0]:]
			for x := 0; x < w; x++ {
				v := row[2*x+1]
				put(x, y, v, v, v, 255)
			}
		}
	case PixelFormatNV12, PixelFormatNV21:
		ui, vi := 0, 1
		if f.PixelFormat == PixelFormatNV21 {
			ui, vi = 1, 0
		}
		for y := 0; y < h; y++ {
			ly := f.Data[0][y*f.Linesize[0]:]
			cy := f.Data[1][(y>>1)*f.Linesize[1]:]
			for x := 0; x < w; x++ {
				c := (x >> 1) * 2
				r, g, b := yuvToRGB(ly[x], cy[c+ui], cy[c+vi], false)
				put(x, y, r, g, b, 255)
			}
		}
	case PixelFormatYUYV422, PixelFormatUYVY422:
		yo, uo, vo := 0, 1, 3
		if f.PixelFormat == PixelFormatUYVY422 {
			yo, uo, vo = 1, 0, 2
		}
		for y := 0; y < h; y++ {
			row := f.Data[0][y*f.Linesize[0]:]
			for x := 0; x < w; x++ {
				p := (x >> 1) * 4
				r, g, b := yuvToRGB(row[p+yo+(x&1)*2], row[p+uo], row[p+vo], false)
				put(x, y, r, g, b, 255)
			}
		}
	case PixelFormatBGRA, PixelFormatRGBA, PixelFormatARGB, PixelFormatABGR, PixelFormatRGB24, PixelFormatBGR24:
		ri, gi, bi, ai, bpp := packedOrder(f.PixelFormat)
		for y := 0; y < h; y++ {
			row := f.Data[0][y*f.Linesize[0]:]
			for x := 0; x < w; x++ {
				p := row[x*bpp:]
				a := uint8(255)
				if ai >= 0 {
					a = p[ai]
				}
				put(x, y, p[ri], p[gi], p[bi], a)
			}
		}
	default:
		sx, sy, _ := chromaShift(f.PixelFormat)
		for y := 0; y < h; y++ {
			ly := f.Data[0][y*f.Linesize[0]:]
			uy := f.Data[1][(y>>sy)*f.Linesize[1]:]
			vy := f.Data[2][(y>>sy)*f.Linesize[2]:]
			var ay []byte
			if len(f.Data) > 3 {
				ay = f.Data[3][y*f.Linesize[3]:]
			}
			for x := 0; x < w; x++ {
				r, g, b := yuvToRGB(ly[x], uy[x>>sx], vy[x>>sx], full)
				a := uint8(255)
				if ay != nil {
					a = ay[x]
				}
				put(x, y, r, g, b, a)
			}
		}
	}
}

func writeRGBA(in []byte, f *Frame) {
	w, h := f.Width, f.Height
	full := fullRange(f.PixelFormat)
	px := func(x, y int) (r, g, b, a uint8) {
		i := (y*w + x) * 4
		return in[i], in[i+1], in[i+2], in[i+3]
	}
	// chroma averages u and v over the block starting at (x0, y0).
	chroma := func(x0, y0, bw, bh int) (u, v uint8) {
		var su, sv, n int32
		for y := y0; y < y0+bh && y < h; y++ {
			for x := x0; x < x0+bw && x < w; x++ {
				r, g, b, _ := px(x, y)
				_, cu, cv := rgbToYUV(r, g, b, full)
				su += int32(cu)
				sv += int32(cv)
				n++
			}
		}
		return uint8((su + n/2) / n), uint8((sv + n/2) / n)
	}
	luma := func(plane int) {
		for y := 0; y < h; y++ {
			row := f.Data[plane][y*f.Linesize[plane]:]
			for x := 0; x < w; x++ {
				r, g, b, _ := px(x, y)
				row[x], _, _ = rgbToYUV(r, g, b, full)
			}
		}
	}

	switch f.PixelFormat {
	case PixelFormatGray8:
		// gray is full range
		for y := 0; y < h; y++ {
			row := f.Data[0][y*f.Linesize[0]:]
			for x := 0; x < w; x++ {
				r, g, b, _ := px(x, y)
				row[x], _, _ = rgbToYUV(r, g, b, true)
			}
		}
	case PixelFormatGray16LE:
		for y := 0; y < h; y++ {
			row := f.Data[0][y*f.Linesize[0]:]
			for x := 0; x < w; x++ {
				r, g, b, _ := px(x, y)
				v, _, _ := rgbToYUV(r, g, b, true)
				row[2*x], row[2*x+1] = v, v
			}
		}
	case PixelFormatNV12, PixelFormatNV21:
		luma(0)
		ui, vi := 0, 1
		if f.PixelFormat == PixelFormatNV21 {
			ui, vi = 1, 0
		}
		for cy := 0; cy < ceilShift(h, 1); cy++ {
			row := f.Data[1][cy*f.Linesize[1]:]
			for cx := 0; cx < ceilShift(w, 1); cx++ {
				u, v := chroma(cx*2, cy*2, 2, 2)
				row[cx*2+ui], row[cx*2+vi] = u, v
			}
		}
	case PixelFormatYUYV422, PixelFormatUYVY422:
		yo, uo, vo := 0, 1, 3
		if f.PixelFormat == PixelFormatUYVY422 {
			yo, uo, vo = 1, 0, 2
		}
		for y := 0; y < h; y++ {
			row := f.Data[0][y*f.Linesize[0]:]
			for x := 0; x < w; x += 2 {
				p := (x >> 1) * 4
				u, v := chroma(x, y, 2, 1)
				r, g, b, _ := px(x, y)
				row[p+yo], _, _ = rgbToYUV(r, g, b, false)
				if x+1 < w {
					r, g, b, _ = px(x+1, y)
				}
				row[p+yo+2], _, _ = rgbToYUV(r, g, b, false)
				row[p+uo], row[p+vo] = u, v
			}
		}
	case PixelFormatBGRA, PixelFormatRGBA, PixelFormatARGB, PixelFormatABGR, PixelFormatRGB24, PixelFormatBGR24:
		ri, gi, bi, ai, bpp := packedOrder(f.PixelFormat)
		for y := 0; y < h; y++ {
			row := f.Data[0][y*f.Linesize[0]:]
			for x := 0; x < w; x++ {
				r, g, b, a := px(x, y)
				p := row[x*bpp:]
				p[ri], p[gi], p[bi] = r, g, b
				if ai >= 0 {
					p[ai] = a
				}
			}
		}
	default:
		sx, sy, _ := chromaShift(f.PixelFormat)
		luma(0)
		for cy := 0; cy < ceilShift(h, sy); cy++ {
			ur := f.Data[1][cy*f.Linesize[1]:]
			vr := f.Data[2][cy*f.Linesize[2]:]
			for cx := 0; cx < ceilShift(w, sx); cx++ {
				ur[cx], vr[cx] = chroma(cx<<sx, cy<<sy, 1<<sx, 1<<sy)
			}
		}
		if len(f.Data) > 3 {
			for y := 0; y < h; y++ {
				row := f.Data[3][y*f.Linesize[3]:]
				for x := 0; x < w; x++ {
					_, _, _, row[x] = px(x, y)
				}
			}
		}
	}
}

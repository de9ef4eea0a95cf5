//go:build (darwin || linux) && !cgo

// libswscale loaded at runtime through purego.
//
// Library locations checked (in order):
//   - MEDIA_SWSCALE_LIB_PATH environment variable (file or directory)
//   - next to the executable, then build/ under the module root
//   - system library paths

package media

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	swscaleOnce    sync.Once
	swscaleHandle  uintptr
	swscaleInitErr error
)

// libswscale function pointers
var (
	swsGetContext        func(srcW, srcH, srcFormat, dstW, dstH, dstFormat, flags int32, srcFilter, dstFilter, param uintptr) uintptr
	swsScale             func(ctx uintptr, src *uintptr, srcStride *int32, sliceY, sliceH int32, dst *uintptr, dstStride *int32) int32
	swsFreeContext       func(ctx uintptr)
	swsIsSupportedInput  func(format int32) int32
	swsIsSupportedOutput func(format int32) int32
)

const swsBilinear = 2

func loadSwscale() error {
	swscaleOnce.Do(func() {
		handle, err := dlopenFirst(libraryPaths("MEDIA_SWSCALE_LIB_PATH", "libswscale", 9, 8, 7, 6, 5))
		if err != nil {
			swscaleInitErr = fmt.Errorf("failed to load libswscale: %w", err)
			return
		}
		swscaleHandle = handle
		purego.RegisterLibFunc(&swsGetContext, handle, "sws_getContext")
		purego.RegisterLibFunc(&swsScale, handle, "sws_scale")
		purego.RegisterLibFunc(&swsFreeContext, handle, "sws_freeContext")
		purego.RegisterLibFunc(&swsIsSupportedInput, handle, "sws_isSupportedInput")
		purego.RegisterLibFunc(&swsIsSupportedOutput, handle, "sws_isSupportedOutput")
	})
	return swscaleInitErr
}

func init() {
	if err := loadSwscale(); err != nil {
		return
	}
	setProviderAvailable(ProviderSwscale)
	registerColorConverter(ProviderSwscale, newSwscaleConverter)
}

// swscaleConverter runs sws_scale on frames of a fixed size. PixelFormat
// values are AVPixelFormat numbers, so they pass through unchanged.
type swscaleConverter struct {
	ctx      uintptr
	src, dst PixelFormat
	w, h     int
}

func newSwscaleConverter(src PixelFormat, width, height int, dst PixelFormat) (ColorConverter, error) {
	if swsIsSupportedInput(int32(src)) == 0 {
		return nil, fmt.Errorf("%w: swscale input %s", ErrNotSupported, src)
	}
	if swsIsSupportedOutput(int32(dst)) == 0 {
		return nil, fmt.Errorf("%w: swscale output %s", ErrNotSupported, dst)
	}
	ctx := swsGetContext(int32(width), int32(height), int32(src),
		int32(width), int32(height), int32(dst), swsBilinear, 0, 0, 0)
	if ctx == 0 {
		return nil, fmt.Errorf("sws_getContext %s -> %s %dx%d failed", src, dst, width, height)
	}
	c := &swscaleConverter{ctx: ctx, src: src, dst: dst, w: width, h: height}
	runtime.SetFinalizer(c, (*swscaleConverter).Close)
	return c, nil
}

func (c *swscaleConverter) Provider() Provider { return ProviderSwscale }

func planePointers(f *Frame) (ptrs [4]uintptr, strides [4]int32) {
	for i := 0; i < len(f.Data) && i < 4; i++ {
		if len(f.Data[i]) > 0 {
			ptrs[i] = uintptr(unsafe.Pointer(&f.Data[i][0]))
		}
		strides[i] = int32(f.Linesize[i])
	}
	return ptrs, strides
}

func (c *swscaleConverter) Convert(src, dst *Frame) error {
	if c.ctx == 0 {
		return fmt.Errorf("swscale converter closed")
	}
	if src.PixelFormat != c.src || src.Width != c.w || src.Height != c.h {
		return fmt.Errorf("converter configured for %s %dx%d, got %s %dx%d",
			c.src, c.w, c.h, src.PixelFormat, src.Width, src.Height)
	}
	if dst.PixelFormat != c.dst || dst.Width != c.w || dst.Height != c.h {
		return fmt.Errorf("destination is %s %dx%d, want %s %dx%d",
			dst.PixelFormat, dst.Width, dst.Height, c.dst, c.w, c.h)
	}
	sp, ss := planePointers(src)
	dp, ds := planePointers(dst)
	n := swsScale(c.ctx, &sp[0], &ss[0], 0, int32(c.h), &dp[0], &ds[0])
	runtime.KeepAlive(src)
	runtime.KeepAlive(dst)
	if n <= 0 {
		return fmt.Errorf("sws_scale returned %d", n)
	}
	return nil
}

func (c *swscaleConverter) Close() error {
	if c.ctx != 0 {
		swsFreeContext(c.ctx)
		c.ctx = 0
		runtime.SetFinalizer(c, nil)
	}
	return nil
}

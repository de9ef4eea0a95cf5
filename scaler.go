package media

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// ScaleMode defines how scaling should handle aspect ratio mismatches.
type ScaleMode int

const (
	// ScaleModeFit scales to fit within target dimensions, preserving aspect ratio (may letterbox).
	ScaleModeFit ScaleMode = iota
	// ScaleModeFill scales to fill target dimensions, preserving aspect ratio (may crop).
	ScaleModeFill
	// ScaleModeStretch scales to exactly match target dimensions (may distort).
	ScaleModeStretch
)

// ScaleFrame returns f resized to dstWidth x dstHeight. Planar formats are
// scaled plane by plane; packed 4-channel formats go through x/image/draw;
// anything else is scaled in BGRA and converted back.
func ScaleFrame(f *Frame, dstWidth, dstHeight int) (*Frame, error) {
	if dstWidth <= 0 || dstHeight <= 0 {
		return nil, fmt.Errorf("invalid scale target %dx%d", dstWidth, dstHeight)
	}
	if f.Width == dstWidth && f.Height == dstHeight {
		return f, nil
	}

	out := NewVideoFrame(f.PixelFormat, dstWidth, dstHeight)
	out.PTS = f.PTS
	out.SampleAspectRatio = f.SampleAspectRatio
	out.Interlaced, out.TopFieldFirst = f.Interlaced, f.TopFieldFirst

	switch {
	case isPlanar(f.PixelFormat):
		src := planeLayout(f.PixelFormat, f.Width, f.Height)
		dst := planeLayout(f.PixelFormat, dstWidth, dstHeight)
		for i := range dst {
			scalePlane(f.Data[i], f.Linesize[i], src[i].Width, src[i].Height,
				out.Data[i], out.Linesize[i], dst[i].Width, dst[i].Height)
		}
		return out, nil

	case isPacked4(f.PixelFormat):
		src := &image.RGBA{Pix: f.Data[0], Stride: f.Linesize[0], Rect: image.Rect(0, 0, f.Width, f.Height)}
		dst := &image.RGBA{Pix: out.Data[0], Stride: out.Linesize[0], Rect: image.Rect(0, 0, dstWidth, dstHeight)}
		draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		return out, nil
	}

	bgra, err := ConvertFrame(f, PixelFormatBGRA)
	if err != nil {
		return nil, err
	}
	scaled, err := ScaleFrame(bgra, dstWidth, dstHeight)
	if err != nil {
		return nil, err
	}
	return ConvertFrame(scaled, f.PixelFormat)
}

func isPlanar(f PixelFormat) bool {
	if f == PixelFormatGray8 {
		return true
	}
	_, _, ok := chromaShift(f)
	return ok
}

func isPacked4(f PixelFormat) bool {
	switch f {
	case PixelFormatBGRA, PixelFormatRGBA, PixelFormatARGB, PixelFormatABGR:
		return true
	}
	return false
}

// scalePlane scales a single 8-bit plane using bilinear interpolation.
func scalePlane(src []byte, srcStride, srcW, srcH int, dst []byte, dstStride, dstW, dstH int) {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return
	}

	// Fixed-point scaling factors (16.16)
	xRatio := (srcW << 16) / dstW
	yRatio := (srcH << 16) / dstH

	for y := 0; y < dstH; y++ {
		srcYFP := y * yRatio
		y0 := srcYFP >> 16
		yWeight := srcYFP & 0xFFFF
		y1 := y0 + 1
		if y1 >= srcH {
			y1 = y0
		}

		for x := 0; x < dstW; x++ {
			srcXFP := x * xRatio
			x0 := srcXFP >> 16
			xWeight := srcXFP & 0xFFFF
			x1 := x0 + 1
			if x1 >= srcW {
				x1 = x0
			}

			p00 := int(src[y0*srcStride+x0])
			p10 := int(src[y0*srcStride+x1])
			p01 := int(src[y1*srcStride+x0])
			p11 := int(src[y1*srcStride+x1])

			top := (p00*(0x10000-xWeight) + p10*xWeight) >> 16
			bottom := (p01*(0x10000-xWeight) + p11*xWeight) >> 16
			dst[y*dstStride+x] = byte((top*(0x10000-yWeight) + bottom*yWeight) >> 16)
		}
	}
}

// CalculateScaledSize returns the output dimensions when scaling with a given mode.
func CalculateScaledSize(srcW, srcH, maxW, maxH int, mode ScaleMode) (w, h int) {
	if mode == ScaleModeStretch || srcW <= 0 || srcH <= 0 {
		return maxW, maxH
	}
	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(maxW) / float64(maxH)

	// Fit shrinks the longer side, Fill grows the shorter one.
	if (srcAspect > dstAspect) == (mode == ScaleModeFit) {
		w = maxW
		h = int(float64(maxW) / srcAspect)
	} else {
		h = maxH
		w = int(float64(maxH) * srcAspect)
	}
	// Ensure even dimensions for YUV
	w = (w + 1) &^ 1
	h = (h + 1) &^ 1
	return w, h
}

//go:build cgo && !noffmpeg

package media

/*
#cgo pkg-config: libavutil
#include <libavutil/frame.h>
*/
import "C"

import (
	"unsafe"

	"github.com/asticode/go-astiav"
)

// avFramePlanes references the video planes of af in place, each with
// af's own line size. The slices are only valid while af is. It returns
// nil when a plane is missing or stored bottom-up (negative line size,
// as vflip produces).
func avFramePlanes(af *astiav.Frame, planes []Plane) (data [][]byte, linesize []int) {
	c := (*C.AVFrame)(af.UnsafePointer())
	for i, p := range planes {
		if i >= len(c.data) || c.data[i] == nil {
			return nil, nil
		}
		ls := int(c.linesize[i])
		if ls < p.Linesize {
			return nil, nil
		}
		data = append(data, unsafe.Slice((*byte)(unsafe.Pointer(c.data[i])), ls*p.Height))
		linesize = append(linesize, ls)
	}
	return data, linesize
}

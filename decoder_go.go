package media

import "fmt"

func init() {
	registerVideoDecoder(CodecIDRawVideo, ProviderGo, newRawVideoDecoder)
}

// tightPlanes returns the plane layout of format with no row padding, as
// used by rawvideo packets.
func tightPlanes(format PixelFormat, w, h int) []Plane {
	planes := planeLayout(format, w, h)
	for i := range planes {
		switch format {
		case PixelFormatYUYV422, PixelFormatUYVY422:
			planes[i].Linesize = ceilShift(w, 1) * 4
		default:
			planes[i].Linesize = planes[i].Width * planes[i].Channels
		}
	}
	return planes
}

// rawVideoDecoder splits rawvideo packets into planes.
type rawVideoDecoder struct {
	cfg    DecoderConfig
	planes []Plane
	size   int
}

func newRawVideoDecoder(cfg DecoderConfig) (VideoCodecContext, error) {
	planes := tightPlanes(cfg.PixelFormat, cfg.Width, cfg.Height)
	if planes == nil {
		return nil, fmt.Errorf("%w: rawvideo %s", ErrNotSupported, cfg.PixelFormat)
	}
	d := &rawVideoDecoder{cfg: cfg, planes: planes}
	for _, p := range planes {
		d.size += p.Size()
	}
	return d, nil
}

func (d *rawVideoDecoder) CodecID() CodecID         { return CodecIDRawVideo }
func (d *rawVideoDecoder) Width() int               { return d.cfg.Width }
func (d *rawVideoDecoder) Height() int              { return d.cfg.Height }
func (d *rawVideoDecoder) PixelFormat() PixelFormat { return d.cfg.PixelFormat }
func (d *rawVideoDecoder) Provider() Provider       { return ProviderGo }
func (d *rawVideoDecoder) Flush()                   {}
func (d *rawVideoDecoder) Close() error             { return nil }

func (d *rawVideoDecoder) Decode(pkt *Packet) ([]*Frame, error) {
	if len(pkt.Data) < d.size {
		return nil, fmt.Errorf("%w: rawvideo packet is %d bytes, want %d", ErrDecode, len(pkt.Data), d.size)
	}
	f := &Frame{
		MediaType:   MediaTypeVideo,
		PTS:         pkt.PTS,
		Width:       d.cfg.Width,
		Height:      d.cfg.Height,
		PixelFormat: d.cfg.PixelFormat,
	}
	off := 0
	for _, p := range d.planes {
		f.Data = append(f.Data, pkt.Data[off:off+p.Size()])
		f.Linesize = append(f.Linesize, p.Linesize)
		off += p.Size()
	}
	return []*Frame{f}, nil
}

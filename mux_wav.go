package media

import (
	"encoding/binary"
	"fmt"
	"io"
)

func init() {
	registerOutputFormat(&OutputFormat{
		Name:       "wav",
		LongName:   "WAV / WAVE (Waveform Audio)",
		Extensions: []string{"wav"},
		AudioCodec: CodecIDPCMS16LE,
		Provider:   ProviderGo,
		alloc: func(of *OutputFormat) (Muxer, error) {
			return newGoMuxer(of, &wavMuxer{}), nil
		},
	})
}

const wavHeaderSize = 44

// wavMuxer writes a canonical RIFF/WAVE file. The chunk sizes are
// written as 0xFFFFFFFF and patched on the trailer when the sink can
// seek.
type wavMuxer struct {
	dataSize int64
}

func (w *wavMuxer) writeHeader(m *goMuxer) error {
	if len(m.streams) != 1 || m.streams[0].Params.MediaType != MediaTypeAudio {
		return fmt.Errorf("wav: exactly one audio stream is supported")
	}
	s := m.streams[0]
	p := s.Params
	var tag uint16
	var bits int
	switch p.CodecID {
	case CodecIDPCMS16LE:
		tag, bits = 1, 16
	case CodecIDPCMS32LE:
		tag, bits = 1, 32
	case CodecIDPCMF32LE:
		tag, bits = 3, 32
	default:
		return fmt.Errorf("wav: codec %s is not supported", p.CodecID)
	}
	ch := p.ChannelLayout.Channels()
	align := ch * bits / 8
	s.TimeBase = Rational{Num: 1, Den: p.SampleRate}

	h := make([]byte, wavHeaderSize)
	copy(h[0:], "RIFF")
	binary.LittleEndian.PutUint32(h[4:], 0xFFFFFFFF)
	copy(h[8:], "WAVEfmt ")
	binary.LittleEndian.PutUint32(h[16:], 16)
	binary.LittleEndian.PutUint16(h[20:], tag)
	binary.LittleEndian.PutUint16(h[22:], uint16(ch))
	binary.LittleEndian.PutUint32(h[24:], uint32(p.SampleRate))
	binary.LittleEndian.PutUint32(h[28:], uint32(p.SampleRate*align))
	binary.LittleEndian.PutUint16(h[32:], uint16(align))
	binary.LittleEndian.PutUint16(h[34:], uint16(bits))
	copy(h[36:], "data")
	binary.LittleEndian.PutUint32(h[40:], 0xFFFFFFFF)
	return m.write(h)
}

func (w *wavMuxer) writePacket(m *goMuxer, p *Packet) error {
	w.dataSize += int64(len(p.Data))
	return m.write(p.Data)
}

func (w *wavMuxer) writeTrailer(m *goMuxer) error {
	ws, ok := m.w.(io.WriteSeeker)
	if !ok || w.dataSize > 0xFFFFFFFF-wavHeaderSize {
		return nil
	}
	var b [4]byte
	patch := func(off int64, v uint32) error {
		binary.LittleEndian.PutUint32(b[:], v)
		if _, err := ws.Seek(off, io.SeekStart); err != nil {
			return err
		}
		_, err := ws.Write(b[:])
		return err
	}
	if err := patch(4, uint32(w.dataSize+wavHeaderSize-8)); err != nil {
		return fmt.Errorf("wav: patch riff size: %w", err)
	}
	if err := patch(40, uint32(w.dataSize)); err != nil {
		return fmt.Errorf("wav: patch data size: %w", err)
	}
	_, err := ws.Seek(0, io.SeekEnd)
	return err
}

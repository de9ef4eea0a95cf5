package media

import (
	"bytes"
	"fmt"
	"time"

	"github.com/deepch/vdk/format/ts/tsio"
)

func init() {
	registerOutputFormat(&OutputFormat{
		Name:       "mpegts",
		LongName:   "MPEG-TS (MPEG-2 Transport Stream)",
		Extensions: []string{"ts", "m2t", "m2ts", "mts"},
		VideoCodec: CodecIDH264,
		AudioCodec: CodecIDAAC,
		Provider:   ProviderGo,
		alloc: func(of *OutputFormat) (Muxer, error) {
			return newGoMuxer(of, &mpegtsMuxer{}), nil
		},
	})
}

const (
	tsPacketSize = 188
	tsSyncByte   = 0x47

	tsPIDFirstES = 0x0100

	tsClock = 90000
	// A PCR or PTS of zero is not written, so both run ahead of the
	// packet clock, PTS/DTS by tsDelay more than the PCR.
	tsPCROffset = 100 * time.Millisecond
	tsDelay     = 700 * time.Millisecond
	// Tables are repeated at least every tsTableInterval TS packets.
	tsTableInterval = 400
)

type tsStream struct {
	w          *tsio.TSWriter
	pid        uint16
	streamType uint8
	streamID   uint8
	codec      CodecID
	video      bool
}

// mpegtsMuxer writes a single-program transport stream with PAT/PMT,
// PES packets and PCR carried on the first video stream.
type mpegtsMuxer struct {
	streams     []*tsStream
	pcr         int
	pat, pmt    *tsio.TSWriter
	psi         []byte
	pes         []byte
	buf         bytes.Buffer
	sinceTables int
}

func (t *mpegtsMuxer) writeHeader(m *goMuxer) error {
	if len(m.streams) == 0 {
		return fmt.Errorf("mpegts: no streams")
	}
	t.pcr = -1
	var video, audio uint8
	for i, s := range m.streams {
		d, _ := s.Params.CodecID.Descriptor()
		if d.TSStreamType == 0 {
			return fmt.Errorf("mpegts: codec %s cannot be carried", s.Params.CodecID)
		}
		pid := tsPIDFirstES + uint16(i)
		st := &tsStream{
			w:          tsio.NewTSWriter(pid),
			pid:        pid,
			streamType: d.TSStreamType,
			codec:      s.Params.CodecID,
			video:      s.Params.MediaType == MediaTypeVideo,
		}
		switch {
		case s.Params.CodecID == CodecIDAC3 || s.Params.CodecID == CodecIDOpus:
			st.streamID = 0xBD
		case st.video:
			st.streamID = tsio.StreamIdH264 + video
			video++
			if t.pcr < 0 {
				t.pcr = i
			}
		default:
			st.streamID = tsio.StreamIdAAC + audio
			audio++
		}
		t.streams = append(t.streams, st)
		s.TimeBase = Rational{Num: 1, Den: tsClock}
	}
	if t.pcr < 0 {
		t.pcr = 0
	}
	t.pat = tsio.NewTSWriter(tsio.PAT_PID)
	t.pmt = tsio.NewTSWriter(tsio.PMT_PID)
	t.psi = make([]byte, tsPacketSize)
	t.pes = make([]byte, tsio.MaxPESHeaderLength)
	return t.writeTables(m)
}

func (t *mpegtsMuxer) writeTables(m *goMuxer) error {
	t.buf.Reset()

	pat := tsio.PAT{
		Entries: []tsio.PATEntry{{ProgramNumber: 1, ProgramMapPID: tsio.PMT_PID}},
	}
	n := tsio.FillPSI(t.psi, tsio.TableIdPAT, tsio.TableExtPAT, pat.Marshal(t.psi[tsio.PSIHeaderLength:]))
	if err := t.pat.WritePackets(&t.buf, [][]byte{t.psi[:n]}, 0, false, true); err != nil {
		return err
	}

	pmt := tsio.PMT{PCRPID: t.streams[t.pcr].pid}
	for _, st := range t.streams {
		info := tsio.ElementaryStreamInfo{StreamType: st.streamType, ElementaryPID: st.pid}
		if st.codec == CodecIDOpus {
			info.Descriptors = []tsio.Descriptor{{Tag: 0x05, Data: []byte("Opus")}}
		}
		pmt.ElementaryStreamInfos = append(pmt.ElementaryStreamInfos, info)
	}
	if pmt.Len()+tsio.PSIHeaderLength+4 > len(t.psi) {
		return fmt.Errorf("mpegts: too many streams for one PMT packet")
	}
	n = tsio.FillPSI(t.psi, tsio.TableIdPMT, tsio.TableExtPMT, pmt.Marshal(t.psi[tsio.PSIHeaderLength:]))
	if err := t.pmt.WritePackets(&t.buf, [][]byte{t.psi[:n]}, 0, false, true); err != nil {
		return err
	}
	t.sinceTables = 0
	return m.write(t.buf.Bytes())
}

func (t *mpegtsMuxer) writePacket(m *goMuxer, p *Packet) error {
	st := t.streams[p.StreamIndex]
	isPCR := p.StreamIndex == t.pcr
	if (isPCR && p.Key) || t.sinceTables >= tsTableInterval {
		if err := t.writeTables(m); err != nil {
			return err
		}
	}

	pts, dts := p.PTS, p.DTS
	if dts == NoPTS {
		dts = pts
	}
	var pcr time.Duration
	if isPCR {
		pcr = tsDuration(dts) + tsPCROffset
	}
	size := len(p.Data)
	if st.video {
		size = -1
	}
	var dtsAt time.Duration
	if dts != pts {
		dtsAt = tsDuration(dts) + tsDelay
	}
	n := tsio.FillPESHeader(t.pes, st.streamID, size, tsDuration(pts)+tsDelay, dtsAt)

	t.buf.Reset()
	if err := st.w.WritePackets(&t.buf, [][]byte{t.pes[:n], p.Data}, pcr, p.Key, false); err != nil {
		return err
	}
	t.sinceTables += t.buf.Len() / tsPacketSize
	return m.write(t.buf.Bytes())
}

func tsDuration(ticks int64) time.Duration {
	return time.Duration(ticks * int64(time.Second) / tsClock)
}

func (t *mpegtsMuxer) writeTrailer(*goMuxer) error { return nil }

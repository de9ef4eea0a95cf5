package media

import (
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/pion/rtp"
)

// RTPPacket is an alias to pion's rtp.Packet
type RTPPacket = rtp.Packet

// RTP/MP2T constants (RFC 2250).
const (
	PayloadTypeMP2T   = 33
	mp2tClockRate     = 90000
	mp2tPacketsPerRTP = 7
)

// MP2TPacketizer wraps transport stream packets into RTP packets, seven
// TS packets per RTP payload.
type MP2TPacketizer struct {
	ssrc        uint32
	payloadType uint8
	perPacket   int
	sequencer   rtp.Sequencer
	mu          sync.Mutex
}

// NewMP2TPacketizer creates a packetizer. perPacket is the number of TS
// packets per RTP payload; 0 means seven.
func NewMP2TPacketizer(ssrc uint32, payloadType uint8, perPacket int) *MP2TPacketizer {
	if perPacket <= 0 {
		perPacket = mp2tPacketsPerRTP
	}
	return &MP2TPacketizer{
		ssrc:        ssrc,
		payloadType: payloadType,
		perPacket:   perPacket,
		sequencer:   rtp.NewRandomSequencer(),
	}
}

// SSRC returns the synchronization source.
func (p *MP2TPacketizer) SSRC() uint32 { return p.ssrc }

// Packetize splits ts, which must hold whole 188-byte packets, into RTP
// packets stamped with timestamp.
func (p *MP2TPacketizer) Packetize(ts []byte, timestamp uint32) ([]*rtp.Packet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(ts)%tsPacketSize != 0 {
		return nil, fmt.Errorf("mp2t: %d bytes is not a whole number of TS packets", len(ts))
	}
	chunk := p.perPacket * tsPacketSize
	var packets []*rtp.Packet
	for len(ts) > 0 {
		n := min(len(ts), chunk)
		packets = append(packets, &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    p.payloadType,
				SequenceNumber: p.sequencer.NextSequenceNumber(),
				Timestamp:      timestamp,
				SSRC:           p.ssrc,
			},
			Payload: ts[:n],
		})
		ts = ts[n:]
	}
	return packets, nil
}

// rtpSink sends the container byte stream as RTP/MP2T datagrams. RTP
// timestamps follow the wall clock at 90 kHz.
type rtpSink struct {
	conn   net.Conn
	pw     *packetWriter
	pkt    *MP2TPacketizer
	start  time.Time
	offset uint32
}

func openRTPSink(u *url.URL, opts Options) (io.WriteCloser, Options, error) {
	perPacket := opts.Int("pkt_size", mp2tPacketsPerRTP*tsPacketSize) / tsPacketSize
	if perPacket <= 0 {
		return nil, opts, fmt.Errorf("%w: pkt_size below one TS packet", ErrConfig)
	}
	ssrc := uint32(opts.Int("ssrc", int(rand.Uint32()>>1)))
	pt := uint8(opts.Int("payload_type", PayloadTypeMP2T))

	conn, err := net.Dial("udp", u.Host)
	if err != nil {
		return nil, opts, fmt.Errorf("rtp sink %s: %w", u.Host, err)
	}
	s := &rtpSink{
		conn:   conn,
		pkt:    NewMP2TPacketizer(ssrc, pt, perPacket),
		start:  time.Now(),
		offset: rand.Uint32(),
	}
	s.pw = newPacketWriter(conn, perPacket*tsPacketSize, s.send)
	return s, opts.Without("pkt_size", "ssrc", "payload_type"), nil
}

func (s *rtpSink) timestamp() uint32 {
	return s.offset + uint32(uint64(time.Since(s.start).Seconds()*mp2tClockRate))
}

func (s *rtpSink) send(ts []byte) error {
	// A short final chunk is trimmed to whole TS packets.
	ts = ts[:len(ts)/tsPacketSize*tsPacketSize]
	if len(ts) == 0 {
		return nil
	}
	packets, err := s.pkt.Packetize(ts, s.timestamp())
	if err != nil {
		return err
	}
	for _, p := range packets {
		b, err := p.Marshal()
		if err != nil {
			return err
		}
		if _, err := s.conn.Write(b); err != nil {
			return err
		}
	}
	return nil
}

func (s *rtpSink) Write(b []byte) (int, error) { return s.pw.Write(b) }
func (s *rtpSink) Close() error                { return s.pw.Close() }

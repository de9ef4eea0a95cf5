package media

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	rtmpmsg "github.com/yutopp/go-rtmp/message"
)

type closeRecorder struct{ closed bool }

func (c *closeRecorder) Write(b []byte) (int, error) { return len(b), nil }
func (c *closeRecorder) Close() error                { c.closed = true; return nil }

func TestPacketWriter(t *testing.T) {
	conn := &closeRecorder{}
	var sent [][]byte
	w := newPacketWriter(conn, 4, func(b []byte) error {
		sent = append(sent, bytes.Clone(b))
		return nil
	})

	n, err := w.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, sent)

	n, err = w.Write([]byte{4, 5, 6, 7, 8, 9, 10})
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}}, sent)

	require.NoError(t, w.Close())
	assert.Equal(t, []byte{9, 10}, sent[2], "close flushes the short datagram")
	assert.True(t, conn.closed)
}

func TestPacketWriterSendError(t *testing.T) {
	boom := errors.New("boom")
	w := newPacketWriter(&closeRecorder{}, 2, func([]byte) error { return boom })
	n, err := w.Write([]byte{1, 2, 3})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, n)
}

func TestHasScheme(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"out.mp4", false},
		{"/media/out.mp4", false},
		{`C:\media\out.mp4`, false},
		{"file:///media/out.mp4", false},
		{"udp://239.0.0.1:5000", true},
		{"srt://host:9000?streamid=x", true},
		{"rtmp://host/live/key", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, HasScheme(tt.path))
		})
	}
}

func TestOpenSinkFile(t *testing.T) {
	dir := t.TempDir()
	for _, path := range []string{
		filepath.Join(dir, "plain.ts"),
		"file://" + filepath.ToSlash(filepath.Join(dir, "url.ts")),
	} {
		opts := Options{"movflags": "faststart"}
		w, rest, err := OpenSink(path, opts)
		require.NoError(t, err, path)
		assert.Equal(t, opts, rest)
		_, err = w.Write([]byte("data"))
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}
	for _, name := range []string{"plain.ts", "url.ts"} {
		b, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, "data", string(b))
	}
}

func TestOpenSinkUnknownScheme(t *testing.T) {
	_, _, err := OpenSink("gopher://host/x", nil)
	assert.ErrorIs(t, err, ErrNotSupported)
	assert.ErrorIs(t, err, ErrConfig)
}

func listenUDP(t *testing.T) net.PacketConn {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(5*time.Second)))
	return pc
}

func readDatagram(t *testing.T, pc net.PacketConn) []byte {
	t.Helper()
	buf := make([]byte, 65536)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	return buf[:n]
}

func tsStreamBytes(n int) []byte {
	b := make([]byte, n*tsPacketSize)
	for i := range n {
		b[i*tsPacketSize] = tsSyncByte
		b[i*tsPacketSize+1] = byte(i)
	}
	return b
}

func TestUDPSink(t *testing.T) {
	pc := listenUDP(t)
	w, rest, err := OpenSink("udp://"+pc.LocalAddr().String()+"?pkt_size=376", Options{"pkt_size": "188", "ttl": "4"})
	require.NoError(t, err)
	assert.Equal(t, Options{"ttl": "4"}, rest)

	ts := tsStreamBytes(3)
	_, err = w.Write(ts)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, ts[:376], readDatagram(t, pc))
	assert.Equal(t, ts[376:], readDatagram(t, pc))
}

func TestUDPSinkInvalidSize(t *testing.T) {
	_, _, err := OpenSink("udp://127.0.0.1:1", Options{"pkt_size": "0"})
	assert.ErrorIs(t, err, ErrConfig)
}

func TestRTPSink(t *testing.T) {
	pc := listenUDP(t)
	w, rest, err := OpenSink("rtp://"+pc.LocalAddr().String(), Options{
		"pkt_size": "376", "ssrc": "1234", "payload_type": "96", "muxrate": "1",
	})
	require.NoError(t, err)
	assert.Equal(t, Options{"muxrate": "1"}, rest)

	ts := tsStreamBytes(5)
	_, err = w.Write(ts)
	require.NoError(t, err)
	// 40 trailing bytes are not a whole TS packet and are dropped on close.
	_, err = w.Write(make([]byte, 40))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var got []*rtp.Packet
	for range 3 {
		p := &rtp.Packet{}
		require.NoError(t, p.Unmarshal(readDatagram(t, pc)))
		got = append(got, p)
	}
	for i, p := range got {
		assert.Equal(t, uint8(2), p.Version)
		assert.Equal(t, uint8(96), p.PayloadType)
		assert.Equal(t, uint32(1234), p.SSRC)
		if i > 0 {
			assert.Equal(t, got[i-1].SequenceNumber+1, p.SequenceNumber)
		}
	}
	assert.Equal(t, ts[:376], got[0].Payload)
	assert.Equal(t, ts[376:752], got[1].Payload)
	assert.Equal(t, ts[752:], got[2].Payload)
}

func TestMP2TPacketizer(t *testing.T) {
	p := NewMP2TPacketizer(42, PayloadTypeMP2T, 0)
	assert.Equal(t, uint32(42), p.SSRC())

	ts := tsStreamBytes(9)
	packets, err := p.Packetize(ts, 9000)
	require.NoError(t, err)
	require.Len(t, packets, 2)
	assert.Len(t, packets[0].Payload, 7*tsPacketSize)
	assert.Len(t, packets[1].Payload, 2*tsPacketSize)
	for _, pkt := range packets {
		assert.Equal(t, uint8(PayloadTypeMP2T), pkt.PayloadType)
		assert.Equal(t, uint32(9000), pkt.Timestamp)
		assert.Equal(t, uint32(42), pkt.SSRC)
	}
	assert.Equal(t, packets[0].SequenceNumber+1, packets[1].SequenceNumber)

	_, err = p.Packetize(make([]byte, 100), 0)
	assert.Error(t, err)
}

func flvTagBytes(typ byte, ts uint32, data []byte) []byte {
	b := []byte{typ, byte(len(data) >> 16), byte(len(data) >> 8), byte(len(data)),
		byte(ts >> 16), byte(ts >> 8), byte(ts), byte(ts >> 24), 0, 0, 0}
	b = append(b, data...)
	return binary.BigEndian.AppendUint32(b, uint32(11+len(data)))
}

var flvHeaderBytes = []byte{'F', 'L', 'V', 1, 0x05, 0, 0, 0, 9, 0, 0, 0, 0}

// onMetaData with a single width entry, AMF0 encoded.
var flvMetaData = []byte{
	0x02, 0x00, 0x0A, 'o', 'n', 'M', 'e', 't', 'a', 'D', 'a', 't', 'a',
	0x08, 0, 0, 0, 1,
	0x00, 0x05, 'w', 'i', 'd', 't', 'h', 0x00, 0x40, 0x40, 0, 0, 0, 0, 0, 0,
	0x00, 0x00, 0x09,
}

type publishedMessage struct {
	chunk int
	ts    uint32
	msg   rtmpmsg.Message
}

func TestFLVRelay(t *testing.T) {
	video := []byte{0x17, 0x01, 0, 0, 0, 0xAA, 0xBB}
	audio := []byte{0xAF, 0x01, 0xCC}
	stream := bytes.Clone(flvHeaderBytes)
	stream = append(stream, flvTagBytes(18, 0, flvMetaData)...)
	stream = append(stream, flvTagBytes(9, 0x01020304, video)...)
	stream = append(stream, flvTagBytes(8, 40, audio)...)

	var got []publishedMessage
	r := newFLVRelay(func(chunk int, ts uint32, msg rtmpmsg.Message) error {
		got = append(got, publishedMessage{chunk, ts, msg})
		return nil
	})
	// The muxer writes in arbitrary pieces.
	for i := range stream {
		n, err := r.Write(stream[i : i+1])
		require.NoError(t, err)
		require.Equal(t, 1, n)
	}
	require.NoError(t, r.Close())
	require.Len(t, got, 3)

	assert.Equal(t, rtmpChunkData, got[0].chunk)
	data, ok := got[0].msg.(*rtmpmsg.DataMessage)
	require.True(t, ok)
	assert.Equal(t, "@setDataFrame", data.Name)
	body, err := io.ReadAll(data.Body)
	require.NoError(t, err)
	assert.True(t, bytes.Contains(body, []byte("onMetaData")))
	assert.True(t, bytes.Contains(body, []byte("width")))

	assert.Equal(t, rtmpChunkVideo, got[1].chunk)
	assert.Equal(t, uint32(0x01020304), got[1].ts)
	vm, ok := got[1].msg.(*rtmpmsg.VideoMessage)
	require.True(t, ok)
	payload, err := io.ReadAll(vm.Payload)
	require.NoError(t, err)
	assert.Equal(t, video, payload)

	assert.Equal(t, rtmpChunkAudio, got[2].chunk)
	assert.Equal(t, uint32(40), got[2].ts)
	am, ok := got[2].msg.(*rtmpmsg.AudioMessage)
	require.True(t, ok)
	payload, err = io.ReadAll(am.Payload)
	require.NoError(t, err)
	assert.Equal(t, audio, payload)
}

func TestFLVRelayEmpty(t *testing.T) {
	r := newFLVRelay(func(int, uint32, rtmpmsg.Message) error {
		t.Error("nothing to publish")
		return nil
	})
	assert.NoError(t, r.Close())
}

func TestFLVRelayPublishError(t *testing.T) {
	errPublish := errors.New("connection reset")
	r := newFLVRelay(func(int, uint32, rtmpmsg.Message) error { return errPublish })

	stream := append(bytes.Clone(flvHeaderBytes), flvTagBytes(8, 0, []byte{0xAF, 0x01, 0xCC})...)
	_, _ = r.Write(stream)
	err := r.Close()
	assert.ErrorIs(t, err, errPublish)

	_, err = r.Write([]byte{0})
	assert.Error(t, err, "writes fail once the relay stopped")
}

func TestFLVRelayBadHeader(t *testing.T) {
	r := newFLVRelay(func(int, uint32, rtmpmsg.Message) error { return nil })
	_, _ = r.Write([]byte("MP4\x01\x05\x00\x00\x00\x09\x00\x00\x00\x00"))
	assert.Error(t, r.Close())
}

func TestSplitRTMPURL(t *testing.T) {
	tests := []struct {
		url                   string
		addr, app, key, tcURL string
	}{
		{"rtmp://example.com/live/abc", "example.com:1935", "live", "abc", "rtmp://example.com/live"},
		{"rtmp://example.com:1940/app/inst/key?token=1", "example.com:1940", "app/inst", "key?token=1", "rtmp://example.com:1940/app/inst"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			u, err := url.Parse(tt.url)
			require.NoError(t, err)
			addr, app, key, tcURL, err := splitRTMPURL(u)
			require.NoError(t, err)
			assert.Equal(t, tt.addr, addr)
			assert.Equal(t, tt.app, app)
			assert.Equal(t, tt.key, key)
			assert.Equal(t, tt.tcURL, tcURL)
		})
	}

	for _, bad := range []string{"rtmp://host/", "rtmp://host/live", "rtmp://host/live/"} {
		u, err := url.Parse(bad)
		require.NoError(t, err)
		_, _, _, _, err = splitRTMPURL(u)
		assert.ErrorIs(t, err, ErrConfig, bad)
	}
}

var _ io.WriteCloser = (*rtpSink)(nil)

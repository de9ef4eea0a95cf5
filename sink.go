package media

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
)

// Default datagram payload: seven TS packets.
const defaultPacketSize = 7 * tsPacketSize

type sinkOpener func(u *url.URL, opts Options) (io.WriteCloser, Options, error)

var sinkSchemes = map[string]sinkOpener{
	"udp":  openUDPSink,
	"rtp":  openRTPSink,
	"srt":  openSRTSink,
	"rtmp": openRTMPSink,
}

// HasScheme reports whether path is a URL this package opens as a
// network sink rather than a local file.
func HasScheme(path string) bool {
	u, err := url.Parse(path)
	if err != nil || len(u.Scheme) < 2 {
		return false
	}
	return u.Scheme != "file"
}

// OpenSink opens the byte sink for a container. Plain paths and file:
// URLs are files; udp, rtp, srt and rtmp URLs are network sinks. It
// returns the options it did not consume.
func OpenSink(path string, opts Options) (io.WriteCloser, Options, error) {
	u, err := url.Parse(path)
	if err != nil || len(u.Scheme) < 2 {
		// Bare paths, including Windows drive letters.
		f, err := os.Create(path)
		return f, opts, err
	}
	if u.Scheme == "file" {
		p := u.Path
		if p == "" {
			p = u.Opaque
		}
		f, err := os.Create(p)
		return f, opts, err
	}
	open, ok := sinkSchemes[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, opts, fmt.Errorf("%w: %w: no sink for scheme %q", ErrConfig, ErrNotSupported, u.Scheme)
	}
	return open(u, opts)
}

// packetWriter groups the byte stream into fixed size datagrams.
type packetWriter struct {
	conn io.WriteCloser
	size int
	buf  []byte
	send func([]byte) error
}

func newPacketWriter(conn io.WriteCloser, size int, send func([]byte) error) *packetWriter {
	w := &packetWriter{conn: conn, size: size, buf: make([]byte, 0, size)}
	w.send = send
	if w.send == nil {
		w.send = func(b []byte) error {
			_, err := conn.Write(b)
			return err
		}
	}
	return w
}

func (w *packetWriter) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		k := min(len(p), w.size-len(w.buf))
		w.buf = append(w.buf, p[:k]...)
		p = p[k:]
		if len(w.buf) == w.size {
			if err := w.send(w.buf); err != nil {
				return n - len(p), err
			}
			w.buf = w.buf[:0]
		}
	}
	return n, nil
}

// Close flushes a final short datagram and closes the connection.
func (w *packetWriter) Close() error {
	var err error
	if len(w.buf) > 0 {
		err = w.send(w.buf)
		w.buf = w.buf[:0]
	}
	if cerr := w.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

func openUDPSink(u *url.URL, opts Options) (io.WriteCloser, Options, error) {
	size := opts.Int("pkt_size", defaultPacketSize)
	if v := u.Query().Get("pkt_size"); v != "" {
		size = Options{"pkt_size": v}.Int("pkt_size", size)
	}
	if size <= 0 {
		return nil, opts, fmt.Errorf("%w: invalid pkt_size %d", ErrConfig, size)
	}
	conn, err := net.Dial("udp", u.Host)
	if err != nil {
		return nil, opts, fmt.Errorf("udp sink %s: %w", u.Host, err)
	}
	return newPacketWriter(conn, size, nil), opts.Without("pkt_size"), nil
}

package media

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	srtgo "github.com/zsiec/srtgo"
)

// Default SRT latency (120ms).
const srtDefaultLatency = 120 * time.Millisecond

// setDuration assigns d to an SRT config field whatever integer type
// backs it.
func setDuration[T ~int64 | ~int | ~uint64](dst *T, d time.Duration) { *dst = T(d) }

// openSRTSink dials srt://host:port as a caller. The streamid comes from
// the URL query or the streamid option; latency is in milliseconds.
func openSRTSink(u *url.URL, opts Options) (io.WriteCloser, Options, error) {
	q := u.Query()
	cfg := srtgo.DefaultConfig()

	latency := srtDefaultLatency
	if v := q.Get("latency"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return nil, opts, fmt.Errorf("%w: srt latency %q", ErrConfig, v)
		}
		latency = time.Duration(ms) * time.Millisecond
	}
	if ms := opts.Int("latency", -1); ms >= 0 {
		latency = time.Duration(ms) * time.Millisecond
	}
	setDuration(&cfg.Latency, latency)

	if id := q.Get("streamid"); id != "" {
		cfg.StreamID = id
	}
	if id, ok := opts["streamid"]; ok {
		cfg.StreamID = id
	}

	conn, err := srtgo.Dial(u.Host, cfg)
	if err != nil {
		return nil, opts, fmt.Errorf("srt dial %s: %w", u.Host, err)
	}
	size := opts.Int("pkt_size", defaultPacketSize)
	return newPacketWriter(conn, size, nil), opts.Without("latency", "streamid", "pkt_size"), nil
}

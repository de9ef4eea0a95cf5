package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"

	"github.com/yutopp/go-flv"
	flvtag "github.com/yutopp/go-flv/tag"
	"github.com/yutopp/go-rtmp"
	rtmpmsg "github.com/yutopp/go-rtmp/message"
)

// Chunk stream IDs used for publishing, as ffmpeg's rtmp protocol does.
const (
	rtmpChunkData  = 4
	rtmpChunkAudio = 6
	rtmpChunkVideo = 7
)

// rtmpPublishFunc sends one message on the publishing stream.
type rtmpPublishFunc func(chunkStreamID int, timestamp uint32, msg rtmpmsg.Message) error

// flvRelay decodes the FLV byte stream written to it and publishes each
// tag as an RTMP message. Writes block until the decoder consumed them.
type flvRelay struct {
	pw   *io.PipeWriter
	done chan error
}

func newFLVRelay(publish rtmpPublishFunc) *flvRelay {
	pr, pw := io.Pipe()
	r := &flvRelay{pw: pw, done: make(chan error, 1)}
	go func() {
		err := relayFLV(pr, publish)
		pr.CloseWithError(err)
		r.done <- err
	}()
	return r
}

func (r *flvRelay) Write(b []byte) (int, error) { return r.pw.Write(b) }

// Close ends the stream and waits for the decoder to drain.
func (r *flvRelay) Close() error {
	r.pw.Close()
	return <-r.done
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

func relayFLV(r io.Reader, publish rtmpPublishFunc) error {
	dec, err := flv.NewDecoder(r)
	if err != nil {
		if isEOF(err) {
			return nil
		}
		return fmt.Errorf("flv: %w", err)
	}
	for {
		var tag flvtag.FlvTag
		if err := dec.Decode(&tag); err != nil {
			if isEOF(err) {
				return nil
			}
			return fmt.Errorf("flv: %w", err)
		}
		if err := relayTag(&tag, publish); err != nil {
			return err
		}
	}
}

func relayTag(tag *flvtag.FlvTag, publish rtmpPublishFunc) error {
	buf := new(bytes.Buffer)
	var msg rtmpmsg.Message
	chunk := rtmpChunkData
	switch data := tag.Data.(type) {
	case *flvtag.AudioData:
		if err := flvtag.EncodeAudioData(buf, data); err != nil {
			return fmt.Errorf("flv audio: %w", err)
		}
		msg, chunk = &rtmpmsg.AudioMessage{Payload: buf}, rtmpChunkAudio
	case *flvtag.VideoData:
		if err := flvtag.EncodeVideoData(buf, data); err != nil {
			return fmt.Errorf("flv video: %w", err)
		}
		msg, chunk = &rtmpmsg.VideoMessage{Payload: buf}, rtmpChunkVideo
	case *flvtag.ScriptData:
		if err := flvtag.EncodeScriptData(buf, data); err != nil {
			return fmt.Errorf("flv script: %w", err)
		}
		body := new(bytes.Buffer)
		if err := rtmpmsg.EncodeBodyAnyValues(rtmpmsg.NewAMFEncoder(body, rtmpmsg.EncodingTypeAMF0), &rtmpmsg.NetStreamSetDataFrame{
			Payload: buf.Bytes(),
		}); err != nil {
			return fmt.Errorf("flv script: %w", err)
		}
		msg = &rtmpmsg.DataMessage{
			Name:     "@setDataFrame",
			Encoding: rtmpmsg.EncodingTypeAMF0,
			Body:     body,
		}
	default:
		return nil
	}
	if err := publish(chunk, tag.Timestamp, msg); err != nil {
		return fmt.Errorf("rtmp write: %w", err)
	}
	return nil
}

// rtmpSink publishes the FLV output of the flv muxer to an RTMP server.
type rtmpSink struct {
	client *rtmp.ClientConn
	stream *rtmp.Stream
	relay  *flvRelay
}

// splitRTMPURL returns the dial address, application, stream key and
// tcUrl of rtmp://host[:port]/app[/...]/key.
func splitRTMPURL(u *url.URL) (addr, app, key, tcURL string, err error) {
	path := strings.Trim(u.Path, "/")
	i := strings.LastIndexByte(path, '/')
	if i <= 0 || i == len(path)-1 {
		return "", "", "", "", fmt.Errorf("%w: rtmp url %q needs /app/key", ErrConfig, u.String())
	}
	app, key = path[:i], path[i+1:]
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	addr = u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "1935")
	}
	return addr, app, key, "rtmp://" + u.Host + "/" + app, nil
}

func openRTMPSink(u *url.URL, opts Options) (io.WriteCloser, Options, error) {
	addr, app, key, tcURL, err := splitRTMPURL(u)
	if err != nil {
		return nil, opts, err
	}
	if v, ok := opts["rtmp_app"]; ok {
		app = v
	}
	if v, ok := opts["rtmp_playpath"]; ok {
		key = v
	}
	chunkSize := uint32(opts.Int("rtmp_chunk_size", 4096))
	rest := opts.Without("rtmp_app", "rtmp_playpath", "rtmp_chunk_size")

	client, err := rtmp.Dial("rtmp", addr, &rtmp.ConnConfig{})
	if err != nil {
		return nil, opts, fmt.Errorf("rtmp dial %s: %w", addr, err)
	}
	if err := client.Connect(&rtmpmsg.NetConnectionConnect{
		Command: rtmpmsg.NetConnectionConnectCommand{
			App:      app,
			Type:     "nonprivate",
			FlashVer: "FMLE/3.0 (compatible; mediacore)",
			TCURL:    tcURL,
		},
	}); err != nil {
		client.Close()
		return nil, opts, fmt.Errorf("rtmp connect %s: %w", tcURL, err)
	}
	stream, err := client.CreateStream(nil, chunkSize)
	if err != nil {
		client.Close()
		return nil, opts, fmt.Errorf("rtmp create stream: %w", err)
	}
	if err := stream.Publish(&rtmpmsg.NetStreamPublish{
		PublishingName: key,
		PublishingType: "live",
	}); err != nil {
		client.Close()
		return nil, opts, fmt.Errorf("rtmp publish %s: %w", key, err)
	}
	return &rtmpSink{client: client, stream: stream, relay: newFLVRelay(stream.Write)}, rest, nil
}

func (s *rtmpSink) Write(b []byte) (int, error) { return s.relay.Write(b) }

func (s *rtmpSink) Close() error {
	err := s.relay.Close()
	if cerr := s.stream.Close(); err == nil {
		err = cerr
	}
	if cerr := s.client.Close(); err == nil {
		err = cerr
	}
	return err
}

package media

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T, args string, realtime bool) *MediaWriter {
	t.Helper()
	return NewMediaWriter(WriterConfig{
		Path:        "out.rec",
		Args:        args,
		Realtime:    realtime,
		MediaFolder: t.TempDir(),
	})
}

func TestMediaWriterEmptyStream(t *testing.T) {
	registerTestEncoders(0, nil)
	rec := registerTestMux("testempty", 0, testVideoCodec, testAudioCodec)

	w := newTestWriter(t, "-format testempty", false)
	require.NoError(t, w.Initialize(testFormat, 1))
	assert.True(t, <-w.Send(nil))
	require.NoError(t, w.Close())

	assert.Equal(t, 1, rec.headers)
	assert.Equal(t, 1, rec.trailers)
	assert.Empty(t, rec.packets)
	assert.False(t, <-w.Send(testChannelFrame(testFormat)))
}

func TestMediaWriterFrames(t *testing.T) {
	te := registerTestEncoders(0, nil)
	rec := registerTestMux("testframes", FormatGlobalHeader, testVideoCodec, testAudioCodec)

	w := newTestWriter(t, "-format testframes -tune:v fast", false)
	require.NoError(t, w.Initialize(testFormat, 1))
	for range 3 {
		require.True(t, <-w.Send(testChannelFrame(testFormat)))
	}
	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "Close is idempotent")

	require.Len(t, te.video, 1)
	require.Len(t, te.audio, 1)
	assert.True(t, te.video[0].params.Flags.Has(EncoderFlagGlobalHeader))
	assert.True(t, te.audio[0].params.Flags.Has(EncoderFlagGlobalHeader))
	assert.Equal(t, Options{"tune": "fast"}, te.video[0].opts)

	require.Len(t, rec.streams, 2)
	assert.Equal(t, MediaTypeVideo, rec.streams[0].Params.MediaType)
	assert.Equal(t, MediaTypeAudio, rec.streams[1].Params.MediaType)

	assert.Equal(t, 1, rec.trailers)
	require.Len(t, rec.packets, 6)
	perStream := map[int]int{}
	for _, p := range rec.packets {
		perStream[p.StreamIndex]++
	}
	assert.Equal(t, map[int]int{0: 3, 1: 3}, perStream)

	st := w.Stats()
	assert.Equal(t, uint64(3), st.FramesSent)
	assert.Zero(t, st.FramesDropped)
	assert.Equal(t, uint64(6), st.PacketsOut)
	assert.Equal(t, uint64(6), st.BytesOut)
}

func TestMediaWriterVideoOnly(t *testing.T) {
	registerTestEncoders(0, nil)
	rec := registerTestMux("testvideoonly", 0, testVideoCodec, CodecIDNone)

	w := newTestWriter(t, "-format testvideoonly", false)
	require.NoError(t, w.Initialize(testFormat, 1))
	require.True(t, <-w.Send(testChannelFrame(testFormat)))
	require.NoError(t, w.Close())

	require.Len(t, rec.streams, 1)
	require.Len(t, rec.packets, 1)
	assert.Equal(t, 0, rec.packets[0].StreamIndex)
}

func TestMediaWriterRealtimeDropsBeforeInitialize(t *testing.T) {
	w := newTestWriter(t, "", true)
	assert.True(t, w.Realtime())

	assert.True(t, <-w.Send(testChannelFrame(testFormat)))
	assert.True(t, <-w.Send(testChannelFrame(testFormat)))
	st := w.Stats()
	assert.Equal(t, uint64(2), st.FramesSent)
	assert.Equal(t, uint64(1), st.FramesDropped)

	require.NoError(t, w.Close())
	assert.False(t, <-w.Send(testChannelFrame(testFormat)))
}

func TestMediaWriterFileQueueFull(t *testing.T) {
	w := newTestWriter(t, "", false)
	for range fileFrameBuffer + 2 {
		assert.True(t, <-w.Send(testChannelFrame(testFormat)))
	}
	st := w.Stats()
	assert.Equal(t, uint64(fileFrameBuffer), st.FramesSent)
	assert.Equal(t, uint64(2), st.FramesDropped)
	require.NoError(t, w.Close())
}

func TestMediaWriterReinitialize(t *testing.T) {
	registerTestEncoders(0, nil)
	registerTestMux("testreinit", 0, testVideoCodec, testAudioCodec)

	w := newTestWriter(t, "-format testreinit", false)
	require.NoError(t, w.Initialize(testFormat, 1))
	err := w.Initialize(testFormat, 2)
	assert.ErrorIs(t, err, ErrReinitialize)
	assert.ErrorIs(t, err, ErrConfig)
	assert.Equal(t, writerIndexBase+1, w.Index())
	require.NoError(t, w.Close())
}

func TestMediaWriterInitializeErrors(t *testing.T) {
	registerTestEncoders(0, nil)
	registerTestMux("testinit", 0, testVideoCodec, testAudioCodec)

	w := newTestWriter(t, "-format nosuchformat", false)
	assert.ErrorIs(t, w.Initialize(testFormat, 1), ErrFormatNotFound)
	require.NoError(t, w.Close())

	w = newTestWriter(t, "-format testinit -codec:v nosuchencoder", false)
	assert.ErrorIs(t, w.Initialize(testFormat, 1), ErrEncoderNotFound)
	require.NoError(t, w.Close())
}

func TestMediaWriterInitializeFailureStopsSend(t *testing.T) {
	w := newTestWriter(t, "-format nosuchformat", false)
	require.Error(t, w.Initialize(testFormat, 1))
	assert.False(t, <-w.Send(testChannelFrame(testFormat)))
	assert.Zero(t, w.Stats().FramesSent)
	require.NoError(t, w.Close())
}

func TestMediaWriterShortFrame(t *testing.T) {
	registerTestEncoders(0, nil)
	rec := registerTestMux("testshortframe", 0, testVideoCodec, testAudioCodec)

	w := newTestWriter(t, "-format testshortframe", false)
	require.NoError(t, w.Initialize(testFormat, 1))
	// Audio only, the image is missing.
	<-w.Send(&ChannelFrame{Audio: make([]int32, 3840)})
	err := w.Close()
	assert.ErrorIs(t, err, ErrShortFrame)
	assert.Equal(t, 1, rec.trailers, "packets that made it are finalized")
	assert.False(t, <-w.Send(testChannelFrame(testFormat)))
}

func TestRecovered(t *testing.T) {
	err := recovered(func() error {
		var b []byte
		_ = b[3]
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index out of range")

	boom := errors.New("boom")
	assert.Same(t, boom, recovered(func() error { return boom }))
	assert.NoError(t, recovered(func() error { return nil }))
}

func TestMediaWriterMetricLabel(t *testing.T) {
	w := NewMediaWriter(WriterConfig{Path: "rtmp://host/live/secret-key"})
	assert.Equal(t, strconv.Itoa(w.Index()), w.metricLabel())
	assert.NotContains(t, w.metricLabel(), "secret")

	registerTestEncoders(0, nil)
	registerTestMux("testmetrics", 0, testVideoCodec, testAudioCodec)
	w = newTestWriter(t, "-format testmetrics", false)
	require.NoError(t, w.Initialize(testFormat, 7))
	assert.Equal(t, "100007", w.metricLabel())
	require.True(t, <-w.Send(testChannelFrame(testFormat)))
	require.NoError(t, w.Close())

	var m dto.Metric
	require.NoError(t, writerFramesTotal.WithLabelValues("100007").Write(&m))
	assert.GreaterOrEqual(t, m.GetCounter().GetValue(), 1.0)
}

func TestMediaWriterEncodeFailureFinalizes(t *testing.T) {
	boom := errors.New("encoder exploded")
	registerTestEncoders(0, boom)
	rec := registerTestMux("testencodefail", 0, testVideoCodec, testAudioCodec)

	w := newTestWriter(t, "-format testencodefail", false)
	require.NoError(t, w.Initialize(testFormat, 1))
	<-w.Send(testChannelFrame(testFormat))
	err := w.Close()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, rec.trailers)
}

func TestMediaWriterWriteFailureAborts(t *testing.T) {
	registerTestEncoders(0, nil)
	rec := registerTestMux("testwritefail", 0, testVideoCodec, testAudioCodec)
	rec.packetErr = errors.New("disk full")

	w := newTestWriter(t, "-format testwritefail", false)
	require.NoError(t, w.Initialize(testFormat, 1))
	for range 3 {
		<-w.Send(testChannelFrame(testFormat))
	}
	assert.Error(t, w.Close())
	assert.Zero(t, rec.trailers)
}

func TestMediaWriterIdentity(t *testing.T) {
	w := NewMediaWriter(WriterConfig{Path: "123456789"})
	assert.Equal(t, "ffmpeg[123456789]", w.String())
	assert.Equal(t, "ffmpeg", w.Name())
	assert.Equal(t, writerIndexBase+0xBB3D, w.Index())
	assert.False(t, w.HasSynchronizationClock())
	assert.Equal(t, -1, w.BufferDepth())
	assert.Equal(t, uint16(0), crc16(nil))
}

func TestMediaWriterResolvePath(t *testing.T) {
	dir := t.TempDir()

	w := NewMediaWriter(WriterConfig{Path: "sub/out.ts", MediaFolder: dir})
	existing := filepath.Join(dir, "sub", "out.ts")
	require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0o755))
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0o644))

	p, err := w.resolvePath()
	require.NoError(t, err)
	assert.Equal(t, existing, p)
	assert.NoFileExists(t, existing)

	abs := filepath.Join(dir, "abs", "out.ts")
	w = NewMediaWriter(WriterConfig{Path: "file://" + abs, MediaFolder: "/nonexistent"})
	p, err = w.resolvePath()
	require.NoError(t, err)
	assert.Equal(t, abs, p)
	assert.DirExists(t, filepath.Dir(abs))

	w = NewMediaWriter(WriterConfig{Path: "udp://127.0.0.1:5000?pkt_size=1316"})
	p, err = w.resolvePath()
	require.NoError(t, err)
	assert.Equal(t, "udp://127.0.0.1:5000?pkt_size=1316", p)
}

func TestCreateConsumer(t *testing.T) {
	w, err := CreateConsumer([]string{"FILE", "out.mov", "-codec:v", "prores", "-profile:v", "3"}, "/media")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.False(t, w.Realtime())
	assert.Equal(t, "-codec:v prores -profile:v 3", w.args)
	assert.Equal(t, "/media", w.mediaFolder)

	w, err = CreateConsumer([]string{"stream", "udp://239.0.0.1:5000"}, "")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.True(t, w.Realtime())
	assert.Equal(t, DefaultMediaFolder, w.mediaFolder)

	w, err = CreateConsumer([]string{"SCREEN", "0"}, "")
	assert.NoError(t, err)
	assert.Nil(t, w)

	w, err = CreateConsumer([]string{"FILE"}, "")
	assert.NoError(t, err)
	assert.Nil(t, w)

	_, err = CreateConsumer([]string{"FILE", ""}, "")
	assert.ErrorIs(t, err, ErrConfig)

	_, err = CreatePreconfiguredConsumer(PreconfiguredWriterConfig{}, "/media")
	assert.ErrorIs(t, err, ErrConfig)

	w, err = CreatePreconfiguredConsumer(PreconfiguredWriterConfig{Path: "a.ts", Args: "-f mpegts", Realtime: true}, "/media")
	require.NoError(t, err)
	assert.True(t, w.Realtime())
	assert.Equal(t, "/media", w.mediaFolder)

	w, err = CreatePreconfiguredConsumer(PreconfiguredWriterConfig{Path: "a.ts", MediaFolder: "/recordings"}, "/media")
	require.NoError(t, err)
	assert.Equal(t, "/recordings", w.mediaFolder)

	w, err = CreatePreconfiguredConsumer(PreconfiguredWriterConfig{Path: "a.ts"}, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultMediaFolder, w.mediaFolder)
}

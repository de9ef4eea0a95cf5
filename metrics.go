package media

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Writer metrics
var (
	writerFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_writer_frames_total",
			Help: "Total number of frames accepted by media writers",
		},
		[]string{"index"},
	)

	writerFramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_writer_frames_dropped_total",
			Help: "Total number of frames dropped because the frame queue was full",
		},
		[]string{"index"},
	)

	writerPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_writer_packets_total",
			Help: "Total number of packets written to containers",
		},
		[]string{"index", "media"},
	)

	writerBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_writer_bytes_total",
			Help: "Total number of packet payload bytes written to containers",
		},
		[]string{"index"},
	)

	writerFrameSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_writer_frame_seconds",
			Help:    "Time spent filtering and encoding one frame",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.02, 0.04, 0.08, 0.16, 0.32},
		},
		[]string{"index"},
	)
)

// Decoder metrics
var (
	decoderFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_decoder_frames_total",
			Help: "Total number of video frames decoded",
		},
	)

	decoderErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_decoder_errors_total",
			Help: "Total number of failed decode calls",
		},
	)
)

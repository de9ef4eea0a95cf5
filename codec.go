package media

import "strings"

// CodecID identifies a codec. Values mirror libavcodec's AVCodecID so the
// native backend converts by value.
type CodecID int32

const (
	CodecIDNone       CodecID = 0
	CodecIDMPEG2Video CodecID = 2
	CodecIDMJPEG      CodecID = 7
	CodecIDMPEG4      CodecID = 12
	CodecIDRawVideo   CodecID = 13
	CodecIDFLV1       CodecID = 21
	CodecIDDVVideo    CodecID = 24
	CodecIDH264       CodecID = 27
	CodecIDVP8        CodecID = 139
	CodecIDProRes     CodecID = 147
	CodecIDVP9        CodecID = 167
	CodecIDHEVC       CodecID = 173

	CodecIDPCMS16LE CodecID = 0x10000
	CodecIDPCMS16BE CodecID = 0x10001
	CodecIDPCMS32LE CodecID = 0x10008
	CodecIDPCMF32LE CodecID = 0x10015
	CodecIDMP2      CodecID = 0x15000
	CodecIDMP3      CodecID = 0x15001
	CodecIDAAC      CodecID = 0x15002
	CodecIDAC3      CodecID = 0x15003
	CodecIDFLAC     CodecID = 0x1500c
	CodecIDOpus     CodecID = 0x1503c
)

// CodecDescriptor is static information about a codec.
type CodecDescriptor struct {
	ID        CodecID
	Name      string
	LongName  string
	MediaType MediaType
	MimeType  string
	// TSStreamType is the MPEG-TS PMT stream_type, 0 when not carriable.
	TSStreamType uint8
}

var codecDescriptors = []CodecDescriptor{
	{CodecIDMPEG2Video, "mpeg2video", "MPEG-2 video", MediaTypeVideo, "video/MPV", 0x02},
	{CodecIDMJPEG, "mjpeg", "Motion JPEG", MediaTypeVideo, "video/JPEG", 0},
	{CodecIDMPEG4, "mpeg4", "MPEG-4 part 2", MediaTypeVideo, "video/MP4V-ES", 0x10},
	{CodecIDRawVideo, "rawvideo", "raw video", MediaTypeVideo, "video/raw", 0},
	{CodecIDFLV1, "flv1", "FLV / Sorenson Spark", MediaTypeVideo, "", 0},
	{CodecIDDVVideo, "dvvideo", "DV (Digital Video)", MediaTypeVideo, "video/DV", 0},
	{CodecIDH264, "h264", "H.264 / AVC", MediaTypeVideo, "video/H264", 0x1b},
	{CodecIDVP8, "vp8", "On2 VP8", MediaTypeVideo, "video/VP8", 0},
	{CodecIDProRes, "prores", "Apple ProRes", MediaTypeVideo, "", 0},
	{CodecIDVP9, "vp9", "Google VP9", MediaTypeVideo, "video/VP9", 0},
	{CodecIDHEVC, "hevc", "H.265 / HEVC", MediaTypeVideo, "video/H265", 0x24},

	{CodecIDPCMS16LE, "pcm_s16le", "PCM signed 16-bit little-endian", MediaTypeAudio, "audio/L16", 0},
	{CodecIDPCMS16BE, "pcm_s16be", "PCM signed 16-bit big-endian", MediaTypeAudio, "audio/L16", 0},
	{CodecIDPCMS32LE, "pcm_s32le", "PCM signed 32-bit little-endian", MediaTypeAudio, "", 0},
	{CodecIDPCMF32LE, "pcm_f32le", "PCM 32-bit floating point little-endian", MediaTypeAudio, "", 0},
	{CodecIDMP2, "mp2", "MP2 (MPEG audio layer 2)", MediaTypeAudio, "audio/MPA", 0x03},
	{CodecIDMP3, "mp3", "MP3 (MPEG audio layer 3)", MediaTypeAudio, "audio/MPA", 0x04},
	{CodecIDAAC, "aac", "AAC (Advanced Audio Coding)", MediaTypeAudio, "audio/AAC", 0x0f},
	{CodecIDAC3, "ac3", "ATSC A/52A (AC-3)", MediaTypeAudio, "audio/ac3", 0x81},
	{CodecIDFLAC, "flac", "FLAC (Free Lossless Audio Codec)", MediaTypeAudio, "audio/flac", 0},
	{CodecIDOpus, "opus", "Opus", MediaTypeAudio, "audio/opus", 0x06},
}

// Descriptor returns the static information for c.
func (c CodecID) Descriptor() (CodecDescriptor, bool) {
	for _, d := range codecDescriptors {
		if d.ID == c {
			return d, true
		}
	}
	return CodecDescriptor{ID: c, MediaType: MediaTypeUnknown}, false
}

func (c CodecID) String() string {
	if d, ok := c.Descriptor(); ok {
		return d.Name
	}
	return "none"
}

// MediaType returns the type of media the codec carries.
func (c CodecID) MediaType() MediaType {
	d, _ := c.Descriptor()
	return d.MediaType
}

// CodecByName returns the codec with the given descriptor name.
func CodecByName(name string) (CodecID, bool) {
	name = strings.ToLower(name)
	for _, d := range codecDescriptors {
		if d.Name == name {
			return d.ID, true
		}
	}
	return CodecIDNone, false
}

// CodecParameters describe an encoded stream to a muxer.
type CodecParameters struct {
	CodecID           CodecID
	MediaType         MediaType
	BitRate           int64
	Extradata         []byte
	Width             int
	Height            int
	PixelFormat       PixelFormat
	SampleAspectRatio Rational
	FieldMode         FieldMode
	SampleFormat      SampleFormat
	SampleRate        int
	ChannelLayout     ChannelLayout
	FrameSize         int
}

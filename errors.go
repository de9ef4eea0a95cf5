package media

import "errors"

// Configuration errors. All of them wrap ErrConfig so callers can tell a
// bad setup apart from a runtime failure with a single errors.Is check.
var (
	ErrConfig          = errors.New("invalid configuration")
	ErrEncoderNotFound = errors.New("encoder not found")
	ErrDecoderNotFound = errors.New("decoder not found")
	ErrFilterGraph     = errors.New("invalid filter graph")
	ErrFilterNotFound  = errors.New("filter not found")
	ErrMediaType       = errors.New("invalid media type")
	ErrFormatNotFound  = errors.New("output format not found")
	ErrConversion      = errors.New("no color conversion available")
	ErrReinitialize    = errors.New("cannot reinitialize media writer")
)

// Runtime errors.
var (
	ErrDecode           = errors.New("decode failed")
	ErrAgain            = errors.New("resource temporarily unavailable")
	ErrQueueClosed      = errors.New("queue closed")
	ErrQueueAborted     = errors.New("queue aborted")
	ErrProviderNotFound = errors.New("provider not available")
	ErrNotSupported     = errors.New("operation not supported")
	ErrShortFrame       = errors.New("frame image smaller than the video format")
)

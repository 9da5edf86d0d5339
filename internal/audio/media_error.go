package audio

import "fmt"

// MediaCode follows the numbering of the media element's error codes.
type MediaCode int

const (
	MediaAborted         MediaCode = 1
	MediaNetwork         MediaCode = 2
	MediaDecode          MediaCode = 3
	MediaSrcNotSupported MediaCode = 4
)

// MediaError is a playback failure reported by the audio element.
type MediaError struct {
	Code    MediaCode
	Message string
}

// ErrAborted is the benign interruption of a load or play by a newer request.
var ErrAborted = &MediaError{Code: MediaAborted}

// Category is the stable machine-readable name of the failure class.
func (e *MediaError) Category() string {
	switch e.Code {
	case MediaAborted:
		return "aborted"
	case MediaNetwork:
		return "network"
	case MediaDecode:
		return "decode"
	case MediaSrcNotSupported:
		return "unsupported-format"
	default:
		return "unknown"
	}
}

// Text is the human readable description shown to the user.
func (e *MediaError) Text() string {
	switch e.Code {
	case MediaAborted:
		return "Audio playback was aborted"
	case MediaNetwork:
		return "A network error interrupted the audio download"
	case MediaDecode:
		return "The audio could not be decoded"
	case MediaSrcNotSupported:
		return "The audio format is not supported"
	default:
		return "Audio playback failed"
	}
}

func (e *MediaError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("audio %s: %s", e.Category(), e.Message)
	}
	return "audio " + e.Category() + ": " + e.Text()
}

// Is matches media errors by code, so errors.Is(err, ErrAborted) holds for
// any aborted error.
func (e *MediaError) Is(target error) bool {
	t, ok := target.(*MediaError)
	return ok && t.Code == e.Code
}

// NewMediaError builds a MediaError from a reported code.
func NewMediaError(code int, message string) *MediaError {
	c := MediaCode(code)
	if c < MediaAborted || c > MediaSrcNotSupported {
		c = 0
	}
	return &MediaError{Code: c, Message: message}
}

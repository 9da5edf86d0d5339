// Package audio serializes playback of question audio on a single element.
package audio

import (
	"context"
	"time"

	"github.com/stemsi/intervue/internal/model"
)

// SignalKind mirrors the media element events the coordinator relies on.
type SignalKind string

const (
	SignalLoadedMetadata SignalKind = "loadedmetadata"
	SignalCanPlayThrough SignalKind = "canplaythrough"
	SignalPlaying        SignalKind = "playing"
	SignalEnded          SignalKind = "ended"
	SignalError          SignalKind = "error"
)

// Signal is one element event for the resource identified by AudioID.
type Signal struct {
	Kind     SignalKind    `json:"type"`
	AudioID  string        `json:"audioId"`
	Duration time.Duration `json:"-"`
	Err      *MediaError   `json:"-"`
}

// Player is the surface of one audio element. Play blocks until playback
// started or failed.
type Player interface {
	Load(ctx context.Context, payload model.AudioPayload) error
	Play(ctx context.Context) error
	Pause() error
	Seek(pos time.Duration) error
	Unload() error
	Signals() <-chan Signal
}

// AudioID is the stable identifier used to detect redundant loads.
func AudioID(p model.AudioPayload) string {
	if p.ID != "" {
		return p.ID
	}
	return p.URL
}

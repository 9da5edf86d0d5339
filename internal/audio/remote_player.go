package audio

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/model"
	ws "github.com/stemsi/intervue/internal/websocket"
)

// DefaultPlayAckTimeout bounds how long Play waits for the UI to confirm.
const DefaultPlayAckTimeout = 5 * time.Second

// Sender delivers commands to the UI.
type Sender interface {
	Send(v any) error
}

// RemotePlayer is a Player whose element lives in the UI. Operations become
// audio commands on the UI stream; the UI reports element events back through
// Report.
type RemotePlayer struct {
	out        Sender
	log        zerolog.Logger
	signals    chan Signal
	ackTimeout time.Duration

	mu       sync.Mutex
	current  string
	playWait chan Signal
}

// NewRemotePlayer creates a RemotePlayer writing to out.
func NewRemotePlayer(out Sender, log zerolog.Logger) *RemotePlayer {
	return &RemotePlayer{
		out:        out,
		log:        log.With().Str("component", "remote_player").Logger(),
		signals:    make(chan Signal, 32),
		ackTimeout: DefaultPlayAckTimeout,
	}
}

func (p *RemotePlayer) Load(ctx context.Context, payload model.AudioPayload) error {
	if payload.URL == "" && payload.Data == "" {
		return ErrNoAudioSource
	}
	id := AudioID(payload)

	p.mu.Lock()
	p.current = id
	p.mu.Unlock()

	return p.out.Send(ws.AudioCommand{
		Event:    ws.EventAudio,
		Op:       ws.AudioOpLoad,
		AudioID:  id,
		URL:      payload.URL,
		Data:     payload.Data,
		MimeType: payload.MimeType,
	})
}

// Play asks the UI to play and waits for it to report playing or an error.
// Without a report within the ack timeout playback is assumed to have started.
func (p *RemotePlayer) Play(ctx context.Context) error {
	p.mu.Lock()
	id := p.current
	if id == "" {
		p.mu.Unlock()
		return ErrNothingLoaded
	}
	wait := make(chan Signal, 1)
	p.playWait = wait
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.playWait == wait {
			p.playWait = nil
		}
		p.mu.Unlock()
	}()

	if err := p.out.Send(ws.AudioCommand{Event: ws.EventAudio, Op: ws.AudioOpPlay, AudioID: id}); err != nil {
		return err
	}

	timer := time.NewTimer(p.ackTimeout)
	defer timer.Stop()

	select {
	case sig := <-wait:
		if sig.Kind == SignalError {
			if sig.Err != nil {
				return sig.Err
			}
			return &MediaError{Code: MediaSrcNotSupported}
		}
		return nil
	case <-timer.C:
		p.log.Debug().Str("audio_id", id).Msg("No play confirmation from UI")
		return nil
	case <-ctx.Done():
		return ErrAborted
	}
}

func (p *RemotePlayer) Pause() error {
	return p.out.Send(ws.AudioCommand{Event: ws.EventAudio, Op: ws.AudioOpPause, AudioID: p.Current()})
}

func (p *RemotePlayer) Seek(pos time.Duration) error {
	return p.out.Send(ws.AudioCommand{
		Event:    ws.EventAudio,
		Op:       ws.AudioOpSeek,
		AudioID:  p.Current(),
		Position: pos.Seconds(),
	})
}

// Unload releases the UI's resource. Nothing is sent when nothing is loaded.
func (p *RemotePlayer) Unload() error {
	p.mu.Lock()
	id := p.current
	p.current = ""
	p.mu.Unlock()

	if id == "" {
		return nil
	}
	return p.out.Send(ws.AudioCommand{Event: ws.EventAudio, Op: ws.AudioOpUnload, AudioID: id})
}

func (p *RemotePlayer) Signals() <-chan Signal { return p.signals }

// Current returns the id of the audio loaded in the UI.
func (p *RemotePlayer) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Report feeds an element event from the UI. Events for audio that is no
// longer loaded still reach Signals; the coordinator filters by id.
func (p *RemotePlayer) Report(sig Signal) {
	p.mu.Lock()
	if p.playWait != nil && sig.AudioID == p.current &&
		(sig.Kind == SignalPlaying || sig.Kind == SignalError) {
		select {
		case p.playWait <- sig:
		default:
		}
		p.playWait = nil
	}
	p.mu.Unlock()

	select {
	case p.signals <- sig:
	default:
		p.log.Warn().Str("type", string(sig.Kind)).Msg("Audio signal buffer full, dropping event")
	}
}

// SignalFromEvent converts a UI audio_event action into a Signal.
func SignalFromEvent(req ws.AudioEventRequest) Signal {
	sig := Signal{
		Kind:     SignalKind(req.Type),
		AudioID:  req.AudioID,
		Duration: time.Duration(req.Duration * float64(time.Second)),
	}
	if sig.Kind == SignalError {
		sig.Err = NewMediaError(req.Code, req.Message)
	}
	return sig
}

package audio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/model"
	ws "github.com/stemsi/intervue/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []ws.AudioCommand
	err  error
}

func (s *fakeSender) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, v.(ws.AudioCommand))
	return nil
}

func (s *fakeSender) ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, c := range s.sent {
		out[i] = c.Op
	}
	return out
}

func TestRemotePlayerCommands(t *testing.T) {
	out := &fakeSender{}
	p := NewRemotePlayer(out, zerolog.Nop())
	p.ackTimeout = 20 * time.Millisecond

	require.NoError(t, p.Unload(), "unload with nothing loaded sends nothing")
	require.NoError(t, p.Load(context.Background(), model.AudioPayload{ID: "a1", Data: "SUQz", MimeType: "audio/mpeg"}))
	require.NoError(t, p.Seek(1500*time.Millisecond))
	require.NoError(t, p.Pause())
	require.NoError(t, p.Play(context.Background()))
	require.NoError(t, p.Unload())

	assert.Equal(t, []string{ws.AudioOpLoad, ws.AudioOpSeek, ws.AudioOpPause, ws.AudioOpPlay, ws.AudioOpUnload}, out.ops())
	assert.Equal(t, "SUQz", out.sent[0].Data)
	assert.Equal(t, 1.5, out.sent[1].Position)
	assert.Equal(t, "", p.Current())
}

func TestRemotePlayerPlayWaitsForUI(t *testing.T) {
	out := &fakeSender{}
	p := NewRemotePlayer(out, zerolog.Nop())
	require.NoError(t, p.Load(context.Background(), model.AudioPayload{ID: "a1", URL: "https://cdn/a1.mp3"}))

	go func() {
		time.Sleep(20 * time.Millisecond)
		p.Report(Signal{Kind: SignalError, AudioID: "a1", Err: NewMediaError(4, "no decoder")})
	}()

	err := p.Play(context.Background())
	var me *MediaError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, MediaSrcNotSupported, me.Code)

	go func() {
		time.Sleep(20 * time.Millisecond)
		p.Report(Signal{Kind: SignalPlaying, AudioID: "a1"})
	}()
	assert.NoError(t, p.Play(context.Background()))

	// Every report is also forwarded as a signal.
	assert.Len(t, p.Signals(), 2)
}

func TestRemotePlayerPlayCancelled(t *testing.T) {
	p := NewRemotePlayer(&fakeSender{}, zerolog.Nop())
	require.NoError(t, p.Load(context.Background(), model.AudioPayload{ID: "a1", URL: "https://cdn/a1.mp3"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Play(ctx), ErrAborted)
}

func TestRemotePlayerWithoutUI(t *testing.T) {
	p := NewRemotePlayer(&fakeSender{err: ws.ErrNoSubscriber}, zerolog.Nop())
	err := p.Load(context.Background(), model.AudioPayload{ID: "a1", URL: "https://cdn/a1.mp3"})
	assert.ErrorIs(t, err, ws.ErrNoSubscriber)
	assert.ErrorIs(t, NewRemotePlayer(&fakeSender{}, zerolog.Nop()).Play(context.Background()), ErrNothingLoaded)
}

func TestSignalFromEvent(t *testing.T) {
	sig := SignalFromEvent(ws.AudioEventRequest{Action: ws.ActionAudioEvent, Type: "loadedmetadata", AudioID: "a1", Duration: 2.5})
	assert.Equal(t, SignalLoadedMetadata, sig.Kind)
	assert.Equal(t, 2500*time.Millisecond, sig.Duration)
	assert.Nil(t, sig.Err)

	sig = SignalFromEvent(ws.AudioEventRequest{Type: "error", AudioID: "a1", Code: 2, Message: "offline"})
	require.NotNil(t, sig.Err)
	assert.Equal(t, "network", sig.Err.Category())
}

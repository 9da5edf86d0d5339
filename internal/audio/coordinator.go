package audio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/metrics"
	"github.com/stemsi/intervue/internal/model"
)

// DefaultBufferTimeout bounds the wait for canplaythrough before playback is
// attempted anyway.
const DefaultBufferTimeout = 3 * time.Second

var (
	ErrNothingLoaded = errors.New("no audio loaded")
	ErrNoAudioSource = errors.New("audio payload has neither url nor data")
)

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	BufferTimeout time.Duration
	Autoplay      bool
	// OnSignal observes every element event after the coordinator handled it.
	OnSignal func(Signal)
}

// Coordinator funnels every operation on one Player through a single lock so
// at most one play is in flight, and only the newest requested audio plays.
type Coordinator struct {
	player Player
	cfg    CoordinatorConfig
	log    zerolog.Logger

	stateMu   sync.Mutex
	currentID string
	gen       uint64
	cancel    context.CancelFunc
	waitID    string
	waitCh    chan Signal

	opMu sync.Mutex
}

// NewCoordinator creates a Coordinator. Run must be started to consume the
// player's signals.
func NewCoordinator(player Player, cfg CoordinatorConfig, log zerolog.Logger) *Coordinator {
	if cfg.BufferTimeout <= 0 {
		cfg.BufferTimeout = DefaultBufferTimeout
	}
	return &Coordinator{
		player: player,
		cfg:    cfg,
		log:    log.With().Str("component", "audio").Logger(),
	}
}

// Run dispatches player signals until ctx is done or the channel closes.
func (c *Coordinator) Run(ctx context.Context) {
	signals := c.player.Signals()
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			c.dispatch(sig)
		}
	}
}

func (c *Coordinator) dispatch(sig Signal) {
	delivered := false
	c.stateMu.Lock()
	if c.waitCh != nil && sig.AudioID == c.waitID {
		select {
		case c.waitCh <- sig:
			delivered = true
		default:
		}
	}
	c.stateMu.Unlock()

	// A waiting load surfaces its own error.
	if sig.Kind == SignalError && sig.Err != nil && !delivered {
		c.report(sig.Err, sig.AudioID)
	}
	if c.cfg.OnSignal != nil {
		c.cfg.OnSignal(sig)
	}
}

// Current returns the id of the loaded audio, or "".
func (c *Coordinator) Current() string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.currentID
}

// LoadAndPlay replaces the loaded audio with payload and plays it once it is
// buffered or the buffer timeout elapsed. Loading the current audio again is
// a no-op. A newer call supersedes one still waiting to buffer; the
// superseded call returns nil without playing.
func (c *Coordinator) LoadAndPlay(ctx context.Context, payload model.AudioPayload) error {
	id := AudioID(payload)
	if id == "" && payload.Data == "" {
		return ErrNoAudioSource
	}

	c.stateMu.Lock()
	if id != "" && id == c.currentID {
		c.stateMu.Unlock()
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	loadCtx, cancel := context.WithCancel(ctx)
	c.gen++
	gen := c.gen
	c.currentID = id
	c.cancel = cancel
	c.stateMu.Unlock()
	defer cancel()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if loadCtx.Err() != nil {
		return nil
	}

	if err := c.player.Unload(); err != nil {
		c.log.Debug().Err(err).Msg("Unloading previous audio failed")
	}

	wait := c.watch(id)
	defer c.unwatch(wait)

	if err := c.player.Load(loadCtx, payload); err != nil {
		if loadCtx.Err() != nil {
			return nil
		}
		c.forget(gen)
		return c.surface(err, id)
	}

	if err := c.awaitBuffered(loadCtx, wait); err != nil {
		c.forget(gen)
		return c.surface(err, id)
	}
	if loadCtx.Err() != nil || !c.isCurrent(gen) {
		return nil
	}
	if !c.cfg.Autoplay {
		return nil
	}
	return c.surface(c.player.Play(loadCtx), id)
}

func (c *Coordinator) awaitBuffered(ctx context.Context, wait chan Signal) error {
	timer := time.NewTimer(c.cfg.BufferTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			c.log.Debug().Dur("timeout", c.cfg.BufferTimeout).Msg("Audio not buffered in time, playing anyway")
			return nil
		case sig := <-wait:
			switch sig.Kind {
			case SignalCanPlayThrough:
				return nil
			case SignalError:
				if sig.Err != nil {
					return sig.Err
				}
				return &MediaError{Code: MediaNetwork}
			}
		}
	}
}

func (c *Coordinator) watch(id string) chan Signal {
	ch := make(chan Signal, 4)
	c.stateMu.Lock()
	c.waitID, c.waitCh = id, ch
	c.stateMu.Unlock()
	return ch
}

func (c *Coordinator) unwatch(ch chan Signal) {
	c.stateMu.Lock()
	if c.waitCh == ch {
		c.waitID, c.waitCh = "", nil
	}
	c.stateMu.Unlock()
}

func (c *Coordinator) isCurrent(gen uint64) bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.gen == gen
}

// forget clears the current id after a failed load so the same audio can be
// retried.
func (c *Coordinator) forget(gen uint64) {
	c.stateMu.Lock()
	if c.gen == gen {
		c.currentID = ""
	}
	c.stateMu.Unlock()
}

// Play resumes the loaded audio.
func (c *Coordinator) Play(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.Current() == "" {
		return ErrNothingLoaded
	}
	return c.surface(c.player.Play(ctx), c.Current())
}

// Pause pauses playback. An interrupted play is not an error.
func (c *Coordinator) Pause() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.surface(c.player.Pause(), c.Current())
}

// Replay restarts the loaded audio from the beginning.
func (c *Coordinator) Replay(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	id := c.Current()
	if id == "" {
		return ErrNothingLoaded
	}
	if err := c.player.Seek(0); err != nil {
		return c.surface(err, id)
	}
	return c.surface(c.player.Play(ctx), id)
}

// Stop cancels a pending load and releases the loaded audio.
func (c *Coordinator) Stop() error {
	c.stateMu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.currentID = ""
	c.stateMu.Unlock()

	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.surface(c.player.Unload(), "")
}

// surface drops benign interruptions and records real media failures.
func (c *Coordinator) surface(err error, id string) error {
	if err == nil || errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled) {
		return nil
	}
	var me *MediaError
	if errors.As(err, &me) {
		c.report(me, id)
	}
	return err
}

func (c *Coordinator) report(err *MediaError, id string) {
	if err.Code == MediaAborted {
		return
	}
	metrics.AudioError(err.Category())
	c.log.Warn().Err(err).Str("audio_id", id).Msg("Audio playback error")
}

// Package proctor aggregates proctoring violations for the active session.
package proctor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/model"
	"github.com/stemsi/intervue/internal/timer"
	"golang.org/x/time/rate"
)

// SyncInterval is the minimum spacing between two updates sent to the server.
const SyncInterval = 2 * time.Second

// Kind is a locally detected violation.
type Kind string

const (
	KindTabSwitch     Kind = "tab_switch"
	KindCopyPaste     Kind = "copy_paste"
	KindFaceDetection Kind = "face_detection"
)

var ErrUnknownKind = errors.New("unknown proctoring signal")

// Syncer pushes counters to the server. Implemented by realtime.Client.
type Syncer interface {
	UpdateProctoringData(v model.ProctoringViolations) error
}

// Tracker keeps monotonic violation counters and throttles their sync.
type Tracker struct {
	syncer  Syncer
	clock   timer.Clock
	limiter *rate.Limiter
	log     zerolog.Logger

	mu     sync.Mutex
	counts model.ProctoringViolations
	dirty  bool
}

// NewTracker creates a Tracker starting from initial.
func NewTracker(initial model.ProctoringViolations, syncer Syncer, clock timer.Clock, log zerolog.Logger) *Tracker {
	if clock == nil {
		clock = timer.SystemClock{}
	}
	return &Tracker{
		syncer:  syncer,
		clock:   clock,
		limiter: rate.NewLimiter(rate.Every(SyncInterval), 1),
		log:     log.With().Str("component", "proctor").Logger(),
		counts:  initial,
	}
}

// Record counts one local violation and tries to sync.
func (t *Tracker) Record(kind Kind) (model.ProctoringViolations, error) {
	t.mu.Lock()
	switch kind {
	case KindTabSwitch:
		t.counts.TabSwitches++
	case KindCopyPaste:
		t.counts.CopyPasteCount++
	case KindFaceDetection:
		t.counts.FaceDetectionIssues++
	default:
		t.mu.Unlock()
		return model.ProctoringViolations{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	t.dirty = true
	snapshot := t.counts
	t.mu.Unlock()

	t.Flush()
	return snapshot, nil
}

// Merge folds server counters in, keeping the larger value of each.
func (t *Tracker) Merge(server model.ProctoringViolations) model.ProctoringViolations {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts = t.counts.Merge(server)
	return t.counts
}

// Overwrite replaces the counters with the server's reconnect snapshot.
func (t *Tracker) Overwrite(server model.ProctoringViolations) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts = server
	t.dirty = false
}

// Snapshot returns the current counters.
func (t *Tracker) Snapshot() model.ProctoringViolations {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts
}

// Flush sends pending counters unless the last sync was too recent. A
// suppressed or failed sync stays pending for the next call. It reports
// whether an update was sent.
func (t *Tracker) Flush() bool {
	t.mu.Lock()
	if !t.dirty || t.syncer == nil || !t.limiter.AllowN(t.clock.Now(), 1) {
		t.mu.Unlock()
		return false
	}
	snapshot := t.counts
	t.dirty = false
	t.mu.Unlock()

	if err := t.syncer.UpdateProctoringData(snapshot); err != nil {
		t.log.Debug().Err(err).Msg("Proctoring sync failed, will retry")
		t.mu.Lock()
		t.dirty = true
		t.mu.Unlock()
		return false
	}
	return true
}

package proctor

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

type recordingSyncer struct {
	sent []model.ProctoringViolations
	err  error
}

func (s *recordingSyncer) UpdateProctoringData(v model.ProctoringViolations) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, v)
	return nil
}

func TestRecordIncrementsAndThrottles(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	syncer := &recordingSyncer{}
	tr := NewTracker(model.ProctoringViolations{}, syncer, clock, zerolog.Nop())

	got, err := tr.Record(KindTabSwitch)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TabSwitches)

	clock.now = clock.now.Add(500 * time.Millisecond)
	_, err = tr.Record(KindCopyPaste)
	require.NoError(t, err)

	require.Len(t, syncer.sent, 1, "second signal inside the interval is held back")
	assert.Equal(t, 1, syncer.sent[0].TabSwitches)

	assert.False(t, tr.Flush())

	clock.now = clock.now.Add(SyncInterval)
	assert.True(t, tr.Flush())
	require.Len(t, syncer.sent, 2)
	assert.Equal(t, model.ProctoringViolations{TabSwitches: 1, CopyPasteCount: 1}, syncer.sent[1])

	clock.now = clock.now.Add(SyncInterval)
	assert.False(t, tr.Flush(), "nothing pending")
}

func TestRecordUnknownKind(t *testing.T) {
	tr := NewTracker(model.ProctoringViolations{}, nil, nil, zerolog.Nop())
	_, err := tr.Record("gaze")
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Zero(t, tr.Snapshot().Total())
}

func TestFailedSyncStaysPending(t *testing.T) {
	clock := &stepClock{now: time.Now()}
	syncer := &recordingSyncer{err: errors.New("socketio: not connected")}
	tr := NewTracker(model.ProctoringViolations{}, syncer, clock, zerolog.Nop())

	_, err := tr.Record(KindFaceDetection)
	require.NoError(t, err)
	assert.Empty(t, syncer.sent)

	syncer.err = nil
	clock.now = clock.now.Add(SyncInterval)
	assert.True(t, tr.Flush())
	require.Len(t, syncer.sent, 1)
	assert.Equal(t, 1, syncer.sent[0].FaceDetectionIssues)
}

func TestMergeMaxWins(t *testing.T) {
	tr := NewTracker(model.ProctoringViolations{TabSwitches: 3, CopyPasteCount: 1}, nil, nil, zerolog.Nop())

	got := tr.Merge(model.ProctoringViolations{TabSwitches: 2, CopyPasteCount: 4, FaceDetectionIssues: 1})
	assert.Equal(t, model.ProctoringViolations{TabSwitches: 3, CopyPasteCount: 4, FaceDetectionIssues: 1}, got)

	// Merging the same server view again does not double count.
	got = tr.Merge(model.ProctoringViolations{TabSwitches: 2, CopyPasteCount: 4, FaceDetectionIssues: 1})
	assert.Equal(t, 8, got.Total())
}

func TestOverwriteTakesServerSnapshot(t *testing.T) {
	clock := &stepClock{now: time.Now()}
	syncer := &recordingSyncer{}
	tr := NewTracker(model.ProctoringViolations{TabSwitches: 5}, syncer, clock, zerolog.Nop())
	_, _ = tr.Record(KindTabSwitch)
	_, _ = tr.Record(KindTabSwitch)

	tr.Overwrite(model.ProctoringViolations{TabSwitches: 7, CopyPasteCount: 2})
	assert.Equal(t, model.ProctoringViolations{TabSwitches: 7, CopyPasteCount: 2}, tr.Snapshot())

	clock.now = clock.now.Add(SyncInterval)
	assert.False(t, tr.Flush(), "overwritten counters are already the server's")
}

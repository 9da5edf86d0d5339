package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stemsi/intervue/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsPermanent(fmt.Errorf("copy archives: %w", &pgconn.PgError{Code: "22P02"})))
	assert.False(t, IsPermanent(&pgconn.PgError{Code: "08006"}))
	assert.False(t, IsPermanent(errors.New("conn closed")))
}

func TestArchiveRows(t *testing.T) {
	rec := model.ArchiveRecord{
		InterviewID:   "iv-1",
		InterviewType: model.InterviewTypeCompany,
		Outcome:       model.OutcomeTerminated,
		Reason:        "content_violation",
		EndedAt:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Proctoring:    model.ProctoringViolations{TabSwitches: 2},
		Messages: model.ChatHistory{
			{ID: "m1", Role: model.ChatRoleAI, Text: "Why us?", QuestionID: "q1"},
			{ID: "m2", Role: model.ChatRoleUser, Text: "Scale", QuestionID: "q1",
				AnswerAnalysis: &model.AnswerAnalysis{Score: 6, Feedback: "Be specific"}},
		},
	}

	row := archiveRow(&rec)
	require.Len(t, row, len(archiveColumns))
	assert.Nil(t, row[5].(*time.Time), "missing start time is stored as NULL")
	assert.Equal(t, 2, row[10])

	msgs, err := messageRows(&rec)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.Len(t, m, len(messageColumns))
	}
	assert.Nil(t, msgs[0][6])
	assert.JSONEq(t, `{"score":6,"feedback":"Be specific"}`, msgs[1][6].(string))
	assert.Equal(t, 1, msgs[1][1])
}

func TestArchiveQueuePop(t *testing.T) {
	_, rdb := setupTestRedis(t)
	q := NewArchiveQueue(rdb)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, model.ArchiveRecord{InterviewID: "iv-1"}))
	raw, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Contains(t, raw, `"interview_id":"iv-1"`)
}

package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		event string
		raw   string
		check func(t *testing.T, ev Event)
	}{
		{
			name:  "generating without payload",
			event: OnQuestionGenerating,
			raw:   "",
			check: func(t *testing.T, ev Event) {
				assert.IsType(t, QuestionGenerating{}, ev)
			},
		},
		{
			name:  "question with audio",
			event: OnQuestionNext,
			raw:   `{"success":true,"data":{"question":{"id":"q2","text":"Why?","audio":{"id":"a2","url":"https://cdn/a2.mp3","mimeType":"audio/mpeg"}},"questionNumber":2,"totalQuestions":5}}`,
			check: func(t *testing.T, ev Event) {
				q := ev.(QuestionReceived)
				assert.False(t, q.First)
				require.NotNil(t, q.Question.Audio)
				assert.Equal(t, "a2", q.Question.Audio.ID)
				assert.Equal(t, OnQuestionNext, q.EventName())
			},
		},
		{
			name:  "answer submitted",
			event: OnAnswerSubmitted,
			raw:   `{"success":true,"data":{"questionId":"q1","answer":"A","messageId":"m9","analysis":{"score":8,"feedback":"good"}}}`,
			check: func(t *testing.T, ev Event) {
				a := ev.(AnswerSubmitted)
				assert.Equal(t, "m9", a.MessageID)
				assert.Equal(t, 8.0, a.Analysis.Score)
			},
		},
		{
			name:  "error message in data",
			event: OnQuestionError,
			raw:   `{"success":false,"data":{"message":"generation failed","code":"GEN"}}`,
			check: func(t *testing.T, ev Event) {
				e := ev.(*ErrorEvent)
				assert.Equal(t, "generation failed", e.Message)
				assert.Equal(t, "GEN", e.Code)
				assert.Equal(t, "question:error: generation failed (GEN)", e.Error())
			},
		},
		{
			name:  "unsuccessful envelope on a normal event",
			event: OnQuestionNext,
			raw:   `{"success":false,"message":"no more questions"}`,
			check: func(t *testing.T, ev Event) {
				e := ev.(*ErrorEvent)
				assert.Equal(t, OnQuestionNext, e.Source)
				assert.Equal(t, "no more questions", e.Message)
			},
		},
		{
			name:  "error without message",
			event: OnReconnectionError,
			raw:   `{"success":false}`,
			check: func(t *testing.T, ev Event) {
				assert.Equal(t, "request failed", ev.(*ErrorEvent).Message)
			},
		},
		{
			name:  "proctoring updated",
			event: OnProctoringUpdated,
			raw:   `{"success":true,"data":{"proctoringData":{"faceDetectionIssues":2}}}`,
			check: func(t *testing.T, ev Event) {
				p := ev.(ProctoringData)
				assert.True(t, p.Updated)
				assert.Equal(t, 2, p.Violations.FaceDetectionIssues)
			},
		},
		{
			name:  "terminated message from envelope",
			event: OnTerminated,
			raw:   `{"success":true,"message":"Too many warnings","data":{"reason":"warnings"}}`,
			check: func(t *testing.T, ev Event) {
				term := ev.(Terminated)
				assert.Equal(t, "warnings", term.Reason)
				assert.Equal(t, "Too many warnings", term.Message)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode(tt.event, json.RawMessage(tt.raw))
			require.NoError(t, err)
			tt.check(t, ev)
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	_, err := Decode("interview:unknown", json.RawMessage(`{"success":true}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = Decode(OnQuestionNext, json.RawMessage(`not json`))
	assert.Error(t, err)

	_, err = Decode(OnQuestionNext, json.RawMessage(`{"success":true,"data":{"questionNumber":"two"}}`))
	assert.Error(t, err)
}

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatHistoryAppend(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	base := ChatHistory{
		{ID: "m1", Role: ChatRoleAI, Text: "Explain goroutines", Timestamp: at, QuestionID: "q1"},
		{ID: "m2", Role: ChatRoleUser, Text: "Lightweight threads", Timestamp: at.Add(time.Minute), QuestionID: "q1"},
	}

	tests := []struct {
		name  string
		msg   ChatMessage
		grows bool
	}{
		{
			name:  "next question",
			msg:   ChatMessage{ID: "m3", Role: ChatRoleAI, Text: "Explain interfaces", QuestionID: "q2"},
			grows: true,
		},
		{
			name: "same message id",
			msg:  ChatMessage{ID: "m1", Role: ChatRoleAI, Text: "Explain goroutines again", QuestionID: "q1"},
		},
		{
			name: "prompt redelivered under a new id",
			msg:  ChatMessage{ID: "m9", Role: ChatRoleAI, Text: "Explain goroutines", QuestionID: "q1"},
		},
		{
			name: "second answer to the same question",
			msg:  ChatMessage{ID: "m10", Role: ChatRoleUser, Text: "Green threads", QuestionID: "q1"},
		},
		{
			name:  "message without question",
			msg:   ChatMessage{ID: "m11", Role: ChatRoleAI, Text: "Welcome"},
			grows: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := append(ChatHistory(nil), base...)

			assert.Equal(t, tt.grows, h.Append(tt.msg))

			want := len(base)
			if tt.grows {
				want++
			}
			require.Len(t, h, want)
			assert.Equal(t, base, h[:len(base)], "earlier entries are untouched")
			if tt.grows {
				assert.Equal(t, tt.msg, h[len(h)-1])
			}
		})
	}
}

func TestChatHistoryKeepsArrivalOrder(t *testing.T) {
	var h ChatHistory
	h.Append(ChatMessage{ID: "a-q1", Role: ChatRoleUser, Text: "answer", QuestionID: "q1"})
	h.Append(ChatMessage{ID: "q-q2", Role: ChatRoleAI, Text: "second", QuestionID: "q2"})
	h.Append(ChatMessage{ID: "q-q1", Role: ChatRoleAI, Text: "first", QuestionID: "q1"})

	ids := make([]string, 0, len(h))
	for _, m := range h {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"a-q1", "q-q2", "q-q1"}, ids)
}

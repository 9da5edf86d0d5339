package config

import (
	"fmt"
)

// StoreKeyStruct builds the Redis key for each persisted session field.
// Every field lives under its own key so partial reads stay meaningful.
type StoreKeyStruct struct {
	namespace string
}

// NewStoreKeyStruct scopes all keys under namespace.
func NewStoreKeyStruct(namespace string) *StoreKeyStruct {
	return &StoreKeyStruct{namespace: namespace}
}

func (k *StoreKeyStruct) key(field string) string {
	return fmt.Sprintf("%s:%s", k.namespace, field)
}

// SessionActiveKey holds "true" while a session is stored.
func (k *StoreKeyStruct) SessionActiveKey() string { return k.key("session_active") }

// InterviewIDKey holds the server-assigned interview identifier.
func (k *StoreKeyStruct) InterviewIDKey() string { return k.key("interview_id") }

// InterviewTypeKey holds the interview type.
func (k *StoreKeyStruct) InterviewTypeKey() string { return k.key("interview_type") }

// StartTimeKey holds the session start as Unix milliseconds.
func (k *StoreKeyStruct) StartTimeKey() string { return k.key("start_time") }

// QuestionNumberKey holds the question cursor.
func (k *StoreKeyStruct) QuestionNumberKey() string { return k.key("question_number") }

// TotalQuestionsKey holds the planned number of questions.
func (k *StoreKeyStruct) TotalQuestionsKey() string { return k.key("total_questions") }

// CurrentQuestionKey holds the JSON-encoded current question.
func (k *StoreKeyStruct) CurrentQuestionKey() string { return k.key("current_question") }

// ChatHistoryKey holds the JSON-encoded transcript.
func (k *StoreKeyStruct) ChatHistoryKey() string { return k.key("chat_history") }

// WarningStatusKey holds the JSON-encoded warning status.
func (k *StoreKeyStruct) WarningStatusKey() string { return k.key("warning_status") }

// ProctoringKey holds the JSON-encoded violation counters.
func (k *StoreKeyStruct) ProctoringKey() string { return k.key("proctoring") }

// TimeElapsedKey holds the last computed elapsed seconds (informational).
func (k *StoreKeyStruct) TimeElapsedKey() string { return k.key("time_elapsed") }

// TimeRemainingKey holds the last computed remaining seconds (informational).
func (k *StoreKeyStruct) TimeRemainingKey() string { return k.key("time_remaining") }

// LastUpdateKey holds the Unix milliseconds of the last save.
func (k *StoreKeyStruct) LastUpdateKey() string { return k.key("last_update") }

// AuxiliaryKeys are dropped first when storage runs out of room.
func (k *StoreKeyStruct) AuxiliaryKeys() []string {
	return []string{
		k.ChatHistoryKey(),
		k.CurrentQuestionKey(),
		k.TimeElapsedKey(),
		k.TimeRemainingKey(),
		k.ProctoringKey(),
		k.WarningStatusKey(),
	}
}

// AllKeys lists every key owned by the session store.
func (k *StoreKeyStruct) AllKeys() []string {
	return append([]string{
		k.SessionActiveKey(),
		k.InterviewIDKey(),
		k.InterviewTypeKey(),
		k.StartTimeKey(),
		k.QuestionNumberKey(),
		k.TotalQuestionsKey(),
		k.LastUpdateKey(),
	}, k.AuxiliaryKeys()...)
}

// AuthTokenKey holds the REST API access token of the signed-in user.
func (k *StoreKeyStruct) AuthTokenKey() string { return k.key("auth:token") }

// AuthProfileKey holds the JSON-encoded profile of the signed-in user.
func (k *StoreKeyStruct) AuthProfileKey() string { return k.key("auth:profile") }

// CatalogKey caches a question-bank catalog listing ("technologies",
// "categories").
func (k *StoreKeyStruct) CatalogKey(name string) string { return k.key("catalog:" + name) }

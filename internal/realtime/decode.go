package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownEvent is returned for inbound events outside the protocol.
var ErrUnknownEvent = errors.New("unknown realtime event")

var errorEvents = map[string]bool{
	OnQuestionError:     true,
	OnAnswerError:       true,
	OnReconnectionError: true,
	OnProctoringError:   true,
}

// Decode turns one inbound event into its typed form. A payload with
// success=false, or any *:error event, decodes to *ErrorEvent.
func Decode(name string, raw json.RawMessage) (Event, error) {
	env := Envelope{Success: true}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("decode %s envelope: %w", name, err)
		}
	}

	if errorEvents[name] || !env.Success {
		return decodeError(name, env), nil
	}

	var ev Event
	switch name {
	case OnQuestionGenerating:
		return QuestionGenerating{}, nil
	case OnQuestionFirst, OnQuestionNext:
		q := QuestionReceived{First: name == OnQuestionFirst}
		if err := decodeData(env, &q); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		ev = q
	case OnAnswerAnalyzing:
		var a AnswerAnalyzing
		if err := decodeData(env, &a); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		ev = a
	case OnAnswerSubmitted:
		var a AnswerSubmitted
		if err := decodeData(env, &a); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		ev = a
	case OnWarning:
		var w Warning
		if err := decodeData(env, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		if w.Message == "" {
			w.Message = env.Message
		}
		ev = w
	case OnComplete:
		var c Completed
		if err := decodeData(env, &c); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		if c.Message == "" {
			c.Message = env.Message
		}
		ev = c
	case OnTerminated:
		var t Terminated
		if err := decodeData(env, &t); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		if t.Message == "" {
			t.Message = env.Message
		}
		ev = t
	case OnReconnectionSuccess:
		var r Reconnected
		if err := decodeData(env, &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		ev = r
	case OnProctoringData, OnProctoringUpdated:
		p := ProctoringData{Updated: name == OnProctoringUpdated}
		if err := decodeData(env, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		ev = p
	case OnTimerUpdate:
		var t TimerUpdate
		if err := decodeData(env, &t); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		ev = t
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
	}
	return ev, nil
}

func decodeData(env Envelope, dst any) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	return json.Unmarshal(env.Data, dst)
}

func decodeError(name string, env Envelope) *ErrorEvent {
	ev := &ErrorEvent{Source: name, Message: env.Message, Code: env.Code}
	if ev.Message == "" || ev.Code == "" {
		var inner ErrorEvent
		if decodeData(env, &inner) == nil {
			if ev.Message == "" {
				ev.Message = inner.Message
			}
			if ev.Code == "" {
				ev.Code = inner.Code
			}
		}
	}
	if ev.Message == "" {
		ev.Message = "request failed"
	}
	return ev
}

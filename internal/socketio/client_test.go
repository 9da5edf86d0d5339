package socketio_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/socketio"
	"github.com/stemsi/intervue/internal/socketio/socketiotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stateChange struct {
	state socketio.State
	err   error
}

type inbound struct {
	name    string
	payload json.RawMessage
}

type recorder struct {
	events chan inbound
	states chan stateChange
}

func newRecorder() *recorder {
	return &recorder{
		events: make(chan inbound, 32),
		states: make(chan stateChange, 32),
	}
}

func (r *recorder) HandleEvent(name string, payload json.RawMessage) {
	r.events <- inbound{name, payload}
}

func (r *recorder) HandleState(state socketio.State, err error) {
	r.states <- stateChange{state, err}
}

func (r *recorder) waitState(t *testing.T, want socketio.State) stateChange {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case sc := <-r.states:
			if sc.state == want {
				return sc
			}
		case <-timeout:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func testOptions(url string) socketio.Options {
	return socketio.Options{
		URL:               url,
		ReconnectAttempts: 3,
		ReconnectDelay:    20 * time.Millisecond,
		HandshakeTimeout:  2 * time.Second,
		Auth: func() any {
			return map[string]string{"token": "tok"}
		},
	}
}

func TestClientConnectAndEmit(t *testing.T) {
	srv := socketiotest.NewServer(func(conn *socketiotest.Conn, ev socketiotest.Event) {
		if ev.Name == "interview:join" {
			_ = conn.Emit("question:generating", map[string]any{"success": true})
		}
	})
	defer srv.Close()

	rec := newRecorder()
	client := socketio.New(testOptions(srv.WebSocketURL()), rec, zerolog.Nop())
	defer client.Close()

	require.NoError(t, client.Connect(context.Background()))
	assert.Equal(t, socketio.StateConnected, client.State())
	assert.Equal(t, "sid-1", client.SID())

	require.NoError(t, client.Emit("interview:join", map[string]string{"interviewId": "abc123"}))

	select {
	case ev := <-srv.Events():
		assert.Equal(t, "interview:join", ev.Name)
		assert.JSONEq(t, `{"interviewId":"abc123"}`, string(ev.Payload))
		assert.JSONEq(t, `{"token":"tok"}`, string(ev.Auth))
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive event")
	}

	select {
	case ev := <-rec.events:
		assert.Equal(t, "question:generating", ev.name)
		assert.JSONEq(t, `{"success":true}`, string(ev.payload))
	case <-time.After(2 * time.Second):
		t.Fatal("client did not receive reply")
	}
}

func TestClientConnectRejected(t *testing.T) {
	srv := socketiotest.NewServer(nil)
	defer srv.Close()
	srv.RejectConnect.Store("unauthorized")

	client := socketio.New(testOptions(srv.WebSocketURL()), newRecorder(), zerolog.Nop())
	defer client.Close()

	err := client.Connect(context.Background())
	var rejected *socketio.ConnectError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "unauthorized", rejected.Message)
	assert.Equal(t, 1, srv.Dials(), "connect errors are not retried")
}

func TestClientConnectExhausted(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := "ws" + srv.URL[len("http"):]
	srv.Close()

	rec := newRecorder()
	client := socketio.New(testOptions(url), rec, zerolog.Nop())
	defer client.Close()

	err := client.Connect(context.Background())
	assert.ErrorIs(t, err, socketio.ErrReconnectExhausted)

	sc := rec.waitState(t, socketio.StateDisconnected)
	assert.ErrorIs(t, sc.err, socketio.ErrReconnectExhausted)
}

func TestClientReconnectsAfterDrop(t *testing.T) {
	srv := socketiotest.NewServer(nil)
	defer srv.Close()

	rec := newRecorder()
	client := socketio.New(testOptions(srv.WebSocketURL()), rec, zerolog.Nop())
	defer client.Close()

	require.NoError(t, client.Connect(context.Background()))
	rec.waitState(t, socketio.StateConnected)

	srv.Drop()

	sc := rec.waitState(t, socketio.StateReconnecting)
	assert.Error(t, sc.err)
	rec.waitState(t, socketio.StateConnected)

	assert.Equal(t, 2, srv.Dials())
	assert.Equal(t, "sid-2", client.SID())
	require.NoError(t, client.Emit("interview:reconnect", nil))
}

func TestClientServerDisconnect(t *testing.T) {
	srv := socketiotest.NewServer(nil)
	defer srv.Close()

	rec := newRecorder()
	client := socketio.New(testOptions(srv.WebSocketURL()), rec, zerolog.Nop())
	defer client.Close()

	require.NoError(t, client.Connect(context.Background()))
	rec.waitState(t, socketio.StateConnected)

	srv.Kick()

	sc := rec.waitState(t, socketio.StateDisconnected)
	assert.ErrorIs(t, sc.err, socketio.ErrServerDisconnect)
	assert.ErrorIs(t, client.Emit("answer:submit", nil), socketio.ErrNotConnected)
	assert.Equal(t, 1, srv.Dials())
}

func TestClientClose(t *testing.T) {
	srv := socketiotest.NewServer(nil)
	defer srv.Close()

	rec := newRecorder()
	client := socketio.New(testOptions(srv.WebSocketURL()), rec, zerolog.Nop())

	require.NoError(t, client.Connect(context.Background()))
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	sc := rec.waitState(t, socketio.StateDisconnected)
	assert.NoError(t, sc.err)
	assert.ErrorIs(t, client.Emit("interview:leave", nil), socketio.ErrNotConnected)
	assert.ErrorIs(t, client.Connect(context.Background()), socketio.ErrClosed)
}

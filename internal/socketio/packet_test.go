package socketio_test

import (
	"encoding/json"
	"testing"

	"github.com/stemsi/intervue/internal/socketio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePacket(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantType  socketio.PacketType
		wantNS    string
		wantAck   int
		wantData  string
		wantError bool
	}{
		{name: "connect", body: "0", wantType: socketio.PacketConnect, wantNS: "/"},
		{name: "connect ack with sid", body: `0{"sid":"abc"}`, wantType: socketio.PacketConnect, wantNS: "/", wantData: `{"sid":"abc"}`},
		{name: "event", body: `2["hello",{"a":1}]`, wantType: socketio.PacketEvent, wantNS: "/", wantData: `["hello",{"a":1}]`},
		{name: "event with namespace", body: `2/admin,["hello"]`, wantType: socketio.PacketEvent, wantNS: "/admin", wantData: `["hello"]`},
		{name: "event with ack id", body: `213["hello"]`, wantType: socketio.PacketEvent, wantNS: "/", wantAck: 13, wantData: `["hello"]`},
		{name: "namespace only", body: `1/admin`, wantType: socketio.PacketDisconnect, wantNS: "/admin"},
		{name: "empty", body: "", wantError: true},
		{name: "unknown type", body: "9", wantError: true},
		{name: "binary", body: `51-["file",{"_placeholder":true,"num":0}]`, wantError: true},
		{name: "bad json", body: `2["hello"`, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := socketio.DecodePacket([]byte(tt.body))
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, p.Type)
			assert.Equal(t, tt.wantNS, p.Namespace)
			assert.Equal(t, tt.wantAck, p.AckID)
			assert.Equal(t, tt.wantData, string(p.Data))
		})
	}
}

func TestPacketEvent(t *testing.T) {
	p, err := socketio.DecodePacket([]byte(`2["question:next",{"success":true},"extra"]`))
	require.NoError(t, err)

	name, payload, err := p.Event()
	require.NoError(t, err)
	assert.Equal(t, "question:next", name)
	assert.JSONEq(t, `{"success":true}`, string(payload))

	p, err = socketio.DecodePacket([]byte(`2["interview:leave"]`))
	require.NoError(t, err)
	name, payload, err = p.Event()
	require.NoError(t, err)
	assert.Equal(t, "interview:leave", name)
	assert.Nil(t, payload)

	p, err = socketio.DecodePacket([]byte(`2[42]`))
	require.NoError(t, err)
	_, _, err = p.Event()
	assert.ErrorIs(t, err, socketio.ErrMalformedPacket)
}

func TestEncodeEvent(t *testing.T) {
	frame, err := socketio.EncodeEvent("/", "answer:submit", map[string]string{"questionId": "q1"})
	require.NoError(t, err)
	assert.Equal(t, `42["answer:submit",{"questionId":"q1"}]`, string(frame))

	frame, err = socketio.EncodeEvent("/interview", "interview:leave", nil)
	require.NoError(t, err)
	assert.Equal(t, `42/interview,["interview:leave"]`, string(frame))
}

func TestEncodeConnect(t *testing.T) {
	frame, err := socketio.EncodeConnect("/", nil)
	require.NoError(t, err)
	assert.Equal(t, "40", string(frame))

	frame, err = socketio.EncodeConnect("/", map[string]string{"token": "t"})
	require.NoError(t, err)
	assert.Equal(t, `40{"token":"t"}`, string(frame))

	assert.Equal(t, "41/interview,", string(socketio.EncodeDisconnect("/interview")))
}

func TestDecodeOpen(t *testing.T) {
	typ, body, err := socketio.Frame([]byte(`0{"sid":"s1","upgrades":[],"pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`))
	require.NoError(t, err)
	assert.Equal(t, socketio.EngineOpen, typ)

	info, err := socketio.DecodeOpen(body)
	require.NoError(t, err)
	assert.Equal(t, "s1", info.SID)
	assert.Equal(t, 25000, info.PingInterval)

	_, _, err = socketio.Frame(nil)
	assert.ErrorIs(t, err, socketio.ErrEmptyFrame)

	_, err = socketio.DecodeOpen(json.RawMessage(`nope`))
	assert.Error(t, err)
}

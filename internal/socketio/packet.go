// Package socketio is a minimal Socket.IO (protocol v5 over Engine.IO v4)
// client speaking the WebSocket transport only.
package socketio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// EngineType is the Engine.IO packet type, the first byte of every frame.
type EngineType byte

const (
	EngineOpen    EngineType = '0'
	EngineClose   EngineType = '1'
	EnginePing    EngineType = '2'
	EnginePong    EngineType = '3'
	EngineMessage EngineType = '4'
	EngineUpgrade EngineType = '5'
	EngineNoop    EngineType = '6'
)

// PacketType is the Socket.IO packet type carried inside an Engine.IO message.
type PacketType byte

const (
	PacketConnect      PacketType = '0'
	PacketDisconnect   PacketType = '1'
	PacketEvent        PacketType = '2'
	PacketAck          PacketType = '3'
	PacketConnectError PacketType = '4'
	PacketBinaryEvent  PacketType = '5'
	PacketBinaryAck    PacketType = '6'
)

var (
	ErrEmptyFrame      = errors.New("socketio: empty frame")
	ErrMalformedPacket = errors.New("socketio: malformed packet")
	ErrBinaryPacket    = errors.New("socketio: binary packets are not supported")
)

// OpenInfo is the handshake payload of the Engine.IO open packet.
type OpenInfo struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

// Packet is a decoded Socket.IO packet.
type Packet struct {
	Type      PacketType
	Namespace string
	AckID     int
	HasAck    bool
	Data      json.RawMessage
}

// ConnectError is the payload of a CONNECT_ERROR packet.
type ConnectError struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ConnectError) Error() string {
	return "socketio: connect rejected: " + e.Message
}

// Frame splits a raw WebSocket message into its Engine.IO type and body.
func Frame(raw []byte) (EngineType, []byte, error) {
	if len(raw) == 0 {
		return 0, nil, ErrEmptyFrame
	}
	return EngineType(raw[0]), raw[1:], nil
}

// DecodeOpen parses the body of an open packet.
func DecodeOpen(body []byte) (OpenInfo, error) {
	var info OpenInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return info, fmt.Errorf("decode open packet: %w", err)
	}
	return info, nil
}

// DecodePacket parses the body of an Engine.IO message into a Socket.IO packet.
// Format: <type>[<namespace>,][<ack id>][<json>].
func DecodePacket(body []byte) (Packet, error) {
	if len(body) == 0 {
		return Packet{}, ErrMalformedPacket
	}

	p := Packet{Type: PacketType(body[0]), Namespace: "/"}
	if p.Type < PacketConnect || p.Type > PacketBinaryAck {
		return Packet{}, fmt.Errorf("%w: type %q", ErrMalformedPacket, body[0])
	}
	if p.Type == PacketBinaryEvent || p.Type == PacketBinaryAck {
		return Packet{}, ErrBinaryPacket
	}

	rest := body[1:]
	if len(rest) > 0 && rest[0] == '/' {
		end := bytes.IndexByte(rest, ',')
		if end < 0 {
			p.Namespace = string(rest)
			return p, nil
		}
		p.Namespace = string(rest[:end])
		rest = rest[end+1:]
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.Atoi(string(rest[:digits]))
		if err != nil {
			return Packet{}, fmt.Errorf("%w: ack id: %v", ErrMalformedPacket, err)
		}
		p.AckID, p.HasAck = id, true
		rest = rest[digits:]
	}

	if len(rest) > 0 {
		if !json.Valid(rest) {
			return Packet{}, fmt.Errorf("%w: invalid json", ErrMalformedPacket)
		}
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// Event returns the event name and its first argument. Extra arguments are
// ignored; a missing argument yields a nil payload.
func (p Packet) Event() (string, json.RawMessage, error) {
	if p.Type != PacketEvent {
		return "", nil, fmt.Errorf("%w: not an event", ErrMalformedPacket)
	}
	var args []json.RawMessage
	if err := json.Unmarshal(p.Data, &args); err != nil || len(args) == 0 {
		return "", nil, fmt.Errorf("%w: event array", ErrMalformedPacket)
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return "", nil, fmt.Errorf("%w: event name", ErrMalformedPacket)
	}
	if len(args) < 2 {
		return name, nil, nil
	}
	return name, args[1], nil
}

func prefix(t PacketType, namespace string) []byte {
	buf := []byte{byte(EngineMessage), byte(t)}
	if namespace != "" && namespace != "/" {
		buf = append(buf, namespace...)
		buf = append(buf, ',')
	}
	return buf
}

// EncodeEvent frames an event as 42[<ns>,]["name",payload].
func EncodeEvent(namespace, name string, payload any) ([]byte, error) {
	args := []any{name}
	if payload != nil {
		args = append(args, payload)
	}
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", name, err)
	}
	return append(prefix(PacketEvent, namespace), body...), nil
}

// EncodeConnect frames a namespace connect, optionally carrying auth data.
func EncodeConnect(namespace string, auth any) ([]byte, error) {
	buf := prefix(PacketConnect, namespace)
	if auth == nil {
		return buf, nil
	}
	body, err := json.Marshal(auth)
	if err != nil {
		return nil, fmt.Errorf("encode connect auth: %w", err)
	}
	return append(buf, body...), nil
}

// EncodeDisconnect frames a namespace disconnect.
func EncodeDisconnect(namespace string) []byte {
	return prefix(PacketDisconnect, namespace)
}

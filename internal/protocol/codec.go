package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec turns envelopes into websocket frames and back. Each connection picks
// one codec for both directions.
type Codec interface {
	Name() string
	// FrameType is the websocket frame type the codec writes.
	FrameType() int
	Encode(msg *Message) ([]byte, error)
	Decode(data []byte) (*Message, error)
	Unmarshal(data []byte, v any) error
}

var (
	JSON    Codec = jsonCodec{}
	Msgpack Codec = msgpackCodec{}
)

// CodecByName resolves the codec requested by a client. An empty name means
// JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return Msgpack, nil
	}
	return nil, fmt.Errorf("unsupported codec %q", name)
}

type outboundFrame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type jsonCodec struct{}

func (jsonCodec) Name() string   { return "json" }
func (jsonCodec) FrameType() int { return websocket.TextMessage }

func (jsonCodec) Encode(msg *Message) ([]byte, error) {
	return json.Marshal(outboundFrame{Type: msg.Type, Payload: msg.Payload})
}

func (c jsonCodec) Decode(data []byte) (*Message, error) {
	var frame struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, err
	}
	if frame.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}

	raw := []byte(frame.Payload)
	if bytes.Equal(raw, []byte("null")) {
		raw = nil
	}
	return &Message{Type: frame.Type, raw: raw, codec: c}, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// msgpackCodec reuses the json struct tags so payload types are declared once.
type msgpackCodec struct{}

func (msgpackCodec) Name() string   { return "msgpack" }
func (msgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (msgpackCodec) Encode(msg *Message) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(outboundFrame{Type: msg.Type, Payload: msg.Payload}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c msgpackCodec) Decode(data []byte) (*Message, error) {
	var frame struct {
		Type    string             `json:"type"`
		Payload msgpack.RawMessage `json:"payload"`
	}
	if err := c.Unmarshal(data, &frame); err != nil {
		return nil, err
	}
	if frame.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}
	return &Message{Type: frame.Type, raw: frame.Payload, codec: c}, nil
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

package signal

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes the {event, data} envelope exchanged with the relay.
type Codec interface {
	Name() string
	// MessageType is the websocket frame type carrying this codec.
	MessageType() int
	Encode(event string, data any) ([]byte, error)
	Decode(frame []byte) (Frame, error)
}

// Frame is one decoded envelope whose data is decoded lazily.
type Frame struct {
	Event string
	data  []byte
	codec Codec
}

// Decode unmarshals the frame data into v. Empty data leaves v untouched.
func (f Frame) Decode(v any) error {
	if len(f.data) == 0 {
		return nil
	}
	switch f.codec.(type) {
	case msgpackCodec:
		return msgpack.Unmarshal(f.data, v)
	default:
		return json.Unmarshal(f.data, v)
	}
}

// JSON returns the frame data as JSON regardless of the wire codec.
func (f Frame) JSON() (json.RawMessage, error) {
	if len(f.data) == 0 {
		return json.RawMessage("null"), nil
	}
	if _, ok := f.codec.(jsonCodec); ok {
		return json.RawMessage(f.data), nil
	}
	var v any
	if err := msgpack.Unmarshal(f.data, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// Codec returns the codec the frame arrived in.
func (f Frame) Codec() Codec { return f.codec }

// NewFrame builds a frame from already-encoded data, for tests and relays.
func NewFrame(codec Codec, event string, data any) (Frame, error) {
	b, err := codec.Encode(event, data)
	if err != nil {
		return Frame{}, err
	}
	return codec.Decode(b)
}

var (
	JSON    Codec = jsonCodec{}
	Msgpack Codec = msgpackCodec{}
)

// CodecByName returns the codec registered under name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return Msgpack, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

// CodecFor returns the codec matching a websocket frame type.
func CodecFor(messageType int) Codec {
	if messageType == websocket.BinaryMessage {
		return Msgpack
	}
	return JSON
}

type jsonEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type jsonCodec struct{}

func (jsonCodec) Name() string     { return "json" }
func (jsonCodec) MessageType() int { return websocket.TextMessage }

func (c jsonCodec) Encode(event string, data any) ([]byte, error) {
	env := jsonEnvelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", event, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

func (c jsonCodec) Decode(frame []byte) (Frame, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Frame{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Event == "" {
		return Frame{}, fmt.Errorf("envelope without event")
	}
	return Frame{Event: env.Event, data: env.Data, codec: c}, nil
}

type msgpackEnvelope struct {
	Event string             `msgpack:"event"`
	Data  msgpack.RawMessage `msgpack:"data,omitempty"`
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string     { return "msgpack" }
func (msgpackCodec) MessageType() int { return websocket.BinaryMessage }

func (c msgpackCodec) Encode(event string, data any) ([]byte, error) {
	env := msgpackEnvelope{Event: event}
	if data != nil {
		raw, err := msgpack.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", event, err)
		}
		env.Data = raw
	}
	return msgpack.Marshal(env)
}

func (c msgpackCodec) Decode(frame []byte) (Frame, error) {
	var env msgpackEnvelope
	if err := msgpack.Unmarshal(frame, &env); err != nil {
		return Frame{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Event == "" {
		return Frame{}, fmt.Errorf("envelope without event")
	}
	return Frame{Event: env.Event, data: env.Data, codec: c}, nil
}

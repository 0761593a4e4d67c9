package proto

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/vmihailenco/msgpack/v5"
)

var ErrUnsupportedVersion = errors.New("unsupported protocol version")

const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// Codec converts frames to and from one wire encoding.
type Codec interface {
	Name() string
	Binary() bool
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// CodecByName resolves the codec query parameter. An empty name selects JSON.
func CodecByName(name string) (Codec, bool) {
	switch name {
	case "", CodecJSON:
		return JSON{}, true
	case CodecMsgpack:
		return Msgpack{}, true
	default:
		return nil, false
	}
}

type JSON struct{}

func (JSON) Name() string                       { return CodecJSON }
func (JSON) Binary() bool                       { return false }
func (JSON) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Msgpack reuses the json struct tags so both encodings share field names.
type Msgpack struct{}

func (Msgpack) Name() string { return CodecMsgpack }
func (Msgpack) Binary() bool { return true }

func (Msgpack) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Msgpack) Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

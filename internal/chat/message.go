package chat

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/vmihailenco/msgpack/v5"
)

// TypeChat is the only side-channel message type handled.
const TypeChat = "chat"

var ErrUnknownType = errors.New("unknown side-channel message type")

// Envelope is the side-channel wire message.
type Envelope struct {
	Type     string `json:"type" msgpack:"type"`
	Message  string `json:"message" msgpack:"message"`
	UserName string `json:"userName" msgpack:"userName"`
}

// NewChat builds a chat envelope.
func NewChat(text, userName string) Envelope {
	return Envelope{Type: TypeChat, Message: text, UserName: userName}
}

type ProtocolType string

const (
	// JSONProtocol sends UTF-8 JSON text frames (web-compatible)
	JSONProtocol ProtocolType = "json"

	// MsgpackProtocol sends MessagePack binary frames between two CLI peers
	MsgpackProtocol ProtocolType = "msgpack"
)

// SelectProtocol picks the side-channel encoding from the peer's client type.
func SelectProtocol(peerType string) ProtocolType {
	if peerType == "cli" {
		return MsgpackProtocol
	}

	return JSONProtocol
}

// Encode serializes env. The returned flag reports whether the frame must be
// sent as text.
func Encode(p ProtocolType, env Envelope) ([]byte, bool, error) {
	switch p {
	case MsgpackProtocol:
		b, err := msgpack.Marshal(&env)
		if err != nil {
			return nil, false, fmt.Errorf("encode msgpack: %w", err)
		}
		return b, false, nil
	default:
		b, err := sonic.Marshal(&env)
		if err != nil {
			return nil, false, fmt.Errorf("encode json: %w", err)
		}
		return b, true, nil
	}
}

// Decode parses a received frame. Text frames are JSON and binary frames
// are MessagePack. Envelopes of any type other than chat return
// ErrUnknownType so callers can ignore them.
func Decode(data []byte, isString bool) (Envelope, error) {
	var env Envelope
	var err error
	if isString {
		err = sonic.Unmarshal(data, &env)
	} else {
		err = msgpack.Unmarshal(data, &env)
	}
	if err != nil {
		return Envelope{}, fmt.Errorf("decode side-channel message: %w", err)
	}

	if env.Type != TypeChat {
		return env, ErrUnknownType
	}
	return env, nil
}

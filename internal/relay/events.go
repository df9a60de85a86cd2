package relay

import (
	"encoding/json"
	"fmt"

	"github.com/BioHazard786/warpcall/internal/transport"
	"github.com/bytedance/sonic"
)

// Event is one inbound relay event. The set is closed: Decode returns one
// of the types below, with Unknown for anything unrecognized.
type Event interface {
	EventType() string
}

type Joined struct {
	UserID string
	RoomID string
}

type ExistingUsers struct {
	Users []UserInfo
}

type UserJoined struct {
	UserJoinedPayload
}

type RoomState struct {
	RoomStatePayload
}

type Signal struct {
	From   string
	Signal transport.Signal
}

type KeyExchange struct {
	From      string
	PublicKey string
}

type UserLeft struct {
	UserID string
}

type PeerScreenShareStatus struct {
	PeerScreenShareStatusPayload
}

type PeerMuteStatus struct {
	PeerMuteStatusPayload
}

type PeerStateResponse struct {
	PeerStateResponsePayload
}

type NewHost struct {
	NewHostPayload
}

type HostStatus struct {
	IsHost bool
}

type KickedFromRoom struct {
	Reason string
}

type KickDenied struct {
	Reason string
}

type Error struct {
	Message string
}

// Unknown carries an event type this client does not handle.
type Unknown struct {
	Type    string
	Payload json.RawMessage
}

func (Joined) EventType() string                { return TypeJoined }
func (ExistingUsers) EventType() string         { return TypeExistingUsers }
func (UserJoined) EventType() string            { return TypeUserJoined }
func (RoomState) EventType() string             { return TypeRoomState }
func (Signal) EventType() string                { return TypeSignal }
func (KeyExchange) EventType() string           { return TypeKeyExchange }
func (UserLeft) EventType() string              { return TypeUserLeft }
func (PeerScreenShareStatus) EventType() string { return TypePeerScreenShareStatus }
func (PeerMuteStatus) EventType() string        { return TypePeerMuteStatus }
func (PeerStateResponse) EventType() string     { return TypePeerStateResponse }
func (NewHost) EventType() string               { return TypeNewHost }
func (HostStatus) EventType() string            { return TypeHostStatus }
func (KickedFromRoom) EventType() string        { return TypeKickedFromRoom }
func (KickDenied) EventType() string            { return TypeKickDenied }
func (Error) EventType() string                 { return TypeError }
func (u Unknown) EventType() string             { return u.Type }

// Decode turns an envelope into a typed Event.
func Decode(env Envelope) (Event, error) {
	switch env.Type {
	case TypeJoined:
		var p JoinedPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return Joined{UserID: p.UserID, RoomID: p.RoomID}, nil

	case TypeExistingUsers:
		var users []UserInfo
		if err := decodePayload(env, &users); err != nil {
			return nil, err
		}
		return ExistingUsers{Users: users}, nil

	case TypeUserJoined:
		var p UserJoinedPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return UserJoined{p}, nil

	case TypeRoomState:
		var p RoomStatePayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return RoomState{p}, nil

	case TypeSignal:
		var p SignalPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return Signal{From: p.From, Signal: p.Signal}, nil

	case TypeKeyExchange:
		var p KeyExchangePayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return KeyExchange{From: p.From, PublicKey: p.PublicKey}, nil

	case TypeUserLeft:
		var id string
		if err := decodePayload(env, &id); err != nil {
			return nil, err
		}
		return UserLeft{UserID: id}, nil

	case TypePeerScreenShareStatus:
		var p PeerScreenShareStatusPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return PeerScreenShareStatus{p}, nil

	case TypePeerMuteStatus:
		var p PeerMuteStatusPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return PeerMuteStatus{p}, nil

	case TypePeerStateResponse:
		var p PeerStateResponsePayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return PeerStateResponse{p}, nil

	case TypeNewHost:
		var p NewHostPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return NewHost{p}, nil

	case TypeHostStatus:
		var p HostStatusPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return HostStatus{IsHost: p.IsHost}, nil

	case TypeKickedFromRoom:
		var p ReasonPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return KickedFromRoom{Reason: p.Reason}, nil

	case TypeKickDenied:
		var p ReasonPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return KickDenied{Reason: p.Reason}, nil

	case TypeError:
		var p ErrorPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return Error{Message: p.Error}, nil

	default:
		return Unknown{Type: env.Type, Payload: env.Payload}, nil
	}
}

func decodePayload(env Envelope, v any) error {
	if len(env.Payload) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return nil
}

// Encode wraps payload in an envelope of the given type.
func Encode(eventType string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: eventType}, nil
	}
	b, err := sonic.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Envelope{Type: eventType, Payload: b}, nil
}

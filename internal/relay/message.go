package relay

import (
	"encoding/json"

	"github.com/BioHazard786/warpcall/internal/transport"
)

// Envelope is the websocket frame exchanged with the relay.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event type constants.
const (
	TypeJoinRoom          = "join-room"
	TypeSignal            = "signal"
	TypeKeyExchange       = "key-exchange"
	TypeScreenShareStatus = "screen-share-status"
	TypeMuteStatus        = "mute-status"
	TypeRequestPeerState  = "request-peer-state"
	TypeKickUser          = "kick-user"

	TypeJoined                = "joined"
	TypeExistingUsers         = "existing-users"
	TypeUserJoined            = "user-joined"
	TypeRoomState             = "room-state"
	TypeUserLeft              = "user-left"
	TypePeerScreenShareStatus = "peer-screen-share-status"
	TypePeerMuteStatus        = "peer-mute-status"
	TypePeerStateResponse     = "peer-state-response"
	TypeNewHost               = "new-host"
	TypeHostStatus            = "host-status"
	TypeKickedFromRoom        = "kicked-from-room"
	TypeKickDenied            = "kick-denied"
	TypeError                 = "error"
)

// ClientTypeCLI is announced by this client on join.
const ClientTypeCLI = "cli"

// Outbound payloads.

type JoinRoomPayload struct {
	RoomID     string `json:"roomId"`
	UserName   string `json:"userName"`
	ClientType string `json:"clientType,omitempty"`
}

type SignalPayload struct {
	RoomID string           `json:"roomId,omitempty"`
	Signal transport.Signal `json:"signal"`
	To     string           `json:"to,omitempty"`
	From   string           `json:"from,omitempty"`
}

type KeyExchangePayload struct {
	PublicKey string `json:"publicKey"`
	To        string `json:"to,omitempty"`
	From      string `json:"from,omitempty"`
}

type ScreenShareStatusPayload struct {
	RoomID    string `json:"roomId"`
	IsSharing bool   `json:"isSharing"`
}

type MuteStatusPayload struct {
	RoomID  string `json:"roomId"`
	IsMuted bool   `json:"isMuted"`
}

type RequestPeerStatePayload struct {
	PeerID string `json:"peerId"`
}

type KickUserPayload struct {
	RoomID       string `json:"roomId"`
	UserIDToKick string `json:"userIdToKick"`
}

// Inbound payloads.

type JoinedPayload struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

type UserInfo struct {
	UserID          string `json:"userId"`
	UserName        string `json:"userName"`
	IsScreenSharing bool   `json:"isScreenSharing"`
	IsHost          bool   `json:"isHost"`
	IsMuted         bool   `json:"isMuted"`
	ClientType      string `json:"clientType,omitempty"`
}

type UserJoinedPayload struct {
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	IsHost     bool   `json:"isHost"`
	ClientType string `json:"clientType,omitempty"`
}

type UserRef struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

type RoomStatePayload struct {
	TotalUsers        int       `json:"totalUsers"`
	ScreenSharingUser *UserRef  `json:"screenSharingUser"`
	MutedUsers        []UserRef `json:"mutedUsers"`
}

type PeerScreenShareStatusPayload struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	IsSharing bool   `json:"isSharing"`
}

type PeerMuteStatusPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	IsMuted  bool   `json:"isMuted"`
}

type PeerStateResponsePayload struct {
	UserID          string `json:"userId"`
	UserName        string `json:"userName"`
	IsMuted         bool   `json:"isMuted"`
	IsScreenSharing bool   `json:"isScreenSharing"`
	IsHost          bool   `json:"isHost"`
}

type NewHostPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type HostStatusPayload struct {
	IsHost bool `json:"isHost"`
}

type ReasonPayload struct {
	Reason string `json:"reason"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

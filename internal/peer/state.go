package peer

// State is the lifecycle stage of a Session.
type State int

const (
	// Created: the session exists, no handshake yet.
	Created State = iota
	// SignalingExchange: descriptions are travelling through the relay.
	SignalingExchange
	// AwaitingRemoteKey: transport connected and our public key sent.
	AwaitingRemoteKey
	// Secure: shared key derived, frame cipher active.
	Secure
	// Closed is terminal.
	Closed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case SignalingExchange:
		return "signaling"
	case AwaitingRemoteKey:
		return "awaiting-key"
	case Secure:
		return "secure"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventKind tags results posted back to the control loop.
type EventKind int

const (
	EventSignalReady EventKind = iota
	EventSignalFailed
	EventKeyDerived
	EventKeyFailed
	EventConnected
	EventChannel
	EventChannelOpen
	EventChat
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventSignalReady:
		return "signal-ready"
	case EventSignalFailed:
		return "signal-failed"
	case EventKeyDerived:
		return "key-derived"
	case EventKeyFailed:
		return "key-failed"
	case EventConnected:
		return "connected"
	case EventChannel:
		return "channel"
	case EventChannelOpen:
		return "channel-open"
	case EventChat:
		return "chat"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Package transport abstracts the per-peer media connection: one offer/answer
// exchange, one outgoing audio track, one outgoing video track whose source
// can be swapped between camera and screen, and reliable data channels.
package transport

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4/pkg/media"
)

// ChatLabel is the label of the chat side-channel.
const ChatLabel = "chat"

var (
	ErrClosed             = errors.New("transport closed")
	ErrUnexpectedSignal   = errors.New("unexpected signal")
	ErrNotConnected       = errors.New("transport not connected")
	ErrChannelNotDeclared = errors.New("data channel was not declared before negotiation")
)

// Kind identifies a media stream.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Signal is a complete session description. Candidates are gathered before
// the description is produced, so one signal per side is enough.
type Signal struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

const (
	SignalOffer  = "offer"
	SignalAnswer = "answer"
)

// Channel is a reliable ordered data channel.
type Channel interface {
	Label() string
	Send(data []byte) error
	SendText(text string) error
	OnOpen(f func())
	OnMessage(f func(data []byte, isString bool))
	Close() error
}

// FrameReader yields whole remote media frames in order. It returns an error
// once the track ends.
type FrameReader interface {
	ReadFrame() ([]byte, error)
}

// Events are invoked from transport goroutines.
type Events struct {
	OnConnect func()
	OnChannel func(Channel)
	OnTrack   func(kind Kind, r FrameReader)
	OnClose   func(err error)
}

// Transport is one peer connection.
type Transport interface {
	// Offer produces the initiator's description.
	Offer(ctx context.Context) (Signal, error)
	// HandleSignal applies a remote description. An offer yields an answer.
	HandleSignal(ctx context.Context, sig Signal) (*Signal, error)
	// CreateChannel opens a data channel toward the peer.
	CreateChannel(label string) (Channel, error)

	WriteAudio(s media.Sample) error
	WriteVideo(s media.Sample) error
	// UseScreenTrack swaps the outgoing video source in place.
	UseScreenTrack(screen bool) error

	Close() error
}

// Factory builds a transport for one peer.
type Factory func(initiator bool, ev Events) (Transport, error)

// Package peer implements the per-participant session: one transport, one
// chat side-channel and the pairwise key agreement that arms the frame
// cipher. Session methods are not safe for concurrent use; the owning
// control loop calls them and receives async results as Events. Only the
// media methods (WriteAudio, WriteVideo, UseScreenTrack) run on media
// goroutines.
package peer

import (
	"context"
	"crypto/ecdh"
	"errors"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/BioHazard786/warpcall/internal/chat"
	"github.com/BioHazard786/warpcall/internal/framecipher"
	"github.com/BioHazard786/warpcall/internal/keyexchange"
	"github.com/BioHazard786/warpcall/internal/metrics"
	"github.com/BioHazard786/warpcall/internal/transport"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/zap"
)

// Relay is the part of the relay connection a session talks to.
type Relay interface {
	SendSignal(to string, sig transport.Signal) error
	SendKey(to, publicKey string) error
	RequestPeerState(peerID string) error
}

// FrameSink receives decrypted remote frames.
type FrameSink interface {
	WriteFrame(userID string, kind transport.Kind, frame []byte)
}

// Event is an async result tagged with the session that produced it.
type Event struct {
	SessionID uuid.UUID
	UserID    string
	Kind      EventKind
	Signal    *transport.Signal
	Key       []byte
	Channel   transport.Channel
	Chat      chat.Envelope
	Err       error
}

// Config describes a new session.
type Config struct {
	UserID     string
	UserName   string
	ClientType string
	Initiator  bool

	IsMuted         bool
	IsScreenSharing bool
	IsHost          bool

	// Keys is the call-wide local key pair; PublicKey is its export.
	Keys      *keyexchange.KeyPair
	PublicKey string
	Policy    framecipher.Policy

	Transport transport.Factory
	Relay     Relay
	Sink      FrameSink
	// Emit hands an Event to the control loop.
	Emit   func(Event)
	Logger *zap.Logger
}

// Session is the connection state for one remote participant.
type Session struct {
	ID         uuid.UUID
	UserID     string
	UserName   string
	ClientType string
	Initiator  bool

	IsMuted         bool
	IsScreenSharing bool
	IsHost          bool

	state         State
	keys          *keyexchange.KeyPair
	publicKey     string
	keySent       bool
	connected     bool
	derived       bool
	remoteKey     *ecdh.PublicKey
	unencryptable bool

	cipher      *framecipher.Cipher
	transport   transport.Transport
	channel     transport.Channel
	channelOpen bool

	relay  Relay
	sink   FrameSink
	emit   func(Event)
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates the session and its transport. The session starts in
// Created; call Start to begin the handshake.
func New(ctx context.Context, cfg Config) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		ID:              uuid.New(),
		UserID:          cfg.UserID,
		UserName:        cfg.UserName,
		ClientType:      cfg.ClientType,
		Initiator:       cfg.Initiator,
		IsMuted:         cfg.IsMuted,
		IsScreenSharing: cfg.IsScreenSharing,
		IsHost:          cfg.IsHost,
		state:           Created,
		keys:            cfg.Keys,
		publicKey:       cfg.PublicKey,
		cipher:          framecipher.New(cfg.Policy),
		relay:           cfg.Relay,
		sink:            cfg.Sink,
		emit:            cfg.Emit,
	}
	s.logger = logger.With(
		zap.String("peer", cfg.UserID),
		zap.String("session", s.ID.String()),
		zap.Bool("initiator", cfg.Initiator),
	)
	s.ctx, s.cancel = context.WithCancel(ctx)

	t, err := cfg.Transport(cfg.Initiator, transport.Events{
		OnConnect: func() { s.post(Event{Kind: EventConnected}) },
		OnChannel: func(ch transport.Channel) { s.post(Event{Kind: EventChannel, Channel: ch}) },
		OnTrack:   s.readTrack,
		OnClose:   func(err error) { s.post(Event{Kind: EventClosed, Err: err}) },
	})
	if err != nil {
		s.cancel()
		return nil, call.NewPeerError("create transport", cfg.UserID, err)
	}
	s.transport = t

	metrics.PeerSessionsActive.Inc()
	metrics.RecordTransition(Created.String())
	return s, nil
}

func (s *Session) State() State { return s.state }

// Encryptable is false once the peer sent a key that could not be imported.
func (s *Session) Encryptable() bool { return !s.unencryptable }

func (s *Session) ChannelOpen() bool { return s.channel != nil && s.channelOpen }

// Start moves the session into the signaling exchange. The initiator sends
// its public key right away and produces the offer asynchronously.
func (s *Session) Start() error {
	if s.state != Created {
		return nil
	}
	s.setState(SignalingExchange)

	if !s.Initiator {
		return nil
	}

	s.sendKey()
	go func() {
		offer, err := s.transport.Offer(s.ctx)
		if err != nil {
			s.post(Event{Kind: EventSignalFailed, Err: err})
			return
		}
		s.post(Event{Kind: EventSignalReady, Signal: &offer})
	}()
	return nil
}

// HandleSignal applies a remote description asynchronously. An answer to
// an offer comes back as EventSignalReady.
func (s *Session) HandleSignal(sig transport.Signal) error {
	if s.state == Closed {
		return call.ErrSessionClosed
	}

	go func() {
		resp, err := s.transport.HandleSignal(s.ctx, sig)
		if err != nil {
			s.post(Event{Kind: EventSignalFailed, Err: err})
			return
		}
		if resp != nil {
			s.post(Event{Kind: EventSignalReady, Signal: resp})
		}
	}()
	return nil
}

// HandleKey imports the peer's public key and derives the shared key
// asynchronously. Only the first key is used. A malformed key leaves the
// session running without encryption.
func (s *Session) HandleKey(publicKey string) error {
	if s.state == Closed {
		return call.ErrSessionClosed
	}
	if s.remoteKey != nil || s.unencryptable {
		return nil
	}

	remote, err := keyexchange.ImportPublicKey(publicKey)
	if err != nil {
		s.unencryptable = true
		metrics.RecordKeyExchange(false)
		s.logger.Warn("peer key rejected, media stays unencrypted", zap.Error(err))
		return nil
	}
	s.remoteKey = remote

	priv := s.keys.Private
	go func() {
		secret, err := keyexchange.DeriveSharedSecret(priv, remote)
		if err != nil {
			s.post(Event{Kind: EventKeyFailed, Err: err})
			return
		}
		s.post(Event{Kind: EventKeyDerived, Key: secret})
	}()
	return nil
}

// Handle applies an Event produced by this session. Callers must have
// checked that ev.SessionID matches.
func (s *Session) Handle(ev Event) {
	if s.state == Closed {
		return
	}

	switch ev.Kind {
	case EventSignalReady:
		if err := s.relay.SendSignal(s.UserID, *ev.Signal); err != nil {
			s.logger.Warn("send signal", zap.Error(err))
		}

	case EventSignalFailed:
		s.logger.Warn("signaling failed", zap.Error(ev.Err))
		s.Close()

	case EventKeyDerived:
		if err := s.cipher.SetKey(ev.Key); err != nil {
			s.unencryptable = true
			metrics.RecordKeyExchange(false)
			s.logger.Warn("shared key rejected", zap.Error(err))
			return
		}
		s.derived = true
		metrics.RecordKeyExchange(true)
		s.logger.Debug("shared key derived")
		if s.connected {
			s.setState(Secure)
		}

	case EventKeyFailed:
		s.unencryptable = true
		metrics.RecordKeyExchange(false)
		s.logger.Warn("key derivation failed", zap.Error(ev.Err))

	case EventConnected:
		s.onConnected()

	case EventChannel:
		s.attach(ev.Channel)

	case EventChannelOpen:
		s.channelOpen = true
		s.logger.Debug("chat channel open")

	case EventClosed:
		s.logger.Debug("transport closed", zap.Error(ev.Err))
		s.Close()
	}
}

func (s *Session) onConnected() {
	if s.connected {
		return
	}
	s.connected = true

	if !s.keySent {
		s.sendKey()
	}
	if s.derived {
		s.setState(Secure)
	} else {
		s.setState(AwaitingRemoteKey)
	}

	if err := s.relay.RequestPeerState(s.UserID); err != nil {
		s.logger.Warn("request peer state", zap.Error(err))
	}

	if s.Initiator {
		ch, err := s.transport.CreateChannel(transport.ChatLabel)
		if err != nil {
			s.logger.Warn("create chat channel", zap.Error(err))
			return
		}
		s.attach(ch)
	}
}

func (s *Session) sendKey() {
	if err := s.relay.SendKey(s.UserID, s.publicKey); err != nil {
		s.logger.Warn("send public key", zap.Error(err))
		return
	}
	s.keySent = true
}

// attach wires the single chat side-channel. Extra channels are ignored.
func (s *Session) attach(ch transport.Channel) {
	if s.channel != nil {
		s.logger.Debug("ignoring extra data channel", zap.String("label", ch.Label()))
		return
	}
	s.channel = ch

	ch.OnOpen(func() { s.post(Event{Kind: EventChannelOpen}) })
	ch.OnMessage(func(data []byte, isString bool) {
		env, err := chat.Decode(data, isString)
		if errors.Is(err, chat.ErrUnknownType) {
			s.logger.Debug("ignoring side-channel message", zap.String("type", env.Type))
			return
		}
		if err != nil {
			s.logger.Warn("bad side-channel message", zap.Error(err))
			return
		}
		s.post(Event{Kind: EventChat, Chat: env})
	})
}

// SendChat writes one envelope on the side-channel.
func (s *Session) SendChat(env chat.Envelope) error {
	if s.state == Closed {
		return call.ErrSessionClosed
	}
	if !s.ChannelOpen() {
		return call.ErrChannelNotOpen
	}

	data, isString, err := chat.Encode(chat.SelectProtocol(s.ClientType), env)
	if err != nil {
		return err
	}
	if isString {
		return s.channel.SendText(string(data))
	}
	return s.channel.Send(data)
}

func (s *Session) WriteAudio(sample media.Sample) error {
	return s.writeFrame(transport.KindAudio, sample, s.transport.WriteAudio)
}

func (s *Session) WriteVideo(sample media.Sample) error {
	return s.writeFrame(transport.KindVideo, sample, s.transport.WriteVideo)
}

func (s *Session) UseScreenTrack(screen bool) error {
	return s.transport.UseScreenTrack(screen)
}

func (s *Session) writeFrame(kind transport.Kind, sample media.Sample, write func(media.Sample) error) error {
	active := s.cipher.Active()
	data, err := s.cipher.EncryptFrame(sample.Data)
	if err != nil {
		metrics.RecordFrameDropped("outbound", dropReason(err))
		return nil
	}
	if active {
		metrics.RecordFrameEncrypted(string(kind))
	} else {
		metrics.RecordPassThrough("outbound")
	}

	sample.Data = data
	return write(sample)
}

// readTrack decrypts one inbound stream in order until it ends.
func (s *Session) readTrack(kind transport.Kind, r transport.FrameReader) {
	go func() {
		for {
			frame, err := r.ReadFrame()
			if err != nil || s.ctx.Err() != nil {
				return
			}

			active := s.cipher.Active()
			plain, err := s.cipher.DecryptFrame(frame)
			if err != nil {
				metrics.RecordFrameDropped("inbound", dropReason(err))
				s.logger.Debug("dropped inbound frame", zap.String("kind", string(kind)), zap.Error(err))
				continue
			}
			if active {
				metrics.RecordFrameDecrypted(string(kind))
			} else {
				metrics.RecordPassThrough("inbound")
			}

			if s.sink != nil {
				s.sink.WriteFrame(s.UserID, kind, plain)
			}
		}
	}()
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, framecipher.ErrNoKey):
		return "no_key"
	case errors.Is(err, framecipher.ErrShortFrame):
		return "short"
	case errors.Is(err, framecipher.ErrAuthentication):
		return "auth"
	default:
		return "error"
	}
}

// Close tears the session down. In-flight work is cancelled and any
// result it still posts is discarded by the loop.
func (s *Session) Close() {
	if s.state == Closed {
		return
	}
	s.setState(Closed)
	s.cancel()
	s.cipher.ClearKey()
	if err := s.transport.Close(); err != nil {
		s.logger.Debug("close transport", zap.Error(err))
	}
	metrics.PeerSessionsActive.Dec()
}

func (s *Session) setState(st State) {
	s.logger.Debug("session state", zap.Stringer("from", s.state), zap.Stringer("to", st))
	s.state = st
	metrics.RecordTransition(st.String())
}

func (s *Session) post(ev Event) {
	if s.ctx.Err() != nil {
		return
	}
	ev.SessionID = s.ID
	ev.UserID = s.UserID
	if s.emit != nil {
		s.emit(ev)
	}
}

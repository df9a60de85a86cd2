// Package mesh owns the set of peer sessions for one room. A single control
// loop consumes relay events, session results and user commands, so every
// session transition and every registry mutation happens on one goroutine.
package mesh

import (
	"context"
	"strings"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/BioHazard786/warpcall/internal/chat"
	"github.com/BioHazard786/warpcall/internal/framecipher"
	"github.com/BioHazard786/warpcall/internal/keyexchange"
	"github.com/BioHazard786/warpcall/internal/localmedia"
	"github.com/BioHazard786/warpcall/internal/metrics"
	"github.com/BioHazard786/warpcall/internal/peer"
	"github.com/BioHazard786/warpcall/internal/relay"
	"github.com/BioHazard786/warpcall/internal/transport"
	"go.uber.org/zap"
)

// Relay is the relay connection the coordinator drives.
type Relay interface {
	peer.Relay
	JoinRoom(roomID, userName string) error
	SendMuteStatus(roomID string, muted bool) error
	SendScreenShareStatus(roomID string, sharing bool) error
	KickUser(roomID, userID string) error
	Events() <-chan relay.Event
}

// Media is the local capture the coordinator fans out to sessions.
type Media interface {
	AddSender(id string, s localmedia.Sender)
	RemoveSender(id string)
	SetMuted(muted bool) bool
	Muted() bool
	SetVideoEnabled(enabled bool) (bool, error)
	VideoEnabled() bool
	Sharing() bool
	StartScreenShare() (bool, error)
	StopScreenShare() bool
	OnScreenEnded(f func())
}

type Config struct {
	RoomID    string
	UserName  string
	Policy    framecipher.Policy
	Transport transport.Factory
	Relay     Relay
	Media     Media
	Sink      peer.FrameSink
	Logger    *zap.Logger
}

// flags seeded from a room snapshot for a session not created yet.
type flags struct {
	muted   bool
	sharing bool
}

type command struct {
	fn    func() error
	reply chan error
}

// Coordinator is the mesh for one call. Create it with New and drive it
// with Run; the exported commands may be called from any goroutine.
type Coordinator struct {
	roomID   string
	userName string
	policy   framecipher.Policy

	factory transport.Factory
	relay   Relay
	media   Media
	sink    peer.FrameSink
	logger  *zap.Logger

	keys      *keyexchange.KeyPair
	publicKey string

	// Owned by the control loop.
	sessions  map[string]*peer.Session
	pending   map[string]flags
	selfID    string
	isHost    bool
	sharingID string
	notice    string
	leaving   bool
	history   *chat.History

	ctx      context.Context
	events   chan peer.Event
	commands chan command
	updates  chan State
	done     chan struct{}
}

// New generates the call's key pair. Key generation failure is fatal to
// call setup.
func New(cfg Config) (*Coordinator, error) {
	keys, err := keyexchange.GenerateKeyPair()
	if err != nil {
		return nil, call.NewError("generate key pair", err)
	}
	pub, err := keyexchange.ExportPublicKey(keys.Public)
	if err != nil {
		return nil, call.NewError("export public key", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Coordinator{
		roomID:    cfg.RoomID,
		userName:  cfg.UserName,
		policy:    cfg.Policy,
		factory:   cfg.Transport,
		relay:     cfg.Relay,
		media:     cfg.Media,
		sink:      cfg.Sink,
		logger:    logger.With(zap.String("component", "mesh")),
		keys:      keys,
		publicKey: pub,
		sessions:  make(map[string]*peer.Session),
		pending:   make(map[string]flags),
		history:   chat.NewHistory(),
		ctx:       context.Background(),
		events:    make(chan peer.Event, 256),
		commands:  make(chan command),
		updates:   make(chan State, 1),
		done:      make(chan struct{}),
	}, nil
}

// Updates delivers the latest state after every change. Only the most
// recent snapshot is kept.
func (c *Coordinator) Updates() <-chan State {
	return c.updates
}

// Run joins the room and processes events until the call ends. It returns
// nil after Leave or context cancellation, an error wrapping
// call.ErrKicked when the host removes us, and call.ErrRelayClosed when
// the relay connection drops.
func (c *Coordinator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.ctx = ctx
	defer func() {
		c.teardown()
		cancel()
		close(c.done)
	}()

	c.media.OnScreenEnded(func() {
		_ = c.do(func() error {
			c.stopScreenShare()
			return nil
		})
	})

	if err := c.relay.JoinRoom(c.roomID, c.userName); err != nil {
		return call.NewError("join room", err)
	}
	c.logger.Info("joining room", zap.String("room", c.roomID))

	relayEvents := c.relay.Events()
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-relayEvents:
			if !ok {
				return call.NewError("relay", call.ErrRelayClosed)
			}
			if err := c.handleRelay(ev); err != nil {
				return err
			}

		case ev := <-c.events:
			c.handleSession(ev)

		case cmd := <-c.commands:
			cmd.reply <- cmd.fn()
			if c.leaving {
				c.logger.Info("leaving room")
				return nil
			}
		}

		c.publish()
	}
}

// emit hands a session result to the loop. Results posted after the call
// ended are dropped.
func (c *Coordinator) emit(ev peer.Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// do runs fn on the control loop and waits for its result.
func (c *Coordinator) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case c.commands <- command{fn: fn, reply: reply}:
	case <-c.done:
		return call.ErrCallEnded
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return call.ErrCallEnded
	}
}

// handleSession applies an async session result. Results from a session
// that has since been closed or replaced are discarded.
func (c *Coordinator) handleSession(ev peer.Event) {
	s, ok := c.sessions[ev.UserID]
	if !ok || s.ID != ev.SessionID || s.State() == peer.Closed {
		c.logger.Debug("discarding stale session event",
			zap.String("peer", ev.UserID),
			zap.String("session", ev.SessionID.String()),
			zap.Stringer("kind", ev.Kind),
		)
		return
	}

	if ev.Kind == peer.EventChat {
		c.history.AddRemote(ev.Chat, s.UserName)
		metrics.RecordChat("in")
		return
	}

	s.Handle(ev)
	if s.State() == peer.Closed {
		c.logger.Info("peer session closed", zap.String("peer", s.UserID))
		c.forget(s.UserID)
	}
}

// createSession is idempotent per user id: a second request for a user
// that already has a live session returns the existing one.
func (c *Coordinator) createSession(info relay.UserInfo, initiator bool) *peer.Session {
	if s, ok := c.sessions[info.UserID]; ok {
		c.logger.Debug("session already exists", zap.String("peer", info.UserID))
		return s
	}

	if f, ok := c.pending[info.UserID]; ok {
		info.IsMuted = info.IsMuted || f.muted
		info.IsScreenSharing = info.IsScreenSharing || f.sharing
		delete(c.pending, info.UserID)
	}

	s, err := peer.New(c.ctx, peer.Config{
		UserID:          info.UserID,
		UserName:        info.UserName,
		ClientType:      info.ClientType,
		Initiator:       initiator,
		IsMuted:         info.IsMuted,
		IsScreenSharing: info.IsScreenSharing,
		IsHost:          info.IsHost,
		Keys:            c.keys,
		PublicKey:       c.publicKey,
		Policy:          c.policy,
		Transport:       c.factory,
		Relay:           c.relay,
		Sink:            c.sink,
		Emit:            c.emit,
		Logger:          c.logger,
	})
	if err != nil {
		c.logger.Warn("create peer session", zap.String("peer", info.UserID), zap.Error(err))
		return nil
	}

	c.sessions[info.UserID] = s
	c.media.AddSender(info.UserID, s)
	if info.IsScreenSharing {
		c.sharingID = info.UserID
	}

	c.logger.Info("peer session created",
		zap.String("peer", info.UserID),
		zap.String("name", info.UserName),
		zap.Bool("initiator", initiator),
	)

	if err := s.Start(); err != nil {
		c.logger.Warn("start peer session", zap.String("peer", info.UserID), zap.Error(err))
	}
	return s
}

// closeSession tears a session down and removes it.
func (c *Coordinator) closeSession(userID string) {
	s, ok := c.sessions[userID]
	if !ok {
		return
	}
	s.Close()
	c.forget(userID)
}

func (c *Coordinator) forget(userID string) {
	delete(c.sessions, userID)
	delete(c.pending, userID)
	c.media.RemoveSender(userID)
	if c.sharingID == userID {
		c.sharingID = ""
	}
}

func (c *Coordinator) teardown() {
	for id := range c.sessions {
		c.closeSession(id)
	}
	if c.media.Sharing() {
		c.media.StopScreenShare()
	}
}

// ToggleMute flips the microphone and broadcasts the new status once.
func (c *Coordinator) ToggleMute() (bool, error) {
	var muted bool
	err := c.do(func() error {
		muted = !c.media.Muted()
		if c.media.SetMuted(muted) {
			return c.relay.SendMuteStatus(c.roomID, muted)
		}
		return nil
	})
	return muted, err
}

// ToggleVideo turns the camera on or off. It fails while screen sharing.
func (c *Coordinator) ToggleVideo() (bool, error) {
	var enabled bool
	err := c.do(func() error {
		enabled = !c.media.VideoEnabled()
		_, err := c.media.SetVideoEnabled(enabled)
		if err != nil {
			enabled = !enabled
		}
		return err
	})
	return enabled, err
}

// StartScreenShare substitutes the display for the camera on every peer.
// A platform without screen capture reports call.ErrScreenShareNotAvail.
func (c *Coordinator) StartScreenShare() error {
	return c.do(c.startScreenShare)
}

func (c *Coordinator) StopScreenShare() error {
	return c.do(func() error {
		c.stopScreenShare()
		return nil
	})
}

// ToggleScreenShare starts or stops sharing and reports the new state.
func (c *Coordinator) ToggleScreenShare() (bool, error) {
	var sharing bool
	err := c.do(func() error {
		if c.media.Sharing() {
			c.stopScreenShare()
			return nil
		}
		if err := c.startScreenShare(); err != nil {
			return err
		}
		sharing = c.media.Sharing()
		return nil
	})
	return sharing, err
}

func (c *Coordinator) startScreenShare() error {
	started, err := c.media.StartScreenShare()
	if err != nil {
		c.notice = "Screen sharing is not available"
		return call.WrapError("start screen share", call.ErrScreenShareNotAvail, err.Error())
	}
	if !started {
		return nil
	}

	c.sharingID = c.selfID
	if err := c.relay.SendScreenShareStatus(c.roomID, true); err != nil {
		c.logger.Warn("send screen share status", zap.Error(err))
	}
	return nil
}

func (c *Coordinator) stopScreenShare() {
	if !c.media.StopScreenShare() {
		return
	}
	if c.sharingID == c.selfID {
		c.sharingID = ""
	}
	if err := c.relay.SendScreenShareStatus(c.roomID, false); err != nil {
		c.logger.Warn("send screen share status", zap.Error(err))
	}
}

// SendChat records text locally and sends it to every peer whose chat
// channel is open.
func (c *Coordinator) SendChat(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return call.ErrEmptyMessage
	}

	return c.do(func() error {
		env := chat.NewChat(text, c.userName)
		for id, s := range c.sessions {
			if !s.ChannelOpen() {
				continue
			}
			if err := s.SendChat(env); err != nil {
				c.logger.Warn("send chat", zap.String("peer", id), zap.Error(err))
				continue
			}
			metrics.RecordChat("out")
		}
		c.history.AddLocal(text)
		return nil
	})
}

// SetChatOpen tells the history whether the chat view is visible.
func (c *Coordinator) SetChatOpen(open bool) {
	_ = c.do(func() error {
		c.history.SetOpen(open)
		return nil
	})
}

// Kick asks the relay to remove userID and tears the session down without
// waiting for the relay to confirm.
func (c *Coordinator) Kick(userID string) error {
	return c.do(func() error {
		if !c.isHost {
			return call.ErrNotHost
		}
		if _, ok := c.sessions[userID]; !ok {
			return call.NewPeerError("kick", userID, call.ErrUnknownPeer)
		}
		if err := c.relay.KickUser(c.roomID, userID); err != nil {
			return call.NewPeerError("kick", userID, err)
		}
		c.closeSession(userID)
		return nil
	})
}

// Leave ends the call. Run returns nil afterwards.
func (c *Coordinator) Leave() {
	_ = c.do(func() error {
		c.leaving = true
		return nil
	})
}

// Snapshot returns the current state.
func (c *Coordinator) Snapshot() (State, error) {
	var st State
	err := c.do(func() error {
		st = c.state()
		return nil
	})
	return st, err
}

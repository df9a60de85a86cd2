package mesh

import (
	"errors"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/BioHazard786/warpcall/internal/peer"
	"github.com/BioHazard786/warpcall/internal/relay"
	"go.uber.org/zap"
)

// handleRelay applies one relay event. It returns an error only when the
// call must end.
func (c *Coordinator) handleRelay(ev relay.Event) error {
	switch e := ev.(type) {
	case relay.Joined:
		c.selfID = e.UserID
		if e.RoomID != "" {
			c.roomID = e.RoomID
		}
		c.logger.Info("joined room", zap.String("room", c.roomID), zap.String("user", e.UserID))

	case relay.HostStatus:
		c.isHost = e.IsHost

	case relay.RoomState:
		c.applyRoomState(e)

	case relay.ExistingUsers:
		// We are the newcomer: initiate toward everyone already present.
		for _, u := range e.Users {
			if u.UserID == c.selfID {
				continue
			}
			c.createSession(u, true)
		}

	case relay.UserJoined:
		if e.UserID == c.selfID {
			return nil
		}
		c.createSession(relay.UserInfo{
			UserID:     e.UserID,
			UserName:   e.UserName,
			IsHost:     e.IsHost,
			ClientType: e.ClientType,
		}, false)
		c.rebroadcastStatus()

	case relay.Signal:
		s := c.session(e.From)
		if s == nil {
			return nil
		}
		if err := s.HandleSignal(e.Signal); err != nil && !errors.Is(err, call.ErrSessionClosed) {
			c.logger.Warn("handle signal", zap.String("peer", e.From), zap.Error(err))
		}

	case relay.KeyExchange:
		s := c.session(e.From)
		if s == nil {
			return nil
		}
		if err := s.HandleKey(e.PublicKey); err != nil && !errors.Is(err, call.ErrSessionClosed) {
			c.logger.Warn("handle key", zap.String("peer", e.From), zap.Error(err))
		}

	case relay.UserLeft:
		c.logger.Info("peer left", zap.String("peer", e.UserID))
		c.closeSession(e.UserID)

	case relay.PeerScreenShareStatus:
		s := c.session(e.UserID)
		if s == nil {
			return nil
		}
		c.setSharing(s, e.IsSharing)

	case relay.PeerMuteStatus:
		if s := c.session(e.UserID); s != nil {
			s.IsMuted = e.IsMuted
		}

	case relay.PeerStateResponse:
		s := c.session(e.UserID)
		if s == nil {
			return nil
		}
		s.IsMuted = e.IsMuted
		s.IsHost = e.IsHost
		c.setSharing(s, e.IsScreenSharing)

	case relay.NewHost:
		c.isHost = e.UserID == c.selfID
		for id, s := range c.sessions {
			s.IsHost = id == e.UserID
		}
		c.logger.Info("host changed", zap.String("host", e.UserID), zap.String("name", e.UserName))

	case relay.KickedFromRoom:
		c.logger.Info("removed from room", zap.String("reason", e.Reason))
		return call.WrapError("room", call.ErrKicked, e.Reason)

	case relay.KickDenied:
		c.notice = e.Reason
		c.logger.Info("kick denied", zap.String("reason", e.Reason))

	case relay.Error:
		c.notice = e.Message
		c.logger.Warn("relay error", zap.String("message", e.Message))

	default:
		c.logger.Debug("ignoring relay event", zap.String("type", ev.EventType()))
	}
	return nil
}

// applyRoomState seeds flags from a snapshot. Users without a session yet
// get their flags stashed until the session is created.
func (c *Coordinator) applyRoomState(e relay.RoomState) {
	if u := e.ScreenSharingUser; u != nil && u.UserID != c.selfID {
		c.sharingID = u.UserID
		if s, ok := c.sessions[u.UserID]; ok {
			s.IsScreenSharing = true
		} else {
			f := c.pending[u.UserID]
			f.sharing = true
			c.pending[u.UserID] = f
		}
	}

	for _, u := range e.MutedUsers {
		if u.UserID == c.selfID {
			continue
		}
		if s, ok := c.sessions[u.UserID]; ok {
			s.IsMuted = true
		} else {
			f := c.pending[u.UserID]
			f.muted = true
			c.pending[u.UserID] = f
		}
	}
}

// rebroadcastStatus repeats our status so a newcomer sees it.
func (c *Coordinator) rebroadcastStatus() {
	if c.media.Muted() {
		if err := c.relay.SendMuteStatus(c.roomID, true); err != nil {
			c.logger.Warn("send mute status", zap.Error(err))
		}
	}
	if c.media.Sharing() {
		if err := c.relay.SendScreenShareStatus(c.roomID, true); err != nil {
			c.logger.Warn("send screen share status", zap.Error(err))
		}
	}
}

func (c *Coordinator) setSharing(s *peer.Session, sharing bool) {
	s.IsScreenSharing = sharing
	switch {
	case sharing:
		c.sharingID = s.UserID
	case c.sharingID == s.UserID:
		c.sharingID = ""
	}
}

// session returns the live session for userID. Events for unknown peers
// are ignored.
func (c *Coordinator) session(userID string) *peer.Session {
	s, ok := c.sessions[userID]
	if !ok {
		c.logger.Debug("event for unknown peer", zap.String("peer", userID))
		return nil
	}
	return s
}

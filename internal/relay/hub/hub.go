// Package hub is a development room relay speaking the warpcall relay
// protocol. The first participant in a room is its host; when the host
// leaves, the longest-present participant takes over.
package hub

import (
	"context"

	"github.com/BioHazard786/warpcall/internal/relay"
	"github.com/BioHazard786/warpcall/internal/room"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

const (
	kickReason       = "You have been removed from the room by the host"
	kickDeniedReason = "Only the host can remove participants"
)

// Hub is the central brain of the relay.
// It manages all active rooms and clients.
type Hub struct {
	// Rooms maps room codes to Room instances.
	Rooms map[string]*Room

	// Register is a channel for registering new clients.
	Register chan *Client

	// Unregister is a channel for unregistering clients.
	Unregister chan *Client

	// Broadcast is a channel for clients to send messages to.
	// The hub will process these messages.
	Broadcast chan *Message

	logger *zap.Logger
}

// NewHub creates a new Hub instance.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		Rooms:      make(map[string]*Room),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan *Message),
		logger:     logger,
	}
}

// Run starts the hub's main processing loop.
// This is the single goroutine that safely manages all state (rooms, clients).
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			h.logger.Debug("client registered", zap.String("client", client.ID))

		case client := <-h.Unregister:
			h.logger.Debug("client unregistered", zap.String("client", client.ID))
			if client.RoomID != "" {
				h.leave(client)
			}
			close(client.Send)

		case message := <-h.Broadcast:
			h.handle(message)
		}
	}
}

func (h *Hub) handle(m *Message) {
	c := m.client
	h.logger.Debug("message received", zap.String("type", m.Type), zap.String("client", c.ID))

	switch m.Type {
	case relay.TypeJoinRoom:
		var p relay.JoinRoomPayload
		if !h.decode(c, m, &p) {
			return
		}
		h.join(c, p)

	case relay.TypeSignal:
		var p relay.SignalPayload
		if !h.decode(c, m, &p) {
			return
		}
		if target := h.member(c, p.To); target != nil {
			h.send(target, relay.TypeSignal, relay.SignalPayload{Signal: p.Signal, From: c.ID})
		}

	case relay.TypeKeyExchange:
		var p relay.KeyExchangePayload
		if !h.decode(c, m, &p) {
			return
		}
		if target := h.member(c, p.To); target != nil {
			h.send(target, relay.TypeKeyExchange, relay.KeyExchangePayload{PublicKey: p.PublicKey, From: c.ID})
		}

	case relay.TypeScreenShareStatus:
		var p relay.ScreenShareStatusPayload
		if !h.decode(c, m, &p) {
			return
		}
		r := h.roomOf(c)
		if r == nil {
			return
		}
		c.IsSharing = p.IsSharing
		if p.IsSharing {
			r.SharingID = c.ID
		} else if r.SharingID == c.ID {
			r.SharingID = ""
		}
		for _, o := range r.others(c) {
			h.send(o, relay.TypePeerScreenShareStatus, relay.PeerScreenShareStatusPayload{
				UserID: c.ID, UserName: c.UserName, IsSharing: p.IsSharing,
			})
		}

	case relay.TypeMuteStatus:
		var p relay.MuteStatusPayload
		if !h.decode(c, m, &p) {
			return
		}
		r := h.roomOf(c)
		if r == nil {
			return
		}
		c.IsMuted = p.IsMuted
		for _, o := range r.others(c) {
			h.send(o, relay.TypePeerMuteStatus, relay.PeerMuteStatusPayload{
				UserID: c.ID, UserName: c.UserName, IsMuted: p.IsMuted,
			})
		}

	case relay.TypeRequestPeerState:
		var p relay.RequestPeerStatePayload
		if !h.decode(c, m, &p) {
			return
		}
		r := h.roomOf(c)
		if r == nil {
			return
		}
		if target := r.find(p.PeerID); target != nil {
			h.send(c, relay.TypePeerStateResponse, relay.PeerStateResponsePayload{
				UserID:          target.ID,
				UserName:        target.UserName,
				IsMuted:         target.IsMuted,
				IsScreenSharing: target.IsSharing,
				IsHost:          r.HostID == target.ID,
			})
		}

	case relay.TypeKickUser:
		var p relay.KickUserPayload
		if !h.decode(c, m, &p) {
			return
		}
		h.kick(c, p)

	default:
		h.logger.Debug("unknown message type", zap.String("type", m.Type))
	}
}

func (h *Hub) join(c *Client, p relay.JoinRoomPayload) {
	if c.RoomID != "" {
		h.sendError(c, "Already in a room")
		return
	}

	roomID := room.Normalize(p.RoomID)
	if roomID == "" {
		h.sendError(c, "Room code is required")
		return
	}

	r, ok := h.Rooms[roomID]
	if !ok {
		r = &Room{ID: roomID}
		h.Rooms[roomID] = r
		h.logger.Info("room created", zap.String("room", roomID))
	}

	c.UserName = p.UserName
	if c.UserName == "" {
		c.UserName = "Guest"
	}
	c.ClientType = p.ClientType

	existing := r.others(c)
	r.add(c)
	c.RoomID = roomID
	if r.HostID == "" {
		r.HostID = c.ID
	}

	h.logger.Info("client joined room",
		zap.String("room", roomID),
		zap.String("client", c.ID),
		zap.String("client_type", c.ClientType),
		zap.Int("members", len(r.Members)),
	)

	h.send(c, relay.TypeJoined, relay.JoinedPayload{UserID: c.ID, RoomID: roomID})
	h.send(c, relay.TypeHostStatus, relay.HostStatusPayload{IsHost: r.HostID == c.ID})

	// The snapshot goes out before the user list so late joiners can seed
	// flags for sessions they are about to create.
	state := relay.RoomStatePayload{TotalUsers: len(r.Members), MutedUsers: []relay.UserRef{}}
	users := make([]relay.UserInfo, 0, len(existing))
	for _, o := range existing {
		if o.IsMuted {
			state.MutedUsers = append(state.MutedUsers, relay.UserRef{UserID: o.ID, UserName: o.UserName})
		}
		if r.SharingID == o.ID {
			state.ScreenSharingUser = &relay.UserRef{UserID: o.ID, UserName: o.UserName}
		}
		users = append(users, relay.UserInfo{
			UserID:          o.ID,
			UserName:        o.UserName,
			IsScreenSharing: o.IsSharing,
			IsHost:          r.HostID == o.ID,
			IsMuted:         o.IsMuted,
			ClientType:      o.ClientType,
		})
	}
	h.send(c, relay.TypeRoomState, state)
	h.send(c, relay.TypeExistingUsers, users)

	for _, o := range existing {
		h.send(o, relay.TypeUserJoined, relay.UserJoinedPayload{
			UserID:     c.ID,
			UserName:   c.UserName,
			IsHost:     r.HostID == c.ID,
			ClientType: c.ClientType,
		})
	}
}

func (h *Hub) kick(c *Client, p relay.KickUserPayload) {
	r := h.roomOf(c)
	if r == nil {
		return
	}
	if r.HostID != c.ID {
		h.send(c, relay.TypeKickDenied, relay.ReasonPayload{Reason: kickDeniedReason})
		return
	}

	target := r.find(p.UserIDToKick)
	if target == nil || target == c {
		h.send(c, relay.TypeKickDenied, relay.ReasonPayload{Reason: "Participant not found"})
		return
	}

	h.logger.Info("participant kicked", zap.String("room", r.ID), zap.String("client", target.ID))
	h.send(target, relay.TypeKickedFromRoom, relay.ReasonPayload{Reason: kickReason})
	h.leave(target)
}

// leave removes c from its room, tells the others and hands the host role
// on if needed.
func (h *Hub) leave(c *Client) {
	r, ok := h.Rooms[c.RoomID]
	c.RoomID = ""
	if !ok {
		return
	}

	r.remove(c)
	if r.SharingID == c.ID {
		r.SharingID = ""
	}

	if len(r.Members) == 0 {
		delete(h.Rooms, r.ID)
		h.logger.Info("room deleted", zap.String("room", r.ID))
		return
	}

	for _, o := range r.Members {
		h.send(o, relay.TypeUserLeft, c.ID)
	}

	if r.HostID == c.ID {
		next := r.Members[0]
		r.HostID = next.ID
		h.logger.Info("host reassigned", zap.String("room", r.ID), zap.String("client", next.ID))
		for _, o := range r.Members {
			h.send(o, relay.TypeNewHost, relay.NewHostPayload{UserID: next.ID, UserName: next.UserName})
		}
		h.send(next, relay.TypeHostStatus, relay.HostStatusPayload{IsHost: true})
	}
}

func (h *Hub) roomOf(c *Client) *Room {
	if c.RoomID == "" {
		h.sendError(c, "You must join a room first")
		return nil
	}
	r, ok := h.Rooms[c.RoomID]
	if !ok {
		h.sendError(c, "Room not found")
		return nil
	}
	return r
}

// member returns the room member with id, if c shares a room with it.
func (h *Hub) member(c *Client, id string) *Client {
	r := h.roomOf(c)
	if r == nil {
		return nil
	}
	target := r.find(id)
	if target == nil {
		h.logger.Debug("target not in room", zap.String("room", r.ID), zap.String("target", id))
	}
	return target
}

func (h *Hub) decode(c *Client, m *Message, v any) bool {
	if err := sonic.Unmarshal(m.Payload, v); err != nil {
		h.logger.Warn("bad payload", zap.String("type", m.Type), zap.Error(err))
		h.sendError(c, "Malformed "+m.Type+" payload")
		return false
	}
	return true
}

func (h *Hub) sendError(c *Client, msg string) {
	h.send(c, relay.TypeError, relay.ErrorPayload{Error: msg})
}

func (h *Hub) send(c *Client, eventType string, payload any) {
	env, err := relay.Encode(eventType, payload)
	if err != nil {
		h.logger.Error("encode event", zap.String("type", eventType), zap.Error(err))
		return
	}

	select {
	case c.Send <- env:
	default:
		h.logger.Warn("client send buffer full, dropping event",
			zap.String("client", c.ID), zap.String("type", eventType))
	}
}

// Package relay is the websocket client for the room relay. It turns wire
// envelopes into typed Events and exposes one method per outbound event.
package relay

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/BioHazard786/warpcall/internal/dns"
	"github.com/BioHazard786/warpcall/internal/metrics"
	"github.com/BioHazard786/warpcall/internal/transport"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client manages the WebSocket connection to the relay.
type Client struct {
	conn      *websocket.Conn
	serverURL string
	incoming  chan Event
	outgoing  chan Envelope
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
}

// NewClient creates a new relay client
func NewClient(serverURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		serverURL: serverURL,
		incoming:  make(chan Event, 64),
		outgoing:  make(chan Envelope, 64),
		done:      make(chan struct{}),
		logger:    logger.With(zap.String("component", "relay")),
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	dialer := *websocket.DefaultDialer
	dialer.NetDialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}

		resolvedIP, err := dns.Lookup(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("dns lookup failed: %w", err)
		}

		var d net.Dialer
		return d.DialContext(ctx, network, net.JoinHostPort(resolvedIP, port))
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// readPump decodes envelopes into events until the connection drops.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("relay read failed", zap.Error(err))
			}
			return
		}

		event, err := Decode(env)
		if err != nil {
			c.logger.Warn("dropping malformed relay event", zap.String("type", env.Type), zap.Error(err))
			continue
		}
		metrics.RecordRelayEvent("in", env.Type)

		select {
		case c.incoming <- event:
		case <-c.done:
			return
		}
	}
}

// writePump writes envelopes and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				c.logger.Warn("relay write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues an event for the relay.
func (c *Client) Send(eventType string, payload any) error {
	env, err := Encode(eventType, payload)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return call.ErrRelayClosed
	default:
	}

	select {
	case c.outgoing <- env:
		metrics.RecordRelayEvent("out", eventType)
		return nil
	case <-c.done:
		return call.ErrRelayClosed
	}
}

// Events returns the channel of inbound events. It is closed when the
// connection drops.
func (c *Client) Events() <-chan Event {
	return c.incoming
}

func (c *Client) JoinRoom(roomID, userName string) error {
	return c.Send(TypeJoinRoom, JoinRoomPayload{RoomID: roomID, UserName: userName, ClientType: ClientTypeCLI})
}

func (c *Client) SendSignal(to string, sig transport.Signal) error {
	return c.Send(TypeSignal, SignalPayload{Signal: sig, To: to})
}

func (c *Client) SendKey(to, publicKey string) error {
	return c.Send(TypeKeyExchange, KeyExchangePayload{PublicKey: publicKey, To: to})
}

func (c *Client) RequestPeerState(peerID string) error {
	return c.Send(TypeRequestPeerState, RequestPeerStatePayload{PeerID: peerID})
}

func (c *Client) SendScreenShareStatus(roomID string, sharing bool) error {
	return c.Send(TypeScreenShareStatus, ScreenShareStatusPayload{RoomID: roomID, IsSharing: sharing})
}

func (c *Client) SendMuteStatus(roomID string, muted bool) error {
	return c.Send(TypeMuteStatus, MuteStatusPayload{RoomID: roomID, IsMuted: muted})
}

func (c *Client) KickUser(roomID, userID string) error {
	return c.Send(TypeKickUser, KickUserPayload{RoomID: roomID, UserIDToKick: userID})
}

// Close closes the connection and cleans up resources.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

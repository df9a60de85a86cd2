package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// scriptedRelay accepts one connection, records what the client sends and
// lets the test push envelopes down to it.
type scriptedRelay struct {
	received chan Envelope
	push     chan Envelope
}

func startScriptedRelay(t *testing.T) (*scriptedRelay, string) {
	r := &scriptedRelay{
		received: make(chan Envelope, 16),
		push:     make(chan Envelope, 16),
	}
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		go func() {
			for {
				var env Envelope
				if err := conn.ReadJSON(&env); err != nil {
					return
				}
				r.received <- env
			}
		}()

		for env := range r.push {
			if env.Type == "" {
				return
			}
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(r.push) })

	return r, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func connect(t *testing.T, url string) *Client {
	c := NewClient(url, zaptest.NewLogger(t))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(c.Close)
	return c
}

func TestClientSendsTypedPayloads(t *testing.T) {
	r, url := startScriptedRelay(t)
	c := connect(t, url)

	require.NoError(t, c.JoinRoom("ABCD", "Alice"))
	require.NoError(t, c.KickUser("ABCD", "u2"))

	select {
	case env := <-r.received:
		assert.Equal(t, TypeJoinRoom, env.Type)
		assert.JSONEq(t, `{"roomId":"ABCD","userName":"Alice","clientType":"cli"}`, string(env.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("join-room not received")
	}

	select {
	case env := <-r.received:
		assert.Equal(t, TypeKickUser, env.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("kick-user not received")
	}
}

func TestClientDeliversEventsAndClosesOnDrop(t *testing.T) {
	r, url := startScriptedRelay(t)
	c := connect(t, url)

	r.push <- envelope(TypeJoined, `{"userId":"u1","roomId":"ABCD"}`)
	r.push <- envelope(TypeJoined, `{"userId":42}`) // malformed, skipped
	r.push <- envelope(TypeHostStatus, `{"isHost":true}`)

	var got []Event
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-c.Events():
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("got %d events", len(got))
		}
	}
	assert.Equal(t, Joined{UserID: "u1", RoomID: "ABCD"}, got[0])
	assert.Equal(t, HostStatus{IsHost: true}, got[1])

	// Empty envelope makes the server hang up.
	r.push <- Envelope{}

	select {
	case _, ok := <-c.Events():
		assert.False(t, ok, "events channel closes when the relay drops")
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed")
	}
}

func TestSendAfterClose(t *testing.T) {
	_, url := startScriptedRelay(t)
	c := connect(t, url)

	c.Close()
	assert.ErrorIs(t, c.SendMuteStatus("ABCD", true), call.ErrRelayClosed)
}

func TestConnectInvalidURL(t *testing.T) {
	c := NewClient("://nope", nil)
	assert.Error(t, c.Connect(context.Background()))
}

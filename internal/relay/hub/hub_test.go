package hub

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BioHazard786/warpcall/internal/relay"
	"github.com/BioHazard786/warpcall/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func startRelay(t *testing.T) string {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(zaptest.NewLogger(t))
	go h.Run(ctx)

	srv := httptest.NewServer(ServeWs(h))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *relay.Client {
	t.Helper()
	c := relay.NewClient(url, zaptest.NewLogger(t))
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Close)
	return c
}

func next[T relay.Event](t *testing.T, c *relay.Client) T {
	t.Helper()
	var zero T
	select {
	case ev, ok := <-c.Events():
		require.True(t, ok, "relay connection closed")
		got, ok := ev.(T)
		require.Truef(t, ok, "expected %T, got %T (%+v)", zero, ev, ev)
		return got
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %T", zero)
	}
	return zero
}

// join joins c to roomID and drains the join sequence.
func join(t *testing.T, c *relay.Client, roomID, name string) (relay.Joined, bool, relay.RoomState, []relay.UserInfo) {
	t.Helper()
	require.NoError(t, c.JoinRoom(roomID, name))
	joined := next[relay.Joined](t, c)
	host := next[relay.HostStatus](t, c)
	state := next[relay.RoomState](t, c)
	users := next[relay.ExistingUsers](t, c)
	return joined, host.IsHost, state, users.Users
}

func TestFirstJoinerIsHost(t *testing.T) {
	url := startRelay(t)
	a := dial(t, url)
	b := dial(t, url)

	ja, aHost, stateA, usersA := join(t, a, "abcd1234", "alice")
	assert.Equal(t, "ABCD1234", ja.RoomID)
	assert.NotEmpty(t, ja.UserID)
	assert.True(t, aHost)
	assert.Equal(t, 1, stateA.TotalUsers)
	assert.Empty(t, usersA)

	jb, bHost, stateB, usersB := join(t, b, "ABCD1234", "bob")
	assert.False(t, bHost)
	assert.Equal(t, 2, stateB.TotalUsers)
	require.Len(t, usersB, 1)
	assert.Equal(t, ja.UserID, usersB[0].UserID)
	assert.Equal(t, "alice", usersB[0].UserName)
	assert.True(t, usersB[0].IsHost)
	assert.Equal(t, relay.ClientTypeCLI, usersB[0].ClientType)

	joined := next[relay.UserJoined](t, a)
	assert.Equal(t, jb.UserID, joined.UserID)
	assert.Equal(t, "bob", joined.UserName)
	assert.False(t, joined.IsHost)
}

func TestSignalAndKeyAreRoutedWithSender(t *testing.T) {
	url := startRelay(t)
	a := dial(t, url)
	b := dial(t, url)

	ja, _, _, _ := join(t, a, "ROOM0001", "alice")
	jb, _, _, _ := join(t, b, "ROOM0001", "bob")
	next[relay.UserJoined](t, a)

	require.NoError(t, b.SendSignal(ja.UserID, transport.Signal{Type: transport.SignalOffer, SDP: "v=0"}))
	sig := next[relay.Signal](t, a)
	assert.Equal(t, jb.UserID, sig.From)
	assert.Equal(t, transport.SignalOffer, sig.Signal.Type)
	assert.Equal(t, "v=0", sig.Signal.SDP)

	require.NoError(t, a.SendKey(jb.UserID, "pubkey"))
	key := next[relay.KeyExchange](t, b)
	assert.Equal(t, ja.UserID, key.From)
	assert.Equal(t, "pubkey", key.PublicKey)
}

func TestLateJoinerSeesSnapshot(t *testing.T) {
	url := startRelay(t)
	a := dial(t, url)
	b := dial(t, url)

	ja, _, _, _ := join(t, a, "ROOM0002", "alice")
	require.NoError(t, a.SendMuteStatus("ROOM0002", true))
	require.NoError(t, a.SendScreenShareStatus("ROOM0002", true))

	// Round-trip so both updates are applied before bob joins.
	require.NoError(t, a.RequestPeerState(ja.UserID))
	self := next[relay.PeerStateResponse](t, a)
	assert.True(t, self.IsMuted)
	assert.True(t, self.IsScreenSharing)
	assert.True(t, self.IsHost)

	_, _, state, users := join(t, b, "ROOM0002", "bob")
	require.NotNil(t, state.ScreenSharingUser)
	assert.Equal(t, ja.UserID, state.ScreenSharingUser.UserID)
	require.Len(t, state.MutedUsers, 1)
	assert.Equal(t, ja.UserID, state.MutedUsers[0].UserID)
	require.Len(t, users, 1)
	assert.True(t, users[0].IsMuted)
	assert.True(t, users[0].IsScreenSharing)
}

func TestStatusIsBroadcastToOthers(t *testing.T) {
	url := startRelay(t)
	a := dial(t, url)
	b := dial(t, url)

	ja, _, _, _ := join(t, a, "ROOM0003", "alice")
	join(t, b, "ROOM0003", "bob")
	next[relay.UserJoined](t, a)

	require.NoError(t, a.SendMuteStatus("ROOM0003", true))
	mute := next[relay.PeerMuteStatus](t, b)
	assert.Equal(t, ja.UserID, mute.UserID)
	assert.True(t, mute.IsMuted)

	require.NoError(t, a.SendScreenShareStatus("ROOM0003", true))
	share := next[relay.PeerScreenShareStatus](t, b)
	assert.Equal(t, "alice", share.UserName)
	assert.True(t, share.IsSharing)
}

func TestOnlyHostCanKick(t *testing.T) {
	url := startRelay(t)
	a := dial(t, url)
	b := dial(t, url)
	c := dial(t, url)

	ja, _, _, _ := join(t, a, "ROOM0004", "alice")
	jb, _, _, _ := join(t, b, "ROOM0004", "bob")
	next[relay.UserJoined](t, a)
	join(t, c, "ROOM0004", "carol")
	next[relay.UserJoined](t, a)
	next[relay.UserJoined](t, b)

	require.NoError(t, b.KickUser("ROOM0004", ja.UserID))
	denied := next[relay.KickDenied](t, b)
	assert.NotEmpty(t, denied.Reason)

	require.NoError(t, a.KickUser("ROOM0004", jb.UserID))
	kicked := next[relay.KickedFromRoom](t, b)
	assert.NotEmpty(t, kicked.Reason)

	assert.Equal(t, jb.UserID, next[relay.UserLeft](t, a).UserID)
	assert.Equal(t, jb.UserID, next[relay.UserLeft](t, c).UserID)
}

func TestHostLeavingHandsOver(t *testing.T) {
	url := startRelay(t)
	a := dial(t, url)
	b := dial(t, url)
	c := dial(t, url)

	ja, _, _, _ := join(t, a, "ROOM0005", "alice")
	jb, _, _, _ := join(t, b, "ROOM0005", "bob")
	next[relay.UserJoined](t, a)
	join(t, c, "ROOM0005", "carol")
	next[relay.UserJoined](t, a)
	next[relay.UserJoined](t, b)

	a.Close()

	assert.Equal(t, ja.UserID, next[relay.UserLeft](t, b).UserID)
	newHost := next[relay.NewHost](t, b)
	assert.Equal(t, jb.UserID, newHost.UserID)
	assert.True(t, next[relay.HostStatus](t, b).IsHost)

	assert.Equal(t, ja.UserID, next[relay.UserLeft](t, c).UserID)
	assert.Equal(t, jb.UserID, next[relay.NewHost](t, c).UserID)
}

func TestRequiresJoinedRoom(t *testing.T) {
	url := startRelay(t)
	a := dial(t, url)

	require.NoError(t, a.SendMuteStatus("NOPE0000", true))
	errEv := next[relay.Error](t, a)
	assert.Contains(t, errEv.Message, "join a room")
}

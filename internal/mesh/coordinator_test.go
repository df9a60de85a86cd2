package mesh

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/BioHazard786/warpcall/internal/framecipher"
	"github.com/BioHazard786/warpcall/internal/localmedia"
	"github.com/BioHazard786/warpcall/internal/peer"
	"github.com/BioHazard786/warpcall/internal/relay"
	"github.com/BioHazard786/warpcall/internal/transport"
	"github.com/BioHazard786/warpcall/internal/transport/transporttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// recordingRelay captures everything the coordinator sends.
type recordingRelay struct {
	mu       sync.Mutex
	joins    []string
	signals  []string
	keys     []string
	requests []string
	mutes    []bool
	shares   []bool
	kicks    []string
	events   chan relay.Event
}

func newRecordingRelay() *recordingRelay {
	return &recordingRelay{events: make(chan relay.Event, 64)}
}

func (r *recordingRelay) JoinRoom(roomID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joins = append(r.joins, roomID)
	return nil
}

func (r *recordingRelay) SendSignal(to string, _ transport.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, to)
	return nil
}

func (r *recordingRelay) SendKey(to, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, to)
	return nil
}

func (r *recordingRelay) RequestPeerState(peerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, peerID)
	return nil
}

func (r *recordingRelay) SendMuteStatus(_ string, muted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutes = append(r.mutes, muted)
	return nil
}

func (r *recordingRelay) SendScreenShareStatus(_ string, sharing bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shares = append(r.shares, sharing)
	return nil
}

func (r *recordingRelay) KickUser(_ string, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kicks = append(r.kicks, userID)
	return nil
}

func (r *recordingRelay) Events() <-chan relay.Event { return r.events }

func (r *recordingRelay) sentKeys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

func (r *recordingRelay) sentMutes() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.mutes...)
}

func (r *recordingRelay) sentShares() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.shares...)
}

func (r *recordingRelay) sentKicks() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.kicks...)
}

type harness struct {
	c       *Coordinator
	relay   *recordingRelay
	net     *transporttest.Network
	media   *localmedia.Controller
	running bool
}

func newHarness(t *testing.T, opts localmedia.SyntheticOptions) *harness {
	t.Helper()

	h := &harness{
		relay: newRecordingRelay(),
		net:   transporttest.NewNetwork(),
		media: localmedia.NewController(localmedia.NewSyntheticCapturer(opts), zaptest.NewLogger(t)),
	}
	t.Cleanup(h.media.Stop)

	c, err := New(Config{
		RoomID:    "ABCD",
		UserName:  "me",
		Policy:    framecipher.PassThrough,
		Transport: h.net.Factory(),
		Relay:     h.relay,
		Media:     h.media,
		Logger:    zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	h.c = c
	h.c.selfID = "me"

	// Tests that never start the loop own the registry themselves.
	t.Cleanup(func() {
		if !h.running {
			h.c.teardown()
		}
	})
	return h
}

// run starts the control loop and returns a channel with its result.
func (h *harness) run(t *testing.T) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h.running = true
	result := make(chan error, 1)
	go func() { result <- h.c.Run(ctx) }()
	return result
}

func (h *harness) push(evs ...relay.Event) {
	for _, ev := range evs {
		h.relay.events <- ev
	}
}

func (h *harness) snapshot(t *testing.T) State {
	t.Helper()
	st, err := h.c.Snapshot()
	require.NoError(t, err)
	return st
}

func TestCreateSessionIsIdempotent(t *testing.T) {
	h := newHarness(t, localmedia.SyntheticOptions{})

	require.NoError(t, h.c.handleRelay(relay.UserJoined{UserJoinedPayload: relay.UserJoinedPayload{UserID: "u1", UserName: "alice"}}))
	first := h.c.sessions["u1"]
	require.NotNil(t, first)

	require.NoError(t, h.c.handleRelay(relay.UserJoined{UserJoinedPayload: relay.UserJoinedPayload{UserID: "u1", UserName: "alice"}}))
	require.NoError(t, h.c.handleRelay(relay.ExistingUsers{Users: []relay.UserInfo{{UserID: "u1", UserName: "alice"}}}))

	assert.Len(t, h.c.sessions, 1)
	assert.Equal(t, first.ID, h.c.sessions["u1"].ID)
	assert.False(t, h.c.sessions["u1"].Initiator)
	assert.Len(t, h.net.Transports(), 1)
	assert.Equal(t, 1, h.media.SenderCount())
}

func TestExistingUsersMakesUsInitiator(t *testing.T) {
	h := newHarness(t, localmedia.SyntheticOptions{})

	require.NoError(t, h.c.handleRelay(relay.ExistingUsers{Users: []relay.UserInfo{
		{UserID: "u1", UserName: "alice", IsHost: true},
		{UserID: "u2", UserName: "bob"},
		{UserID: "me", UserName: "me"},
	}}))

	require.Len(t, h.c.sessions, 2)
	for _, id := range []string{"u1", "u2"} {
		s := h.c.sessions[id]
		assert.True(t, s.Initiator, id)
		assert.Equal(t, peer.SignalingExchange, s.State(), id)
	}
	assert.True(t, h.c.sessions["u1"].IsHost)
	assert.ElementsMatch(t, []string{"u1", "u2"}, h.relay.sentKeys())

	require.Eventually(t, func() bool {
		for _, tr := range h.net.Transports() {
			if tr.Offers() != 1 {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUserJoinedMakesUsResponder(t *testing.T) {
	h := newHarness(t, localmedia.SyntheticOptions{})

	require.NoError(t, h.c.handleRelay(relay.UserJoined{UserJoinedPayload: relay.UserJoinedPayload{UserID: "u1", UserName: "alice"}}))

	s := h.c.sessions["u1"]
	require.NotNil(t, s)
	assert.False(t, s.Initiator)
	assert.Empty(t, h.relay.sentKeys())
	assert.Equal(t, 0, h.net.Transports()[0].Offers())
}

func TestRoomStateSeedsSessionsNotCreatedYet(t *testing.T) {
	h := newHarness(t, localmedia.SyntheticOptions{})

	require.NoError(t, h.c.handleRelay(relay.RoomState{RoomStatePayload: relay.RoomStatePayload{
		TotalUsers:        3,
		ScreenSharingUser: &relay.UserRef{UserID: "u1", UserName: "alice"},
		MutedUsers:        []relay.UserRef{{UserID: "u1"}, {UserID: "u2"}},
	}}))
	assert.Equal(t, "u1", h.c.sharingID)

	require.NoError(t, h.c.handleRelay(relay.ExistingUsers{Users: []relay.UserInfo{{UserID: "u1", UserName: "alice"}}}))

	s := h.c.sessions["u1"]
	require.NotNil(t, s)
	assert.True(t, s.IsScreenSharing)
	assert.True(t, s.IsMuted)
	assert.NotContains(t, h.c.pending, "u1")
	assert.True(t, h.c.pending["u2"].muted)
}

func TestRoomStateUpdatesExistingSessions(t *testing.T) {
	h := newHarness(t, localmedia.SyntheticOptions{})
	require.NoError(t, h.c.handleRelay(relay.UserJoined{UserJoinedPayload: relay.UserJoinedPayload{UserID: "u1", UserName: "alice"}}))

	require.NoError(t, h.c.handleRelay(relay.RoomState{RoomStatePayload: relay.RoomStatePayload{
		ScreenSharingUser: &relay.UserRef{UserID: "u1"},
		MutedUsers:        []relay.UserRef{{UserID: "u1"}},
	}}))

	s := h.c.sessions["u1"]
	assert.True(t, s.IsScreenSharing)
	assert.True(t, s.IsMuted)
	assert.Empty(t, h.c.pending)
}

func TestStaleSessionEventIsDiscarded(t *testing.T) {
	h := newHarness(t, localmedia.SyntheticOptions{})
	join := relay.UserJoined{UserJoinedPayload: relay.UserJoinedPayload{UserID: "u1", UserName: "alice"}}

	require.NoError(t, h.c.handleRelay(join))
	old := h.c.sessions["u1"].ID

	require.NoError(t, h.c.handleRelay(relay.UserLeft{UserID: "u1"}))
	assert.Empty(t, h.c.sessions)

	require.NoError(t, h.c.handleRelay(join))
	fresh := h.c.sessions["u1"]
	require.NotEqual(t, old, fresh.ID)

	// A late failure from the old session must not touch the new one.
	h.c.handleSession(peer.Event{SessionID: old, UserID: "u1", Kind: peer.EventClosed})
	require.Contains(t, h.c.sessions, "u1")
	assert.Equal(t, fresh.ID, h.c.sessions["u1"].ID)
	assert.NotEqual(t, peer.Closed, fresh.State())
}

func TestTransportCloseRemovesSession(t *testing.T) {
	h := newHarness(t, localmedia.SyntheticOptions{})
	require.NoError(t, h.c.handleRelay(relay.UserJoined{UserJoinedPayload: relay.UserJoinedPayload{UserID: "u1", UserName: "alice"}}))
	require.NoError(t, h.c.handleRelay(relay.UserJoined{UserJoinedPayload: relay.UserJoinedPayload{UserID: "u2", UserName: "bob"}}))
	s := h.c.sessions["u1"]

	h.c.handleSession(peer.Event{SessionID: s.ID, UserID: "u1", Kind: peer.EventClosed})

	assert.Equal(t, peer.Closed, s.State())
	assert.NotContains(t, h.c.sessions, "u1")
	assert.Contains(t, h.c.sessions, "u2")
	assert.Equal(t, 1, h.media.SenderCount())
	assert.Equal(t, 2, h.c.state().ParticipantCount)
}

func TestNewHostFlagsExactlyOne(t *testing.T) {
	h := newHarness(t, localmedia.SyntheticOptions{})
	require.NoError(t, h.c.handleRelay(relay.ExistingUsers{Users: []relay.UserInfo{
		{UserID: "u1", UserName: "alice", IsHost: true},
		{UserID: "u2", UserName: "bob"},
	}}))

	require.NoError(t, h.c.handleRelay(relay.NewHost{NewHostPayload: relay.NewHostPayload{UserID: "u2"}}))
	assert.False(t, h.c.sessions["u1"].IsHost)
	assert.True(t, h.c.sessions["u2"].IsHost)
	assert.False(t, h.c.isHost)

	require.NoError(t, h.c.handleRelay(relay.NewHost{NewHostPayload: relay.NewHostPayload{UserID: "me"}}))
	assert.False(t, h.c.sessions["u1"].IsHost)
	assert.False(t, h.c.sessions["u2"].IsHost)
	assert.True(t, h.c.isHost)
}

func TestPeerStatusUpdates(t *testing.T) {
	h := newHarness(t, localmedia.SyntheticOptions{})
	require.NoError(t, h.c.handleRelay(relay.UserJoined{UserJoinedPayload: relay.UserJoinedPayload{UserID: "u1", UserName: "alice"}}))
	s := h.c.sessions["u1"]

	require.NoError(t, h.c.handleRelay(relay.PeerMuteStatus{PeerMuteStatusPayload: relay.PeerMuteStatusPayload{UserID: "u1", IsMuted: true}}))
	assert.True(t, s.IsMuted)

	require.NoError(t, h.c.handleRelay(relay.PeerScreenShareStatus{PeerScreenShareStatusPayload: relay.PeerScreenShareStatusPayload{UserID: "u1", IsSharing: true}}))
	assert.True(t, s.IsScreenSharing)
	assert.Equal(t, "u1", h.c.sharingID)

	require.NoError(t, h.c.handleRelay(relay.PeerStateResponse{PeerStateResponsePayload: relay.PeerStateResponsePayload{
		UserID: "u1", IsMuted: false, IsScreenSharing: false, IsHost: true,
	}}))
	assert.False(t, s.IsMuted)
	assert.False(t, s.IsScreenSharing)
	assert.True(t, s.IsHost)
	assert.Empty(t, h.c.sharingID)

	// Status for peers we do not know is ignored.
	require.NoError(t, h.c.handleRelay(relay.PeerMuteStatus{PeerMuteStatusPayload: relay.PeerMuteStatusPayload{UserID: "ghost", IsMuted: true}}))
	assert.Len(t, h.c.sessions, 1)
}

func TestNewcomerGetsOurStatus(t *testing.T) {
	h := newHarness(t, localmedia.SyntheticOptions{})
	h.media.SetMuted(true)

	require.NoError(t, h.c.handleRelay(relay.UserJoined{UserJoinedPayload: relay.UserJoinedPayload{UserID: "u1"}}))

	assert.Equal(t, []bool{true}, h.relay.sentMutes())
	assert.Empty(t, h.relay.sentShares())
}

func TestKickedFromRoomEndsCall(t *testing.T) {
	h := newHarness(t, localmedia.SyntheticOptions{})

	err := h.c.handleRelay(relay.KickedFromRoom{Reason: "bye"})
	require.ErrorIs(t, err, call.ErrKicked)
	assert.Contains(t, err.Error(), "bye")
}

func TestKickDeniedIsNoop(t *testing.T) {
	h := newHarness(t, localmedia.SyntheticOptions{})
	require.NoError(t, h.c.handleRelay(relay.UserJoined{UserJoinedPayload: relay.UserJoinedPayload{UserID: "u1"}}))

	require.NoError(t, h.c.handleRelay(relay.KickDenied{Reason: "Only the host can remove participants"}))

	assert.Len(t, h.c.sessions, 1)
	assert.Equal(t, "Only the host can remove participants", h.c.notice)
}

func TestJoinAndLeave(t *testing.T) {
	h := newHarness(t, localmedia.SyntheticOptions{})
	result := h.run(t)

	h.push(relay.Joined{UserID: "me-2", RoomID: "ABCD"}, relay.HostStatus{IsHost: true})
	require.Eventually(t, func() bool { return h.snapshot(t).IsHost }, 2*time.Second, 10*time.Millisecond)

	st := h.snapshot(t)
	assert.Equal(t, "me-2", st.SelfID)
	assert.Equal(t, 1, st.ParticipantCount)

	h.c.Leave()
	require.NoError(t, <-result)
	assert.Equal(t, []string{"ABCD"}, h.relay.joins)

	_, err := h.c.Snapshot()
	assert.ErrorIs(t, err, call.ErrCallEnded)
}

func TestRelayDropEndsCall(t *testing.T) {
	h := newHarness(t, localmedia.SyntheticOptions{})
	result := h.run(t)

	close(h.relay.events)
	assert.ErrorIs(t, <-result, call.ErrRelayClosed)
}

func TestMuteBroadcastOncePerToggle(t *testing.T) {
	h := newHarness(t, localmedia.SyntheticOptions{})
	h.run(t)
	h.push(relay.ExistingUsers{Users: []relay.UserInfo{{UserID: "u1"}, {UserID: "u2"}}})

	muted, err := h.c.ToggleMute()
	require.NoError(t, err)
	assert.True(t, muted)

	muted, err = h.c.ToggleMute()
	require.NoError(t, err)
	assert.False(t, muted)

	assert.Equal(t, []bool{true, false}, h.relay.sentMutes())
}

func TestScreenShareBroadcastOncePerTransition(t *testing.T) {
	h := newHarness(t, localmedia.SyntheticOptions{Screen: true})
	h.run(t)
	h.push(relay.Joined{UserID: "me"}, relay.ExistingUsers{Users: []relay.UserInfo{{UserID: "u1"}}})
	require.Eventually(t, func() bool { return h.snapshot(t).ParticipantCount == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.c.StartScreenShare())
	require.NoError(t, h.c.StartScreenShare())

	st := h.snapshot(t)
	assert.True(t, st.Sharing)
	assert.Equal(t, "me", st.ScreenSharer)
	assert.True(t, h.net.Transports()[0].ScreenActive())

	_, err := h.c.ToggleVideo()
	assert.ErrorIs(t, err, call.ErrScreenShareActive)

	sharing, err := h.c.ToggleScreenShare()
	require.NoError(t, err)
	assert.False(t, sharing)
	require.NoError(t, h.c.StopScreenShare())

	assert.Equal(t, []bool{true, false}, h.relay.sentShares())
	assert.False(t, h.net.Transports()[0].ScreenActive())
	assert.Empty(t, h.snapshot(t).ScreenSharer)
}

func TestScreenShareUnavailableIsReported(t *testing.T) {
	h := newHarness(t, localmedia.SyntheticOptions{})
	h.run(t)

	err := h.c.StartScreenShare()
	require.ErrorIs(t, err, call.ErrScreenShareNotAvail)

	st := h.snapshot(t)
	assert.False(t, st.Sharing)
	assert.NotEmpty(t, st.Notice)
	assert.Empty(t, h.relay.sentShares())
}

func TestPlatformEndedShareRunsStopPath(t *testing.T) {
	h := newHarness(t, localmedia.SyntheticOptions{Screen: true, ScreenDuration: 50 * time.Millisecond})
	h.run(t)

	require.NoError(t, h.c.StartScreenShare())
	require.Eventually(t, func() bool {
		return len(h.relay.sentShares()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []bool{true, false}, h.relay.sentShares())
	assert.False(t, h.snapshot(t).Sharing)
}

func TestKickRequiresHost(t *testing.T) {
	h := newHarness(t, localmedia.SyntheticOptions{})
	h.run(t)
	h.push(relay.ExistingUsers{Users: []relay.UserInfo{{UserID: "u1", UserName: "alice"}}})
	require.Eventually(t, func() bool { return h.snapshot(t).ParticipantCount == 2 }, 2*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, h.c.Kick("u1"), call.ErrNotHost)
	assert.Empty(t, h.relay.sentKicks())

	h.push(relay.HostStatus{IsHost: true})
	require.Eventually(t, func() bool { return h.snapshot(t).IsHost }, 2*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, h.c.Kick("ghost"), call.ErrUnknownPeer)

	require.NoError(t, h.c.Kick("u1"))
	assert.Equal(t, []string{"u1"}, h.relay.sentKicks())

	// Torn down without waiting for user-left.
	st := h.snapshot(t)
	assert.Equal(t, 1, st.ParticipantCount)
	assert.Empty(t, st.Participants)
}

func TestSendChatRecordsLocally(t *testing.T) {
	h := newHarness(t, localmedia.SyntheticOptions{})
	h.run(t)

	assert.ErrorIs(t, h.c.SendChat("   "), call.ErrEmptyMessage)
	require.NoError(t, h.c.SendChat("hello"))

	st := h.snapshot(t)
	require.Len(t, st.Chat, 1)
	assert.Equal(t, "hello", st.Chat[0].Text)
	assert.Equal(t, "You", st.Chat[0].UserName)
}

func TestUpdatesCarryLatestState(t *testing.T) {
	h := newHarness(t, localmedia.SyntheticOptions{})
	h.run(t)
	h.push(relay.ExistingUsers{Users: []relay.UserInfo{{UserID: "u1", UserName: "alice"}}})

	require.Eventually(t, func() bool {
		select {
		case st := <-h.c.Updates():
			return st.ParticipantCount == 2
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

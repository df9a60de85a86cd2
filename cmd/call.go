package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/BioHazard786/warpcall/internal/chat"
	"github.com/BioHazard786/warpcall/internal/localmedia"
	"github.com/BioHazard786/warpcall/internal/logging"
	"github.com/BioHazard786/warpcall/internal/mesh"
	"github.com/BioHazard786/warpcall/internal/metrics"
	"github.com/BioHazard786/warpcall/internal/peer"
	"github.com/BioHazard786/warpcall/internal/relay"
	"github.com/BioHazard786/warpcall/internal/transport"
	"github.com/BioHazard786/warpcall/internal/ui"
	"github.com/BioHazard786/warpcall/internal/utils"
	"go.uber.org/zap"
)

// runCall connects to the relay, joins roomID and drives the call UI until
// the user leaves or the call ends.
func runCall(ctx context.Context, roomID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.Logger().With(zap.String("room", roomID))

	name := cfg.DisplayName
	if name == "" {
		name = utils.DefaultDisplayName()
	}
	link := cfg.GetRoomLink(roomID)

	if cfg.MetricsAddr != "" {
		ms := metrics.NewServer(cfg.MetricsAddr, logger)
		ms.Start()
		defer shutdown(ms.Shutdown)
	}

	fmt.Println()
	spin := ui.NewConnectionSpinner(ui.IconConnect + " Connecting to relay...")
	spin.Start()
	client := relay.NewClient(cfg.RelayURL, logger)
	dialCtx, cancel := context.WithTimeout(ctx, utils.ConnectTimeout*time.Second)
	err = client.Connect(dialCtx)
	cancel()
	if err != nil {
		spin.Error("Could not reach the relay")
		return call.NewError("connect to relay", err)
	}
	spin.Success("Connected to relay")
	defer client.Close()

	ui.NewRoomInfo(roomID, link).Render()

	capturer := localmedia.NewSyntheticCapturer(localmedia.SyntheticOptions{
		VideoFPS:   cfg.VideoFPS,
		AudioFrame: cfg.AudioFrame,
		Screen:     cfg.ScreenCapture,
	})
	media := localmedia.NewController(capturer, logger)
	if err := media.Start(); err != nil {
		return call.NewError("open capture", err)
	}
	defer media.Stop()

	frames := newFrameCounter()
	coord, err := mesh.New(mesh.Config{
		RoomID:    roomID,
		UserName:  name,
		Policy:    cfg.FramePolicy,
		Transport: transport.NewPionFactory(cfg, logger),
		Relay:     client,
		Media:     media,
		Sink:      frames,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	tracker := newCallTracker(roomID, link, frames)
	view := ui.NewCallUI(coord, ui.Snapshot{
		RoomID:   roomID,
		RoomLink: link,
		UserName: name,
		VideoOn:  true,
		Count:    1,
	})

	result := make(chan error, 1)
	go func() {
		result <- coord.Run(ctx)
	}()
	view.Start()

	var runErr error
loop:
	for {
		select {
		case st := <-coord.Updates():
			view.Update(tracker.observe(st))
		case <-view.Done():
			coord.Leave()
			runErr = <-result
			break loop
		case runErr = <-result:
			view.Stop()
			break loop
		}
	}

	logger.Info("call ended", zap.Error(runErr))

	fmt.Println()
	ui.RenderCallSummary(ui.IconCall+" Call Summary", tracker.summary(callStatus(runErr)))
	return runErr
}

func callStatus(err error) string {
	switch {
	case err == nil:
		return "Left"
	case errors.Is(err, call.ErrKicked):
		return "Removed by host"
	case errors.Is(err, call.ErrRelayClosed):
		return "Relay disconnected"
	default:
		return "Failed"
	}
}

// frameCounter is the sink for decrypted remote frames. Playback is not
// wired, so it only counts them per participant.
type frameCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFrameCounter() *frameCounter {
	return &frameCounter{counts: make(map[string]int)}
}

func (f *frameCounter) WriteFrame(userID string, kind transport.Kind, frame []byte) {
	f.mu.Lock()
	f.counts[userID]++
	f.mu.Unlock()
}

func (f *frameCounter) Count(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[userID]
}

// callTracker turns coordinator state into what the UI renders and keeps
// what the end-of-call summary needs.
type callTracker struct {
	roomID string
	link   string
	frames *frameCounter
	start  time.Time

	peak     int
	messages int
	peers    map[string]*ui.PeerSummary
	order    []string
}

func newCallTracker(roomID, link string, frames *frameCounter) *callTracker {
	return &callTracker{
		roomID: roomID,
		link:   link,
		frames: frames,
		start:  time.Now(),
		peak:   1,
		peers:  make(map[string]*ui.PeerSummary),
	}
}

func (t *callTracker) observe(st mesh.State) ui.Snapshot {
	t.peak = max(t.peak, st.ParticipantCount)
	t.messages = len(st.Chat)

	for _, p := range st.Participants {
		ps, ok := t.peers[p.UserID]
		if !ok {
			ps = &ui.PeerSummary{}
			t.peers[p.UserID] = ps
			t.order = append(t.order, p.UserID)
		}
		ps.Name = p.UserName
		if p.State == peer.Secure {
			ps.Encrypted = true
		}
	}

	return toSnapshot(st, t.link, t.frames.Count)
}

func (t *callTracker) summary(status string) ui.CallSummary {
	s := ui.CallSummary{
		Status:       status,
		RoomID:       t.roomID,
		Duration:     utils.FormatTimeDuration(time.Since(t.start)),
		Participants: t.peak,
		Messages:     t.messages,
	}
	for _, id := range t.order {
		ps := *t.peers[id]
		ps.Frames = t.frames.Count(id)
		s.Peers = append(s.Peers, ps)
	}
	return s
}

// toSnapshot converts coordinator state into the UI model.
func toSnapshot(st mesh.State, link string, frames func(userID string) int) ui.Snapshot {
	s := ui.Snapshot{
		RoomID:   st.RoomID,
		RoomLink: link,
		UserName: st.UserName,
		Host:     st.IsHost,
		Muted:    st.Muted,
		VideoOn:  st.VideoEnabled,
		Sharing:  st.Sharing,
		Count:    st.ParticipantCount,
		Unread:   st.Unread,
		Notice:   st.Notice,
	}

	switch {
	case st.ScreenSharer == "":
	case st.ScreenSharer == st.SelfID:
		s.Sharer = "You"
	default:
		if p, ok := st.Participant(st.ScreenSharer); ok {
			s.Sharer = p.UserName
		}
	}

	for _, p := range st.Participants {
		s.Peers = append(s.Peers, ui.Peer{
			ID:      p.UserID,
			Name:    p.UserName,
			Status:  p.State.String(),
			Secure:  p.State == peer.Secure,
			Muted:   p.IsMuted,
			Sharing: p.IsScreenSharing,
			Host:    p.IsHost,
			Frames:  frames(p.UserID),
		})
	}

	for _, m := range st.Chat {
		s.Chat = append(s.Chat, ui.ChatLine{
			From: m.UserName,
			Text: m.Text,
			Mine: m.Sender == chat.SenderMe,
			Time: m.Time,
		})
	}

	return s
}

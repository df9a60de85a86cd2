package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/BioHazard786/warpcall/internal/config"
	"github.com/BioHazard786/warpcall/internal/utils"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"
	"go.uber.org/zap"
)

const (
	streamID = "warpcall"

	// Side-channel reliability, same as the web client.
	chatMaxRetransmits = 30

	audioMaxLate = 16
	videoMaxLate = 128
)

// NewPeerConnection builds a pion peer connection with the configured ICE
// servers. Relay-only policy is used when forced or when the host looks
// like it sits behind a VPN or CGNAT.
func NewPeerConnection(cfg *config.Config) (*pion.PeerConnection, error) {
	iceServers := []pion.ICEServer{{URLs: cfg.GetSTUNServers()}}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || utils.ShouldForceRelay()) {
		policy = pion.ICETransportPolicyRelay
	}

	pc, err := pion.NewPeerConnection(pion.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	return pc, nil
}

// NewPionFactory returns a Factory producing pion transports.
func NewPionFactory(cfg *config.Config, logger *zap.Logger) Factory {
	return func(initiator bool, ev Events) (Transport, error) {
		return NewPion(cfg, initiator, ev, logger)
	}
}

// Pion is a Transport over a pion PeerConnection.
type Pion struct {
	pc          *pion.PeerConnection
	audio       *pion.TrackLocalStaticSample
	camera      *pion.TrackLocalStaticSample
	screen      *pion.TrackLocalStaticSample
	videoSender *pion.RTPSender
	chat        *pion.DataChannel

	mu           sync.Mutex
	screenActive atomic.Bool

	ev          Events
	connectOnce sync.Once
	closeOnce   sync.Once
	logger      *zap.Logger
}

// NewPion creates the peer connection and attaches the outgoing tracks. The
// initiator declares the chat channel up front so the offer carries an
// SCTP section; it is handed out by CreateChannel once connected.
func NewPion(cfg *config.Config, initiator bool, ev Events, logger *zap.Logger) (*Pion, error) {
	pc, err := NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}

	t := &Pion{pc: pc, ev: ev, logger: logger}

	if err := t.addTracks(); err != nil {
		_ = pc.Close()
		return nil, err
	}

	if initiator {
		t.chat, err = createDataChannel(pc, ChatLabel)
		if err != nil {
			_ = pc.Close()
			return nil, err
		}
	}

	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		t.logger.Debug("peer connection state", zap.String("state", state.String()))
		switch state {
		case pion.PeerConnectionStateConnected:
			t.connectOnce.Do(func() {
				if t.ev.OnConnect != nil {
					t.ev.OnConnect()
				}
			})
		case pion.PeerConnectionStateFailed:
			t.fail(errors.New("peer connection failed"))
		case pion.PeerConnectionStateClosed:
			t.fail(ErrClosed)
		}
	})

	pc.OnDataChannel(func(dc *pion.DataChannel) {
		if t.ev.OnChannel != nil {
			t.ev.OnChannel(&dataChannel{dc: dc})
		}
	})

	pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		reader, kind, err := newTrackReader(track)
		if err != nil {
			t.logger.Warn("ignoring remote track", zap.Error(err))
			return
		}
		if t.ev.OnTrack != nil {
			t.ev.OnTrack(kind, reader)
		}
	})

	return t, nil
}

func (t *Pion) addTracks() error {
	var err error

	t.audio, err = pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{
		MimeType:    pion.MimeTypeOpus,
		ClockRate:   48000,
		Channels:    2,
		SDPFmtpLine: "minptime=10;useinbandfec=1",
	}, "audio", streamID)
	if err != nil {
		return fmt.Errorf("create audio track: %w", err)
	}

	videoCaps := pion.RTPCodecCapability{MimeType: pion.MimeTypeVP8, ClockRate: 90000}
	t.camera, err = pion.NewTrackLocalStaticSample(videoCaps, "video", streamID)
	if err != nil {
		return fmt.Errorf("create camera track: %w", err)
	}
	t.screen, err = pion.NewTrackLocalStaticSample(videoCaps, "screen", streamID)
	if err != nil {
		return fmt.Errorf("create screen track: %w", err)
	}

	audioSender, err := t.pc.AddTrack(t.audio)
	if err != nil {
		return fmt.Errorf("add audio track: %w", err)
	}
	t.videoSender, err = t.pc.AddTrack(t.camera)
	if err != nil {
		return fmt.Errorf("add video track: %w", err)
	}

	go drainRTCP(audioSender)
	go drainRTCP(t.videoSender)
	return nil
}

// drainRTCP keeps interceptors running for a sender.
func drainRTCP(sender *pion.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func createDataChannel(pc *pion.PeerConnection, label string) (*pion.DataChannel, error) {
	ordered := true
	maxRetransmits := uint16(chatMaxRetransmits)

	dc, err := pc.CreateDataChannel(label, &pion.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &maxRetransmits,
	})
	if err != nil {
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	return dc, nil
}

func (t *Pion) Offer(ctx context.Context) (Signal, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return Signal{}, fmt.Errorf("create offer: %w", err)
	}
	return t.setLocal(ctx, offer)
}

func (t *Pion) HandleSignal(ctx context.Context, sig Signal) (*Signal, error) {
	switch sig.Type {
	case SignalOffer:
		if err := t.pc.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: sig.SDP}); err != nil {
			return nil, fmt.Errorf("set remote description: %w", err)
		}
		answer, err := t.pc.CreateAnswer(nil)
		if err != nil {
			return nil, fmt.Errorf("create answer: %w", err)
		}
		local, err := t.setLocal(ctx, answer)
		if err != nil {
			return nil, err
		}
		return &local, nil

	case SignalAnswer:
		if err := t.pc.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: sig.SDP}); err != nil {
			return nil, fmt.Errorf("set remote description: %w", err)
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedSignal, sig.Type)
	}
}

// setLocal applies desc and waits for candidate gathering so the whole
// description goes out in one signal.
func (t *Pion) setLocal(ctx context.Context, desc pion.SessionDescription) (Signal, error) {
	gatherComplete := pion.GatheringCompletePromise(t.pc)

	if err := t.pc.SetLocalDescription(desc); err != nil {
		return Signal{}, fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return Signal{}, ctx.Err()
	}

	local := t.pc.LocalDescription()
	return Signal{Type: local.Type.String(), SDP: local.SDP}, nil
}

func (t *Pion) CreateChannel(label string) (Channel, error) {
	if label == ChatLabel {
		if t.chat == nil {
			return nil, ErrChannelNotDeclared
		}
		return &dataChannel{dc: t.chat}, nil
	}

	dc, err := createDataChannel(t.pc, label)
	if err != nil {
		return nil, err
	}
	return &dataChannel{dc: dc}, nil
}

func (t *Pion) WriteAudio(s media.Sample) error {
	return t.audio.WriteSample(s)
}

func (t *Pion) WriteVideo(s media.Sample) error {
	if t.screenActive.Load() {
		return t.screen.WriteSample(s)
	}
	return t.camera.WriteSample(s)
}

func (t *Pion) UseScreenTrack(screen bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.screenActive.Load() == screen {
		return nil
	}

	track := t.camera
	if screen {
		track = t.screen
	}
	if err := t.videoSender.ReplaceTrack(track); err != nil {
		return fmt.Errorf("replace video track: %w", err)
	}
	t.screenActive.Store(screen)
	return nil
}

func (t *Pion) fail(err error) {
	t.closeOnce.Do(func() {
		if t.ev.OnClose != nil {
			t.ev.OnClose(err)
		}
	})
}

func (t *Pion) Close() error {
	return t.pc.Close()
}

type dataChannel struct {
	dc *pion.DataChannel
}

func (c *dataChannel) Label() string              { return c.dc.Label() }
func (c *dataChannel) Send(data []byte) error     { return c.dc.Send(data) }
func (c *dataChannel) SendText(text string) error { return c.dc.SendText(text) }
func (c *dataChannel) OnOpen(f func())            { c.dc.OnOpen(f) }
func (c *dataChannel) Close() error               { return c.dc.Close() }

func (c *dataChannel) OnMessage(f func(data []byte, isString bool)) {
	c.dc.OnMessage(func(msg pion.DataChannelMessage) {
		f(msg.Data, msg.IsString)
	})
}

// trackReader reassembles RTP packets of a remote track into frames.
type trackReader struct {
	track   *pion.TrackRemote
	builder *samplebuilder.SampleBuilder
}

func newTrackReader(track *pion.TrackRemote) (*trackReader, Kind, error) {
	codec := track.Codec()

	var (
		depacketizer rtp.Depacketizer
		maxLate      uint16
		kind         Kind
	)
	switch {
	case strings.EqualFold(codec.MimeType, pion.MimeTypeOpus):
		depacketizer, maxLate, kind = &codecs.OpusPacket{}, audioMaxLate, KindAudio
	case strings.EqualFold(codec.MimeType, pion.MimeTypeVP8):
		depacketizer, maxLate, kind = &codecs.VP8Packet{}, videoMaxLate, KindVideo
	case strings.EqualFold(codec.MimeType, pion.MimeTypeVP9):
		depacketizer, maxLate, kind = &codecs.VP9Packet{}, videoMaxLate, KindVideo
	case strings.EqualFold(codec.MimeType, pion.MimeTypeH264):
		depacketizer, maxLate, kind = &codecs.H264Packet{}, videoMaxLate, KindVideo
	default:
		return nil, "", fmt.Errorf("unsupported codec %s", codec.MimeType)
	}

	return &trackReader{
		track:   track,
		builder: samplebuilder.New(maxLate, depacketizer, codec.ClockRate),
	}, kind, nil
}

func (r *trackReader) ReadFrame() ([]byte, error) {
	for {
		if sample := r.builder.Pop(); sample != nil {
			return sample.Data, nil
		}
		pkt, _, err := r.track.ReadRTP()
		if err != nil {
			return nil, err
		}
		r.builder.Push(pkt)
	}
}

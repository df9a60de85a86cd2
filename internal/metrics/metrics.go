package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// Frame cipher
	FramesEncrypted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warpcall_frames_encrypted_total",
		Help: "Media frames encrypted before sending",
	}, []string{"kind"})

	FramesDecrypted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warpcall_frames_decrypted_total",
		Help: "Media frames decrypted after receiving",
	}, []string{"kind"})

	FramesPassedThrough = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warpcall_frames_passthrough_total",
		Help: "Frames forwarded in clear because no key was active",
	}, []string{"direction"})

	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warpcall_frames_dropped_total",
		Help: "Frames dropped by the frame cipher",
	}, []string{"direction", "reason"})

	// Key exchange
	KeyExchanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warpcall_key_exchanges_total",
		Help: "Per-peer key agreements by result",
	}, []string{"result"})

	// Sessions
	PeerSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "warpcall_peer_sessions_active",
		Help: "Peer sessions currently open",
	})

	PeerSessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warpcall_peer_session_transitions_total",
		Help: "Peer session state transitions",
	}, []string{"state"})

	// Relay
	RelayEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warpcall_relay_events_total",
		Help: "Relay events by type and direction",
	}, []string{"direction", "type"})

	ChatMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warpcall_chat_messages_total",
		Help: "Chat messages sent and received",
	}, []string{"direction"})
)

func RecordFrameEncrypted(kind string) {
	FramesEncrypted.WithLabelValues(kind).Inc()
}

func RecordFrameDecrypted(kind string) {
	FramesDecrypted.WithLabelValues(kind).Inc()
}

func RecordPassThrough(direction string) {
	FramesPassedThrough.WithLabelValues(direction).Inc()
}

func RecordFrameDropped(direction, reason string) {
	FramesDropped.WithLabelValues(direction, reason).Inc()
}

func RecordKeyExchange(success bool) {
	if success {
		KeyExchanges.WithLabelValues("success").Inc()
	} else {
		KeyExchanges.WithLabelValues("failure").Inc()
	}
}

func RecordTransition(state string) {
	PeerSessionTransitions.WithLabelValues(state).Inc()
}

func RecordRelayEvent(direction, eventType string) {
	RelayEvents.WithLabelValues(direction, eventType).Inc()
}

func RecordChat(direction string) {
	ChatMessages.WithLabelValues(direction).Inc()
}

// Server exposes the default registry over HTTP.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

func NewServer(addr string, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.Info("metrics server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

package localmedia

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/pion/webrtc/v4/pkg/media"
)

// Source produces captured frames until it is closed or the device ends
// the capture, after which ReadFrame returns io.EOF.
type Source interface {
	ReadFrame() (media.Sample, error)
	Close() error
}

// Capturer opens local capture devices.
type Capturer interface {
	OpenMicrophone() (Source, error)
	OpenCamera() (Source, error)
	// OpenDisplay returns call.ErrScreenShareNotAvail when the platform
	// cannot capture the screen.
	OpenDisplay() (Source, error)
}

// SyntheticOptions configures SyntheticCapturer.
type SyntheticOptions struct {
	VideoFPS   int
	AudioFrame time.Duration
	Screen     bool
	// ScreenDuration ends display captures on their own after this long.
	// Zero means they run until closed.
	ScreenDuration time.Duration
	// FailCamera makes OpenCamera fail.
	FailCamera bool
}

// SyntheticCapturer generates placeholder frames at real-time pace. It
// stands in for camera, microphone and display acquisition.
type SyntheticCapturer struct {
	opts SyntheticOptions
}

func NewSyntheticCapturer(opts SyntheticOptions) *SyntheticCapturer {
	if opts.VideoFPS <= 0 {
		opts.VideoFPS = 30
	}
	if opts.AudioFrame <= 0 {
		opts.AudioFrame = 20 * time.Millisecond
	}
	return &SyntheticCapturer{opts: opts}
}

func (c *SyntheticCapturer) OpenMicrophone() (Source, error) {
	return newTickerSource('A', c.opts.AudioFrame, 160, 0), nil
}

func (c *SyntheticCapturer) OpenCamera() (Source, error) {
	if c.opts.FailCamera {
		return nil, call.ErrCaptureUnavailable
	}
	return newTickerSource('C', time.Second/time.Duration(c.opts.VideoFPS), 1200, 0), nil
}

func (c *SyntheticCapturer) OpenDisplay() (Source, error) {
	if !c.opts.Screen {
		return nil, call.ErrScreenShareNotAvail
	}
	return newTickerSource('S', time.Second/time.Duration(c.opts.VideoFPS), 1200, c.opts.ScreenDuration), nil
}

type tickerSource struct {
	tag      byte
	size     int
	interval time.Duration
	ticker   *time.Ticker
	deadline <-chan time.Time
	seq      uint32

	once sync.Once
	done chan struct{}
}

func newTickerSource(tag byte, interval time.Duration, size int, lifetime time.Duration) *tickerSource {
	s := &tickerSource{
		tag:      tag,
		size:     size,
		interval: interval,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
	}
	if lifetime > 0 {
		s.deadline = time.After(lifetime)
	}
	return s
}

func (s *tickerSource) ReadFrame() (media.Sample, error) {
	select {
	case <-s.done:
		return media.Sample{}, io.EOF
	case <-s.deadline:
		_ = s.Close()
		return media.Sample{}, io.EOF
	case <-s.ticker.C:
	}

	s.seq++
	frame := make([]byte, s.size)
	frame[0] = s.tag
	binary.BigEndian.PutUint32(frame[1:5], s.seq)
	return media.Sample{Data: frame, Duration: s.interval}, nil
}

func (s *tickerSource) Close() error {
	s.once.Do(func() {
		s.ticker.Stop()
		close(s.done)
	})
	return nil
}

// IsEnded reports whether err means the source stopped producing frames.
func IsEnded(err error) bool {
	return errors.Is(err, io.EOF)
}

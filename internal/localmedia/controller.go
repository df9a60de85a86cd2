// Package localmedia owns local capture and fans frames out to every peer
// session. Mute and camera toggles act in place; screen sharing swaps the
// outgoing video source on every sender without renegotiation.
package localmedia

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/zap"
)

// Sender is the per-peer outgoing media path.
type Sender interface {
	WriteAudio(s media.Sample) error
	WriteVideo(s media.Sample) error
	UseScreenTrack(screen bool) error
}

// Controller manages the local capture stream.
type Controller struct {
	capturer Capturer
	logger   *zap.Logger

	// mu guards the sender map and screen share state. Track substitution
	// happens under it so a peer added mid-switch sees a consistent source.
	mu      sync.Mutex
	senders map[string]Sender
	display Source
	sharing bool

	muted        atomic.Bool
	videoOff     atomic.Bool
	screenActive atomic.Bool

	mic    Source
	camera Source

	onScreenEnded func()
	wg            sync.WaitGroup
}

func NewController(capturer Capturer, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		capturer: capturer,
		logger:   logger,
		senders:  make(map[string]Sender),
	}
}

// OnScreenEnded registers f to run when the platform ends a screen capture
// that was not stopped through StopScreenShare.
func (c *Controller) OnScreenEnded(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onScreenEnded = f
}

// Start opens microphone and camera. Failure is fatal to call setup.
func (c *Controller) Start() error {
	mic, err := c.capturer.OpenMicrophone()
	if err != nil {
		return call.WrapError("open microphone", call.ErrCaptureUnavailable, err.Error())
	}
	camera, err := c.capturer.OpenCamera()
	if err != nil {
		_ = mic.Close()
		return call.WrapError("open camera", call.ErrCaptureUnavailable, err.Error())
	}
	c.mic, c.camera = mic, camera

	c.wg.Add(2)
	go c.pumpAudio(mic)
	go c.pumpCamera(camera)
	return nil
}

// Stop closes every capture source and waits for the pumps.
func (c *Controller) Stop() {
	c.mu.Lock()
	display := c.display
	c.display = nil
	c.sharing = false
	c.mu.Unlock()

	for _, src := range []Source{c.mic, c.camera, display} {
		if src != nil {
			_ = src.Close()
		}
	}
	c.wg.Wait()
}

func (c *Controller) AddSender(id string, s Sender) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.senders[id] = s
	if c.sharing {
		if err := s.UseScreenTrack(true); err != nil {
			c.logger.Warn("switch new peer to screen", zap.String("peer", id), zap.Error(err))
		}
	}
}

func (c *Controller) RemoveSender(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.senders, id)
}

func (c *Controller) SenderCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.senders)
}

// SetMuted disables or enables audio in place. Reports whether it changed.
func (c *Controller) SetMuted(muted bool) bool {
	return c.muted.Swap(muted) != muted
}

func (c *Controller) Muted() bool { return c.muted.Load() }

// SetVideoEnabled turns the camera feed on or off. Not allowed while
// sharing the screen.
func (c *Controller) SetVideoEnabled(enabled bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sharing {
		return false, call.ErrScreenShareActive
	}
	return c.videoOff.Swap(!enabled) != !enabled, nil
}

func (c *Controller) VideoEnabled() bool { return !c.videoOff.Load() }

func (c *Controller) Sharing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sharing
}

// StartScreenShare captures the display and substitutes it for the camera
// on every sender. Reports whether sharing started; starting twice is a
// no-op.
func (c *Controller) StartScreenShare() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sharing {
		return false, nil
	}

	src, err := c.capturer.OpenDisplay()
	if err != nil {
		return false, fmt.Errorf("open display: %w", err)
	}

	for id, s := range c.senders {
		if err := s.UseScreenTrack(true); err != nil {
			c.logger.Warn("switch peer to screen", zap.String("peer", id), zap.Error(err))
		}
	}
	c.display = src
	c.sharing = true
	c.screenActive.Store(true)

	c.wg.Add(1)
	go c.pumpDisplay(src)
	return true, nil
}

// StopScreenShare puts the camera back on every sender. Reports whether
// sharing was active.
func (c *Controller) StopScreenShare() bool {
	c.mu.Lock()
	if !c.sharing {
		c.mu.Unlock()
		return false
	}

	src := c.display
	c.display = nil
	c.sharing = false
	c.screenActive.Store(false)
	for id, s := range c.senders {
		if err := s.UseScreenTrack(false); err != nil {
			c.logger.Warn("switch peer to camera", zap.String("peer", id), zap.Error(err))
		}
	}
	c.mu.Unlock()

	if src != nil {
		_ = src.Close()
	}
	return true
}

func (c *Controller) snapshot() []Sender {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Sender, 0, len(c.senders))
	for _, s := range c.senders {
		out = append(out, s)
	}
	return out
}

func (c *Controller) pumpAudio(src Source) {
	defer c.wg.Done()
	for {
		sample, err := src.ReadFrame()
		if err != nil {
			return
		}
		if c.muted.Load() {
			continue
		}
		for _, s := range c.snapshot() {
			if err := s.WriteAudio(sample); err != nil {
				c.logger.Debug("write audio", zap.Error(err))
			}
		}
	}
}

func (c *Controller) pumpCamera(src Source) {
	defer c.wg.Done()
	for {
		sample, err := src.ReadFrame()
		if err != nil {
			return
		}
		if c.videoOff.Load() || c.screenActive.Load() {
			continue
		}
		c.writeVideo(sample)
	}
}

func (c *Controller) pumpDisplay(src Source) {
	defer c.wg.Done()
	for {
		sample, err := src.ReadFrame()
		if err != nil {
			c.mu.Lock()
			ended := c.display == src
			f := c.onScreenEnded
			c.mu.Unlock()

			if ended && IsEnded(err) {
				c.logger.Info("screen capture ended by platform")
				if f != nil {
					f()
				}
			}
			return
		}
		if !c.screenActive.Load() {
			continue
		}
		c.writeVideo(sample)
	}
}

func (c *Controller) writeVideo(sample media.Sample) {
	for _, s := range c.snapshot() {
		if err := s.WriteVideo(sample); err != nil {
			c.logger.Debug("write video", zap.Error(err))
		}
	}
}

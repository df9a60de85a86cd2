// Package transporttest provides an in-memory transport.Transport for tests.
// Transports created from one Network pair up through the signals they
// exchange, exactly like real descriptions travelling over the relay.
package transporttest

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/BioHazard786/warpcall/internal/transport"
	"github.com/pion/webrtc/v4/pkg/media"
)

// Network links fake transports by id.
type Network struct {
	mu         sync.Mutex
	nextID     int
	transports map[string]*Transport
	all        []*Transport
}

func NewNetwork() *Network {
	return &Network{transports: make(map[string]*Transport)}
}

// Factory returns a transport.Factory bound to this network.
func (n *Network) Factory() transport.Factory {
	return func(initiator bool, ev transport.Events) (transport.Transport, error) {
		return n.New(initiator, ev), nil
	}
}

func (n *Network) New(initiator bool, ev transport.Events) *Transport {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	t := &Transport{
		id:        fmt.Sprintf("fake-%d", n.nextID),
		network:   n,
		initiator: initiator,
		ev:        ev,
		done:      make(chan struct{}),
	}
	n.transports[t.id] = t
	n.all = append(n.all, t)
	return t
}

// Transports returns every transport created so far.
func (n *Network) Transports() []*Transport {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Transport(nil), n.all...)
}

func (n *Network) lookup(id string) *Transport {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.transports[id]
}

// Transport is an in-memory transport.Transport.
type Transport struct {
	id        string
	network   *Network
	initiator bool
	ev        transport.Events

	mu       sync.Mutex
	remote   *Transport
	audioIn  *frameQueue
	videoIn  *frameQueue
	channels []*channel

	screen    atomic.Bool
	offers    atomic.Int32
	swaps     atomic.Int32
	cameraOut atomic.Int32
	screenOut atomic.Int32
	audioOut  atomic.Int32

	closeOnce sync.Once
	done      chan struct{}
}

func (t *Transport) ID() string { return t.id }

func (t *Transport) Initiator() bool { return t.initiator }

// Offers reports how many offers were produced. Track swaps never add one.
func (t *Transport) Offers() int { return int(t.offers.Load()) }

// Swaps reports how many times the outgoing video source changed.
func (t *Transport) Swaps() int { return int(t.swaps.Load()) }

// ScreenActive reports whether the screen track is the outgoing video.
func (t *Transport) ScreenActive() bool { return t.screen.Load() }

// CameraFrames, ScreenFrames and AudioFrames count delivered writes.
func (t *Transport) CameraFrames() int { return int(t.cameraOut.Load()) }
func (t *Transport) ScreenFrames() int { return int(t.screenOut.Load()) }
func (t *Transport) AudioFrames() int  { return int(t.audioOut.Load()) }

func (t *Transport) Offer(ctx context.Context) (transport.Signal, error) {
	if err := t.alive(); err != nil {
		return transport.Signal{}, err
	}
	t.offers.Add(1)
	return transport.Signal{Type: transport.SignalOffer, SDP: t.id}, nil
}

func (t *Transport) HandleSignal(ctx context.Context, sig transport.Signal) (*transport.Signal, error) {
	if err := t.alive(); err != nil {
		return nil, err
	}

	remote := t.network.lookup(sig.SDP)
	if remote == nil {
		return nil, fmt.Errorf("unknown description %q", sig.SDP)
	}

	switch sig.Type {
	case transport.SignalOffer:
		t.link(remote)
		return &transport.Signal{Type: transport.SignalAnswer, SDP: t.id}, nil
	case transport.SignalAnswer:
		t.link(remote)
		remote.connect()
		t.connect()
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", transport.ErrUnexpectedSignal, sig.Type)
	}
}

func (t *Transport) link(remote *Transport) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remote = remote
}

func (t *Transport) peer() *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remote
}

func (t *Transport) connect() {
	t.mu.Lock()
	t.audioIn = newFrameQueue(t.done)
	t.videoIn = newFrameQueue(t.done)
	audio, video := t.audioIn, t.videoIn
	t.mu.Unlock()

	go func() {
		if t.ev.OnConnect != nil {
			t.ev.OnConnect()
		}
		if t.ev.OnTrack != nil {
			t.ev.OnTrack(transport.KindAudio, audio)
			t.ev.OnTrack(transport.KindVideo, video)
		}
	}()
}

func (t *Transport) CreateChannel(label string) (transport.Channel, error) {
	if err := t.alive(); err != nil {
		return nil, err
	}
	remote := t.peer()
	if remote == nil {
		return nil, transport.ErrNotConnected
	}

	local, far := newChannelPair(label, t.done, remote.done)
	t.mu.Lock()
	t.channels = append(t.channels, local)
	t.mu.Unlock()
	remote.mu.Lock()
	remote.channels = append(remote.channels, far)
	remote.mu.Unlock()

	go func() {
		if remote.ev.OnChannel != nil {
			remote.ev.OnChannel(far)
		}
		far.open()
		local.open()
	}()
	return local, nil
}

func (t *Transport) WriteAudio(s media.Sample) error {
	if err := t.alive(); err != nil {
		return err
	}
	t.audioOut.Add(1)
	if remote := t.peer(); remote != nil {
		remote.deliver(transport.KindAudio, s.Data)
	}
	return nil
}

func (t *Transport) WriteVideo(s media.Sample) error {
	if err := t.alive(); err != nil {
		return err
	}
	if t.screen.Load() {
		t.screenOut.Add(1)
	} else {
		t.cameraOut.Add(1)
	}
	if remote := t.peer(); remote != nil {
		remote.deliver(transport.KindVideo, s.Data)
	}
	return nil
}

func (t *Transport) deliver(kind transport.Kind, frame []byte) {
	t.mu.Lock()
	q := t.videoIn
	if kind == transport.KindAudio {
		q = t.audioIn
	}
	t.mu.Unlock()
	if q != nil {
		q.push(append([]byte(nil), frame...))
	}
}

// Inject delivers a raw frame to this transport's inbound stream, as if the
// peer had sent it.
func (t *Transport) Inject(kind transport.Kind, frame []byte) {
	t.deliver(kind, frame)
}

func (t *Transport) UseScreenTrack(screen bool) error {
	if err := t.alive(); err != nil {
		return err
	}
	if t.screen.Swap(screen) != screen {
		t.swaps.Add(1)
	}
	return nil
}

// Fail simulates a transport error.
func (t *Transport) Fail(err error) {
	t.shutdown(err)
}

func (t *Transport) Close() error {
	t.shutdown(transport.ErrClosed)
	return nil
}

func (t *Transport) Closed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *Transport) shutdown(err error) {
	t.closeOnce.Do(func() {
		close(t.done)
		if t.ev.OnClose != nil {
			go t.ev.OnClose(err)
		}
		if remote := t.peer(); remote != nil {
			go remote.shutdown(transport.ErrClosed)
		}
	})
}

func (t *Transport) alive() error {
	if t.Closed() {
		return transport.ErrClosed
	}
	return nil
}

// frameQueue is an unbounded ordered frame stream.
type frameQueue struct {
	mu     sync.Mutex
	frames [][]byte
	signal chan struct{}
	done   <-chan struct{}
}

func newFrameQueue(done <-chan struct{}) *frameQueue {
	return &frameQueue{signal: make(chan struct{}, 1), done: done}
}

func (q *frameQueue) push(frame []byte) {
	q.mu.Lock()
	q.frames = append(q.frames, frame)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *frameQueue) ReadFrame() ([]byte, error) {
	for {
		q.mu.Lock()
		if len(q.frames) > 0 {
			frame := q.frames[0]
			q.frames = q.frames[1:]
			q.mu.Unlock()
			return frame, nil
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-q.done:
			return nil, io.EOF
		}
	}
}

type message struct {
	data     []byte
	isString bool
}

// channel is one end of an in-memory data channel. Messages are delivered
// in order on a dedicated goroutine.
type channel struct {
	label string
	far   *channel
	inbox chan message
	done  <-chan struct{}

	mu        sync.Mutex
	onOpen    func()
	onMessage func([]byte, bool)
	opened    bool
	started   bool
}

func newChannelPair(label string, localDone, remoteDone <-chan struct{}) (*channel, *channel) {
	a := &channel{label: label, inbox: make(chan message, 256), done: localDone}
	b := &channel{label: label, inbox: make(chan message, 256), done: remoteDone}
	a.far, b.far = b, a
	return a, b
}

func (c *channel) Label() string { return c.label }

func (c *channel) Send(data []byte) error {
	return c.far.receive(message{data: append([]byte(nil), data...)})
}

func (c *channel) SendText(text string) error {
	return c.far.receive(message{data: []byte(text), isString: true})
}

func (c *channel) receive(m message) error {
	select {
	case <-c.done:
		return transport.ErrClosed
	case c.inbox <- m:
		return nil
	}
}

func (c *channel) OnOpen(f func()) {
	c.mu.Lock()
	c.onOpen = f
	opened := c.opened
	c.mu.Unlock()
	if opened && f != nil {
		go f()
	}
}

func (c *channel) OnMessage(f func([]byte, bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = f
	if !c.started {
		c.started = true
		go c.dispatch()
	}
}

func (c *channel) open() {
	c.mu.Lock()
	c.opened = true
	f := c.onOpen
	c.mu.Unlock()
	if f != nil {
		f()
	}
}

func (c *channel) dispatch() {
	for {
		select {
		case <-c.done:
			return
		case m := <-c.inbox:
			c.mu.Lock()
			f := c.onMessage
			c.mu.Unlock()
			if f != nil {
				f(m.data, m.isString)
			}
		}
	}
}

func (c *channel) Close() error { return nil }

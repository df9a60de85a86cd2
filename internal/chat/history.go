package chat

import (
	"sync"
	"time"
)

// Sender labels who wrote a message.
type Sender string

const (
	SenderMe   Sender = "me"
	SenderPeer Sender = "peer"
)

// Message is one entry of the chat history.
type Message struct {
	Text     string
	Sender   Sender
	UserName string
	Time     time.Time
}

// History keeps the ordered in-memory chat log and an unread counter.
type History struct {
	mu       sync.Mutex
	messages []Message
	unread   int
	open     bool
	now      func() time.Time
}

func NewHistory() *History {
	return &History{now: time.Now}
}

// AddLocal records a message the local participant sent.
func (h *History) AddLocal(text string) Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	m := Message{Text: text, Sender: SenderMe, UserName: "You", Time: h.now()}
	h.messages = append(h.messages, m)
	return m
}

// AddRemote records a message received from a peer. Falls back to the
// peer's known name, then "User", when the envelope carries none.
func (h *History) AddRemote(env Envelope, peerName string) Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	name := env.UserName
	if name == "" {
		name = peerName
	}
	if name == "" {
		name = "User"
	}

	m := Message{Text: env.Message, Sender: SenderPeer, UserName: name, Time: h.now()}
	h.messages = append(h.messages, m)
	if !h.open {
		h.unread++
	}
	return m
}

// SetOpen marks the chat view as visible. Opening clears the unread count.
func (h *History) SetOpen(open bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.open = open
	if open {
		h.unread = 0
	}
}

func (h *History) Unread() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unread
}

// Messages returns a copy of the log.
func (h *History) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

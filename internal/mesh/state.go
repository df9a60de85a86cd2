package mesh

import (
	"sort"

	"github.com/BioHazard786/warpcall/internal/chat"
	"github.com/BioHazard786/warpcall/internal/peer"
)

// Participant is a read-only view of one remote peer.
type Participant struct {
	UserID     string
	UserName   string
	ClientType string
	State      peer.State
	Initiator  bool

	IsMuted         bool
	IsScreenSharing bool
	IsHost          bool

	Encryptable bool
	ChannelOpen bool
}

// State is an immutable snapshot of the call.
type State struct {
	RoomID   string
	SelfID   string
	UserName string

	IsHost       bool
	Muted        bool
	VideoEnabled bool
	Sharing      bool

	// ScreenSharer is the user id currently sharing, ours included.
	ScreenSharer string

	ParticipantCount int
	Participants     []Participant

	Chat   []chat.Message
	Unread int

	// Notice is the last message from the relay worth showing.
	Notice string
}

// Participant returns the peer with userID, if present.
func (s State) Participant(userID string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

func (c *Coordinator) state() State {
	st := State{
		RoomID:           c.roomID,
		SelfID:           c.selfID,
		UserName:         c.userName,
		IsHost:           c.isHost,
		Muted:            c.media.Muted(),
		VideoEnabled:     c.media.VideoEnabled(),
		Sharing:          c.media.Sharing(),
		ScreenSharer:     c.sharingID,
		ParticipantCount: 1 + len(c.sessions),
		Participants:     make([]Participant, 0, len(c.sessions)),
		Chat:             c.history.Messages(),
		Unread:           c.history.Unread(),
		Notice:           c.notice,
	}

	for _, s := range c.sessions {
		st.Participants = append(st.Participants, Participant{
			UserID:          s.UserID,
			UserName:        s.UserName,
			ClientType:      s.ClientType,
			State:           s.State(),
			Initiator:       s.Initiator,
			IsMuted:         s.IsMuted,
			IsScreenSharing: s.IsScreenSharing,
			IsHost:          s.IsHost,
			Encryptable:     s.Encryptable(),
			ChannelOpen:     s.ChannelOpen(),
		})
	}
	sort.Slice(st.Participants, func(i, j int) bool {
		a, b := st.Participants[i], st.Participants[j]
		if a.UserName != b.UserName {
			return a.UserName < b.UserName
		}
		return a.UserID < b.UserID
	})

	return st
}

// publish replaces any unread snapshot with the current one.
func (c *Coordinator) publish() {
	st := c.state()
	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- st:
	default:
	}
}

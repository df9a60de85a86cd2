package ui

import (
	"strings"
	"time"
)

// Peer is one remote participant as shown in the roster.
type Peer struct {
	ID      string
	Name    string
	Status  string
	Secure  bool
	Muted   bool
	Sharing bool
	Host    bool
	Frames  int
}

// ChatLine is one rendered chat entry.
type ChatLine struct {
	From string
	Text string
	Mine bool
	Time time.Time
}

// Snapshot is everything the call view renders.
type Snapshot struct {
	RoomID   string
	RoomLink string
	UserName string

	Host    bool
	Muted   bool
	VideoOn bool
	Sharing bool

	// Sharer is the display name of whoever shares their screen.
	Sharer string

	Count  int
	Peers  []Peer
	Chat   []ChatLine
	Unread int
	Notice string
}

// FindPeer resolves a name or id typed by the user. Names match without
// regard to case; an id prefix of at least four characters also matches.
func (s Snapshot) FindPeer(query string) (Peer, bool) {
	for _, p := range s.Peers {
		if p.ID == query || strings.EqualFold(p.Name, query) {
			return p, true
		}
	}
	if len(query) >= 4 {
		for _, p := range s.Peers {
			if strings.HasPrefix(p.ID, query) {
				return p, true
			}
		}
	}
	return Peer{}, false
}

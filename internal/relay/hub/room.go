package hub

// Room is a set of participants sharing a room code.
type Room struct {
	ID string

	// Members in join order; the head takes over as host.
	Members []*Client

	HostID    string
	SharingID string
}

func (r *Room) add(c *Client) {
	r.Members = append(r.Members, c)
}

func (r *Room) remove(c *Client) {
	for i, m := range r.Members {
		if m == c {
			r.Members = append(r.Members[:i], r.Members[i+1:]...)
			return
		}
	}
}

func (r *Room) find(id string) *Client {
	for _, m := range r.Members {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// others returns every member except c.
func (r *Room) others(c *Client) []*Client {
	out := make([]*Client, 0, len(r.Members))
	for _, m := range r.Members {
		if m != c {
			out = append(out, m)
		}
	}
	return out
}

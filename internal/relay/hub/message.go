package hub

import "github.com/BioHazard786/warpcall/internal/relay"

// Message is an envelope received from a client.
type Message struct {
	relay.Envelope

	// client is the client that sent the message.
	// It's used internally by the Hub and not sent over JSON.
	client *Client
}

package hub

import (
	"net/http"

	"github.com/BioHazard786/warpcall/internal/relay"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Configure the websocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024, // 64 KB
	WriteBufferSize: 64 * 1024, // 64 KB

	// Development relay: any origin may connect.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWs returns an http.HandlerFunc that handles websocket requests.
// It takes the hub as a dependency.
func ServeWs(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Warn("failed to upgrade connection", zap.Error(err))
			return
		}

		id := uuid.NewString()
		client := &Client{
			Hub:    hub,
			Conn:   conn,
			ID:     id,
			Send:   make(chan relay.Envelope, 256),
			logger: hub.logger.With(zap.String("client", id)),
		}

		client.Hub.Register <- client

		// The pumps own the client's lifecycle from here on.
		go client.WritePump()
		go client.ReadPump()
	}
}

// HealthCheck reports that the relay is up.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Relay is healthy."))
}

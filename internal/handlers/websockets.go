package handlers

import (
	"net/http"
	"time"

	"lungdetect/internal/logger"
	"lungdetect/internal/services/websocket"

	gws "github.com/gorilla/websocket"
)

var Upgrader = gws.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// EventsWebsocketHandler subscribes a viewer to analysis events.
func EventsWebsocketHandler(hub *websocket.HubService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		connection.SetReadLimit(512)
		connection.SetReadDeadline(time.Now().Add(websocket.PongWait))
		connection.SetPongHandler(func(appData string) error {
			connection.SetReadDeadline(time.Now().Add(websocket.PongWait))
			return nil
		})

		hub.Register(connection)
		defer hub.Unregister(connection)

		// Viewerzy nic nie wysyłają, czytamy tylko żeby wykryć rozłączenie
		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				break
			}
		}
	}
}

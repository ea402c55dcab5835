package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// Close codes sent to agents that fail the handshake.
const (
	closeMissingAPIKey = 4001
	closeUnknownAPIKey = 4003
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Agents and status dashboards connect cross-origin.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleAgentSocket upgrades GET /ws/agent. The api key travels in the
// query string because browsers and most WebSocket clients cannot set
// arbitrary headers during the upgrade. A missing or unknown key is
// answered with a policy close code after the upgrade, so the client
// sees a deliberate rejection rather than a dropped TCP connection.
func (s *Server) handleAgentSocket(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	apiKey := c.QueryParam("api_key")
	if apiKey == "" {
		closeWith(ws, closeMissingAPIKey, "api_key query parameter required")
		return nil
	}

	_, ok := s.registry.Accept(apiKey, c.RealIP(), ws)
	if !ok {
		closeWith(ws, closeUnknownAPIKey, "unknown api key")
		return nil
	}

	// Blocks until the connection drops; Echo keeps the goroutine.
	s.registry.Listen(apiKey, ws)
	return nil
}

// handleStatusSocket upgrades GET /ws/status and subscribes the client
// to periodic online-count frames.
func (s *Server) handleStatusSocket(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		hub:  s.hub,
		conn: ws,
		send: make(chan []byte, 256),
	}
	s.hub.register <- client

	go client.writePump()
	go client.readPump()

	return nil
}

func closeWith(ws *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = ws.WriteMessage(websocket.CloseMessage, msg)
	_ = ws.Close()
}

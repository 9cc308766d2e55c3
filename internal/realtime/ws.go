package realtime

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// cross-origin dashboards and customer apps connect here
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

type clientFrame struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// WSHandler upgrades the connection, settles its auth state once, and then
// serves subscribe/unsubscribe frames until the peer goes away.
func WSHandler(hub *Hub, auth *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			if raw := c.GetHeader("Authorization"); raw != "" {
				parts := strings.SplitN(raw, " ", 2)
				if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
					token = parts[1]
				}
			}
		}

		state, userID, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, ErrBadToken) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "malformed token"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "authentication failed"})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[realtime] upgrade failed: %v", err)
			return
		}

		conn := hub.Register(state, userID)
		log.Printf("[realtime] conn=%s state=%s connected", conn.ID, state)

		go writePump(ws, conn)
		readPump(ws, hub, conn)
	}
}

func readPump(ws *websocket.Conn, hub *Hub, conn *Conn) {
	defer func() {
		hub.Unregister(conn)
		_ = ws.Close()
		log.Printf("[realtime] conn=%s disconnected", conn.ID)
	}()
	ws.SetReadLimit(512)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame clientFrame
		if err := ws.ReadJSON(&frame); err != nil {
			return
		}
		switch frame.Action {
		case "subscribe":
			if err := hub.Subscribe(conn, frame.Topic); err != nil {
				hub.SendError(conn, frame.Topic, err.Error())
				continue
			}
			conn.push(Event{Type: EventSubscribed, Topic: frame.Topic, Timestamp: time.Now().UTC()})
		case "unsubscribe":
			hub.Unsubscribe(conn, frame.Topic)
			conn.push(Event{Type: EventUnsubscribed, Topic: frame.Topic, Timestamp: time.Now().UTC()})
		default:
			hub.SendError(conn, "", "unknown action "+frame.Action)
		}
	}
}

func writePump(ws *websocket.Conn, conn *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()
	for {
		select {
		case ev, ok := <-conn.Events():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

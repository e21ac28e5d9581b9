package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"tickarb/internal/application/hub"
	"tickarb/internal/application/port"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsMessage is the frame shape pushed to clients.
type wsMessage struct {
	Type port.EventType `json:"type"`
	Data any            `json:"data"`
}

// handleWS bridges the event hub onto a websocket client. The hub closes the
// subscription channel when the client falls too far behind, which in turn
// tears down the socket.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	sub := s.hub.Register()
	log.Info().Str("remote", r.RemoteAddr).Int("subscribers", s.hub.SubscriberCount()).Msg("ws client connected")

	go s.writePump(conn, sub, r.RemoteAddr)
	s.readPump(conn, sub)
}

// readPump discards inbound frames; the stream is one-way. Its real job is
// noticing the client went away.
func (s *Server) readPump(conn *websocket.Conn, sub *hub.Subscription) {
	defer func() {
		s.hub.Unregister(sub)
		conn.Close()
	}()
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, sub *hub.Subscription, remote string) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				// Hub dropped this subscriber.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "too slow"),
					time.Now().Add(wsWriteWait))
				log.Info().Str("remote", remote).Msg("ws client dropped by hub")
				return
			}
			payload, err := json.Marshal(wsMessage{Type: ev.Type, Data: ev.Data})
			if err != nil {
				log.Warn().Err(err).Msg("marshal ws event")
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

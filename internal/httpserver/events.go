package httpserver

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	eventWriteTimeout = 10 * time.Second
	eventPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The control plane is not exposed publicly; origin checks are left
	// to the deployment in front of it.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleSchedulerEvents streams every RunSnapshot to the client as a JSON
// message until the client disconnects.
func (s *Server) handleSchedulerEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	snapshots, cancel := s.sched.Subscribe()
	defer cancel()

	// Reads are discarded; the read pump only notices the client closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(eventPingInterval)
	defer ping.Stop()

	s.logger.Info("run event subscriber connected", "remote", r.RemoteAddr)

	for {
		select {
		case <-closed:
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case snapshot := <-snapshots:
			conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteJSON(snapshot); err != nil {
				s.logger.Warn("run event write failed", "error", err)
				return
			}
		}
	}
}

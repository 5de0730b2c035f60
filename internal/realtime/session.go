package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second // Time allowed to read the next pong
	pingPeriod = 30 * time.Second // Send pings at this interval (must be < pongWait)
	writeWait  = 10 * time.Second // Time allowed to write a message
	maxMsgSize = 64 * 1024        // Client frames are tiny control messages
	sendBuffer = 256              // Per-session outbound buffer
)

// Session is one authenticated admin connection. All writes go through
// the send channel so a single goroutine owns the connection for writing.
type Session struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	actorID  string
	username string
}

// close shuts the session down exactly once.
func (s *Session) close() {
	s.once.Do(func() {
		close(s.done)
		s.hub.unregister(s)
		s.conn.Close()
		slog.Info("admin session disconnected", "actor_id", s.actorID)
	})
}

// enqueue hands a frame to the write pump without blocking. A full
// buffer means the client is not keeping up; the frame is dropped.
func (s *Session) enqueue(frame []byte) bool {
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// writePump is the only goroutine that writes to the connection.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
			// Flush whatever queued up behind this frame.
			n := len(s.send)
			for i := 0; i < n; i++ {
				if err := s.conn.WriteMessage(websocket.TextMessage, <-s.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.done:
			return
		}
	}
}

// readPump is the only goroutine that reads from the connection. It
// answers ping and subscribe messages and ignores everything else.
func (s *Session) readPump() {
	defer s.close()

	s.conn.SetReadLimit(maxMsgSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Warn("admin session read failed", "actor_id", s.actorID, "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "ping":
			// Echo the client's timestamp so it can measure round trips.
			if frame, err := json.Marshal(map[string]interface{}{
				"type":      TypePong,
				"timestamp": msg.Timestamp,
			}); err == nil {
				s.enqueue(frame)
			}
		case "subscribe":
			channels := msg.Channels
			if len(channels) == 0 {
				channels = []string{"all"}
			}
			s.reply(Message{
				Type:      TypeSubscribed,
				Data:      map[string]interface{}{"channels": channels},
				Timestamp: time.Now().UTC(),
			})
		}
	}
}

func (s *Session) reply(msg Message) {
	frame, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.enqueue(frame)
}

// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ch2church/worship-storyboard/internal/services"
	"github.com/ch2church/worship-storyboard/internal/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
)

type reviewClient struct {
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
	createdAt time.Time
}

// ReviewHub fans review events out to connected reviewers. The run loop
// owns the client set and is the only place a send channel is closed.
type ReviewHub struct {
	clients    map[*reviewClient]bool
	register   chan *reviewClient
	unregister chan *reviewClient
	broadcast  chan []byte
	stop       chan struct{}
	stopOnce   sync.Once
	mutex      sync.RWMutex
	logger     *utils.Logger
}

// NewReviewHub starts the hub's run loop.
func NewReviewHub() *ReviewHub {
	h := &ReviewHub{
		clients:    make(map[*reviewClient]bool),
		register:   make(chan *reviewClient, 16),
		unregister: make(chan *reviewClient, 16),
		broadcast:  make(chan []byte, 64),
		stop:       make(chan struct{}),
		logger:     utils.GetLogger(),
	}
	go h.run()
	return h
}

func (h *ReviewHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()

		case client := <-h.unregister:
			h.drop(client)

		case message := <-h.broadcast:
			h.mutex.RLock()
			var slow []*reviewClient
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					slow = append(slow, client)
				}
			}
			h.mutex.RUnlock()
			for _, client := range slow {
				h.logger.Warn("dropping slow review client", map[string]interface{}{"session_id": client.sessionID})
				h.drop(client)
			}

		case <-h.stop:
			h.mutex.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return
		}
	}
}

func (h *ReviewHub) drop(client *reviewClient) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.clients[client] {
		delete(h.clients, client)
		close(client.send)
	}
}

// NotifySubmitted implements services.ReviewNotifier. It never blocks; when
// the hub is saturated the event is dropped and logged.
func (h *ReviewHub) NotifySubmitted(event services.ReviewEvent) {
	msg, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("encode review event", map[string]interface{}{"error": err.Error()})
		return
	}
	select {
	case h.broadcast <- msg:
	case <-h.stop:
	default:
		h.logger.Warn("review feed saturated, event dropped", map[string]interface{}{"path": event.Path})
	}
}

// Count reports connected reviewers.
func (h *ReviewHub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// GetStatus summarizes the hub for the metrics endpoint.
func (h *ReviewHub) GetStatus() map[string]interface{} {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]map[string]interface{}, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, map[string]interface{}{
			"session_id":   client.sessionID,
			"connected_at": client.createdAt.Format(time.RFC3339),
		})
	}
	return map[string]interface{}{
		"total_connections": len(h.clients),
		"clients":           clients,
	}
}

// Close disconnects everyone and stops the run loop.
func (h *ReviewHub) Close() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Serve upgrades the request and streams review events until the peer leaves.
func (h *ReviewHub) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("review websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	client := &reviewClient{
		conn:      conn,
		sessionID: sessionID(c),
		send:      make(chan []byte, sendBuffer),
		createdAt: time.Now(),
	}
	welcome, _ := json.Marshal(map[string]interface{}{
		"type":      "welcome",
		"timestamp": client.createdAt.Format(time.RFC3339),
	})
	client.send <- welcome

	select {
	case h.register <- client:
	case <-h.stop:
		conn.Close()
		return
	}

	go h.writePump(client)
	h.readPump(client)
}

// readPump only watches for pongs and disconnects.
func (h *ReviewHub) readPump(client *reviewClient) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.stop:
		}
		client.conn.Close()
	}()

	client.conn.SetReadLimit(4096)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("review websocket closed", map[string]interface{}{"error": err.Error()})
			}
			return
		}
	}
}

func (h *ReviewHub) writePump(client *reviewClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

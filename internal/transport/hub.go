// Package transport fans session events out to connected editor clients
// over websockets. The hub is push only: all mutations go through the
// HTTP API, the socket exists so every participant sees them live.
package transport

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"coedit/api/internal/collab"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = 30 * time.Second
	sendBuffer      = 64
	maxInboundBytes = 4 * 1024
)

type client struct {
	sessionID     string
	participantID string
	conn          *websocket.Conn

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

// trySend queues a frame for the write pump. It reports false when the
// client is shut down or its buffer is full, so senders never block and
// never race a concurrent shutdown on the closed channel.
func (c *client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Hub tracks one websocket per participant per session and implements
// the manager's broadcast sink. Deliver never blocks: a participant
// whose buffer is full is disconnected and has to reconnect.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*client
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[string]map[string]*client)}
}

func (h *Hub) Name() string { return "websocket" }

// Deliver broadcasts one event to every connected participant in the
// session, skipping the actor when the event says so. A session_control
// event that marks the session ended also closes the remaining sockets.
func (h *Hub) Deliver(ev collab.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("transport: encode %s event: %v", ev.Type, err)
		return
	}

	h.mu.RLock()
	conns := h.sessions[ev.SessionID]
	var stale []*client
	for _, c := range conns {
		if ev.ExcludeActor && c.participantID == ev.ActorID {
			continue
		}
		if !c.trySend(data) {
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		log.Printf("transport: dropping slow consumer %s/%s", c.sessionID, c.participantID)
		h.unregister(c)
	}

	if ctrl, ok := ev.Payload.(collab.ControlPayload); ok && ctrl.SessionStatus == string(collab.SessionEnded) {
		h.CloseSession(ev.SessionID)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type welcomeFrame struct {
	Type          string    `json:"type"`
	SessionID     string    `json:"sessionId"`
	ParticipantID string    `json:"participantId"`
	Timestamp     time.Time `json:"timestamp"`
}

// ServeSession upgrades the request and streams session events until the
// client disconnects. A second socket for the same participant replaces
// the first.
func (h *Hub) ServeSession(w http.ResponseWriter, r *http.Request, sessionID, participantID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("transport: upgrade %s/%s: %v", sessionID, participantID, err)
		return
	}

	c := &client{
		sessionID:     sessionID,
		participantID: participantID,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
	}
	h.register(c)

	welcome := welcomeFrame{
		Type:          "welcome",
		SessionID:     sessionID,
		ParticipantID: participantID,
		Timestamp:     time.Now().UTC(),
	}
	if data, err := json.Marshal(welcome); err == nil {
		c.trySend(data)
	}

	go c.writePump()
	c.readPump(h)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	conns, ok := h.sessions[c.sessionID]
	if !ok {
		conns = make(map[string]*client)
		h.sessions[c.sessionID] = conns
	}
	prev := conns[c.participantID]
	conns[c.participantID] = c
	h.mu.Unlock()

	if prev != nil {
		prev.shutdown()
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if conns, ok := h.sessions[c.sessionID]; ok && conns[c.participantID] == c {
		delete(conns, c.participantID)
		if len(conns) == 0 {
			delete(h.sessions, c.sessionID)
		}
	}
	h.mu.Unlock()
	c.shutdown()
}

// Disconnect closes the participant's socket if one is open.
func (h *Hub) Disconnect(sessionID, participantID string) {
	h.mu.RLock()
	c := h.sessions[sessionID][participantID]
	h.mu.RUnlock()
	if c != nil {
		h.unregister(c)
	}
}

// CloseSession closes every socket attached to the session.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	conns := h.sessions[sessionID]
	delete(h.sessions, sessionID)
	h.mu.Unlock()
	for _, c := range conns {
		c.shutdown()
	}
}

// ConnectedCount reports how many sockets the session has open.
func (h *Hub) ConnectedCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// readPump consumes inbound frames so pings and close frames are
// processed. Clients do not send application data over the socket.
func (c *client) readPump(h *Hub) {
	defer h.unregister(c)
	c.conn.SetReadLimit(maxInboundBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

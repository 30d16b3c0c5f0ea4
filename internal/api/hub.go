package api

import (
	"net"
	"net/http"
	gosync "sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/kimhsiao/tijara/backend/internal/logging"
	"github.com/kimhsiao/tijara/backend/internal/sync/events"
	"github.com/kimhsiao/tijara/backend/internal/uuid"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     isLocalOrigin,
}

// isLocalOrigin only accepts connections addressed to a loopback host.
func isLocalOrigin(r *http.Request) bool {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Envelope wraps every message pushed to WebSocket clients.
type Envelope struct {
	Type      string       `json:"type"`
	Data      events.Event `json:"data"`
	Timestamp int64        `json:"timestamp"`
}

// EventName maps a dispatcher event to its WebSocket message type.
func EventName(t events.Type) string {
	return "sync." + string(t)
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	mu            gosync.Mutex
	subscriptions map[string]bool
}

// wants reports whether the client should receive msgType.
// A client without subscriptions receives everything.
func (c *wsClient) wants(msgType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscriptions) == 0 || c.subscriptions[msgType]
}

type outbound struct {
	msgType string
	payload []byte
}

// Hub fans sync events out to connected WebSocket clients.
type Hub struct {
	clients    map[string]*wsClient
	broadcast  chan outbound
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
	closeOnce  gosync.Once
	mu         gosync.RWMutex
}

// NewHub creates a hub and starts its run loop. Call Close to stop it.
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[string]*wsClient),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

// Close stops the run loop and disconnects every client.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for id, c := range h.clients {
				close(c.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			n := len(h.clients)
			h.mu.Unlock()
			logging.Debug("WebSocket client connected", map[string]interface{}{"client": c.id, "total": n})

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			logging.Debug("WebSocket client disconnected", map[string]interface{}{"client": c.id, "total": n})

		case msg := <-h.broadcast:
			h.mu.Lock()
			for id, c := range h.clients {
				if !c.wants(msg.msgType) {
					continue
				}
				select {
				case c.send <- msg.payload:
				default:
					// slow consumer
					close(c.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// OnSyncEvent broadcasts e to subscribed clients. It never blocks the
// dispatcher: when the broadcast buffer is full the event is dropped.
func (h *Hub) OnSyncEvent(e events.Event) {
	env := Envelope{
		Type:      EventName(e.Type),
		Data:      e,
		Timestamp: e.Time.Unix(),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		logging.Warn("Failed to marshal WebSocket event", map[string]interface{}{"error": err.Error()})
		return
	}

	select {
	case h.broadcast <- outbound{msgType: env.Type, payload: payload}:
	case <-h.done:
	default:
		logging.Warn("WebSocket broadcast buffer full, event dropped", map[string]interface{}{"item": e.Item})
	}
}

var _ events.Observer = (*Hub)(nil)

// Serve upgrades the request and attaches the connection to the hub.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &wsClient{
		id:            uuid.New(),
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		hub:           h,
		subscriptions: make(map[string]bool),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return nil
	}

	go c.writePump()
	go c.readPump()
	return nil
}

type clientMessage struct {
	Action string   `json:"action"`
	Events []string `json:"events"`
}

func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn("WebSocket read error", map[string]interface{}{"client": c.id, "error": err.Error()})
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch msg.Action {
		case "subscribe":
			c.mu.Lock()
			for _, e := range msg.Events {
				c.subscriptions[e] = true
			}
			c.mu.Unlock()
			c.reply(map[string]interface{}{"action": "subscribe_ack", "subscribed": msg.Events})
		case "unsubscribe":
			c.mu.Lock()
			for _, e := range msg.Events {
				delete(c.subscriptions, e)
			}
			c.mu.Unlock()
		case "ping":
			c.reply(map[string]interface{}{"action": "pong"})
		}
	}
}

// reply queues a direct response, dropping it when the client is saturated.
func (c *wsClient) reply(msg map[string]interface{}) {
	msg["timestamp"] = time.Now().Unix()
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

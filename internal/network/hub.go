package network

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/inocsim/server/internal/domain/params"
	"github.com/inocsim/server/internal/engine"
	"github.com/inocsim/server/internal/platform/logger"
	"github.com/inocsim/server/internal/platform/metrics"
)

// Controller is the engine surface exposed to observers. *engine.Engine satisfies it.
type Controller interface {
	Snapshot() engine.State
	Summary() engine.Summary
	Params() params.Parameters
	SetParams(p params.Parameters) error
	UpdateParam(name string, value float64) error
	SetSpeed(speed float64) error
}

// Options sizes the hub's queues.
type Options struct {
	BroadcastBuffer  int
	ClientSendBuffer int
	MaxClients       int // 0 means unlimited
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{} // closed when Run returns
	mu         sync.Mutex

	controller Controller
	opts       Options
	logger     *logger.Logger
	metrics    *metrics.Collector
	upgrader   websocket.Upgrader
}

// NewHub initializes a new WebSocket Hub.
func NewHub(ctrl Controller, opts Options, log *logger.Logger, m *metrics.Collector) *Hub {
	if opts.BroadcastBuffer <= 0 {
		opts.BroadcastBuffer = 256
	}
	if opts.ClientSendBuffer <= 0 {
		opts.ClientSendBuffer = 64
	}
	return &Hub{
		broadcast:  make(chan []byte, opts.BroadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		controller: ctrl,
		opts:       opts,
		logger:     log,
		metrics:    m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Observers are served from any origin; edits are validated server-side.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run starts the Hub's main loop to handle client connections and broadcasts.
// Once it returns, registration fails and departing clients do not block.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("websocket hub shutting down")
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.metrics.RecordWSConnection(1)
			h.logger.Info("websocket client connected", "remote", client.remote)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.metrics.RecordWSConnection(-1)
				h.logger.Info("websocket client disconnected", "remote", client.remote)
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
					h.metrics.RecordWSMessage(false)
				default:
					// Slow consumer: drop it rather than stall the broadcast.
					close(client.send)
					delete(h.clients, client)
					h.metrics.RecordWSConnection(-1)
					h.metrics.RecordWSError()
				}
			}
			h.mu.Unlock()
		}
	}
}

// join hands c to the hub loop. It reports false once the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave removes c, or returns immediately if the hub has stopped.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues msg for every client. It never blocks the caller; when the
// queue is full the message is dropped and counted as an error.
func (h *Hub) Broadcast(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to serialize websocket message", "type", msg.Type, "err", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.metrics.RecordWSError()
		h.logger.Warn("broadcast queue full, message dropped", "type", msg.Type)
	}
}

// BroadcastState pushes the current engine state to every observer.
func (h *Hub) BroadcastState() {
	st := h.controller.Snapshot()
	h.Broadcast(Message{Type: MsgTypeState, Timestamp: time.Now().Unix(), State: &st})
}

// OnTick returns a runner handler that broadcasts state after every tick that
// crossed a day boundary.
func (h *Hub) OnTick() engine.TickHandler {
	return func(res engine.TickResult, err error) {
		if err != nil {
			h.Broadcast(Message{Type: MsgTypeError, Timestamp: time.Now().Unix(), Error: err.Error()})
			return
		}
		if res.DaysCrossed > 0 {
			h.BroadcastState()
		}
	}
}

// sendTo delivers msg to a single client if it is still registered.
func (h *Hub) sendTo(c *Client, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to serialize websocket reply", "type", msg.Type, "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- payload:
		h.metrics.RecordWSMessage(false)
	default:
		h.metrics.RecordWSError()
	}
}

// ServeWS upgrades the request and starts the client's pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}
	if h.opts.MaxClients > 0 && h.ClientCount() >= h.opts.MaxClients {
		http.Error(w, "too many observers", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.metrics.RecordWSError()
		h.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	client := NewClient(h, conn)

	// New observers get the current state straight away. The send queue is
	// not shared until Register, so this cannot block or race.
	st := h.controller.Snapshot()
	if payload, err := json.Marshal(Message{Type: MsgTypeState, Timestamp: time.Now().Unix(), State: &st}); err == nil {
		client.send <- payload
		h.metrics.RecordWSMessage(false)
	}

	if !client.Register() {
		conn.Close()
		return
	}
	go client.WritePump()
	go client.ReadPump()
}

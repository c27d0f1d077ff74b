package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/inocsim/server/internal/engine"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512
	// Minimum spacing between two edits from the same client.
	editCooldown = 20 * time.Millisecond
)

var errMissingValue = errors.New("value missing")

// Server to client message types.
const (
	MsgTypeState = "STATE"
	MsgTypeError = "ERROR"
	MsgTypeAck   = "ACK"
)

// Client to server command types.
const (
	CmdSetParam = "SET_PARAM"
	CmdSetSpeed = "SET_SPEED"
	CmdGetState = "GET_STATE"
)

// Message is everything the server sends over the socket.
type Message struct {
	Type      string        `json:"type"`
	Timestamp int64         `json:"timestamp"`
	State     *engine.State `json:"state,omitempty"`
	Ack       string        `json:"ack,omitempty"` // command type acknowledged
	Error     string        `json:"error,omitempty"`
}

// Command represents an incoming request from an observer.
type Command struct {
	Type  string  `json:"type"`
	Name  string  `json:"name,omitempty"`
	Value *float64 `json:"value,omitempty"`
}

// Client is one active WebSocket connection.
type Client struct {
	hub          *Hub
	conn         *websocket.Conn
	send         chan []byte
	remote       string
	lastEditTime time.Time
}

// NewClient creates a new WebSocket client and returns it.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, hub.opts.ClientSendBuffer),
		remote: conn.RemoteAddr().String(),
	}
}

// Register adds the client to the hub. It returns false if the hub has stopped.
func (c *Client) Register() bool {
	return c.hub.join(c)
}

// ReadPump pumps commands from the websocket connection to the engine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.metrics.RecordWSError()
				c.hub.logger.Warn("websocket read failed", "remote", c.remote, "err", err)
			}
			break
		}
		c.hub.metrics.RecordWSMessage(true)

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.reply(fmt.Errorf("malformed command: %w", err), "")
			continue
		}

		c.reply(c.handleCommand(cmd), cmd.Type)
	}
}

func (c *Client) handleCommand(cmd Command) error {
	ctrl := c.hub.controller

	switch cmd.Type {
	case CmdGetState:
		st := ctrl.Snapshot()
		c.hub.sendTo(c, Message{Type: MsgTypeState, Timestamp: time.Now().Unix(), State: &st})
		return nil
	case CmdSetParam, CmdSetSpeed:
		if cmd.Value == nil {
			return errMissingValue
		}
		if time.Since(c.lastEditTime) < editCooldown {
			return fmt.Errorf("edit rate limit exceeded")
		}
		c.lastEditTime = time.Now()
	default:
		return fmt.Errorf("unknown command type %q", cmd.Type)
	}
	value := *cmd.Value

	var err error
	if cmd.Type == CmdSetParam {
		err = ctrl.UpdateParam(cmd.Name, value)
	} else {
		err = ctrl.SetSpeed(value)
	}
	if err != nil {
		c.hub.logger.Warn("rejected edit", "remote", c.remote, "type", cmd.Type, "name", cmd.Name, "err", err)
		return err
	}
	c.hub.logger.Event(cmd.Type, c.remote, "name", cmd.Name, "value", value)
	return nil
}

// reply acknowledges a command or reports why it failed. GET_STATE is answered
// by the state message itself.
func (c *Client) reply(err error, cmdType string) {
	now := time.Now().Unix()
	switch {
	case err != nil:
		c.hub.sendTo(c, Message{Type: MsgTypeError, Timestamp: now, Ack: cmdType, Error: err.Error()})
	case cmdType != CmdGetState:
		c.hub.sendTo(c, Message{Type: MsgTypeAck, Timestamp: now, Ack: cmdType})
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

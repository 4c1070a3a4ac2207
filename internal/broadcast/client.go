package broadcast

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/service"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/store"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	actionTimeout  = 5 * time.Second
)

var clientSeq atomic.Uint64

// Dispatcher executes inbound client actions against the kernel.
type Dispatcher interface {
	DoorStatus() types.DoorState
	DoorControl(ctx context.Context, action string) (types.DoorState, error)
	AcknowledgeAlert(ctx context.Context, id int64) (bool, error)
}

// ErrorPayload is sent back to a client whose action failed.
type ErrorPayload struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	id       uint64
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	dispatch Dispatcher
	log      zerolog.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, dispatch Dispatcher) *Client {
	id := clientSeq.Add(1)
	return &Client{
		id:       id,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, hub.cfg.ClientBuffer),
		dispatch: dispatch,
		log:      hub.log.With().Uint64("client_id", id).Logger(),
	}
}

// Start registers the client, queues the current door snapshot and starts
// the read and write pumps.
func (c *Client) Start() {
	c.hub.register(c, func() []byte {
		if c.dispatch == nil {
			return nil
		}
		return encodeFrame(types.EventDoorStatusUpdate, c.dispatch.DoorStatus())
	})
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(EventError, ErrorPayload{Message: "malformed message"})
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	switch msg.Event {
	case types.ActionDoorControl:
		var req types.DoorControlRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.reply(EventError, ErrorPayload{Action: msg.Event, Message: "malformed door control payload"})
			return
		}
		if _, err := c.dispatch.DoorControl(ctx, req.Action); err != nil {
			c.replyErr(msg.Event, err)
		}
	case types.ActionAlertAcknowledge:
		var req types.AcknowledgeRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.reply(EventError, ErrorPayload{Action: msg.Event, Message: "malformed acknowledge payload"})
			return
		}
		if err := service.Validate(req); err != nil {
			c.replyErr(msg.Event, err)
			return
		}
		if _, err := c.dispatch.AcknowledgeAlert(ctx, req.AlertID); err != nil {
			c.replyErr(msg.Event, err)
		}
	default:
		c.reply(EventError, ErrorPayload{Action: msg.Event, Message: "unknown action"})
	}
}

func (c *Client) replyErr(action string, err error) {
	msg := "internal error"
	switch {
	case errors.Is(err, service.ErrValidation):
		msg = err.Error()
	case errors.Is(err, store.ErrNotFound):
		msg = "alert not found"
	case errors.Is(err, service.ErrStoreUnavailable), errors.Is(err, store.ErrTransient):
		msg = "persistence unavailable"
	default:
		c.log.Error().Err(err).Str("action", action).Msg("client action failed")
	}
	c.reply(EventError, ErrorPayload{Action: action, Message: msg})
}

// reply queues a frame for this client only. The hub owns the send channel,
// so the send happens under its lock.
func (c *Client) reply(event string, payload any) {
	frame := encodeFrame(event, payload)
	if frame == nil {
		return
	}
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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

// Handler upgrades requests to websocket connections served by the hub.
// A nil checkOrigin accepts every origin.
func (h *Hub) Handler(dispatch Dispatcher, checkOrigin func(*http.Request) bool) http.Handler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		NewClient(h, conn, dispatch).Start()
	})
}

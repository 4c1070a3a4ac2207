// Package broadcast fans kernel events out to websocket subscribers, external
// sinks and the durable audit log.
package broadcast

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/store"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

// Message is the frame exchanged with websocket clients in both directions.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

const EventError = "error"

// Sink receives every published event after client fan-out. Send is called
// under the hub lock and must not block.
type Sink interface {
	Send(event string, payload []byte) error
	Close()
}

type HubConfig struct {
	// AuditSensorUpdates also records sensor:distance-update events, which
	// otherwise dominate the audit table.
	AuditSensorUpdates bool

	// AuditQueue bounds audit records waiting for Run. Default 1024.
	AuditQueue int

	// ClientBuffer is each client's send buffer. Default 256.
	ClientBuffer int
}

// Hub maintains the set of active clients and broadcasts events to them.
// Publish is safe for concurrent use; events from one producer reach every
// client in publish order.
type Hub struct {
	cfg   HubConfig
	audit store.AuditStore
	log   zerolog.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
	sinks   []Sink

	// lastDoor is the most recent door:status-update frame delivered, used
	// as the snapshot for new clients.
	lastDoor []byte

	auditCh chan types.AuditEvent

	published    atomic.Int64
	auditDropped atomic.Int64
	slowDropped  atomic.Int64
}

func NewHub(audit store.AuditStore, cfg HubConfig, logger zerolog.Logger) *Hub {
	if cfg.AuditQueue <= 0 {
		cfg.AuditQueue = 1024
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = 256
	}
	return &Hub{
		cfg:     cfg,
		audit:   audit,
		log:     logger.With().Str("component", "websocket-hub").Logger(),
		clients: make(map[*Client]struct{}),
		auditCh: make(chan types.AuditEvent, cfg.AuditQueue),
	}
}

// AddSink attaches an external sink such as MQTT.
func (h *Hub) AddSink(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, s)
}

// Publish marshals payload once and delivers it to every client and sink.
// Clients whose buffer is full are disconnected rather than waited on.
func (h *Hub) Publish(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("event payload not serialisable")
		return
	}
	frame, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("event frame not serialisable")
		return
	}

	h.mu.Lock()
	if event == types.EventDoorStatusUpdate {
		h.lastDoor = frame
	}
	h.broadcastLocked(frame)
	for _, s := range h.sinks {
		if err := s.Send(event, data); err != nil {
			h.log.Warn().Err(err).Str("event", event).Msg("sink send failed")
		}
	}
	h.mu.Unlock()
	h.published.Add(1)

	if event == types.EventSensorDistanceUpdate && !h.cfg.AuditSensorUpdates {
		return
	}
	select {
	case h.auditCh <- types.AuditEvent{Event: event, Payload: data, PublishedAt: time.Now().UTC()}:
	default:
		h.auditDropped.Add(1)
	}
}

// Run drains the audit queue into the audit store until ctx is done, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	h.log.Info().Msg("websocket hub started")
	for {
		select {
		case <-ctx.Done():
			h.drainAudit()
			n := h.closeAllClients()
			h.log.Info().Int("clients_closed", n).Msg("websocket hub stopped")
			return nil
		case ev := <-h.auditCh:
			h.record(ctx, ev)
		}
	}
}

// Serve lets the hub run under a suture supervisor.
func (h *Hub) Serve(ctx context.Context) error { return h.Run(ctx) }

func (h *Hub) drainAudit() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-h.auditCh:
			h.record(ctx, ev)
		default:
			return
		}
	}
}

func (h *Hub) record(ctx context.Context, ev types.AuditEvent) {
	if h.audit == nil {
		return
	}
	if err := h.audit.RecordEvent(ctx, ev); err != nil {
		h.log.Warn().Err(err).Str("event", ev.Event).Msg("audit record failed")
	}
}

// PrimeDoorStatus sets the snapshot handed to new clients before the first
// door:status-update has been published. Nothing is broadcast.
func (h *Hub) PrimeDoorStatus(state types.DoorState) {
	frame := encodeFrame(types.EventDoorStatusUpdate, state)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastDoor == nil {
		h.lastDoor = frame
	}
}

// register adds c and queues the snapshot frame ahead of any later event.
// The snapshot is the last door state published, so it never runs ahead of
// transitions still waiting to be broadcast; snapshot is only consulted
// before anything was published or primed.
func (h *Hub) register(c *Client, snapshot func() []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	frame := h.lastDoor
	if frame == nil && snapshot != nil {
		frame = snapshot()
	}
	if frame != nil {
		c.send <- frame
	}
	h.log.Info().Uint64("client_id", c.id).Int("total_clients", len(h.clients)).Msg("websocket client connected")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.log.Info().Uint64("client_id", c.id).Int("total_clients", len(h.clients)).Msg("websocket client disconnected")
	}
}

// broadcastLocked sends frame to clients in id order.
func (h *Hub) broadcastLocked(frame []byte) {
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, c := range clients {
		select {
		case c.send <- frame:
		default:
			delete(h.clients, c)
			close(c.send)
			h.slowDropped.Add(1)
			h.log.Warn().Uint64("client_id", c.id).Msg("slow websocket client disconnected")
		}
	}
}

func (h *Hub) closeAllClients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.clients)
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	for _, s := range h.sinks {
		s.Close()
	}
	h.sinks = nil
	return n
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Published() int64 { return h.published.Load() }

func (h *Hub) AuditDropped() int64 { return h.auditDropped.Load() }

// SlowDisconnects counts clients dropped for falling behind.
func (h *Hub) SlowDisconnects() int64 { return h.slowDropped.Load() }

func encodeFrame(event string, payload any) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	frame, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		return nil
	}
	return frame
}

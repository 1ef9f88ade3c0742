// Package hub implements the Connection Hub (C8): a per-room table of
// active connections, with one outbound send path per connection so a
// slow peer cannot block fan-out to anyone else. Generalizes the
// "snapshot under RLock, write outside the lock" pattern shared by the
// teacher's internal/meeting.Room.Broadcast and internal/progress.Manager.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultQueueCapacity = 32
	writeTimeout         = 5 * time.Second
)

type frameKind int

const (
	kindJSON frameKind = iota
	kindBinary
)

type frame struct {
	kind    frameKind
	payload []byte
	seq     uint64 // 0 for non-subtitle frames; used by backpressure eviction
}

// Conn wraps one participant's WebSocket connection with an isolated,
// bounded outbound queue drained by its own writer goroutine.
type Conn struct {
	RoomID string
	UserID string

	ws *websocket.Conn

	mu       sync.Mutex
	queue    []frame
	capacity int
	wake     chan struct{}
	closed   bool

	onClose func()
}

func newConn(roomID, userID string, ws *websocket.Conn, capacity int, onClose func()) *Conn {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	c := &Conn{
		RoomID:   roomID,
		UserID:   userID,
		ws:       ws,
		capacity: capacity,
		wake:     make(chan struct{}, 1),
		onClose:  onClose,
	}
	go c.writeLoop()
	return c
}

// enqueue appends a frame, applying the backpressure policy when the
// queue is saturated: drop audio frames first, then subtitles older
// than the newest queued seq for that listener.
func (c *Conn) enqueue(f frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	if len(c.queue) >= c.capacity {
		if !c.evictOldestBinary() {
			c.evictOldestSubtitle()
		}
	}
	c.queue = append(c.queue, f)

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Conn) evictOldestBinary() bool {
	for i, qf := range c.queue {
		if qf.kind == kindBinary {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Conn) evictOldestSubtitle() bool {
	oldestIdx := -1
	for i, qf := range c.queue {
		if qf.kind == kindJSON && qf.seq > 0 {
			if oldestIdx == -1 || qf.seq < c.queue[oldestIdx].seq {
				oldestIdx = i
			}
		}
	}
	if oldestIdx == -1 {
		// nothing evictable; drop the physically oldest entry so the
		// orchestrator never blocks.
		if len(c.queue) > 0 {
			c.queue = c.queue[1:]
			return true
		}
		return false
	}
	c.queue = append(c.queue[:oldestIdx], c.queue[oldestIdx+1:]...)
	return true
}

func (c *Conn) writeLoop() {
	for range c.wake {
		for {
			c.mu.Lock()
			if len(c.queue) == 0 {
				c.mu.Unlock()
				break
			}
			f := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()

			if err := c.write(f); err != nil {
				log.Printf("hub: write failed for room=%s user=%s: %v", c.RoomID, c.UserID, err)
				c.Close()
				return
			}
		}
	}
}

func (c *Conn) write(f frame) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	msgType := websocket.TextMessage
	if f.kind == kindBinary {
		msgType = websocket.BinaryMessage
	}
	return c.ws.WriteMessage(msgType, f.payload)
}

// Close closes the underlying connection and notifies the hub so
// membership state and the disconnect path stay in sync.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.queue = nil
	c.mu.Unlock()

	close(c.wake)
	_ = c.ws.Close()
	if c.onClose != nil {
		c.onClose()
	}
}

// ReadMessage reads the next inbound frame, text or binary (blocking,
// caller-driven; there is one reader per connection, the inbound task).
func (c *Conn) ReadMessage() (messageType int, data []byte, err error) {
	return c.ws.ReadMessage()
}

func (c *Conn) SetReadDeadline(ctx context.Context) {
	if dl, ok := ctx.Deadline(); ok {
		_ = c.ws.SetReadDeadline(dl)
	}
}

// Hub is the process-wide per-room connection table.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Conn
}

// New constructs an empty hub.
func New() *Hub {
	return &Hub{rooms: make(map[string]map[string]*Conn)}
}

// Connect registers a new connection for (room, user), closing and
// replacing any prior connection for the same identity.
func (h *Hub) Connect(roomID, userID string, ws *websocket.Conn) *Conn {
	h.mu.Lock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]*Conn)
	}
	prior := h.rooms[roomID][userID]
	h.mu.Unlock()
	if prior != nil {
		prior.Close()
	}

	c := newConn(roomID, userID, ws, defaultQueueCapacity, func() {
		h.Disconnect(roomID, userID)
	})

	h.mu.Lock()
	h.rooms[roomID][userID] = c
	h.mu.Unlock()
	return c
}

// Disconnect removes a connection from the table. Safe to call
// multiple times.
func (h *Hub) Disconnect(roomID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[roomID]; ok {
		delete(conns, userID)
		if len(conns) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func (h *Hub) get(roomID, userID string) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns, ok := h.rooms[roomID]
	if !ok {
		return nil, false
	}
	c, ok := conns[userID]
	return c, ok
}

// SendJSON enqueues a typed control message for one listener.
func (h *Hub) SendJSON(roomID, userID string, msg interface{}) error {
	c, ok := h.get(roomID, userID)
	if !ok {
		return nil
	}
	return h.sendJSONTo(c, msg, 0)
}

// SendSubtitle enqueues a subtitle control message, tagging it with
// seq so backpressure eviction can prefer dropping older subtitles.
func (h *Hub) SendSubtitle(roomID, userID string, msg interface{}, seq uint64) error {
	c, ok := h.get(roomID, userID)
	if !ok {
		return nil
	}
	return h.sendJSONTo(c, msg, seq)
}

func (h *Hub) sendJSONTo(c *Conn, msg interface{}, seq uint64) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.enqueue(frame{kind: kindJSON, payload: data, seq: seq})
	return nil
}

// SendBytes enqueues a raw binary audio frame for one listener.
func (h *Hub) SendBytes(roomID, userID string, payload []byte) {
	c, ok := h.get(roomID, userID)
	if !ok {
		return
	}
	c.enqueue(frame{kind: kindBinary, payload: payload})
}

// BroadcastJSON sends a control message to every connection in a room
// except the excluded user id (pass "" to exclude no one).
func (h *Hub) BroadcastJSON(roomID string, msg interface{}, exclude string) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.rooms[roomID]))
	for userID, c := range h.rooms[roomID] {
		if userID == exclude {
			continue
		}
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("hub: broadcast marshal failed: %v", err)
		return
	}
	for _, c := range conns {
		c.enqueue(frame{kind: kindJSON, payload: data})
	}
}

// Get exposes a connection for inbound-loop callers (e.g. the WS
// handler's read loop, which owns one connection for its lifetime).
func (h *Hub) Get(roomID, userID string) (*Conn, bool) {
	return h.get(roomID, userID)
}

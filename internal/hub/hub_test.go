package hub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestConnEvictsOldestBinaryBeforeSubtitles(t *testing.T) {
	c := &Conn{capacity: 2}
	c.queue = []frame{
		{kind: kindBinary, payload: []byte("a1")},
		{kind: kindJSON, payload: []byte("s1"), seq: 1},
	}

	if !c.evictOldestBinary() {
		t.Fatal("expected a binary frame to be evicted")
	}
	if len(c.queue) != 1 || c.queue[0].kind != kindJSON {
		t.Fatalf("expected only the subtitle frame to remain, got %+v", c.queue)
	}
}

func TestConnEvictsOldestSubtitleBySeqWhenNoBinary(t *testing.T) {
	c := &Conn{capacity: 2}
	c.queue = []frame{
		{kind: kindJSON, payload: []byte("s2"), seq: 2},
		{kind: kindJSON, payload: []byte("s1"), seq: 1},
	}

	if !c.evictOldestSubtitle() {
		t.Fatal("expected a subtitle frame to be evicted")
	}
	if len(c.queue) != 1 || c.queue[0].seq != 2 {
		t.Fatalf("expected the lower-seq subtitle to be evicted, got %+v", c.queue)
	}
}

func TestEnqueueDropsUnderBackpressureWithoutBlocking(t *testing.T) {
	c := &Conn{capacity: 2, wake: make(chan struct{}, 1)}

	c.enqueue(frame{kind: kindBinary, payload: []byte("a")})
	c.enqueue(frame{kind: kindJSON, payload: []byte("b"), seq: 1})
	c.enqueue(frame{kind: kindJSON, payload: []byte("c"), seq: 2})

	if len(c.queue) != 2 {
		t.Fatalf("expected queue to stay at capacity, got %d entries", len(c.queue))
	}
}

func TestEnqueueOnClosedConnIsNoop(t *testing.T) {
	c := &Conn{capacity: 2, wake: make(chan struct{}, 1), closed: true}
	c.enqueue(frame{kind: kindJSON, payload: []byte("x")})
	if len(c.queue) != 0 {
		t.Fatal("expected enqueue on a closed conn to be dropped")
	}
}

func upgradeServer(t *testing.T, h *Hub, roomID, userID string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		h.Connect(roomID, userID, ws)
	}))
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func TestHubConnectAndBroadcastDeliversToPeer(t *testing.T) {
	h := New()
	srv := upgradeServer(t, h, "room-1", "user-1")
	defer srv.Close()

	client := dial(t, srv)
	defer client.Close()

	waitForConn(t, h, "room-1", "user-1")

	h.BroadcastJSON("room-1", map[string]string{"type": "hello"}, "")

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("expected to receive the broadcast message: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Fatalf("unexpected payload: %s", data)
	}
}

func TestHubConnectReplacesPriorConnectionForSameIdentity(t *testing.T) {
	h := New()
	srv := upgradeServer(t, h, "room-1", "user-1")
	defer srv.Close()

	first := dial(t, srv)
	defer first.Close()
	waitForConn(t, h, "room-1", "user-1")

	second := dial(t, srv)
	defer second.Close()

	deadline := time.Now().Add(2 * time.Second)
	_ = first.SetReadDeadline(deadline)
	if _, _, err := first.ReadMessage(); err == nil {
		t.Fatal("expected the first connection to be closed once replaced")
	}
}

func TestHubDisconnectRemovesEmptyRoom(t *testing.T) {
	h := New()
	srv := upgradeServer(t, h, "room-1", "user-1")
	defer srv.Close()

	client := dial(t, srv)
	defer client.Close()
	waitForConn(t, h, "room-1", "user-1")
	conn, _ := h.Get("room-1", "user-1")
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := h.Get("room-1", "user-1"); !ok {
			h.mu.RLock()
			_, roomLeft := h.rooms["room-1"]
			h.mu.RUnlock()
			if roomLeft {
				t.Fatal("expected the empty room to be dropped from the hub")
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected connection to be removed from the hub after close")
}

func waitForConn(t *testing.T, h *Hub, roomID, userID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := h.Get(roomID, userID); ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for connection to register")
}

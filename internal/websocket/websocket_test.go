package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	go hub.Run()
	t.Cleanup(hub.Close)
	return hub
}

func registerClients(t *testing.T, hub *Hub, ids ...string) []*Client {
	t.Helper()
	out := make([]*Client, 0, len(ids))
	for _, id := range ids {
		c := &Client{ID: id, Send: make(chan OutgoingMessage, 4), Hub: hub}
		hub.register <- c
		out = append(out, c)
	}
	require.Eventually(t, func() bool { return hub.Count() == len(ids) }, time.Second, 5*time.Millisecond)
	return out
}

func TestHubBroadcastToPlayers(t *testing.T) {
	hub := startHub(t)
	cs := registerClients(t, hub, "A", "B", "C")

	hub.BroadcastToPlayers([]string{"A", "B"}, OutgoingMessage{Event: "room_ready", Data: map[string]any{"roomId": "room123"}})

	assert.Equal(t, "room_ready", (<-cs[0].Send).Event)
	assert.Equal(t, "room_ready", (<-cs[1].Send).Event)
	select {
	case <-cs[2].Send:
		assert.Fail(t, "C should NOT receive anything")
	default:
	}
}

func TestHubSendToPlayer(t *testing.T) {
	hub := startHub(t)
	cs := registerClients(t, hub, "A", "B")

	assert.True(t, hub.SendToPlayer("A", OutgoingMessage{Event: "private_msg", Data: "hello A"}))

	received := <-cs[0].Send
	assert.Equal(t, "private_msg", received.Event)
	assert.Equal(t, "hello A", received.Data)

	select {
	case <-cs[1].Send:
		assert.Fail(t, "B should NOT receive anything")
	default:
	}

	assert.False(t, hub.SendToPlayer("nobody", OutgoingMessage{Event: "x"}))
}

func TestHubSendDropsWhenBufferFull(t *testing.T) {
	hub := startHub(t)
	c := &Client{ID: "A", Send: make(chan OutgoingMessage, 1), Hub: hub}
	hub.register <- c
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	assert.True(t, hub.SendToPlayer("A", OutgoingMessage{Event: "first"}))
	assert.False(t, hub.SendToPlayer("A", OutgoingMessage{Event: "second"}))
	assert.Equal(t, "first", (<-c.Send).Event)
}

func TestHubUnregisterFiresOnDisconnectOnce(t *testing.T) {
	hub := NewHub()
	var mu sync.Mutex
	var gone []string
	hub.OnDisconnect = func(id string) {
		mu.Lock()
		defer mu.Unlock()
		gone = append(gone, id)
	}
	go hub.Run()
	defer hub.Close()

	cs := registerClients(t, hub, "A")

	// both pumps report the same client on exit
	hub.unregister <- cs[0]
	hub.unregister <- cs[0]

	require.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-cs[0].Send
	assert.False(t, open, "Send should be closed after unregister")

	// a round trip through Run guarantees the second unregister was handled
	hub.register <- &Client{ID: "B", Send: make(chan OutgoingMessage, 1), Hub: hub}
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"A"}, gone)
}

func TestHubIgnoresStaleClientWithReusedID(t *testing.T) {
	hub := startHub(t)
	old := registerClients(t, hub, "A")[0]
	fresh := &Client{ID: "A", Send: make(chan OutgoingMessage, 1), Hub: hub}
	hub.register <- fresh

	hub.unregister <- old
	hub.register <- &Client{ID: "sync", Send: make(chan OutgoingMessage, 1), Hub: hub}
	require.Eventually(t, func() bool { return hub.Count() == 2 }, time.Second, 5*time.Millisecond)

	assert.True(t, hub.SendToPlayer("A", OutgoingMessage{Event: "still-here"}))
	assert.Equal(t, "still-here", (<-fresh.Send).Event)
}

func TestHubDispatchesIncoming(t *testing.T) {
	hub := NewHub()
	got := make(chan IncomingMessage, 1)
	hub.OnIncoming = func(m IncomingMessage) { got <- m }
	go hub.Run()
	defer hub.Close()
	registerClients(t, hub, "A")

	assert.True(t, hub.deliver(IncomingMessage{From: "A", Event: "action", Data: json.RawMessage(`{"room":"r"}`)}))

	select {
	case m := <-got:
		assert.Equal(t, "A", m.From)
		assert.Equal(t, "action", m.Event)
		assert.JSONEq(t, `{"room":"r"}`, string(m.Data))
	case <-time.After(time.Second):
		t.Fatal("OnIncoming was not called")
	}
}

func TestHubDropsIncomingAfterLeave(t *testing.T) {
	hub := NewHub()
	var mu sync.Mutex
	var order []string
	hub.OnIncoming = func(m IncomingMessage) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, "incoming:"+m.From)
	}
	hub.OnDisconnect = func(id string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, "disconnect:"+id)
	}
	go hub.Run()
	defer hub.Close()

	c := &Client{ID: "a", Send: make(chan OutgoingMessage, 1), Hub: hub}
	require.True(t, hub.join(c))
	hub.leave(c)
	require.True(t, hub.deliver(IncomingMessage{From: "a", Event: "findMatch"}))

	// a round trip through Run guarantees the delivery was handled
	require.True(t, hub.join(&Client{ID: "sync", Send: make(chan OutgoingMessage, 1), Hub: hub}))
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	assert.False(t, hub.Connected("a"))
	assert.True(t, hub.Connected("sync"))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"disconnect:a"}, order)
}

func TestHubClose(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	cs := registerClients(t, hub, "A", "B")

	hub.Close()
	hub.Close()

	select {
	case <-hub.Done():
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	for _, c := range cs {
		_, open := <-c.Send
		assert.False(t, open)
	}
	assert.Equal(t, 0, hub.Count())
	assert.False(t, hub.deliver(IncomingMessage{From: "A"}))
	assert.False(t, hub.join(&Client{ID: "late"}))
}

func TestServeWSRoundTrip(t *testing.T) {
	gin.SetMode(gin.TestMode)

	hub := NewHub()
	incoming := make(chan IncomingMessage, 4)
	disconnected := make(chan string, 1)
	hub.OnIncoming = func(m IncomingMessage) {
		incoming <- m
		hub.SendToPlayer(m.From, OutgoingMessage{Event: "echo", Data: m.Data})
	}
	hub.OnDisconnect = func(id string) { disconnected <- id }
	go hub.Run()
	defer hub.Close()

	r := gin.New()
	r.GET("/ws", ServeWS(hub))
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(map[string]any{"event": "action", "data": map[string]any{"room": "r1", "x": 1}}))

	var in IncomingMessage
	select {
	case in = <-incoming:
	case <-time.After(2 * time.Second):
		t.Fatal("no incoming message")
	}
	assert.NotEmpty(t, in.From)
	assert.Equal(t, "action", in.Event)
	assert.JSONEq(t, `{"room":"r1","x":1}`, string(in.Data))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var out struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "echo", out.Event)
	assert.JSONEq(t, `{"room":"r1","x":1}`, string(out.Data))

	require.NoError(t, conn.Close())
	select {
	case id := <-disconnected:
		assert.Equal(t, in.From, id)
	case <-time.After(2 * time.Second):
		t.Fatal("OnDisconnect was not called")
	}
}

func BenchmarkHubBroadcast(b *testing.B) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	c1 := &Client{ID: "A", Send: make(chan OutgoingMessage, 1024), Hub: hub}
	c2 := &Client{ID: "B", Send: make(chan OutgoingMessage, 1024), Hub: hub}
	go func() {
		for range c1.Send {
		}
	}()
	go func() {
		for range c2.Send {
		}
	}()
	hub.register <- c1
	hub.register <- c2

	msg := OutgoingMessage{Event: "bench"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.BroadcastToPlayers([]string{"A", "B"}, msg)
	}
}

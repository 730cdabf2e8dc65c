package matchmaker

import (
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	ws "DuelRelay/internal/websocket"
)

// recordingHub 记录每个客户端收到的消息
type recordingHub struct {
	mu      sync.Mutex
	msgs    map[string][]ws.OutgoingMessage
	offline map[string]bool
	conns   int
}

func newRecordingHub() *recordingHub {
	return &recordingHub{
		msgs:    make(map[string][]ws.OutgoingMessage),
		offline: make(map[string]bool),
	}
}

func (h *recordingHub) SendToPlayer(id string, msg ws.OutgoingMessage) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.offline[id] {
		return false
	}
	h.msgs[id] = append(h.msgs[id], msg)
	return true
}

func (h *recordingHub) BroadcastToPlayers(ids []string, msg ws.OutgoingMessage) {
	for _, id := range ids {
		h.SendToPlayer(id, msg)
	}
}

func (h *recordingHub) Connected(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.offline[id]
}

func (h *recordingHub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns
}

func (h *recordingHub) goOffline(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.offline[id] = true
}

func (h *recordingHub) messages(id string) []ws.OutgoingMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ws.OutgoingMessage(nil), h.msgs[id]...)
}

func (h *recordingHub) events(id string) []string {
	var out []string
	for _, m := range h.messages(id) {
		out = append(out, m.Event)
	}
	return out
}

func (h *recordingHub) gameStarts(id string) []GameStart {
	var out []GameStart
	for _, m := range h.messages(id) {
		if m.Event == EventGameStart {
			out = append(out, m.Data.(GameStart))
		}
	}
	return out
}

func newRedisTestRepo(t *testing.T) (Repo, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisRepo(rdb), mr
}

// forEachRepo runs fn once per queue backend.
func forEachRepo(t *testing.T, fn func(t *testing.T, repo Repo)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryRepo()) })
	t.Run("redis", func(t *testing.T) {
		repo, _ := newRedisTestRepo(t)
		fn(t, repo)
	})
}

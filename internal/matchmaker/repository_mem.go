package matchmaker

import (
	"context"
	"sync"
)

type memRepo struct {
	mu     sync.Mutex
	queues map[string][]string // code -> ids, oldest first
}

func NewMemoryRepo() Repo {
	return &memRepo{queues: make(map[string][]string)}
}

func (m *memRepo) Enqueue(ctx context.Context, code, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[code] = append(m.queues[code], id)
	return int64(len(m.queues[code])), nil
}

func (m *memRepo) PopPair(ctx context.Context, code string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queues[code]
	if len(q) < 2 {
		return nil, nil
	}
	pair := []string{q[0], q[1]}
	m.set(code, q[2:])
	return pair, nil
}

func (m *memRepo) Remove(ctx context.Context, code, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[code]
	if !ok {
		return nil
	}
	kept := q[:0:0]
	for _, w := range q {
		if w != id {
			kept = append(kept, w)
		}
	}
	m.set(code, kept)
	return nil
}

// set stores q for code, deleting the entry when q is empty.
func (m *memRepo) set(code string, q []string) {
	if len(q) == 0 {
		delete(m.queues, code)
		return
	}
	m.queues[code] = append([]string(nil), q...)
}

func (m *memRepo) Count(ctx context.Context, code string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.queues[code])), nil
}

func (m *memRepo) Snapshot(ctx context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.queues))
	for code, q := range m.queues {
		out[code] = int64(len(q))
	}
	return out, nil
}

func (m *memRepo) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues = make(map[string][]string)
	return nil
}

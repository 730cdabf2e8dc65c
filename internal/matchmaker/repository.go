package matchmaker

import "context"

// Repo is the waiting queue: one FIFO of client ids per room code. A code
// with no waiters must not appear in Snapshot.
type Repo interface {
	// Enqueue appends id to the code's queue and returns the new length.
	Enqueue(ctx context.Context, code, id string) (int64, error)
	// PopPair removes and returns the two earliest ids when at least two
	// wait; otherwise it returns nil and leaves the queue untouched.
	PopPair(ctx context.Context, code string) ([]string, error)
	// Remove drops every occurrence of id from the code's queue.
	Remove(ctx context.Context, code, id string) error
	Count(ctx context.Context, code string) (int64, error)
	// Snapshot returns the length of every non-empty queue.
	Snapshot(ctx context.Context) (map[string]int64, error)
	// Reset empties all queues.
	Reset(ctx context.Context) error
}

package statsservice

import (
	"sync"
	"time"

	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// UpdateKey identifies one pending aggregate recompute.
type UpdateKey struct {
	Player     sharedtypes.PlayerName
	ServerGuid sharedtypes.ServerGuid
}

// RoundCompletion is the per-player slice of a completed round, kept with
// the key so milestone and best-score attribution point at the round that
// caused the update.
type RoundCompletion struct {
	RoundID     sharedtypes.RoundID
	MapName     string
	EndTime     time.Time
	Score       int
	Kills       int
	Deaths      int
	PlayMinutes float64
}

// PendingUpdate is one drained queue entry. Completion is nil for
// recompute-only triggers such as session closes and admin round edits.
type PendingUpdate struct {
	Key        UpdateKey
	Completion *RoundCompletion
}

// UpdateQueue coalesces aggregate update triggers between drains. Keys are
// deduplicated; a later completion for the same key replaces the earlier one,
// which bounds memory no matter how fast rounds complete. The recompute reads
// stored history, so collapsing triggers loses nothing.
type UpdateQueue struct {
	mu      sync.Mutex
	pending map[UpdateKey]*RoundCompletion
	order   []UpdateKey

	deduplicated func()
}

// NewUpdateQueue creates an empty queue. onDeduplicated may be nil; it fires
// once per enqueue that collapsed into an existing key.
func NewUpdateQueue(onDeduplicated func()) *UpdateQueue {
	return &UpdateQueue{
		pending:      make(map[UpdateKey]*RoundCompletion),
		deduplicated: onDeduplicated,
	}
}

// Enqueue registers a pending update. A nil completion never erases a stored
// one; attribution survives until the next drain.
func (q *UpdateQueue) Enqueue(player sharedtypes.PlayerName, server sharedtypes.ServerGuid, completion *RoundCompletion) {
	key := UpdateKey{Player: player, ServerGuid: server}

	q.mu.Lock()
	defer q.mu.Unlock()

	existing, ok := q.pending[key]
	if !ok {
		q.pending[key] = completion
		q.order = append(q.order, key)
		return
	}
	if completion != nil {
		q.pending[key] = completion
	} else {
		q.pending[key] = existing
	}
	if q.deduplicated != nil {
		q.deduplicated()
	}
}

// DrainBatch atomically snapshots and clears the queue, returning entries in
// first-enqueue order.
func (q *UpdateQueue) DrainBatch() []PendingUpdate {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.order) == 0 {
		return nil
	}
	batch := make([]PendingUpdate, 0, len(q.order))
	for _, key := range q.order {
		batch = append(batch, PendingUpdate{Key: key, Completion: q.pending[key]})
	}
	q.pending = make(map[UpdateKey]*RoundCompletion)
	q.order = nil
	return batch
}

// Len reports the number of pending keys.
func (q *UpdateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

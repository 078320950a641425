package core

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meetcall/meetcall/internal/domain"
)

type queueEntry struct {
	clientID domain.ClientID
	conn     SignalConnection
	since    time.Time
	seq      uint64
}

// Pair is the outcome of a successful match: the client whose join
// triggered it and the waiter it was paired with.
type Pair struct {
	NewcomerID domain.ClientID
	Newcomer   SignalConnection
	WaiterID   domain.ClientID
	Waiter     SignalConnection
}

// MatchQueue is the ordered set of waiting clients. Every operation runs
// to completion under one mutex, so a match decision can never interleave
// with a concurrent enqueue or dequeue.
type MatchQueue struct {
	mu      sync.Mutex
	entries []*queueEntry
	byID    map[domain.ClientID]*queueEntry
	seq     uint64
}

func NewMatchQueue() *MatchQueue {
	return &MatchQueue{byID: make(map[domain.ClientID]*queueEntry)}
}

// EnqueueAndMatch adds the client and immediately attempts pairing within
// the same critical section. Returns either a Pair (both entries removed)
// or the 1-based queue position. Re-joining while already queued is a
// no-op reporting the existing position with again set.
func (q *MatchQueue) EnqueueAndMatch(id domain.ClientID, conn SignalConnection) (pair *Pair, pos int, again bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.byID[id]; ok {
		return nil, q.positionLocked(id), true
	}

	q.seq++
	entry := &queueEntry{clientID: id, conn: conn, since: time.Now(), seq: q.seq}
	q.entries = append(q.entries, entry)
	q.byID[id] = entry

	waiter := q.oldestOtherLocked(id)
	if waiter == nil {
		pos := q.positionLocked(id)
		log.Debug().Str("module", "core.queue").Str("client", string(id)).Int("position", pos).Msg("queued")
		return nil, pos, false
	}

	q.removeLocked(entry.clientID)
	q.removeLocked(waiter.clientID)
	log.Info().Str("module", "core.queue").Str("client", string(id)).Str("waiter", string(waiter.clientID)).Msg("matched")
	return &Pair{
		NewcomerID: entry.clientID,
		Newcomer:   entry.conn,
		WaiterID:   waiter.clientID,
		Waiter:     waiter.conn,
	}, 0, false
}

// Enqueue inserts an entry without attempting a match. Used to restore a
// waiter when a step downstream of pairing failed. Returns the 1-based
// position.
func (q *MatchQueue) Enqueue(id domain.ClientID, conn SignalConnection) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.byID[id]; ok {
		return q.positionLocked(id)
	}
	q.seq++
	entry := &queueEntry{clientID: id, conn: conn, since: time.Now(), seq: q.seq}
	q.entries = append(q.entries, entry)
	q.byID[id] = entry
	return q.positionLocked(id)
}

// Dequeue removes the client's entry if present. Removing an absent entry
// is not an error.
func (q *MatchQueue) Dequeue(id domain.ClientID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.byID[id]; !ok {
		return false
	}
	q.removeLocked(id)
	log.Debug().Str("module", "core.queue").Str("client", string(id)).Msg("dequeued")
	return true
}

func (q *MatchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Position reports the 1-based position of the client, 0 when not queued.
func (q *MatchQueue) Position(id domain.ClientID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.positionLocked(id)
}

func (q *MatchQueue) positionLocked(id domain.ClientID) int {
	for i, e := range q.entries {
		if e.clientID == id {
			return i + 1
		}
	}
	return 0
}

// oldestOtherLocked picks the longest-waiting entry other than id, ties
// broken by insertion order.
func (q *MatchQueue) oldestOtherLocked(id domain.ClientID) *queueEntry {
	var best *queueEntry
	for _, e := range q.entries {
		if e.clientID == id {
			continue
		}
		if best == nil || e.since.Before(best.since) || (e.since.Equal(best.since) && e.seq < best.seq) {
			best = e
		}
	}
	return best
}

func (q *MatchQueue) removeLocked(id domain.ClientID) {
	delete(q.byID, id)
	for i, e := range q.entries {
		if e.clientID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return
		}
	}
}

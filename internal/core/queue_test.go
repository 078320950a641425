package core

import (
	"sync"
	"testing"

	"github.com/meetcall/meetcall/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []Frame
	fail   bool
}

func (f *fakeConn) TrySend(fr Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return ErrNoSuchCall
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) Close() {}

func (f *fakeConn) sent() []Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Frame, len(f.frames))
	copy(out, f.frames)
	return out
}

func TestEnqueueAloneQueues(t *testing.T) {
	q := NewMatchQueue()
	pair, pos, again := q.EnqueueAndMatch("a", &fakeConn{})
	if pair != nil {
		t.Fatalf("expected no match with one entry, got pair %v", pair)
	}
	if pos != 1 || again {
		t.Fatalf("expected position 1, fresh entry; got pos=%d again=%v", pos, again)
	}
	if q.Len() != 1 {
		t.Fatalf("expected queue length 1, got %d", q.Len())
	}
}

func TestDuplicateEnqueueIsNoOp(t *testing.T) {
	q := NewMatchQueue()
	q.EnqueueAndMatch("a", &fakeConn{})
	pair, pos, again := q.EnqueueAndMatch("a", &fakeConn{})
	if pair != nil {
		t.Fatal("duplicate enqueue must not match")
	}
	if !again || pos != 1 {
		t.Fatalf("expected existing position 1, got pos=%d again=%v", pos, again)
	}
	if q.Len() != 1 {
		t.Fatalf("queue membership must be a set, length %d", q.Len())
	}
}

func TestSecondJoinMatchesOldestWaiter(t *testing.T) {
	q := NewMatchQueue()
	q.EnqueueAndMatch("a", &fakeConn{})
	q.EnqueueAndMatch("b", &fakeConn{})
	pair, _, _ := q.EnqueueAndMatch("c", &fakeConn{})
	if pair == nil {
		t.Fatal("expected a match")
	}
	if pair.NewcomerID != "c" || pair.WaiterID != "a" {
		t.Fatalf("expected c paired with longest-waiting a, got %s/%s", pair.NewcomerID, pair.WaiterID)
	}
	if q.Len() != 1 || q.Position("b") != 1 {
		t.Fatalf("expected only b left at position 1")
	}
}

func TestDequeueIdempotent(t *testing.T) {
	q := NewMatchQueue()
	q.EnqueueAndMatch("a", &fakeConn{})
	if !q.Dequeue("a") {
		t.Fatal("expected removal")
	}
	if q.Dequeue("a") {
		t.Fatal("second removal must report absent, not fail")
	}
	if q.Dequeue("ghost") {
		t.Fatal("removing an absent entry is a no-op")
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}

func TestConcurrentJoinsNeverDoubleMatch(t *testing.T) {
	const n = 100
	q := NewMatchQueue()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		matched = map[domain.ClientID]int{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		id := domain.ClientID(string(rune('A' + i/26)) + string(rune('a'+i%26)))
		go func() {
			defer wg.Done()
			pair, _, _ := q.EnqueueAndMatch(id, &fakeConn{})
			if pair == nil {
				return
			}
			mu.Lock()
			matched[pair.NewcomerID]++
			matched[pair.WaiterID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	for id, count := range matched {
		if count != 1 {
			t.Fatalf("client %s matched %d times", id, count)
		}
	}
	if len(matched)+q.Len() != n {
		t.Fatalf("entries lost: %d matched, %d waiting, want %d total", len(matched), q.Len(), n)
	}
}

func TestEnqueueRestoresWithoutMatching(t *testing.T) {
	q := NewMatchQueue()
	q.EnqueueAndMatch("a", &fakeConn{})
	pos := q.Enqueue("b", &fakeConn{})
	if pos != 2 {
		t.Fatalf("expected restored entry at position 2, got %d", pos)
	}
	if q.Len() != 2 {
		t.Fatalf("restore must not pair, queue length %d", q.Len())
	}
}

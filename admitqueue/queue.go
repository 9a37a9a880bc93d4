// Package admitqueue implements the FIFO of suspended handshakes
// drained during UNDER_ATTACK, grounded on the teacher's bucket-gated
// concurrency pattern (gateway/manager.go's WaitForIdentifyRatelimit /
// BucketStore) generalized from a per-shard identify gate to a
// per-source reconnect throttle plus a process-wide drain budget.
package admitqueue

import (
	"container/list"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Entry is one suspended handshake. Resume is invoked by Drain and must
// re-enter the Admission Controller at step 6 of spec.md §4.1.
type Entry struct {
	Source     string
	EnqueuedAt time.Time
	Resume     func()

	elem *list.Element
}

// Queue is a FIFO with a per-source throttle on re-queue attempts. It
// has no capacity limit; maxPolls bounds only how many entries each
// Drain removes. All exported methods are safe for concurrent use.
type Queue struct {
	maxPolls    int
	rejoinDelay time.Duration
	log         zerolog.Logger

	mu      sync.Mutex
	entries *list.List // of *Entry

	throttleMu sync.Mutex
	throttle   map[string]*rate.Limiter

	stop chan struct{}
}

// New constructs a Queue. maxPolls bounds how many entries Drain removes
// per tick; rejoinDelay is the minimum gap between queue attempts from
// the same source.
func New(maxPolls int, rejoinDelay time.Duration, log zerolog.Logger) *Queue {
	return &Queue{
		maxPolls:    maxPolls,
		rejoinDelay: rejoinDelay,
		log:         log,
		entries:     list.New(),
		throttle:    make(map[string]*rate.Limiter),
		stop:        make(chan struct{}),
	}
}

// Throttled reports whether source has attempted to (re-)queue within
// rejoinDelay of its last allowed attempt. Only an allowed attempt
// starts a new window; a throttled attempt leaves the window as it was.
func (q *Queue) Throttled(source string) bool {
	q.throttleMu.Lock()
	defer q.throttleMu.Unlock()

	lim, ok := q.throttle[source]
	if !ok {
		// One token available immediately, refilling once every
		// rejoinDelay: exactly models a "one attempt per rejoinDelay"
		// per-source gate.
		lim = rate.NewLimiter(rate.Every(q.rejoinDelay), 1)
		q.throttle[source] = lim
	}
	return !lim.Allow()
}

// Enqueue appends a handshake to the FIFO. The caller (the Admission
// Controller) is responsible for telling the protocol layer to hold the
// connection open; Enqueue itself only records bookkeeping.
func (q *Queue) Enqueue(source string, resume func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e := &Entry{Source: source, EnqueuedAt: time.Now(), Resume: resume}
	e.elem = q.entries.PushBack(e)
}

// Len returns the number of handshakes currently suspended.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entries.Len()
}

// Cancel silently discards a queued entry whose underlying connection
// closed before it drained.
func (q *Queue) Cancel(e *Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e.elem != nil {
		q.entries.Remove(e.elem)
		e.elem = nil
	}
}

// Drain removes up to maxPolls entries FIFO-wise and invokes each
// Resume callback. Intended to be called once per second by Run.
func (q *Queue) Drain() {
	q.mu.Lock()
	drained := make([]*Entry, 0, q.maxPolls)
	for i := 0; i < q.maxPolls; i++ {
		front := q.entries.Front()
		if front == nil {
			break
		}
		q.entries.Remove(front)
		drained = append(drained, front.Value.(*Entry))
	}
	q.mu.Unlock()

	for _, e := range drained {
		e.elem = nil
		q.log.Debug().Str("source", e.Source).Dur("waited", time.Since(e.EnqueuedAt)).Msg("draining queued handshake")
		e.Resume()
	}
}

// Run drives the once-per-second drain tick until Stop is called.
func (q *Queue) Run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			q.Drain()
		}
	}
}

// Stop ends the drain loop.
func (q *Queue) Stop() {
	close(q.stop)
}

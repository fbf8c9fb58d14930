package engine

import (
	"sync"
	"time"
)

// subscriberBufferSize is the channel buffer for each status subscriber. A job
// emits at most three events, so a subscriber never drops one.
const subscriberBufferSize = 4

// closedTopicLimit caps how many finished jobs keep a closed-topic marker.
// Past it the oldest markers are dropped; a late subscriber to such a job gets
// an open channel, so callers must check the job record after subscribing.
const closedTopicLimit = 4096

// StatusEvent reports that a job entered a status.
type StatusEvent struct {
	JobID  string    `json:"job_id"`
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

// StatusBroker fans out per-job status transitions to subscribers.
// It is safe for concurrent use.
//
// Closed topics are retained as markers so that late subscribers (those
// subscribing after a job finishes) receive a closed channel instead of
// blocking forever. At most closedTopicLimit markers are kept, and open topics
// are dropped once their last subscriber leaves.
type StatusBroker struct {
	mu     sync.Mutex
	topics map[string]*statusTopic
	closed []string // marker ids, oldest first
}

type statusTopic struct {
	subs   map[int]chan StatusEvent
	nextID int
	closed bool
}

// NewStatusBroker creates a new status broker.
func NewStatusBroker() *StatusBroker {
	return &StatusBroker{
		topics: make(map[string]*statusTopic),
	}
}

// Subscribe returns a channel that receives status events for the given job
// and an unsubscribe function. If the job has already finished (Close was
// called), the returned channel is immediately closed.
func (b *StatusBroker) Subscribe(jobID string) (<-chan StatusEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[jobID]
	if !ok {
		t = &statusTopic{subs: make(map[int]chan StatusEvent)}
		b.topics[jobID] = t
	}

	ch := make(chan StatusEvent, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
		if !t.closed && len(t.subs) == 0 && b.topics[jobID] == t {
			delete(b.topics, jobID)
		}
	}
}

// Publish sends ev to all subscribers of ev.JobID. Events are dropped for
// subscribers whose buffers are full.
func (b *StatusBroker) Publish(ev StatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[ev.JobID]
	if !ok || t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close signals that the job reached a terminal status. All subscriber
// channels are closed and future Subscribe calls return a closed channel.
func (b *StatusBroker) Close(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[jobID]
	if !ok {
		t = &statusTopic{subs: make(map[int]chan StatusEvent)}
		b.topics[jobID] = t
	}
	if t.closed {
		return
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}

	b.closed = append(b.closed, jobID)
	if len(b.closed) > closedTopicLimit {
		delete(b.topics, b.closed[0])
		b.closed = b.closed[1:]
	}
}

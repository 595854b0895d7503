package relay

import (
	"sync"
	"sync/atomic"
)

const (
	subscriberBufSize = 256
	historySize       = 64
)

// Event is one monitor transition to be streamed to subscribers.
type Event struct {
	ID      int64
	Feed    string
	TabID   string
	Payload []byte
}

// Broker fans out events to all subscribed SSE clients and keeps a short
// history so new subscribers can catch up.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextSubID   atomic.Int64

	seq     int64
	history []Event
}

// NewBroker creates a new SSE event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]chan Event),
	}
}

// Subscribe registers a new client. The channel is buffered; slow consumers
// will have events dropped.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id := b.nextSubID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// SubscribeSince registers a new client and returns the retained events
// newer than lastID. Every later event arrives on the channel and none of the
// returned ones do.
func (b *Broker) SubscribeSince(lastID int64) (int64, []Event, <-chan Event) {
	id := b.nextSubID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[id] = ch
	return id, b.sinceLocked(lastID), ch
}

// Publish stamps the event with the next sequence id and sends it to all
// subscribers without blocking.
func (b *Broker) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	evt.ID = b.seq
	b.history = append(b.history, evt)
	if len(b.history) > historySize {
		b.history = append([]Event(nil), b.history[len(b.history)-historySize:]...)
	}

	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Since returns retained events with ID greater than lastID, oldest first.
func (b *Broker) Since(lastID int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sinceLocked(lastID)
}

func (b *Broker) sinceLocked(lastID int64) []Event {
	var out []Event
	for _, evt := range b.history {
		if evt.ID > lastID {
			out = append(out, evt)
		}
	}
	return out
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

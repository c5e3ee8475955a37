package msg

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrSubscribed is returned when a pid subscribes twice to the same topic.
var ErrSubscribed = errors.New("already subscribed")

const subscriberBuffer = 16

// PubSub fans messages out to subscribers of a topic. Publish never blocks; a
// subscriber whose buffer is full misses the message.
type PubSub struct {
	mux    *sync.Mutex
	pid    uuid.UUID
	topics map[Topic]map[uuid.UUID]chan Msg
}

// NewPublisher returns a PubSub publishing as pid.
func NewPublisher(pid uuid.UUID) *PubSub {
	return &PubSub{
		mux:    &sync.Mutex{},
		pid:    pid,
		topics: make(map[Topic]map[uuid.UUID]chan Msg),
	}
}

// PID is a getter for the publisher id
func (p *PubSub) PID() uuid.UUID {
	return p.pid
}

// Subscribe returns a channel on which messages of topic are delivered to pid.
func (p *PubSub) Subscribe(pid uuid.UUID, topic Topic) (<-chan Msg, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	subs, ok := p.topics[topic]
	if !ok {
		subs = make(map[uuid.UUID]chan Msg)
		p.topics[topic] = subs
	}
	if _, ok := subs[pid]; ok {
		return nil, ErrSubscribed
	}
	ch := make(chan Msg, subscriberBuffer)
	subs[pid] = ch
	return ch, nil
}

// Unsubscribe closes every channel held by pid.
func (p *PubSub) Unsubscribe(pid uuid.UUID) {
	p.mux.Lock()
	defer p.mux.Unlock()
	for _, subs := range p.topics {
		if ch, ok := subs[pid]; ok {
			close(ch)
			delete(subs, pid)
		}
	}
}

// Publish sends payload to every subscriber of topic and returns how many
// received it.
func (p *PubSub) Publish(topic Topic, payload interface{}) int {
	p.mux.Lock()
	defer p.mux.Unlock()
	m := New(p.pid, topic, payload)
	sent := 0
	for _, ch := range p.topics[topic] {
		select {
		case ch <- m:
			sent++
		default:
		}
	}
	return sent
}

// Close unsubscribes everyone.
func (p *PubSub) Close() {
	p.mux.Lock()
	defer p.mux.Unlock()
	for topic, subs := range p.topics {
		for _, ch := range subs {
			close(ch)
		}
		delete(p.topics, topic)
	}
}

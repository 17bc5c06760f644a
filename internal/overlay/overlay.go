// Package overlay provides the default enr.PubSub implementation: an
// in-process topic fanout bus. It gives every coordination component a
// working transport for local development, single-node bootstrap, and
// tests without requiring a live network stack, the same way
// internal/raftledger's bootstrap-leader path gives RaftCreditLedger a
// working consensus stand-in before a real cluster exists.
package overlay

import (
	"sync"

	"github.com/mycelia-net/mycelia/internal/netid"
	"github.com/mycelia-net/mycelia/pkg/enr"
)

// Bus is an in-process implementation of enr.PubSub. Publishing on a topic
// fans the message out to every active subscription on that topic.
type Bus struct {
	local netid.NodeId

	mu   sync.RWMutex
	subs map[string][]*subscription
}

// New constructs an empty Bus for local identifies itself as local when
// stamping the Source field of delivered events.
func New(local netid.NodeId) *Bus {
	return &Bus{local: local, subs: make(map[string][]*subscription)}
}

type subscription struct {
	topic string
	ch    chan enr.Event
	bus   *Bus
	once  sync.Once
}

// Publish delivers data to every current subscriber of topic. It never
// blocks: a subscriber with a full event channel drops the event.
func (b *Bus) Publish(topic string, data []byte) error {
	b.mu.RLock()
	subs := append([]*subscription(nil), b.subs[topic]...)
	b.mu.RUnlock()

	src := b.local
	for _, s := range subs {
		evt := enr.Event{Kind: enr.EventMessageReceived, Topic: topic, Data: data, Source: &src}
		select {
		case s.ch <- evt:
		default:
		}
	}
	return nil
}

// Subscribe returns a new Subscription delivering future Publish calls on
// topic.
func (b *Bus) Subscribe(topic string) (enr.Subscription, error) {
	s := &subscription{topic: topic, ch: make(chan enr.Event, 256), bus: b}
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], s)
	b.mu.Unlock()
	return s, nil
}

// Unsubscribe removes every subscription this Bus holds for topic. Callers
// holding a Subscription for the topic should prefer closing it directly.
func (b *Bus) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs[topic] {
		s.closeLocked()
	}
	delete(b.subs, topic)
	return nil
}

func (s *subscription) Events() <-chan enr.Event {
	return s.ch
}

func (s *subscription) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.closeLocked()
	peers := s.bus.subs[s.topic]
	for i, p := range peers {
		if p == s {
			s.bus.subs[s.topic] = append(peers[:i], peers[i+1:]...)
			break
		}
	}
	return nil
}

func (s *subscription) closeLocked() {
	s.once.Do(func() { close(s.ch) })
}

// PublishFuncFor returns Publish as an enr.PublishFunc; the caller names
// the topic on every call.
func (b *Bus) PublishFuncFor() enr.PublishFunc {
	return b.Publish
}

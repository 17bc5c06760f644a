package enr

import "github.com/mycelia-net/mycelia/internal/netid"

// PubSub is the capability the coordination core requires of the overlay:
// non-blocking publish, subscribe/unsubscribe, and an event stream. Best
// effort, no ordering across topics, duplicates are possible.
type PubSub interface {
	Publish(topic string, data []byte) error
	Subscribe(topic string) (Subscription, error)
	Unsubscribe(topic string) error
}

// Subscription delivers events for one subscribed topic until Close.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// EventKind discriminates the event stream the overlay emits.
type EventKind int

const (
	EventMessageReceived EventKind = iota
	EventPeerConnected
	EventPeerDisconnected
	EventSubscribed
	EventUnsubscribed
)

// Event is one item from the overlay's event stream.
type Event struct {
	Kind      EventKind
	Topic     string
	Data      []byte
	Source    *netid.NodeId
	MessageID string
}

// PublishFunc adapts a bound PubSub.Publish call into the closure-shaped
// capability each component receives at construction.
type PublishFunc func(topic string, data []byte) error

package events

import (
	messagebus "github.com/vardius/message-bus"
)

// Topic identifies an event stream on the in-process bus.
type Topic string

const (
	// FolderTopologyChanged is published whenever Folder rows are created
	// or deleted. No payload; consumers re-read the folder tree.
	FolderTopologyChanged Topic = "event-folder-topology-changed"

	// TagDataChanged is published after a committed tag-association
	// rebuild, for the full-text search collaborator.
	TagDataChanged Topic = "event-tag-data-changed"

	// StatusUpdated carries the current human-readable status text.
	StatusUpdated Topic = "event-status-updated"
)

// Broker wraps the message bus with typed topics.
type Broker struct {
	bus messagebus.MessageBus
}

// NewBroker creates a broker with the given per-subscriber queue size.
func NewBroker(queueSize int) *Broker {
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Broker{
		bus: messagebus.New(queueSize),
	}
}

// Subscribe registers a handler function for a topic. The handler signature
// must match the publisher's arguments for that topic.
func (b *Broker) Subscribe(topic Topic, fn interface{}) error {
	return b.bus.Subscribe(string(topic), fn)
}

// Unsubscribe removes a previously registered handler.
func (b *Broker) Unsubscribe(topic Topic, fn interface{}) error {
	return b.bus.Unsubscribe(string(topic), fn)
}

// Publish emits an event with no payload.
func (b *Broker) Publish(topic Topic) {
	b.bus.Publish(string(topic))
}

// PublishWithData emits an event carrying a payload.
func (b *Broker) PublishWithData(topic Topic, data ...interface{}) {
	b.bus.Publish(string(topic), data...)
}

// Close drops all subscribers for a topic.
func (b *Broker) Close(topic Topic) {
	b.bus.Close(string(topic))
}

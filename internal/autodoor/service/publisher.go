package service

// Publisher is the broadcast primitive the kernel emits events through.
// Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(event string, payload any)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(event string, payload any)

func (f PublisherFunc) Publish(event string, payload any) { f(event, payload) }

// NopPublisher drops every event.
var NopPublisher Publisher = PublisherFunc(func(string, any) {})

// Package eventbus carries domain notifications between components that must
// not call each other directly, such as the clone trainer and the voice
// registry.
package eventbus

import (
	evbus "github.com/asaskevich/EventBus"
)

// Bus is the subset of the event bus the domain depends on.
type Bus interface {
	Publish(topic string, args ...interface{})
	PublishAsync(topic string, args ...interface{})
	Subscribe(topic string, fn interface{}) error
	Unsubscribe(topic string, handler interface{}) error
	HasCallback(topic string) bool
}

// New creates a plain synchronous bus.
func New() evbus.Bus {
	return evbus.New()
}

// Package bus is the outbound side of the node: everything the relay
// produces goes through a Publisher.
package bus

import (
	"time"

	"go.uber.org/multierr"
)

// Publisher delivers one message on a topic.
type Publisher interface {
	Publish(topic string, msg any) error
}

// Message is what subscribers and the UDP sink see.
type Message struct {
	Topic string    `json:"topic"`
	Stamp time.Time `json:"stamp"`
	Msg   any       `json:"msg"`
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(topic string, msg any) error {
	var err error
	for _, p := range m {
		if p == nil {
			continue
		}
		err = multierr.Append(err, p.Publish(topic, msg))
	}
	return err
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(topic string, msg any) error

func (f PublisherFunc) Publish(topic string, msg any) error { return f(topic, msg) }

package rabbit

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Dummy is used when rabbitmq is disabled; published events are dropped.
type Dummy struct{}

func (n *Dummy) Consume(ctx context.Context, consumeFunction func(ctx context.Context, msg amqp.Delivery) error) error {
	<-ctx.Done()
	return nil
}

func (n *Dummy) Publish(ctx context.Context, body []byte) error {
	return nil
}

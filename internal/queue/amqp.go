package queue

import (
	"context"
	"encoding/json"

	"github.com/streadway/amqp"
)

// AMQPPublisher publishes jobs to a durable RabbitMQ queue.
type AMQPPublisher struct {
	ch    *amqp.Channel
	queue string
}

var _ Publisher = (*AMQPPublisher)(nil)

// NewAMQPPublisher declares the durable queue and returns a publisher bound
// to it. The caller owns the connection lifecycle.
func NewAMQPPublisher(conn *amqp.Connection, queue string) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		return nil, err
	}
	return &AMQPPublisher{ch: ch, queue: queue}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return p.ch.Publish(
		"",      // default exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Close releases the underlying channel.
func (p *AMQPPublisher) Close() error { return p.ch.Close() }

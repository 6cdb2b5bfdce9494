package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const DefaultQueueName = "appointment_notifications"

// AMQPDispatcher publishes lifecycle events onto a durable RabbitMQ queue
// consumed by the external notification service.
type AMQPDispatcher struct {
	ch    *amqp.Channel
	queue string
	log   *zap.Logger
}

func NewAMQPDispatcher(conn *amqp.Connection, queue string, log *zap.Logger) (*AMQPDispatcher, error) {
	if queue == "" {
		queue = DefaultQueueName
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	return &AMQPDispatcher{
		ch:    ch,
		queue: queue,
		log:   log,
	}, nil
}

func (d *AMQPDispatcher) Dispatch(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = d.ch.PublishWithContext(ctx,
		"",      // exchange
		d.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}

	return nil
}

func (d *AMQPDispatcher) Close() error {
	return d.ch.Close()
}

// Package bus wraps RabbitMQ (amqp091-go) with the topology, confirm,
// and reconnect discipline the saga depends on: one fanout exchange
// per event, a durable consumer queue with a companion DLX/DLQ pair,
// publisher confirms on a 5s deadline, and exponential reconnect
// backoff between 2s and 30s.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// PublishConfirmTimeout is the hard deadline for awaiting a publisher
// confirm.
const PublishConfirmTimeout = 5 * time.Second

// ReconnectMinBackoff and ReconnectMaxBackoff bound the consumer
// loop's exponential reconnect delay.
const (
	ReconnectMinBackoff = 2 * time.Second
	ReconnectMaxBackoff = 30 * time.Second
)

// Prefetch is the per-channel QoS applied to every consumer.
const Prefetch = 10

// ConnConfig names the RabbitMQ endpoint to dial.
type ConnConfig struct {
	User  string
	Pass  string
	Host  string
	Port  string
	VHost string
}

func (c ConnConfig) url() string {
	vhost := c.VHost
	if vhost == "/" {
		vhost = ""
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s/%s", c.User, c.Pass, c.Host, c.Port, vhost)
}

// Bus is a long-lived RabbitMQ connection. Publish opens a short-lived
// channel per call; Consume owns one exclusive channel for its whole
// lifetime, per the "never multiplex consumers" design note.
type Bus struct {
	cfg    ConnConfig
	conn   *amqp.Connection
	logger *zap.Logger
}

// Connect dials RabbitMQ and returns a ready Bus.
func Connect(cfg ConnConfig, logger *zap.Logger) (*Bus, error) {
	conn, err := amqp.Dial(cfg.url())
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	return &Bus{cfg: cfg, conn: conn, logger: logger}, nil
}

// Close closes the underlying connection.
func (b *Bus) Close() error {
	return b.conn.Close()
}

// ensureExchange declares the durable fanout exchange for event,
// idempotently.
func ensureExchange(ch *amqp.Channel, event string) error {
	return ch.ExchangeDeclare(event, "fanout", true, false, false, false, nil)
}

// ensureConsumerTopology declares the event's exchange, the consumer's
// durable queue bound to it, and the queue's companion DLX/DLQ pair
// per §6: queue.dlx (direct) bound to queue.dlq with routing key
// queue, and the live queue declares x-dead-letter-exchange=queue.dlx,
// x-dead-letter-routing-key=queue.
func ensureConsumerTopology(ch *amqp.Channel, event, queueName string) error {
	if err := ensureExchange(ch, event); err != nil {
		return fmt.Errorf("declare exchange %s: %w", event, err)
	}

	dlx := queueName + ".dlx"
	dlq := queueName + ".dlq"
	if err := ch.ExchangeDeclare(dlx, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlx %s: %w", dlx, err)
	}
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlq %s: %w", dlq, err)
	}
	if err := ch.QueueBind(dlq, queueName, dlx, false, nil); err != nil {
		return fmt.Errorf("bind dlq %s to %s: %w", dlq, dlx, err)
	}

	q, err := ch.QueueDeclare(queueName, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    dlx,
		"x-dead-letter-routing-key": queueName,
	})
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queueName, err)
	}
	if err := ch.QueueBind(q.Name, "", event, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to exchange %s: %w", queueName, event, err)
	}
	return nil
}

// Publish marshals payload as JSON and publishes it to event's fanout
// exchange as a persistent message, synchronously awaiting a publisher
// confirm within PublishConfirmTimeout.
func (b *Bus) Publish(ctx context.Context, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}

	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel for %s: %w", event, err)
	}
	defer ch.Close()

	if err := ensureExchange(ch, event); err != nil {
		return fmt.Errorf("declare exchange %s: %w", event, err)
	}

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("enable confirms on %s channel: %w", event, err)
	}
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	err = ch.PublishWithContext(ctx, event, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}

	select {
	case confirm := <-confirms:
		if !confirm.Ack {
			return fmt.Errorf("publish %s: broker nacked", event)
		}
		return nil
	case <-time.After(PublishConfirmTimeout):
		return fmt.Errorf("publish %s: confirm timed out after %s", event, PublishConfirmTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler processes one delivery's body. Returning nil acks the
// message; returning an error rejects it without requeue, routing it
// to the queue's DLQ. Handlers must be idempotent: the bus may
// redeliver.
type Handler func(ctx context.Context, body []byte) error

// Consume runs handler against queueName bound to event's exchange
// until ctx is cancelled. When the channel fails it opens a new one on
// the Bus's connection and redeclares the topology, with exponential
// backoff (2s-30s cap) between attempts. The connection itself is not
// redialled: once it is closed, every attempt fails to open a channel
// and the loop keeps retrying at the capped interval. It owns its
// channel for its entire lifetime and never shares it with another
// consumer.
func (b *Bus) Consume(ctx context.Context, event, queueName string, handler Handler) {
	backoff := ReconnectMinBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		err := b.consumeOnce(ctx, event, queueName, handler)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			b.logger.Error("consumer loop failed, reconnecting",
				zap.String("queue", queueName), zap.Error(err), zap.Duration("backoff", backoff))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > ReconnectMaxBackoff {
			backoff = ReconnectMaxBackoff
		}
	}
}

// consumeOnce declares topology fresh, consumes until the delivery
// channel closes or ctx is cancelled, and returns any terminal error.
func (b *Bus) consumeOnce(ctx context.Context, event, queueName string, handler Handler) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ensureConsumerTopology(ch, event, queueName); err != nil {
		return err
	}
	if err := ch.Qos(Prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queueName, err)
	}

	chanClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr, ok := <-chanClosed:
			if !ok {
				return nil
			}
			return fmt.Errorf("channel closed: %w", amqpErr)
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed unexpectedly")
			}
			if err := handler(ctx, d.Body); err != nil {
				b.logger.Warn("handler failed, routing to DLQ",
					zap.String("queue", queueName), zap.Error(err))
				_ = d.Reject(false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

package tabungan

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"tabungan/models"
)

const (
	EventCreated  = "transaction.created"
	EventVerified = "transaction.verified"
	EventRejected = "transaction.rejected"

	// EventsChannel is the redis pub/sub channel.
	EventsChannel = "tabungan_events"
)

// Event is published after a transaction is created or resolved.
type Event struct {
	Type          string                 `json:"event_type"`
	TransactionID string                 `json:"transaction_id"`
	StudentID     uint                   `json:"student_id"`
	TxType        models.TransaksiType   `json:"transaction_type"`
	Status        models.TransaksiStatus `json:"status"`
	Nominal       int64                  `json:"nominal"`
	ActorID       uint                   `json:"actor_id"`
	BalanceAfter  *int64                 `json:"balance_after,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

func newEvent(typ string, t *models.Transaksi, actor uint, at time.Time) Event {
	return Event{
		Type:          typ,
		TransactionID: t.ID,
		StudentID:     t.SiswaID,
		TxType:        t.Type,
		Status:        t.Status,
		Nominal:       t.Nominal,
		ActorID:       actor,
		Timestamp:     at,
	}
}

// Publisher delivers events. Publishing happens after commit and is best
// effort: failures are logged, never returned to the caller.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

// RedisPublisher publishes events on a redis channel.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: EventsChannel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// AMQPPublisher publishes events to a topic exchange, routing key = event type.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewAMQPPublisher dials the broker and declares a durable topic exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.ch.PublishWithContext(ctx, p.exchange, ev.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.TransactionID + ":" + ev.Type,
		Timestamp:    ev.Timestamp,
		Body:         body,
	})
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

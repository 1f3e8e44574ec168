package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange receives confirmation messages for the mail worker.
const DefaultExchange = "notifications_direct"

// DefaultRoutingKey routes confirmations to the mail queue.
const DefaultRoutingKey = "order.confirmation"

// confirmationEnvelope is the JSON body published to the exchange.
type confirmationEnvelope struct {
	MessageID string    `json:"message_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	HTML      string    `json:"html"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// publisher is the slice of *amqp.Channel the transport uses.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
}

// AMQPTransport hands confirmations to a mail worker through RabbitMQ.
type AMQPTransport struct {
	exchange   string
	routingKey string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   publisher
}

// DialAMQP connects, declares the durable direct exchange and returns a transport.
func DialAMQP(url, exchange, routingKey string) (*AMQPTransport, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if routingKey == "" {
		routingKey = DefaultRoutingKey
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	t := &AMQPTransport{exchange: exchange, routingKey: routingKey, conn: conn}
	if err := t.openChannel(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return t, nil
}

func (t *AMQPTransport) openChannel() error {
	ch, err := t.conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(t.exchange, "direct", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("rabbitmq declare exchange %s: %w", t.exchange, err)
	}
	t.ch = ch
	return nil
}

func (t *AMQPTransport) Name() string { return "amqp" }

// Send publishes a persistent JSON message; the id is a fresh UUID.
func (t *AMQPTransport) Send(ctx context.Context, msg Message) (string, error) {
	id := uuid.NewString()
	body, err := json.Marshal(confirmationEnvelope{
		MessageID: id,
		From:      msg.From,
		To:        msg.To,
		Subject:   msg.Subject,
		HTML:      msg.HTML,
		Text:      msg.Text,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("encode confirmation: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ch == nil || t.ch.IsClosed() {
		if t.conn == nil || t.conn.IsClosed() {
			return "", errors.New("rabbitmq: connection is not open")
		}
		if err := t.openChannel(); err != nil {
			return "", err
		}
	}
	err = t.ch.PublishWithContext(ctx, t.exchange, t.routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    id,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return "", fmt.Errorf("rabbitmq publish: %w", err)
	}
	return id, nil
}

// Close closes the channel and connection.
func (t *AMQPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.ch.(*amqp.Channel); ok && c != nil {
		_ = c.Close()
	}
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

// Package notify is the courier notification channel. Offers and
// cancellations go out as JSON messages on one durable queue per courier, so
// a temporarily-unreachable courier picks its backlog up on reconnect.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"
)

const (
	MessageOffer  = "offer"
	MessageCancel = "cancel"
)

// OfferMessage is the identical payload every eligible courier receives.
type OfferMessage struct {
	OrderID          string `json:"order_id"`
	OrderNumber      string `json:"order_number"`
	RestaurantName   string `json:"restaurant_name"`
	PickupAddress    string `json:"pickup_address"`
	DeliveryAddress  string `json:"delivery_address"`
	VerificationCode string `json:"verification_code"`
	Amount           string `json:"amount"`
}

type envelope struct {
	Type    string        `json:"type"`
	OrderID string        `json:"order_id,omitempty"`
	Offer   *OfferMessage `json:"offer,omitempty"`
}

type Notifier interface {
	SendOffer(ctx context.Context, courierID string, msg OfferMessage) error
	CancelOffer(ctx context.Context, courierID, orderID string) error
	Close() error
}

// AMQPNotifier publishes to per-courier queues. The connection is dialed
// lazily on first publish and reused for the process lifetime; Close is the
// shutdown hook.
type AMQPNotifier struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPNotifier(url string) *AMQPNotifier {
	return &AMQPNotifier{url: url}
}

func queueName(courierID string) string { return "courier." + courierID }

// ensure dials the broker if needed. Callers hold no lock across network
// waits other than this publish path itself.
func (n *AMQPNotifier) ensure() (*amqp.Channel, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.ch != nil && !n.conn.IsClosed() {
		return n.ch, nil
	}
	conn, err := amqp.Dial(n.url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	n.conn, n.ch = conn, ch
	return ch, nil
}

func (n *AMQPNotifier) publish(courierID string, env envelope) error {
	ch, err := n.ensure()
	if err != nil {
		return err
	}
	q := queueName(courierID)
	if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", q, err)
	}
	body, _ := json.Marshal(env)
	if err := ch.Publish("", q, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", q, err)
	}
	return nil
}

func (n *AMQPNotifier) SendOffer(_ context.Context, courierID string, msg OfferMessage) error {
	return n.publish(courierID, envelope{Type: MessageOffer, OrderID: msg.OrderID, Offer: &msg})
}

func (n *AMQPNotifier) CancelOffer(_ context.Context, courierID, orderID string) error {
	return n.publish(courierID, envelope{Type: MessageCancel, OrderID: orderID})
}

func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		return nil
	}
	if err := n.conn.Close(); err != nil {
		slog.Warn("amqp close", "err", err)
		return err
	}
	n.conn, n.ch = nil, nil
	return nil
}

package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/paywave/paywave/internal/logging"
)

// Exchange is the durable topic exchange wallet events are published to.
const Exchange = "wallet_events"

// publisher is the subset of *amqp.Channel used for publishing.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes messages as JSON with the message kind as routing key.
type AMQPNotifier struct {
	channel *amqp.Channel
	pub     publisher
	logger  *slog.Logger
}

// NewAMQPNotifier opens a channel on conn and declares the events exchange.
func NewAMQPNotifier(conn *amqp.Connection, logger *slog.Logger) (*AMQPNotifier, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", Exchange, err)
	}
	return &AMQPNotifier{channel: ch, pub: ch, logger: logging.Component(logger, "notification")}, nil
}

func (n *AMQPNotifier) Send(ctx context.Context, message Message) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	err = n.pub.PublishWithContext(ctx, Exchange, message.Kind, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    message.Reference,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", message.Kind, err)
	}
	n.logger.Debug("published notification", slog.String("kind", message.Kind), slog.String("reference", message.Reference))
	return nil
}

// Close releases the channel. The connection is owned by the caller.
func (n *AMQPNotifier) Close() error {
	if n.channel == nil {
		return nil
	}
	return n.channel.Close()
}

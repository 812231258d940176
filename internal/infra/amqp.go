package infra

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// NewAMQPConnection dials RabbitMQ. Quoted or whitespace-padded URLs from .env files
// are accepted.
func NewAMQPConnection(rawURL string) (*amqp.Connection, error) {
	clean := strings.Trim(strings.TrimSpace(rawURL), "\"'")
	if clean == "" {
		return nil, fmt.Errorf("amqp url is required")
	}
	parsed, err := url.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("parse amqp url: %w", err)
	}
	if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		return nil, errors.New("amqp url scheme must be amqp:// or amqps://")
	}

	conn, err := amqp.DialConfig(clean, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	return conn, nil
}

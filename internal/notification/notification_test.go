package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paywave/paywave/internal/logging"
)

type capturePublisher struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (p *capturePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	p.exchange, p.key, p.msg = exchange, key, msg
	return p.err
}

func TestAMQPNotifierPublishesJSONByKind(t *testing.T) {
	pub := &capturePublisher{}
	n := &AMQPNotifier{pub: pub, logger: logging.Discard()}

	msg := Message{Kind: KindTransferCompleted, Destination: "user-1", Body: "sent", Reference: "TRANSFER_1", Amount: decimal.NewFromInt(2000)}
	require.NoError(t, n.Send(context.Background(), msg))

	assert.Equal(t, Exchange, pub.exchange)
	assert.Equal(t, KindTransferCompleted, pub.key)
	assert.Equal(t, "application/json", pub.msg.ContentType)
	assert.Equal(t, "TRANSFER_1", pub.msg.MessageId)

	var decoded Message
	require.NoError(t, json.Unmarshal(pub.msg.Body, &decoded))
	assert.Equal(t, msg.Reference, decoded.Reference)
	assert.True(t, decoded.Amount.Equal(msg.Amount))
}

func TestDeliverLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	n := &AMQPNotifier{pub: &capturePublisher{err: errors.New("channel closed")}, logger: logging.Discard()}

	Deliver(context.Background(), n, logger, Message{Kind: KindDepositReceived, Reference: "DEP_1"})

	assert.True(t, strings.Contains(buf.String(), "notification delivery failed"))
	assert.True(t, strings.Contains(buf.String(), "DEP_1"))
}

func TestLoggerNotifierNilSafe(t *testing.T) {
	var n *LoggerNotifier
	assert.NoError(t, n.Send(context.Background(), Message{Kind: KindTransferPending}))
	Deliver(context.Background(), nil, nil, Message{})
}

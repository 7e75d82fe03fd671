package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kdimtricp/vslides/internal/extraction"
)

const routingPrefix = "extraction."

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher forwards extraction updates to a topic exchange, routed as
// extraction.<type>. Progress is sent transient; decisions and terminal
// updates are persistent.
type Publisher struct {
	channel  publishChannel
	exchange string
}

type message struct {
	SessionID string      `json:"session_id"`
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	SentAt    time.Time   `json:"sent_at"`
}

func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Publisher{channel: ch, exchange: exchange}, nil
}

func (p *Publisher) Publish(ctx context.Context, sessionID string, update extraction.Update) error {
	body, err := json.Marshal(message{
		SessionID: sessionID,
		Type:      update.Type,
		Data:      update.Data,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal %s update: %w", update.Type, err)
	}

	mode := amqp.Persistent
	if update.Type == extraction.UpdateProgress {
		mode = amqp.Transient
	}

	return p.channel.PublishWithContext(ctx,
		p.exchange,
		routingPrefix+update.Type,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: mode,
			Timestamp:    time.Now().UTC(),
			MessageId:    sessionID,
		},
	)
}

func (p *Publisher) Close() error {
	return p.channel.Close()
}

// Package mailer contains the outbound delivery adapters for accounts:
// an AMQP queue publisher, a direct SMTP sender and the localized
// verification email catalog.
package mailer

import (
	"context"
	"encoding/json"
	"time"

	accounts "github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the subset of *amqp.Channel used here.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Envelope is the JSON body placed on the queue for each message.
type Envelope struct {
	From       string            `json:"from"`
	SenderName string            `json:"sender_name,omitempty"`
	To         string            `json:"to"`
	Subject    string            `json:"subject"`
	Body       string            `json:"body"`
	HTML       bool              `json:"html"`
	Language   string            `json:"language,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// AMQPConfig holds the publishing coordinates.
type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
	From       string
	SenderName string
}

// AMQP enqueues messages for an external mail worker.
type AMQP struct {
	publisher Publisher
	cfg       AMQPConfig
	closers   []func() error
	now       func() time.Time
}

// NewAMQP wraps an existing channel.
func NewAMQP(publisher Publisher, cfg AMQPConfig) *AMQP {
	return &AMQP{
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// DialAMQP connects to the broker, declares a durable direct exchange and
// returns a mailer that owns the connection.
func DialAMQP(cfg AMQPConfig) (*AMQP, error) {
	conn, ch, err := dial(cfg.URL, cfg.Exchange)
	if err != nil {
		return nil, err
	}

	m := NewAMQP(ch, cfg)
	m.closers = []func() error{ch.Close, conn.Close}
	return m, nil
}

func dial(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryOperation, "amqp dial failed")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryOperation, "amqp channel open failed")
	}

	if exchange != "" {
		if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, nil, goerrors.Wrap(err, goerrors.CategoryOperation, "amqp exchange declare failed").
				WithMetadata(map[string]any{"exchange": exchange})
		}
	}
	return conn, ch, nil
}

// Send implements accounts.Mailer.
func (m *AMQP) Send(ctx context.Context, msg accounts.Message) error {
	body, err := json.Marshal(Envelope{
		From:       m.cfg.From,
		SenderName: m.cfg.SenderName,
		To:         msg.To,
		Subject:    msg.Subject,
		Body:       msg.Body,
		HTML:       msg.HTML,
		Language:   msg.Language,
		Headers:    msg.Headers,
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "encoding mail envelope")
	}
	return publishJSON(ctx, m.publisher, m.cfg.Exchange, m.cfg.RoutingKey, body, m.now())
}

// Close releases the connection opened by DialAMQP.
func (m *AMQP) Close() error {
	return closeAll(m.closers)
}

func publishJSON(ctx context.Context, p Publisher, exchange, key string, body []byte, ts time.Time) error {
	err := p.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    ts,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "amqp publish failed").
			WithMetadata(map[string]any{
				"exchange":    exchange,
				"routing_key": key,
			})
	}
	return nil
}

func closeAll(closers []func() error) error {
	var first error
	for _, c := range closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

package mailer

import (
	"context"
	"encoding/json"

	accounts "github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
)

// DefaultActivityRoutingKeyPrefix is prepended to the event type when
// publishing activity events.
const DefaultActivityRoutingKeyPrefix = "accounts.activity"

// ActivityPublisher forwards accounts activity events to an exchange, one
// routing key per event type.
type ActivityPublisher struct {
	publisher Publisher
	exchange  string
	prefix    string
	closers   []func() error
}

// NewActivityPublisher implements accounts.ActivitySink over publisher.
func NewActivityPublisher(publisher Publisher, exchange, prefix string) *ActivityPublisher {
	if prefix == "" {
		prefix = DefaultActivityRoutingKeyPrefix
	}
	return &ActivityPublisher{
		publisher: publisher,
		exchange:  exchange,
		prefix:    prefix,
	}
}

// DialActivityPublisher opens its own connection to url.
func DialActivityPublisher(url, exchange, prefix string) (*ActivityPublisher, error) {
	conn, ch, err := dial(url, exchange)
	if err != nil {
		return nil, err
	}
	p := NewActivityPublisher(ch, exchange, prefix)
	p.closers = []func() error{ch.Close, conn.Close}
	return p, nil
}

// RoutingKey returns the key an event is published under.
func (p *ActivityPublisher) RoutingKey(event accounts.ActivityEvent) string {
	return p.prefix + "." + string(event.EventType)
}

// Record implements accounts.ActivitySink.
func (p *ActivityPublisher) Record(ctx context.Context, event accounts.ActivityEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "encoding activity event")
	}
	return publishJSON(ctx, p.publisher, p.exchange, p.RoutingKey(event), body, event.OccurredAt)
}

// Close releases the connection opened by DialActivityPublisher.
func (p *ActivityPublisher) Close() error {
	return closeAll(p.closers)
}

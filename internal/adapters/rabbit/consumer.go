// Package rabbit feeds live channels from a RabbitMQ fanout exchange.
package rabbit

import (
	"context"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/tour-booking-dashboard/internal/live"
)

// Source gives every connection its own exclusive queue bound to the
// exchange, so each subscribed view sees every notification.
type Source struct {
	url      string
	exchange string
}

func NewSource(url, exchange string) *Source {
	return &Source{url: url, exchange: exchange}
}

func (s *Source) Connect(ctx context.Context) (live.Stream, error) {
	conn, err := amqp.Dial(s.url)
	if err != nil {
		return nil, errors.Wrap(err, "dial rabbitmq")
	}
	st, err := s.subscribe(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return st, nil
}

func (s *Source) subscribe(conn *amqp.Connection) (*consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(s.exchange, "fanout", true, false, false, false, nil); err != nil {
		return nil, errors.Wrap(err, "declare exchange")
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, errors.Wrap(err, "declare queue")
	}
	if err := ch.QueueBind(q.Name, "", s.exchange, false, nil); err != nil {
		return nil, errors.Wrap(err, "bind queue")
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, errors.Wrap(err, "consume")
	}
	return &consumer{conn: conn, ch: ch, deliveries: deliveries}, nil
}

type consumer struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	deliveries <-chan amqp.Delivery
}

func (c *consumer) Receive() error {
	if _, ok := <-c.deliveries; !ok {
		return errors.New("deliveries channel closed")
	}
	return nil
}

func (c *consumer) Close() error {
	_ = c.ch.Close()
	return c.conn.Close()
}

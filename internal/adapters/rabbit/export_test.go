package rabbit

import amqp "github.com/rabbitmq/amqp091-go"

func (p *Publisher) CurrentChannel() *amqp.Channel { return p.ch }

func (p *Publisher) CurrentConnection() *amqp.Connection { return p.conn }

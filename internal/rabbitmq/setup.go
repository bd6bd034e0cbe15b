package rabbitmq

import (
	"fmt"

	"github.com/streadway/amqp"
)

// Topology описывает exchange и очередь платёжных событий.
type Topology struct {
	Exchange   string
	Queue      string
	RoutingKey string
	Prefetch   int
}

// SetupChannel открывает канал и объявляет durable direct exchange и очередь.
func SetupChannel(conn *amqp.Connection, t Topology) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if t.Prefetch > 0 {
		if err := ch.Qos(t.Prefetch, 0, false); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("%s: failed to set QoS: %w", op, err)
		}
	}

	if err = ch.ExchangeDeclare(
		t.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err = ch.QueueDeclare(
		t.Queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%s: failed to declare queue %s: %w", op, t.Queue, err)
	}

	if err = ch.QueueBind(t.Queue, t.RoutingKey, t.Exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%s: failed to bind queue %s with routing key %s: %w", op, t.Queue, t.RoutingKey, err)
	}
	return ch, nil
}

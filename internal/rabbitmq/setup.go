package rabbitmq

import (
	"fmt"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/learnhub/internal/models"
)

// Exchange задает direct-обменник для всех уведомлений.
const Exchange = "notifications"

// Очереди уведомлений.
const (
	QueueTrialExpiring        = "notifications.trial_expiring"
	QueueSubscriptionExtended = "notifications.subscription_extended"
)

// QueueConfig связывает очередь с ключом маршрутизации.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// NotificationQueues возвращает очереди для каждого типа уведомлений.
// Ключ маршрутизации совпадает с типом уведомления.
func NotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: QueueTrialExpiring, RoutingKey: models.NotificationTrialExpiring},
		{QueueName: QueueSubscriptionExtended, RoutingKey: models.NotificationSubscriptionExtended},
	}
}

// SetupChannel открывает канал, объявляет обменник и привязывает к нему очереди.
func SetupChannel(conn *amqp.Connection, queues []QueueConfig) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err = ch.ExchangeDeclare(Exchange, "direct", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, q := range queues {
		if _, err = ch.QueueDeclare(q.QueueName, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("%s: failed to declare queue %s: %w", op, q.QueueName, err)
		}
		if err = ch.QueueBind(q.QueueName, q.RoutingKey, Exchange, false, nil); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("%s: failed to bind queue %s with routing key %s: %w", op, q.QueueName, q.RoutingKey, err)
		}
	}

	return ch, nil
}

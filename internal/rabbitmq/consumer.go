package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/learnhub/internal/lib/sl"
)

// Consumer описывает часть amqp.Channel, нужная для чтения очереди.
type Consumer interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// ConsumeMessages читает очередь queueName и передает тела сообщений handler,
// обрабатывая не больше workers сообщений одновременно. Успешно обработанное
// сообщение подтверждается. При ошибке сообщение возвращается в очередь один
// раз, повторная ошибка отбрасывает его. Функция возвращает управление после
// отмены ctx или закрытия канала, дождавшись начатых обработчиков.
func ConsumeMessages(ctx context.Context, ch Consumer, queueName string, workers int,
	handler func([]byte) error, log *slog.Logger) error {
	const op = "rabbitmq.ConsumeMessages"

	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if workers < 1 {
		workers = 1
	}

	log = log.With(slog.String("op", op), slog.String("queue", queueName))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				log.Warn("delivery channel closed")
				return nil
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer func() {
					<-sem
					wg.Done()
				}()
				handle(d, handler, log)
			}(d)
		}
	}
}

func handle(d amqp.Delivery, handler func([]byte) error, log *slog.Logger) {
	if err := handler(d.Body); err != nil {
		requeue := !d.Redelivered
		log.Error("failed to handle message", slog.Bool("requeue", requeue), sl.Err(err))
		if nackErr := d.Nack(false, requeue); nackErr != nil {
			log.Error("failed to nack message", sl.Err(nackErr))
		}
		return
	}
	if ackErr := d.Ack(false); ackErr != nil {
		log.Error("failed to ack message", sl.Err(ackErr))
	}
}

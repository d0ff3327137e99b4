package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/d60-Lab/twissandra/internal/model"
	"github.com/d60-Lab/twissandra/pkg/logger"
)

// AMQPQueue stores repair jobs in a durable RabbitMQ queue.
type AMQPQueue struct {
	conn  *amqp.Connection
	queue string

	mu  sync.Mutex // guards pub
	pub *amqp.Channel
}

func DialAMQP(url, queue string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("error establishing connection with rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("error opening channel for rabbitmq: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error declaring queue %s: %w", queue, err)
	}
	return &AMQPQueue{conn: conn, queue: queue, pub: ch}, nil
}

func encodeJob(job model.RepairJob) (amqp.Publishing, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    job.EnqueuedAt,
		Body:         body,
	}, nil
}

func (q *AMQPQueue) Publish(ctx context.Context, job model.RepairJob) error {
	msg, err := encodeJob(job)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pub.IsClosed() {
		return ErrClosed
	}
	return q.pub.PublishWithContext(ctx, "", q.queue, false, false, msg)
}

func (q *AMQPQueue) Consume(ctx context.Context, workers int, handle Handler) error {
	if workers <= 0 {
		workers = 1
	}
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("error opening consumer channel: %w", err)
	}
	defer ch.Close()
	if err := ch.Qos(workers, 0, false); err != nil {
		return err
	}
	msgs, err := ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("error consuming queue %s: %w", q.queue, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-msgs:
					if !ok {
						return
					}
					var job model.RepairJob
					if err := json.Unmarshal(msg.Body, &job); err != nil {
						logger.Warn("drop malformed repair job", zap.Error(err))
						_ = msg.Nack(false, false)
						continue
					}
					err := handle(ctx, job)
					if interrupted(ctx, err) {
						if nackErr := msg.Nack(false, true); nackErr != nil {
							logger.Warn("return repair job to queue failed", zap.Stringer("line", job.Line), zap.Error(nackErr))
						}
						return
					}
					if err != nil {
						logger.Debug("repair handler failed", zap.Stringer("line", job.Line), zap.Error(err))
					}
					_ = msg.Ack(false)
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	_ = q.pub.Close()
	return q.conn.Close()
}

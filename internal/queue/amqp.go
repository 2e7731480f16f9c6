// internal/queue/amqp.go
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/unclebandit/outreach-backend/internal/logx"
)

const retryHeader = "x-retry-count"

// AMQPQueue maps topics to durable RabbitMQ queues on the default exchange.
// Consumers ack manually; a failed delivery is republished with an
// incremented retry header until MaxRetries is reached.
type AMQPQueue struct {
	MaxRetries int
	Prefetch   int

	conn *amqp.Connection

	mu       sync.Mutex
	pubCh    *amqp.Channel
	declared map[string]bool
	consumer []*amqp.Channel
	wg       sync.WaitGroup
}

func NewAMQPQueue(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &AMQPQueue{
		MaxRetries: 3,
		Prefetch:   10,
		conn:       conn,
		pubCh:      ch,
		declared:   map[string]bool{},
	}, nil
}

func (q *AMQPQueue) declare(ch *amqp.Channel, topic string) error {
	_, err := ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	return err
}

func (q *AMQPQueue) Publish(ctx context.Context, topic string, payload []byte) error {
	return q.publish(ctx, topic, payload, 0)
}

func (q *AMQPQueue) publish(ctx context.Context, topic string, payload []byte, retries int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.declared[topic] {
		if err := q.declare(q.pubCh, topic); err != nil {
			return fmt.Errorf("declare %s: %w", topic, err)
		}
		q.declared[topic] = true
	}
	return q.pubCh.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{retryHeader: int32(retries)},
		Body:         payload,
	})
}

// Subscribe starts a consumer goroutine on its own channel.
func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := q.declare(ch, topic); err != nil {
		ch.Close()
		return fmt.Errorf("declare %s: %w", topic, err)
	}
	_ = ch.Qos(q.Prefetch, 0, false)

	msgs, err := ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consume %s: %w", topic, err)
	}

	q.mu.Lock()
	q.consumer = append(q.consumer, ch)
	q.mu.Unlock()

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for d := range msgs {
			q.handle(topic, handler, d)
		}
		logx.L().Infow("consumer_stopped", "queue", topic)
	}()
	logx.L().Infow("consumer_started", "queue", topic)
	return nil
}

func (q *AMQPQueue) handle(topic string, handler Handler, d amqp.Delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := handler(ctx, d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	retries := RetryCount(d.Headers)
	if retries >= q.MaxRetries {
		logx.L().Errorw("job_permanently_failed", "queue", topic, "attempts", retries+1, "error", err)
		_ = d.Ack(false)
		return
	}
	logx.L().Warnw("job_failed", "queue", topic, "attempt", retries+1, "error", err)
	if perr := q.publish(ctx, topic, d.Body, retries+1); perr != nil {
		logx.L().Errorw("job_requeue_failed", "queue", topic, "error", perr)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// RetryCount reads the retry header, tolerating the integer widths AMQP
// peers use.
func RetryCount(h amqp.Table) int {
	switch v := h[retryHeader].(type) {
	case int:
		return v
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	}
	return 0
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	for _, ch := range q.consumer {
		_ = ch.Close()
	}
	q.consumer = nil
	_ = q.pubCh.Close()
	q.mu.Unlock()

	err := q.conn.Close()
	q.wg.Wait()
	return err
}

var _ Queue = (*AMQPQueue)(nil)

// Package taskq implements the authcore.TaskQueue contract on RabbitMQ.
// Jobs are published as persistent JSON messages to a topic exchange, with
// the job name as the routing key; consumers provide at-least-once delivery.
package taskq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Config controls exchange setup and publish behavior.
type Config struct {
	URL      string
	Exchange string
	// PublishTimeout bounds each publish; zero selects 5s. Every queue call
	// must carry a bounded timeout.
	PublishTimeout time.Duration
}

// Publisher is an amqp-backed TaskQueue. Safe for concurrent use; the
// channel is guarded because amqp channels are not.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  Config
	logger  *zap.Logger

	mu sync.Mutex
}

// NewPublisher dials the broker and declares the exchange.
func NewPublisher(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if cfg.Exchange == "" {
		return nil, fmt.Errorf("taskq: exchange name is required")
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("taskq: dial broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("taskq: open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("taskq: declare exchange: %w", err)
	}

	return &Publisher{conn: conn, channel: channel, config: cfg, logger: logger}, nil
}

// Enqueue publishes a job. Delivery to the consumer is at-least-once; the
// engine treats enqueue itself as fire-and-forget.
func (p *Publisher) Enqueue(ctx context.Context, job string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("taskq: marshal payload for %s: %w", job, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.PublishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx,
		p.config.Exchange,
		job,   // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("taskq: publish %s: %w", job, err)
	}

	p.logger.Debug("job enqueued", zap.String("job", job))
	return nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Close(); err != nil {
		_ = p.conn.Close()
		return err
	}
	return p.conn.Close()
}

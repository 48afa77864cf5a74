package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"emergency-service/internal/logging"
	"emergency-service/internal/utils"
)

// Publisher writes lifecycle events to Kafka. Publishing is best-effort: a
// broker outage is logged and never fails the operation that produced the
// event.
type Publisher struct {
	writer *kafka.Writer
	logger *logging.Logger
}

// NewPublisher builds a Publisher. With an empty broker the publisher is
// disabled and every Publish is a no-op.
func NewPublisher(broker, topic string, logger *logging.Logger) *Publisher {
	p := &Publisher{logger: logger}
	if broker == "" {
		logger.Warnf("Kafka broker not configured, alert events disabled")
		return p
	}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return p
}

// Publish sends one event, keyed by alert ID.
func (p *Publisher) Publish(ctx context.Context, evt Event) {
	if p.writer == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		p.logger.Errorf("Marshal event %s for alert %s failed: %v", evt.Type, evt.AlertID, err)
		return
	}
	msg := kafka.Message{Key: []byte(evt.AlertID), Value: payload}
	err = utils.Retry(ctx, p.logger, 3, time.Second, func() error {
		return p.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		p.logger.Errorf("Publish event %s for alert %s failed: %v", evt.Type, evt.AlertID, err)
		return
	}
	p.logger.Debugf("Published event %s for alert %s", evt.Type, evt.AlertID)
}

func (p *Publisher) Close() {
	if p.writer == nil {
		return
	}
	if err := p.writer.Close(); err != nil {
		p.logger.Errorf("Kafka writer close failed: %v", err)
	}
}

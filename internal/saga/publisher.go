package saga

import (
	"context"

	"github.com/sumitak/ms-kafka-saga-dp/internal/messaging"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/kafka"
)

type kafkaPublisher struct {
	producer kafka.Producer
}

// NewPublisher wraps the sarama producer with envelope encoding.
func NewPublisher(producer kafka.Producer) Publisher {
	return &kafkaPublisher{producer: producer}
}

func (p *kafkaPublisher) Publish(ctx context.Context, topic, key, msgType string, payload any) error {
	value, err := messaging.Encode(msgType, payload)
	if err != nil {
		return err
	}

	return p.producer.ProduceMessage(ctx, topic, key, value)
}

package saga

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/sumitak/ms-kafka-saga-dp/internal/messaging"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/config"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/kafka"
	"go.uber.org/zap"
)

// Consumer subscribes the coordinator to all three event topics. Group
// assignment keeps each order's partition on one member, so events for one
// order are processed sequentially.
type Consumer struct {
	coordinator *Coordinator
	logger      *zap.Logger
}

func NewConsumer(coordinator *Coordinator, logger *zap.Logger) *Consumer {
	return &Consumer{
		coordinator: coordinator,
		logger:      logger,
	}
}

func (c *Consumer) Start(ctx context.Context, brokers []string, topics config.Topics, dlqProducer kafka.Producer) {
	consumerGroup := kafka.NewConsumerGroup(
		brokers,
		"order-saga-group",
		[]string{topics.OrdersEvents, topics.ProductsEvents, topics.PaymentsEvents},
		c.processMessage,
		c.logger,
	).WithDeadLetter(dlqProducer, topics.DeadLetter)

	consumerGroup.Run(ctx)
}

func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	env, err := messaging.Decode(msg.Value)
	if err != nil {
		return err
	}

	return c.coordinator.Handle(ctx, env)
}

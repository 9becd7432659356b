package kafka

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/sumitak/ms-kafka-saga-dp/internal/messaging"
	"github.com/sumitak/ms-kafka-saga-dp/internal/payments/service"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/config"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/kafka"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/mylogger"
	"go.uber.org/zap"
)

// Consumer handles the payments command topic. ProcessPayment is the only
// command this service accepts.
type Consumer struct {
	service service.PaymentService
	logger  *zap.Logger
}

func NewConsumer(service service.PaymentService, logger *zap.Logger) *Consumer {
	return &Consumer{
		service: service,
		logger:  logger,
	}
}

func (c *Consumer) Start(ctx context.Context, brokers []string, topics config.Topics, dlqProducer kafka.Producer) {
	consumerGroup := kafka.NewConsumerGroup(
		brokers,
		"payments-service-group",
		[]string{topics.PaymentsCommands},
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

	switch env.Event {
	case messaging.CommandProcessPayment:
		var cmd messaging.ProcessPaymentCommand
		if err := env.Unmarshal(&cmd); err != nil {
			return err
		}

		return c.service.ProcessPayment(ctx, &cmd)

	default:
		mylogger.Warn(ctx, c.logger, "Ignored command type", zap.String("command", env.Event))
		return nil
	}
}

package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/sumitak/ms-kafka-saga-dp/internal/messaging"
	"github.com/sumitak/ms-kafka-saga-dp/internal/products/repository"
	"github.com/sumitak/ms-kafka-saga-dp/internal/products/service"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/config"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/kafka"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/mylogger"
	"go.uber.org/zap"
)

// Consumer handles the products command topic: ReserveProduct and
// CancelProductReservation issued by the saga coordinator. The service
// layer is idempotent per order, so redelivered commands are absorbed
// without a separate deduplication step.
type Consumer struct {
	service service.ProductService
	logger  *zap.Logger
}

func NewConsumer(service service.ProductService, logger *zap.Logger) *Consumer {
	return &Consumer{
		service: service,
		logger:  logger,
	}
}

func (c *Consumer) Start(ctx context.Context, brokers []string, topics config.Topics, dlqProducer kafka.Producer) {
	consumerGroup := kafka.NewConsumerGroup(
		brokers,
		"products-service-group",
		[]string{topics.ProductsCommands},
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
	case messaging.CommandReserveProduct:
		var cmd messaging.ReserveProductCommand
		if err := env.Unmarshal(&cmd); err != nil {
			return err
		}

		return c.classify(c.service.ReserveProduct(ctx, &cmd))

	case messaging.CommandCancelProductReservation:
		var cmd messaging.CancelProductReservationCommand
		if err := env.Unmarshal(&cmd); err != nil {
			return err
		}

		return c.classify(c.service.CancelReservation(ctx, &cmd))

	default:
		mylogger.Warn(ctx, c.logger, "Ignored command type", zap.String("command", env.Event))
		return nil
	}
}

// classify separates broken preconditions, which can never succeed and go
// to the dead-letter topic, from transient faults that should be retried.
func (c *Consumer) classify(err error) error {
	if errors.Is(err, repository.ErrProductNotFound) || errors.Is(err, repository.ErrReservationNotFound) {
		return fmt.Errorf("%w: %v", kafka.ErrPermanent, err)
	}

	return err
}

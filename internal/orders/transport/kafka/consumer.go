package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sumitak/ms-kafka-saga-dp/internal/messaging"
	"github.com/sumitak/ms-kafka-saga-dp/internal/orders/repository"
	"github.com/sumitak/ms-kafka-saga-dp/internal/orders/service"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/config"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/kafka"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/mylogger"
	outboxUtils "github.com/sumitak/ms-kafka-saga-dp/pkg/outbox/utils"
	"go.uber.org/zap"
)

// Consumer handles the orders command topic: ApproveOrder and RejectOrder
// issued by the saga coordinator.
type Consumer struct {
	service service.OrderService
	pool    *pgxpool.Pool
	logger  *zap.Logger
}

func NewConsumer(service service.OrderService, pool *pgxpool.Pool, logger *zap.Logger) *Consumer {
	return &Consumer{
		service: service,
		pool:    pool,
		logger:  logger,
	}
}

func (c *Consumer) Start(ctx context.Context, brokers []string, topics config.Topics, dlqProducer kafka.Producer) {
	consumerGroup := kafka.NewConsumerGroup(
		brokers,
		"orders-service-group",
		[]string{topics.OrdersCommands},
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
	case messaging.CommandApproveOrder:
		var cmd messaging.ApproveOrderCommand
		if err := env.Unmarshal(&cmd); err != nil {
			return err
		}

		return c.runOnce(ctx, env.Event, cmd.OrderID, func(tx pgx.Tx) error {
			return c.service.Approve(ctx, tx, cmd.OrderID)
		})

	case messaging.CommandRejectOrder:
		var cmd messaging.RejectOrderCommand
		if err := env.Unmarshal(&cmd); err != nil {
			return err
		}

		return c.runOnce(ctx, env.Event, cmd.OrderID, func(tx pgx.Tx) error {
			return c.service.Reject(ctx, tx, cmd.OrderID)
		})

	default:
		mylogger.Warn(ctx, c.logger, "Ignored command type", zap.String("command", env.Event))
		return nil
	}
}

// runOnce executes the command at most once per (command, order) pair. A
// command referencing an order that was never placed is a broken
// precondition and goes to the dead-letter topic instead of being retried.
func (c *Consumer) runOnce(ctx context.Context, command string, orderID uuid.UUID, action func(tx pgx.Tx) error) error {
	key := fmt.Sprintf("%s:%s", command, orderID)

	err := outboxUtils.ProcessWithDeduplication(ctx, c.pool, c.logger, key, action)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return fmt.Errorf("%w: %v", kafka.ErrPermanent, err)
	}

	return err
}

package kafka

import (
	"context"
	"errors"
	"log"

	"github.com/IBM/sarama"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrPermanent marks a message that will never succeed no matter how often
// it is redelivered. The consumer group acknowledges such messages and, when
// a dead-letter topic is configured, parks them there for investigation.
// Any other handler error leaves the message unacknowledged so the
// transport retries it.
var ErrPermanent = errors.New("permanent failure processing message")

type HandlerFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

type ConsumerGroup struct {
	brokers     []string
	groupID     string
	topics      []string
	handlerFunc HandlerFunc
	logger      *zap.Logger

	dlqProducer Producer
	dlqTopic    string
}

func NewConsumerGroup(
	brokers []string,
	groupID string,
	topics []string,
	handlerFunc HandlerFunc,
	logger *zap.Logger,
) *ConsumerGroup {
	return &ConsumerGroup{
		brokers:     brokers,
		groupID:     groupID,
		topics:      topics,
		handlerFunc: handlerFunc,
		logger:      logger,
	}
}

// WithDeadLetter routes permanently failing messages to topic instead of
// dropping them.
func (c *ConsumerGroup) WithDeadLetter(producer Producer, topic string) *ConsumerGroup {
	c.dlqProducer = producer
	c.dlqTopic = topic
	return c
}

func (c *ConsumerGroup) Run(ctx context.Context) {
	config := sarama.NewConfig()
	config.Version = sarama.V3_0_0_0
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.BalanceStrategyRoundRobin}

	group, err := sarama.NewConsumerGroup(c.brokers, c.groupID, config)
	if err != nil {
		log.Fatalf("Error creating new consumer group")
	}

	defer func() {
		if err := group.Close(); err != nil {
			mylogger.Error(ctx, c.logger, "Error closing consumer group", zap.Error(err))
		}
	}()

	consumer := &saramaHandler{
		handler:     c.handlerFunc,
		logger:      c.logger,
		dlqProducer: c.dlqProducer,
		dlqTopic:    c.dlqTopic,
	}

	for {
		err := group.Consume(ctx, c.topics, consumer)
		if err != nil {
			mylogger.Error(ctx, c.logger, "Error consuming in consumer loop", zap.Error(err))
		}

		if ctx.Err() != nil {
			mylogger.Info(ctx, c.logger, "Context cancelled, shutting down consumer")
			return
		}
	}
}

type saramaHandler struct {
	handler     HandlerFunc
	logger      *zap.Logger
	dlqProducer Producer
	dlqTopic    string
}

func (h *saramaHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *saramaHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *saramaHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		ctx := h.extractTracing(session.Context(), msg)

		err := h.handler(ctx, msg)
		switch {
		case err == nil:
			session.MarkMessage(msg, "")
		case errors.Is(err, ErrPermanent):
			h.parkMessage(ctx, msg, err)
			session.MarkMessage(msg, "")
		default:
			mylogger.Error(
				ctx,
				h.logger,
				"Failed to process message, will be redelivered",
				zap.String("topic", msg.Topic),
				zap.Int32("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}

	return nil
}

func (h *saramaHandler) parkMessage(ctx context.Context, msg *sarama.ConsumerMessage, cause error) {
	mylogger.Error(
		ctx,
		h.logger,
		"Unprocessable message",
		zap.String("topic", msg.Topic),
		zap.Int64("offset", msg.Offset),
		zap.Error(cause),
	)

	if h.dlqProducer == nil {
		return
	}

	if err := h.dlqProducer.ProduceMessage(ctx, h.dlqTopic, string(msg.Key), msg.Value); err != nil {
		mylogger.Error(ctx, h.logger, "Failed to park message in dead-letter topic", zap.Error(err))
	}
}

func (h *saramaHandler) extractTracing(ctx context.Context, msg *sarama.ConsumerMessage) context.Context {
	carrier := propagation.MapCarrier{}
	for _, header := range msg.Headers {
		carrier[string(header.Key)] = string(header.Value)
	}

	propagator := otel.GetTextMapPropagator()
	ctx = propagator.Extract(ctx, carrier)

	tracer := otel.Tracer("pkg/kafka/consumer")
	ctx, _ = tracer.Start(ctx, "kafka_process",
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	return ctx
}

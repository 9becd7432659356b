// Package saga contains the coordinator that drives an order through
// reservation, payment and approval across the three services. It reacts to
// domain events, emits the single next command, and records every observed
// transition in the order history. The history doubles as the duplicate
// check: a redelivered event whose transition is already recorded is
// acknowledged without emitting anything.
package saga

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sumitak/ms-kafka-saga-dp/internal/history"
	"github.com/sumitak/ms-kafka-saga-dp/internal/messaging"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/config"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Publisher sends one encoded command to a topic, keyed for per-order
// ordering.
type Publisher interface {
	Publish(ctx context.Context, topic, key, msgType string, payload any) error
}

type Coordinator struct {
	publisher Publisher
	history   history.Store
	topics    config.Topics
	logger    *zap.Logger
	tracer    trace.Tracer
}

func NewCoordinator(
	publisher Publisher,
	historyStore history.Store,
	topics config.Topics,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		publisher: publisher,
		history:   historyStore,
		topics:    topics,
		logger:    logger,
		tracer:    otel.Tracer("saga/coordinator"),
	}
}

// Handle applies one domain event to the order's state machine. It returns
// an error only for retryable infrastructure failures (history or broker
// unavailable); duplicates and out-of-order events are logged and dropped so
// a single bad message can never wedge the partition.
func (c *Coordinator) Handle(ctx context.Context, env *messaging.Envelope) error {
	ctx, span := c.tracer.Start(ctx, "Coordinator.Handle")
	defer span.End()

	span.SetAttributes(attribute.String("event", env.Event))

	switch env.Event {
	case messaging.EventOrderCreated:
		var event messaging.OrderCreatedEvent
		if err := env.Unmarshal(&event); err != nil {
			return err
		}
		return c.handleOrderCreated(ctx, &event)

	case messaging.EventProductReserved:
		var event messaging.ProductReservedEvent
		if err := env.Unmarshal(&event); err != nil {
			return err
		}
		return c.handleProductReserved(ctx, &event)

	case messaging.EventProductReservationFailed:
		var event messaging.ProductReservationFailedEvent
		if err := env.Unmarshal(&event); err != nil {
			return err
		}
		return c.handleProductReservationFailed(ctx, &event)

	case messaging.EventPaymentProcessed:
		var event messaging.PaymentProcessedEvent
		if err := env.Unmarshal(&event); err != nil {
			return err
		}
		return c.handlePaymentProcessed(ctx, &event)

	case messaging.EventPaymentFailed:
		var event messaging.PaymentFailedEvent
		if err := env.Unmarshal(&event); err != nil {
			return err
		}
		return c.handlePaymentFailed(ctx, &event)

	case messaging.EventProductReservationCancelled:
		var event messaging.ProductReservationCancelledEvent
		if err := env.Unmarshal(&event); err != nil {
			return err
		}
		return c.handleReservationCancelled(ctx, &event)

	case messaging.EventOrderApproved:
		var event messaging.OrderApprovedEvent
		if err := env.Unmarshal(&event); err != nil {
			return err
		}
		return c.handleOrderApproved(ctx, &event)

	default:
		mylogger.Debug(ctx, c.logger, "Ignored event type", zap.String("event", env.Event))
		return nil
	}
}

func (c *Coordinator) handleOrderCreated(ctx context.Context, event *messaging.OrderCreatedEvent) error {
	done, err := c.alreadyRecorded(ctx, event.OrderID, history.StatusCreated)
	if err != nil || done {
		return err
	}

	command := messaging.ReserveProductCommand{
		ProductID:       event.ProductID,
		ProductQuantity: event.ProductQuantity,
		OrderID:         event.OrderID,
	}
	if err := c.publish(ctx, c.topics.ProductsCommands, messaging.CommandReserveProduct, event.OrderID, command); err != nil {
		return err
	}

	return c.record(ctx, event.OrderID, history.StatusCreated)
}

func (c *Coordinator) handleProductReserved(ctx context.Context, event *messaging.ProductReservedEvent) error {
	done, err := c.alreadyRecorded(ctx, event.OrderID, history.StatusProductReserved)
	if err != nil || done {
		return err
	}

	ok, err := c.expectPrior(ctx, event.OrderID, history.StatusCreated, messaging.EventProductReserved)
	if err != nil || !ok {
		return err
	}

	command := messaging.ProcessPaymentCommand{
		OrderID:         event.OrderID,
		ProductID:       event.ProductID,
		ProductPrice:    event.ProductPrice,
		ProductQuantity: event.ProductQuantity,
	}
	if err := c.publish(ctx, c.topics.PaymentsCommands, messaging.CommandProcessPayment, event.OrderID, command); err != nil {
		return err
	}

	return c.record(ctx, event.OrderID, history.StatusProductReserved)
}

// handleProductReservationFailed terminates the saga without compensation:
// nothing was reserved, so the order is simply rejected.
func (c *Coordinator) handleProductReservationFailed(ctx context.Context, event *messaging.ProductReservationFailedEvent) error {
	done, err := c.alreadyRecorded(ctx, event.OrderID, history.StatusRejected)
	if err != nil || done {
		return err
	}

	if err := c.reject(ctx, event.OrderID); err != nil {
		return err
	}

	return c.record(ctx, event.OrderID, history.StatusRejected)
}

func (c *Coordinator) handlePaymentProcessed(ctx context.Context, event *messaging.PaymentProcessedEvent) error {
	done, err := c.alreadyRecorded(ctx, event.OrderID, history.StatusPaymentProcessed)
	if err != nil || done {
		return err
	}

	ok, err := c.expectPrior(ctx, event.OrderID, history.StatusProductReserved, messaging.EventPaymentProcessed)
	if err != nil || !ok {
		return err
	}

	command := messaging.ApproveOrderCommand{OrderID: event.OrderID}
	if err := c.publish(ctx, c.topics.OrdersCommands, messaging.CommandApproveOrder, event.OrderID, command); err != nil {
		return err
	}

	return c.record(ctx, event.OrderID, history.StatusPaymentProcessed)
}

// handlePaymentFailed starts the compensation path: the reservation already
// committed a side effect, so it must be released before the order can be
// rejected.
func (c *Coordinator) handlePaymentFailed(ctx context.Context, event *messaging.PaymentFailedEvent) error {
	done, err := c.alreadyRecorded(ctx, event.OrderID, history.StatusCompensating)
	if err != nil || done {
		return err
	}

	command := messaging.CancelProductReservationCommand{
		ProductID:       event.ProductID,
		OrderID:         event.OrderID,
		ProductQuantity: event.ProductQuantity,
	}
	if err := c.publish(ctx, c.topics.ProductsCommands, messaging.CommandCancelProductReservation, event.OrderID, command); err != nil {
		return err
	}

	return c.record(ctx, event.OrderID, history.StatusCompensating)
}

func (c *Coordinator) handleReservationCancelled(ctx context.Context, event *messaging.ProductReservationCancelledEvent) error {
	done, err := c.alreadyRecorded(ctx, event.OrderID, history.StatusRejected)
	if err != nil || done {
		return err
	}

	if err := c.reject(ctx, event.OrderID); err != nil {
		return err
	}

	return c.record(ctx, event.OrderID, history.StatusRejected)
}

func (c *Coordinator) handleOrderApproved(ctx context.Context, event *messaging.OrderApprovedEvent) error {
	done, err := c.alreadyRecorded(ctx, event.OrderID, history.StatusApproved)
	if err != nil || done {
		return err
	}

	ok, err := c.expectPrior(ctx, event.OrderID, history.StatusPaymentProcessed, messaging.EventOrderApproved)
	if err != nil || !ok {
		return err
	}

	return c.record(ctx, event.OrderID, history.StatusApproved)
}

// reject tells the orders service to drive the order row to its terminal
// REJECTED state, mirroring how ApproveOrder drives it to APPROVED.
func (c *Coordinator) reject(ctx context.Context, orderID uuid.UUID) error {
	command := messaging.RejectOrderCommand{OrderID: orderID}
	return c.publish(ctx, c.topics.OrdersCommands, messaging.CommandRejectOrder, orderID, command)
}

// alreadyRecorded reports whether this transition has been made before. It
// also catches events landing on an order that already reached the other
// terminal state; those are invariant violations and are logged and dropped.
func (c *Coordinator) alreadyRecorded(ctx context.Context, orderID uuid.UUID, target history.Status) (bool, error) {
	recorded, err := c.history.Contains(ctx, orderID, target)
	if err != nil {
		return false, fmt.Errorf("history lookup failed: %w", err)
	}
	if recorded {
		mylogger.Debug(
			ctx,
			c.logger,
			"Duplicate event, transition already recorded",
			zap.String("order_id", orderID.String()),
			zap.String("status", string(target)),
		)

		return true, nil
	}

	for _, terminal := range []history.Status{history.StatusApproved, history.StatusRejected} {
		if terminal == target {
			continue
		}

		done, err := c.history.Contains(ctx, orderID, terminal)
		if err != nil {
			return false, fmt.Errorf("history lookup failed: %w", err)
		}
		if done {
			mylogger.Warn(
				ctx,
				c.logger,
				"Event for order in terminal state, dropping",
				zap.String("order_id", orderID.String()),
				zap.String("terminal_status", string(terminal)),
				zap.String("attempted_status", string(target)),
			)

			return true, nil
		}
	}

	return false, nil
}

// expectPrior verifies the causally preceding transition was recorded. The
// transport orders messages per order id, so a gap means a misbehaving
// producer; the event is logged and dropped.
func (c *Coordinator) expectPrior(ctx context.Context, orderID uuid.UUID, prior history.Status, event string) (bool, error) {
	recorded, err := c.history.Contains(ctx, orderID, prior)
	if err != nil {
		return false, fmt.Errorf("history lookup failed: %w", err)
	}
	if !recorded {
		mylogger.Warn(
			ctx,
			c.logger,
			"Out-of-order event, expected prior transition missing",
			zap.String("order_id", orderID.String()),
			zap.String("event", event),
			zap.String("expected_prior", string(prior)),
		)

		return false, nil
	}

	return true, nil
}

func (c *Coordinator) publish(ctx context.Context, topic, msgType string, orderID uuid.UUID, payload any) error {
	if err := c.publisher.Publish(ctx, topic, orderID.String(), msgType, payload); err != nil {
		return fmt.Errorf("failed to publish %s: %w", msgType, err)
	}

	mylogger.Info(
		ctx,
		c.logger,
		"Command emitted",
		zap.String("command", msgType),
		zap.String("order_id", orderID.String()),
		zap.String("topic", topic),
	)

	return nil
}

func (c *Coordinator) record(ctx context.Context, orderID uuid.UUID, status history.Status) error {
	if err := c.history.Add(ctx, orderID, status); err != nil {
		return fmt.Errorf("failed to record %s: %w", status, err)
	}

	return nil
}

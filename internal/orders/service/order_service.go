package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sumitak/ms-kafka-saga-dp/internal/history"
	"github.com/sumitak/ms-kafka-saga-dp/internal/messaging"
	"github.com/sumitak/ms-kafka-saga-dp/internal/orders/domain"
	"github.com/sumitak/ms-kafka-saga-dp/internal/orders/repository"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/config"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/mylogger"
	outboxDomain "github.com/sumitak/ms-kafka-saga-dp/pkg/outbox/domain"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/outbox/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OrderService interface {
	// Place creates the order and stages OrderCreated in one transaction.
	Place(ctx context.Context, customerID, productID uuid.UUID, quantity int32) (*domain.Order, error)
	// Approve and Reject run inside the caller's transaction so the command
	// consumer can claim its deduplication key atomically with the update.
	Approve(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) error
	Reject(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) error
	// Status returns the order row plus its saga transition log.
	Status(ctx context.Context, orderID uuid.UUID) (*domain.Order, []history.Entry, error)
}

type orderService struct {
	pool      *pgxpool.Pool
	logger    *zap.Logger
	orderRepo repository.OrderRepository
	outbox    worker.OutboxRepository
	historyS  history.Store
	topics    config.Topics
	tracer    trace.Tracer
}

func NewOrderService(
	pool *pgxpool.Pool,
	logger *zap.Logger,
	orderRepo repository.OrderRepository,
	outboxRepo worker.OutboxRepository,
	historyStore history.Store,
	topics config.Topics,
) OrderService {
	return &orderService{
		pool:      pool,
		logger:    logger,
		orderRepo: orderRepo,
		outbox:    outboxRepo,
		historyS:  historyStore,
		topics:    topics,
		tracer:    otel.Tracer("orders/service"),
	}
}

func (s *orderService) Place(ctx context.Context, customerID, productID uuid.UUID, quantity int32) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.Place")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		shutdownCtx := context.WithoutCancel(ctx)

		if err := tx.Rollback(shutdownCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(shutdownCtx, s.logger, "Error rolling back transaction", zap.Error(err))
		}
	}()

	order := &domain.Order{
		ID:         uuid.New(),
		CustomerID: customerID,
		ProductID:  productID,
		Quantity:   quantity,
		Status:     domain.OrderStatusCreated,
	}

	if err := s.orderRepo.CreateOrder(ctx, tx, order); err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to create order",
			zap.String("customer_id", customerID.String()),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	event := messaging.OrderCreatedEvent{
		OrderID:         order.ID,
		CustomerID:      order.CustomerID,
		ProductID:       order.ProductID,
		ProductQuantity: order.Quantity,
	}
	if err := s.emitEvent(ctx, tx, messaging.EventOrderCreated, order.ID, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Order placed",
		zap.String("order_id", order.ID.String()),
	)

	return order, nil
}

func (s *orderService) Approve(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "OrderService.Approve")
	defer span.End()

	if err := s.orderRepo.ChangeOrderStatus(ctx, tx, orderID, domain.OrderStatusApproved); err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			// an approve command for an order that was never placed is a
			// broken precondition, not a retryable fault
			return fmt.Errorf("approve order %s: %w", orderID, err)
		}

		return fmt.Errorf("failed to approve order: %w", err)
	}

	event := messaging.OrderApprovedEvent{OrderID: orderID}
	if err := s.emitEvent(ctx, tx, messaging.EventOrderApproved, orderID, event); err != nil {
		return err
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Order approved",
		zap.String("order_id", orderID.String()),
	)

	return nil
}

func (s *orderService) Reject(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "OrderService.Reject")
	defer span.End()

	if err := s.orderRepo.ChangeOrderStatus(ctx, tx, orderID, domain.OrderStatusRejected); err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return fmt.Errorf("reject order %s: %w", orderID, err)
		}

		return fmt.Errorf("failed to reject order: %w", err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Order rejected",
		zap.String("order_id", orderID.String()),
	)

	return nil
}

func (s *orderService) Status(ctx context.Context, orderID uuid.UUID) (*domain.Order, []history.Entry, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.Status")
	defer span.End()

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	entries, err := s.historyS.ForOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, entries, nil
}

func (s *orderService) emitEvent(ctx context.Context, tx pgx.Tx, eventType string, orderID uuid.UUID, payload any) error {
	envelope, err := messaging.Encode(eventType, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", eventType, err)
	}

	outboxEvent := &outboxDomain.OutboxEvent{
		AggregateType: "order",
		AggregateID:   orderID.String(),
		EventType:     eventType,
		Payload:       envelope,
		RoutingKey:    orderID.String(),
		Topic:         s.topics.OrdersEvents,
	}

	return s.outbox.SaveOutboxEvent(ctx, tx, outboxEvent)
}

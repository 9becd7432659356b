package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sumitak/ms-kafka-saga-dp/internal/messaging"
	"github.com/sumitak/ms-kafka-saga-dp/internal/payments/domain"
	"github.com/sumitak/ms-kafka-saga-dp/internal/payments/gateway"
	"github.com/sumitak/ms-kafka-saga-dp/internal/payments/repository"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/config"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/mylogger"
	outboxDomain "github.com/sumitak/ms-kafka-saga-dp/pkg/outbox/domain"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/outbox/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type PaymentService interface {
	// ProcessPayment charges the card for price*quantity and records the
	// outcome exactly once per order. A redelivered command that finds an
	// attempt already recorded does nothing; the staged event is on its way.
	ProcessPayment(ctx context.Context, cmd *messaging.ProcessPaymentCommand) error
}

type paymentService struct {
	pool        *pgxpool.Pool
	paymentRepo repository.PaymentRepository
	outboxRepo  worker.OutboxRepository
	gateway     gateway.CardGateway
	topics      config.Topics
	logger      *zap.Logger
	tracer      trace.Tracer
}

func NewPaymentService(
	pool *pgxpool.Pool,
	paymentRepo repository.PaymentRepository,
	outboxRepo worker.OutboxRepository,
	cardGateway gateway.CardGateway,
	topics config.Topics,
	logger *zap.Logger,
) PaymentService {
	return &paymentService{
		pool:        pool,
		paymentRepo: paymentRepo,
		outboxRepo:  outboxRepo,
		gateway:     cardGateway,
		topics:      topics,
		logger:      logger,
		tracer:      otel.Tracer("payments/service"),
	}
}

func (s *paymentService) ProcessPayment(ctx context.Context, cmd *messaging.ProcessPaymentCommand) error {
	ctx, span := s.tracer.Start(ctx, "PaymentService.ProcessPayment")
	defer span.End()

	mylogger.Info(
		ctx,
		s.logger,
		"Processing payment",
		zap.String("order_id", cmd.OrderID.String()),
		zap.Int64("product_price", cmd.ProductPrice),
		zap.Int32("product_quantity", cmd.ProductQuantity),
	)

	existing, err := s.paymentRepo.GetByOrderID(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	if existing != nil {
		mylogger.Warn(
			ctx,
			s.logger,
			"Payment already recorded for this order",
			zap.String("order_id", cmd.OrderID.String()),
			zap.String("status", string(existing.Status)),
		)

		return nil
	}

	amount := cmd.ProductPrice * int64(cmd.ProductQuantity)

	payment := &domain.Payment{
		ID:        uuid.New(),
		OrderID:   cmd.OrderID,
		ProductID: cmd.ProductID,
		Amount:    amount,
	}

	var eventType string
	var eventPayload any

	transactionID, err := s.gateway.Charge(ctx, cmd.OrderID, amount)
	switch {
	case err == nil:
		payment.Status = domain.PaymentSucceeded
		payment.TransactionID = transactionID
		eventType = messaging.EventPaymentProcessed
		eventPayload = messaging.PaymentProcessedEvent{
			OrderID:   cmd.OrderID,
			PaymentID: payment.ID,
		}

	case errors.Is(err, gateway.ErrCardDeclined), errors.Is(err, gateway.ErrProcessorUnavailable):
		mylogger.Warn(
			ctx,
			s.logger,
			"Payment failed",
			zap.String("order_id", cmd.OrderID.String()),
			zap.Error(err),
		)

		payment.Status = domain.PaymentFailed
		eventType = messaging.EventPaymentFailed
		eventPayload = messaging.PaymentFailedEvent{
			OrderID:         cmd.OrderID,
			ProductID:       cmd.ProductID,
			ProductQuantity: cmd.ProductQuantity,
		}

	default:
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		if err := tx.Rollback(cleanupCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(cleanupCtx, s.logger, "Error rolling back transaction", zap.Error(err))
		}
	}()

	if err := s.paymentRepo.Create(ctx, tx, payment); err != nil {
		return err
	}

	if err := s.emitEvent(ctx, tx, eventType, cmd.OrderID, eventPayload); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"ProcessPayment finished",
		zap.String("order_id", cmd.OrderID.String()),
		zap.String("status", string(payment.Status)),
	)

	return nil
}

func (s *paymentService) emitEvent(ctx context.Context, tx pgx.Tx, eventType string, orderID uuid.UUID, payload any) error {
	envelope, err := messaging.Encode(eventType, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", eventType, err)
	}

	outboxEvent := &outboxDomain.OutboxEvent{
		AggregateType: "payment",
		AggregateID:   orderID.String(),
		EventType:     eventType,
		Payload:       envelope,
		RoutingKey:    orderID.String(),
		Topic:         s.topics.PaymentsEvents,
	}

	return s.outboxRepo.SaveOutboxEvent(ctx, tx, outboxEvent)
}

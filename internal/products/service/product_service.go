package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sumitak/ms-kafka-saga-dp/internal/messaging"
	"github.com/sumitak/ms-kafka-saga-dp/internal/products/domain"
	"github.com/sumitak/ms-kafka-saga-dp/internal/products/repository"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/config"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/mylogger"
	outboxDomain "github.com/sumitak/ms-kafka-saga-dp/pkg/outbox/domain"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/outbox/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ProductService interface {
	Create(ctx context.Context, product *domain.Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	// ReserveProduct holds stock for the order and stages ProductReserved or
	// ProductReservationFailed with the stock mutation in one transaction.
	ReserveProduct(ctx context.Context, cmd *messaging.ReserveProductCommand) error
	// CancelReservation releases the hold. Safe to call twice; only the
	// first call restores stock and stages ProductReservationCancelled.
	CancelReservation(ctx context.Context, cmd *messaging.CancelProductReservationCommand) error
}

type productService struct {
	pool   *pgxpool.Pool
	repo   repository.ProductRepository
	outbox worker.OutboxRepository
	topics config.Topics
	logger *zap.Logger
	tracer trace.Tracer
}

func NewProductService(
	pool *pgxpool.Pool,
	repo repository.ProductRepository,
	outboxRepo worker.OutboxRepository,
	topics config.Topics,
	logger *zap.Logger,
) ProductService {
	return &productService{
		pool:   pool,
		repo:   repo,
		outbox: outboxRepo,
		topics: topics,
		logger: logger,
		tracer: otel.Tracer("products/service"),
	}
}

func (s *productService) Create(ctx context.Context, product *domain.Product) error {
	ctx, span := s.tracer.Start(ctx, "ProductService.Create")
	defer span.End()

	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}

	return s.repo.Create(ctx, product)
}

func (s *productService) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *productService) ReserveProduct(ctx context.Context, cmd *messaging.ReserveProductCommand) error {
	ctx, span := s.tracer.Start(ctx, "ProductService.ReserveProduct")
	defer span.End()

	mylogger.Info(
		ctx,
		s.logger,
		"Reserving product",
		zap.String("order_id", cmd.OrderID.String()),
		zap.String("product_id", cmd.ProductID.String()),
		zap.Int32("quantity", cmd.ProductQuantity),
	)

	return s.inTx(ctx, func(tx pgx.Tx) error {
		reservation, err := s.repo.Reserve(ctx, tx, cmd.ProductID, cmd.OrderID, cmd.ProductQuantity)

		switch {
		case err == nil:
			if reservation.Cancelled {
				// redelivered reserve after the saga already compensated;
				// the original events are staged, nothing more to do
				return nil
			}

			event := messaging.ProductReservedEvent{
				OrderID:         cmd.OrderID,
				ProductID:       cmd.ProductID,
				ProductPrice:    reservation.Price,
				ProductQuantity: cmd.ProductQuantity,
			}
			return s.emitEvent(ctx, tx, messaging.EventProductReserved, cmd.OrderID, event)

		case errors.Is(err, repository.ErrInsufficientStock):
			mylogger.Warn(
				ctx,
				s.logger,
				"Insufficient stock",
				zap.String("order_id", cmd.OrderID.String()),
				zap.String("product_id", cmd.ProductID.String()),
			)

			event := messaging.ProductReservationFailedEvent{
				ProductID:       cmd.ProductID,
				OrderID:         cmd.OrderID,
				ProductQuantity: cmd.ProductQuantity,
			}
			return s.emitEvent(ctx, tx, messaging.EventProductReservationFailed, cmd.OrderID, event)

		default:
			// unknown product is a broken precondition; storage faults are
			// returned as-is so the transport retries the command
			return err
		}
	})
}

func (s *productService) CancelReservation(ctx context.Context, cmd *messaging.CancelProductReservationCommand) error {
	ctx, span := s.tracer.Start(ctx, "ProductService.CancelReservation")
	defer span.End()

	return s.inTx(ctx, func(tx pgx.Tx) error {
		reservation, restored, err := s.repo.CancelReservation(ctx, tx, cmd.OrderID)
		if err != nil {
			return err
		}

		if !restored {
			mylogger.Info(
				ctx,
				s.logger,
				"Reservation already cancelled, skipping",
				zap.String("order_id", cmd.OrderID.String()),
			)

			return nil
		}

		mylogger.Info(
			ctx,
			s.logger,
			"Reservation cancelled, stock restored",
			zap.String("order_id", cmd.OrderID.String()),
			zap.Int32("quantity", reservation.Quantity),
		)

		event := messaging.ProductReservationCancelledEvent{
			ProductID: reservation.ProductID,
			OrderID:   cmd.OrderID,
		}
		return s.emitEvent(ctx, tx, messaging.EventProductReservationCancelled, cmd.OrderID, event)
	})
}

func (s *productService) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
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

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *productService) emitEvent(ctx context.Context, tx pgx.Tx, eventType string, orderID uuid.UUID, payload any) error {
	envelope, err := messaging.Encode(eventType, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", eventType, err)
	}

	outboxEvent := &outboxDomain.OutboxEvent{
		AggregateType: "reservation",
		AggregateID:   orderID.String(),
		EventType:     eventType,
		Payload:       envelope,
		RoutingKey:    orderID.String(),
		Topic:         s.topics.ProductsEvents,
	}

	return s.outbox.SaveOutboxEvent(ctx, tx, outboxEvent)
}

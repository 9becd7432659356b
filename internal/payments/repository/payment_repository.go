package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sumitak/ms-kafka-saga-dp/internal/payments/domain"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type PaymentRepository interface {
	Create(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error
	// GetByOrderID returns (nil, nil) when no attempt was recorded yet.
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error)
}

type paymentRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewPaymentRepository(pool *pgxpool.Pool, logger *zap.Logger) PaymentRepository {
	return &paymentRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("payments/repository"),
	}
}

func (r *paymentRepo) Create(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", payment.OrderID.String()),
		attribute.Int64("amount", payment.Amount),
	)

	query := `
		INSERT INTO payments (id, order_id, product_id, amount, status, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at
	`

	if err := tx.QueryRow(ctx, query,
		payment.ID,
		payment.OrderID,
		payment.ProductID,
		payment.Amount,
		string(payment.Status),
		payment.TransactionID,
	).Scan(&payment.CreatedAt); err != nil {
		span.RecordError(err)

		mylogger.Warn(ctx, r.logger, "Create payment failed", zap.Error(err))

		return fmt.Errorf("error creating payment: %w", err)
	}

	return nil
}

func (r *paymentRepo) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error) {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.GetByOrderID")
	defer span.End()

	query := `
		SELECT id, order_id, product_id, amount, status, transaction_id, created_at
		FROM payments
		WHERE order_id = $1
	`

	var result domain.Payment
	if err := r.pool.QueryRow(ctx, query, orderID).Scan(
		&result.ID,
		&result.OrderID,
		&result.ProductID,
		&result.Amount,
		&result.Status,
		&result.TransactionID,
		&result.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		span.RecordError(err)

		mylogger.Error(ctx, r.logger, "GetByOrderID failed", zap.Error(err))

		return nil, fmt.Errorf("error getting payment by order id: %w", err)
	}

	return &result, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sumitak/ms-kafka-saga-dp/internal/products/domain"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	// Reserve decrements stock and records the reservation in one
	// transaction. Calling it again for the same orderId returns the
	// existing reservation without touching stock.
	Reserve(ctx context.Context, tx pgx.Tx, productID, orderID uuid.UUID, quantity int32) (*domain.Reservation, error)
	// CancelReservation restores stock if the reservation is still live and
	// reports whether this call performed the cancellation. A second cancel
	// for the same orderId is a no-op.
	CancelReservation(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (*domain.Reservation, bool, error)
}

type productRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewProductRepository(pool *pgxpool.Pool, logger *zap.Logger) ProductRepository {
	return &productRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("products/repository"),
	}
}

func (r *productRepo) Create(ctx context.Context, product *domain.Product) error {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Create")
	defer span.End()

	query := `
		INSERT INTO products (id, name, price, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query, product.ID, product.Name, product.Price, product.Quantity).
		Scan(&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		span.RecordError(err)

		return fmt.Errorf("failed to insert product: %w", err)
	}

	return nil
}

func (r *productRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.FindByID")
	defer span.End()

	query := `
		SELECT id, name, price, quantity, created_at, updated_at
		FROM products
		WHERE id = $1
	`

	var p domain.Product
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Price, &p.Quantity, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}

		span.RecordError(err)

		return nil, fmt.Errorf("failed to query product: %w", err)
	}

	return &p, nil
}

func (r *productRepo) Reserve(ctx context.Context, tx pgx.Tx, productID, orderID uuid.UUID, quantity int32) (*domain.Reservation, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Reserve")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID.String()),
		attribute.String("product_id", productID.String()),
		attribute.Int("quantity", int(quantity)),
	)

	existing, err := r.findReservation(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		mylogger.Info(
			ctx,
			r.logger,
			"Reservation already exists for order, reusing",
			zap.String("order_id", orderID.String()),
		)

		return existing, nil
	}

	// the conditional decrement serializes concurrent reservations on the
	// product row; stock can never go below zero
	decrement := `
		UPDATE products
		SET quantity = quantity - $1, updated_at = NOW()
		WHERE id = $2 AND quantity >= $1
		RETURNING price
	`

	var price int64
	err = tx.QueryRow(ctx, decrement, quantity, productID).Scan(&price)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			span.RecordError(err)

			return nil, fmt.Errorf("failed to decrement stock: %w", err)
		}

		// no row matched: either the product is unknown or stock ran short
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check product: %w", err)
		}
		if !exists {
			return nil, ErrProductNotFound
		}

		return nil, ErrInsufficientStock
	}

	reservation := &domain.Reservation{
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  quantity,
		Price:     price,
	}

	insert := `
		INSERT INTO reservations (order_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	if err := tx.QueryRow(ctx, insert, orderID, productID, quantity, price).Scan(&reservation.CreatedAt); err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("failed to insert reservation: %w", err)
	}

	return reservation, nil
}

func (r *productRepo) CancelReservation(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (*domain.Reservation, bool, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.CancelReservation")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", orderID.String()))

	cancel := `
		UPDATE reservations
		SET cancelled = TRUE
		WHERE order_id = $1 AND cancelled = FALSE
		RETURNING order_id, product_id, quantity, price, cancelled, created_at
	`

	var res domain.Reservation
	err := tx.QueryRow(ctx, cancel, orderID).Scan(
		&res.OrderID, &res.ProductID, &res.Quantity, &res.Price, &res.Cancelled, &res.CreatedAt,
	)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			span.RecordError(err)

			return nil, false, fmt.Errorf("failed to cancel reservation: %w", err)
		}

		existing, ferr := r.findReservation(ctx, tx, orderID)
		if ferr != nil {
			return nil, false, ferr
		}
		if existing == nil {
			return nil, false, fmt.Errorf("order %s: %w", orderID, ErrReservationNotFound)
		}

		// already cancelled, nothing to restore
		return existing, false, nil
	}

	restore := `
		UPDATE products
		SET quantity = quantity + $1, updated_at = NOW()
		WHERE id = $2
	`

	if _, err := tx.Exec(ctx, restore, res.Quantity, res.ProductID); err != nil {
		span.RecordError(err)

		return nil, false, fmt.Errorf("failed to restore stock: %w", err)
	}

	return &res, true, nil
}

func (r *productRepo) findReservation(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (*domain.Reservation, error) {
	query := `
		SELECT order_id, product_id, quantity, price, cancelled, created_at
		FROM reservations
		WHERE order_id = $1
	`

	var res domain.Reservation
	err := tx.QueryRow(ctx, query, orderID).Scan(
		&res.OrderID, &res.ProductID, &res.Quantity, &res.Price, &res.Cancelled, &res.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to query reservation: %w", err)
	}

	return &res, nil
}

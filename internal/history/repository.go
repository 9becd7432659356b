package history

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type repo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) Store {
	return &repo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("history/repository"),
	}
}

func (r *repo) Add(ctx context.Context, orderID uuid.UUID, status Status) error {
	ctx, span := r.tracer.Start(ctx, "HistoryRepository.Add")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID.String()),
		attribute.String("status", string(status)),
	)

	query := `
		INSERT INTO order_history (order_id, status)
		VALUES ($1, $2)
		ON CONFLICT (order_id, status) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, orderID, string(status)); err != nil {
		span.RecordError(err)

		return fmt.Errorf("failed to append history entry: %w", err)
	}

	return nil
}

func (r *repo) Contains(ctx context.Context, orderID uuid.UUID, status Status) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "HistoryRepository.Contains")
	defer span.End()

	query := `
		SELECT EXISTS (
			SELECT 1 FROM order_history
			WHERE order_id = $1 AND status = $2
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, orderID, string(status)).Scan(&exists); err != nil {
		span.RecordError(err)

		return false, fmt.Errorf("failed to query history: %w", err)
	}

	return exists, nil
}

func (r *repo) ForOrder(ctx context.Context, orderID uuid.UUID) ([]Entry, error) {
	ctx, span := r.tracer.Start(ctx, "HistoryRepository.ForOrder")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", orderID.String()))

	query := `
		SELECT order_id, status, created_at
		FROM order_history
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.OrderID, &e.Status, &e.CreatedAt); err != nil {
			span.RecordError(err)

			return nil, fmt.Errorf("error scanning history entry: %w", err)
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

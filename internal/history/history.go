// Package history keeps the append-only log of per-order status
// transitions. The saga coordinator owns it: every transition it observes is
// recorded here, and the log doubles as its durable checkpoint for duplicate
// detection after a crash or redelivery.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusCreated          Status = "CREATED"
	StatusProductReserved  Status = "PRODUCT_RESERVED"
	StatusPaymentProcessed Status = "PAYMENT_PROCESSED"
	StatusCompensating     Status = "COMPENSATING"
	StatusApproved         Status = "APPROVED"
	StatusRejected         Status = "REJECTED"
)

type Entry struct {
	OrderID   uuid.UUID `db:"order_id"`
	Status    Status    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
}

type Store interface {
	// Add appends a status entry. Appending a status the order already has
	// is a no-op, so redelivered events cannot duplicate entries.
	Add(ctx context.Context, orderID uuid.UUID, status Status) error
	// Contains reports whether the status was already recorded for the order.
	Contains(ctx context.Context, orderID uuid.UUID, status Status) (bool, error)
	// ForOrder returns the order's transitions in append order.
	ForOrder(ctx context.Context, orderID uuid.UUID) ([]Entry, error)
}

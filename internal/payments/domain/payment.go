package domain

import (
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// Payment is the attempt record for one order. The unique constraint on
// order_id makes the outcome final: a redelivered ProcessPayment finds the
// row and never charges twice.
type Payment struct {
	ID            uuid.UUID     `db:"id"`
	OrderID       uuid.UUID     `db:"order_id"`
	ProductID     uuid.UUID     `db:"product_id"`
	Amount        int64         `db:"amount"`
	Status        PaymentStatus `db:"status"`
	TransactionID string        `db:"transaction_id"`

	CreatedAt time.Time `db:"created_at"`
}

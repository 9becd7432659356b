package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

// CREATED is set on placement; the remaining statuses are reached only
// through saga commands. An order is never deleted, it terminates as
// APPROVED or REJECTED.
const (
	OrderStatusCreated  OrderStatus = "CREATED"
	OrderStatusApproved OrderStatus = "APPROVED"
	OrderStatusRejected OrderStatus = "REJECTED"
)

type Order struct {
	ID         uuid.UUID   `db:"id"`
	CustomerID uuid.UUID   `db:"customer_id"`
	ProductID  uuid.UUID   `db:"product_id"`
	Quantity   int32       `db:"quantity"`
	Status     OrderStatus `db:"status"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

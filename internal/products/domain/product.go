package domain

import (
	"time"

	"github.com/google/uuid"
)

type Product struct {
	ID       uuid.UUID `db:"id" json:"id"`
	Name     string    `db:"name" json:"name"`
	Price    int64     `db:"price" json:"price"`
	Quantity int32     `db:"quantity" json:"quantity"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Reservation holds stock for one order. The price is snapshotted at
// reservation time so later catalog changes cannot alter the amount charged.
type Reservation struct {
	OrderID   uuid.UUID `db:"order_id"`
	ProductID uuid.UUID `db:"product_id"`
	Quantity  int32     `db:"quantity"`
	Price     int64     `db:"price"`
	Cancelled bool      `db:"cancelled"`

	CreatedAt time.Time `db:"created_at"`
}
